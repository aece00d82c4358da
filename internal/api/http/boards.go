package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/tripcast/internal/backend"
	"github.com/i474232898/tripcast/internal/board"
	"github.com/i474232898/tripcast/internal/locations"
	"github.com/i474232898/tripcast/internal/seed"
	"github.com/i474232898/tripcast/internal/weather"
)

// locationRequest accepts both lon/lat and longitude/latitude so callers can
// pass places, saved locations and browser positions unchanged.
type locationRequest struct {
	ID        string   `json:"id"`
	Name      string   `json:"name" validate:"max=200"`
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
	Lon       *float64 `json:"lon"`
	Lat       *float64 `json:"lat"`
}

func (r locationRequest) ref() weather.LocationRef {
	return weather.LocationRef{
		ID:        r.ID,
		Name:      r.Name,
		Longitude: firstSet(r.Longitude, r.Lon),
		Latitude:  firstSet(r.Latitude, r.Lat),
	}
}

type placement struct {
	InsertAt string `json:"insertAt" validate:"omitempty,oneof=top bottom"`
	Source   string `json:"source" validate:"omitempty,oneof=init user landing list geo"`
}

func (p placement) options(source weather.Provenance) locations.AddOptions {
	if p.Source != "" {
		source = weather.Provenance(p.Source)
	}
	return locations.AddOptions{InsertAt: locations.InsertAt(p.InsertAt), Provenance: source}
}

type createBoardRequest struct {
	Limit      *int         `json:"limit" validate:"omitempty,min=0,max=50"`
	Mode       string       `json:"mode" validate:"omitempty,oneof=append newestTop pinFirst"`
	PinnedName string       `json:"pinnedName" validate:"max=200"`
	Width      int          `json:"width" validate:"min=0"`
	Seed       bool         `json:"seed"`
	Origin     *seed.Origin `json:"origin"`
}

func (h *handlers) createBoard(c *fiber.Ctx) error {
	var req createBoardRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		return err
	}

	cfg := h.Board
	if req.Limit != nil {
		cfg.Store.Limit = *req.Limit
	}
	if req.Mode != "" {
		cfg.Store.Mode = locations.Mode(req.Mode)
	}
	if req.PinnedName != "" {
		cfg.Store.PinnedName = req.PinnedName
	}

	b := board.New(h.Forecaster, h.Backend, cfg)
	h.Boards.Save(b)
	if req.Width > 0 {
		b.Resize(req.Width)
	}

	if req.Seed && h.Seeder != nil {
		res, err := h.Seeder.Load(c.UserContext(), b, req.Origin)
		if err != nil {
			return err
		}
		log.Info().Str("board", b.ID()).Int("added", len(res.Added)).Strs("skipped", res.Skipped).Msg("board seeded")
	}

	return c.Status(fiber.StatusCreated).JSON(b.View())
}

func (h *handlers) board(c *fiber.Ctx) (*board.Board, error) {
	return h.Boards.Get(c.Params("id"))
}

func (h *handlers) getBoard(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	return c.JSON(b.View())
}

func (h *handlers) deleteBoard(c *fiber.Ctx) error {
	if err := h.Boards.Delete(c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type addLocationRequest struct {
	locationRequest
	placement
}

func (h *handlers) addLocation(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	var req addLocationRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	entry, err := b.Add(c.UserContext(), req.ref(), req.options(weather.ProvenanceUser))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"entry": entry, "board": b.View()})
}

type addBatchRequest struct {
	Locations []locationRequest `json:"locations" validate:"required,min=1,max=50,dive"`
	placement
}

func (h *handlers) addBatch(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	var req addBatchRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	refs := make([]weather.LocationRef, 0, len(req.Locations))
	for _, l := range req.Locations {
		refs = append(refs, l.ref())
	}
	entries, err := b.AddBatch(c.UserContext(), refs, req.options(weather.ProvenanceUser))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"entries": entries, "board": b.View()})
}

func (h *handlers) selectLocation(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	var req locationRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	entry, err := b.Select(c.UserContext(), req.ref())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"entry": entry, "board": b.View()})
}

type moveRequest struct {
	From int  `json:"from" validate:"min=0"`
	To   int  `json:"to" validate:"min=0"`
	Rest bool `json:"rest"`
}

func (h *handlers) moveLocation(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	var req moveRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if !b.Move(req.From, req.To, req.Rest) {
		return fiber.NewError(fiber.StatusBadRequest, "index out of range")
	}
	return c.JSON(b.View())
}

func (h *handlers) removeLocation(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	index, err := c.ParamsInt("index")
	if err != nil || index < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "index must be a non-negative integer")
	}
	if !b.Remove(index, c.QueryBool("rest")) {
		return fiber.NewError(fiber.StatusBadRequest, "index out of range")
	}
	return c.JSON(b.View())
}

func (h *handlers) refreshBoard(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	n, err := b.Refresh(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"refreshed": n, "board": b.View()})
}

type seedRequest struct {
	Origin *seed.Origin `json:"origin"`
}

func (h *handlers) seedBoard(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	if h.Seeder == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "seeding is not configured")
	}
	var req seedRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		return err
	}

	res, err := h.Seeder.Load(c.UserContext(), b, req.Origin)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"seed": res, "board": b.View()})
}

type hydrateRequest struct {
	ListID string `json:"listId" validate:"required"`
	placement
}

// hydrateBoard loads every location of a saved list in one batch.
func (h *handlers) hydrateBoard(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	var req hydrateRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	list, err := h.Backend.GetList(c.UserContext(), req.ListID)
	if err != nil {
		return err
	}
	refs := list.Refs()
	if len(refs) == 0 {
		return c.JSON(fiber.Map{"entries": []weather.Entry{}, "board": b.View()})
	}

	entries, err := b.AddBatch(c.UserContext(), refs, req.options(weather.ProvenanceList))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"entries": entries, "board": b.View()})
}

type saveRequest struct {
	Key    string `json:"key" validate:"required"`
	ListID string `json:"listId" validate:"required"`
}

// saveToList reports backend failures through the row status rather than as
// a bare error, so callers can render the label either way.
func (h *handlers) saveToList(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	var req saveRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	status, err := b.SaveToList(c.UserContext(), req.Key, req.ListID)
	switch {
	case errors.Is(err, board.ErrEntryNotFound), errors.Is(err, board.ErrSaveInFlight):
		return err
	case err != nil:
		code, msg := statusOf(err)
		return c.Status(code).JSON(fiber.Map{"error": true, "message": msg, "save": status})
	}
	if h.Lists != nil {
		h.Lists.Invalidate()
	}
	return c.JSON(fiber.Map{"save": status})
}

func (h *handlers) resetSave(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	b.ResetSave(c.Params("key"))
	return c.JSON(fiber.Map{"save": b.SaveStatusOf(c.Params("key"))})
}

// exportBoard saves the board rows, in order, as a new list.
func (h *handlers) exportBoard(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	var in backend.ListInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}

	entries := b.Entries()
	if len(entries) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "board has no locations to save")
	}

	list, err := h.Backend.CreateListWithLocations(c.UserContext(), in, entries)
	if list.ID != "" && h.Lists != nil {
		h.Lists.Invalidate()
	}
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(list)
}

type resizeRequest struct {
	Width int `json:"width" validate:"min=0"`
}

func (h *handlers) resizeWindow(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	var req resizeRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	return c.JSON(b.Resize(req.Width))
}

func (h *handlers) nextWindow(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	return c.JSON(b.Next())
}

func (h *handlers) prevWindow(c *fiber.Ctx) error {
	b, err := h.board(c)
	if err != nil {
		return err
	}
	return c.JSON(b.Prev())
}
