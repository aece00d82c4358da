package httpapi

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/tripcast/internal/backend"
	"github.com/i474232898/tripcast/internal/board"
	"github.com/i474232898/tripcast/internal/lists"
	"github.com/i474232898/tripcast/internal/seed"
	"github.com/i474232898/tripcast/internal/store"
	"github.com/i474232898/tripcast/internal/weather"
)

var validate = validator.New()

// StatusClientClosedRequest is reported when the caller went away.
const StatusClientClosedRequest = 499

// Deps are the services the HTTP handlers use. Boards read forecasts from
// Forecaster, or from Backend when it is nil.
type Deps struct {
	Backend    *backend.Client
	Forecaster weather.Forecaster
	Lists      *lists.Cache
	Boards     *store.MemoryStore
	Seeder     *seed.Loader
	Board      board.Config
}

type handlers struct {
	Deps
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Forecaster == nil {
		deps.Forecaster = deps.Backend
	}
	h := &handlers{Deps: deps}

	v1 := app.Group("/api/v1", withToken)

	v1.Get("/places", h.searchPlaces)
	v1.Get("/locations/by-coords", h.locationByCoords)

	auth := v1.Group("/auth")
	auth.Post("/sign-up", h.signUp)
	auth.Post("/sign-in", h.signIn)
	auth.Post("/sign-out", h.signOut)
	v1.Get("/users", h.users)

	l := v1.Group("/lists")
	l.Get("/", h.myLists)
	l.Post("/", h.createList)
	l.Get("/search", h.searchLists)
	l.Get("/:id", h.getList)
	l.Put("/:id", h.updateList)
	l.Delete("/:id", h.deleteList)
	l.Post("/:id/locations", h.addListLocation)
	l.Delete("/:id/locations/:locationId", h.removeListLocation)
	l.Put("/:id/reorder", h.reorderList)
	l.Post("/:id/comments", h.createComment)
	l.Put("/:id/comments/:commentId", h.updateComment)
	l.Delete("/:id/comments/:commentId", h.deleteComment)

	act := v1.Group("/locations/:id/activities")
	act.Post("/", h.createActivity)
	act.Put("/:activityId", h.updateActivity)
	act.Delete("/:activityId", h.deleteActivity)

	b := v1.Group("/boards")
	b.Post("/", h.createBoard)
	b.Get("/:id", h.getBoard)
	b.Delete("/:id", h.deleteBoard)
	b.Post("/:id/locations", h.addLocation)
	b.Post("/:id/locations/batch", h.addBatch)
	b.Delete("/:id/locations/:index", h.removeLocation)
	b.Post("/:id/select", h.selectLocation)
	b.Post("/:id/move", h.moveLocation)
	b.Post("/:id/refresh", h.refreshBoard)
	b.Post("/:id/seed", h.seedBoard)
	b.Post("/:id/hydrate", h.hydrateBoard)
	b.Post("/:id/save", h.saveToList)
	b.Delete("/:id/save/:key", h.resetSave)
	b.Post("/:id/export", h.exportBoard)
	b.Post("/:id/window/resize", h.resizeWindow)
	b.Post("/:id/window/next", h.nextWindow)
	b.Post("/:id/window/prev", h.prevWindow)
}

// withToken moves a bearer token from the Authorization header into the
// request context for backend calls.
func withToken(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		c.SetUserContext(backend.WithToken(c.UserContext(), token))
	}
	return c.Next()
}

// ErrorHandler renders every error as {"error": true, "message": ...} with a
// status derived from the error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code, msg := statusOf(err)
	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Int("status", code).Msg("request failed")
	}

	body := fiber.Map{
		"error":   true,
		"message": msg,
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		body["kind"] = apiErr.Kind.String()
	}
	return c.Status(code).JSON(body)
}

func statusOf(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fiber.StatusBadRequest, verrs.Error()
	}

	msg := err.Error()
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.Message
	}

	switch {
	case errors.Is(err, weather.ErrInvalidLocation), errors.Is(err, backend.ErrValidation):
		return fiber.StatusBadRequest, msg
	case errors.Is(err, backend.ErrUnauthorized):
		return fiber.StatusUnauthorized, msg
	case errors.Is(err, store.ErrNotFound), errors.Is(err, board.ErrEntryNotFound), errors.Is(err, backend.ErrNotFound):
		return fiber.StatusNotFound, msg
	case errors.Is(err, backend.ErrConflict), errors.Is(err, board.ErrSaveInFlight), errors.Is(err, weather.ErrStale):
		return fiber.StatusConflict, msg
	case errors.Is(err, backend.ErrTimeout):
		return fiber.StatusGatewayTimeout, msg
	case errors.Is(err, backend.ErrCanceled):
		return StatusClientClosedRequest, msg
	case errors.Is(err, backend.ErrUnavailable):
		return fiber.StatusServiceUnavailable, msg
	case errors.Is(err, weather.ErrNoForecasts), apiErr != nil:
		return fiber.StatusBadGateway, msg
	default:
		return fiber.StatusInternalServerError, msg
	}
}

func bindJSON(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return validate.Struct(out)
}

// bindOptionalJSON is bindJSON for routes where the body may be omitted.
func bindOptionalJSON(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return validate.Struct(out)
	}
	return bindJSON(c, out)
}
