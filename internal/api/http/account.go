package httpapi

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/tripcast/internal/backend"
)

func (h *handlers) searchPlaces(c *fiber.Ctx) error {
	q := c.Query("search")
	if q == "" {
		return fiber.NewError(fiber.StatusBadRequest, "search query parameter is required")
	}
	places, err := h.Backend.SearchPlaces(c.UserContext(), q)
	if err != nil {
		return err
	}
	if places == nil {
		places = []backend.Place{}
	}
	return c.JSON(places)
}

func (h *handlers) locationByCoords(c *fiber.Ctx) error {
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	if errLon != nil || errLat != nil {
		return fiber.NewError(fiber.StatusBadRequest, "lon and lat query parameters must be numbers")
	}
	loc, err := h.Backend.LocationByCoords(c.UserContext(), lon, lat)
	if err != nil {
		return err
	}
	if loc == nil {
		return fiber.NewError(fiber.StatusNotFound, "no saved location at these coordinates")
	}
	return c.JSON(loc)
}

func (h *handlers) signUp(c *fiber.Ctx) error {
	var creds backend.Credentials
	if err := bindJSON(c, &creds); err != nil {
		return err
	}
	session, err := h.Backend.SignUp(c.UserContext(), creds)
	if err != nil {
		return err
	}
	h.Lists.Invalidate()
	return c.Status(fiber.StatusCreated).JSON(session)
}

func (h *handlers) signIn(c *fiber.Ctx) error {
	var creds backend.Credentials
	if err := bindJSON(c, &creds); err != nil {
		return err
	}
	session, err := h.Backend.SignIn(c.UserContext(), creds)
	if err != nil {
		return err
	}
	h.Lists.Invalidate()
	return c.JSON(session)
}

func (h *handlers) signOut(c *fiber.Ctx) error {
	h.Lists.Invalidate()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) users(c *fiber.Ctx) error {
	users, err := h.Backend.Users(c.UserContext())
	if err != nil {
		return err
	}
	if users == nil {
		users = []backend.User{}
	}
	return c.JSON(users)
}

func (h *handlers) myLists(c *fiber.Ctx) error {
	lists, err := h.Lists.Lists(c.UserContext(), c.QueryBool("force"))
	if err != nil {
		return err
	}
	if lists == nil {
		lists = []backend.List{}
	}
	return c.JSON(fiber.Map{"lists": lists})
}

func (h *handlers) createList(c *fiber.Ctx) error {
	var in backend.ListInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	list, err := h.Lists.Create(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(list)
}

func (h *handlers) searchLists(c *fiber.Ctx) error {
	lists, err := h.Backend.SearchLists(c.UserContext(), c.Query("q"))
	if err != nil {
		return err
	}
	if lists == nil {
		lists = []backend.List{}
	}
	return c.JSON(fiber.Map{"lists": lists})
}

func (h *handlers) getList(c *fiber.Ctx) error {
	list, err := h.Backend.GetList(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *handlers) updateList(c *fiber.Ctx) error {
	var in backend.ListInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	list, err := h.Lists.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *handlers) deleteList(c *fiber.Ctx) error {
	if err := h.Lists.Delete(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type listLocationRequest struct {
	LocationID  string   `json:"locationId"`
	Name        string   `json:"name"`
	Longitude   *float64 `json:"longitude"`
	Latitude    *float64 `json:"latitude"`
	Lon         *float64 `json:"lon"`
	Lat         *float64 `json:"lat"`
	Description string   `json:"description"`
}

func (r listLocationRequest) toNew() backend.NewListLocation {
	return backend.NewListLocation{
		LocationID:  r.LocationID,
		Name:        r.Name,
		Longitude:   firstSet(r.Longitude, r.Lon),
		Latitude:    firstSet(r.Latitude, r.Lat),
		Description: r.Description,
	}
}

func (h *handlers) addListLocation(c *fiber.Ctx) error {
	var req listLocationRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	list, err := h.Backend.AddLocationToList(c.UserContext(), c.Params("id"), req.toNew())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(list)
}

func (h *handlers) removeListLocation(c *fiber.Ctx) error {
	if err := h.Backend.RemoveLocationFromList(c.UserContext(), c.Params("id"), c.Params("locationId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type reorderRequest struct {
	OrderedLocationIDs []string `json:"orderedLocationIds" validate:"required,dive,required"`
}

func (h *handlers) reorderList(c *fiber.Ctx) error {
	var req reorderRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	list, err := h.Backend.ReorderList(c.UserContext(), c.Params("id"), req.OrderedLocationIDs)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (h *handlers) createComment(c *fiber.Ctx) error {
	var in backend.CommentInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	comment, err := h.Backend.CreateComment(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

func (h *handlers) updateComment(c *fiber.Ctx) error {
	var in backend.CommentInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	comment, err := h.Backend.UpdateComment(c.UserContext(), c.Params("id"), c.Params("commentId"), in)
	if err != nil {
		return err
	}
	return c.JSON(comment)
}

func (h *handlers) deleteComment(c *fiber.Ctx) error {
	if err := h.Backend.DeleteComment(c.UserContext(), c.Params("id"), c.Params("commentId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) createActivity(c *fiber.Ctx) error {
	var in backend.ActivityInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	activity, err := h.Backend.CreateActivity(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(activity)
}

func (h *handlers) updateActivity(c *fiber.Ctx) error {
	var in backend.ActivityInput
	if err := bindJSON(c, &in); err != nil {
		return err
	}
	activity, err := h.Backend.UpdateActivity(c.UserContext(), c.Params("id"), c.Params("activityId"), in)
	if err != nil {
		return err
	}
	return c.JSON(activity)
}

func (h *handlers) deleteActivity(c *fiber.Ctx) error {
	if err := h.Backend.DeleteActivity(c.UserContext(), c.Params("id"), c.Params("activityId")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func firstSet(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
