package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/everkeep/everkeep/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ContactsHandler serves contact CRUD and the per-contact message listing.
type ContactsHandler struct {
	contacts store.ContactStore
	messages store.MessageStore
}

// ContactUpdateRequest carries the PATCH body. Nil fields are left untouched.
type ContactUpdateRequest struct {
	Name       *string   `json:"name,omitempty"`
	Phones     *[]string `json:"phones,omitempty"`
	Emails     *[]string `json:"emails,omitempty"`
	Company    *string   `json:"company,omitempty"`
	Role       *string   `json:"role,omitempty"`
	Categories *[]string `json:"categories,omitempty"`
	Favorite   *bool     `json:"favorite,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
}

// NewContactsHandler creates a contacts handler.
func NewContactsHandler(contacts store.ContactStore, messages store.MessageStore) *ContactsHandler {
	return &ContactsHandler{contacts: contacts, messages: messages}
}

// Register mounts the /contacts routes on the Echo instance.
func (h *ContactsHandler) Register(e *echo.Echo) {
	group := e.Group("/contacts")
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.PATCH("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
	group.GET("/:id/messages", h.Messages)
}

// List returns contacts, optionally filtered by the q query parameter.
func (h *ContactsHandler) List(c echo.Context) error {
	limit, offset := pageParams(c)
	query := strings.TrimSpace(c.QueryParam("q"))

	var (
		items []store.Contact
		err   error
	)
	if query != "" {
		items, err = h.contacts.Search(c.Request().Context(), query, limit, offset)
	} else {
		items, err = h.contacts.List(c.Request().Context(), limit, offset)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Get returns one contact by ID.
func (h *ContactsHandler) Get(c echo.Context) error {
	id, err := requireParam(c, "id", "contact id")
	if err != nil {
		return err
	}
	item, err := h.contacts.GetByID(c.Request().Context(), id)
	if err != nil {
		return translateContactErr(err)
	}
	return c.JSON(http.StatusOK, item)
}

// Update applies a partial update to a contact.
func (h *ContactsHandler) Update(c echo.Context) error {
	id, err := requireParam(c, "id", "contact id")
	if err != nil {
		return err
	}
	var req ContactUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	contact, err := h.contacts.GetByID(ctx, id)
	if err != nil {
		return translateContactErr(err)
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "name cannot be empty")
		}
		contact.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phones != nil {
		contact.Phones = *req.Phones
	}
	if req.Emails != nil {
		contact.Emails = *req.Emails
	}
	if req.Company != nil {
		contact.Company = *req.Company
	}
	if req.Role != nil {
		contact.Role = *req.Role
	}
	if req.Categories != nil {
		contact.Categories = *req.Categories
	}
	if req.Favorite != nil {
		contact.Favorite = *req.Favorite
	}
	if req.Notes != nil {
		contact.Notes = *req.Notes
	}

	updated, err := h.contacts.Update(ctx, contact)
	if err != nil {
		return translateContactErr(err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Delete removes a contact. Contacts with assigned messages are refused.
func (h *ContactsHandler) Delete(c echo.Context) error {
	id, err := requireParam(c, "id", "contact id")
	if err != nil {
		return err
	}
	if err := h.contacts.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrHasMessages) {
			return echo.NewHTTPError(http.StatusConflict, "contact still has messages assigned")
		}
		return translateContactErr(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Messages lists the messages assigned to a contact.
func (h *ContactsHandler) Messages(c echo.Context) error {
	id, err := requireParam(c, "id", "contact id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := h.contacts.GetByID(ctx, id); err != nil {
		return translateContactErr(err)
	}
	limit, offset := pageParams(c)
	items, err := h.messages.ListByContact(ctx, id, limit, offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func translateContactErr(err error) error {
	if errors.Is(err, store.ErrContactNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "contact not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func requireParam(c echo.Context, name, label string) (string, error) {
	value := strings.TrimSpace(c.Param(name))
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, label+" is required")
	}
	return value, nil
}

func pageParams(c echo.Context) (limit, offset int) {
	limit = defaultPageSize
	if raw := c.QueryParam("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = min(v, maxPageSize)
		}
	}
	if raw := c.QueryParam("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
