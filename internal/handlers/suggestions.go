package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/everkeep/everkeep/internal/linker"
	"github.com/everkeep/everkeep/internal/store"
)

// SuggestionsHandler serves the suggestion review workflow.
type SuggestionsHandler struct {
	linker *linker.Service
}

// AcceptRequest optionally overrides the suggestion's candidate contact.
type AcceptRequest struct {
	ContactID string `json:"contact_id,omitempty"`
}

// NewSuggestionsHandler creates a suggestions handler.
func NewSuggestionsHandler(linkerService *linker.Service) *SuggestionsHandler {
	return &SuggestionsHandler{linker: linkerService}
}

// Register mounts the /suggestions routes on the Echo instance.
func (h *SuggestionsHandler) Register(e *echo.Echo) {
	group := e.Group("/suggestions")
	group.GET("", h.List)
	group.POST("/:id/accept", h.Accept)
	group.POST("/:id/reject", h.Reject)
	group.POST("/:id/defer", h.Defer)
}

// List runs a linker pass and returns pending suggestions with their
// current match candidates.
func (h *SuggestionsHandler) List(c echo.Context) error {
	items, err := h.linker.Review(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Accept links the suggestion to a contact and assigns its chat messages.
func (h *SuggestionsHandler) Accept(c echo.Context) error {
	id, err := requireParam(c, "id", "suggestion id")
	if err != nil {
		return err
	}
	var req AcceptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	item, err := h.linker.Accept(c.Request().Context(), id, strings.TrimSpace(req.ContactID))
	if err != nil {
		return translateSuggestionErr(err)
	}
	return c.JSON(http.StatusOK, item)
}

// Reject marks the suggestion as rejected.
func (h *SuggestionsHandler) Reject(c echo.Context) error {
	id, err := requireParam(c, "id", "suggestion id")
	if err != nil {
		return err
	}
	item, err := h.linker.Reject(c.Request().Context(), id)
	if err != nil {
		return translateSuggestionErr(err)
	}
	return c.JSON(http.StatusOK, item)
}

// Defer marks the suggestion as deferred.
func (h *SuggestionsHandler) Defer(c echo.Context) error {
	id, err := requireParam(c, "id", "suggestion id")
	if err != nil {
		return err
	}
	item, err := h.linker.Defer(c.Request().Context(), id)
	if err != nil {
		return translateSuggestionErr(err)
	}
	return c.JSON(http.StatusOK, item)
}

func translateSuggestionErr(err error) error {
	switch {
	case errors.Is(err, store.ErrSuggestionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "suggestion not found")
	case errors.Is(err, store.ErrContactNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "contact not found")
	case errors.Is(err, linker.ErrSuggestionResolved):
		return echo.NewHTTPError(http.StatusConflict, "suggestion already resolved")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
