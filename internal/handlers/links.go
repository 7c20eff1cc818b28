package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/everkeep/everkeep/internal/linker"
	"github.com/everkeep/everkeep/internal/store"
)

// LinksHandler serves the per-contact link, ignore, and mention endpoints.
type LinksHandler struct {
	linker *linker.Service
	links  store.LinkStore
}

// LinkRequest is the body for POST /contacts/:id/links.
type LinkRequest struct {
	TargetContactID string `json:"target_contact_id"`
	MentionedName   string `json:"mentioned_name"`
	Context         string `json:"context,omitempty"`
}

// IgnoreRequest is the body for POST /contacts/:id/ignores.
type IgnoreRequest struct {
	MentionedName string `json:"mentioned_name"`
}

// MentionsRequest is the body for POST /contacts/:id/mentions.
type MentionsRequest struct {
	Names []string `json:"names"`
}

// NewLinksHandler creates a links handler.
func NewLinksHandler(linkerService *linker.Service, links store.LinkStore) *LinksHandler {
	return &LinksHandler{linker: linkerService, links: links}
}

// Register mounts the link routes under /contacts/:id.
func (h *LinksHandler) Register(e *echo.Echo) {
	group := e.Group("/contacts/:id")
	group.GET("/links", h.List)
	group.POST("/links", h.Link)
	group.POST("/ignores", h.Ignore)
	group.POST("/mentions", h.Mentions)
}

// List returns the link audit trail where the contact is the source.
func (h *LinksHandler) List(c echo.Context) error {
	id, err := requireParam(c, "id", "contact id")
	if err != nil {
		return err
	}
	items, err := h.links.ListBySource(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Link records a user-confirmed association between a mentioned name and a
// target contact.
func (h *LinksHandler) Link(c echo.Context) error {
	id, err := requireParam(c, "id", "contact id")
	if err != nil {
		return err
	}
	var req LinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.TargetContactID) == "" || strings.TrimSpace(req.MentionedName) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "target contact id and mentioned name are required")
	}
	item, err := h.linker.Link(c.Request().Context(), id, req.TargetContactID, req.MentionedName, req.Context)
	if err != nil {
		return translateLinkErr(err)
	}
	return c.JSON(http.StatusOK, item)
}

// Ignore suppresses future suggestions for a mentioned name on this contact.
func (h *LinksHandler) Ignore(c echo.Context) error {
	id, err := requireParam(c, "id", "contact id")
	if err != nil {
		return err
	}
	var req IgnoreRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.MentionedName) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "mentioned name is required")
	}
	item, err := h.linker.Ignore(c.Request().Context(), id, req.MentionedName)
	if err != nil {
		return translateLinkErr(err)
	}
	return c.JSON(http.StatusOK, item)
}

// Mentions computes match candidates for names mentioned by this contact.
func (h *LinksHandler) Mentions(c echo.Context) error {
	id, err := requireParam(c, "id", "contact id")
	if err != nil {
		return err
	}
	var req MentionsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Names) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "names are required")
	}
	items, err := h.linker.MentionCandidates(c.Request().Context(), id, req.Names)
	if err != nil {
		return translateLinkErr(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func translateLinkErr(err error) error {
	switch {
	case errors.Is(err, store.ErrContactNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "contact not found")
	case errors.Is(err, linker.ErrMentionDecided):
		return echo.NewHTTPError(http.StatusConflict, "mention already decided for this contact")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
