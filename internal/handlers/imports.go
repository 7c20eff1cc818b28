package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/everkeep/everkeep/internal/logger"
	"github.com/everkeep/everkeep/internal/resolve"
)

// ImportsHandler serves the two import endpoints.
type ImportsHandler struct {
	resolver *resolve.Service
}

// AddressBookImportRequest is the body for POST /imports/address-book.
type AddressBookImportRequest struct {
	Records []resolve.AddressBookCandidate `json:"records"`
}

// ChatImportRequest is the body for POST /imports/chats.
type ChatImportRequest struct {
	Chats []resolve.ChatCandidate `json:"chats"`
}

// NewImportsHandler creates an imports handler. Log lines use the
// request-scoped logger installed by the server middleware.
func NewImportsHandler(resolver *resolve.Service) *ImportsHandler {
	return &ImportsHandler{resolver: resolver}
}

// Register mounts the /imports routes on the Echo instance.
func (h *ImportsHandler) Register(e *echo.Echo) {
	group := e.Group("/imports")
	group.POST("/address-book", h.AddressBook)
	group.POST("/chats", h.Chats)
}

// AddressBook resolves a batch of parsed address-book records.
func (h *ImportsHandler) AddressBook(c echo.Context) error {
	var req AddressBookImportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Records) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "records are required")
	}
	summary, err := h.resolver.ImportAddressBook(c.Request().Context(), req.Records)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	logger.FromContext(c.Request().Context()).Info("address book imported",
		slog.Int("new", summary.New),
		slog.Int("enriched", summary.Enriched),
		slog.Int("duplicate", summary.Duplicate),
		slog.Int("failed", summary.Failed),
	)
	return c.JSON(http.StatusOK, summary)
}

// Chats imports a batch of parsed chat files.
func (h *ImportsHandler) Chats(c echo.Context) error {
	var req ChatImportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Chats) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "chats are required")
	}
	summary, err := h.resolver.ImportChats(c.Request().Context(), req.Chats)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	logger.FromContext(c.Request().Context()).Info("chats imported",
		slog.Int("linked", summary.Linked),
		slog.Int("suggested", summary.Suggested),
		slog.Int("skipped", summary.Skipped),
		slog.Int("messages", summary.Messages),
		slog.Int("failed", summary.Failed),
	)
	return c.JSON(http.StatusOK, summary)
}
