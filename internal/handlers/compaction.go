package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/everkeep/everkeep/internal/logger"
	"github.com/everkeep/everkeep/internal/schedule"
)

// CompactionHandler triggers on-demand compaction runs.
type CompactionHandler struct {
	scheduler *schedule.Service
}

// NewCompactionHandler creates a compaction handler. Log lines use the
// request-scoped logger installed by the server middleware.
func NewCompactionHandler(scheduler *schedule.Service) *CompactionHandler {
	return &CompactionHandler{scheduler: scheduler}
}

// Register mounts POST /compaction/run on the Echo instance.
func (h *CompactionHandler) Register(e *echo.Echo) {
	e.POST("/compaction/run", h.Run)
}

// Run executes one compaction pass and returns its summary.
func (h *CompactionHandler) Run(c echo.Context) error {
	summary, err := h.scheduler.Trigger(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	logger.FromContext(c.Request().Context()).Info("compaction run",
		slog.Int("groups_merged", summary.GroupsMerged),
		slog.Int("contacts_deleted", summary.ContactsDeleted),
		slog.Int("failed_groups", summary.FailedGroups),
	)
	return c.JSON(http.StatusOK, summary)
}
