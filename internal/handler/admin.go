package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-core/internal/logging"
	"github.com/iliyamo/auth-core/internal/service"
)

// cleanupTimeout is longer than requestTimeout; a purge touches three tables.
const cleanupTimeout = 30 * time.Second

// CleanupRunner runs one retention pass.
type CleanupRunner interface {
	Run(ctx context.Context) (service.CleanupResult, error)
}

// AdminHandler serves maintenance endpoints restricted to ADMIN users.
type AdminHandler struct {
	Cleaner CleanupRunner
	Log     *slog.Logger
}

func NewAdminHandler(cleaner CleanupRunner, log *slog.Logger) *AdminHandler {
	return &AdminHandler{Cleaner: cleaner, Log: log}
}

// Cleanup purges expired tokens and old login attempts and reports the
// number of rows removed per table.
func (h *AdminHandler) Cleanup(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), cleanupTimeout)
	defer cancel()

	res, err := h.Cleaner.Run(ctx)
	if err != nil {
		logging.LogError(h.Log, "manual cleanup failed", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cleanup failed", "deleted": res})
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": res})
}
