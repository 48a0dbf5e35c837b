package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mportier/vaultgate/internal/auth"
	"github.com/mportier/vaultgate/internal/services"
	pkghttp "github.com/mportier/vaultgate/pkg/http"
)

// DeviceHandler serves the authenticated device listing endpoint.
type DeviceHandler struct {
	devices *services.DeviceService
	logger  *slog.Logger
}

func NewDeviceHandler(devices *services.DeviceService, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, logger: logger}
}

// DeviceResponse is one device row as returned to clients.
type DeviceResponse struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Name       string    `json:"name"`
	Type       int       `json:"type"`
	CreatedAt  time.Time `json:"creationDate"`
}

// List handles GET /devices.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	devices, err := h.devices.ListDevices(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to list devices",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	responses := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		responses = append(responses, DeviceResponse{
			ID:         d.ID,
			Identifier: d.Identifier,
			Name:       d.Name,
			Type:       int(d.Type),
			CreatedAt:  d.CreatedAt,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"data": responses})
}
