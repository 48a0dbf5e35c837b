package handlers_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mportier/vaultgate/internal/handlers"
	"github.com/mportier/vaultgate/internal/models"
	"github.com/mportier/vaultgate/internal/services"
	pkglogger "github.com/mportier/vaultgate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeviceHandler(deviceRepo *services.MockDeviceRepository) *handlers.DeviceHandler {
	logger := slog.Default()
	devices := services.NewDeviceService(deviceRepo, &services.MockMailService{},
		pkglogger.NewAuditLogger(logger), logger, services.DeviceServiceConfig{})
	return handlers.NewDeviceHandler(devices, logger)
}

func TestDevices_List(t *testing.T) {
	deviceRepo := &services.MockDeviceRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) ([]*models.Device, error) {
			return []*models.Device{
				{ID: "d1", UserID: userID, Identifier: "device-1", Name: "firefox", Type: models.DeviceTypeFirefoxBrowser, CreatedAt: time.Now()},
				{ID: "d2", UserID: userID, Identifier: "device-2", Name: "android", Type: models.DeviceTypeAndroid, CreatedAt: time.Now()},
			}, nil
		},
	}
	handler := newDeviceHandler(deviceRepo)

	req := handlers.NewTestRequest(t, "GET", "/devices", nil)
	w := httptest.NewRecorder()
	handler.List(w, handlers.WithAuthContext(req, services.NewTestUser("user1", "jane@example.com")))

	var body struct {
		Data []handlers.DeviceResponse `json:"data"`
	}
	handlers.AssertJSONResponse(t, w, 200, &body)
	require.Len(t, body.Data, 2)
	assert.Equal(t, "device-1", body.Data[0].Identifier)
	assert.Equal(t, int(models.DeviceTypeFirefoxBrowser), body.Data[0].Type)
}

func TestDevices_List_Unauthenticated(t *testing.T) {
	handler := newDeviceHandler(&services.MockDeviceRepository{})

	req := handlers.NewTestRequest(t, "GET", "/devices", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	assert.Equal(t, 401, w.Code)
}
