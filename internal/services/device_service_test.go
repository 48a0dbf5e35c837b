package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mportier/vaultgate/internal/models"
	pkglogger "github.com/mportier/vaultgate/pkg/logger"
)

func newDeviceService(deviceRepo *MockDeviceRepository, mail *MockMailService, config DeviceServiceConfig) *DeviceService {
	logger := slog.Default()
	return NewDeviceService(deviceRepo, mail, pkglogger.NewAuditLogger(logger), logger, config)
}

func TestDeviceService_GetOrCreateDevice_CreatesOnFirstSight(t *testing.T) {
	deviceRepo := &MockDeviceRepository{}
	mail := &MockMailService{}
	svc := newDeviceService(deviceRepo, mail, DeviceServiceConfig{NewDeviceAccountAge: 10 * time.Minute})
	user := NewTestUser("user1", "user@example.com")

	var created *models.Device
	deviceRepo.CreateFunc = func(ctx context.Context, device *models.Device) error {
		created = device
		return nil
	}

	device, err := svc.GetOrCreateDevice(context.Background(), user, NewTestDescriptor("dev-1"), "203.0.113.10")

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, user.ID, device.UserID)
	assert.Equal(t, "dev-1", device.Identifier)
	assert.Equal(t, models.DeviceTypeChromeBrowser, device.Type)
	assert.Equal(t, []string{user.Email}, mail.NewDeviceEmails)
}

func TestDeviceService_GetOrCreateDevice_ExistingReturnedUnchanged(t *testing.T) {
	stored := &models.Device{
		ID:         "row1",
		UserID:     "user1",
		Identifier: "dev-1",
		Name:       "old name",
		Type:       models.DeviceTypeAndroid,
	}
	deviceRepo := &MockDeviceRepository{
		GetByIdentifierFunc: func(ctx context.Context, userID, identifier string) (*models.Device, error) {
			return stored, nil
		},
		CreateFunc: func(ctx context.Context, device *models.Device) error {
			t.Fatal("existing device must not be recreated")
			return nil
		},
	}
	mail := &MockMailService{}
	svc := newDeviceService(deviceRepo, mail, DeviceServiceConfig{NewDeviceAccountAge: 10 * time.Minute})
	user := NewTestUser("user1", "user@example.com")

	// Descriptor carries a different name; the stored row wins.
	device, err := svc.GetOrCreateDevice(context.Background(), user, NewTestDescriptor("dev-1"), "203.0.113.10")

	require.NoError(t, err)
	assert.Equal(t, "old name", device.Name)
	assert.Equal(t, models.DeviceTypeAndroid, device.Type)
	assert.Empty(t, mail.NewDeviceEmails)
}

func TestDeviceService_GetOrCreateDevice_YoungAccountSkipsEmail(t *testing.T) {
	deviceRepo := &MockDeviceRepository{}
	mail := &MockMailService{}
	svc := newDeviceService(deviceRepo, mail, DeviceServiceConfig{NewDeviceAccountAge: 10 * time.Minute})
	user := NewTestUser("user1", "user@example.com")
	user.CreatedAt = time.Now().Add(-time.Minute)

	device, err := svc.GetOrCreateDevice(context.Background(), user, NewTestDescriptor("dev-1"), "203.0.113.10")

	require.NoError(t, err)
	assert.NotNil(t, device)
	assert.Empty(t, mail.NewDeviceEmails, "registration-age accounts skip the notification")
}

func TestDeviceService_GetOrCreateDevice_DisabledMailStillCreates(t *testing.T) {
	deviceRepo := &MockDeviceRepository{}
	mail := &MockMailService{}
	svc := newDeviceService(deviceRepo, mail, DeviceServiceConfig{
		NewDeviceAccountAge:  10 * time.Minute,
		DisableNewDeviceMail: true,
	})
	user := NewTestUser("user1", "user@example.com")

	device, err := svc.GetOrCreateDevice(context.Background(), user, NewTestDescriptor("dev-1"), "203.0.113.10")

	require.NoError(t, err)
	assert.NotNil(t, device)
	assert.Empty(t, mail.NewDeviceEmails)
}

func TestDeviceService_GetOrCreateDevice_MailFailureDoesNotFail(t *testing.T) {
	deviceRepo := &MockDeviceRepository{}
	mail := &MockMailService{SendErr: models.ErrInternalServer}
	svc := newDeviceService(deviceRepo, mail, DeviceServiceConfig{NewDeviceAccountAge: 10 * time.Minute})
	user := NewTestUser("user1", "user@example.com")

	device, err := svc.GetOrCreateDevice(context.Background(), user, NewTestDescriptor("dev-1"), "203.0.113.10")

	require.NoError(t, err)
	assert.NotNil(t, device)
}

func TestDeviceService_GetOrCreateDevice_IncompleteDescriptor(t *testing.T) {
	svc := newDeviceService(&MockDeviceRepository{}, &MockMailService{}, DeviceServiceConfig{})
	user := NewTestUser("user1", "user@example.com")

	cases := []models.DeviceDescriptor{
		{},
		{Identifier: "dev-1"},
		{Identifier: "dev-1", Type: "9"},
		{Identifier: "dev-1", Type: "999", Name: "x"},
	}
	for _, descriptor := range cases {
		_, err := svc.GetOrCreateDevice(context.Background(), user, descriptor, "203.0.113.10")
		assert.ErrorIs(t, err, models.ErrBadRequest)
	}
}

func TestDeviceService_GetOrCreateDevice_ConflictRace(t *testing.T) {
	winner := &models.Device{ID: "row1", UserID: "user1", Identifier: "dev-1"}
	firstLookup := true
	deviceRepo := &MockDeviceRepository{
		GetByIdentifierFunc: func(ctx context.Context, userID, identifier string) (*models.Device, error) {
			if firstLookup {
				firstLookup = false
				return nil, models.ErrNotFound
			}
			return winner, nil
		},
		CreateFunc: func(ctx context.Context, device *models.Device) error {
			return models.ErrConflict
		},
	}
	svc := newDeviceService(deviceRepo, &MockMailService{}, DeviceServiceConfig{})
	user := NewTestUser("user1", "user@example.com")

	device, err := svc.GetOrCreateDevice(context.Background(), user, NewTestDescriptor("dev-1"), "203.0.113.10")

	require.NoError(t, err)
	assert.Equal(t, "row1", device.ID)
}

func TestDeviceService_KnownDevice(t *testing.T) {
	deviceRepo := &MockDeviceRepository{
		GetByIdentifierFunc: func(ctx context.Context, userID, identifier string) (*models.Device, error) {
			if identifier == "dev-known" {
				return &models.Device{Identifier: identifier}, nil
			}
			return nil, models.ErrNotFound
		},
	}
	svc := newDeviceService(deviceRepo, &MockMailService{}, DeviceServiceConfig{})
	user := NewTestUser("user1", "user@example.com")

	assert.True(t, svc.KnownDevice(context.Background(), user, NewTestDescriptor("dev-known")))
	assert.False(t, svc.KnownDevice(context.Background(), user, NewTestDescriptor("dev-new")))
	assert.False(t, svc.KnownDevice(context.Background(), user, models.DeviceDescriptor{}))
	assert.False(t, svc.KnownDevice(context.Background(), nil, NewTestDescriptor("dev-known")))
}
