package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mportier/vaultgate/internal/models"
	"github.com/mportier/vaultgate/internal/repositories"
	pkglogger "github.com/mportier/vaultgate/pkg/logger"
)

// DeviceServiceConfig tunes device trust behavior.
type DeviceServiceConfig struct {
	// Accounts younger than this skip the new-device email to avoid
	// notification churn right after registration.
	NewDeviceAccountAge time.Duration

	// Globally disables the new-device email; device creation still occurs.
	DisableNewDeviceMail bool
}

// DeviceService tracks the devices a user has authenticated from.
type DeviceService struct {
	deviceRepo  repositories.DeviceRepository
	mail        MailService
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
	config      DeviceServiceConfig
}

func NewDeviceService(deviceRepo repositories.DeviceRepository, mail MailService, auditLogger *pkglogger.AuditLogger, logger *slog.Logger, config DeviceServiceConfig) *DeviceService {
	return &DeviceService{
		deviceRepo:  deviceRepo,
		mail:        mail,
		auditLogger: auditLogger,
		logger:      logger,
		config:      config,
	}
}

// KnownDevice reports whether the descriptor matches a device already
// registered for the user. An unresolvable descriptor is simply unknown.
func (s *DeviceService) KnownDevice(ctx context.Context, user *models.User, descriptor models.DeviceDescriptor) bool {
	if user == nil {
		return false
	}
	device, ok := descriptor.Resolve()
	if !ok {
		return false
	}
	_, err := s.deviceRepo.GetByIdentifier(ctx, user.ID, device.Identifier)
	return err == nil
}

// GetOrCreateDevice returns the stored device for (user, identifier),
// creating it on first sight. A stored device is returned unchanged; name
// and push-token updates are a separate code path. Returns
// models.ErrBadRequest when the descriptor is missing or unparseable.
func (s *DeviceService) GetOrCreateDevice(ctx context.Context, user *models.User, descriptor models.DeviceDescriptor, remoteIP string) (*models.Device, error) {
	device, ok := descriptor.Resolve()
	if !ok {
		return nil, models.ErrBadRequest
	}

	existing, err := s.deviceRepo.GetByIdentifier(ctx, user.ID, device.Identifier)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up device",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	device.UserID = user.ID
	if err := s.deviceRepo.Create(ctx, device); err != nil {
		// A concurrent login may have just registered the same identifier
		if errors.Is(err, models.ErrConflict) {
			return s.deviceRepo.GetByIdentifier(ctx, user.ID, device.Identifier)
		}
		s.logger.Error("failed to create device",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogDeviceRegistered(user.ID, device.Identifier, device.Type.DisplayName())

	now := time.Now()
	if now.Sub(user.CreatedAt) > s.config.NewDeviceAccountAge && !s.config.DisableNewDeviceMail {
		// Best-effort: a mail failure never fails the login
		if err := s.mail.SendNewDeviceLoggedInEmail(ctx, user.Email, device.Type.DisplayName(), now, remoteIP); err != nil {
			s.logger.Error("failed to send new device email",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}
	}

	return device, nil
}

// ListDevices returns all devices registered for the user.
func (s *DeviceService) ListDevices(ctx context.Context, userID string) ([]*models.Device, error) {
	devices, err := s.deviceRepo.GetByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list devices",
			slog.String("user_id", userID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return devices, nil
}
