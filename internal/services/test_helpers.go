package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mportier/vaultgate/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	CreateFunc     func(ctx context.Context, user *models.User) (*models.User, error)
	ReplaceFunc    func(ctx context.Context, user *models.User) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) Replace(ctx context.Context, user *models.User) error {
	if m.ReplaceFunc != nil {
		return m.ReplaceFunc(ctx, user)
	}
	return nil
}

// MockDeviceRepository implements DeviceRepository for testing
type MockDeviceRepository struct {
	GetByIdentifierFunc func(ctx context.Context, userID, identifier string) (*models.Device, error)
	GetByUserIDFunc     func(ctx context.Context, userID string) ([]*models.Device, error)
	CreateFunc          func(ctx context.Context, device *models.Device) error
}

func (m *MockDeviceRepository) GetByIdentifier(ctx context.Context, userID, identifier string) (*models.Device, error) {
	if m.GetByIdentifierFunc != nil {
		return m.GetByIdentifierFunc(ctx, userID, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockDeviceRepository) GetByUserID(ctx context.Context, userID string) ([]*models.Device, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return []*models.Device{}, nil
}

func (m *MockDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, device)
	}
	return nil
}

// MockOrganizationRepository implements OrganizationRepository for testing
type MockOrganizationRepository struct {
	GetByIDFunc         func(ctx context.Context, id string) (*models.Organization, error)
	GetManyByUserIDFunc func(ctx context.Context, userID string) ([]*models.Organization, error)
	GetMembershipsFunc  func(ctx context.Context, userID string, minStatus models.OrganizationUserStatus) ([]*models.OrganizationMembership, error)
	GetAbilitiesFunc    func(ctx context.Context) (map[string]models.OrganizationAbility, error)
}

func (m *MockOrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockOrganizationRepository) GetManyByUserID(ctx context.Context, userID string) ([]*models.Organization, error) {
	if m.GetManyByUserIDFunc != nil {
		return m.GetManyByUserIDFunc(ctx, userID)
	}
	return []*models.Organization{}, nil
}

func (m *MockOrganizationRepository) GetMemberships(ctx context.Context, userID string, minStatus models.OrganizationUserStatus) ([]*models.OrganizationMembership, error) {
	if m.GetMembershipsFunc != nil {
		return m.GetMembershipsFunc(ctx, userID, minStatus)
	}
	return []*models.OrganizationMembership{}, nil
}

func (m *MockOrganizationRepository) GetAbilities(ctx context.Context) (map[string]models.OrganizationAbility, error) {
	if m.GetAbilitiesFunc != nil {
		return m.GetAbilitiesFunc(ctx)
	}
	return map[string]models.OrganizationAbility{}, nil
}

// MockPolicyRepository implements PolicyRepository for testing
type MockPolicyRepository struct {
	GetManyApplicableToUserFunc func(ctx context.Context, userID string, policyType models.PolicyType, minStatus models.OrganizationUserStatus) ([]*models.Policy, error)
	GetByOrganizationIDTypeFunc func(ctx context.Context, organizationID string, policyType models.PolicyType) (*models.Policy, error)
}

func (m *MockPolicyRepository) GetManyApplicableToUser(ctx context.Context, userID string, policyType models.PolicyType, minStatus models.OrganizationUserStatus) ([]*models.Policy, error) {
	if m.GetManyApplicableToUserFunc != nil {
		return m.GetManyApplicableToUserFunc(ctx, userID, policyType, minStatus)
	}
	return []*models.Policy{}, nil
}

func (m *MockPolicyRepository) GetByOrganizationIDType(ctx context.Context, organizationID string, policyType models.PolicyType) (*models.Policy, error) {
	if m.GetByOrganizationIDTypeFunc != nil {
		return m.GetByOrganizationIDTypeFunc(ctx, organizationID, policyType)
	}
	return nil, models.ErrNotFound
}

// MockSsoConfigRepository implements SsoConfigRepository for testing
type MockSsoConfigRepository struct {
	GetByOrganizationIDFunc func(ctx context.Context, organizationID string) (*models.SsoConfiguration, error)
}

func (m *MockSsoConfigRepository) GetByOrganizationID(ctx context.Context, organizationID string) (*models.SsoConfiguration, error) {
	if m.GetByOrganizationIDFunc != nil {
		return m.GetByOrganizationIDFunc(ctx, organizationID)
	}
	return nil, models.ErrNotFound
}

// MockEventRepository implements EventRepository for testing. Created events
// are recorded for assertions.
type MockEventRepository struct {
	mu     sync.Mutex
	Events []*models.Event

	CreateFunc          func(ctx context.Context, event *models.Event) error
	GetManyByUserIDFunc func(ctx context.Context, userID string, limit int) ([]*models.Event, error)
	DeleteOlderThanFunc func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockEventRepository) Create(ctx context.Context, event *models.Event) error {
	m.mu.Lock()
	m.Events = append(m.Events, event)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, event)
	}
	return nil
}

func (m *MockEventRepository) GetManyByUserID(ctx context.Context, userID string, limit int) ([]*models.Event, error) {
	if m.GetManyByUserIDFunc != nil {
		return m.GetManyByUserIDFunc(ctx, userID, limit)
	}
	return []*models.Event{}, nil
}

func (m *MockEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockMailService implements MailService for testing. Sent mail is recorded
// by category for assertions.
type MockMailService struct {
	mu sync.Mutex

	NewDeviceEmails       []string
	FailedLoginEmails     []string
	FailedTwoFactorEmails []string
	TwoFactorCodes        map[string]string

	SendErr error
}

func (m *MockMailService) SendNewDeviceLoggedInEmail(ctx context.Context, email, deviceType string, at time.Time, ip string) error {
	m.mu.Lock()
	m.NewDeviceEmails = append(m.NewDeviceEmails, email)
	m.mu.Unlock()
	return m.SendErr
}

func (m *MockMailService) SendFailedLoginAttemptsEmail(ctx context.Context, email string, at time.Time, ip string) error {
	m.mu.Lock()
	m.FailedLoginEmails = append(m.FailedLoginEmails, email)
	m.mu.Unlock()
	return m.SendErr
}

func (m *MockMailService) SendFailedTwoFactorAttemptsEmail(ctx context.Context, email string, at time.Time, ip string) error {
	m.mu.Lock()
	m.FailedTwoFactorEmails = append(m.FailedTwoFactorEmails, email)
	m.mu.Unlock()
	return m.SendErr
}

func (m *MockMailService) SendTwoFactorEmail(ctx context.Context, email, code string) error {
	m.mu.Lock()
	if m.TwoFactorCodes == nil {
		m.TwoFactorCodes = make(map[string]string)
	}
	m.TwoFactorCodes[email] = code
	m.mu.Unlock()
	return m.SendErr
}

// MockFeatureService implements FeatureService for testing
type MockFeatureService struct {
	Flags map[string]bool
}

func (m *MockFeatureService) IsEnabled(flag string) bool {
	return m.Flags[flag]
}

// MockDuoVerifier implements DuoVerifier for testing
type MockDuoVerifier struct {
	CanGenerateFunc     func(provider *models.TwoFactorProvider) bool
	GenerateFunc        func(ctx context.Context, provider *models.TwoFactorProvider, user *models.User) (map[string]any, error)
	GenerateAuthURLFunc func(ctx context.Context, provider *models.TwoFactorProvider, user *models.User) (string, error)
	ValidateFunc        func(ctx context.Context, token string, provider *models.TwoFactorProvider, user *models.User) (bool, error)
}

func (m *MockDuoVerifier) CanGenerate(provider *models.TwoFactorProvider) bool {
	if m.CanGenerateFunc != nil {
		return m.CanGenerateFunc(provider)
	}
	return true
}

func (m *MockDuoVerifier) Generate(ctx context.Context, provider *models.TwoFactorProvider, user *models.User) (map[string]any, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, provider, user)
	}
	return map[string]any{"Host": "duo.example.com", "Signature": "sig"}, nil
}

func (m *MockDuoVerifier) GenerateAuthURL(ctx context.Context, provider *models.TwoFactorProvider, user *models.User) (string, error) {
	if m.GenerateAuthURLFunc != nil {
		return m.GenerateAuthURLFunc(ctx, provider, user)
	}
	return "https://duo.example.com/auth", nil
}

func (m *MockDuoVerifier) Validate(ctx context.Context, token string, provider *models.TwoFactorProvider, user *models.User) (bool, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, token, provider, user)
	}
	return false, nil
}

// MockYubiKeyVerifier implements YubiKeyVerifier for testing
type MockYubiKeyVerifier struct {
	ValidateFunc func(ctx context.Context, otp string, provider *models.TwoFactorProvider) (bool, error)
}

func (m *MockYubiKeyVerifier) Validate(ctx context.Context, otp string, provider *models.TwoFactorProvider) (bool, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, otp, provider)
	}
	return false, nil
}

// MockWebAuthnVerifier implements WebAuthnVerifier for testing
type MockWebAuthnVerifier struct {
	GenerateChallengeFunc func(ctx context.Context, user *models.User, provider *models.TwoFactorProvider) (map[string]any, error)
	ValidateFunc          func(ctx context.Context, token string, user *models.User, provider *models.TwoFactorProvider) (bool, error)
}

func (m *MockWebAuthnVerifier) GenerateChallenge(ctx context.Context, user *models.User, provider *models.TwoFactorProvider) (map[string]any, error) {
	if m.GenerateChallengeFunc != nil {
		return m.GenerateChallengeFunc(ctx, user, provider)
	}
	return map[string]any{"challenge": "abc"}, nil
}

func (m *MockWebAuthnVerifier) Validate(ctx context.Context, token string, user *models.User, provider *models.TwoFactorProvider) (bool, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, token, user, provider)
	}
	return false, nil
}

// TestPassword is the plaintext matching every test user's stored hash.
const TestPassword = "SecurePassword123!"

var (
	testHashOnce     sync.Once
	testPasswordHash string
)

// TestPasswordHash returns a bcrypt hash of TestPassword, computed once at
// minimum cost so the suite stays fast.
func TestPasswordHash() string {
	testHashOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
		if err != nil {
			panic(err)
		}
		testPasswordHash = string(h)
	})
	return testPasswordHash
}

// NewTestUser creates a user with a known password hash and account key set
func NewTestUser(id, email string) *models.User {
	return &models.User{
		ID:             id,
		Email:          email,
		Name:           "Test User",
		MasterPassword: TestPasswordHash(),
		SecurityStamp:  "stamp-" + id,
		Key:            "2.account-key",
		PrivateKey:     "2.private-key",
		Kdf:            models.KdfPBKDF2SHA256,
		KdfIterations:  600000,
		CreatedAt:      time.Now().Add(-24 * time.Hour),
		UpdatedAt:      time.Now().Add(-24 * time.Hour),
	}
}

// NewTestDescriptor returns a complete device descriptor
func NewTestDescriptor(identifier string) models.DeviceDescriptor {
	return models.DeviceDescriptor{
		Identifier: identifier,
		Type:       "9",
		Name:       "firefox",
	}
}
