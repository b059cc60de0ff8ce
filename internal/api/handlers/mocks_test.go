package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/services"
)

// --- Mocks ---

// MockBookingService
type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) Propose(ctx context.Context, in services.ProposeInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}
func (m *MockBookingService) Accept(ctx context.Context, in services.AcceptInput) error {
	return m.Called(ctx, in).Error(0)
}
func (m *MockBookingService) SuggestNewDates(ctx context.Context, in services.SuggestInput) error {
	return m.Called(ctx, in).Error(0)
}
func (m *MockBookingService) AcceptSuggested(ctx context.Context, in services.AcceptSuggestedInput) error {
	return m.Called(ctx, in).Error(0)
}
func (m *MockBookingService) Reschedule(ctx context.Context, in services.RescheduleInput) error {
	return m.Called(ctx, in).Error(0)
}
func (m *MockBookingService) CancelByCustomer(ctx context.Context, in services.CustomerCancelInput) (*services.CancelResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CancelResult), args.Error(1)
}
func (m *MockBookingService) CancelByRepairShop(ctx context.Context, in services.ShopCancelInput) (*services.CancelResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CancelResult), args.Error(1)
}
func (m *MockBookingService) bookings(args mock.Arguments) ([]models.Booking, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Booking), args.Error(1)
}
func (m *MockBookingService) FetchBooking(ctx context.Context, requestID string) ([]models.Booking, error) {
	return m.bookings(m.Called(ctx, requestID))
}
func (m *MockBookingService) FetchBookings(ctx context.Context, uid string) ([]models.Booking, error) {
	return m.bookings(m.Called(ctx, uid))
}
func (m *MockBookingService) FetchAcceptedBookings(ctx context.Context, email string) ([]models.Booking, error) {
	return m.bookings(m.Called(ctx, email))
}
func (m *MockBookingService) FetchAcceptedBookingsForRepairShop(ctx context.Context, uid string) ([]models.Booking, error) {
	return m.bookings(m.Called(ctx, uid))
}
func (m *MockBookingService) FetchBookingsWithNewDates(ctx context.Context, email string) ([]services.BookingWithShop, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.BookingWithShop), args.Error(1)
}
func (m *MockBookingService) BackfillStatus(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockRequestService
type MockRequestService struct {
	mock.Mock
}

func (m *MockRequestService) requests(args mock.Arguments) ([]models.RepairRequest, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RepairRequest), args.Error(1)
}
func (m *MockRequestService) Create(ctx context.Context, in services.CreateRequestInput) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}
func (m *MockRequestService) RetrieveForShop(ctx context.Context, email string) ([]models.RepairRequest, error) {
	return m.requests(m.Called(ctx, email))
}
func (m *MockRequestService) Answer(ctx context.Context, in services.AnswerInput, pdf *services.Attachment) error {
	return m.Called(ctx, in, pdf).Error(0)
}
func (m *MockRequestService) GetPDF(ctx context.Context, fileName string) ([]byte, error) {
	args := m.Called(ctx, fileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
func (m *MockRequestService) RetrieveUserSent(ctx context.Context, email string) ([]models.RepairRequest, error) {
	return m.requests(m.Called(ctx, email))
}
func (m *MockRequestService) DeleteJob(ctx context.Context, requestID, customerMessageID string) error {
	return m.Called(ctx, requestID, customerMessageID).Error(0)
}
func (m *MockRequestService) FetchJobResponse(ctx context.Context, customerMessageID string) ([]services.JobResponse, error) {
	args := m.Called(ctx, customerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.JobResponse), args.Error(1)
}
func (m *MockRequestService) FindByRequestIDs(ctx context.Context, requestIDs []string) ([]models.RepairRequest, error) {
	return m.requests(m.Called(ctx, requestIDs))
}

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, in services.RegisterInput, clientIP string) error {
	return m.Called(ctx, in, clientIP).Error(0)
}
func (m *MockUserService) RegisterRepairShop(ctx context.Context, in services.RegisterInput, clientIP string) error {
	return m.Called(ctx, in, clientIP).Error(0)
}
func (m *MockUserService) VerifyUser(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}
func (m *MockUserService) ResendCode(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}
func (m *MockUserService) SignIn(ctx context.Context, email, password string) (*services.SignInResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SignInResult), args.Error(1)
}
func (m *MockUserService) DeleteAccount(ctx context.Context, uid string) (*services.DeletionResult, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DeletionResult), args.Error(1)
}
func (m *MockUserService) CancelDelete(ctx context.Context, uid string) error {
	return m.Called(ctx, uid).Error(0)
}
func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserService) FindByUID(ctx context.Context, uid string) (*models.User, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserService) FindRepairShops(ctx context.Context, uids []string) ([]models.User, error) {
	args := m.Called(ctx, uids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}
func (m *MockUserService) CheckTrialPeriod(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

// MockSubscriptionService
type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) SaveSettings(ctx context.Context, in services.ShopSettingsInput, onboarding bool) error {
	return m.Called(ctx, in, onboarding).Error(0)
}
func (m *MockSubscriptionService) VerifySubscription(ctx context.Context, sessionID string) (*services.SubscriptionStatus, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.SubscriptionStatus), args.Error(1)
}
func (m *MockSubscriptionService) Unsubscribe(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

// MockPaymentService
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) CreateIntent(ctx context.Context, in services.PaymentIntentInput) (*services.PaymentIntentResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PaymentIntentResult), args.Error(1)
}

// MockContactService
type MockContactService struct {
	mock.Mock
}

func (m *MockContactService) Send(ctx context.Context, in services.ContactInput) error {
	return m.Called(ctx, in).Error(0)
}

// MockContentService
type MockContentService struct {
	mock.Mock
}

func (m *MockContentService) ListProspects(ctx context.Context) ([]models.ProspectShop, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ProspectShop), args.Error(1)
}
func (m *MockContentService) SaveProspect(ctx context.Context, shop models.ProspectShop) error {
	return m.Called(ctx, shop).Error(0)
}
func (m *MockContentService) DeleteProspect(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}
func (m *MockContentService) UploadImage(ctx context.Context, articleID string, image services.Attachment) (*services.UploadedImage, error) {
	args := m.Called(ctx, articleID, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.UploadedImage), args.Error(1)
}
func (m *MockContentService) SaveArticle(ctx context.Context, articleID, content string, image *services.Attachment) error {
	return m.Called(ctx, articleID, content, image).Error(0)
}
func (m *MockContentService) FetchArticles(ctx context.Context) ([]models.Article, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Article), args.Error(1)
}

// MockEmailTemplateService
type MockEmailTemplateService struct {
	mock.Mock
}

func (m *MockEmailTemplateService) GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	args := m.Called(ctx, templateID, locale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EmailTemplate), args.Error(1)
}
func (m *MockEmailTemplateService) SaveTemplate(ctx context.Context, template *models.EmailTemplate) error {
	return m.Called(ctx, template).Error(0)
}
func (m *MockEmailTemplateService) DeleteTemplate(ctx context.Context, templateID, locale string) error {
	return m.Called(ctx, templateID, locale).Error(0)
}

// MockConfigService
type MockConfigService struct {
	mock.Mock
}

func (m *MockConfigService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}
func (m *MockConfigService) Get(ctx context.Context, key string) (interface{}, error) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Error(1)
}
func (m *MockConfigService) GetInt(ctx context.Context, key string, defaultValue int) int {
	return defaultValue
}
func (m *MockConfigService) GetString(ctx context.Context, key string, defaultValue string) string {
	return defaultValue
}
func (m *MockConfigService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	return defaultValue
}
func (m *MockConfigService) GetFloat64(ctx context.Context, key string, defaultValue float64) float64 {
	return defaultValue
}
func (m *MockConfigService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	return defaultValue
}
func (m *MockConfigService) Load(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockConfigService) SubscribeToChanges(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockConfigService) SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	return m.Called(ctx, key, value, isPublic).Error(0)
}
