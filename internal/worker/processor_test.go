package worker_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/services"
	"github.com/K3mp3/FixMatch/internal/storage"
	"github.com/K3mp3/FixMatch/internal/tasks"
	"github.com/K3mp3/FixMatch/internal/worker"
)

// --- Mocks ---

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	args := m.Called(ctx, to, subject, rawMessage)
	return args.Error(0)
}

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

type MockLifecycleService struct {
	mock.Mock
}

func (m *MockLifecycleService) SweepInactive(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockLifecycleService) DeleteScheduled(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockLifecycleService) SweepUnverified(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockLifecycleService) RemindTrialEnding(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockLifecycleService) NotifyOffers(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockLifecycleService) PurgeExpired(ctx context.Context) (*services.PurgeResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.PurgeResult), args.Error(1)
}

func (m *MockLifecycleService) RelayOutbox(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// --- Helpers ---

func emailTask(t *testing.T, p tasks.EmailTaskPayload) *asynq.Task {
	t.Helper()
	task, err := tasks.NewEmailTask(p)
	require.NoError(t, err)
	return task
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// --- Email ---

func TestHandleEmailDeliveryTask_Success(t *testing.T) {
	sender := new(MockEmailSender)
	tmpls := new(MockEmailTemplateService)
	cfg := &config.Config{SmtpFromAddress: "noreply@fixmatch.se", DefaultLocale: "sv-SE"}
	p := worker.NewTaskProcessor(cfg, sender, tmpls, nil, nil)

	tmpls.On("GetTemplate", mock.Anything, "booking_confirmation", "sv-SE").Return(&models.EmailTemplate{
		Subject: "Bokning hos {{.shopName}}",
		Body:    "Hej {{.userName}}, din tid är {{.date}}.",
	}, nil)

	sender.On("Send",
		mock.Anything,
		[]string{"kund@example.com"},
		"Bokning hos Bilverkstan",
		mock.MatchedBy(func(raw []byte) bool {
			msg := string(raw)
			return assert.Contains(t, msg, "To: kund@example.com") &&
				assert.Contains(t, msg, "From: noreply@fixmatch.se") &&
				assert.Contains(t, msg, "X-Template-ID: booking_confirmation") &&
				assert.Contains(t, msg, "Hej Anna, din tid är 2025-03-14.")
		}),
	).Return(nil)

	err := p.HandleEmailDeliveryTask(context.Background(), emailTask(t, tasks.EmailTaskPayload{
		To:         "kund@example.com",
		TemplateID: "booking_confirmation",
		Data:       map[string]string{"shopName": "Bilverkstan", "userName": "Anna", "date": "2025-03-14"},
	}))

	assert.NoError(t, err)
	tmpls.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestHandleEmailDeliveryTask_EscapesValuesInBody(t *testing.T) {
	sender := new(MockEmailSender)
	tmpls := new(MockEmailTemplateService)
	p := worker.NewTaskProcessor(&config.Config{DefaultLocale: "sv-SE"}, sender, tmpls, nil, nil)

	tmpls.On("GetTemplate", mock.Anything, "contact_form", "sv-SE").Return(&models.EmailTemplate{
		Subject: "Meddelande från {{.name}}",
		Body:    "<p>{{.name}} skriver: {{.message}}</p><p>{{.missing}}</p>",
	}, nil)

	sender.On("Send",
		mock.Anything,
		[]string{"info@fixmatch.se"},
		"Meddelande från Eva <3",
		mock.MatchedBy(func(raw []byte) bool {
			msg := string(raw)
			return assert.Contains(t, msg, "Content-Type: text/html") &&
				assert.Contains(t, msg, "<p>Eva &lt;3 skriver: &lt;script&gt;alert(1)&lt;/script&gt;</p><p></p>") &&
				assert.NotContains(t, msg, "<script>")
		}),
	).Return(nil)

	err := p.HandleEmailDeliveryTask(context.Background(), emailTask(t, tasks.EmailTaskPayload{
		To:         "info@fixmatch.se",
		TemplateID: "contact_form",
		Data:       map[string]string{"name": "Eva <3", "message": "<script>alert(1)</script>"},
	}))

	assert.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestHandleEmailDeliveryTask_BrokenTemplateIsNotRetried(t *testing.T) {
	sender := new(MockEmailSender)
	tmpls := new(MockEmailTemplateService)
	p := worker.NewTaskProcessor(&config.Config{DefaultLocale: "sv-SE"}, sender, tmpls, nil, nil)

	tmpls.On("GetTemplate", mock.Anything, "contact_form", "sv-SE").Return(&models.EmailTemplate{
		Subject: "Kontakt",
		Body:    "<p>{{.name</p>",
	}, nil)

	err := p.HandleEmailDeliveryTask(context.Background(), emailTask(t, tasks.EmailTaskPayload{
		To: "info@fixmatch.se", TemplateID: "contact_form",
	}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEmailDeliveryTask_TemplateNotFound(t *testing.T) {
	sender := new(MockEmailSender)
	tmpls := new(MockEmailTemplateService)
	p := worker.NewTaskProcessor(&config.Config{DefaultLocale: "sv-SE"}, sender, tmpls, nil, nil)

	tmpls.On("GetTemplate", mock.Anything, "nope", "en-US").Return(nil, services.ErrNotFound)

	err := p.HandleEmailDeliveryTask(context.Background(), emailTask(t, tasks.EmailTaskPayload{
		To: "kund@example.com", TemplateID: "nope", Locale: "en-US",
	}))

	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEmailDeliveryTask_TemplateLookupFailsIsRetried(t *testing.T) {
	tmpls := new(MockEmailTemplateService)
	p := worker.NewTaskProcessor(&config.Config{DefaultLocale: "sv-SE"}, new(MockEmailSender), tmpls, nil, nil)

	tmpls.On("GetTemplate", mock.Anything, "booking_confirmation", "sv-SE").Return(nil, errors.New("connection reset"))

	err := p.HandleEmailDeliveryTask(context.Background(), emailTask(t, tasks.EmailTaskPayload{
		To: "kund@example.com", TemplateID: "booking_confirmation",
	}))

	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleEmailDeliveryTask_SendFailureIsRetried(t *testing.T) {
	sender := new(MockEmailSender)
	tmpls := new(MockEmailTemplateService)
	p := worker.NewTaskProcessor(&config.Config{DefaultLocale: "sv-SE"}, sender, tmpls, nil, nil)

	tmpls.On("GetTemplate", mock.Anything, "contact_us", "sv-SE").Return(&models.EmailTemplate{Subject: "Kontakt", Body: "x"}, nil)
	sender.On("Send", mock.Anything, []string{"info@fixmatch.se"}, "Kontakt", mock.Anything).Return(errors.New("smtp down"))

	err := p.HandleEmailDeliveryTask(context.Background(), emailTask(t, tasks.EmailTaskPayload{
		To: "info@fixmatch.se", TemplateID: "contact_us",
	}))

	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	sender.AssertExpectations(t)
}

func TestHandleEmailDeliveryTask_BadPayload(t *testing.T) {
	p := worker.NewTaskProcessor(&config.Config{}, new(MockEmailSender), new(MockEmailTemplateService), nil, nil)

	err := p.HandleEmailDeliveryTask(context.Background(), asynq.NewTask(tasks.TypeEmailDelivery, []byte("{not json")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	payload, _ := json.Marshal(tasks.EmailTaskPayload{TemplateID: "contact_us"})
	err = p.HandleEmailDeliveryTask(context.Background(), asynq.NewTask(tasks.TypeEmailDelivery, payload))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

// --- Images ---

func TestHandleImageProcessTask_ResizesLargeImage(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMemoryStorage("https://cdn.example.com")
	require.NoError(t, objects.Put(ctx, "articles/a1/big.png", "image/png", pngOf(t, 400, 200)))

	p := worker.NewTaskProcessor(&config.Config{ImageMaxDimension: 100, ImageMaxSizeMB: 1}, nil, nil, objects, nil)
	task, err := tasks.NewImageTask(tasks.ImageTaskPayload{S3Key: "articles/a1/big.png", ArticleID: "a1"})
	require.NoError(t, err)

	require.NoError(t, p.HandleImageProcessTask(ctx, task))

	data, err := objects.Get(ctx, "articles/a1/big.png")
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
	assert.Equal(t, "image/jpeg", objects.ContentType("articles/a1/big.png"))
}

func TestHandleImageProcessTask_SmallImageUntouched(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMemoryStorage("")
	original := pngOf(t, 40, 30)
	require.NoError(t, objects.Put(ctx, "articles/a2/small.png", "image/png", original))

	p := worker.NewTaskProcessor(&config.Config{ImageMaxDimension: 100, ImageMaxSizeMB: 1}, nil, nil, objects, nil)
	task, _ := tasks.NewImageTask(tasks.ImageTaskPayload{S3Key: "articles/a2/small.png", ArticleID: "a2"})

	require.NoError(t, p.HandleImageProcessTask(ctx, task))

	data, err := objects.Get(ctx, "articles/a2/small.png")
	require.NoError(t, err)
	assert.Equal(t, original, data)
}

func TestHandleImageProcessTask_NonRetryableFailures(t *testing.T) {
	ctx := context.Background()
	objects := storage.NewMemoryStorage("")
	require.NoError(t, objects.Put(ctx, "articles/a3/broken.png", "image/png", []byte("not an image")))
	p := worker.NewTaskProcessor(&config.Config{ImageMaxDimension: 100, ImageMaxSizeMB: 1}, nil, nil, objects, nil)

	tests := []struct {
		name string
		key  string
	}{
		{"missing object", "articles/a3/missing.png"},
		{"undecodable", "articles/a3/broken.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, _ := tasks.NewImageTask(tasks.ImageTaskPayload{S3Key: tt.key, ArticleID: "a3"})
			err := p.HandleImageProcessTask(ctx, task)
			require.Error(t, err)
			assert.True(t, errors.Is(err, asynq.SkipRetry))
		})
	}
}

// --- Lifecycle jobs ---

func TestHandleJobTask_DispatchesByType(t *testing.T) {
	tests := []struct {
		taskType string
		method   string
	}{
		{tasks.TypeInactivitySweep, "SweepInactive"},
		{tasks.TypeScheduledDeletion, "DeleteScheduled"},
		{tasks.TypeUnverifiedSweep, "SweepUnverified"},
		{tasks.TypeTrialReminder, "RemindTrialEnding"},
		{tasks.TypeOfferNotifier, "NotifyOffers"},
		{tasks.TypeOutboxRelay, "RelayOutbox"},
	}
	for _, tt := range tests {
		t.Run(tt.taskType, func(t *testing.T) {
			lc := new(MockLifecycleService)
			lc.On(tt.method, mock.Anything).Return(3, nil).Once()
			p := worker.NewTaskProcessor(&config.Config{}, nil, nil, nil, lc)

			task, err := tasks.NewJobTask(tt.taskType, time.Now(), 0, time.Minute)
			require.NoError(t, err)
			assert.NoError(t, p.HandleJobTask(context.Background(), task))
			lc.AssertExpectations(t)
		})
	}
}

func TestHandleJobTask_RetentionPurge(t *testing.T) {
	lc := new(MockLifecycleService)
	lc.On("PurgeExpired", mock.Anything).Return(&services.PurgeResult{RequestsDeleted: 1, TotalDeleted: 1}, nil)
	p := worker.NewTaskProcessor(&config.Config{}, nil, nil, nil, lc)

	task, _ := tasks.NewJobTask(tasks.TypeRetentionPurge, time.Now(), 0, time.Minute)
	assert.NoError(t, p.HandleJobTask(context.Background(), task))
	lc.AssertExpectations(t)
}

func TestHandleJobTask_Errors(t *testing.T) {
	lc := new(MockLifecycleService)
	lc.On("NotifyOffers", mock.Anything).Return(1, errors.New("mongo timeout"))
	p := worker.NewTaskProcessor(&config.Config{}, nil, nil, nil, lc)

	task, _ := tasks.NewJobTask(tasks.TypeOfferNotifier, time.Now(), 0, time.Minute)
	err := p.HandleJobTask(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo timeout")

	err = p.HandleJobTask(context.Background(), asynq.NewTask("lifecycle:unknown", nil))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestRegisterByRole(t *testing.T) {
	p := worker.NewTaskProcessor(&config.Config{}, nil, nil, nil, new(MockLifecycleService))

	bg := asynq.NewServeMux()
	p.Register(bg, false, true)
	_, pattern := bg.Handler(asynq.NewTask(tasks.TypeEmailDelivery, nil))
	assert.Equal(t, tasks.TypeEmailDelivery, pattern)
	_, pattern = bg.Handler(asynq.NewTask(tasks.TypeImageProcess, nil))
	assert.Empty(t, pattern)

	img := asynq.NewServeMux()
	p.Register(img, true, false)
	_, pattern = img.Handler(asynq.NewTask(tasks.TypeImageProcess, nil))
	assert.Equal(t, tasks.TypeImageProcess, pattern)
	_, pattern = img.Handler(asynq.NewTask(tasks.TypeRetentionPurge, nil))
	assert.Empty(t, pattern)
}
