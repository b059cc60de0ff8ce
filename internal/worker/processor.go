// Package worker runs the asynq task handlers for email delivery, image
// normalization and the scheduled lifecycle jobs.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"

	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/email"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/services"
	"github.com/K3mp3/FixMatch/internal/storage"
	"github.com/K3mp3/FixMatch/internal/tasks"
)

const fallbackFromAddress = "noreply@fixmatch.se"

// TemplateSource resolves an email template for a locale.
type TemplateSource interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
}

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg         *config.Config
	emailSender email.Sender
	templates   TemplateSource
	objects     storage.IObjectStorage
	lifecycle   services.ILifecycleService
	now         func() time.Time
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	templates TemplateSource,
	objects storage.IObjectStorage,
	lifecycle services.ILifecycleService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:         cfg,
		emailSender: emailSender,
		templates:   templates,
		objects:     objects,
		lifecycle:   lifecycle,
		now:         time.Now,
	}
}

// SetupServer builds the asynq server and registers the handlers that belong
// to the given worker roles. It returns nil when neither role is enabled.
func SetupServer(rdb *redis.Client, processor *TaskProcessor, isImageWorker bool, isBgWorker bool) (*asynq.Server, *asynq.ServeMux) {
	if !isBgWorker && !isImageWorker {
		log.Println("No worker role enabled, task server not created.")
		return nil, nil
	}

	queues := map[string]int{}
	if isBgWorker {
		queues[tasks.QueueCritical] = tasks.Queues[tasks.QueueCritical]
		queues[tasks.QueueDefault] = tasks.Queues[tasks.QueueDefault]
		queues[tasks.QueueLow] = tasks.Queues[tasks.QueueLow]
	}
	if isImageWorker {
		queues[tasks.QueueImages] = tasks.Queues[tasks.QueueImages]
	}

	srv := asynq.NewServer(
		tasks.RedisOpt(rdb),
		asynq.Config{
			Queues: queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				fmt.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v\n", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	processor.Register(mux, isImageWorker, isBgWorker)
	return srv, mux
}

// Register adds the handlers for the enabled roles to mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux, isImageWorker bool, isBgWorker bool) {
	if isBgWorker {
		mux.HandleFunc(tasks.TypeEmailDelivery, p.HandleEmailDeliveryTask)
		for _, typ := range tasks.JobTypes() {
			mux.HandleFunc(typ, p.HandleJobTask)
		}
		log.Println("Registered background task handlers (email & lifecycle jobs).")
	}
	if isImageWorker {
		mux.HandleFunc(tasks.TypeImageProcess, p.HandleImageProcessTask)
		log.Println("Registered image processing task handlers.")
	}
}

// HandleEmailDeliveryTask renders a template email and hands it to the sender.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.To == "" {
		return fmt.Errorf("email task has no recipient: %w", asynq.SkipRetry)
	}

	locale := payload.Locale
	if locale == "" {
		locale = p.cfg.DefaultLocale
	}

	tmpl, err := p.templates.GetTemplate(ctx, payload.TemplateID, locale)
	if err != nil {
		log.Printf("Error getting email template %s/%s: %v", payload.TemplateID, locale, err)
		if errors.Is(err, services.ErrNotFound) {
			return fmt.Errorf("email template not found: %w", asynq.SkipRetry)
		}
		return err
	}

	subject, body, err := render(tmpl, payload.Data)
	if err != nil {
		log.Printf("Error rendering email template %s/%s: %v", payload.TemplateID, locale, err)
		return fmt.Errorf("failed to render email template: %v: %w", err, asynq.SkipRetry)
	}

	from := p.cfg.SmtpFromAddress
	if from == "" {
		from = fallbackFromAddress
	}
	msg := email.Message{
		From:       from,
		To:         payload.To,
		Subject:    subject,
		Body:       body,
		HTML:       true,
		TemplateID: payload.TemplateID,
		Date:       p.now(),
	}

	if err := p.emailSender.Send(ctx, []string{payload.To}, subject, msg.Bytes()); err != nil {
		log.Printf("Email sending failed: To=%s, Template=%s: %v", payload.To, payload.TemplateID, err)
		return err
	}

	log.Printf("Email task processed successfully: To=%s, Template=%s", payload.To, payload.TemplateID)
	return nil
}

// render executes the subject as text and the body as HTML, so values are
// escaped for the body. Missing keys render empty.
func render(tmpl *models.EmailTemplate, data map[string]string) (string, string, error) {
	subjectTmpl, err := texttemplate.New("subject").Option("missingkey=zero").Parse(tmpl.Subject)
	if err != nil {
		return "", "", fmt.Errorf("subject: %w", err)
	}
	bodyTmpl, err := htmltemplate.New("body").Option("missingkey=zero").Parse(tmpl.Body)
	if err != nil {
		return "", "", fmt.Errorf("body: %w", err)
	}

	var subject, body strings.Builder
	if err := subjectTmpl.Execute(&subject, data); err != nil {
		return "", "", fmt.Errorf("subject: %w", err)
	}
	if err := bodyTmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("body: %w", err)
	}
	return subject.String(), body.String(), nil
}

// HandleImageProcessTask shrinks an uploaded article image to the configured
// maximum dimension and writes it back under the same key.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Processing image task: S3Key=%s, ArticleID=%s", payload.S3Key, payload.ArticleID)

	imgData, err := p.objects.Get(ctx, payload.S3Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Printf("Image %s not found, likely upload failed or key incorrect.", payload.S3Key)
			return fmt.Errorf("image object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download image: %w", err)
	}

	maxSizeBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if maxSizeBytes > 0 && int64(len(imgData)) > maxSizeBytes {
		log.Printf("Image %s exceeds max size (%d > %d bytes). Skipping.", payload.S3Key, len(imgData), maxSizeBytes)
		return fmt.Errorf("image exceeds max size: %w", asynq.SkipRetry)
	}

	img, format, err := image.Decode(bytes.NewReader(imgData))
	if err != nil {
		log.Printf("Error decoding image for key %s: %v", payload.S3Key, err)
		return fmt.Errorf("unsupported image format or corrupt image: %w", asynq.SkipRetry)
	}

	maxDim := uint(p.cfg.ImageMaxDimension)
	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	if maxDim == 0 || (uint(width) <= maxDim && uint(height) <= maxDim) {
		log.Printf("Image %s (%s, %dx%d) within limits, nothing to do.", payload.S3Key, format, width, height)
		return nil
	}

	resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return fmt.Errorf("failed to re-encode resized image: %w", err)
	}
	if maxSizeBytes > 0 && int64(buf.Len()) > maxSizeBytes {
		return fmt.Errorf("resized image still exceeds max size: %w", asynq.SkipRetry)
	}

	if err := p.objects.Put(ctx, payload.S3Key, http.DetectContentType(buf.Bytes()), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to upload processed image: %w", err)
	}

	log.Printf("Resized image %s from %dx%d to %dx%d", payload.S3Key, width, height, resized.Bounds().Dx(), resized.Bounds().Dy())
	return nil
}

// HandleJobTask runs the lifecycle job named by the task type.
func (p *TaskProcessor) HandleJobTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.JobTaskPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal job payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	started := p.now()
	var (
		n   int
		err error
	)
	switch t.Type() {
	case tasks.TypeInactivitySweep:
		n, err = p.lifecycle.SweepInactive(ctx)
	case tasks.TypeScheduledDeletion:
		n, err = p.lifecycle.DeleteScheduled(ctx)
	case tasks.TypeUnverifiedSweep:
		n, err = p.lifecycle.SweepUnverified(ctx)
	case tasks.TypeTrialReminder:
		n, err = p.lifecycle.RemindTrialEnding(ctx)
	case tasks.TypeOfferNotifier:
		n, err = p.lifecycle.NotifyOffers(ctx)
	case tasks.TypeOutboxRelay:
		n, err = p.lifecycle.RelayOutbox(ctx)
	case tasks.TypeRetentionPurge:
		var res *services.PurgeResult
		res, err = p.lifecycle.PurgeExpired(ctx)
		if res != nil {
			n = res.TotalDeleted
			log.Printf("Retention purge: requests=%d bookings=%d payments=%d pdfs=%d",
				res.RequestsDeleted, res.BookingsDeleted, res.PaymentsDeleted, res.PDFFilesDeleted)
		}
	default:
		return fmt.Errorf("unknown job type %q: %w", t.Type(), asynq.SkipRetry)
	}

	if err != nil {
		log.Printf("Job %s (tick %s) failed after %d records: %v", t.Type(), payload.ScheduledAt.Format(time.RFC3339), n, err)
		return fmt.Errorf("job %s: %w", t.Type(), err)
	}
	log.Printf("Job %s (tick %s) handled %d records in %s", t.Type(), payload.ScheduledAt.Format(time.RFC3339), n, p.now().Sub(started))
	return nil
}
