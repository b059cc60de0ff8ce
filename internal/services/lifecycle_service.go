package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/K3mp3/FixMatch/internal/billing"
	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/events"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/storage"
	"github.com/K3mp3/FixMatch/internal/utils"
)

const (
	trialReminderDays = 14

	offersReadyDelay = 3 * time.Hour
	noOffersDelay    = 24 * time.Hour
)

// PurgeResult counts what the retention purge removed.
type PurgeResult struct {
	RequestsDeleted int `json:"contactRepairShopsDeleted"`
	BookingsDeleted int `json:"bookingsDeleted"`
	PaymentsDeleted int `json:"bookingPaymentsDeleted"`
	PDFFilesDeleted int `json:"pdfFilesDeleted"`
	TotalDeleted    int `json:"totalDeleted"`
}

// ILifecycleService runs the scheduled account and data maintenance jobs.
// Every job processes records independently and returns how many it handled.
type ILifecycleService interface {
	SweepInactive(ctx context.Context) (int, error)
	DeleteScheduled(ctx context.Context) (int, error)
	SweepUnverified(ctx context.Context) (int, error)
	RemindTrialEnding(ctx context.Context) (int, error)
	NotifyOffers(ctx context.Context) (int, error)
	PurgeExpired(ctx context.Context) (*PurgeResult, error)
	RelayOutbox(ctx context.Context) (int, error)
}

type lifecycleService struct {
	db            *mongo.Database
	cfg           *config.Config
	configService IConfigService
	identities    IIdentityService
	notifier      INotificationService
	billing       billing.Provider
	objects       storage.IObjectStorage
	txm           db.TransactionManager
	publisher     events.Publisher
	now           func() time.Time
}

// NewLifecycleService creates a new ILifecycleService.
func NewLifecycleService(
	db *mongo.Database,
	cfg *config.Config,
	configService IConfigService,
	identities IIdentityService,
	notifier INotificationService,
	billingProvider billing.Provider,
	objects storage.IObjectStorage,
	txm db.TransactionManager,
	publisher events.Publisher,
) ILifecycleService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &lifecycleService{
		db:            db,
		cfg:           cfg,
		configService: configService,
		identities:    identities,
		notifier:      notifier,
		billing:       billingProvider,
		objects:       objects,
		txm:           txm,
		publisher:     publisher,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *lifecycleService) findUsers(ctx context.Context, filter bson.M) ([]models.User, error) {
	cursor, err := s.db.Collection(usersCollection).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error finding users: %w", err)
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("error decoding users: %w", err)
	}
	return users, nil
}

// cleanupBilling ends the billing relationship. Failures are logged and never block the deletion.
func (s *lifecycleService) cleanupBilling(ctx context.Context, u *models.User) {
	if u.Session() == "" {
		return
	}
	if err := billing.CleanupAccount(ctx, s.billing, u.Session(), u.Email); err != nil {
		log.Printf("Failed to clean up billing data for %s: %v", u.Email, err)
	}
}

// purgeAccount removes the identity, the user and, for shops, their answers and bookings.
func (s *lifecycleService) purgeAccount(ctx context.Context, u *models.User, scrubShopData bool) error {
	err := s.txm.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.identities.DeleteIdentity(ctx, u.UID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if scrubShopData {
			if err := s.scrubShopData(ctx, u.UID); err != nil {
				return err
			}
		}
		if _, err := s.db.Collection(usersCollection).DeleteOne(ctx, bson.M{"_id": u.ID}); err != nil {
			return fmt.Errorf("error deleting user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, events.Event{
		Type:       events.AccountDeleted,
		Key:        u.UID,
		OccurredAt: s.now(),
		Attributes: map[string]string{"repairShop": strconv.FormatBool(u.RepairShop)},
	}); err != nil {
		log.Printf("Failed to publish %s for %s: %v", events.AccountDeleted, u.UID, err)
	}
	return nil
}

func (s *lifecycleService) scrubShopData(ctx context.Context, uid string) error {
	res, err := s.db.Collection(requestsCollection).UpdateMany(ctx,
		bson.M{"repairShopAnswers.uuid": uid},
		bson.M{"$pull": bson.M{"repairShopAnswers": bson.M{"uuid": uid}}},
	)
	if err != nil {
		return fmt.Errorf("error removing answers: %w", err)
	}
	if res.ModifiedCount > 0 {
		log.Printf("Removed answers of %s from %d requests", uid, res.ModifiedCount)
	}

	deleted, err := s.db.Collection(bookingsCollection).DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"acceptedByRepairShop.uid": uid},
		bson.M{"suggestedDates.uid": uid},
		bson.M{"repairShopUid": uid},
	}})
	if err != nil {
		return fmt.Errorf("error deleting bookings: %w", err)
	}
	if deleted.DeletedCount > 0 {
		log.Printf("Cleared %d bookings of %s", deleted.DeletedCount, uid)
	}
	return nil
}

// SweepInactive removes accounts that have not signed in within the inactivity period.
func (s *lifecycleService) SweepInactive(ctx context.Context) (int, error) {
	period := s.configService.GetDuration(ctx, ConfigInactivityPeriod, s.cfg.InactivityPeriod)
	cutoff := s.now().Add(-period)
	users, err := s.findUsers(ctx, bson.M{"lastSignIn": bson.M{"$lte": cutoff}})
	if err != nil {
		return 0, err
	}
	log.Printf("Found %d users inactive since %s", len(users), cutoff.Format(time.RFC3339))

	removed := 0
	for i := range users {
		u := &users[i]
		if u.RepairShop {
			s.cleanupBilling(ctx, u)
		}
		if err := s.purgeAccount(ctx, u, u.RepairShop); err != nil {
			log.Printf("Error processing deletion for inactive user %s: %v", u.Email, err)
			continue
		}
		removed++
		if err := s.notifier.Dispatch(ctx, u.Email, TemplateInactiveAccountRemoved, map[string]string{"userName": u.Name}); err != nil {
			log.Printf("Failed to dispatch removal notice to %s: %v", u.Email, err)
		}
	}
	return removed, nil
}

// DeleteScheduled purges accounts whose deletion date has passed.
func (s *lifecycleService) DeleteScheduled(ctx context.Context) (int, error) {
	users, err := s.findUsers(ctx, bson.M{"deleted": bson.M{"$lte": s.now()}})
	if err != nil {
		return 0, err
	}
	log.Printf("Found %d users scheduled for deletion", len(users))

	removed := 0
	for i := range users {
		u := &users[i]
		s.cleanupBilling(ctx, u)
		if err := s.purgeAccount(ctx, u, true); err != nil {
			log.Printf("Error processing deletion for user %s: %v", u.Email, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// SweepUnverified removes registrations that were never verified in time.
func (s *lifecycleService) SweepUnverified(ctx context.Context) (int, error) {
	users, err := s.findUsers(ctx, bson.M{"verified": false, "expiresAt": bson.M{"$lt": s.now()}})
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range users {
		u := &users[i]
		s.cleanupBilling(ctx, u)
		if err := s.identities.DeleteIdentity(ctx, u.UID); err != nil && !errors.Is(err, ErrNotFound) {
			log.Printf("Error deleting identity of unverified user %s: %v", u.Email, err)
		}
		if _, err := s.db.Collection(temporaryUsersCollection).DeleteMany(ctx, bson.M{"email": u.Email}); err != nil {
			log.Printf("Error deleting temporary registration of %s: %v", u.Email, err)
			continue
		}
		if _, err := s.db.Collection(usersCollection).DeleteOne(ctx, bson.M{"_id": u.ID}); err != nil {
			log.Printf("Error deleting unverified user %s: %v", u.Email, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// DueForTrialReminder reports whether the shop's trial ends in about two weeks.
func DueForTrialReminder(createdAt time.Time, trialDays float64, now time.Time) bool {
	remaining := utils.TrialDaysRemaining(createdAt, trialDays, now)
	return remaining >= trialReminderDays-1 && remaining <= trialReminderDays+1
}

// RemindTrialEnding emails shops whose trial ends in about two weeks. Each shop is reminded once.
func (s *lifecycleService) RemindTrialEnding(ctx context.Context) (int, error) {
	users, err := s.findUsers(ctx, bson.M{
		"repairShop":          true,
		"deleted":             nil,
		"trialEndingNotified": bson.M{"$ne": true},
	})
	if err != nil {
		return 0, err
	}

	now := s.now()
	trialDays := s.configService.GetFloat64(ctx, ConfigTrialPeriodDays, s.cfg.TrialPeriodDays)
	notified := 0
	for i := range users {
		u := &users[i]
		if u.CreatedAt.IsZero() || !DueForTrialReminder(u.CreatedAt, trialDays, now) {
			continue
		}

		res, err := s.db.Collection(usersCollection).UpdateOne(ctx,
			bson.M{"_id": u.ID, "trialEndingNotified": bson.M{"$ne": true}},
			bson.M{"$set": bson.M{"trialEndingNotified": true, "trialEndingNotifiedDate": now}},
		)
		if err != nil {
			log.Printf("Error claiming trial reminder for %s: %v", u.Email, err)
			continue
		}
		if res.ModifiedCount == 0 {
			continue
		}

		err = s.notifier.Dispatch(ctx, u.Email, TemplateTrialEnding, map[string]string{
			"daysRemaining": strconv.Itoa(trialReminderDays),
			"trialEndDate":  utils.FormatShortSv(utils.TrialEnd(u.CreatedAt, trialDays), s.cfg.Location()),
		})
		if err != nil {
			log.Printf("Error sending trial ending notification to %s: %v", u.Email, err)
			s.releaseClaim(ctx, usersCollection, u.ID, "trialEndingNotified", "trialEndingNotifiedDate")
			continue
		}
		notified++
	}
	log.Printf("Completed trial end notifications. Notified %d users.", notified)
	return notified, nil
}

// releaseClaim clears a notification flag so the next run sends again.
func (s *lifecycleService) releaseClaim(ctx context.Context, collection, id string, fields ...string) {
	unset := bson.M{}
	for _, f := range fields {
		unset[f] = ""
	}
	if _, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$unset": unset}); err != nil {
		log.Printf("Failed to release %s claim on %s: %v", collection, id, err)
	}
}

// OfferNotice returns the template to send for a request at now, or "" when none is due.
func OfferNotice(r *models.RepairRequest, now time.Time) string {
	if r.OffersNotificationSent {
		return ""
	}
	switch {
	case len(r.RepairShopAnswers) > 0 && now.After(r.ValidDate.Add(offersReadyDelay)):
		return TemplateOffersReady
	case len(r.RepairShopAnswers) == 0 && now.After(r.ValidDate.Add(noOffersDelay)):
		return TemplateNoOffers
	}
	return ""
}

// NotifyOffers tells customers whose request has closed whether offers came in.
func (s *lifecycleService) NotifyOffers(ctx context.Context) (int, error) {
	now := s.now()
	collection := s.db.Collection(requestsCollection)
	cursor, err := collection.Find(ctx, bson.M{
		"offersNotificationSent": bson.M{"$ne": true},
		"validDate":              bson.M{"$lt": now.Add(-offersReadyDelay)},
	})
	if err != nil {
		return 0, fmt.Errorf("error finding requests: %w", err)
	}
	var requests []models.RepairRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return 0, fmt.Errorf("error decoding requests: %w", err)
	}

	sent := 0
	for i := range requests {
		r := &requests[i]
		templateID := OfferNotice(r, now)
		if templateID == "" {
			continue
		}

		// Claim the request first so concurrent runs never send twice.
		res, err := collection.UpdateOne(ctx,
			bson.M{"_id": r.ID, "offersNotificationSent": bson.M{"$ne": true}},
			bson.M{"$set": bson.M{"offersNotificationSent": true, "offersNotificationDate": now}},
		)
		if err != nil {
			log.Printf("Error claiming notification for request %s: %v", r.ID, err)
			continue
		}
		if res.ModifiedCount == 0 {
			continue
		}

		jobType := "service"
		if len(r.CustomerMessage) > 0 && r.CustomerMessage[0].Type != "" {
			jobType = r.CustomerMessage[0].Type
		}
		err = s.notifier.Dispatch(ctx, r.CustomerEmail, templateID, map[string]string{
			"registrationNumber": r.RegistrationNumber,
			"type":               jobType,
			"location":           r.Location,
			"offerCount":         strconv.Itoa(len(r.RepairShopAnswers)),
		})
		if err != nil {
			log.Printf("Error sending %s notification for request %s: %v", templateID, r.ID, err)
			s.releaseClaim(ctx, requestsCollection, r.ID, "offersNotificationSent", "offersNotificationDate")
			continue
		}
		sent++
	}
	return sent, nil
}

// BookingExpired reports whether a booking's appointment lies before cutoff.
// dateAccepted wins over the stored accepted date string.
func BookingExpired(b *models.Booking, cutoff time.Time) bool {
	if b.DateAccepted != nil {
		return b.DateAccepted.Before(cutoff)
	}
	if b.SaveAcceptedDate == nil || b.SaveAcceptedDate.AcceptedDate == "" {
		return false
	}
	t, err := utils.ParseDate(b.SaveAcceptedDate.AcceptedDate)
	return err == nil && t.Before(cutoff)
}

// PurgeExpired deletes requests, bookings and payments older than the retention horizon.
func (s *lifecycleService) PurgeExpired(ctx context.Context) (*PurgeResult, error) {
	days := s.configService.GetInt(ctx, ConfigRetentionDays, s.cfg.RetentionDays)
	cutoff := s.now().AddDate(0, 0, -days)
	result := &PurgeResult{}

	if err := s.purgeRequests(ctx, cutoff, result); err != nil {
		return result, err
	}
	// Bookings and their payments go together.
	err := s.txm.WithTransaction(ctx, func(ctx context.Context) error {
		result.BookingsDeleted, result.PaymentsDeleted = 0, 0
		if err := s.purgeBookings(ctx, cutoff, result); err != nil {
			return err
		}
		res, err := s.db.Collection(bookingPaymentsCollection).DeleteMany(ctx, bson.M{"acceptedDate": bson.M{"$lt": cutoff}})
		if err != nil {
			return fmt.Errorf("error deleting booking payments: %w", err)
		}
		result.PaymentsDeleted = int(res.DeletedCount)
		return nil
	})
	if err != nil {
		return result, err
	}

	result.TotalDeleted = result.RequestsDeleted + result.BookingsDeleted + result.PaymentsDeleted
	log.Printf("Retention purge before %s: %d requests, %d bookings, %d payments, %d PDF files",
		cutoff.Format(time.RFC3339), result.RequestsDeleted, result.BookingsDeleted, result.PaymentsDeleted, result.PDFFilesDeleted)
	return result, nil
}

func (s *lifecycleService) purgeRequests(ctx context.Context, cutoff time.Time, result *PurgeResult) error {
	collection := s.db.Collection(requestsCollection)
	cursor, err := collection.Find(ctx, bson.M{"validDate": bson.M{"$lt": cutoff}})
	if err != nil {
		return fmt.Errorf("error finding expired requests: %w", err)
	}
	var requests []models.RepairRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return fmt.Errorf("error decoding expired requests: %w", err)
	}

	for _, r := range requests {
		for _, a := range r.RepairShopAnswers {
			if a.PDFFileName == "" {
				continue
			}
			err := s.objects.Delete(ctx, storage.PDFKey(a.PDFFileName))
			switch {
			case err == nil:
				result.PDFFilesDeleted++
			case errors.Is(err, storage.ErrObjectNotFound):
				log.Printf("PDF file not found: %s", a.PDFFileName)
			default:
				log.Printf("Error deleting PDF file %s: %v", a.PDFFileName, err)
			}
		}
		if _, err := collection.DeleteOne(ctx, bson.M{"_id": r.ID}); err != nil {
			log.Printf("Error deleting request %s: %v", r.ID, err)
			continue
		}
		result.RequestsDeleted++
	}
	return nil
}

func (s *lifecycleService) purgeBookings(ctx context.Context, cutoff time.Time, result *PurgeResult) error {
	collection := s.db.Collection(bookingsCollection)
	cursor, err := collection.Find(ctx, bson.M{"$or": bson.A{
		bson.M{"dateAccepted": bson.M{"$lt": cutoff}},
		bson.M{"dateAccepted": nil, "saveAcceptedDate.acceptedDate": bson.M{"$exists": true, "$ne": ""}},
	}})
	if err != nil {
		return fmt.Errorf("error finding expired bookings: %w", err)
	}
	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return fmt.Errorf("error decoding expired bookings: %w", err)
	}

	for i := range bookings {
		b := &bookings[i]
		if !BookingExpired(b, cutoff) {
			continue
		}
		if _, err := collection.DeleteOne(ctx, bson.M{"_id": b.ID}); err != nil {
			log.Printf("Error deleting booking %s: %v", b.ID, err)
			continue
		}
		result.BookingsDeleted++
	}
	return nil
}

func (s *lifecycleService) RelayOutbox(ctx context.Context) (int, error) {
	return s.notifier.RelayOutbox(ctx, 0)
}
