package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/K3mp3/FixMatch/internal/billing"
	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/events"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/utils"
)

const (
	bookingsCollection        = "bookings"
	bookingPaymentsCollection = "bookingPayments"

	defaultBookingFeePercent = 5.0
)

// ProposeInput carries the three dates a customer proposes for one offer.
type ProposeInput struct {
	DateOne            string  `json:"dateOne" binding:"required,notblank"`
	DateTwo            string  `json:"dateTwo"`
	DateThree          string  `json:"dateThree"`
	RequestID          string  `json:"requestId" binding:"required,notblank"`
	RepairShopUID      string  `json:"repairShopUid" binding:"required,notblank"`
	CustomerMessageID  string  `json:"customerMessageId" binding:"required,notblank"`
	CustomerEmail      string  `json:"customerEmail" binding:"required,email"`
	PriceOffer         float64 `json:"priceOffer" binding:"gte=0"`
	RegistrationNumber string  `json:"registrationNumber"`
	TypeOfFix          string  `json:"typeOfFix"`
	CustomerMessage    string  `json:"customerMessage"`
	Type               string  `json:"type"`
	Work               string  `json:"work"`
}

// BookingRef identifies the booking of one shop for one request line.
type BookingRef struct {
	UID               string `json:"uid" binding:"required,notblank"`
	RequestID         string `json:"requestId" binding:"required,notblank"`
	CustomerMessageID string `json:"customerMessageId" binding:"required,notblank"`
}

// AcceptInput is a shop accepting one of the proposed dates.
type AcceptInput struct {
	BookingRef
	AcceptedDate     string `json:"acceptedDate" binding:"required,notblank"`
	CustomerEmail    string `json:"customerEmail"`
	PaymentCompleted bool   `json:"paymentCompleted"`
	SubscriptionType string `json:"subscriptionType" binding:"omitempty,subscription"`
	IsTrialBooking   *bool  `json:"isTrialBooking"`
}

// SuggestInput is a shop counter-proposing three dates.
type SuggestInput struct {
	BookingRef
	FirstDate     string `json:"firstDate" binding:"required,notblank"`
	SecondDate    string `json:"secondDate"`
	ThirdDate     string `json:"thirdDate"`
	CustomerEmail string `json:"customerEmail"`
}

// AcceptSuggestedInput is a customer picking one of the shop's suggested dates.
type AcceptSuggestedInput struct {
	BookingRef
	AcceptedDate string `json:"acceptedDate" binding:"required,notblank"`
}

// RescheduleInput replaces the candidate dates and restarts the negotiation.
type RescheduleInput struct {
	BookingRef
	DateOne   string `json:"dateOne" binding:"required,notblank"`
	DateTwo   string `json:"dateTwo"`
	DateThree string `json:"dateThree"`
}

// CustomerCancelInput identifies the booking a customer cancels.
type CustomerCancelInput struct {
	Email             string `json:"email" binding:"required,email"`
	RequestID         string `json:"requestId" binding:"required,notblank"`
	CustomerMessageID string `json:"customerMessageId" binding:"required,notblank"`
	RepairShopUID     string `json:"repairShopUid" binding:"required,notblank"`
}

// ShopCancelInput identifies the booking a repair shop cancels.
type ShopCancelInput struct {
	RepairShopUID     string `json:"repairShopUid" binding:"required,notblank"`
	RequestID         string `json:"requestId" binding:"required,notblank"`
	CustomerMessageID string `json:"customerMessageId" binding:"required,notblank"`
	Reason            string `json:"reason"`
}

// RefundDetails is the provider's view of a completed refund.
type RefundDetails struct {
	ID     string `json:"id"`
	Amount int64  `json:"amount"`
	Status string `json:"status"`
}

// CancelResult reports what happened to the booking fee on cancellation.
type CancelResult struct {
	RefundStatus  string              `json:"refundStatus"`
	RefundDetails *RefundDetails      `json:"refundDetails"`
	RefundError   *models.RefundError `json:"refundError"`
}

// BookingWithShop is a booking enriched with the shop's current profile.
type BookingWithShop struct {
	models.Booking    `bson:",inline"`
	RepairShopAddress string            `json:"repairShopAddress,omitempty"`
	SelectedTimes     []models.TimeSlot `json:"selectedTimes,omitempty"`
}

// IBookingService implements the booking date negotiation.
type IBookingService interface {
	Propose(ctx context.Context, in ProposeInput) (string, error)
	Accept(ctx context.Context, in AcceptInput) error
	SuggestNewDates(ctx context.Context, in SuggestInput) error
	AcceptSuggested(ctx context.Context, in AcceptSuggestedInput) error
	Reschedule(ctx context.Context, in RescheduleInput) error
	CancelByCustomer(ctx context.Context, in CustomerCancelInput) (*CancelResult, error)
	CancelByRepairShop(ctx context.Context, in ShopCancelInput) (*CancelResult, error)

	FetchBooking(ctx context.Context, requestID string) ([]models.Booking, error)
	FetchBookings(ctx context.Context, uid string) ([]models.Booking, error)
	FetchAcceptedBookings(ctx context.Context, email string) ([]models.Booking, error)
	FetchAcceptedBookingsForRepairShop(ctx context.Context, uid string) ([]models.Booking, error)
	FetchBookingsWithNewDates(ctx context.Context, email string) ([]BookingWithShop, error)

	BackfillStatus(ctx context.Context) (int, error)
}

type bookingService struct {
	db            *mongo.Database
	cfg           *config.Config
	configService IConfigService
	notifier      INotificationService
	billing       billing.Provider
	publisher     events.Publisher
	now           func() time.Time
}

// NewBookingService creates a new IBookingService.
func NewBookingService(db *mongo.Database, cfg *config.Config, configService IConfigService, notifier INotificationService, billingProvider billing.Provider, publisher events.Publisher) IBookingService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &bookingService{
		db:            db,
		cfg:           cfg,
		configService: configService,
		notifier:      notifier,
		billing:       billingProvider,
		publisher:     publisher,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Fields holding a shop's acceptance.
var acceptanceFields = []string{
	"acceptedByRepairShop",
	"saveAcceptedDate",
	"dateAccepted",
	"priceToPay",
	"subscriptionType",
	"isTrialBooking",
	"paymentCompleted",
}

// Shop profile copied onto the booking at acceptance.
var shopInfoFields = []string{"repairShopName", "address", "location", "phoneNumber", "postalCode"}

func unsetFields(groups ...[]string) bson.M {
	out := bson.M{}
	for _, g := range groups {
		for _, f := range g {
			out[f] = ""
		}
	}
	return out
}

// BookingFee is the fee charged to a core shop for an accepted booking.
func BookingFee(priceOffer, percent float64) int64 {
	return int64(math.Floor(priceOffer * (percent / 100)))
}

func tripleFilter(requestID, customerMessageID, repairShopUID string) bson.M {
	return bson.M{
		"requestId":         requestID,
		"customerMessageId": customerMessageID,
		"repairShopUid":     repairShopUID,
	}
}

func statusIn(status models.BookingStatus, allowed []models.BookingStatus) bool {
	for _, a := range allowed {
		if status == a {
			return true
		}
	}
	return false
}

func fixed(update bson.M) func(*models.Booking) bson.M {
	return func(*models.Booking) bson.M { return update }
}

// transition applies updateFor to every booking matched by filter whose status
// is allowed, as one conditional batch. It returns the bookings as they were
// before the write.
func (s *bookingService) transition(ctx context.Context, filter bson.M, allowed []models.BookingStatus, updateFor func(*models.Booking) bson.M) ([]models.Booking, error) {
	collection := s.db.Collection(bookingsCollection)
	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error finding bookings: %w", err)
	}
	var found []models.Booking
	if err := cursor.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	if len(found) == 0 {
		return nil, ErrNoBookings
	}

	var writes []mongo.WriteModel
	var matched []models.Booking
	for i := range found {
		b := found[i]
		if !statusIn(b.Status, allowed) {
			continue
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": b.ID, "status": bson.M{"$in": allowed}}).
			SetUpdate(updateFor(&b)))
		matched = append(matched, b)
	}
	if len(writes) == 0 {
		return nil, fmt.Errorf("%w: booking is %s", ErrConflict, found[0].Status)
	}

	res, err := collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return nil, fmt.Errorf("error updating bookings: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, fmt.Errorf("%w: booking changed concurrently", ErrConflict)
	}
	return matched, nil
}

func (s *bookingService) publish(ctx context.Context, eventType string, b *models.Booking, attrs map[string]string) {
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrs["requestId"] = b.RequestID
	attrs["customerMessageId"] = b.CustomerMessageID
	attrs["repairShopUid"] = b.RepairShopUID
	err := s.publisher.Publish(ctx, events.Event{
		Type:       eventType,
		Key:        models.BookingKey(b.RequestID, b.CustomerMessageID, b.RepairShopUID),
		OccurredAt: s.now(),
		Attributes: attrs,
	})
	if err != nil {
		log.Printf("Failed to publish %s for booking %s: %v", eventType, b.ID, err)
	}
}

func (s *bookingService) notify(ctx context.Context, to, templateID string, data map[string]string) {
	if to == "" {
		log.Printf("Skipping %s email: no recipient", templateID)
		return
	}
	if err := s.notifier.Dispatch(ctx, to, templateID, data); err != nil {
		log.Printf("Failed to dispatch %s email to %s: %v", templateID, to, err)
	}
}

func (s *bookingService) Propose(ctx context.Context, in ProposeInput) (string, error) {
	now := s.now()
	booking := &models.Booking{
		Status:             models.BookingStatusProposed,
		BookingKey:         models.BookingKey(in.RequestID, in.CustomerMessageID, in.RepairShopUID),
		DateOne:            in.DateOne,
		DateTwo:            in.DateTwo,
		DateThree:          in.DateThree,
		RequestID:          in.RequestID,
		CustomerMessageID:  in.CustomerMessageID,
		RepairShopUID:      in.RepairShopUID,
		CustomerEmail:      in.CustomerEmail,
		PriceOffer:         in.PriceOffer,
		RegistrationNumber: in.RegistrationNumber,
		TypeOfFix:          in.TypeOfFix,
		CustomerMessage:    in.CustomerMessage,
		Type:               in.Type,
		Work:               in.Work,
		CreatedAt:          now,
	}

	err := db.Try(func() error {
		booking.GenID()
		_, insertErr := s.db.Collection(bookingsCollection).InsertOne(ctx, booking)
		return insertErr
	})
	if err != nil {
		if db.IsDuplicateKeyOn(err, db.IndexBookingKey) {
			return "", fmt.Errorf("%w: an active booking already exists for this offer", ErrConflict)
		}
		return "", fmt.Errorf("error saving booking: %w", err)
	}

	shop, err := findUserByUID(ctx, s.db, in.RepairShopUID)
	switch {
	case err == nil:
		s.notify(ctx, shop.Email, TemplateNewBooking, map[string]string{
			"registrationNumber": in.RegistrationNumber,
			"type":               in.Type,
		})
	case errors.Is(err, ErrNotFound):
		log.Printf("Booking %s proposed to unknown repair shop %s", booking.ID, in.RepairShopUID)
	default:
		log.Printf("Failed to look up repair shop %s for booking %s: %v", in.RepairShopUID, booking.ID, err)
	}

	s.publish(ctx, events.BookingProposed, booking, nil)
	return booking.ID, nil
}

func (s *bookingService) Accept(ctx context.Context, in AcceptInput) error {
	shop, err := findUserByUID(ctx, s.db, in.UID)
	if err != nil {
		return err
	}

	now := s.now()
	subscriptionType := in.SubscriptionType
	if subscriptionType == "" {
		subscriptionType = shop.SubscriptionType
	}
	if subscriptionType == "" {
		subscriptionType = models.SubscriptionCore
	}
	isTrial := in.IsTrialBooking
	if isTrial == nil {
		trialDays := s.configService.GetFloat64(ctx, ConfigTrialPeriodDays, s.cfg.TrialPeriodDays)
		v := utils.InTrial(shop.CreatedAt, trialDays, now)
		isTrial = &v
	}
	feePercent := s.configService.GetFloat64(ctx, ConfigBookingFeePercent, defaultBookingFeePercent)

	acceptUpdate := func(b *models.Booking) bson.M {
		return bson.M{
			"$set": bson.M{
				"status":               models.BookingStatusAccepted,
				"acceptedByRepairShop": models.AcceptedByRepairShop{UID: in.UID},
				"saveAcceptedDate": models.AcceptedDate{
					UID:          in.UID,
					RequestID:    in.RequestID,
					AcceptedDate: in.AcceptedDate,
				},
				"dateAccepted":     now,
				"priceToPay":       BookingFee(b.PriceOffer, feePercent),
				"subscriptionType": subscriptionType,
				"isTrialBooking":   *isTrial,
				"paymentCompleted": in.PaymentCompleted,
				"repairShopName":   shop.Name,
				"address":          shop.Address,
				"location":         shop.Location,
				"phoneNumber":      shop.PhoneNumber,
				"postalCode":       shop.PostalCode,
			},
			"$unset": bson.M{"suggestedDates": ""},
		}
	}
	allowed := []models.BookingStatus{models.BookingStatusProposed, models.BookingStatusSuggested}
	filter := tripleFilter(in.RequestID, in.CustomerMessageID, in.UID)
	matched, err := s.transition(ctx, filter, allowed, acceptUpdate)
	if err != nil {
		return err
	}
	booking := matched[0]

	to := booking.CustomerEmail
	if to == "" {
		to = in.CustomerEmail
	}
	date := in.AcceptedDate
	if t, perr := utils.ParseDate(in.AcceptedDate); perr == nil {
		date = utils.FormatLongSv(t, s.cfg.Location())
	}
	s.notify(ctx, to, TemplateBookingConfirmation, map[string]string{
		"userName":  shop.Name,
		"type":      booking.Type,
		"typeOfFix": booking.TypeOfFix,
		"date":      date,
	})
	s.publish(ctx, events.BookingAccepted, &booking, map[string]string{
		"acceptedDate":     in.AcceptedDate,
		"subscriptionType": subscriptionType,
	})
	return nil
}

func (s *bookingService) SuggestNewDates(ctx context.Context, in SuggestInput) error {
	shop, err := findUserByUID(ctx, s.db, in.UID)
	if err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"status": models.BookingStatusSuggested,
			"suggestedDates": models.SuggestedDates{
				UID:        in.UID,
				RequestID:  in.RequestID,
				FirstDate:  in.FirstDate,
				SecondDate: in.SecondDate,
				ThirdDate:  in.ThirdDate,
			},
		},
		"$unset": unsetFields(acceptanceFields),
	}
	allowed := []models.BookingStatus{models.BookingStatusProposed, models.BookingStatusSuggested, models.BookingStatusAccepted}
	matched, err := s.transition(ctx, tripleFilter(in.RequestID, in.CustomerMessageID, in.UID), allowed, fixed(update))
	if err != nil {
		return err
	}
	booking := matched[0]

	to := booking.CustomerEmail
	if to == "" {
		to = in.CustomerEmail
	}
	loc := s.cfg.Location()
	s.notify(ctx, to, TemplateSuggestedDates, map[string]string{
		"userName":   shop.Name,
		"type":       booking.Type,
		"typeOfFix":  booking.TypeOfFix,
		"firstDate":  utils.ShortSvOrRaw(in.FirstDate, loc),
		"secondDate": utils.ShortSvOrRaw(in.SecondDate, loc),
		"thirdDate":  utils.ShortSvOrRaw(in.ThirdDate, loc),
	})
	s.publish(ctx, events.BookingDatesSuggested, &booking, nil)
	return nil
}

func (s *bookingService) AcceptSuggested(ctx context.Context, in AcceptSuggestedInput) error {
	update := bson.M{
		"$set": bson.M{
			"status": models.BookingStatusProposed,
			"acceptedByCustomer": models.AcceptedDate{
				UID:          in.UID,
				RequestID:    in.RequestID,
				AcceptedDate: in.AcceptedDate,
			},
		},
		"$unset": bson.M{"suggestedDates": ""},
	}
	allowed := []models.BookingStatus{models.BookingStatusSuggested}
	matched, err := s.transition(ctx, tripleFilter(in.RequestID, in.CustomerMessageID, in.UID), allowed, fixed(update))
	if err != nil {
		return err
	}
	s.publish(ctx, events.BookingSuggestAccepted, &matched[0], map[string]string{"acceptedDate": in.AcceptedDate})
	return nil
}

func (s *bookingService) Reschedule(ctx context.Context, in RescheduleInput) error {
	update := bson.M{
		"$set": bson.M{
			"status":    models.BookingStatusProposed,
			"dateOne":   in.DateOne,
			"dateTwo":   in.DateTwo,
			"dateThree": in.DateThree,
		},
		"$unset": unsetFields(acceptanceFields, shopInfoFields, []string{"suggestedDates", "acceptedByCustomer"}),
	}
	allowed := []models.BookingStatus{models.BookingStatusProposed, models.BookingStatusSuggested, models.BookingStatusAccepted}
	matched, err := s.transition(ctx, tripleFilter(in.RequestID, in.CustomerMessageID, in.UID), allowed, fixed(update))
	if err != nil {
		return err
	}
	s.publish(ctx, events.BookingRescheduled, &matched[0], nil)
	return nil
}

var cancellableStatuses = []models.BookingStatus{
	models.BookingStatusProposed,
	models.BookingStatusSuggested,
	models.BookingStatusAccepted,
}

func (s *bookingService) cancelUpdate(by, reason string) bson.M {
	set := bson.M{
		"status":           models.BookingStatusCancelled,
		"declined":         true,
		"cancellationDate": s.now(),
		"cancelledBy":      by,
	}
	if reason != "" {
		set["cancellationReason"] = reason
	}
	return bson.M{"$set": set, "$unset": bson.M{"bookingKey": ""}}
}

func (s *bookingService) CancelByCustomer(ctx context.Context, in CustomerCancelInput) (*CancelResult, error) {
	collection := s.db.Collection(bookingsCollection)
	count, err := collection.CountDocuments(ctx, bson.M{"customerEmail": in.Email})
	if err != nil {
		return nil, fmt.Errorf("error counting bookings: %w", err)
	}
	if count == 0 {
		return nil, ErrNoBookings
	}

	filter := tripleFilter(in.RequestID, in.CustomerMessageID, in.RepairShopUID)
	filter["customerEmail"] = in.Email
	matched, err := s.transition(ctx, filter, cancellableStatuses, fixed(s.cancelUpdate(models.CancelledByCustomer, "")))
	if err != nil {
		if errors.Is(err, ErrNoBookings) {
			return nil, fmt.Errorf("%w: no matching booking found", ErrNotFound)
		}
		return nil, err
	}
	booking := matched[0]

	shop, err := findUserByUID(ctx, s.db, in.RepairShopUID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("Failed to look up repair shop %s during cancellation: %v", in.RepairShopUID, err)
		}
		shop = nil
	}
	result := s.settleRefund(ctx, &booking, shop)

	data := s.cancellationData(&booking, shop, "")
	s.notify(ctx, booking.CustomerEmail, TemplateBookingCanceledUser, data)
	if shop != nil {
		s.notify(ctx, shop.Email, TemplateBookingCanceledToRepairShop, data)
	}
	s.publish(ctx, events.BookingCancelled, &booking, map[string]string{
		"cancelledBy":  models.CancelledByCustomer,
		"refundStatus": result.RefundStatus,
	})
	return result, nil
}

func (s *bookingService) CancelByRepairShop(ctx context.Context, in ShopCancelInput) (*CancelResult, error) {
	shop, err := findUserByUID(ctx, s.db, in.RepairShopUID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNoBookings
		}
		return nil, err
	}

	update := s.cancelUpdate(models.CancelledByRepairShop, in.Reason)
	matched, err := s.transition(ctx, tripleFilter(in.RequestID, in.CustomerMessageID, in.RepairShopUID), cancellableStatuses, fixed(update))
	if err != nil {
		return nil, err
	}
	booking := matched[0]
	result := s.settleRefund(ctx, &booking, shop)

	data := s.cancellationData(&booking, shop, in.Reason)
	s.notify(ctx, booking.CustomerEmail, TemplateBookingCanceledToUser, data)
	s.notify(ctx, shop.Email, TemplateBookingCanceledRepairShop, data)
	s.publish(ctx, events.BookingCancelled, &booking, map[string]string{
		"cancelledBy":  models.CancelledByRepairShop,
		"refundStatus": result.RefundStatus,
	})
	return result, nil
}

func (s *bookingService) cancellationData(b *models.Booking, shop *models.User, reason string) map[string]string {
	shopName := b.RepairShopName
	if shop != nil {
		shopName = shop.Name
	}
	return map[string]string{
		"repairShopName":     shopName,
		"registrationNumber": b.RegistrationNumber,
		"type":               b.Type,
		"typeOfFix":          b.TypeOfFix,
		"date":               utils.ShortSvOrRaw(b.AcceptedAt(), s.cfg.Location()),
		"reason":             reason,
	}
}

func (s *bookingService) findPayment(ctx context.Context, b *models.Booking) (*models.BookingPayment, error) {
	var payment models.BookingPayment
	filter := bson.M{"bookingId": b.RequestID, "uid": b.RepairShopUID}
	err := s.db.Collection(bookingPaymentsCollection).FindOne(ctx, filter).Decode(&payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("error finding booking payment: %w", err)
	}
	return &payment, nil
}

// settleRefund runs the refund policy on a cancelled booking and records the
// outcome on it. Failures are recorded, never retried.
func (s *bookingService) settleRefund(ctx context.Context, b *models.Booking, shop *models.User) *CancelResult {
	payment, err := s.findPayment(ctx, b)
	if err != nil {
		log.Printf("Refund lookup for booking %s failed: %v", b.ID, err)
	}
	decision := DecideRefund(shop, payment, b)
	collection := s.db.Collection(bookingsCollection)
	now := s.now()
	result := &CancelResult{}

	var set bson.M
	switch {
	case !decision.Eligible:
		result.RefundStatus = RefundStatusNotEligible
		set = bson.M{"refundEligible": false, "refundEligibilityNote": decision.Note}
	default:
		refund, refundErr := s.billing.RefundPaymentIntent(ctx, decision.PaymentIntentID)
		if refundErr != nil {
			be := billing.AsError(refundErr)
			result.RefundError = &models.RefundError{Message: be.Message, Code: be.Code, Type: be.Type}
			result.RefundStatus = RefundStatusFailed + be.Message
			set = bson.M{
				"refundAttempted":   true,
				"refundFailed":      true,
				"refundError":       result.RefundError,
				"refundAttemptDate": now,
			}
			log.Printf("Refund of %s for booking %s failed: %v", decision.PaymentIntentID, b.ID, refundErr)
		} else {
			result.RefundDetails = &RefundDetails{ID: refund.ID, Amount: refund.Amount, Status: refund.Status}
			result.RefundStatus = RefundStatusProcessed
			set = bson.M{
				"refunded":     true,
				"refundId":     refund.ID,
				"refundAmount": refund.Amount,
				"refundStatus": refund.Status,
				"refundDate":   now,
			}
		}
	}

	if _, err := collection.UpdateOne(ctx, bson.M{"_id": b.ID}, bson.M{"$set": set}); err != nil {
		log.Printf("Failed to record refund outcome on booking %s: %v", b.ID, err)
	}
	return result
}

func (s *bookingService) find(ctx context.Context, filter bson.M) ([]models.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.db.Collection(bookingsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding bookings: %w", err)
	}
	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	if len(bookings) == 0 {
		return nil, ErrNoBookings
	}
	return bookings, nil
}

func (s *bookingService) FetchBooking(ctx context.Context, requestID string) ([]models.Booking, error) {
	return s.find(ctx, bson.M{"requestId": requestID})
}

func (s *bookingService) FetchBookings(ctx context.Context, uid string) ([]models.Booking, error) {
	bookings, err := s.find(ctx, bson.M{"repairShopUid": uid})
	if err != nil {
		return nil, err
	}
	return PendingForShop(bookings, uid), nil
}

func (s *bookingService) FetchAcceptedBookings(ctx context.Context, email string) ([]models.Booking, error) {
	bookings, err := s.find(ctx, bson.M{"customerEmail": email})
	if err != nil {
		return nil, err
	}
	return UpcomingAccepted(bookings, s.now()), nil
}

func (s *bookingService) FetchAcceptedBookingsForRepairShop(ctx context.Context, uid string) ([]models.Booking, error) {
	bookings, err := s.find(ctx, bson.M{"repairShopUid": uid})
	if err != nil {
		return nil, err
	}
	return UpcomingAccepted(bookings, s.now()), nil
}

func (s *bookingService) FetchBookingsWithNewDates(ctx context.Context, email string) ([]BookingWithShop, error) {
	bookings, err := s.find(ctx, bson.M{"customerEmail": email})
	if err != nil {
		return nil, err
	}
	out := []BookingWithShop{}
	shops := map[string]*models.User{}
	for _, b := range bookings {
		if b.Status != models.BookingStatusSuggested {
			continue
		}
		enriched := BookingWithShop{Booking: b}
		shop, cached := shops[b.RepairShopUID]
		if !cached {
			shop, err = findUserByUID(ctx, s.db, b.RepairShopUID)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					log.Printf("Failed to enrich booking %s with shop %s: %v", b.ID, b.RepairShopUID, err)
				}
				shop = nil
			}
			shops[b.RepairShopUID] = shop
		}
		if shop != nil {
			enriched.RepairShopName = shop.Name
			enriched.RepairShopAddress = shop.Address
			enriched.SelectedTimes = shop.SelectedTimes
		}
		out = append(out, enriched)
	}
	return out, nil
}

// PendingForShop keeps the bookings a shop still has to answer.
func PendingForShop(bookings []models.Booking, uid string) []models.Booking {
	out := []models.Booking{}
	for _, b := range bookings {
		if b.Status == models.BookingStatusCancelled {
			continue
		}
		if b.AcceptedByRepairShop != nil && b.AcceptedByRepairShop.UID == uid {
			continue
		}
		if b.SuggestedDates != nil && b.SuggestedDates.UID == uid {
			continue
		}
		out = append(out, b)
	}
	return out
}

// UpcomingAccepted keeps accepted bookings whose date is unknown or not yet past.
func UpcomingAccepted(bookings []models.Booking, now time.Time) []models.Booking {
	out := []models.Booking{}
	for _, b := range bookings {
		if b.Status != models.BookingStatusAccepted || b.Declined {
			continue
		}
		if b.SaveAcceptedDate == nil || b.SaveAcceptedDate.AcceptedDate == "" {
			out = append(out, b)
			continue
		}
		t, err := utils.ParseDate(b.SaveAcceptedDate.AcceptedDate)
		if err == nil && !t.Before(now) {
			out = append(out, b)
		}
	}
	return out
}

// BackfillStatus sets status and bookingKey on documents written before they
// existed, and drops the empty placeholder objects those documents carry.
func (s *bookingService) BackfillStatus(ctx context.Context) (int, error) {
	collection := s.db.Collection(bookingsCollection)
	cursor, err := collection.Find(ctx, bson.M{"status": bson.M{"$exists": false}})
	if err != nil {
		return 0, fmt.Errorf("error finding legacy bookings: %w", err)
	}
	var legacy []models.Booking
	if err := cursor.All(ctx, &legacy); err != nil {
		return 0, fmt.Errorf("error decoding legacy bookings: %w", err)
	}

	updated := 0
	for _, b := range legacy {
		status := b.DeriveStatus()
		set := bson.M{"status": status}
		unset := bson.M{}
		if b.SuggestedDates != nil && b.SuggestedDates.UID == "" {
			unset["suggestedDates"] = ""
		}
		if b.AcceptedByRepairShop != nil && b.AcceptedByRepairShop.UID == "" {
			unset["acceptedByRepairShop"] = ""
		}
		if b.SaveAcceptedDate != nil && b.SaveAcceptedDate.AcceptedDate == "" {
			unset["saveAcceptedDate"] = ""
		}
		if status != models.BookingStatusCancelled {
			set["bookingKey"] = models.BookingKey(b.RequestID, b.CustomerMessageID, b.RepairShopUID)
		}
		update := bson.M{"$set": set}
		if len(unset) > 0 {
			update["$unset"] = unset
		}

		_, err := collection.UpdateOne(ctx, bson.M{"_id": b.ID}, update)
		if err != nil && db.IsDuplicateKeyOn(err, db.IndexBookingKey) {
			// An older duplicate already holds the key; keep this one unkeyed.
			log.Printf("Legacy booking %s duplicates an active booking, leaving it without a key", b.ID)
			delete(set, "bookingKey")
			_, err = collection.UpdateOne(ctx, bson.M{"_id": b.ID}, update)
		}
		if err != nil {
			log.Printf("Failed to backfill status on booking %s: %v", b.ID, err)
			continue
		}
		updated++
	}
	if updated > 0 {
		log.Printf("Backfilled status on %d legacy bookings", updated)
	}
	return updated, nil
}
