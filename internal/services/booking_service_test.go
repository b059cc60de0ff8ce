package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/K3mp3/FixMatch/internal/billing"
	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/utils"
)

func TestBookingFee(t *testing.T) {
	assert.Equal(t, int64(100), BookingFee(2000, 5))
	assert.Equal(t, int64(24), BookingFee(499, 5))
	assert.Equal(t, int64(0), BookingFee(0, 5))
	assert.Equal(t, int64(150), BookingFee(2000, 7.5))
}

func TestPendingForShop(t *testing.T) {
	bookings := []models.Booking{
		{Base: models.Base{ID: "open"}, Status: models.BookingStatusProposed},
		{Base: models.Base{ID: "accepted"}, Status: models.BookingStatusAccepted, AcceptedByRepairShop: &models.AcceptedByRepairShop{UID: "shop-1"}},
		{Base: models.Base{ID: "suggested"}, Status: models.BookingStatusSuggested, SuggestedDates: &models.SuggestedDates{UID: "shop-1"}},
		{Base: models.Base{ID: "cancelled"}, Status: models.BookingStatusCancelled},
		{Base: models.Base{ID: "other"}, Status: models.BookingStatusAccepted, AcceptedByRepairShop: &models.AcceptedByRepairShop{UID: "shop-2"}},
	}

	pending := PendingForShop(bookings, "shop-1")
	var ids []string
	for _, b := range pending {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"open", "other"}, ids)
}

func TestUpcomingAccepted(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	accepted := func(id, date string) models.Booking {
		return models.Booking{
			Base:             models.Base{ID: id},
			Status:           models.BookingStatusAccepted,
			SaveAcceptedDate: &models.AcceptedDate{AcceptedDate: date},
		}
	}
	bookings := []models.Booking{
		accepted("future", "2025-03-20T10:00:00Z"),
		accepted("past", "2025-03-01T10:00:00Z"),
		accepted("undated", ""),
		{Base: models.Base{ID: "proposed"}, Status: models.BookingStatusProposed},
		{Base: models.Base{ID: "declined"}, Status: models.BookingStatusAccepted, Declined: true},
	}

	upcoming := UpcomingAccepted(bookings, now)
	var ids []string
	for _, b := range upcoming {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"future", "undated"}, ids)
}

type bookingTestEnv struct {
	ctx      context.Context
	database *mongo.Database
	svc      IBookingService
	notifier *mockNotifier
	billing  *billing.FakeProvider
}

func setupBookingTest(t *testing.T, dbName string) *bookingTestEnv {
	t.Helper()
	database := utils.SetupTestDB(t, dbName, bookingsCollection, bookingPaymentsCollection, usersCollection, configCollection)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, db.EnsureIndexes(ctx, database))

	cfg := testConfig()
	notifier := acceptingNotifier()
	provider := billing.NewFakeProvider()
	svc := NewBookingService(database, cfg, NewConfigService(ctx, database, cfg, nil), notifier, provider, nil)
	return &bookingTestEnv{ctx: ctx, database: database, svc: svc, notifier: notifier, billing: provider}
}

func insertUser(t *testing.T, database *mongo.Database, u *models.User) *models.User {
	t.Helper()
	u.GenIDIfEmpty()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := database.Collection(usersCollection).InsertOne(context.Background(), u)
	require.NoError(t, err)
	return u
}

func insertShop(t *testing.T, database *mongo.Database, uid string) *models.User {
	return insertUser(t, database, &models.User{
		UID:              uid,
		Name:             "Bilverkstan",
		Email:            uid + "@verkstad.se",
		RepairShop:       true,
		Verified:         true,
		Address:          "Verkstadsgatan 1",
		Location:         "Stockholm",
		SubscriptionType: models.SubscriptionCore,
		CreatedAt:        time.Now().UTC().AddDate(-1, 0, 0),
	})
}

func proposal(shopUID string) ProposeInput {
	return ProposeInput{
		DateOne:            "2030-05-01T09:00:00Z",
		DateTwo:            "2030-05-02T09:00:00Z",
		DateThree:          "2030-05-03T09:00:00Z",
		RequestID:          "req-1",
		RepairShopUID:      shopUID,
		CustomerMessageID:  "msg-1",
		CustomerEmail:      "customer@example.com",
		PriceOffer:         2000,
		RegistrationNumber: "ABC123",
		TypeOfFix:          "Service",
		Type:               "Bromsar",
	}
}

func (e *bookingTestEnv) load(t *testing.T, id string) models.Booking {
	t.Helper()
	var b models.Booking
	require.NoError(t, e.database.Collection(bookingsCollection).FindOne(e.ctx, bson.M{"_id": id}).Decode(&b))
	return b
}

func TestBookingService_ProposeRejectsDuplicate(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_duplicate")
	insertShop(t, env.database, "shop-1")

	id, err := env.svc.Propose(env.ctx, proposal("shop-1"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, models.BookingStatusProposed, env.load(t, id).Status)
	env.notifier.AssertCalled(t, "Dispatch", mock.Anything, "shop-1@verkstad.se", TemplateNewBooking, mock.Anything)

	_, err = env.svc.Propose(env.ctx, proposal("shop-1"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBookingService_AcceptChargesFeeAndConfirmsToStoredEmail(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_accept")
	insertShop(t, env.database, "shop-1")
	id, err := env.svc.Propose(env.ctx, proposal("shop-1"))
	require.NoError(t, err)

	err = env.svc.Accept(env.ctx, AcceptInput{
		BookingRef:    BookingRef{UID: "shop-1", RequestID: "req-1", CustomerMessageID: "msg-1"},
		AcceptedDate:  "2030-05-02T09:00:00Z",
		CustomerEmail: "someone-else@example.com",
	})
	require.NoError(t, err)

	b := env.load(t, id)
	assert.Equal(t, models.BookingStatusAccepted, b.Status)
	require.NotNil(t, b.PriceToPay)
	assert.Equal(t, int64(100), *b.PriceToPay)
	assert.Equal(t, "shop-1", b.AcceptedByRepairShop.UID)
	assert.Equal(t, "2030-05-02T09:00:00Z", b.SaveAcceptedDate.AcceptedDate)
	assert.Equal(t, "Bilverkstan", b.RepairShopName)
	assert.Nil(t, b.SuggestedDates)
	env.notifier.AssertCalled(t, "Dispatch", mock.Anything, "customer@example.com", TemplateBookingConfirmation, mock.Anything)
	env.notifier.AssertNotCalled(t, "Dispatch", mock.Anything, "someone-else@example.com", TemplateBookingConfirmation, mock.Anything)
}

func TestBookingService_AcceptUnknownShop(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_accept_unknown")
	err := env.svc.Accept(env.ctx, AcceptInput{
		BookingRef:   BookingRef{UID: "ghost", RequestID: "req-1", CustomerMessageID: "msg-1"},
		AcceptedDate: "2030-05-02T09:00:00Z",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookingService_SuggestClearsAcceptance(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_suggest")
	insertShop(t, env.database, "shop-1")
	id, err := env.svc.Propose(env.ctx, proposal("shop-1"))
	require.NoError(t, err)
	ref := BookingRef{UID: "shop-1", RequestID: "req-1", CustomerMessageID: "msg-1"}
	require.NoError(t, env.svc.Accept(env.ctx, AcceptInput{BookingRef: ref, AcceptedDate: "2030-05-02T09:00:00Z"}))

	require.NoError(t, env.svc.SuggestNewDates(env.ctx, SuggestInput{
		BookingRef: ref,
		FirstDate:  "2030-06-01T09:00:00Z",
		SecondDate: "2030-06-02T09:00:00Z",
		ThirdDate:  "2030-06-03T09:00:00Z",
	}))

	b := env.load(t, id)
	assert.Equal(t, models.BookingStatusSuggested, b.Status)
	require.NotNil(t, b.SuggestedDates)
	assert.Equal(t, "2030-06-01T09:00:00Z", b.SuggestedDates.FirstDate)
	assert.Nil(t, b.AcceptedByRepairShop)
	assert.Nil(t, b.SaveAcceptedDate)
	assert.Nil(t, b.PriceToPay)
	env.notifier.AssertCalled(t, "Dispatch", mock.Anything, "customer@example.com", TemplateSuggestedDates, mock.Anything)

	require.NoError(t, env.svc.AcceptSuggested(env.ctx, AcceptSuggestedInput{BookingRef: ref, AcceptedDate: "2030-06-02T09:00:00Z"}))
	b = env.load(t, id)
	assert.Equal(t, models.BookingStatusProposed, b.Status)
	assert.Nil(t, b.SuggestedDates)
	require.NotNil(t, b.AcceptedByCustomer)
	assert.Equal(t, "2030-06-02T09:00:00Z", b.AcceptedByCustomer.AcceptedDate)

	// Only a suggested booking can have its suggestion accepted.
	err = env.svc.AcceptSuggested(env.ctx, AcceptSuggestedInput{BookingRef: ref, AcceptedDate: "2030-06-02T09:00:00Z"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBookingService_RescheduleRestartsNegotiation(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_reschedule")
	insertShop(t, env.database, "shop-1")
	id, err := env.svc.Propose(env.ctx, proposal("shop-1"))
	require.NoError(t, err)
	ref := BookingRef{UID: "shop-1", RequestID: "req-1", CustomerMessageID: "msg-1"}
	require.NoError(t, env.svc.Accept(env.ctx, AcceptInput{BookingRef: ref, AcceptedDate: "2030-05-02T09:00:00Z"}))

	require.NoError(t, env.svc.Reschedule(env.ctx, RescheduleInput{
		BookingRef: ref,
		DateOne:    "2030-07-01T09:00:00Z",
	}))

	b := env.load(t, id)
	assert.Equal(t, models.BookingStatusProposed, b.Status)
	assert.Equal(t, "2030-07-01T09:00:00Z", b.DateOne)
	assert.Empty(t, b.DateTwo)
	assert.Nil(t, b.AcceptedByRepairShop)
	assert.Nil(t, b.SaveAcceptedDate)
	assert.Nil(t, b.SuggestedDates)
	assert.Empty(t, b.RepairShopName)
}

func TestBookingService_CancelRefundsCoreBooking(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_cancel_refund")
	insertShop(t, env.database, "shop-1")
	id, err := env.svc.Propose(env.ctx, proposal("shop-1"))
	require.NoError(t, err)
	ref := BookingRef{UID: "shop-1", RequestID: "req-1", CustomerMessageID: "msg-1"}
	require.NoError(t, env.svc.Accept(env.ctx, AcceptInput{
		BookingRef:       ref,
		AcceptedDate:     "2030-05-02T09:00:00Z",
		PaymentCompleted: true,
		SubscriptionType: models.SubscriptionCore,
		IsTrialBooking:   boolPtr(false),
	}))
	_, err = env.database.Collection(bookingPaymentsCollection).InsertOne(env.ctx, &models.BookingPayment{
		Base:            models.NewBase(),
		Amount:          100,
		BookingID:       "req-1",
		UID:             "shop-1",
		PaymentIntentID: "pi_refund_me",
	})
	require.NoError(t, err)

	result, err := env.svc.CancelByCustomer(env.ctx, CustomerCancelInput{
		Email:             "customer@example.com",
		RequestID:         "req-1",
		CustomerMessageID: "msg-1",
		RepairShopUID:     "shop-1",
	})
	require.NoError(t, err)
	assert.Equal(t, RefundStatusProcessed, result.RefundStatus)
	require.NotNil(t, result.RefundDetails)
	assert.Nil(t, result.RefundError)

	b := env.load(t, id)
	assert.Equal(t, models.BookingStatusCancelled, b.Status)
	assert.True(t, b.Declined)
	assert.True(t, b.Refunded)
	assert.Equal(t, models.CancelledByCustomer, b.CancelledBy)
	assert.Empty(t, b.BookingKey)
	env.notifier.AssertCalled(t, "Dispatch", mock.Anything, "customer@example.com", TemplateBookingCanceledUser, mock.Anything)
	env.notifier.AssertCalled(t, "Dispatch", mock.Anything, "shop-1@verkstad.se", TemplateBookingCanceledToRepairShop, mock.Anything)

	// Cancelling twice is a conflict.
	_, err = env.svc.CancelByCustomer(env.ctx, CustomerCancelInput{
		Email:             "customer@example.com",
		RequestID:         "req-1",
		CustomerMessageID: "msg-1",
		RepairShopUID:     "shop-1",
	})
	assert.ErrorIs(t, err, ErrConflict)

	// The triple is free again once the booking is cancelled.
	_, err = env.svc.Propose(env.ctx, proposal("shop-1"))
	assert.NoError(t, err)
}

func TestBookingService_CancelRecordsFailedRefund(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_cancel_refund_failed")
	insertShop(t, env.database, "shop-1")
	id, err := env.svc.Propose(env.ctx, proposal("shop-1"))
	require.NoError(t, err)
	require.NoError(t, env.svc.Accept(env.ctx, AcceptInput{
		BookingRef:       BookingRef{UID: "shop-1", RequestID: "req-1", CustomerMessageID: "msg-1"},
		AcceptedDate:     "2030-05-02T09:00:00Z",
		PaymentCompleted: true,
		SubscriptionType: models.SubscriptionCore,
		IsTrialBooking:   boolPtr(false),
	}))
	_, err = env.database.Collection(bookingPaymentsCollection).InsertOne(env.ctx, &models.BookingPayment{
		Base:            models.NewBase(),
		Amount:          100,
		BookingID:       "req-1",
		UID:             "shop-1",
		PaymentIntentID: "pi_already_refunded",
	})
	require.NoError(t, err)
	_, err = env.billing.RefundPaymentIntent(env.ctx, "pi_already_refunded")
	require.NoError(t, err)

	result, err := env.svc.CancelByCustomer(env.ctx, CustomerCancelInput{
		Email:             "customer@example.com",
		RequestID:         "req-1",
		CustomerMessageID: "msg-1",
		RepairShopUID:     "shop-1",
	})
	require.NoError(t, err)
	assert.Equal(t, RefundStatusFailed+"charge already refunded", result.RefundStatus)
	require.NotNil(t, result.RefundError)
	assert.Equal(t, "charge_already_refunded", result.RefundError.Code)
	assert.Nil(t, result.RefundDetails)

	b := env.load(t, id)
	assert.Equal(t, models.BookingStatusCancelled, b.Status)
	assert.False(t, b.Refunded)
	assert.True(t, b.RefundAttempted)
	assert.True(t, b.RefundFailed)
	require.NotNil(t, b.RefundError)
	assert.Equal(t, "charge already refunded", b.RefundError.Message)
	assert.Equal(t, "charge_already_refunded", b.RefundError.Code)
	require.NotNil(t, b.RefundAttemptDate)
	assert.Empty(t, b.RefundID)

	// The customer is still told about the cancellation.
	env.notifier.AssertCalled(t, "Dispatch", mock.Anything, "customer@example.com", TemplateBookingCanceledUser, mock.Anything)
}

func TestBookingService_CancelTrialBookingIsNotRefunded(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_cancel_trial")
	insertShop(t, env.database, "shop-1")
	id, err := env.svc.Propose(env.ctx, proposal("shop-1"))
	require.NoError(t, err)
	ref := BookingRef{UID: "shop-1", RequestID: "req-1", CustomerMessageID: "msg-1"}
	require.NoError(t, env.svc.Accept(env.ctx, AcceptInput{
		BookingRef:       ref,
		AcceptedDate:     "2030-05-02T09:00:00Z",
		SubscriptionType: models.SubscriptionCore,
		IsTrialBooking:   boolPtr(true),
	}))
	_, err = env.database.Collection(bookingPaymentsCollection).InsertOne(env.ctx, &models.BookingPayment{
		Base:            models.NewBase(),
		BookingID:       "req-1",
		UID:             "shop-1",
		PaymentIntentID: "pi_trial",
	})
	require.NoError(t, err)

	result, err := env.svc.CancelByRepairShop(env.ctx, ShopCancelInput{
		RepairShopUID:     "shop-1",
		RequestID:         "req-1",
		CustomerMessageID: "msg-1",
		Reason:            "sjukdom",
	})
	require.NoError(t, err)
	assert.Equal(t, RefundStatusNotEligible, result.RefundStatus)

	b := env.load(t, id)
	assert.False(t, b.Refunded)
	require.NotNil(t, b.RefundEligible)
	assert.False(t, *b.RefundEligible)
	assert.Equal(t, NoteTrialBooking, b.RefundEligibilityNote)
	assert.Equal(t, "sjukdom", b.CancellationReason)
	env.notifier.AssertCalled(t, "Dispatch", mock.Anything, "customer@example.com", TemplateBookingCanceledToUser, mock.Anything)
}

func TestBookingService_CancelWithoutBookings(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_cancel_none")
	insertShop(t, env.database, "shop-1")

	_, err := env.svc.CancelByCustomer(env.ctx, CustomerCancelInput{
		Email:             "nobody@example.com",
		RequestID:         "req-1",
		CustomerMessageID: "msg-1",
		RepairShopUID:     "shop-1",
	})
	assert.ErrorIs(t, err, ErrNoBookings)

	_, err = env.svc.Propose(env.ctx, proposal("shop-1"))
	require.NoError(t, err)
	_, err = env.svc.CancelByCustomer(env.ctx, CustomerCancelInput{
		Email:             "customer@example.com",
		RequestID:         "req-1",
		CustomerMessageID: "other-line",
		RepairShopUID:     "shop-1",
	})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.CancelByRepairShop(env.ctx, ShopCancelInput{RepairShopUID: "ghost", RequestID: "req-1", CustomerMessageID: "msg-1"})
	assert.ErrorIs(t, err, ErrNoBookings)
}

func TestBookingService_BackfillStatus(t *testing.T) {
	env := setupBookingTest(t, "testdb_booking_backfill")
	collection := env.database.Collection(bookingsCollection)
	_, err := collection.InsertMany(env.ctx, []interface{}{
		bson.M{"_id": "legacy-accepted", "requestId": "r1", "customerMessageId": "m1", "repairShopUid": "s1",
			"acceptedByRepairShop": bson.M{"uid": "s1"}, "suggestedDates": bson.M{}},
		bson.M{"_id": "legacy-declined", "requestId": "r2", "customerMessageId": "m2", "repairShopUid": "s1", "declined": true},
		bson.M{"_id": "legacy-open", "requestId": "r3", "customerMessageId": "m3", "repairShopUid": "s1",
			"acceptedByRepairShop": bson.M{}},
	})
	require.NoError(t, err)

	n, err := env.svc.BackfillStatus(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	accepted := env.load(t, "legacy-accepted")
	assert.Equal(t, models.BookingStatusAccepted, accepted.Status)
	assert.Nil(t, accepted.SuggestedDates)
	assert.Equal(t, models.BookingKey("r1", "m1", "s1"), accepted.BookingKey)

	declined := env.load(t, "legacy-declined")
	assert.Equal(t, models.BookingStatusCancelled, declined.Status)
	assert.Empty(t, declined.BookingKey)

	open := env.load(t, "legacy-open")
	assert.Equal(t, models.BookingStatusProposed, open.Status)
	assert.Nil(t, open.AcceptedByRepairShop)

	n, err = env.svc.BackfillStatus(env.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
