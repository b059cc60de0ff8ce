package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/K3mp3/FixMatch/internal/models"
)

func boolPtr(v bool) *bool { return &v }

func TestDecideRefund(t *testing.T) {
	shop := &models.User{UID: "shop-1"}
	paid := &models.BookingPayment{PaymentIntentID: "pi_123"}

	tests := []struct {
		name     string
		shop     *models.User
		payment  *models.BookingPayment
		booking  models.Booking
		eligible bool
		note     string
	}{
		{
			name:     "core non-trial booking with payment is refunded",
			shop:     shop,
			payment:  paid,
			booking:  models.Booking{SubscriptionType: models.SubscriptionCore, IsTrialBooking: boolPtr(false)},
			eligible: true,
		},
		{
			name:    "missing shop",
			payment: paid,
			booking: models.Booking{SubscriptionType: models.SubscriptionCore, IsTrialBooking: boolPtr(false)},
			note:    NoteMissingShop,
		},
		{
			name:    "no payment record",
			shop:    shop,
			booking: models.Booking{SubscriptionType: models.SubscriptionCore, IsTrialBooking: boolPtr(false)},
			note:    NoteNoPayment,
		},
		{
			name:    "payment without intent id",
			shop:    shop,
			payment: &models.BookingPayment{},
			booking: models.Booking{SubscriptionType: models.SubscriptionCore, IsTrialBooking: boolPtr(false)},
			note:    NoteNoPayment,
		},
		{
			name:    "premium booking",
			shop:    shop,
			payment: paid,
			booking: models.Booking{SubscriptionType: models.SubscriptionPremium, IsTrialBooking: boolPtr(false)},
			note:    NoteNotCore,
		},
		{
			name:    "trial booking",
			shop:    shop,
			payment: paid,
			booking: models.Booking{SubscriptionType: models.SubscriptionCore, IsTrialBooking: boolPtr(true)},
			note:    NoteTrialBooking,
		},
		{
			name:    "trial flag never recorded",
			shop:    shop,
			payment: paid,
			booking: models.Booking{SubscriptionType: models.SubscriptionCore},
			note:    NoteUnknownReason,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := DecideRefund(tt.shop, tt.payment, &tt.booking)
			assert.Equal(t, tt.eligible, decision.Eligible)
			assert.Equal(t, tt.note, decision.Note)
			if tt.eligible {
				assert.Equal(t, "pi_123", decision.PaymentIntentID)
			} else {
				assert.Empty(t, decision.PaymentIntentID)
			}
		})
	}
}
