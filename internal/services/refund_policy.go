package services

import "github.com/K3mp3/FixMatch/internal/models"

// Refund outcome strings returned to the client.
const (
	RefundStatusProcessed   = "Refund processed successfully"
	RefundStatusFailed      = "Refund processing failed: "
	RefundStatusNotEligible = "Booking not eligible for refund"
)

// Refund eligibility notes, in the order they are checked.
const (
	NoteMissingShop   = "Missing shop data"
	NoteNoPayment     = "No payment record found"
	NoteNotCore       = "Not a core subscription"
	NoteTrialBooking  = "Trial booking"
	NoteUnknownReason = "Unknown reason"
)

// RefundDecision is the outcome of the refund policy for one cancellation.
type RefundDecision struct {
	Eligible        bool
	PaymentIntentID string
	Note            string
}

// DecideRefund applies the refund policy. A booking fee is refunded only when
// the shop exists, a payment intent was recorded, the booking was billed on the
// core plan and it was explicitly not a trial booking.
func DecideRefund(shop *models.User, payment *models.BookingPayment, booking *models.Booking) RefundDecision {
	intent := ""
	if payment != nil {
		intent = payment.PaymentIntentID
	}
	notTrial := booking.IsTrialBooking != nil && !*booking.IsTrialBooking
	if shop != nil && intent != "" && booking.SubscriptionType == models.SubscriptionCore && notTrial {
		return RefundDecision{Eligible: true, PaymentIntentID: intent}
	}

	var note string
	switch {
	case shop == nil:
		note = NoteMissingShop
	case intent == "":
		note = NoteNoPayment
	case booking.SubscriptionType != models.SubscriptionCore:
		note = NoteNotCore
	case booking.IsTrialBooking != nil && *booking.IsTrialBooking:
		note = NoteTrialBooking
	default:
		note = NoteUnknownReason
	}
	return RefundDecision{Note: note}
}
