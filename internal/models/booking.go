package models

import (
	"strings"
	"time"
)

// BookingStatus is the explicit state of a booking.
type BookingStatus string

const (
	BookingStatusProposed  BookingStatus = "proposed"
	BookingStatusSuggested BookingStatus = "suggested"
	BookingStatusAccepted  BookingStatus = "accepted"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// Cancellation sides.
const (
	CancelledByCustomer   = "customer"
	CancelledByRepairShop = "repairShop"
)

// AcceptedByRepairShop marks which shop accepted the booking.
type AcceptedByRepairShop struct {
	UID string `bson:"uid,omitempty" json:"uid,omitempty"`
}

// AcceptedDate is the date a party settled on.
type AcceptedDate struct {
	UID          string `bson:"uid" json:"uid"`
	RequestID    string `bson:"requestId" json:"requestId"`
	AcceptedDate string `bson:"acceptedDate" json:"acceptedDate"`
}

// SuggestedDates is a repair shop counter-proposal.
type SuggestedDates struct {
	UID        string `bson:"uid" json:"uid"`
	RequestID  string `bson:"requestId" json:"requestId"`
	FirstDate  string `bson:"firstDate" json:"firstDate"`
	SecondDate string `bson:"secondDate" json:"secondDate"`
	ThirdDate  string `bson:"thirdDate" json:"thirdDate"`
}

// RefundError is recorded when the billing provider rejects a refund.
type RefundError struct {
	Message string `bson:"message" json:"message"`
	Code    string `bson:"code,omitempty" json:"code,omitempty"`
	Type    string `bson:"type,omitempty" json:"type,omitempty"`
}

// Booking is one appointment negotiation between a customer and a repair shop
// for a single request line.
type Booking struct {
	Base `bson:",inline"`

	Status     BookingStatus `bson:"status" json:"status"`
	BookingKey string        `bson:"bookingKey,omitempty" json:"-"`

	DateOne   string `bson:"dateOne" json:"dateOne"`
	DateTwo   string `bson:"dateTwo" json:"dateTwo"`
	DateThree string `bson:"dateThree" json:"dateThree"`

	RequestID          string  `bson:"requestId" json:"requestId"`
	CustomerMessageID  string  `bson:"customerMessageId" json:"customerMessageId"`
	RepairShopUID      string  `bson:"repairShopUid" json:"repairShopUid"`
	CustomerEmail      string  `bson:"customerEmail" json:"customerEmail"`
	PriceOffer         float64 `bson:"priceOffer" json:"priceOffer"`
	RegistrationNumber string  `bson:"registrationNumber" json:"registrationNumber"`
	TypeOfFix          string  `bson:"typeOfFix" json:"typeOfFix"`
	CustomerMessage    string  `bson:"customerMessage" json:"customerMessage"`
	Type               string  `bson:"type" json:"type"`
	Work               string  `bson:"work" json:"work"`

	AcceptedByRepairShop *AcceptedByRepairShop `bson:"acceptedByRepairShop,omitempty" json:"acceptedByRepairShop,omitempty"`
	SaveAcceptedDate     *AcceptedDate         `bson:"saveAcceptedDate,omitempty" json:"saveAcceptedDate,omitempty"`
	DateAccepted         *time.Time            `bson:"dateAccepted,omitempty" json:"dateAccepted,omitempty"`
	SuggestedDates       *SuggestedDates       `bson:"suggestedDates,omitempty" json:"suggestedDates,omitempty"`
	AcceptedByCustomer   *AcceptedDate         `bson:"acceptedByCustomer,omitempty" json:"acceptedByCustomer,omitempty"`

	PriceToPay       *int64 `bson:"priceToPay,omitempty" json:"priceToPay,omitempty"`
	SubscriptionType string `bson:"subscriptionType,omitempty" json:"subscriptionType,omitempty"`
	IsTrialBooking   *bool  `bson:"isTrialBooking,omitempty" json:"isTrialBooking,omitempty"`
	PaymentCompleted *bool  `bson:"paymentCompleted,omitempty" json:"paymentCompleted,omitempty"`

	RepairShopName string `bson:"repairShopName,omitempty" json:"repairShopName,omitempty"`
	Address        string `bson:"address,omitempty" json:"address,omitempty"`
	Location       string `bson:"location,omitempty" json:"location,omitempty"`
	PhoneNumber    string `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	PostalCode     string `bson:"postalCode,omitempty" json:"postalCode,omitempty"`

	Declined           bool       `bson:"declined" json:"declined"`
	Refunded           bool       `bson:"refunded,omitempty" json:"refunded,omitempty"`
	CancellationDate   *time.Time `bson:"cancellationDate,omitempty" json:"cancellationDate,omitempty"`
	CancelledBy        string     `bson:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`
	CancellationReason string     `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`

	RefundID              string       `bson:"refundId,omitempty" json:"refundId,omitempty"`
	RefundAmount          int64        `bson:"refundAmount,omitempty" json:"refundAmount,omitempty"`
	RefundStatus          string       `bson:"refundStatus,omitempty" json:"refundStatus,omitempty"`
	RefundDate            *time.Time   `bson:"refundDate,omitempty" json:"refundDate,omitempty"`
	RefundAttempted       bool         `bson:"refundAttempted,omitempty" json:"refundAttempted,omitempty"`
	RefundFailed          bool         `bson:"refundFailed,omitempty" json:"refundFailed,omitempty"`
	RefundError           *RefundError `bson:"refundError,omitempty" json:"refundError,omitempty"`
	RefundAttemptDate     *time.Time   `bson:"refundAttemptDate,omitempty" json:"refundAttemptDate,omitempty"`
	RefundEligible        *bool        `bson:"refundEligible,omitempty" json:"refundEligible,omitempty"`
	RefundEligibilityNote string       `bson:"refundEligibilityNote,omitempty" json:"refundEligibilityNote,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// BookingKey joins the identifying triple. Only active bookings carry it.
func BookingKey(requestID, customerMessageID, repairShopUID string) string {
	return strings.Join([]string{requestID, customerMessageID, repairShopUID}, "|")
}

// DeriveStatus infers the state of a document written before status existed.
// Legacy documents stored empty objects for absent sub-documents.
func (b *Booking) DeriveStatus() BookingStatus {
	switch {
	case b.Declined:
		return BookingStatusCancelled
	case b.SuggestedDates != nil && b.SuggestedDates.UID != "":
		return BookingStatusSuggested
	case b.AcceptedByRepairShop != nil && b.AcceptedByRepairShop.UID != "":
		return BookingStatusAccepted
	default:
		return BookingStatusProposed
	}
}

// AcceptedAt returns the agreed appointment date, if any.
func (b *Booking) AcceptedAt() string {
	if b.SaveAcceptedDate != nil && b.SaveAcceptedDate.AcceptedDate != "" {
		return b.SaveAcceptedDate.AcceptedDate
	}
	if b.AcceptedByCustomer != nil {
		return b.AcceptedByCustomer.AcceptedDate
	}
	return ""
}
