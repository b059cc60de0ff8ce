package models

import "time"

// BookingPayment records the payment intent created for an accepted booking.
type BookingPayment struct {
	Base            `bson:",inline"`
	Amount          int64     `bson:"amount" json:"amount"`
	BookingID       string    `bson:"bookingId" json:"bookingId"` // booking requestId
	AcceptedDate    time.Time `bson:"acceptedDate" json:"acceptedDate"`
	Currency        string    `bson:"currency" json:"currency"`
	UID             string    `bson:"uid" json:"uid"` // shop uid
	ClientSecret    string    `bson:"clientSecret" json:"clientSecret"`
	PaymentIntentID string    `bson:"paymentIntentId" json:"paymentIntentId"`
	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
}
