package models

import "time"

// Subscription types of a repair shop account.
const (
	SubscriptionNone    = ""
	SubscriptionCore    = "core"
	SubscriptionPremium = "premium"
)

// TimeSlot is one weekday of a shop's opening hours.
type TimeSlot struct {
	Day        string `bson:"day" json:"day"`
	Open       string `bson:"open" json:"open"`
	Close      string `bson:"close" json:"close"`
	LunchStart string `bson:"lunchStart" json:"lunchStart"`
	LunchEnd   string `bson:"lunchEnd" json:"lunchEnd"`
	ID         string `bson:"id" json:"id"`
	IsOpen     bool   `bson:"isOpen" json:"isOpen"`
	HasLunch   bool   `bson:"hasLunch" json:"hasLunch"`
}

// User is a customer or repair shop account.
type User struct {
	Base              `bson:",inline"`
	UID               string     `bson:"uid" json:"uid"`
	Name              string     `bson:"name" json:"name"`
	Email             string     `bson:"email" json:"email"`
	RepairShop        bool       `bson:"repairShop" json:"repairShop"`
	AgreementAccepted bool       `bson:"agreementAccepted" json:"agreementAccepted"`
	IsAdmin           bool       `bson:"isAdmin,omitempty" json:"isAdmin,omitempty"`
	CreatedAt         time.Time  `bson:"createdAt" json:"createdAt"` // trial anchor
	LastSignIn        *time.Time `bson:"lastSignIn,omitempty" json:"lastSignIn,omitempty"`
	Verified          bool       `bson:"verified" json:"verified"`
	ExpiresAt         *time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"`

	// Repair shop profile
	FirstSignIn    bool       `bson:"firstSignIn,omitempty" json:"firstSignIn,omitempty"`
	PhoneNumber    string     `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	PostalCode     string     `bson:"postalCode,omitempty" json:"postalCode,omitempty"`
	Address        string     `bson:"address,omitempty" json:"address,omitempty"`
	Location       string     `bson:"location,omitempty" json:"location,omitempty"`
	SelectedTimes  []TimeSlot `bson:"selectedTimes,omitempty" json:"selectedTimes,omitempty"`
	WorkWarranty   string     `bson:"workWarranty,omitempty" json:"workWarranty,omitempty"`
	PartsWarranty  string     `bson:"partsWarranty,omitempty" json:"partsWarranty,omitempty"`
	IsRentalCar    bool       `bson:"isRentalCar,omitempty" json:"isRentalCar,omitempty"`
	PaymentOptions []string   `bson:"paymentOptions,omitempty" json:"paymentOptions,omitempty"`
	WhenIsPayment  string     `bson:"whenIsPayment,omitempty" json:"whenIsPayment,omitempty"`
	DropOffTime    string     `bson:"dropOffTime,omitempty" json:"dropOffTime,omitempty"`

	SubscriptionType      string     `bson:"subscriptionType,omitempty" json:"subscriptionType,omitempty"`
	SessionID             *string    `bson:"sessionId" json:"sessionId,omitempty"`
	Deleted               *time.Time `bson:"deleted" json:"deleted,omitempty"`
	NewPaymentDate        *time.Time `bson:"newPaymentDate,omitempty" json:"newPaymentDate,omitempty"`
	NextFeeDate           *time.Time `bson:"nextFeeDate,omitempty" json:"nextFeeDate,omitempty"`
	SubscriptionCancelled bool       `bson:"subscriptionCancelled,omitempty" json:"subscriptionCancelled,omitempty"`
	StripeError           string     `bson:"stripeError,omitempty" json:"stripeError,omitempty"`

	TrialEndingNotified     bool       `bson:"trialEndingNotified,omitempty" json:"trialEndingNotified,omitempty"`
	TrialEndingNotifiedDate *time.Time `bson:"trialEndingNotifiedDate,omitempty" json:"trialEndingNotifiedDate,omitempty"`
}

// Session returns the billing checkout session id, or "" when none is stored.
func (u *User) Session() string {
	if u.SessionID == nil {
		return ""
	}
	return *u.SessionID
}
