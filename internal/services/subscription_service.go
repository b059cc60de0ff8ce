package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/K3mp3/FixMatch/internal/billing"
	"github.com/K3mp3/FixMatch/internal/models"
)

const prospectShopsCollection = "repairShops"

// ShopSettingsInput is the repair shop profile edited in settings and onboarding.
type ShopSettingsInput struct {
	Email            string            `json:"email" binding:"required,email"`
	SelectedTimes    []models.TimeSlot `json:"selectedTimes"`
	WorkWarranty     string            `json:"workWarranty"`
	PartsWarranty    string            `json:"partsWarranty"`
	IsRentalCar      bool              `json:"isRentalCar"`
	PaymentOptions   []string          `json:"paymentOptions"`
	WhenIsPayment    string            `json:"whenIsPayment"`
	DropOffTime      string            `json:"dropOffTime"`
	SubscriptionType string            `json:"subscriptionType" binding:"omitempty,subscription"`
}

// SubscriptionStatus is the answer to a checkout verification.
type SubscriptionStatus struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// ISubscriptionService manages repair shop settings and their billing plan.
type ISubscriptionService interface {
	// SaveSettings stores the profile. Onboarding leaves the stored plan untouched.
	SaveSettings(ctx context.Context, in ShopSettingsInput, onboarding bool) error
	VerifySubscription(ctx context.Context, sessionID string) (*SubscriptionStatus, error)
	Unsubscribe(ctx context.Context, email string) error
}

type subscriptionService struct {
	db      *mongo.Database
	billing billing.Provider
}

// NewSubscriptionService creates a new ISubscriptionService.
func NewSubscriptionService(db *mongo.Database, billingProvider billing.Provider) ISubscriptionService {
	return &subscriptionService{db: db, billing: billingProvider}
}

func (s *subscriptionService) SaveSettings(ctx context.Context, in ShopSettingsInput, onboarding bool) error {
	user, err := findUserByEmail(ctx, s.db, in.Email)
	if err != nil {
		return err
	}

	set := bson.M{
		"selectedTimes":  in.SelectedTimes,
		"workWarranty":   in.WorkWarranty,
		"partsWarranty":  in.PartsWarranty,
		"isRentalCar":    in.IsRentalCar,
		"paymentOptions": in.PaymentOptions,
		"whenIsPayment":  in.WhenIsPayment,
		"firstSignIn":    false,
		"dropOffTime":    in.DropOffTime,
	}
	if !onboarding {
		set["subscriptionType"] = in.SubscriptionType
	}

	if in.SubscriptionType == models.SubscriptionCore && user.SubscriptionType != models.SubscriptionCore && user.Session() != "" {
		for k, v := range s.scheduleCancellation(ctx, user) {
			set[k] = v
		}
	}

	if _, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("error updating settings: %w", err)
	}
	return nil
}

// scheduleCancellation ends a premium subscription at the close of the paid
// period. The returned fields record the outcome on the user.
func (s *subscriptionService) scheduleCancellation(ctx context.Context, user *models.User) bson.M {
	session, err := s.billing.GetCheckoutSession(ctx, user.Session())
	if err != nil {
		log.Printf("Error retrieving checkout session of %s: %v", user.UID, err)
		return bson.M{"stripeError": err.Error()}
	}
	if session.SubscriptionID == "" {
		log.Printf("No subscription found in session of %s", user.UID)
		return nil
	}
	sub, err := s.billing.CancelSubscriptionAtPeriodEnd(ctx, session.SubscriptionID)
	if err != nil {
		log.Printf("Error cancelling subscription of %s at period end: %v", user.UID, err)
		return bson.M{"stripeError": err.Error()}
	}
	return bson.M{"nextFeeDate": sub.CurrentPeriodEnd, "subscriptionCancelled": true}
}

func (s *subscriptionService) VerifySubscription(ctx context.Context, sessionID string) (*SubscriptionStatus, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session ID is required", ErrValidation)
	}
	session, err := s.billing.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, billing.ErrNotFound) {
			return nil, fmt.Errorf("%w: session", ErrNotFound)
		}
		return nil, fmt.Errorf("error retrieving session: %w", err)
	}
	if session.SubscriptionID == "" {
		return &SubscriptionStatus{Message: "No active subscription found for this session"}, nil
	}
	sub, err := s.billing.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving subscription: %w", err)
	}
	if sub.Active() {
		return &SubscriptionStatus{Valid: true, Message: "Subscription is active"}, nil
	}
	return &SubscriptionStatus{Message: "Subscription is not active"}, nil
}

// Unsubscribe removes the address from the prospect mailing list.
func (s *subscriptionService) Unsubscribe(ctx context.Context, email string) error {
	res, err := s.db.Collection(prospectShopsCollection).DeleteOne(ctx, bson.M{"email": strings.TrimSpace(email)})
	if err != nil {
		return fmt.Errorf("error unsubscribing: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: prospect %s", ErrNotFound, email)
	}
	return nil
}
