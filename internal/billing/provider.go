// Package billing wraps the payment provider used for subscriptions, booking
// fees and refunds.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the provider has no matching object.
var ErrNotFound = errors.New("billing object not found")

// Error carries the provider's failure details so they can be stored.
type Error struct {
	Message string
	Code    string
	Type    string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("billing error (%s/%s): %s", e.Type, e.Code, e.Message)
	}
	return "billing error: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts provider details from err, wrapping plain errors.
func AsError(err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return &Error{Message: err.Error(), Err: err}
}

type CheckoutSession struct {
	ID             string
	URL            string
	CustomerID     string
	SubscriptionID string
	PaymentStatus  string // "paid", "unpaid", "no_payment_required"
}

// Paid reports whether the checkout has been settled.
func (s *CheckoutSession) Paid() bool {
	return s.PaymentStatus == "paid" || s.PaymentStatus == "no_payment_required"
}

type CheckoutParams struct {
	PriceID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type Subscription struct {
	ID               string
	Status           string
	CurrentPeriodEnd time.Time
}

// Active reports the statuses that count as a valid subscription.
func (s *Subscription) Active() bool {
	return s.Status == "active" || s.Status == "trialing"
}

type Customer struct {
	ID              string
	Email           string
	SubscriptionIDs []string
}

type PaymentIntentParams struct {
	Amount      int64 // minor units
	Currency    string
	Description string
	Metadata    map[string]string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Amount       int64
}

type Refund struct {
	ID     string
	Amount int64
	Status string
}

// Provider is the billing collaborator. Implementations must be safe for concurrent use.
type Provider interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error)
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (*PaymentIntent, error)
	RefundPaymentIntent(ctx context.Context, paymentIntentID string) (*Refund, error)
}

// CleanupAccount cancels the subscription and deletes the customer behind a
// checkout session. When the session cannot be used it falls back to the
// first customer registered with the email.
func CleanupAccount(ctx context.Context, p Provider, sessionID, email string) error {
	if sessionID != "" {
		err := cleanupSession(ctx, p, sessionID)
		if err == nil {
			return nil
		}
		if email == "" {
			return err
		}
		sessionErr := err
		if err := cleanupByEmail(ctx, p, email); err != nil {
			return fmt.Errorf("session cleanup failed (%v), email fallback failed: %w", sessionErr, err)
		}
		return nil
	}
	if email == "" {
		return nil
	}
	return cleanupByEmail(ctx, p, email)
}

func cleanupSession(ctx context.Context, p Provider, sessionID string) error {
	session, err := p.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to retrieve session %s: %w", sessionID, err)
	}
	if session.SubscriptionID != "" {
		if err := p.CancelSubscription(ctx, session.SubscriptionID); err != nil {
			return fmt.Errorf("failed to cancel subscription %s: %w", session.SubscriptionID, err)
		}
	}
	if session.CustomerID != "" {
		if err := p.DeleteCustomer(ctx, session.CustomerID); err != nil {
			return fmt.Errorf("failed to delete customer %s: %w", session.CustomerID, err)
		}
	}
	return nil
}

func cleanupByEmail(ctx context.Context, p Provider, email string) error {
	customer, err := p.FindCustomerByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up customer %s: %w", email, err)
	}
	if len(customer.SubscriptionIDs) > 0 {
		if err := p.CancelSubscription(ctx, customer.SubscriptionIDs[0]); err != nil {
			return fmt.Errorf("failed to cancel subscription %s: %w", customer.SubscriptionIDs[0], err)
		}
	}
	if err := p.DeleteCustomer(ctx, customer.ID); err != nil {
		return fmt.Errorf("failed to delete customer %s: %w", customer.ID, err)
	}
	return nil
}
