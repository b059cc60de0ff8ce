package billing

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeProvider is an in-memory Provider used when no billing key is
// configured. Every call is logged and succeeds.
type FakeProvider struct {
	mu            sync.Mutex
	sessions      map[string]*CheckoutSession
	subscriptions map[string]*Subscription
	customers     map[string]*Customer
	refunded      map[string]bool
}

// NewFakeProvider creates an empty FakeProvider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		sessions:      make(map[string]*CheckoutSession),
		subscriptions: make(map[string]*Subscription),
		customers:     make(map[string]*Customer),
		refunded:      make(map[string]bool),
	}
}

func fakeID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:13]
}

func (f *FakeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	copied := *s
	return &copied, nil
}

// CreateCheckoutSession registers a customer with a trialing subscription.
// The session is reported as paid so sign-in flows can be exercised locally.
func (f *FakeProvider) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	customer := &Customer{ID: fakeID("cus"), Email: p.CustomerEmail}
	sub := &Subscription{ID: fakeID("sub"), Status: "trialing", CurrentPeriodEnd: time.Now().AddDate(0, 1, 0).UTC()}
	customer.SubscriptionIDs = []string{sub.ID}
	session := &CheckoutSession{
		ID:             fakeID("cs"),
		CustomerID:     customer.ID,
		SubscriptionID: sub.ID,
		PaymentStatus:  "paid",
	}
	session.URL = p.SuccessURL + "?session_id=" + session.ID
	f.customers[customer.ID] = customer
	f.subscriptions[sub.ID] = sub
	f.sessions[session.ID] = session
	log.Printf("[billing fake] created checkout session %s for %s (price %s)", session.ID, p.CustomerEmail, p.PriceID)
	copied := *session
	return &copied, nil
}

func (f *FakeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", ErrNotFound, subscriptionID)
	}
	copied := *sub
	return &copied, nil
}

func (f *FakeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return fmt.Errorf("%w: subscription %s", ErrNotFound, subscriptionID)
	}
	sub.Status = "canceled"
	log.Printf("[billing fake] cancelled subscription %s", subscriptionID)
	return nil
}

func (f *FakeProvider) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, fmt.Errorf("%w: subscription %s", ErrNotFound, subscriptionID)
	}
	log.Printf("[billing fake] subscription %s cancels at %s", subscriptionID, sub.CurrentPeriodEnd.Format(time.RFC3339))
	copied := *sub
	return &copied, nil
}

func (f *FakeProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if c.Email == email {
			copied := *c
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: no customer with email %s", ErrNotFound, email)
}

func (f *FakeProvider) DeleteCustomer(ctx context.Context, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.customers[customerID]; !ok {
		return fmt.Errorf("%w: customer %s", ErrNotFound, customerID)
	}
	delete(f.customers, customerID)
	log.Printf("[billing fake] deleted customer %s", customerID)
	return nil
}

func (f *FakeProvider) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (*PaymentIntent, error) {
	id := fakeID("pi")
	log.Printf("[billing fake] payment intent %s: %d %s (%s)", id, p.Amount, p.Currency, p.Description)
	return &PaymentIntent{ID: id, ClientSecret: id + "_secret_" + uuid.NewString()[:8], Amount: p.Amount}, nil
}

func (f *FakeProvider) RefundPaymentIntent(ctx context.Context, paymentIntentID string) (*Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refunded[paymentIntentID] {
		return nil, &Error{Message: "charge already refunded", Code: "charge_already_refunded", Type: "invalid_request_error"}
	}
	f.refunded[paymentIntentID] = true
	log.Printf("[billing fake] refunded %s", paymentIntentID)
	return &Refund{ID: fakeID("re"), Status: "succeeded"}, nil
}
