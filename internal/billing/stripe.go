package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type stripeProvider struct {
	api *client.API
}

// NewStripeProvider returns a Provider backed by the Stripe API.
func NewStripeProvider(secretKey string) Provider {
	return &stripeProvider{api: client.New(secretKey, nil)}
}

// translate converts a Stripe error into *Error, mapping 404s to ErrNotFound.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, se.Msg)
		}
		return &Error{Message: se.Msg, Code: string(se.Code), Type: string(se.Type), Err: err}
	}
	return &Error{Message: err.Error(), Err: err}
}

func (s *stripeProvider) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, translate(err)
	}
	return toCheckoutSession(cs), nil
}

func (s *stripeProvider) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		AutomaticTax: &stripe.CheckoutSessionAutomaticTaxParams{Enabled: stripe.Bool(true)},
		SuccessURL:   stripe.String(p.SuccessURL),
		CancelURL:    stripe.String(p.CancelURL),
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	params.Context = ctx
	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, translate(err)
	}
	return toCheckoutSession(cs), nil
}

func toCheckoutSession(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:            cs.ID,
		URL:           cs.URL,
		PaymentStatus: string(cs.PaymentStatus),
	}
	if cs.Customer != nil {
		out.CustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		out.SubscriptionID = cs.Subscription.ID
	}
	return out
}

func (s *stripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, translate(err)
	}
	return toSubscription(sub), nil
}

func (s *stripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := s.api.Subscriptions.Cancel(subscriptionID, params)
	return translate(err)
}

func (s *stripeProvider) CancelSubscriptionAtPeriodEnd(ctx context.Context, subscriptionID string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx
	sub, err := s.api.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, translate(err)
	}
	return toSubscription(sub), nil
}

func toSubscription(sub *stripe.Subscription) *Subscription {
	return &Subscription{
		ID:               sub.ID,
		Status:           string(sub.Status),
		CurrentPeriodEnd: time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}
}

func (s *stripeProvider) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Limit = stripe.Int64(1)
	params.Context = ctx
	iter := s.api.Customers.List(params)
	if !iter.Next() {
		if err := iter.Err(); err != nil {
			return nil, translate(err)
		}
		return nil, fmt.Errorf("%w: no customer with email %s", ErrNotFound, email)
	}
	c := iter.Customer()

	subParams := &stripe.SubscriptionListParams{Customer: stripe.String(c.ID)}
	subParams.Context = ctx
	customer := &Customer{ID: c.ID, Email: c.Email}
	subs := s.api.Subscriptions.List(subParams)
	for subs.Next() {
		customer.SubscriptionIDs = append(customer.SubscriptionIDs, subs.Subscription().ID)
	}
	if err := subs.Err(); err != nil {
		return nil, translate(err)
	}
	return customer, nil
}

func (s *stripeProvider) DeleteCustomer(ctx context.Context, customerID string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	_, err := s.api.Customers.Del(customerID, params)
	return translate(err)
}

func (s *stripeProvider) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(p.Amount),
		Currency:    stripe.String(p.Currency),
		Description: stripe.String(p.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translate(err)
	}
	return &PaymentIntent{ID: pi.ID, ClientSecret: pi.ClientSecret, Amount: pi.Amount}, nil
}

func (s *stripeProvider) RefundPaymentIntent(ctx context.Context, paymentIntentID string) (*Refund, error) {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	r, err := s.api.Refunds.New(params)
	if err != nil {
		return nil, translate(err)
	}
	return &Refund{ID: r.ID, Amount: r.Amount, Status: string(r.Status)}, nil
}
