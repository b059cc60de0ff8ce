package services

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/K3mp3/FixMatch/internal/billing"
	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/utils"
)

// VATPercent is the Swedish VAT added on top of the booking fee.
const VATPercent = 25

// PaymentIntentInput is a shop paying the fee of an accepted booking.
type PaymentIntentInput struct {
	Amount       int64  `json:"amount" binding:"required,gt=0"` // whole currency units, excluding VAT
	BookingID    string `json:"bookingId" binding:"required,notblank"`
	AcceptedDate string `json:"acceptedDate" binding:"required,datestr"`
	Currency     string `json:"currency" binding:"required,notblank"`
	UID          string `json:"uid"`
}

// PaymentIntentResult is handed to the client to confirm the payment.
type PaymentIntentResult struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	PaymentAmount   int64  `json:"paymentAmount"`
}

// IPaymentService creates payment intents for booking fees.
type IPaymentService interface {
	CreateIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntentResult, error)
}

type paymentService struct {
	db      *mongo.Database
	billing billing.Provider
	now     func() time.Time
}

// NewPaymentService creates a new IPaymentService.
func NewPaymentService(db *mongo.Database, billingProvider billing.Provider) IPaymentService {
	return &paymentService{db: db, billing: billingProvider, now: func() time.Time { return time.Now().UTC() }}
}

// VAT returns the VAT on amount, rounded to whole units.
func VAT(amount int64) int64 {
	return int64(math.Round(float64(amount) * VATPercent / 100))
}

func (s *paymentService) CreateIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntentResult, error) {
	acceptedDate, err := utils.ParseDate(in.AcceptedDate)
	if err != nil {
		return nil, fmt.Errorf("%w: acceptedDate: %v", ErrValidation, err)
	}

	vat := VAT(in.Amount)
	intent, err := s.billing.CreatePaymentIntent(ctx, billing.PaymentIntentParams{
		Amount:      (in.Amount + vat) * 100,
		Currency:    in.Currency,
		Description: fmt.Sprintf("Booking fee: %d kr + VAT (%d%%): %d kr", in.Amount, VATPercent, vat),
		Metadata: map[string]string{
			"bookingId":     in.BookingID,
			"acceptedDate":  in.AcceptedDate,
			"baseAmount":    strconv.FormatInt(in.Amount, 10),
			"vatAmount":     strconv.FormatInt(vat, 10),
			"vatPercentage": strconv.Itoa(VATPercent),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	payment := &models.BookingPayment{
		Amount:          in.Amount,
		BookingID:       in.BookingID,
		AcceptedDate:    acceptedDate,
		Currency:        in.Currency,
		UID:             in.UID,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		CreatedAt:       s.now(),
	}
	err = db.Try(func() error {
		payment.GenID()
		_, insertErr := s.db.Collection(bookingPaymentsCollection).InsertOne(ctx, payment)
		return insertErr
	})
	if err != nil {
		return nil, fmt.Errorf("error saving booking payment: %w", err)
	}

	return &PaymentIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		PaymentAmount:   in.Amount,
	}, nil
}
