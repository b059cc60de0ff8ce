package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/storage"
	"github.com/K3mp3/FixMatch/internal/utils"
)

const (
	requestsCollection = "contactRepairShops"

	pdfContentType = "application/pdf"
)

// CreateRequestInput is a customer's repair inquiry.
type CreateRequestInput struct {
	Email              string                   `json:"email" binding:"required,email"`
	Location           string                   `json:"location" binding:"required,notblank"`
	RegistrationNumber string                   `json:"registrationNumber" binding:"required,notblank"`
	CustomerMessage    []models.CustomerMessage `json:"customerMessage" binding:"required,min=1"`
	GearType           string                   `json:"gearType"`
	ValidDate          string                   `json:"validDate" binding:"required,datestr"`
}

// AnswerInput is a shop's priced offer for one request line.
type AnswerInput struct {
	RequestID             string  `json:"id"`
	Address               string  `json:"address"`
	Type                  string  `json:"type"`
	Work                  string  `json:"work"`
	RegistrationNumber    string  `json:"registrationNumber"`
	UUID                  string  `json:"uuid"`
	CustomerMessageID     string  `json:"customerMessageId"`
	RepairShopName        string  `json:"repairShopName"`
	RepairShopEmail       string  `json:"repairShopEmail"`
	RepairShopPhoneNumber string  `json:"repairShopPhoneNumber"`
	PriceOffer            float64 `json:"priceOffer"`
	TypeOfFix             string  `json:"typeOfFix"`
	Declined              bool    `json:"declined"`
	WorkTime              float64 `json:"workTime"`
	ValidOfferDate        string  `json:"validOfferDate"`
}

// Attachment is an uploaded file.
type Attachment struct {
	FileName string
	Data     []byte
}

// ShopProfile is the public part of a repair shop account shown next to an offer.
type ShopProfile struct {
	AnswerID       string            `json:"answerId"`
	UID            string            `json:"uid"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Address        string            `json:"address"`
	Location       string            `json:"location"`
	PostalCode     string            `json:"postalCode"`
	PhoneNumber    string            `json:"phoneNumber"`
	RepairShop     bool              `json:"repairShop"`
	FirstSignIn    bool              `json:"firstSignIn"`
	LastSignIn     *time.Time        `json:"lastSignIn,omitempty"`
	IsRentalCar    bool              `json:"isRentalCar"`
	WorkWarranty   string            `json:"workWarranty"`
	PartsWarranty  string            `json:"partsWarranty"`
	PaymentOptions []string          `json:"paymentOptions"`
	WhenIsPayment  string            `json:"whenIsPayment"`
	DropOffTime    string            `json:"dropOffTime"`
	SelectedTimes  []models.TimeSlot `json:"selectedTimes"`
}

// JobResponse is a request narrowed to one line, with the offers for it.
type JobResponse struct {
	DocID string `json:"docId"`
	models.RepairRequest
	RepairShops []ShopProfile `json:"repairShops"`
}

// IRequestService manages repair requests and the offers shops attach to them.
type IRequestService interface {
	Create(ctx context.Context, in CreateRequestInput) (string, error)
	RetrieveForShop(ctx context.Context, email string) ([]models.RepairRequest, error)
	Answer(ctx context.Context, in AnswerInput, pdf *Attachment) error
	GetPDF(ctx context.Context, fileName string) ([]byte, error)
	RetrieveUserSent(ctx context.Context, email string) ([]models.RepairRequest, error)
	DeleteJob(ctx context.Context, requestID, customerMessageID string) error
	FetchJobResponse(ctx context.Context, customerMessageID string) ([]JobResponse, error)
	FindByRequestIDs(ctx context.Context, requestIDs []string) ([]models.RepairRequest, error)
}

// requestService implements IRequestService.
type requestService struct {
	db       *mongo.Database
	notifier INotificationService
	objects  storage.IObjectStorage
	now      func() time.Time
}

// NewRequestService creates a new RequestService.
func NewRequestService(db *mongo.Database, notifier INotificationService, objects storage.IObjectStorage) IRequestService {
	return &requestService{
		db:       db,
		notifier: notifier,
		objects:  objects,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *requestService) Create(ctx context.Context, in CreateRequestInput) (string, error) {
	validDate, err := utils.ParseDate(in.ValidDate)
	if err != nil {
		return "", fmt.Errorf("%w: validDate: %v", ErrValidation, err)
	}

	lines := make([]models.CustomerMessage, len(in.CustomerMessage))
	for i, line := range in.CustomerMessage {
		if line.ID == "" {
			line.ID = uuid.NewString()
		}
		lines[i] = line
	}
	request := &models.RepairRequest{
		RequestID:          uuid.NewString(),
		CustomerEmail:      strings.ToLower(strings.TrimSpace(in.Email)),
		Location:           in.Location,
		RegistrationNumber: in.RegistrationNumber,
		CustomerMessage:    lines,
		GearType:           in.GearType,
		ValidDate:          validDate,
		RepairShopAnswers:  []models.RepairShopAnswer{},
		CreatedAt:          s.now(),
	}
	err = db.Try(func() error {
		request.GenID()
		_, insertErr := s.db.Collection(requestsCollection).InsertOne(ctx, request)
		return insertErr
	})
	if err != nil {
		return "", fmt.Errorf("error saving request: %w", err)
	}

	s.notifyShops(ctx, in.Location)
	return request.ID, nil
}

// notifyShops emails every repair shop in the location about a new request.
func (s *requestService) notifyShops(ctx context.Context, location string) {
	cursor, err := s.db.Collection(usersCollection).Find(ctx, bson.M{"location": location, "repairShop": true})
	if err != nil {
		log.Printf("Failed to find repair shops in %s: %v", location, err)
		return
	}
	var shops []models.User
	if err := cursor.All(ctx, &shops); err != nil {
		log.Printf("Failed to decode repair shops in %s: %v", location, err)
		return
	}
	for _, shop := range shops {
		if err := s.notifier.Dispatch(ctx, shop.Email, TemplateNewRequests, map[string]string{"location": location}); err != nil {
			log.Printf("Failed to dispatch new request email to %s: %v", shop.Email, err)
		}
	}
}

func (s *requestService) findRequests(ctx context.Context, filter bson.M) ([]models.RepairRequest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.db.Collection(requestsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding requests: %w", err)
	}
	var requests []models.RepairRequest
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("error decoding requests: %w", err)
	}
	return requests, nil
}

// RetrieveForShop returns the open requests in the shop's location.
func (s *requestService) RetrieveForShop(ctx context.Context, email string) ([]models.RepairRequest, error) {
	shop, err := findUserByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	requests, err := s.findRequests(ctx, bson.M{"location": shop.Location})
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: requests", ErrNotFound)
	}
	return OpenRequests(requests, s.now()), nil
}

// OpenRequests keeps requests still valid at now, dropping duplicates that
// share the registration number and message lines.
func OpenRequests(requests []models.RepairRequest, now time.Time) []models.RepairRequest {
	seen := map[string]bool{}
	out := []models.RepairRequest{}
	for _, r := range requests {
		if !r.ValidDate.After(now) {
			continue
		}
		key := requestKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func requestKey(r models.RepairRequest) string {
	lines, err := json.Marshal(r.CustomerMessage)
	if err != nil {
		return r.RegistrationNumber + "-" + r.ID
	}
	return r.RegistrationNumber + "-" + string(lines)
}

func (s *requestService) Answer(ctx context.Context, in AnswerInput, pdf *Attachment) error {
	if strings.TrimSpace(in.RequestID) == "" {
		return fmt.Errorf("%w: request id is required", ErrValidation)
	}

	answer := models.RepairShopAnswer{
		ID:                    in.RequestID,
		Address:               in.Address,
		Type:                  orDefault(in.Type, "Unknown"),
		Work:                  orDefault(in.Work, "None"),
		RegistrationNumber:    in.RegistrationNumber,
		UUID:                  in.UUID,
		CustomerMessageID:     in.CustomerMessageID,
		RepairShopName:        orDefault(in.RepairShopName, "Unknown"),
		RepairShopEmail:       in.RepairShopEmail,
		RepairShopPhoneNumber: orDefault(in.RepairShopPhoneNumber, "None"),
		PriceOffer:            in.PriceOffer,
		TypeOfFix:             orDefault(in.TypeOfFix, "None"),
		Declined:              in.Declined,
		WorkTime:              in.WorkTime,
		ValidOfferDate:        in.ValidOfferDate,
	}

	collection := s.db.Collection(requestsCollection)
	count, err := collection.CountDocuments(ctx, bson.M{"id": in.RequestID})
	if err != nil {
		return fmt.Errorf("error finding request: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: request %s", ErrNotFound, in.RequestID)
	}

	if pdf != nil && len(pdf.Data) > 0 {
		fileName := storage.NewPDFFileName(pdf.FileName)
		if err := s.objects.Put(ctx, storage.PDFKey(fileName), pdfContentType, pdf.Data); err != nil {
			return fmt.Errorf("error storing offer pdf: %w", err)
		}
		answer.PDFFileName = fileName
	}

	_, err = collection.UpdateMany(ctx, bson.M{"id": in.RequestID}, bson.M{"$addToSet": bson.M{"repairShopAnswers": answer}})
	if err != nil {
		return fmt.Errorf("error saving answer: %w", err)
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func (s *requestService) GetPDF(ctx context.Context, fileName string) ([]byte, error) {
	data, err := s.objects.Get(ctx, storage.PDFKey(fileName))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: pdf %s", ErrNotFound, fileName)
		}
		return nil, err
	}
	return data, nil
}

func (s *requestService) RetrieveUserSent(ctx context.Context, email string) ([]models.RepairRequest, error) {
	if _, err := findUserByEmail(ctx, s.db, email); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: user", ErrNoContent)
		}
		return nil, err
	}
	requests, err := s.findRequests(ctx, bson.M{"customerEmail": strings.ToLower(strings.TrimSpace(email))})
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: no sent requests", ErrNoContent)
	}
	return requests, nil
}

// DeleteJob removes one line of a request, or the whole request when it is the last line.
func (s *requestService) DeleteJob(ctx context.Context, requestID, customerMessageID string) error {
	collection := s.db.Collection(requestsCollection)
	var request models.RepairRequest
	if err := collection.FindOne(ctx, bson.M{"id": requestID}).Decode(&request); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: job", ErrNotFound)
		}
		return fmt.Errorf("error finding job: %w", err)
	}

	if len(request.CustomerMessage) <= 1 {
		if _, err := collection.DeleteOne(ctx, bson.M{"_id": request.ID}); err != nil {
			return fmt.Errorf("error deleting job: %w", err)
		}
		return nil
	}
	update := bson.M{"$pull": bson.M{"customerMessage": bson.M{"id": customerMessageID}}}
	if _, err := collection.UpdateOne(ctx, bson.M{"_id": request.ID}, update); err != nil {
		return fmt.Errorf("error removing job line: %w", err)
	}
	return nil
}

// FetchJobResponse returns the offers for one request line with the profiles of the shops behind them.
func (s *requestService) FetchJobResponse(ctx context.Context, customerMessageID string) ([]JobResponse, error) {
	if customerMessageID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrValidation)
	}
	requests, err := s.findRequests(ctx, bson.M{"repairShopAnswers.customerMessageId": customerMessageID})
	if err != nil {
		return nil, err
	}

	out := []JobResponse{}
	for _, r := range requests {
		resp := JobResponse{DocID: r.ID, RepairRequest: r, RepairShops: []ShopProfile{}}
		resp.RepairShopAnswers = nil
		for _, a := range r.RepairShopAnswers {
			if a.CustomerMessageID == customerMessageID {
				resp.RepairShopAnswers = append(resp.RepairShopAnswers, a)
			}
		}
		resp.CustomerMessage = nil
		for _, m := range r.CustomerMessage {
			if m.ID == customerMessageID {
				resp.CustomerMessage = append(resp.CustomerMessage, m)
			}
		}
		if len(resp.RepairShopAnswers) == 0 {
			continue
		}
		for _, a := range resp.RepairShopAnswers {
			if a.UUID == "" {
				continue
			}
			shop, err := findUserByUID(ctx, s.db, a.UUID)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					log.Printf("Failed to load shop %s for answer %s: %v", a.UUID, a.ID, err)
				}
				continue
			}
			resp.RepairShops = append(resp.RepairShops, profileOf(a.ID, shop))
		}
		out = append(out, resp)
	}
	return out, nil
}

func profileOf(answerID string, u *models.User) ShopProfile {
	return ShopProfile{
		AnswerID:       answerID,
		UID:            u.UID,
		Name:           u.Name,
		Email:          u.Email,
		Address:        u.Address,
		Location:       u.Location,
		PostalCode:     u.PostalCode,
		PhoneNumber:    u.PhoneNumber,
		RepairShop:     u.RepairShop,
		FirstSignIn:    u.FirstSignIn,
		LastSignIn:     u.LastSignIn,
		IsRentalCar:    u.IsRentalCar,
		WorkWarranty:   u.WorkWarranty,
		PartsWarranty:  u.PartsWarranty,
		PaymentOptions: []string{},
		WhenIsPayment:  u.WhenIsPayment,
		DropOffTime:    u.DropOffTime,
		SelectedTimes:  u.SelectedTimes,
	}
}

// FindByRequestIDs returns the requests carrying any of the application ids.
func (s *requestService) FindByRequestIDs(ctx context.Context, requestIDs []string) ([]models.RepairRequest, error) {
	requests, err := s.findRequests(ctx, bson.M{"id": bson.M{"$in": requestIDs}})
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: requests", ErrNotFound)
	}
	return requests, nil
}
