package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/K3mp3/FixMatch/internal/auth"
	"github.com/K3mp3/FixMatch/internal/billing"
	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/utils"
)

// Registration and sign in failures with client facing meaning.
var (
	ErrRegistrationInProgress = fmt.Errorf("%w: registration in progress", ErrConflict)
	ErrAlreadyRegistered      = fmt.Errorf("%w: already registered", ErrConflict)
	ErrNoRegistration         = fmt.Errorf("%w: no registration in progress", ErrConflict)
	ErrNotVerified            = errors.New("user not verified")
	ErrAccountDeleted         = fmt.Errorf("%w: repair shop user data not found", ErrNotFound)
	ErrPaymentRequired        = errors.New("payment required")
)

const (
	usersCollection            = "users"
	temporaryUsersCollection   = "temporaryUsers"
	notSignedUpShopsCollection = "notSignedUpRepairShops"

	// Sign in is refused from one minute before the scheduled deletion.
	deletionGrace = time.Minute
)

// RegisterInput is the sign up form of a customer or repair shop.
type RegisterInput struct {
	Name              string `json:"name" binding:"required,notblank"`
	Email             string `json:"email" binding:"required,email"`
	Password          string `json:"password" binding:"required,min=6"`
	RepairShop        bool   `json:"repairShop"`
	AgreementAccepted bool   `json:"agreementAccepted"`

	PhoneNumber      string `json:"phoneNumber"`
	PostalCode       string `json:"postalCode"`
	Address          string `json:"address"`
	Location         string `json:"location"`
	SubscriptionType string `json:"subscriptionType" binding:"omitempty,subscription"`
	RegistrationID   string `json:"registrationId"`
}

// SignInResult is the outcome of a sign in. URL is set when a checkout is required.
type SignInResult struct {
	Message       string `json:"message"`
	Token         string `json:"token,omitempty"`
	URL           string `json:"url,omitempty"`
	TrialDays     string `json:"trialDays,omitempty"`
	RemainingDays string `json:"remainingDays,omitempty"`
}

// DeletionResult reports when a pending deletion takes effect.
type DeletionResult struct {
	DeletionDate time.Time `json:"deletionDate"`
}

// IUserService defines the interface for account operations.
type IUserService interface {
	Register(ctx context.Context, in RegisterInput, clientIP string) error
	RegisterRepairShop(ctx context.Context, in RegisterInput, clientIP string) error
	VerifyUser(ctx context.Context, code string) error
	ResendCode(ctx context.Context, email string) error
	SignIn(ctx context.Context, email, password string) (*SignInResult, error)
	DeleteAccount(ctx context.Context, uid string) (*DeletionResult, error)
	CancelDelete(ctx context.Context, uid string) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUID(ctx context.Context, uid string) (*models.User, error)
	FindRepairShops(ctx context.Context, uids []string) ([]models.User, error)
	CheckTrialPeriod(ctx context.Context, email string) (bool, error)
}

// userService implements IUserService.
type userService struct {
	db            *mongo.Database
	cfg           *config.Config
	configService IConfigService
	identities    IIdentityService
	notifier      INotificationService
	billing       billing.Provider
	now           func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(db *mongo.Database, cfg *config.Config, configService IConfigService, identities IIdentityService, notifier INotificationService, billingProvider billing.Provider) IUserService {
	return &userService{
		db:            db,
		cfg:           cfg,
		configService: configService,
		identities:    identities,
		notifier:      notifier,
		billing:       billingProvider,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func findUser(ctx context.Context, database *mongo.Database, filter bson.M) (*models.User, error) {
	var user models.User
	err := database.Collection(usersCollection).FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, fmt.Errorf("error finding user: %w", err)
	}
	return &user, nil
}

func findUserByUID(ctx context.Context, database *mongo.Database, uid string) (*models.User, error) {
	return findUser(ctx, database, bson.M{"uid": uid})
}

func findUserByEmail(ctx context.Context, database *mongo.Database, email string) (*models.User, error) {
	return findUser(ctx, database, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return findUserByEmail(ctx, s.db, email)
}

func (s *userService) FindByUID(ctx context.Context, uid string) (*models.User, error) {
	return findUserByUID(ctx, s.db, uid)
}

func (s *userService) trialDays(ctx context.Context) float64 {
	return s.configService.GetFloat64(ctx, ConfigTrialPeriodDays, s.cfg.TrialPeriodDays)
}

func (s *userService) Register(ctx context.Context, in RegisterInput, clientIP string) error {
	in.RepairShop = false
	_, err := s.register(ctx, in, clientIP)
	return err
}

func (s *userService) RegisterRepairShop(ctx context.Context, in RegisterInput, clientIP string) error {
	in.RepairShop = true
	user, err := s.register(ctx, in, clientIP)
	if err != nil {
		return err
	}

	// Prospect entries for the same shop are no longer needed once it signs up.
	collection := s.db.Collection(notSignedUpShopsCollection)
	res, err := collection.DeleteMany(ctx, bson.M{"email": user.Email, "location": user.Location})
	if err != nil {
		log.Printf("Failed to remove not signed up entries for %s: %v", user.Email, err)
	} else if res.DeletedCount > 0 {
		log.Printf("Removed %d not signed up entries for %s", res.DeletedCount, user.Email)
	}
	return nil
}

// register creates the temporary registration, the identity and the
// unverified user, then emails the verification code.
func (s *userService) register(ctx context.Context, in RegisterInput, clientIP string) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := findUserByEmail(ctx, s.db, email); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	code, err := utils.NewVerificationCode()
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(s.cfg.TempRegistrationTTL)
	registration := &models.TemporaryRegistration{
		Email:          email,
		ClientIP:       clientIP,
		Code:           code,
		Name:           in.Name,
		RegistrationID: in.RegistrationID,
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
	}
	err = db.Try(func() error {
		registration.GenID()
		_, insertErr := s.db.Collection(temporaryUsersCollection).InsertOne(ctx, registration)
		return insertErr
	})
	if err != nil {
		if db.IsDuplicateKeyOn(err, db.IndexClientIP) {
			return nil, ErrRegistrationInProgress
		}
		return nil, fmt.Errorf("error saving registration: %w", err)
	}

	uid, err := s.identities.CreateIdentity(ctx, email, in.Password)
	if err != nil {
		s.discardRegistration(ctx, registration.ID)
		return nil, err
	}

	user := &models.User{
		UID:               uid,
		Name:              in.Name,
		Email:             email,
		RepairShop:        in.RepairShop,
		AgreementAccepted: in.AgreementAccepted,
		CreatedAt:         now,
		LastSignIn:        &now,
		Verified:          false,
		ExpiresAt:         &expiresAt,
	}
	if in.RepairShop {
		user.FirstSignIn = true
		user.PhoneNumber = in.PhoneNumber
		user.PostalCode = in.PostalCode
		user.Address = in.Address
		user.Location = in.Location
		user.SelectedTimes = []models.TimeSlot{}
		user.PaymentOptions = []string{}
		user.SubscriptionType = in.SubscriptionType
	}
	err = db.Try(func() error {
		user.GenID()
		_, insertErr := s.db.Collection(usersCollection).InsertOne(ctx, user)
		return insertErr
	})
	if err != nil {
		s.discardRegistration(ctx, registration.ID)
		if delErr := s.identities.DeleteIdentity(ctx, uid); delErr != nil {
			log.Printf("Failed to roll back identity %s: %v", uid, delErr)
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	if err := s.notifier.Dispatch(ctx, email, TemplateVerifyEmail, map[string]string{
		"code":     code,
		"userName": in.Name,
	}); err != nil {
		log.Printf("Failed to dispatch verification email to %s: %v", email, err)
	}
	return user, nil
}

func (s *userService) discardRegistration(ctx context.Context, id string) {
	if _, err := s.db.Collection(temporaryUsersCollection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		log.Printf("Failed to discard temporary registration %s: %v", id, err)
	}
}

func (s *userService) findRegistration(ctx context.Context, filter bson.M) (*models.TemporaryRegistration, error) {
	var registration models.TemporaryRegistration
	err := s.db.Collection(temporaryUsersCollection).FindOne(ctx, filter).Decode(&registration)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNoRegistration
		}
		return nil, fmt.Errorf("error finding registration: %w", err)
	}
	return &registration, nil
}

func (s *userService) VerifyUser(ctx context.Context, code string) error {
	code = utils.NormalizeCode(code)
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrValidation)
	}
	// Expired registrations may linger until the TTL monitor removes them.
	registration, err := s.findRegistration(ctx, bson.M{"code": code, "expiresAt": bson.M{"$gt": s.now()}})
	if err != nil {
		return err
	}
	user, err := findUserByEmail(ctx, s.db, registration.Email)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"verified": true}, "$unset": bson.M{"expiresAt": ""}}
	if _, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": user.ID}, update); err != nil {
		return fmt.Errorf("error verifying user: %w", err)
	}
	s.discardRegistration(ctx, registration.ID)
	return nil
}

func (s *userService) ResendCode(ctx context.Context, email string) error {
	registration, err := s.findRegistration(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
	if err != nil {
		return err
	}
	if _, err := findUserByEmail(ctx, s.db, registration.Email); err != nil {
		return err
	}
	return s.notifier.Dispatch(ctx, registration.Email, TemplateVerifyEmail, map[string]string{
		"code":     registration.Code,
		"userName": registration.Name,
	})
}

func (s *userService) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	if _, err := s.identities.Authenticate(ctx, email, password); err != nil {
		return nil, err
	}
	user, err := findUserByEmail(ctx, s.db, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := s.now()
	if !user.Verified {
		return nil, ErrNotVerified
	}
	if user.Deleted != nil && now.After(user.Deleted.Add(-deletionGrace)) {
		return nil, ErrAccountDeleted
	}

	var result *SignInResult
	switch {
	case !user.RepairShop:
		result = &SignInResult{Message: "Normal user, sign in successful"}
	case user.SubscriptionType == models.SubscriptionNone || user.SubscriptionType == models.SubscriptionCore:
		result = s.signInCore(ctx, user)
	default:
		result, err = s.signInPremium(ctx, user, now)
		if err != nil {
			return result, err
		}
	}

	if _, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{"lastSignIn": now}}); err != nil {
		log.Printf("Failed to update lastSignIn for %s: %v", user.UID, err)
	}

	token, err := auth.GenerateJWT(auth.Identity{
		UID:        user.UID,
		Email:      user.Email,
		RepairShop: user.RepairShop,
		IsAdmin:    user.IsAdmin,
	}, s.cfg.JwtSecret, s.cfg.JwtTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	result.Token = token
	return result, nil
}

// signInCore moves a shop onto the per booking plan and drops any recurring subscription.
func (s *userService) signInCore(ctx context.Context, user *models.User) *SignInResult {
	set := bson.M{"subscriptionType": models.SubscriptionCore}
	if sessionID := user.Session(); sessionID != "" {
		session, err := s.billing.GetCheckoutSession(ctx, sessionID)
		switch {
		case err != nil:
			log.Printf("Error retrieving checkout session for core user %s: %v", user.UID, err)
		case session.SubscriptionID != "":
			if err := s.billing.CancelSubscription(ctx, session.SubscriptionID); err != nil {
				log.Printf("Error cancelling subscription for core user %s: %v", user.UID, err)
			} else {
				set["sessionId"] = nil
			}
		}
	}
	if _, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": set}); err != nil {
		log.Printf("Failed to store core plan for %s: %v", user.UID, err)
	}
	return &SignInResult{Message: "Core user, sign in successful"}
}

func (s *userService) signInPremium(ctx context.Context, user *models.User, now time.Time) (*SignInResult, error) {
	trialPeriod := s.trialDays(ctx)
	elapsed := utils.DaysBetween(user.CreatedAt, now)
	if elapsed <= trialPeriod {
		remaining := trialPeriod - elapsed
		if remaining < 0 {
			remaining = 0
		}
		return &SignInResult{
			Message:       "Trial period active, sign in successful",
			TrialDays:     strconv.FormatFloat(elapsed, 'f', 2, 64),
			RemainingDays: strconv.FormatFloat(remaining, 'f', 2, 64),
		}, nil
	}

	trialDays := strconv.FormatFloat(elapsed, 'f', 2, 64)
	switch {
	case user.Session() != "":
		session, err := s.billing.GetCheckoutSession(ctx, user.Session())
		if err != nil {
			return &SignInResult{Message: "Error processing payment status", TrialDays: trialDays, RemainingDays: "0"},
				fmt.Errorf("error retrieving checkout session: %w", err)
		}
		if session.Paid() {
			return &SignInResult{Message: "Payment done, sign in successful"}, nil
		}
		return &SignInResult{Message: "Payment not done", URL: session.URL, TrialDays: trialDays, RemainingDays: "0"}, ErrPaymentRequired
	case user.NewPaymentDate != nil && now.Before(*user.NewPaymentDate):
		return &SignInResult{Message: "Account deletion canceled, but former payment period still active"}, nil
	case user.Deleted != nil && now.Before(*user.Deleted):
		return &SignInResult{Message: "Account marked for deletion, no payment"}, nil
	}

	session, err := s.billing.CreateCheckoutSession(ctx, billing.CheckoutParams{
		PriceID:       s.cfg.PriceKey,
		CustomerEmail: user.Email,
		SuccessURL:    s.cfg.CheckoutSuccessURL,
		CancelURL:     s.cfg.CheckoutCancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating checkout session: %w", err)
	}
	update := bson.M{"$set": bson.M{"sessionId": session.ID}, "$unset": bson.M{"newPaymentDate": ""}}
	if _, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": user.ID}, update); err != nil {
		return nil, fmt.Errorf("error storing checkout session: %w", err)
	}
	return &SignInResult{Message: "Payment required", URL: session.URL}, ErrPaymentRequired
}

// DeletionDate is when a deletion requested at now takes effect. Shops still
// in their trial keep the account until the trial ends.
func DeletionDate(user *models.User, trialDays float64, pendingDays int, now time.Time) time.Time {
	if user.RepairShop && !user.CreatedAt.IsZero() && utils.InTrial(user.CreatedAt, trialDays, now) {
		return utils.TrialEnd(user.CreatedAt, trialDays)
	}
	return now.AddDate(0, 0, pendingDays)
}

func (s *userService) DeleteAccount(ctx context.Context, uid string) (*DeletionResult, error) {
	user, err := findUserByUID(ctx, s.db, uid)
	if err != nil {
		return nil, err
	}

	if sessionID := user.Session(); sessionID != "" {
		session, err := s.billing.GetCheckoutSession(ctx, sessionID)
		if err == nil && session.SubscriptionID != "" {
			err = s.billing.CancelSubscription(ctx, session.SubscriptionID)
		}
		if err != nil {
			log.Printf("Error cancelling subscription of %s: %v", uid, err)
		}
	}

	now := s.now()
	pendingDays := s.configService.GetInt(ctx, ConfigPendingDeletionDays, s.cfg.PendingDeletionDays)
	deletionDate := DeletionDate(user, s.trialDays(ctx), pendingDays, now)

	update := bson.M{"$set": bson.M{"deleted": deletionDate, "sessionId": nil}}
	if _, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": user.ID}, update); err != nil {
		return nil, fmt.Errorf("error marking account for deletion: %w", err)
	}

	daysLeft := int(math.Ceil(deletionDate.Sub(now).Hours() / 24))
	templateID := TemplateDeleteAccount
	data := map[string]string{"days": strconv.Itoa(pendingDays)}
	if deletionDate.Sub(now) > time.Duration(pendingDays)*utils.Day {
		templateID = TemplateDeleteAccountTrial
		data = map[string]string{
			"trialEndDate": utils.FormatShortSv(deletionDate, s.cfg.Location()),
			"days":         strconv.Itoa(daysLeft),
		}
	}
	if err := s.notifier.Dispatch(ctx, user.Email, templateID, data); err != nil {
		log.Printf("Failed to dispatch %s email to %s: %v", templateID, user.Email, err)
	}
	return &DeletionResult{DeletionDate: deletionDate}, nil
}

func (s *userService) CancelDelete(ctx context.Context, uid string) error {
	user, err := findUserByUID(ctx, s.db, uid)
	if err != nil {
		return err
	}
	set := bson.M{"deleted": nil}
	if user.Deleted != nil {
		set["newPaymentDate"] = *user.Deleted
	}
	if _, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("error cancelling deletion: %w", err)
	}
	return nil
}

// FindRepairShops returns the public profiles of the given shops.
func (s *userService) FindRepairShops(ctx context.Context, uids []string) ([]models.User, error) {
	cursor, err := s.db.Collection(usersCollection).Find(ctx, bson.M{"uid": bson.M{"$in": uids}})
	if err != nil {
		return nil, fmt.Errorf("error finding repair shops: %w", err)
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("error decoding repair shops: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: repair shops", ErrNotFound)
	}
	for i := range users {
		users[i].SessionID = nil
	}
	return users, nil
}

// CheckTrialPeriod reports whether the account is still inside its trial.
func (s *userService) CheckTrialPeriod(ctx context.Context, email string) (bool, error) {
	user, err := findUserByEmail(ctx, s.db, email)
	if err != nil {
		return false, err
	}
	return utils.InTrial(user.CreatedAt, s.trialDays(ctx), s.now()), nil
}
