package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/K3mp3/FixMatch/internal/auth"
	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/models"
)

// ErrInvalidCredentials is returned when the email or password does not match.
var ErrInvalidCredentials = errors.New("wrong email or password")

// IIdentityService manages login credentials separately from the user profile.
type IIdentityService interface {
	CreateIdentity(ctx context.Context, email, password string) (string, error)
	Authenticate(ctx context.Context, email, password string) (*models.AuthIdentity, error)
	DeleteIdentity(ctx context.Context, uid string) error
}

const identitiesCollection = "auth_identities"

type identityService struct {
	db *mongo.Database
}

// NewIdentityService creates a new IIdentityService.
func NewIdentityService(db *mongo.Database) IIdentityService {
	return &identityService{db: db}
}

// CreateIdentity stores a bcrypt hashed credential and returns the new uid.
func (s *identityService) CreateIdentity(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(password) < 6 {
		return "", fmt.Errorf("%w: email and a password of at least 6 characters are required", ErrValidation)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}

	identity := &models.AuthIdentity{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	err = db.Try(func() error {
		identity.GenID()
		_, insertErr := s.db.Collection(identitiesCollection).InsertOne(ctx, identity)
		return insertErr
	})
	if err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return "", ErrAlreadyRegistered
		}
		return "", fmt.Errorf("error creating identity: %w", err)
	}
	return identity.UID, nil
}

func (s *identityService) Authenticate(ctx context.Context, email, password string) (*models.AuthIdentity, error) {
	var identity models.AuthIdentity
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	err := s.db.Collection(identitiesCollection).FindOne(ctx, filter).Decode(&identity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error finding identity: %w", err)
	}
	if !auth.CheckPasswordHash(password, identity.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &identity, nil
}

func (s *identityService) DeleteIdentity(ctx context.Context, uid string) error {
	res, err := s.db.Collection(identitiesCollection).DeleteMany(ctx, bson.M{"uid": uid})
	if err != nil {
		return fmt.Errorf("error deleting identity %s: %w", uid, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: identity %s", ErrNotFound, uid)
	}
	return nil
}
