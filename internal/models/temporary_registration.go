package models

import "time"

// TemporaryRegistration holds a pending email verification. At most one
// exists per client IP.
type TemporaryRegistration struct {
	Base           `bson:",inline"`
	Email          string    `bson:"email" json:"email"`
	ClientIP       string    `bson:"clientIP" json:"clientIP"`
	Code           string    `bson:"code" json:"-"`
	Name           string    `bson:"name" json:"name"`
	RegistrationID string    `bson:"registrationId" json:"registrationId"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	ExpiresAt      time.Time `bson:"expiresAt" json:"expiresAt"`
}
