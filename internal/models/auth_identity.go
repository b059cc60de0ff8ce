package models

import "time"

// AuthIdentity is the credential record behind a user account.
type AuthIdentity struct {
	Base         `bson:",inline"`
	UID          string    `bson:"uid" json:"uid"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password" json:"-"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}
