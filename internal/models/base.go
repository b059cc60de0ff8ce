package models

import (
	"github.com/K3mp3/FixMatch/internal/utils"
)

type IBase interface {
	GenIDIfEmpty()
	GenID()
	SetID(id string)
}

// Base carries the document key. Keys are Crockford encoded SixIDs so they
// stay short in URLs and compatible with string ids already in the store.
type Base struct {
	ID string `bson:"_id,omitempty" json:"id,omitempty"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID == "" {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID().String()
}

func (m *Base) SetID(id string) {
	m.ID = id
}

func NewBase() Base {
	return Base{
		ID: utils.NewSixID().String(),
	}
}
