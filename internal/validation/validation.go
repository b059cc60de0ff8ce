// Package validation registers the custom request validators with gin's binding engine.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/utils"
)

var registerOnce sync.Once

// Register installs the custom tags on gin's validator. Safe to call repeatedly.
func Register() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected gin validator engine %T", binding.Validator.Engine())
			return
		}
		err = RegisterOn(v)
	})
	return err
}

// RegisterOn installs the custom tags on v.
func RegisterOn(v *validator.Validate) error {
	validators := map[string]validator.Func{
		"notblank":     notBlank,
		"datestr":      dateString,
		"subscription": subscriptionType,
	}
	for tag, fn := range validators {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func dateString(fl validator.FieldLevel) bool {
	_, err := utils.ParseDate(fl.Field().String())
	return err == nil
}

func subscriptionType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case models.SubscriptionNone, models.SubscriptionCore, models.SubscriptionPremium:
		return true
	}
	return false
}

// Message turns validator errors into a short client facing message.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}
	return "Invalid request: " + strings.Join(parts, ", ")
}
