package services

import "context"

// ContactInput is a message sent through the contact form.
type ContactInput struct {
	UserName    string `json:"userName" binding:"required,notblank"`
	UserEmail   string `json:"userEmail" binding:"required,email"`
	UserMessage string `json:"userMessage" binding:"required,notblank"`
}

// IContactService forwards contact form messages to support.
type IContactService interface {
	Send(ctx context.Context, in ContactInput) error
}

type contactService struct {
	notifier INotificationService
	address  string
}

// NewContactService creates a new IContactService delivering to address.
func NewContactService(notifier INotificationService, address string) IContactService {
	return &contactService{notifier: notifier, address: address}
}

func (s *contactService) Send(ctx context.Context, in ContactInput) error {
	return s.notifier.Dispatch(ctx, s.address, TemplateContactForm, map[string]string{
		"userName":    in.UserName,
		"email":       in.UserEmail,
		"userMessage": in.UserMessage,
	})
}
