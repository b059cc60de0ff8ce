package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/K3mp3/FixMatch/internal/models"
)

// Template ids.
const (
	TemplateNewBooking                  = "new_booking"
	TemplateBookingConfirmation         = "booking_confirmation"
	TemplateSuggestedDates              = "suggested_dates"
	TemplateBookingCanceledUser         = "booking_canceled_user"
	TemplateBookingCanceledToRepairShop = "booking_canceled_to_repair_shop"
	TemplateBookingCanceledToUser       = "booking_canceled_to_user"
	TemplateBookingCanceledRepairShop   = "booking_canceled_repair_shop"
	TemplateOffersReady                 = "offers_ready"
	TemplateNoOffers                    = "no_offers"
	TemplateTrialEnding                 = "trial_ending"
	TemplateDeleteAccount               = "delete_account"
	TemplateDeleteAccountTrial          = "delete_account_trial"
	TemplateVerifyEmail                 = "verify_email"
	TemplateNewRequests                 = "new_requests"
	TemplateInactiveAccountRemoved      = "inactive_account_removed"
	TemplateContactForm                 = "contact_form"
)

const signature = "\n\nMed vänliga hälsningar,\nFixMatch\ninfo@fixmatch.se"

// Default email templates used as fallback when not found in database
var defaultEmailTemplates = map[string]models.EmailTemplate{
	TemplateNewBooking: {
		Subject: "Nytt uppdrag från kund",
		Body:    "Ny bokningsförfrågan\n\nEn kund har föreslagit datum för ett av dina uppdrag. Logga in på https://fixmatch.se/#/sign-in för att svara." + signature,
	},
	TemplateBookingConfirmation: {
		Subject: "Bokning bekräftad",
		Body:    "Bokningsbekräftelse\n\nGoda nyheter! Din bokning hos {{.userName}} är bekräftad.\n\n" +
			"Detaljer:\nTyp av arbete: {{.type}}\nUtförs som: {{.typeOfFix}}\nDatum: {{.date}}" + signature,
	},
	TemplateSuggestedDates: {
		Subject: "Nya datum föreslagna",
		Body:    "Föreslagna datum\n\nTyvärr fungerade inte dina föreslagna datum hos {{.userName}}.\n" +
			"Verkstaden har istället föreslagit följande datum:\n{{.firstDate}}\n{{.secondDate}}\n{{.thirdDate}}\n\n" +
			"Välj något av datumen eller föreslå nya genom att logga in på din profil på https://fixmatch.se/#/sign-in\n\n" +
			"Detaljer:\nTyp av arbete: {{.type}}\nUtförs som: {{.typeOfFix}}" + signature,
	},
	TemplateBookingCanceledUser: {
		Subject: "Bokning avbokad",
		Body:    "Avbokning\n\nDin bokning hos {{.repairShopName}} är avbokad.\n\n" +
			"Detaljer:\nTyp av arbete: {{.type}}\nUtförs som: {{.typeOfFix}}\nDatum: {{.date}}" + signature,
	},
	TemplateBookingCanceledToRepairShop: {
		Subject: "Bokning avbokad",
		Body:    "Avbokning\n\nVi måste tyvärr meddela att bokningen för {{.registrationNumber}} har avbokats.\n\n" +
			"Bokningsinformation:\nTyp av arbete: {{.type}}\nUtförs som: {{.typeOfFix}}\nDatum: {{.date}}\n\n" +
			"Om du har ett Core-abonnemang och har betalat för denna bokning, kommer en återbetalning att skickas inom kort till samma konto. " +
			"Observera att det kan ta upp till 7 arbetsdagar innan beloppet syns på ditt konto." + signature,
	},
	TemplateBookingCanceledToUser: {
		Subject: "Bokning avbokad",
		Body:    "Avbokning\n\nVi måste tyvärr meddela att din bokning hos {{.repairShopName}} har avbokats på grund av {{.reason}}.\n\n" +
			"Detaljer:\nTyp av arbete: {{.type}}\nUtförs som: {{.typeOfFix}}\nDatum: {{.date}}" + signature,
	},
	TemplateBookingCanceledRepairShop: {
		Subject: "Bokning avbokad",
		Body:    "Avbokning\n\nDu har avbokat bokningen för {{.registrationNumber}}.\n\n" +
			"Bokningsinformation:\nTyp av arbete: {{.type}}\nUtförs som: {{.typeOfFix}}\nDatum: {{.date}}" + signature,
	},
	TemplateOffersReady: {
		Subject: "Dina offerter är redo att granskas",
		Body:    "Dina offerter är redo\n\nDu har fått {{.offerCount}} offert(er) för {{.type}} på {{.registrationNumber}} i {{.location}}.\n" +
			"Logga in på https://fixmatch.se/#/sign-in för att granska dem." + signature,
	},
	TemplateNoOffers: {
		Subject: "Inga offerter",
		Body:    "Inga offerter\n\nTyvärr har inga verkstäder i {{.location}} lämnat offert på {{.type}} för {{.registrationNumber}}.\n" +
			"Du är välkommen att skicka en ny förfrågan." + signature,
	},
	TemplateTrialEnding: {
		Subject: "Din provperiod går ut om 14 dagar",
		Body:    "Din provperiod går ut om {{.daysRemaining}} dagar\n\nDin provperiod hos FixMatch avslutas {{.trialEndDate}}.\n" +
			"Efter {{.trialEndDate}} behöver du välja ett abonnemang för att fortsätta ta emot uppdrag." + signature,
	},
	TemplateDeleteAccount: {
		Subject: "Konto raderat",
		Body:    "Viktigt meddelande om ditt konto\n\nDitt konto är markerat för radering och tas bort om {{.days}} dagar.\n" +
			"Logga in innan dess om du vill ångra raderingen." + signature,
	},
	TemplateDeleteAccountTrial: {
		Subject: "Konto raderat",
		Body:    "Viktigt meddelande om ditt konto\n\nDitt konto är markerat för radering och tas bort när provperioden tar slut {{.trialEndDate}}, om {{.days}} dagar.\n" +
			"Logga in innan dess om du vill ångra raderingen." + signature,
	},
	TemplateVerifyEmail: {
		Subject: "Verifera e-mailadress",
		Body:    "Kontoverifiering\n\nHej {{.userName}},\n\nDitt konto är nästan redo att användas. " +
			"Skriv in koden nedan i samma flik som du påbörjade registreringen i.\n\n{{.code}}\n\n" +
			"Känner du inte igen att du har registrerat ett konto? Då kan du enkelt bortse från detta e-mail." + signature,
	},
	TemplateNewRequests: {
		Subject: "Nytt uppdrag från kund",
		Body:    "Nytt uppdrag\n\nEn kund i ditt område har skickat en ny förfrågan. Logga in på https://fixmatch.se/#/sign-in för att lämna offert." + signature,
	},
	TemplateInactiveAccountRemoved: {
		Subject: "Ditt konto har tagits bort på grund av inaktivitet",
		Body:    "Hej {{.userName}},\n\nDitt konto hos FixMatch har inte använts på över ett år och har därför tagits bort." + signature,
	},
	TemplateContactForm: {
		Subject: "Kontaktformulär",
		Body:    "Kontakt från {{.userName}} ({{.email}}) via FixMatch.\n\nMeddelande:\n{{.userMessage}}",
	},
}

// DefaultTemplateIDs lists every template with a built in fallback.
func DefaultTemplateIDs() []string {
	ids := make([]string, 0, len(defaultEmailTemplates))
	for id := range defaultEmailTemplates {
		ids = append(ids, id)
	}
	return ids
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	SaveTemplate(ctx context.Context, template *models.EmailTemplate) error
	DeleteTemplate(ctx context.Context, templateID, locale string) error
}

const emailTemplatesCollection = "email_templates"

// EmailTemplateService handles operations related to email templates
type EmailTemplateService struct {
	db            *mongo.Database
	defaultLocale string
}

// NewEmailTemplateService creates a new instance of EmailTemplateService
func NewEmailTemplateService(db *mongo.Database, defaultLocale string) *EmailTemplateService {
	return &EmailTemplateService{db: db, defaultLocale: defaultLocale}
}

// GetTemplate looks up templateID in locale, then in the default locale, then
// in the built in defaults.
func (s *EmailTemplateService) GetTemplate(ctx context.Context, templateID string, locale string) (*models.EmailTemplate, error) {
	locales := []string{locale}
	if locale != s.defaultLocale {
		locales = append(locales, s.defaultLocale)
	}

	collection := s.db.Collection(emailTemplatesCollection)
	for _, l := range locales {
		var template models.EmailTemplate
		err := collection.FindOne(ctx, bson.M{"template_id": templateID, "locale": l}).Decode(&template)
		if err == nil {
			return &template, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("error retrieving template: %w", err)
		}
	}

	if defaultTemplate, ok := defaultEmailTemplates[templateID]; ok {
		defaultTemplate.TemplateID = templateID
		defaultTemplate.Locale = s.defaultLocale
		return &defaultTemplate, nil
	}
	return nil, fmt.Errorf("%w: template %s (locale: %s)", ErrNotFound, templateID, locale)
}

// SaveTemplate saves an email template to the database
func (s *EmailTemplateService) SaveTemplate(ctx context.Context, template *models.EmailTemplate) error {
	if template.TemplateID == "" || template.Locale == "" {
		return fmt.Errorf("%w: template_id and locale are required", ErrValidation)
	}
	filter := bson.M{
		"template_id": template.TemplateID,
		"locale":      template.Locale,
	}
	update := bson.M{"$set": bson.M{
		"template_id": template.TemplateID,
		"locale":      template.Locale,
		"subject":     template.Subject,
		"body":        template.Body,
	}}

	_, err := s.db.Collection(emailTemplatesCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("error saving template: %w", err)
	}
	return nil
}

// DeleteTemplate deletes an email template from the database
func (s *EmailTemplateService) DeleteTemplate(ctx context.Context, templateID string, locale string) error {
	filter := bson.M{
		"template_id": templateID,
		"locale":      locale,
	}

	res, err := s.db.Collection(emailTemplatesCollection).DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("error deleting template: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: template %s (locale: %s)", ErrNotFound, templateID, locale)
	}
	return nil
}
