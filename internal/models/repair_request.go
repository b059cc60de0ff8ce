package models

import "time"

// CustomerMessage is one job line of a repair request.
type CustomerMessage struct {
	ID             string  `bson:"id" json:"id"`
	Work           string  `bson:"work" json:"work"`
	Message        string  `bson:"message" json:"message"`
	Type           string  `bson:"type" json:"type"`
	Mileage        float64 `bson:"mileage,omitempty" json:"mileage,omitempty"`
	SelectedBrakes string  `bson:"selectedBrakes,omitempty" json:"selectedBrakes,omitempty"`
}

// RepairShopAnswer is a priced offer appended to a request by a shop.
type RepairShopAnswer struct {
	ID                    string  `bson:"id" json:"id"`
	Address               string  `bson:"address" json:"address"`
	Type                  string  `bson:"type" json:"type"`
	Work                  string  `bson:"work" json:"work"`
	RegistrationNumber    string  `bson:"registrationNumber" json:"registrationNumber"`
	UUID                  string  `bson:"uuid" json:"uuid"` // shop uid
	CustomerMessageID     string  `bson:"customerMessageId" json:"customerMessageId"`
	RepairShopName        string  `bson:"repairShopName" json:"repairShopName"`
	RepairShopEmail       string  `bson:"repairShopEmail" json:"repairShopEmail"`
	RepairShopPhoneNumber string  `bson:"repairShopPhoneNumber" json:"repairShopPhoneNumber"`
	PriceOffer            float64 `bson:"priceOffer" json:"priceOffer"`
	TypeOfFix             string  `bson:"typeOfFix" json:"typeOfFix"`
	Declined              bool    `bson:"declined" json:"declined"`
	WorkTime              float64 `bson:"workTime" json:"workTime"`
	PDFFileName           string  `bson:"pdfFileName,omitempty" json:"pdfFileName,omitempty"`
	ValidOfferDate        string  `bson:"validOfferDate" json:"validOfferDate"`
}

// RepairRequest is a customer's inquiry fanned out to shops in one location.
type RepairRequest struct {
	Base `bson:",inline"`

	// RequestID is the application id that bookings reference as requestId.
	RequestID          string             `bson:"id" json:"requestId"`
	CustomerEmail      string             `bson:"customerEmail" json:"customerEmail"`
	Location           string             `bson:"location" json:"location"`
	RegistrationNumber string             `bson:"registrationNumber" json:"registrationNumber"`
	CustomerMessage    []CustomerMessage  `bson:"customerMessage" json:"customerMessage"`
	GearType           string             `bson:"gearType" json:"gearType"`
	ValidDate          time.Time          `bson:"validDate" json:"validDate"`
	RepairShopAnswers  []RepairShopAnswer `bson:"repairShopAnswers" json:"repairShopAnswers"`

	OffersNotificationSent bool       `bson:"offersNotificationSent,omitempty" json:"offersNotificationSent,omitempty"`
	OffersNotificationDate *time.Time `bson:"offersNotificationDate,omitempty" json:"offersNotificationDate,omitempty"`
	CreatedAt              time.Time  `bson:"createdAt" json:"createdAt"`
}
