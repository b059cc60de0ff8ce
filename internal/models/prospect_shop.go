package models

// ProspectShop is an admin-managed repair shop contact that has not signed up.
type ProspectShop struct {
	Base     `bson:",inline"`
	Email    string `bson:"email" json:"email" binding:"required,email"`
	Name     string `bson:"name" json:"name" binding:"required"`
	Location string `bson:"location" json:"location" binding:"required"`
}

// NotSignedUpShop is a shop address collected before registration.
type NotSignedUpShop struct {
	Base     `bson:",inline"`
	Email    string `bson:"email" json:"email"`
	Location string `bson:"location" json:"location"`
}
