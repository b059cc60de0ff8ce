package models

import "time"

// Article is a news entry published from the admin panel.
type Article struct {
	Base      `bson:",inline"`
	Content   string    `bson:"content" json:"content"`
	ArticleID string    `bson:"articleId" json:"articleId"`
	ImageURL  string    `bson:"imageUrl" json:"imageUrl"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}
