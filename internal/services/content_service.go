package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/K3mp3/FixMatch/internal/config"
	"github.com/K3mp3/FixMatch/internal/db"
	"github.com/K3mp3/FixMatch/internal/models"
	"github.com/K3mp3/FixMatch/internal/storage"
	"github.com/K3mp3/FixMatch/internal/tasks"
)

const newsCollection = "news"

// UploadedImage is where an article image ended up.
type UploadedImage struct {
	Location  string `json:"location"`
	ArticleID string `json:"articleId"`
}

// IContentService backs the admin panel: the prospect shop list and news articles.
type IContentService interface {
	ListProspects(ctx context.Context) ([]models.ProspectShop, error)
	SaveProspect(ctx context.Context, shop models.ProspectShop) error
	DeleteProspect(ctx context.Context, email string) error

	UploadImage(ctx context.Context, articleID string, image Attachment) (*UploadedImage, error)
	SaveArticle(ctx context.Context, articleID, content string, image *Attachment) error
	FetchArticles(ctx context.Context) ([]models.Article, error)
}

type contentService struct {
	db         *mongo.Database
	cfg        *config.Config
	objects    storage.IObjectStorage
	taskClient tasks.IAsynqClient
}

// NewContentService creates a new IContentService.
func NewContentService(db *mongo.Database, cfg *config.Config, objects storage.IObjectStorage, taskClient tasks.IAsynqClient) IContentService {
	return &contentService{db: db, cfg: cfg, objects: objects, taskClient: taskClient}
}

func (s *contentService) ListProspects(ctx context.Context) ([]models.ProspectShop, error) {
	cursor, err := s.db.Collection(prospectShopsCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("error finding repair shops: %w", err)
	}
	shops := []models.ProspectShop{}
	if err := cursor.All(ctx, &shops); err != nil {
		return nil, fmt.Errorf("error decoding repair shops: %w", err)
	}
	if len(shops) == 0 {
		return shops, fmt.Errorf("%w: repair shops", ErrNotFound)
	}
	return shops, nil
}

func (s *contentService) SaveProspect(ctx context.Context, shop models.ProspectShop) error {
	shop.Email = strings.TrimSpace(shop.Email)
	return db.Try(func() error {
		shop.GenID()
		_, err := s.db.Collection(prospectShopsCollection).InsertOne(ctx, &shop)
		return err
	})
}

func (s *contentService) DeleteProspect(ctx context.Context, email string) error {
	res, err := s.db.Collection(prospectShopsCollection).DeleteOne(ctx, bson.M{"email": strings.TrimSpace(email)})
	if err != nil {
		return fmt.Errorf("error deleting repair shop: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: repair shop %s", ErrNotFound, email)
	}
	return nil
}

// UploadImage stores the original image and queues its normalization.
func (s *contentService) UploadImage(ctx context.Context, articleID string, image Attachment) (*UploadedImage, error) {
	if len(image.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrValidation)
	}
	maxSize := int64(s.cfg.ImageMaxSizeMB) * 1024 * 1024
	if maxSize > 0 && int64(len(image.Data)) > maxSize {
		return nil, fmt.Errorf("%w: image exceeds %d MB", ErrValidation, s.cfg.ImageMaxSizeMB)
	}
	contentType := http.DetectContentType(image.Data)
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: unsupported file type %s", ErrValidation, contentType)
	}

	key := storage.ArticleImageKey(articleID, image.FileName)
	if err := s.objects.Put(ctx, key, contentType, image.Data); err != nil {
		return nil, fmt.Errorf("error storing image: %w", err)
	}

	task, err := tasks.NewImageTask(tasks.ImageTaskPayload{S3Key: key, ArticleID: articleID})
	if err != nil {
		return nil, fmt.Errorf("could not create image task: %w", err)
	}
	if _, err := s.taskClient.EnqueueContext(ctx, task); err != nil {
		return nil, fmt.Errorf("could not enqueue image task: %w", err)
	}

	return &UploadedImage{Location: s.objects.PublicURL(key), ArticleID: articleID}, nil
}

func (s *contentService) SaveArticle(ctx context.Context, articleID, content string, image *Attachment) error {
	if strings.TrimSpace(articleID) == "" {
		return fmt.Errorf("%w: article ID is required", ErrValidation)
	}
	article := &models.Article{
		Content:   content,
		ArticleID: articleID,
		CreatedAt: time.Now().UTC(),
	}
	if image != nil {
		uploaded, err := s.UploadImage(ctx, articleID, *image)
		if err != nil {
			return err
		}
		article.ImageURL = uploaded.Location
	}
	err := db.Try(func() error {
		article.GenID()
		_, insertErr := s.db.Collection(newsCollection).InsertOne(ctx, article)
		return insertErr
	})
	if err != nil {
		return fmt.Errorf("error saving article: %w", err)
	}
	return nil
}

func (s *contentService) FetchArticles(ctx context.Context) ([]models.Article, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.db.Collection(newsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding articles: %w", err)
	}
	articles := []models.Article{}
	if err := cursor.All(ctx, &articles); err != nil {
		return nil, fmt.Errorf("error decoding articles: %w", err)
	}
	if len(articles) == 0 {
		return articles, fmt.Errorf("%w: articles", ErrNotFound)
	}
	return articles, nil
}
