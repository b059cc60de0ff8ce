package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/K3mp3/FixMatch/internal/config"
)

// Runtime tunable keys. Each falls back to the matching .env value.
const (
	ConfigTrialPeriodDays     = "TRIAL_PERIOD_DAYS"
	ConfigPendingDeletionDays = "PENDING_DELETION_DAYS"
	ConfigRetentionDays       = "RETENTION_DAYS"
	ConfigInactivityPeriod    = "INACTIVITY_PERIOD"
	ConfigRateLimitBucketSize = "RATE_LIMIT_BUCKET_SIZE"
	ConfigRateLimitRefillRate = "RATE_LIMIT_REFILL_RATE"
	ConfigBookingFeePercent   = "BOOKING_FEE_PERCENT"
)

// IConfigService defines the interface for accessing configuration.
type IConfigService interface {
	GetAllPublic(ctx context.Context) (map[string]interface{}, error)
	Get(ctx context.Context, key string) (interface{}, error)
	GetInt(ctx context.Context, key string, defaultValue int) int
	GetString(ctx context.Context, key string, defaultValue string) string
	GetBool(ctx context.Context, key string, defaultValue bool) bool
	GetFloat64(ctx context.Context, key string, defaultValue float64) float64
	GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration
	Load(ctx context.Context) error
	SubscribeToChanges(ctx context.Context) error
	SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error
}

const (
	configCollection    = "configuration"
	configUpdateChannel = "config_updates"
)

// configService implements IConfigService.
type configService struct {
	db    *mongo.Database
	cfg   *config.Config // .env values used when a key is not overridden in the DB
	rdb   *redis.Client
	cache map[string]interface{}
	mutex sync.RWMutex
}

// NewConfigService loads the overrides and listens for changes until ctx is done.
func NewConfigService(ctx context.Context, db *mongo.Database, initialCfg *config.Config, rdb *redis.Client) IConfigService {
	s := &configService{
		db:    db,
		cfg:   initialCfg,
		rdb:   rdb,
		cache: make(map[string]interface{}),
	}
	if err := s.Load(ctx); err != nil {
		log.Printf("WARNING: Failed to load initial config from DB: %v. Using defaults from .env", err)
	}
	go func() {
		if err := s.SubscribeToChanges(ctx); err != nil {
			log.Printf("CRITICAL: Config Pub/Sub listener stopped: %v", err)
		}
	}()
	return s
}

// ConfigEntry represents a document in the configuration collection.
type ConfigEntry struct {
	Key    string      `bson:"key"`
	Value  interface{} `bson:"value"`
	Public bool        `bson:"public"`
}

// Load fetches all config entries from DB and replaces the in-memory cache.
func (s *configService) Load(ctx context.Context) error {
	cursor, err := s.db.Collection(configCollection).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to query config collection: %w", err)
	}
	defer cursor.Close(ctx)

	newCache := make(map[string]interface{})
	for cursor.Next(ctx) {
		var entry ConfigEntry
		if err := cursor.Decode(&entry); err != nil {
			log.Printf("Warning: Failed to decode config entry during load: %v", err)
			continue
		}
		if entry.Value != nil {
			newCache[entry.Key] = entry.Value
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("error iterating config cursor: %w", err)
	}

	s.mutex.Lock()
	s.cache = newCache
	s.mutex.Unlock()
	log.Printf("Loaded %d entries into config cache from DB.", len(newCache))
	return nil
}

// GetAllPublic returns the entries flagged public plus the business defaults the frontend displays.
func (s *configService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	publicConfig := map[string]interface{}{
		ConfigTrialPeriodDays:     s.cfg.TrialPeriodDays,
		ConfigPendingDeletionDays: s.cfg.PendingDeletionDays,
	}

	cursor, err := s.db.Collection(configCollection).Find(ctx, bson.M{"public": true})
	if err != nil {
		return nil, fmt.Errorf("failed to query public config from DB: %w", err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var entry ConfigEntry
		if err := cursor.Decode(&entry); err == nil && entry.Value != nil {
			publicConfig[entry.Key] = entry.Value
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating public config cursor: %w", err)
	}
	return publicConfig, nil
}

// Get returns the cached DB value for key, or the .env default for known keys.
func (s *configService) Get(ctx context.Context, key string) (interface{}, error) {
	s.mutex.RLock()
	val, exists := s.cache[key]
	s.mutex.RUnlock()
	if exists {
		return val, nil
	}

	switch key {
	case ConfigTrialPeriodDays:
		return s.cfg.TrialPeriodDays, nil
	case ConfigPendingDeletionDays:
		return s.cfg.PendingDeletionDays, nil
	case ConfigRetentionDays:
		return s.cfg.RetentionDays, nil
	case ConfigInactivityPeriod:
		return int64(s.cfg.InactivityPeriod / time.Second), nil
	case ConfigRateLimitBucketSize:
		return s.cfg.RateLimitBucketSize, nil
	case ConfigRateLimitRefillRate:
		return s.cfg.RateLimitRefillRate, nil
	default:
		return nil, fmt.Errorf("config key '%s' not found", key)
	}
}

func (s *configService) GetString(ctx context.Context, key string, defaultValue string) string {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if strVal, ok := val.(string); ok {
		return strVal
	}
	log.Printf("Warning: Config key '%s' is not a string, using default.", key)
	return defaultValue
}

func (s *configService) GetInt(ctx context.Context, key string, defaultValue int) int {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	// MongoDB might store numbers as float64 or int32/64
	switch v := val.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		log.Printf("Warning: Config key '%s' is not an integer type (%T), using default.", key, val)
		return defaultValue
	}
}

func (s *configService) GetBool(ctx context.Context, key string, defaultValue bool) bool {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	if boolVal, ok := val.(bool); ok {
		return boolVal
	}
	log.Printf("Warning: Config key '%s' is not a boolean, using default.", key)
	return defaultValue
}

func (s *configService) GetFloat64(ctx context.Context, key string, defaultValue float64) float64 {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	switch v := val.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	default:
		log.Printf("Warning: Config key '%s' is not a float64 type (%T), using default.", key, val)
		return defaultValue
	}
}

// GetDuration reads a value stored as integer seconds.
func (s *configService) GetDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	val, err := s.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	switch v := val.(type) {
	case int:
		return time.Duration(v) * time.Second
	case int32:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	default:
		log.Printf("Warning: Config key '%s' is not a numeric type for duration (%T), using default.", key, val)
		return defaultValue
	}
}

// SubscribeToChanges reloads the cache on every message published to config_updates.
func (s *configService) SubscribeToChanges(ctx context.Context) error {
	if s.rdb == nil {
		log.Println("Redis client not configured, cannot subscribe to config changes.")
		return nil
	}

	pubsub := s.rdb.Subscribe(ctx, configUpdateChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to receive confirmation from Redis Pub/Sub subscription: %w", err)
	}

	ch := pubsub.Channel()
	log.Println("Subscribed to Redis channel for config updates:", configUpdateChannel)

	for {
		select {
		case <-ctx.Done():
			log.Println("Config Pub/Sub listener stopped.")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			log.Printf("Received config update notification on channel %s: %s", msg.Channel, msg.Payload)
			if err := s.Load(ctx); err != nil {
				log.Printf("ERROR reloading config from DB after notification: %v", err)
			}
		}
	}
}

// SetConfigValue upserts a value and notifies every instance. A nil value removes the override.
func (s *configService) SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	collection := s.db.Collection(configCollection)
	filter := bson.M{"key": key}

	if value == nil {
		if _, err := collection.DeleteOne(ctx, filter); err != nil {
			return fmt.Errorf("failed to delete config key '%s': %w", key, err)
		}
	} else {
		update := bson.M{"$set": bson.M{"key": key, "value": value, "public": isPublic}}
		if _, err := collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return fmt.Errorf("failed to upsert config key '%s' in DB: %w", key, err)
		}
	}

	s.mutex.Lock()
	if value == nil {
		delete(s.cache, key)
	} else {
		s.cache[key] = value
	}
	s.mutex.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, configUpdateChannel, key).Err(); err != nil {
			log.Printf("Warning: Failed to publish config update notification for key '%s': %v", key, err)
		}
	}

	log.Printf("Updated config key '%s' and published notification.", key)
	return nil
}
