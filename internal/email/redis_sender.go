package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// MockEmailTTL is how long a captured email stays readable.
const MockEmailTTL = 5 * time.Minute

// MockEmailKey is the Redis key a captured email is stored under.
func MockEmailKey(to, templateID string) string {
	return fmt.Sprintf("mockemail:%s:%s", strings.ToLower(to), templateID)
}

// RedisSender stores emails in Redis instead of delivering them, so end to end
// tests can read verification codes through the service API.
type RedisSender struct {
	client *redis.Client
	from   string
}

// NewRedisSender creates a new RedisSender.
func NewRedisSender(client *redis.Client, from string) Sender {
	return &RedisSender{client: client, from: from}
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	tmpl := templateID(rawMessage)
	if tmpl == "" {
		tmpl = "unknown"
	}

	emailData := map[string]interface{}{
		"to":         strings.Join(to, ", "),
		"from":       s.from,
		"subject":    subject,
		"body":       body(rawMessage),
		"sent_at":    time.Now().UTC().Format(time.RFC3339Nano),
		"templateId": tmpl,
	}
	jsonData, err := json.Marshal(emailData)
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	for _, addr := range to {
		key := MockEmailKey(addr, tmpl)
		if err := s.client.Set(ctx, key, jsonData, MockEmailTTL).Err(); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
		log.Printf("Mock email stored in Redis key '%s' (TTL: %v, Subject: %s)", key, MockEmailTTL, subject)
	}
	return nil
}
