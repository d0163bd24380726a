// Package cache provides Redis-based caching of ledger read results
package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/savegress/medledger/pkg/models"
)

// TTLs per data type. Records are immutable but the list for a patient
// grows, so the record TTL is a bound on how stale a list can get when
// another client appends.
const (
	TTLRecords = 30 * time.Second
	TTLRole    = 2 * time.Minute
)

// Cache wraps a Redis client. A disabled cache is a no-op so callers
// never branch on configuration.
type Cache struct {
	client    *redis.Client
	keyPrefix string
	enabled   bool
}

// Config holds cache configuration
type Config struct {
	URL       string
	KeyPrefix string
	Enabled   bool
}

// New creates a Cache instance. With Enabled false no connection is
// made.
func New(cfg *Config) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{enabled: false}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "medledger"
	}

	return &Cache{client: client, keyPrefix: prefix, enabled: true}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsEnabled returns whether caching is enabled
func (c *Cache) IsEnabled() bool {
	return c.enabled
}

func (c *Cache) key(parts ...string) string {
	key := c.keyPrefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}

// GetRecords retrieves a cached record list for a patient
func (c *Cache) GetRecords(ctx context.Context, patientID string) ([]models.MedicalRecord, bool) {
	if !c.enabled {
		return nil, false
	}

	data, err := c.client.Get(ctx, c.key("records", patientID)).Bytes()
	if err != nil {
		return nil, false
	}

	var records []models.MedicalRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, false
	}
	return records, true
}

// SetRecords caches a record list for a patient
func (c *Cache) SetRecords(ctx context.Context, patientID string, records []models.MedicalRecord) {
	if !c.enabled {
		return
	}

	data, err := json.Marshal(records)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key("records", patientID), data, TTLRecords)
}

// InvalidateRecords drops the cached list for a patient. Called after a
// confirmed append so the next fetch sees the new record.
func (c *Cache) InvalidateRecords(ctx context.Context, patientID string) {
	if !c.enabled {
		return
	}
	c.client.Del(ctx, c.key("records", patientID))
}

// GetRole retrieves a cached role for an account
func (c *Cache) GetRole(ctx context.Context, account string) (*models.Role, bool) {
	if !c.enabled {
		return nil, false
	}

	data, err := c.client.Get(ctx, c.key("role", strings.ToLower(account))).Bytes()
	if err != nil {
		return nil, false
	}

	var role models.Role
	if err := json.Unmarshal(data, &role); err != nil {
		return nil, false
	}
	return &role, true
}

// SetRole caches an account's role
func (c *Cache) SetRole(ctx context.Context, account string, role models.Role) {
	if !c.enabled {
		return
	}

	data, err := json.Marshal(role)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key("role", strings.ToLower(account)), data, TTLRole)
}

// InvalidateRoles drops every cached role. Authorization changes can
// affect any account, so the whole namespace goes.
func (c *Cache) InvalidateRoles(ctx context.Context) {
	if !c.enabled {
		return
	}

	iter := c.client.Scan(ctx, 0, c.key("role", "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}
