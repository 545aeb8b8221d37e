package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CacheEntry is one persisted address resolution. HitCount and LastUsedAt
// feed eviction; the pipeline itself never evicts.
type CacheEntry struct {
	NormalizedAddress string    `gorm:"primaryKey;type:text" json:"normalized_address"`
	Latitude          float64   `gorm:"not null" json:"latitude"`
	Longitude         float64   `gorm:"not null" json:"longitude"`
	Confidence        float64   `gorm:"not null" json:"confidence"`
	Provider          string    `gorm:"type:text;not null" json:"provider"`
	HitCount          int64     `gorm:"not null;default:0" json:"hit_count"`
	LastUsedAt        time.Time `gorm:"not null" json:"last_used_at"`
	CreatedAt         time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

func (CacheEntry) TableName() string { return "geocode_cache" }

// CacheStore is read before any provider call and written after any success.
// Writes are last-writer-wins; a duplicate write is redundant, not wrong.
type CacheStore interface {
	Get(ctx context.Context, normalizedAddress string) (*Result, bool, error)
	Put(ctx context.Context, normalizedAddress string, result Result) error
}

// GormCache persists entries in the primary database.
type GormCache struct {
	db *gorm.DB
}

func NewGormCache(db *gorm.DB) *GormCache {
	return &GormCache{db: db}
}

func (c *GormCache) Get(ctx context.Context, normalizedAddress string) (*Result, bool, error) {
	var entry CacheEntry
	err := c.db.WithContext(ctx).First(&entry, "normalized_address = ?", normalizedAddress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	// Bookkeeping for eviction; losing this update under a race is harmless.
	c.db.WithContext(ctx).Model(&CacheEntry{}).
		Where("normalized_address = ?", normalizedAddress).
		Updates(map[string]any{
			"hit_count":    gorm.Expr("hit_count + 1"),
			"last_used_at": time.Now().UTC(),
		})

	return &Result{
		Latitude:          entry.Latitude,
		Longitude:         entry.Longitude,
		Confidence:        entry.Confidence,
		NormalizedAddress: entry.NormalizedAddress,
		Provider:          entry.Provider,
	}, true, nil
}

func (c *GormCache) Put(ctx context.Context, normalizedAddress string, result Result) error {
	now := time.Now().UTC()
	return c.db.WithContext(ctx).Exec(
		`INSERT INTO geocode_cache (normalized_address, latitude, longitude, confidence, provider, hit_count, last_used_at, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT (normalized_address) DO UPDATE SET
		   latitude = excluded.latitude,
		   longitude = excluded.longitude,
		   confidence = excluded.confidence,
		   provider = excluded.provider,
		   last_used_at = excluded.last_used_at`,
		normalizedAddress,
		result.Latitude,
		result.Longitude,
		result.Confidence,
		result.Provider,
		now,
		now,
	).Error
}

// RedisCache keeps entries in a shared key-value layer so multiple import
// workers share hits without touching the primary database.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(normalizedAddress string) string {
	return fmt.Sprintf("geocode:%s", normalizedAddress)
}

func (c *RedisCache) Get(ctx context.Context, normalizedAddress string) (*Result, bool, error) {
	raw, err := c.client.Get(ctx, cacheKey(normalizedAddress)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (c *RedisCache) Put(ctx context.Context, normalizedAddress string, result Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(normalizedAddress), raw, c.ttl).Err()
}
