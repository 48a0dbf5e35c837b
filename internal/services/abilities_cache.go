package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mportier/vaultgate/internal/models"
	"github.com/mportier/vaultgate/internal/repositories"
	"github.com/redis/go-redis/v9"
)

const abilitiesCacheKey = "org:abilities"

// OrganizationAbilitiesCache is a redis-backed TTL cache over the
// organization abilities snapshot, so membership-wide two-factor checks do
// not hit the database on every login.
type OrganizationAbilitiesCache struct {
	client  *redis.Client
	orgRepo repositories.OrganizationRepository
	ttl     time.Duration
	logger  *slog.Logger
}

func NewOrganizationAbilitiesCache(client *redis.Client, orgRepo repositories.OrganizationRepository, ttl time.Duration, logger *slog.Logger) *OrganizationAbilitiesCache {
	return &OrganizationAbilitiesCache{
		client:  client,
		orgRepo: orgRepo,
		ttl:     ttl,
		logger:  logger,
	}
}

// GetOrganizationAbilities returns the cached snapshot, refreshing it from
// the organization repository on miss. A cache read failure degrades to a
// direct repository read.
func (c *OrganizationAbilitiesCache) GetOrganizationAbilities(ctx context.Context) (map[string]models.OrganizationAbility, error) {
	cached, err := c.client.Get(ctx, abilitiesCacheKey).Bytes()
	if err == nil {
		var abilities map[string]models.OrganizationAbility
		if err := json.Unmarshal(cached, &abilities); err == nil {
			return abilities, nil
		}
		c.logger.Warn("discarding corrupt abilities cache entry")
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("abilities cache read failed", slog.Any("error", err))
	}

	abilities, err := c.orgRepo.GetAbilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load organization abilities: %w", err)
	}

	if data, err := json.Marshal(abilities); err == nil {
		if err := c.client.Set(ctx, abilitiesCacheKey, data, c.ttl).Err(); err != nil {
			c.logger.Warn("abilities cache write failed", slog.Any("error", err))
		}
	}

	return abilities, nil
}

// Invalidate drops the cached snapshot, forcing the next read to refresh.
func (c *OrganizationAbilitiesCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, abilitiesCacheKey).Err()
}
