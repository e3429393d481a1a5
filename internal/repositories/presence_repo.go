package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/otafleet/otafleet/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	presenceKeyPrefix = "presence:"
	presenceTTL       = 90 * time.Second // expires without a heartbeat
)

// RedisPresenceRepository is an advisory liveness cache keyed by device id.
// The device_states table remains the source of truth; this only answers
// "has the device heartbeated within the TTL window".
type RedisPresenceRepository struct {
	client *redis.Client
}

func NewRedisPresenceRepository(client *redis.Client) *RedisPresenceRepository {
	return &RedisPresenceRepository{client: client}
}

func (r *RedisPresenceRepository) SetPresence(ctx context.Context, presence *models.Presence) error {
	presence.LastSeen = time.Now()

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	key := presenceKey(presence.DeviceID)
	err = r.client.Set(ctx, key, data, presenceTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}

	return nil
}

// GetBulkPresence retrieves presence for multiple devices in one round trip.
// Devices with no live key are reported offline.
func (r *RedisPresenceRepository) GetBulkPresence(ctx context.Context, deviceIDs []string) (map[string]models.Presence, error) {
	if len(deviceIDs) == 0 {
		return make(map[string]models.Presence), nil
	}

	keys := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		keys[i] = presenceKey(id)
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk presence: %w", err)
	}

	presenceMap := make(map[string]models.Presence)

	for i, result := range results {
		deviceID := deviceIDs[i]

		if result == nil {
			presenceMap[deviceID] = models.Presence{
				DeviceID: deviceID,
				Status:   string(models.StatusOffline),
			}
			continue
		}

		data, ok := result.(string)
		if !ok {
			continue
		}

		var presence models.Presence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			// Unreadable cache entry counts as offline.
			presenceMap[deviceID] = models.Presence{
				DeviceID: deviceID,
				Status:   string(models.StatusOffline),
			}
			continue
		}

		presenceMap[deviceID] = presence
	}

	return presenceMap, nil
}

func presenceKey(deviceID string) string {
	return presenceKeyPrefix + deviceID
}
