package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/rxverify/internal/entity"
)

// Redis keeps valid fingerprints in a set and the full entries in a list.
//
//	<prefix>valid    SET of fingerprints
//	<prefix>entries  LIST of entry JSON, oldest first
type Redis struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewRedis(client redis.UniversalClient, prefix string, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, prefix: prefix, logger: logger, now: time.Now}
}

func (r *Redis) validKey() string   { return r.prefix + "valid" }
func (r *Redis) entriesKey() string { return r.prefix + "entries" }

func (r *Redis) ExistsAndValid(ctx context.Context, fingerprint string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.validKey(), fingerprint).Result()
	if err != nil {
		return false, fmt.Errorf("redis lookup: %w", err)
	}
	return ok, nil
}

func (r *Redis) Insert(ctx context.Context, entry entity.RegistryEntry) (string, error) {
	if entry.Fingerprint == "" {
		return "", ErrEmptyFingerprint
	}
	e := entry.Stamped(r.now())
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, r.entriesKey(), data)
		p.SAdd(ctx, r.validKey(), e.Fingerprint)
		return nil
	})
	if err != nil {
		r.logger.Error("failed to insert registry entry", "fingerprint", e.Fingerprint, "error", err)
		return "", fmt.Errorf("redis insert: %w", err)
	}
	return e.Fingerprint, nil
}

func (r *Redis) Entries(ctx context.Context) ([]entity.RegistryEntry, error) {
	raw, err := r.client.LRange(ctx, r.entriesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}
	out := make([]entity.RegistryEntry, 0, len(raw))
	for _, s := range raw {
		var e entity.RegistryEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			return nil, fmt.Errorf("decode redis entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
