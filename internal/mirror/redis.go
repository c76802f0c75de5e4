package mirror

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	recordKeyPrefix = "vault:mirror:"
	ownersKey       = "vault:mirror:owners"
)

// RedisStore keeps one hash per owner plus a set of known owners so the
// reconciler can enumerate the mirror without scanning the keyspace.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recordKey(owner string) string {
	return recordKeyPrefix + owner
}

func (s *RedisStore) Upsert(ctx context.Context, rec Record) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, recordKey(rec.Owner), map[string]interface{}{
		"total_balance":      rec.TotalBalance,
		"locked_balance":     rec.LockedBalance,
		"available_balance":  rec.AvailableBalance,
		"lifetime_deposited": rec.LifetimeDeposited,
		"lifetime_withdrawn": rec.LifetimeWithdrawn,
		"last_updated":       rec.LastUpdated.UTC().Format(time.RFC3339Nano),
	})
	pipe.SAdd(ctx, ownersKey, rec.Owner)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror upsert %s: %w", rec.Owner, err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context, owner string) (Record, error) {
	fields, err := s.client.HGetAll(ctx, recordKey(owner)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("mirror read %s: %w", owner, err)
	}
	if len(fields) == 0 {
		return Record{}, ErrMiss
	}

	rec := Record{Owner: owner}
	if rec.TotalBalance, err = parseField(fields, "total_balance"); err != nil {
		return Record{}, err
	}
	if rec.LockedBalance, err = parseField(fields, "locked_balance"); err != nil {
		return Record{}, err
	}
	if rec.AvailableBalance, err = parseField(fields, "available_balance"); err != nil {
		return Record{}, err
	}
	if rec.LifetimeDeposited, err = parseField(fields, "lifetime_deposited"); err != nil {
		return Record{}, err
	}
	if rec.LifetimeWithdrawn, err = parseField(fields, "lifetime_withdrawn"); err != nil {
		return Record{}, err
	}
	if raw, ok := fields["last_updated"]; ok {
		rec.LastUpdated, _ = time.Parse(time.RFC3339Nano, raw)
	}
	return rec, nil
}

func (s *RedisStore) Owners(ctx context.Context) ([]string, error) {
	owners, err := s.client.SMembers(ctx, ownersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("mirror owners: %w", err)
	}
	return owners, nil
}

func parseField(fields map[string]string, name string) (uint64, error) {
	raw, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("mirror record missing field %s", name)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("mirror field %s: %w", name, err)
	}
	return v, nil
}
