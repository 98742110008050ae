package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"heimdall/internal/identity/models"
	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
	"heimdall/pkg/requestcontext"
)

const (
	tagKeyPrefix    = "resolve:tag:"
	memberKeyPrefix = "resolve:member:"
	// Generation keys advance on invalidation so a reload that raced one
	// can detect it and withhold its write-back.
	tagGenKeyPrefix    = "resolve:gen:tag:"
	memberGenKeyPrefix = "resolve:gen:member:"
)

// Redis is the shared cache for deployments where several controllers drive
// one door group and must observe the same invalidations. Entries expire at
// the freshness window, so the TTL doubles as the reload trigger.
type Redis struct {
	client          *redis.Client
	loader          Loader
	freshness       time.Duration
	statusFreshness time.Duration
}

// NewRedis builds a redis-backed cache over the given loader.
func NewRedis(client *redis.Client, loader Loader, freshness, statusFreshness time.Duration) *Redis {
	return &Redis{
		client:          client,
		loader:          loader,
		freshness:       freshness,
		statusFreshness: statusFreshness,
	}
}

// payload is the stored form of a snapshot.
type payload struct {
	Tag       *models.Tag    `json:"tag"`
	Member    *models.Member `json:"member,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
}

func (c *Redis) Resolve(ctx context.Context, tagID id.TagID) (Snapshot, error) {
	now := requestcontext.Now(ctx)

	raw, err := c.client.Get(ctx, tagKeyPrefix+tagID.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return c.reload(ctx, tagID, now)
	case err != nil:
		// A cache host fault must not close the door by itself; fall back
		// to the store read.
		return c.reload(ctx, tagID, now)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return c.reload(ctx, tagID, now)
	}
	if now.Sub(p.FetchedAt) > c.freshness {
		return c.reload(ctx, tagID, now)
	}

	snap := Snapshot{Tag: p.Tag, Member: p.Member, FetchedAt: p.FetchedAt}
	downgradeStale(snap.Member, now, c.statusFreshness)
	return snap, nil
}

func (c *Redis) InvalidateTag(ctx context.Context, tagID id.TagID) error {
	pipe := c.client.Pipeline()
	pipe.Del(ctx, tagKeyPrefix+tagID.String())
	genKey := tagGenKeyPrefix + tagID.String()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, 2*c.freshness)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate tag %s: %w", tagID, err)
	}
	return nil
}

func (c *Redis) InvalidateMember(ctx context.Context, memberID id.MemberID) error {
	key := memberKeyPrefix + memberID.String()
	tagIDs, err := c.client.SMembers(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("invalidate member %s: %w", memberID, err)
	}

	pipe := c.client.Pipeline()
	for _, tagID := range tagIDs {
		pipe.Del(ctx, tagKeyPrefix+tagID)
	}
	pipe.Del(ctx, key)
	genKey := memberGenKeyPrefix + memberID.String()
	pipe.Incr(ctx, genKey)
	pipe.Expire(ctx, genKey, 2*c.freshness)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate member %s: %w", memberID, err)
	}
	return nil
}

// generation reads a gen key; a missing key reads as the empty string,
// which only ever compares equal to another missing read.
func (c *Redis) generation(ctx context.Context, key string) (string, error) {
	gen, err := c.client.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return gen, nil
}

func (c *Redis) reload(ctx context.Context, tagID id.TagID, now time.Time) (Snapshot, error) {
	snap := Snapshot{FetchedAt: now}

	tagGenKey := tagGenKeyPrefix + tagID.String()
	tagGen, genErr := c.generation(ctx, tagGenKey)

	tag, err := c.loader.LookupTag(ctx, tagID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return snap, nil
	case err != nil:
		return Snapshot{}, err
	}
	snap.Tag = tag

	var memberGenKey, memberGen string
	if tag.IsBound() {
		memberGenKey = memberGenKeyPrefix + tag.MemberID.String()
		var mErr error
		memberGen, mErr = c.generation(ctx, memberGenKey)
		if genErr == nil {
			genErr = mErr
		}

		member, err := c.loader.LookupMember(ctx, tag.MemberID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
		case err != nil:
			return Snapshot{}, err
		default:
			snap.Member = member
		}
	}

	// If a generation could not be read, the cache host is misbehaving and
	// the write-back is skipped rather than risking an unguarded install.
	if genErr == nil {
		c.writeBack(ctx, tagID, snap, tagGenKey, tagGen, memberGenKey, memberGen)
	}

	downgraded := Snapshot{Tag: snap.Tag, Member: snap.Member, FetchedAt: snap.FetchedAt}
	downgradeStale(downgraded.Member, now, c.statusFreshness)
	return downgraded, nil
}

// writeBack installs the refreshed entry. Best effort: a write failure only
// costs the next resolution a store read. The transaction watches the
// generation keys read before the store lookups, so an invalidation landing
// anywhere between those reads and the EXEC aborts the install instead of
// resurrecting the evicted entry.
func (c *Redis) writeBack(ctx context.Context, tagID id.TagID, snap Snapshot, tagGenKey, tagGen, memberGenKey, memberGen string) {
	raw, err := json.Marshal(payload{Tag: snap.Tag, Member: snap.Member, FetchedAt: snap.FetchedAt})
	if err != nil {
		return
	}

	watched := []string{tagGenKey}
	if memberGenKey != "" {
		watched = append(watched, memberGenKey)
	}

	_ = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := c.txGeneration(ctx, tx, tagGenKey)
		if err != nil || cur != tagGen {
			return err
		}
		if memberGenKey != "" {
			cur, err := c.txGeneration(ctx, tx, memberGenKey)
			if err != nil || cur != memberGen {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, tagKeyPrefix+tagID.String(), raw, c.freshness)
			if snap.Member != nil {
				key := memberKeyPrefix + snap.Member.ID.String()
				pipe.SAdd(ctx, key, tagID.String())
				// Index entries outlive their tags slightly so invalidation
				// still finds entries written just before expiry.
				pipe.Expire(ctx, key, 2*c.freshness)
			}
			return nil
		})
		return err
	}, watched...)
}

func (c *Redis) txGeneration(ctx context.Context, tx *redis.Tx, key string) (string, error) {
	gen, err := tx.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return gen, nil
}
