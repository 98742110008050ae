package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
	"heimdall/pkg/requestcontext"
)

// Memory is the per-process cache used by a controller with a local store.
// Reads are lock-free on the hit path apart from an RLock; reloads take the
// write lock only to install the refreshed entry.
type Memory struct {
	loader          Loader
	freshness       time.Duration
	statusFreshness time.Duration

	mu      sync.RWMutex
	entries map[id.TagID]Snapshot
	// byMember indexes live entries for member invalidation.
	byMember map[id.MemberID]map[id.TagID]struct{}
	// tagGens and memberGens advance on every invalidation. A reload
	// records them before its store reads and installs only if they are
	// unchanged, so an invalidation that lands mid-reload wins: the
	// pre-mutation snapshot is served to the in-flight caller but never
	// cached.
	tagGens    map[id.TagID]uint64
	memberGens map[id.MemberID]uint64
}

// NewMemory builds a memory cache over the given loader. freshness bounds
// how old an entry may be before the next resolution reloads it;
// statusFreshness bounds how old a member status may be before it is served
// as cached-stale.
func NewMemory(loader Loader, freshness, statusFreshness time.Duration) *Memory {
	return &Memory{
		loader:          loader,
		freshness:       freshness,
		statusFreshness: statusFreshness,
		entries:         make(map[id.TagID]Snapshot),
		byMember:        make(map[id.MemberID]map[id.TagID]struct{}),
		tagGens:         make(map[id.TagID]uint64),
		memberGens:      make(map[id.MemberID]uint64),
	}
}

func (c *Memory) Resolve(ctx context.Context, tagID id.TagID) (Snapshot, error) {
	now := requestcontext.Now(ctx)

	c.mu.RLock()
	snap, ok := c.entries[tagID]
	c.mu.RUnlock()

	if ok && now.Sub(snap.FetchedAt) <= c.freshness {
		return c.serve(snap, now), nil
	}
	return c.reload(ctx, tagID, now)
}

func (c *Memory) InvalidateTag(_ context.Context, tagID id.TagID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tagGens[tagID]++
	c.evict(tagID)
	return nil
}

func (c *Memory) InvalidateMember(_ context.Context, memberID id.MemberID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memberGens[memberID]++
	for tagID := range c.byMember[memberID] {
		c.evict(tagID)
	}
	return nil
}

// serve returns a caller-owned copy with staleness downgrades applied.
func (c *Memory) serve(snap Snapshot, now time.Time) Snapshot {
	out := Snapshot{
		Tag:       snap.Tag.Clone(),
		Member:    snap.Member.Clone(),
		FetchedAt: snap.FetchedAt,
	}
	downgradeStale(out.Member, now, c.statusFreshness)
	return out
}

func (c *Memory) reload(ctx context.Context, tagID id.TagID, now time.Time) (Snapshot, error) {
	snap := Snapshot{FetchedAt: now}

	c.mu.RLock()
	tagGen := c.tagGens[tagID]
	c.mu.RUnlock()

	tag, err := c.loader.LookupTag(ctx, tagID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		// Unknown tags are not cached: the store read is local and cheap,
		// and a negative entry would delay a fresh binding's first use.
		return snap, nil
	case err != nil:
		return Snapshot{}, err
	}
	snap.Tag = tag

	var memberGen uint64
	if tag.IsBound() {
		c.mu.RLock()
		memberGen = c.memberGens[tag.MemberID]
		c.mu.RUnlock()

		member, err := c.loader.LookupMember(ctx, tag.MemberID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			// Bound tag with a missing member record; serve the hole as-is
			// and let the evaluator deny it.
		case err != nil:
			return Snapshot{}, err
		default:
			snap.Member = member
		}
	}

	c.mu.Lock()
	// An invalidation that landed after our store reads started may have
	// evicted state these reads predate. Installing anyway would resurrect
	// the evicted entry, so the reload loses and only its own caller sees
	// the snapshot.
	install := c.tagGens[tagID] == tagGen &&
		(snap.Member == nil || c.memberGens[snap.Member.ID] == memberGen)
	if install {
		c.evict(tagID)
		c.entries[tagID] = snap
		if snap.Member != nil {
			idx := c.byMember[snap.Member.ID]
			if idx == nil {
				idx = make(map[id.TagID]struct{})
				c.byMember[snap.Member.ID] = idx
			}
			idx[tagID] = struct{}{}
		}
	}
	c.mu.Unlock()

	return c.serve(snap, now), nil
}

// evict removes an entry and its member index link. Caller holds c.mu.
func (c *Memory) evict(tagID id.TagID) {
	snap, ok := c.entries[tagID]
	if !ok {
		return
	}
	delete(c.entries, tagID)
	if snap.Member != nil {
		idx := c.byMember[snap.Member.ID]
		delete(idx, tagID)
		if len(idx) == 0 {
			delete(c.byMember, snap.Member.ID)
		}
	}
}
