// Package service is the single mutation path for tags and members. Every
// write goes through here so cache invalidation can never be skipped: a
// revoke that has returned is guaranteed visible to the very next
// resolution of that tag.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"heimdall/internal/identity/metrics"
	"heimdall/internal/identity/models"
	"heimdall/internal/identity/store"
	id "heimdall/pkg/domain"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks heimdall/internal/identity/service Invalidator

// Invalidator is the cache slice the service drives. Satisfied by both
// cache implementations.
type Invalidator interface {
	InvalidateTag(ctx context.Context, tagID id.TagID) error
	InvalidateMember(ctx context.Context, memberID id.MemberID) error
}

// Service wires the identity store to its cache invalidations.
type Service struct {
	store   store.Store
	cache   Invalidator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs the identity service.
func New(st store.Store, cache Invalidator, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: st, cache: cache, logger: logger, metrics: m}
}

// BindTag issues a tag to a member. A non-empty authSecret arms secondary
// authentication: the secret is bcrypt-hashed and the reader must present it
// on every use.
func (s *Service) BindTag(ctx context.Context, tagID id.TagID, memberID id.MemberID, authSecret string) (*models.Tag, error) {
	params := store.BindParams{TagID: tagID, MemberID: memberID}
	if authSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(authSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash tag secret: %w", err)
		}
		params.AuthMethod = models.AuthSecret
		params.AuthSecretHash = hash
	}

	tag, err := s.store.BindTag(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateTag(ctx, tagID); err != nil {
		return nil, fmt.Errorf("bind applied but invalidation failed: %w", err)
	}

	s.metrics.IncTagsBound()
	s.logger.InfoContext(ctx, "tag bound",
		"tag_id", tagID.String(),
		"member_id", memberID.String(),
		"secondary_auth", params.AuthMethod == models.AuthSecret,
	)
	return tag, nil
}

// RevokeTag marks a tag revoked and evicts it from the cache before
// returning, so the revoke is visible to the next resolution regardless of
// refresh intervals. Idempotent.
func (s *Service) RevokeTag(ctx context.Context, tagID id.TagID) error {
	if err := s.store.RevokeTag(ctx, tagID); err != nil {
		return err
	}
	if err := s.cache.InvalidateTag(ctx, tagID); err != nil {
		return fmt.Errorf("revoke applied but invalidation failed: %w", err)
	}

	s.metrics.IncTagsRevoked()
	s.logger.InfoContext(ctx, "tag revoked", "tag_id", tagID.String())
	return nil
}

// UpsertMember creates or refreshes a member record.
func (s *Service) UpsertMember(ctx context.Context, params store.UpsertMemberParams) (*models.Member, error) {
	member, err := s.store.UpsertMember(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateMember(ctx, params.ID); err != nil {
		return nil, fmt.Errorf("upsert applied but invalidation failed: %w", err)
	}

	s.metrics.IncMembersUpserted()
	return member, nil
}

// ListActiveTags returns a member's live tags.
func (s *Service) ListActiveTags(ctx context.Context, memberID id.MemberID) ([]*models.Tag, error) {
	return s.store.ListActiveTagsForMember(ctx, memberID)
}

// LookupMember returns a member snapshot.
func (s *Service) LookupMember(ctx context.Context, memberID id.MemberID) (*models.Member, error) {
	return s.store.LookupMember(ctx, memberID)
}

// BanMember closes the door to a member until the given instant without
// touching their membership status.
func (s *Service) BanMember(ctx context.Context, memberID id.MemberID, until time.Time) (*models.Member, error) {
	member, err := s.store.ExecuteMember(ctx, memberID, nil, func(m *models.Member) {
		m.BanUntil = &until
	})
	if err != nil {
		return nil, err
	}
	if err := s.cache.InvalidateMember(ctx, memberID); err != nil {
		return nil, fmt.Errorf("ban applied but invalidation failed: %w", err)
	}

	s.metrics.IncMembersBanned()
	s.logger.InfoContext(ctx, "member banned",
		"member_id", memberID.String(),
		"until", until,
	)
	return member, nil
}

// RecordExit stamps a departure reported by the hardware side.
func (s *Service) RecordExit(ctx context.Context, memberID id.MemberID, at time.Time) error {
	if _, err := s.store.ExecuteMember(ctx, memberID, nil, func(m *models.Member) {
		m.ApplyExit(at)
	}); err != nil {
		return err
	}
	return s.cache.InvalidateMember(ctx, memberID)
}

// ApplyStatusReport writes a verified status fetched from the
// membership-truth source back into the store. Used by the background
// refresher.
func (s *Service) ApplyStatusReport(ctx context.Context, memberID id.MemberID, status models.MemberStatus, asOf, now time.Time) error {
	if _, err := s.store.ExecuteMember(ctx, memberID, nil, func(m *models.Member) {
		m.ApplyVerifiedStatus(status, asOf, now)
	}); err != nil {
		return err
	}
	return s.cache.InvalidateMember(ctx, memberID)
}

// ApplyStatusFailure records that the membership-truth source could not
// re-confirm a member's status. The prior status stands; only its source
// marker changes.
func (s *Service) ApplyStatusFailure(ctx context.Context, memberID id.MemberID, now time.Time) error {
	if _, err := s.store.ExecuteMember(ctx, memberID, nil, func(m *models.Member) {
		m.ApplyRefreshFailure(now)
	}); err != nil {
		return err
	}
	return s.cache.InvalidateMember(ctx, memberID)
}
