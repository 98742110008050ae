package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"heimdall/internal/identity/models"
	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
	"heimdall/pkg/requestcontext"
)

// Postgres implements Store on PostgreSQL. Bind and revoke run in
// transactions with row locks, so concurrent mutations on the same record
// serialize while unrelated records proceed independently.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed identity store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tags and members tables if they do not exist.
// Mirrors the controller's provisioning step on first boot.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS members (
			id                 UUID PRIMARY KEY,
			display_name       TEXT NOT NULL DEFAULT '',
			status             TEXT NOT NULL,
			status_source      TEXT NOT NULL,
			status_verified_at TIMESTAMPTZ NOT NULL,
			manager            BOOLEAN NOT NULL DEFAULT FALSE,
			ban_until          TIMESTAMPTZ,
			last_attempt       TIMESTAMPTZ,
			last_enter         TIMESTAMPTZ,
			last_leave         TIMESTAMPTZ,
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS tags (
			id               TEXT PRIMARY KEY,
			member_id        UUID REFERENCES members(id),
			issued_at        TIMESTAMPTZ NOT NULL,
			revoked          BOOLEAN NOT NULL DEFAULT FALSE,
			revoked_at       TIMESTAMPTZ,
			auth_method      INTEGER NOT NULL DEFAULT 0,
			auth_secret_hash BYTEA
		);
		CREATE INDEX IF NOT EXISTS tags_member_id_idx ON tags (member_id) WHERE NOT revoked;
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", sentinel.ErrStorage, err)
	}
	return nil
}

func (s *Postgres) LookupTag(ctx context.Context, tagID id.TagID) (*models.Tag, error) {
	return scanTag(s.db.QueryRowContext(ctx, `
		SELECT id, member_id, issued_at, revoked, revoked_at, auth_method, auth_secret_hash
		FROM tags WHERE id = $1
	`, string(tagID)))
}

func (s *Postgres) LookupMember(ctx context.Context, memberID id.MemberID) (*models.Member, error) {
	return scanMember(s.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM members WHERE id = $1
	`, uuid.UUID(memberID)))
}

func (s *Postgres) BindTag(ctx context.Context, params BindParams) (*models.Tag, error) {
	now := requestcontext.Now(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin bind: %v", sentinel.ErrStorage, err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, member_id, issued_at, revoked, revoked_at, auth_method, auth_secret_hash
		FROM tags WHERE id = $1 FOR UPDATE
	`, string(params.TagID))

	tag, err := scanTag(row)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		tag = &models.Tag{ID: params.TagID}
	case err != nil:
		return nil, err
	}

	if err := tag.CanBind(params.MemberID); err != nil {
		return nil, fmt.Errorf("bind tag %s: %w", params.TagID, err)
	}
	tag.ApplyBinding(params.MemberID, now)
	tag.AuthMethod = params.AuthMethod
	tag.AuthSecretHash = append([]byte(nil), params.AuthSecretHash...)

	// FOR UPDATE cannot lock a row that does not exist yet, so two
	// first-issuance binds of the same id can both scan NotFound and reach
	// this upsert. The conflict branch re-checks the binding rules against
	// the committed row and RETURNING goes empty when they fail, so the
	// loser gets a conflict instead of silently overwriting the winner.
	var insertedID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tags (id, member_id, issued_at, revoked, auth_method, auth_secret_hash)
		VALUES ($1, $2, $3, FALSE, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			member_id = EXCLUDED.member_id,
			auth_method = EXCLUDED.auth_method,
			auth_secret_hash = EXCLUDED.auth_secret_hash
		WHERE NOT tags.revoked
		  AND (tags.member_id IS NULL OR tags.member_id = EXCLUDED.member_id)
		RETURNING id
	`, string(tag.ID), uuid.UUID(tag.MemberID), tag.IssuedAt, int32(tag.AuthMethod), tag.AuthSecretHash).Scan(&insertedID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("bind tag %s: concurrently bound: %w", params.TagID, sentinel.ErrConflict)
	case err != nil:
		if pqErr := (*pq.Error)(nil); errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return nil, fmt.Errorf("bind tag %s: member %s: %w", params.TagID, params.MemberID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: bind tag %s: %v", sentinel.ErrStorage, params.TagID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit bind: %v", sentinel.ErrStorage, err)
	}
	return tag, nil
}

func (s *Postgres) RevokeTag(ctx context.Context, tagID id.TagID) error {
	now := requestcontext.Now(ctx)

	// Single statement keeps revocation atomic; the WHERE guard keeps it
	// idempotent without moving the original revocation timestamp.
	res, err := s.db.ExecContext(ctx, `
		UPDATE tags SET
			revoked = TRUE,
			revoked_at = COALESCE(revoked_at, $2)
		WHERE id = $1
	`, string(tagID), now)
	if err != nil {
		return fmt.Errorf("%w: revoke tag %s: %v", sentinel.ErrStorage, tagID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: revoke tag %s: %v", sentinel.ErrStorage, tagID, err)
	}
	if n == 0 {
		return fmt.Errorf("revoke tag %s: %w", tagID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) UpsertMember(ctx context.Context, params UpsertMemberParams) (*models.Member, error) {
	now := requestcontext.Now(ctx)

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO members (id, display_name, status, status_source, status_verified_at, manager, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, FALSE), $7, $7)
		ON CONFLICT (id) DO UPDATE SET
			display_name       = CASE WHEN EXCLUDED.display_name = '' THEN members.display_name ELSE EXCLUDED.display_name END,
			status             = EXCLUDED.status,
			status_source      = EXCLUDED.status_source,
			status_verified_at = EXCLUDED.status_verified_at,
			manager            = COALESCE($6, members.manager),
			updated_at         = EXCLUDED.updated_at
		RETURNING `+memberColumns+`
	`, uuid.UUID(params.ID), params.DisplayName, string(params.Status), string(params.Source),
		params.VerifiedAt, params.Manager, now)

	return scanMember(row)
}

func (s *Postgres) ExecuteMember(ctx context.Context, memberID id.MemberID, validate func(*models.Member) error, mutate func(*models.Member)) (*models.Member, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin execute: %v", sentinel.ErrStorage, err)
	}
	defer tx.Rollback()

	member, err := scanMember(tx.QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM members WHERE id = $1 FOR UPDATE
	`, uuid.UUID(memberID)))
	if err != nil {
		return nil, err
	}

	if validate != nil {
		if err := validate(member); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(member)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE members SET
			display_name = $2, status = $3, status_source = $4, status_verified_at = $5,
			manager = $6, ban_until = $7, last_attempt = $8, last_enter = $9, last_leave = $10,
			updated_at = $11
		WHERE id = $1
	`, uuid.UUID(member.ID), member.DisplayName, string(member.Status), string(member.StatusSource),
		member.StatusVerifiedAt, member.Manager, member.BanUntil, member.LastAttempt,
		member.LastEnter, member.LastLeave, member.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: execute member %s: %v", sentinel.ErrStorage, memberID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit execute: %v", sentinel.ErrStorage, err)
	}
	return member, nil
}

func (s *Postgres) ListActiveTagsForMember(ctx context.Context, memberID id.MemberID) ([]*models.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, issued_at, revoked, revoked_at, auth_method, auth_secret_hash
		FROM tags WHERE member_id = $1 AND NOT revoked
		ORDER BY issued_at
	`, uuid.UUID(memberID))
	if err != nil {
		return nil, fmt.Errorf("%w: list tags for %s: %v", sentinel.ErrStorage, memberID, err)
	}
	defer rows.Close()

	var tags []*models.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list tags for %s: %v", sentinel.ErrStorage, memberID, err)
	}
	return tags, nil
}

func (s *Postgres) ListMemberIDs(ctx context.Context) ([]id.MemberID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM members ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("%w: list members: %v", sentinel.ErrStorage, err)
	}
	defer rows.Close()

	var ids []id.MemberID
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("%w: list members: %v", sentinel.ErrStorage, err)
		}
		ids = append(ids, id.MemberID(u))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list members: %v", sentinel.ErrStorage, err)
	}
	return ids, nil
}

const memberColumns = `id, display_name, status, status_source, status_verified_at,
	manager, ban_until, last_attempt, last_enter, last_leave, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTag(row rowScanner) (*models.Tag, error) {
	var (
		tag      models.Tag
		tagID    string
		memberID uuid.NullUUID
		revoked  sql.NullTime
		method   int32
	)
	err := row.Scan(&tagID, &memberID, &tag.IssuedAt, &tag.Revoked, &revoked, &method, &tag.AuthSecretHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tag: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan tag: %v", sentinel.ErrStorage, err)
	}
	tag.ID = id.TagID(tagID)
	if memberID.Valid {
		tag.MemberID = id.MemberID(memberID.UUID)
	}
	if revoked.Valid {
		t := revoked.Time
		tag.RevokedAt = &t
	}
	tag.AuthMethod = models.AuthMethod(method)
	return &tag, nil
}

func scanMember(row rowScanner) (*models.Member, error) {
	var (
		member   models.Member
		memberID uuid.UUID
		status   string
		source   string
		banUntil sql.NullTime
		attempt  sql.NullTime
		enter    sql.NullTime
		leave    sql.NullTime
	)
	err := row.Scan(&memberID, &member.DisplayName, &status, &source, &member.StatusVerifiedAt,
		&member.Manager, &banUntil, &attempt, &enter, &leave, &member.CreatedAt, &member.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("member: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan member: %v", sentinel.ErrStorage, err)
	}
	member.ID = id.MemberID(memberID)
	member.Status = models.MemberStatus(status)
	member.StatusSource = models.StatusSource(source)
	member.BanUntil = nullTimePtr(banUntil)
	member.LastAttempt = nullTimePtr(attempt)
	member.LastEnter = nullTimePtr(enter)
	member.LastLeave = nullTimePtr(leave)
	return &member, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	ts := t.Time
	return &ts
}
