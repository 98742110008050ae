package handler

import (
	"fmt"
	"time"

	"heimdall/internal/identity/models"
	"heimdall/internal/identity/store"
	id "heimdall/pkg/domain"
)

// BindTagRequest is the body of POST /admin/tags.
type BindTagRequest struct {
	TagID    string `json:"tag_id"`
	MemberID string `json:"member_id"`
	// AuthSecret arms secondary authentication for the tag when non-empty.
	AuthSecret string `json:"auth_secret,omitempty"`
}

func (r BindTagRequest) Parse() (id.TagID, id.MemberID, error) {
	tagID, err := id.ParseTagID(r.TagID)
	if err != nil {
		return "", id.MemberID{}, err
	}
	memberID, err := id.ParseMemberID(r.MemberID)
	if err != nil {
		return "", id.MemberID{}, err
	}
	return tagID, memberID, nil
}

// UpsertMemberRequest is the body of PUT /admin/members/{memberID}.
type UpsertMemberRequest struct {
	DisplayName string `json:"display_name,omitempty"`
	Status      string `json:"status"`
	// Manager is applied only when present, so a status update cannot
	// silently drop admin rights.
	Manager *bool `json:"manager,omitempty"`
}

func (r UpsertMemberRequest) Parse(memberID id.MemberID, now time.Time) (store.UpsertMemberParams, error) {
	status := models.MemberStatus(r.Status)
	if !status.Valid() {
		return store.UpsertMemberParams{}, fmt.Errorf("%w: status %q", id.ErrInvalidID, r.Status)
	}
	// An admin-entered status counts as verified: the admin is a membership
	// truth source of last resort.
	return store.UpsertMemberParams{
		ID:          memberID,
		DisplayName: r.DisplayName,
		Status:      status,
		Source:      models.SourceAuthoritative,
		VerifiedAt:  now,
		Manager:     r.Manager,
	}, nil
}

// BanMemberRequest is the body of POST /admin/members/{memberID}/ban.
type BanMemberRequest struct {
	Until time.Time `json:"until"`
}

func (r BanMemberRequest) Parse(now time.Time) (time.Time, error) {
	if r.Until.IsZero() || !r.Until.After(now) {
		return time.Time{}, fmt.Errorf("%w: ban until must be in the future", id.ErrInvalidID)
	}
	return r.Until, nil
}

// TagResponse is the wire form of a tag. The secret hash never leaves the
// controller; only the auth method is reported.
type TagResponse struct {
	TagID         string     `json:"tag_id"`
	MemberID      string     `json:"member_id,omitempty"`
	IssuedAt      time.Time  `json:"issued_at"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	SecondaryAuth bool       `json:"secondary_auth"`
}

func FromTag(tag *models.Tag) TagResponse {
	resp := TagResponse{
		TagID:         tag.ID.String(),
		IssuedAt:      tag.IssuedAt,
		Revoked:       tag.Revoked,
		RevokedAt:     tag.RevokedAt,
		SecondaryAuth: tag.AuthMethod == models.AuthSecret,
	}
	if tag.IsBound() {
		resp.MemberID = tag.MemberID.String()
	}
	return resp
}

// TagListResponse is the wire form of GET /admin/members/{memberID}/tags.
type TagListResponse struct {
	Tags []TagResponse `json:"tags"`
}

// MemberResponse is the wire form of a member.
type MemberResponse struct {
	MemberID         string     `json:"member_id"`
	DisplayName      string     `json:"display_name,omitempty"`
	Status           string     `json:"status"`
	StatusSource     string     `json:"status_source"`
	StatusVerifiedAt time.Time  `json:"status_verified_at"`
	Manager          bool       `json:"manager"`
	BanUntil         *time.Time `json:"ban_until,omitempty"`
	LastEnter        *time.Time `json:"last_enter,omitempty"`
	LastLeave        *time.Time `json:"last_leave,omitempty"`
}

func FromMember(member *models.Member) MemberResponse {
	return MemberResponse{
		MemberID:         member.ID.String(),
		DisplayName:      member.DisplayName,
		Status:           string(member.Status),
		StatusSource:     string(member.StatusSource),
		StatusVerifiedAt: member.StatusVerifiedAt,
		Manager:          member.Manager,
		BanUntil:         member.BanUntil,
		LastEnter:        member.LastEnter,
		LastLeave:        member.LastLeave,
	}
}
