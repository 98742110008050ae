// Package handler exposes the admin API for tags and members. Every route
// here sits behind the manager-gating middleware; nothing on this surface is
// reachable by a bare door reader.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"heimdall/internal/identity/models"
	"heimdall/internal/identity/store"
	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/httputil"
	"heimdall/pkg/requestcontext"
)

// Service defines the identity operations the admin API drives.
type Service interface {
	BindTag(ctx context.Context, tagID id.TagID, memberID id.MemberID, authSecret string) (*models.Tag, error)
	RevokeTag(ctx context.Context, tagID id.TagID) error
	ListActiveTags(ctx context.Context, memberID id.MemberID) ([]*models.Tag, error)
	LookupMember(ctx context.Context, memberID id.MemberID) (*models.Member, error)
	UpsertMember(ctx context.Context, params store.UpsertMemberParams) (*models.Member, error)
	BanMember(ctx context.Context, memberID id.MemberID, until time.Time) (*models.Member, error)
	RecordExit(ctx context.Context, memberID id.MemberID, at time.Time) error
}

// Handler wires admin endpoints to the identity service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the admin endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/tags", h.HandleBindTag)
	r.Delete("/admin/tags/{tagID}", h.HandleRevokeTag)
	r.Get("/admin/members/{memberID}", h.HandleGetMember)
	r.Put("/admin/members/{memberID}", h.HandleUpsertMember)
	r.Get("/admin/members/{memberID}/tags", h.HandleListTags)
	r.Post("/admin/members/{memberID}/ban", h.HandleBanMember)
	r.Post("/admin/members/{memberID}/exit", h.HandleRecordExit)
}

// HandleBindTag handles POST /admin/tags.
func (h *Handler) HandleBindTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[BindTagRequest](w, r)
	if !ok {
		return
	}
	tagID, memberID, err := req.Parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	tag, err := h.service.BindTag(ctx, tagID, memberID, req.AuthSecret)
	if err != nil {
		h.logger.ErrorContext(ctx, "bind tag failed",
			"request_id", requestcontext.RequestID(ctx),
			"actor", requestcontext.Actor(ctx),
			"tag_id", tagID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromTag(tag))
}

// HandleRevokeTag handles DELETE /admin/tags/{tagID}.
func (h *Handler) HandleRevokeTag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tagID, err := id.ParseTagID(chi.URLParam(r, "tagID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.RevokeTag(ctx, tagID); err != nil {
		h.logger.ErrorContext(ctx, "revoke tag failed",
			"request_id", requestcontext.RequestID(ctx),
			"actor", requestcontext.Actor(ctx),
			"tag_id", tagID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetMember handles GET /admin/members/{memberID}.
func (h *Handler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	member, err := h.service.LookupMember(ctx, memberID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMember(member))
}

// HandleUpsertMember handles PUT /admin/members/{memberID}.
func (h *Handler) HandleUpsertMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[UpsertMemberRequest](w, r)
	if !ok {
		return
	}
	params, err := req.Parse(memberID, requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	member, err := h.service.UpsertMember(ctx, params)
	if err != nil {
		h.logger.ErrorContext(ctx, "upsert member failed",
			"request_id", requestcontext.RequestID(ctx),
			"actor", requestcontext.Actor(ctx),
			"member_id", memberID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMember(member))
}

// HandleListTags handles GET /admin/members/{memberID}/tags.
func (h *Handler) HandleListTags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	tags, err := h.service.ListActiveTags(ctx, memberID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := TagListResponse{Tags: make([]TagResponse, 0, len(tags))}
	for _, tag := range tags {
		resp.Tags = append(resp.Tags, FromTag(tag))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleBanMember handles POST /admin/members/{memberID}/ban.
func (h *Handler) HandleBanMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[BanMemberRequest](w, r)
	if !ok {
		return
	}
	until, err := req.Parse(requestcontext.Now(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	member, err := h.service.BanMember(ctx, memberID, until)
	if err != nil {
		h.logger.ErrorContext(ctx, "ban member failed",
			"request_id", requestcontext.RequestID(ctx),
			"actor", requestcontext.Actor(ctx),
			"member_id", memberID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromMember(member))
}

// HandleRecordExit handles POST /admin/members/{memberID}/exit.
func (h *Handler) HandleRecordExit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	memberID, err := id.ParseMemberID(chi.URLParam(r, "memberID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.RecordExit(ctx, memberID, requestcontext.Now(ctx)); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
