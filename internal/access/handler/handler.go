// Package handler exposes the resolution endpoint the door controller's
// reader bridge calls. The response always carries a verdict; transport
// errors at this layer are the only way a presentation goes unanswered.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"heimdall/internal/access"
	"heimdall/pkg/platform/httputil"
	"heimdall/pkg/platform/middleware/metadata"
)

// Resolver decides access for a raw reader-supplied identifier.
type Resolver interface {
	ResolveAccess(ctx context.Context, raw, secret string) access.Verdict
}

type Handler struct {
	resolver Resolver
	logger   *slog.Logger
}

func New(resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/resolve", h.HandleResolve)
}

// ResolveRequest is the body of POST /resolve.
type ResolveRequest struct {
	TagID string `json:"tag_id"`
	// Secret is the tag's secondary credential, when the reader collected one.
	Secret string `json:"secret,omitempty"`
}

// ResolveResponse is the verdict wire form.
type ResolveResponse struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
	Stale    bool   `json:"stale,omitempty"`
}

// HandleResolve handles POST /resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.Decode[ResolveRequest](w, r)
	if !ok {
		return
	}

	verdict := h.resolver.ResolveAccess(ctx, req.TagID, req.Secret)
	if !verdict.Granted() {
		h.logger.InfoContext(ctx, "presentation denied",
			"reason", verdict.Reason,
			"reader_ip", metadata.GetClientIP(ctx),
		)
	}

	httputil.WriteJSON(w, http.StatusOK, ResolveResponse{
		Decision: string(verdict.Decision),
		Reason:   string(verdict.Reason),
		Stale:    verdict.Stale,
	})
}
