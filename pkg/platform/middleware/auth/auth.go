// Package auth gates the admin API. Mutating identity data (binding tags,
// banning members) requires a bearer token whose subject is a manager.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "heimdall/pkg/domain"
	"heimdall/pkg/requestcontext"
)

// Claims carries what the admin API needs to know about the caller.
type Claims struct {
	MemberID id.MemberID
	Manager  bool
}

// Verifier validates bearer tokens. Tokens are HMAC-signed with a shared
// key; sub is the member ID and a boolean "manager" claim carries the
// manager flag.
type Verifier struct {
	key []byte
}

func NewVerifier(key []byte) *Verifier {
	return &Verifier{key: key}
}

// IssueToken mints a token for a member. Used by provisioning tooling and
// tests; the controller itself only verifies.
func (v *Verifier) IssueToken(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     claims.MemberID.String(),
		"manager": claims.Manager,
	})
	return token.SignedString(v.key)
}

// VerifyToken parses and validates a bearer token.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	sub, err := mapClaims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}
	memberID, err := id.ParseMemberID(sub)
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}

	manager, _ := mapClaims["manager"].(bool)
	return &Claims{MemberID: memberID, Manager: manager}, nil
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireManager rejects requests without a valid manager bearer token and
// records the authenticated subject in the request context.
func RequireManager(verifier *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.WarnContext(ctx, "admin auth failed",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}
			if !claims.Manager {
				logger.WarnContext(ctx, "admin access denied for non-manager",
					"request_id", requestcontext.RequestID(ctx),
					"member_id", claims.MemberID.String(),
				)
				writeJSONError(w, http.StatusForbidden, "forbidden", "manager role required")
				return
			}

			ctx = requestcontext.WithActor(ctx, claims.MemberID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
