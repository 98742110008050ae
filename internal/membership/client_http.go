package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"heimdall/internal/identity/models"
	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
)

// HTTPSource queries the membership system's status endpoint
// (GET {base}/members/{id}/status). It is a thin adapter: protocol details
// beyond this one endpoint are the membership system's business.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a source against the given base URL. timeout bounds
// each fetch independently of the caller's context.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type statusResponse struct {
	Status string    `json:"status"`
	AsOf   time.Time `json:"as_of"`
}

func (s *HTTPSource) FetchStatus(ctx context.Context, memberID id.MemberID) (StatusReport, error) {
	url := fmt.Sprintf("%s/members/%s/status", s.baseURL, memberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusReport{}, fmt.Errorf("build status request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return StatusReport{}, fmt.Errorf("%w: fetch status for %s: %v", sentinel.ErrUnavailable, memberID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		// The upstream does not know the member at all; that is a fact, not
		// an outage.
		return StatusReport{Status: models.StatusUnknown, AsOf: time.Now()}, nil
	default:
		return StatusReport{}, fmt.Errorf("%w: fetch status for %s: upstream returned %d", sentinel.ErrUnavailable, memberID, resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return StatusReport{}, fmt.Errorf("%w: fetch status for %s: %v", sentinel.ErrUnavailable, memberID, err)
	}

	status := models.MemberStatus(body.Status)
	if !status.Valid() {
		return StatusReport{}, fmt.Errorf("%w: fetch status for %s: unknown status %q", sentinel.ErrUnavailable, memberID, body.Status)
	}
	asOf := body.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	return StatusReport{Status: status, AsOf: asOf}, nil
}
