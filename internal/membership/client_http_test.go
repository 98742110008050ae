package membership

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"heimdall/internal/identity/models"
	id "heimdall/pkg/domain"
	"heimdall/pkg/platform/sentinel"
)

func TestHTTPSource_FetchStatus(t *testing.T) {
	memberID := id.NewMemberID()
	asOf := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

	t.Run("parses a good response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/members/"+memberID.String()+"/status", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"active","as_of":"2026-03-14T08:00:00Z"}`))
		}))
		defer srv.Close()

		report, err := NewHTTPSource(srv.URL, time.Second).FetchStatus(context.Background(), memberID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusActive, report.Status)
		assert.Equal(t, asOf, report.AsOf)
	})

	t.Run("404 means unknown member, not an outage", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		report, err := NewHTTPSource(srv.URL, time.Second).FetchStatus(context.Background(), memberID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusUnknown, report.Status)
	})

	t.Run("5xx maps to ErrUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewHTTPSource(srv.URL, time.Second).FetchStatus(context.Background(), memberID)
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("unparseable status maps to ErrUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"vip"}`))
		}))
		defer srv.Close()

		_, err := NewHTTPSource(srv.URL, time.Second).FetchStatus(context.Background(), memberID)
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("connection refused maps to ErrUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(nil)
		srv.Close() // nothing listening anymore

		_, err := NewHTTPSource(srv.URL, time.Second).FetchStatus(context.Background(), memberID)
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("honors context deadline", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-release
		}))
		defer func() { close(release); srv.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := NewHTTPSource(srv.URL, time.Minute).FetchStatus(ctx, memberID)
		require.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.Less(t, time.Since(start), time.Second)
	})
}
