package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellflow/cellflow/internal/store"
	"github.com/cellflow/cellflow/internal/testutil"
	"github.com/cellflow/cellflow/internal/value"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	return testutil.OpenStore(t)
}

func TestResolveFetchesOnceAndSubscribes(t *testing.T) {
	var fetches atomic.Int64
	var subscribeBody atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/subscribe") {
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			subscribeBody.Store(payload["webhook_url"])
			w.WriteHeader(http.StatusOK)
			return
		}
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": "42"}`))
	}))
	defer server.Close()

	s := openTestStore(t)
	f := NewFetcher("https://cells.example.com")
	r := f.Resolver(s.Queries())
	ctx := context.Background()

	got, err := r.Resolve(ctx, server.URL)
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), got)
	assert.Equal(t, int64(1), fetches.Load())
	assert.Equal(t, "https://cells.example.com/webhook/subscriptions/1", subscribeBody.Load())

	ev, err := s.Queries().ExternalByURL(ctx, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "42", ev.Result)

	// Second reference is served from storage.
	got, err = r.Resolve(ctx, server.URL)
	require.NoError(t, err)
	assert.Equal(t, value.Number(42), got)
	assert.Equal(t, int64(1), fetches.Load())
}

func TestResolveSubscribeFailureTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"result": "ok"}`))
	}))
	defer server.Close()

	s := openTestStore(t)
	r := NewFetcher("https://cells.example.com").Resolver(s.Queries())

	got, err := r.Resolve(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, value.String("ok"), got)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    FetchErrorCode
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: ErrCodeFetchFailed,
		},
		{
			name: "body over limit",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"result": "` + strings.Repeat("x", DefaultMaxBody) + `"}`))
			},
			want: ErrCodeResponseTooLarge,
		},
		{
			name: "not JSON",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>nope</html>"))
			},
			want: ErrCodeInvalidResponse,
		},
		{
			name: "missing result field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"value": "42"}`))
			},
			want: ErrCodeInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			s := openTestStore(t)
			r := NewFetcher("https://cells.example.com").Resolver(s.Queries())

			_, err := r.Resolve(context.Background(), server.URL)
			require.Error(t, err)
			assert.Equal(t, tt.want, FetchCode(err))

			// Nothing is cached for a failed fetch.
			_, err = s.Queries().ExternalByURL(context.Background(), server.URL)
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}
