package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellflow/cellflow/internal/engine"
	"github.com/cellflow/cellflow/internal/formula"
	"github.com/cellflow/cellflow/internal/store"
	"github.com/cellflow/cellflow/internal/testutil"
	"github.com/cellflow/cellflow/internal/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	s := testutil.OpenStore(t)
	e := engine.New(s, noExternals{}, webhook.NewNotifier(s))
	return NewServer(e).Router()
}

// noExternals fails every external_ref; API tests exercise cell
// semantics, not external fetching.
type noExternals struct{}

func (noExternals) Resolver(q *store.Queries) formula.ExternalResolver { return nil }

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func setCell(t *testing.T, router *gin.Engine, sheet, cell, value string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, router, http.MethodPost, "/"+sheet+"/"+cell, gin.H{"value": value})
}

func TestWriteAndReadCells(t *testing.T) {
	router := newTestServer(t)

	rec := setCell(t, router, "s1", "a", "2")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = setCell(t, router, "s1", "b", "=a + 1")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = setCell(t, router, "s1", "c", "=b + 2")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodGet, "/s1/c", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cell map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cell))
	assert.Equal(t, "5", cell["result"])
	assert.Equal(t, "=b + 2", cell["value"])

	rec = do(t, router, http.MethodGet, "/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	g := goldie.New(t)
	g.Assert(t, "sheet_cells", rec.Body.Bytes())
}

func TestUpdateRipplesAndNotifies(t *testing.T) {
	router := newTestServer(t)

	var mu sync.Mutex
	deliveries := map[string]string{}
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		mu.Lock()
		deliveries[p["value"]] = p["result"]
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	require.Equal(t, http.StatusCreated, setCell(t, router, "s1", "a", "2").Code)
	require.Equal(t, http.StatusCreated, setCell(t, router, "s1", "b", "=a + 1").Code)
	require.Equal(t, http.StatusCreated, setCell(t, router, "s1", "c", "=b + 2").Code)

	for _, cell := range []string{"b", "c"} {
		rec := do(t, router, http.MethodPost, "/s1/"+cell+"/subscribe", gin.H{"webhook_url": receiver.URL})
		require.Equal(t, http.StatusCreated, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.NotEmpty(t, body["subscription_id"])
	}

	require.Equal(t, http.StatusCreated, setCell(t, router, "s1", "a", "3").Code)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]string{
		"=a + 1": "4",
		"=b + 2": "6",
	}, deliveries)
}

func TestErrorStatuses(t *testing.T) {
	router := newTestServer(t)
	require.Equal(t, http.StatusCreated, setCell(t, router, "s1", "a", "1").Code)
	require.Equal(t, http.StatusCreated, setCell(t, router, "s1", "b", "=a + 1").Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown sheet", http.MethodGet, "/nope", nil, http.StatusNotFound},
		{"unknown cell", http.MethodGet, "/s1/nope", nil, http.StatusNotFound},
		{"subscribe unknown cell", http.MethodPost, "/s1/nope/subscribe", gin.H{"webhook_url": "https://x.example.com"}, http.StatusNotFound},
		{"subscribe missing url", http.MethodPost, "/s1/a/subscribe", gin.H{}, http.StatusBadRequest},
		{"malformed formula", http.MethodPost, "/s1/c", gin.H{"value": "=1 +"}, http.StatusBadRequest},
		{"undefined variable", http.MethodPost, "/s1/c", gin.H{"value": "=ghost + 1"}, http.StatusBadRequest},
		{"unknown function", http.MethodPost, "/s1/c", gin.H{"value": "=NOPE(1)"}, http.StatusBadRequest},
		{"circular reference", http.MethodPost, "/s1/a", gin.H{"value": "=b + 1"}, http.StatusUnprocessableEntity},
		{"division by zero", http.MethodPost, "/s1/c", gin.H{"value": "=1 / 0"}, http.StatusUnprocessableEntity},
		{"push non-numeric id", http.MethodPost, "/webhook/subscriptions/abc", gin.H{"result": "1"}, http.StatusBadRequest},
		{"push unknown subscription", http.MethodPost, "/webhook/subscriptions/99", gin.H{"result": "1"}, http.StatusNotFound},
		{"push missing result", http.MethodPost, "/webhook/subscriptions/99", gin.H{}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
