package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/reconcile/pkg/core"
)

func noopLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func TestClient_GetDataSourceDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data-sources/ds1", r.URL.Path)
		json.NewEncoder(w).Encode(dataSourceEnvelope{ID: "ds1", Name: "partner source"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, noopLogger())
	ds, err := c.GetDataSource(context.Background(), "ds1")
	require.NoError(t, err)
	assert.Equal(t, "ds1", ds.ID)
	assert.Equal(t, "partner source", ds.Name)
}

func TestClient_GetDataSourcePropagatesHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, noopLogger())
	_, err := c.GetDataSource(context.Background(), "ds1")
	require.Error(t, err)
}

func TestClient_StreamFollowsCursorUntilEmpty(t *testing.T) {
	pages := map[string]recordPage{
		"": {
			Records:    []recordEnvelope{{ID: "r1", Fields: map[string]core.FieldValue{"name": {Raw: "a"}}}},
			NextCursor: "page2",
		},
		"page2": {
			Records: []recordEnvelope{{ID: "r2", Fields: map[string]core.FieldValue{"name": {Raw: "b"}}}},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		json.NewEncoder(w).Encode(pages[cursor])
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, noopLogger())
	seq, err := c.Stream(context.Background(), "ds1")
	require.NoError(t, err)

	var ids []string
	for rec, err := range seq {
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"r1", "r2"}, ids)
}

func TestClient_StreamPropagatesPageFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, noopLogger())
	seq, err := c.Stream(context.Background(), "ds1")
	require.NoError(t, err)

	var gotErr error
	for _, err := range seq {
		if err != nil {
			gotErr = err
		}
	}
	assert.Error(t, gotErr)
}

func TestClient_GetJSONRejectsOversizedResponse(t *testing.T) {
	oversized := make([]byte, MaxResponseSize+10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(oversized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL}, noopLogger())
	var out map[string]any
	err := c.getJSON(context.Background(), "/anything", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}
