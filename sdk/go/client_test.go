package buglinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

func newTestClient(t *testing.T, status int, reply string) (*Client, *[]seenRequest) {
	t.Helper()
	var seen []seenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = append(seen, seenRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(b)})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL + "/api/"), &seen
}

func TestListBugs(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `[{"id":1,"description":"bug 1","userId":1,"resolved":false}]`)

	list, err := c.ListBugs(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bug 1", list[0].Description)
	require.NotNil(t, list[0].UserID)
	assert.Equal(t, int64(1), *list[0].UserID)
	assert.Equal(t, http.MethodGet, (*seen)[0].Method)
	assert.Equal(t, "/api/bugs", (*seen)[0].Path)
}

func TestUpdateBugSendsOnlySetFields(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `{"id":3,"description":"bug 3","resolved":true}`)
	resolved := true

	bug, err := c.UpdateBug(context.Background(), 3, BugUpdate{Resolved: &resolved})
	require.NoError(t, err)
	assert.True(t, bug.Resolved)
	assert.Equal(t, http.MethodPatch, (*seen)[0].Method)
	assert.Equal(t, "/api/bugs/3", (*seen)[0].Path)
	assert.JSONEq(t, `{"resolved":true}`, (*seen)[0].Body)
}

func TestCallReturnsRawBody(t *testing.T) {
	c, seen := newTestClient(t, http.StatusCreated, `{"id":5,"description":"new","resolved":false}`)

	raw, err := c.Call(context.Background(), http.MethodPost, "/bugs", map[string]any{"description": "new"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5,"description":"new","resolved":false}`, string(raw))
	assert.Equal(t, "/api/bugs", (*seen)[0].Path)
	assert.JSONEq(t, `{"description":"new"}`, (*seen)[0].Body)
}

func TestEventsQuery(t *testing.T) {
	c, seen := newTestClient(t, http.StatusOK, `{"items":[{"id":2,"type":"bug.updated","entity_kind":"bug","entity_id":"1","payload":{"resolved":true}}]}`)

	events, err := c.Events(context.Background(), 5, "bug.updated")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0].Payload["resolved"])
	assert.Equal(t, "limit=5&type=bug.updated", (*seen)[0].Query)
}

func TestAPIErrorCarriesStatusAndBody(t *testing.T) {
	body := `{"error":{"code":"not_found","message":"bug 999 not found"}}`
	c, _ := newTestClient(t, http.StatusNotFound, body)

	_, err := c.Call(context.Background(), http.MethodPatch, "bugs/999", map[string]any{"resolved": true})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus())
	assert.Equal(t, body, apiErr.ResponseBody())
	assert.Equal(t, "api error: status=404: bug 999 not found", err.Error())
}

func TestAPIErrorWithoutEnvelope(t *testing.T) {
	err := &APIError{StatusCode: http.StatusBadGateway, Body: "upstream down"}
	assert.Equal(t, "api error: status=502 body=upstream down", err.Error())

	var v any
	assert.Error(t, json.Unmarshal([]byte(err.Body), &v))
}
