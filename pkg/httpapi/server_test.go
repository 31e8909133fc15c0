package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SRI-CSL/prism-sub001/pkg/overlay"
	"github.com/SRI-CSL/prism-sub001/pkg/store"
)

func newTestHandler(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	st := store.New()
	ov := overlay.NewServer(overlay.Config{Host: "10.53.0.1", Port: 0xbeb0}, st, nil)
	return New(ov, st, nil, "test-version"), st
}

func TestHandleVersion(t *testing.T) {
	handler, _ := newTestHandler(t)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "test-version", body["version"])
}

func TestHandleUUIDMatchesStoreState(t *testing.T) {
	handler, st := newTestHandler(t)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/uuid", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, st.State().UUID, body["uuid"])
}

func TestHandleConnectedReportsZeroInitially(t *testing.T) {
	handler, _ := newTestHandler(t)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/connected", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0", rr.Body.String())
}

func TestHandleMessagePostThenGet(t *testing.T) {
	handler, _ := newTestHandler(t)

	postReq := httptest.NewRequest(http.MethodPost, "/message", strings.NewReader("hello"))
	postRR := httptest.NewRecorder()
	handler.ServeHTTP(postRR, postReq)
	require.Equal(t, http.StatusCreated, postRR.Code)

	var posted map[string]interface{}
	require.NoError(t, json.Unmarshal(postRR.Body.Bytes(), &posted))
	assert.NotEmpty(t, posted["uuid"])

	getRR := httptest.NewRecorder()
	handler.ServeHTTP(getRR, httptest.NewRequest(http.MethodGet, "/message?first=0&count=10", nil))
	require.Equal(t, http.StatusOK, getRR.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(getRR.Body.Bytes(), &got))
	messages, ok := got["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 1)
}

func TestHandleDeleteNeighborNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/neighbor/10.53.0.9", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleFlushResetsUUID(t *testing.T) {
	handler, st := newTestHandler(t)
	before := st.State().UUID

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/flush", nil))

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.NotEqual(t, before, st.State().UUID)
}
