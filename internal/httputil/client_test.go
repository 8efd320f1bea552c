package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoJSON_RoundTrip(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `{"name":"Standing Model"}`)

	var out struct {
		Name string `json:"name"`
	}
	err := DoJSON(context.Background(), mock, http.MethodPost, "http://engine/api/runs", map[string]string{"name": "r1"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "Standing Model", out.Name)
	require.Equal(t, 1, mock.RequestCount())
	req := mock.GetRequest(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"name":"r1"}`, mock.GetBody(0))
}

func TestDoJSON_StatusError(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusNotFound, `{"error":"no such run"}`)

	err := DoJSON(context.Background(), mock, http.MethodGet, "http://engine/api/runs/x", nil, nil)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "no such run")
}

func TestDoJSON_TransportError(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddErrorResponse(errors.New("connection refused"))

	err := DoJSON(context.Background(), mock, http.MethodGet, "http://engine/api/model", nil, nil)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDoJSON_DecodeError(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.AddResponse(http.StatusOK, `not json`)

	var out map[string]any
	err := DoJSON(context.Background(), mock, http.MethodGet, "http://engine/api/model", nil, &out)
	assert.Error(t, err)
}

func TestMockHTTPClient_DefaultResponse(t *testing.T) {
	mock := NewMockHTTPClient()
	var out map[string]any
	require.NoError(t, DoJSON(context.Background(), mock, http.MethodGet, "http://x/", nil, &out))
	assert.Empty(t, out)
	assert.Nil(t, mock.GetRequest(5))
	assert.Equal(t, "", mock.GetBody(5))
}

func TestMockHTTPClient_DoFunc(t *testing.T) {
	mock := NewMockHTTPClient()
	mock.DoFunc = func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("custom")
	}
	err := DoJSON(context.Background(), mock, http.MethodGet, "http://x/", nil, nil)
	assert.ErrorContains(t, err, "custom")
}

func TestStandardClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSONOK(w, map[string]string{"path": r.URL.Path})
	}))
	defer srv.Close()

	c := NewStandardClient(nil)
	assert.Equal(t, http.DefaultClient, c.Client)

	var out map[string]string
	require.NoError(t, DoJSON(context.Background(), NewStandardClient(srv.Client()), http.MethodGet, srv.URL+"/api/model", nil, &out))
	assert.Equal(t, "/api/model", out["path"])
}
