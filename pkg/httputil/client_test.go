package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/swingdag/pkg/logger"
)

func TestNew(t *testing.T) {
	c := New(logger.Nop(), 0)
	require.NotNil(t, c)
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
	assert.Equal(t, 3, c.retryConfig.MaxRetries)

	c = New(logger.Nop(), 5*time.Second).WithRetry(5, time.Second)
	assert.Equal(t, 5*time.Second, c.httpClient.Timeout)
	assert.Equal(t, 5, c.retryConfig.MaxRetries)
	assert.Equal(t, time.Second, c.retryConfig.InitialDelay)

	assert.False(t, c.DisableRetry().retryConfig.Enabled)
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","count":3}`))
	}))
	defer srv.Close()

	var got struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	require.NoError(t, New(logger.Nop(), time.Second).GetJSON(context.Background(), srv.URL, &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 3, got.Count)
}

func TestGetJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		w.Write([]byte(`{"error":"truncated"}`))
	}))
	defer srv.Close()

	err := New(logger.Nop(), time.Second).GetJSON(context.Background(), srv.URL, &struct{}{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusGone, se.StatusCode)
	assert.Contains(t, se.Body, "truncated")
}

func TestRetryOn5xxAnd429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	c := New(logger.Nop(), time.Second).WithRetry(3, time.Millisecond)
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &struct{}{}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDisableRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	resp, err := New(logger.Nop(), time.Second).DisableRetry().Get(context.Background(), srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{200, false},
		{404, false},
		{410, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.code), "status %d", tt.code)
	}
}
