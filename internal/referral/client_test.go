package referral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ValidateCode(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/referrals/alice/validate", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		owner := "owner-1"
		_ = json.NewEncoder(w).Encode(Validation{IsValidFormat: true, IsRegistered: true, Owner: &owner})
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/", APIKey: "secret"})
	require.NoError(t, err)

	v, err := c.ValidateCode(context.Background(), "ALICE")
	require.NoError(t, err)
	assert.True(t, v.IsRegistered)
	require.NotNil(t, v.Owner)
	assert.Equal(t, "owner-1", *v.Owner)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_MalformedCodeSkipsNetwork(t *testing.T) {
	c, err := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	v, err := c.ValidateCode(context.Background(), "bad code")
	require.NoError(t, err)
	assert.False(t, v.IsValidFormat)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Validation{IsValidFormat: true})
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL, MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	v, err := c.ValidateCode(context.Background(), "bob")
	require.NoError(t, err)
	assert.True(t, v.IsValidFormat)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{BaseURL: srv.URL, MaxRetries: 3, RetryBackoff: time.Millisecond})
	require.NoError(t, err)

	_, err = c.ValidateCode(context.Background(), "bob")
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}
