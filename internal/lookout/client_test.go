package lookout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, expiresIn int, calls *int32) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer app-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-123",
			"expires_in":   expiresIn,
		})
	}))
}

func TestTokenMissingAppKey(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, 3600, &calls)
	defer srv.Close()

	client := New(Config{AppKey: "", TokenURL: srv.URL})

	_, err := client.Token(context.Background())
	require.ErrorIs(t, err, ErrMissingAppKey)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "no network call for a missing credential")
}

func TestTokenStripsWhitespaceFromAppKey(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, 3600, &calls)
	defer srv.Close()

	client := New(Config{AppKey: " app\n-key \t", TokenURL: srv.URL})

	token, err := client.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-123", token)
}

func TestTokenCachedUntilExpiry(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, 3600, &calls)
	defer srv.Close()

	client := New(Config{AppKey: "app-key", TokenURL: srv.URL})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		token, err := client.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "token-123", token)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "cached token should be reused")
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	// expires_in below the 60s safety margin makes the cached token
	// immediately stale.
	var calls int32
	srv := newTokenServer(t, 30, &calls)
	defer srv.Close()

	client := New(Config{AppKey: "app-key", TokenURL: srv.URL})
	ctx := context.Background()

	_, err := client.Token(ctx)
	require.NoError(t, err)
	_, err = client.Token(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "stale token should trigger a new exchange")
}

func TestTokenUpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(Config{AppKey: "app-key", TokenURL: srv.URL})

	_, err := client.Token(context.Background())
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Contains(t, authErr.Body, "invalid_client")
}

func TestListDevices(t *testing.T) {
	var tokenCalls int32
	tokenSrv := newTokenServer(t, 3600, &tokenCalls)
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mra/api/v2/devices", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "200", q.Get("limit"), "limit must exceed the API's default cap")
		assert.NotEmpty(t, q.Get("updated_since"))
		assert.Equal(t, "ent-1", q.Get("enterprise_guid"))

		_, err := time.Parse(time.RFC3339, q.Get("updated_since"))
		assert.NoError(t, err, "updated_since must be ISO-8601")

		json.NewEncoder(w).Encode(map[string]any{
			"devices": []map[string]any{
				{"guid": "g1", "email": "a@x.com", "security_status": "THREATS_HIGH"},
			},
			"count": 1,
		})
	}))
	defer apiSrv.Close()

	client := New(Config{
		AppKey:         "app-key",
		BaseURL:        apiSrv.URL,
		TokenURL:       tokenSrv.URL,
		EnterpriseGUID: "ent-1",
	})

	list, err := client.ListDevices(context.Background(), time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Devices, 1)
	assert.Equal(t, "a@x.com", list.Devices[0].Email)
	assert.Equal(t, "THREATS_HIGH", list.Devices[0].SecurityStatus)
}

func TestListDevicesAPIError(t *testing.T) {
	var tokenCalls int32
	tokenSrv := newTokenServer(t, 3600, &tokenCalls)
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer apiSrv.Close()

	client := New(Config{AppKey: "app-key", BaseURL: apiSrv.URL, TokenURL: tokenSrv.URL})

	_, err := client.ListDevices(context.Background(), time.Now())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Contains(t, apiErr.Body, "upstream exploded")
}

func TestListDevicesMissingAppKey(t *testing.T) {
	client := New(Config{AppKey: ""})

	_, err := client.ListDevices(context.Background(), time.Now())
	require.ErrorIs(t, err, ErrMissingAppKey)
}
