package escrow_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stratalabs/vestflow/internal/escrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeploy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/escrows", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 1_000_000.0, body["total_amount"])
		assert.Equal(t, "genesis", body["name"])

		fmt.Fprint(w, `{"escrow_id":"esc-123","tx_ref":"sig-abc"}`)
	}))
	defer srv.Close()

	c := escrow.New(srv.URL, "sekrit", 5*time.Second, nil)
	id, tx, err := c.Deploy(context.Background(), 1_000_000, time.Unix(1000, 0), time.Unix(2000, 0), "genesis")
	require.NoError(t, err)
	assert.Equal(t, "esc-123", id)
	assert.Equal(t, "sig-abc", tx)
}

func TestDeploy_EmptyEscrowID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := escrow.New(srv.URL, "", 5*time.Second, nil)
	_, _, err := c.Deploy(context.Background(), 100, time.Unix(1000, 0), time.Unix(2000, 0), "x")
	assert.Error(t, err)
}

func TestCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/escrows/esc-123", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := escrow.New(srv.URL, "", 5*time.Second, nil)
	assert.NoError(t, c.Cancel(context.Background(), "esc-123"))
}

func TestCancel_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "escrow already closed", http.StatusConflict)
	}))
	defer srv.Close()

	c := escrow.New(srv.URL, "", 5*time.Second, nil)
	err := c.Cancel(context.Background(), "esc-123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
}

func TestGetStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		fmt.Fprint(w, `{"deposited_amount":500000,"withdrawn_amount":125000}`)
	}))
	defer srv.Close()

	c := escrow.New(srv.URL, "", 5*time.Second, nil)
	status, err := c.GetStatus(context.Background(), "esc-123")
	require.NoError(t, err)
	assert.Equal(t, 500000.0, status.DepositedAmount)
	assert.Equal(t, 125000.0, status.WithdrawnAmount)
}
