package holders_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stratalabs/vestflow/internal/holders"
	"github.com/stratalabs/vestflow/internal/vesting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHolders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/degen-apes/holders", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"holders":[{"wallet":"walletA","held_count":3},{"wallet":"walletB","held_count":1}]}`)
	}))
	defer srv.Close()

	c := holders.New(srv.URL, 5*time.Second, nil)
	got, err := c.GetHolders(context.Background(), "degen-apes")
	require.NoError(t, err)
	assert.Equal(t, []vesting.Holder{
		{Wallet: "walletA", HeldCount: 3},
		{Wallet: "walletB", HeldCount: 1},
	}, got)
}

func TestGetHolders_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := holders.New(srv.URL, 5*time.Second, nil)
	_, err := c.GetHolders(context.Background(), "missing")
	assert.ErrorIs(t, err, vesting.ErrNotFound)
}

func TestGetHolders_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"holders":[]}`)
	}))
	defer srv.Close()

	c := holders.New(srv.URL, 5*time.Second, nil)
	got, err := c.GetHolders(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetCollectionStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/degen-apes/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"total_supply":10000,"unique_holders":3121}`)
	}))
	defer srv.Close()

	c := holders.New(srv.URL, 5*time.Second, nil)
	stats, err := c.GetCollectionStats(context.Background(), "degen-apes")
	require.NoError(t, err)
	assert.Equal(t, 10000, stats.TotalSupply)
	assert.Equal(t, 3121, stats.UniqueHolders)
}
