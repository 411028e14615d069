package horizon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func graphNetworksHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func TestTracker_ActivatesOnCollectionMajority(t *testing.T) {
	server := httptest.NewServer(graphNetworksHandler(`{
		"data": {
			"graphNetworks": [{
				"id": "1",
				"tapCollectionContracts": [{"id": "a", "active": true, "createdAtBlock": "1"}],
				"tapAllocationContracts": []
			}]
		}
	}`))
	defer server.Close()

	tracker := NewTracker(zap.NewNop(), server.Client(), []TrustedIndexer{{URL: server.URL}}, time.Hour)

	require.False(t, tracker.IsHorizonActive())
	tracker.checkOnce(context.Background())
	require.True(t, tracker.IsHorizonActive())
	require.Equal(t, PostHorizon, tracker.GetTapStrategy())
}

func TestTracker_StaysInactiveWhenAllocationsDominate(t *testing.T) {
	server := httptest.NewServer(graphNetworksHandler(`{
		"data": {
			"graphNetworks": [{
				"id": "1",
				"tapCollectionContracts": [{"id": "a", "active": true, "createdAtBlock": "1"}],
				"tapAllocationContracts": [
					{"id": "b", "active": true, "createdAtBlock": "1"},
					{"id": "c", "active": true, "createdAtBlock": "1"}
				]
			}]
		}
	}`))
	defer server.Close()

	tracker := NewTracker(zap.NewNop(), server.Client(), []TrustedIndexer{{URL: server.URL}}, time.Hour)
	tracker.checkOnce(context.Background())

	require.False(t, tracker.IsHorizonActive())
	require.Equal(t, PreHorizon, tracker.GetTapStrategy())
}

func TestTracker_SoftFailureKeepsPreviousState(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	tracker := NewTracker(zap.NewNop(), failing.Client(), []TrustedIndexer{{URL: failing.URL}}, time.Hour)
	tracker.active.Store(true)

	tracker.checkOnce(context.Background())
	require.True(t, tracker.IsHorizonActive())
}

func TestTracker_FallsThroughToNextIndexer(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	healthy := httptest.NewServer(graphNetworksHandler(`{
		"data": {
			"graphNetworks": [{
				"id": "1",
				"tapCollectionContracts": [{"id": "a", "active": true, "createdAtBlock": "1"}],
				"tapAllocationContracts": []
			}]
		}
	}`))
	defer healthy.Close()

	tracker := NewTracker(zap.NewNop(), http.DefaultClient,
		[]TrustedIndexer{{URL: failing.URL}, {URL: healthy.URL}}, time.Hour)

	tracker.checkOnce(context.Background())
	require.True(t, tracker.IsHorizonActive())
}
