package indexerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/graphprotocol/gateway-core/types"
)

func poiServer(t *testing.T, hitCount *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hitCount, 1)

		var body poiQueryBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		resp := poiQueryResponse{}
		resp.Data = &struct {
			PublicProofsOfIndexing []struct {
				Deployment string `json:"deployment"`
				Block      struct {
					Number uint64 `json:"number"`
				} `json:"block"`
				ProofOfIndexing *string `json:"proofOfIndexing"`
			} `json:"publicProofsOfIndexing"`
		}{}

		for _, req := range body.Variables.Requests {
			poi := "0x" + strings.Repeat("ab", 32)
			entry := struct {
				Deployment string `json:"deployment"`
				Block      struct {
					Number uint64 `json:"number"`
				} `json:"block"`
				ProofOfIndexing *string `json:"proofOfIndexing"`
			}{Deployment: req.Deployment, ProofOfIndexing: &poi}
			entry.Block.Number = req.BlockNumber
			resp.Data.PublicProofsOfIndexing = append(resp.Data.PublicProofsOfIndexing, entry)
		}

		encoded, err := json.Marshal(resp)
		require.NoError(t, err)
		w.Write(encoded)
	}))
}

func TestPoiResolver_ResolveAndCache(t *testing.T) {
	var hits int32
	srv := poiServer(t, &hits)
	defer srv.Close()

	resolver := NewPoiResolver(srv.Client())

	want := []poiKey{
		{Deployment: testDeployment(0x01), Block: 100},
		{Deployment: testDeployment(0x02), Block: 200},
	}

	result, err := resolver.Resolve(context.Background(), srv.URL, want)
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))

	// Second resolve for the same keys should be served entirely from
	// cache, issuing no further HTTP requests.
	result2, err := resolver.Resolve(context.Background(), srv.URL, want)
	require.NoError(t, err)
	require.Equal(t, result, result2)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestPoiResolver_BatchesLargeRequestsAcrossBatchSize(t *testing.T) {
	var hits int32
	srv := poiServer(t, &hits)
	defer srv.Close()

	resolver := NewPoiResolver(srv.Client())

	want := make([]poiKey, 0, 25)
	for i := 0; i < 25; i++ {
		want = append(want, poiKey{Deployment: testDeployment(byte(i)), Block: types.BlockNumber(i)})
	}

	result, err := resolver.Resolve(context.Background(), srv.URL, want)
	require.NoError(t, err)
	require.Len(t, result, 25)
	// 25 keys split into batches of 10 -> 3 concurrent upstream calls.
	require.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestPoiResolver_TimeoutSurfacesWithoutPoisoningCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"data":{"publicProofsOfIndexing":[]}}`))
	}))
	defer srv.Close()

	resolver := NewPoiResolver(srv.Client()).WithTimeout(5 * time.Millisecond)

	_, err := resolver.Resolve(context.Background(), srv.URL, []poiKey{{Deployment: testDeployment(0x01), Block: 1}})
	require.ErrorIs(t, err, ErrResolutionTimeout)

	_, cached := resolver.cache.Get(srv.URL)
	require.False(t, cached)
}
