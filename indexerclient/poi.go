package indexerclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/graphprotocol/gateway-core/types"
)

const (
	defaultPoiCacheTTL     = 20 * time.Minute
	defaultPoiFetchTimeout = 5 * time.Second
	poisQueryBatchSize     = 10
)

// ErrResolutionTimeout is returned by Resolve when the bounded fetch
// deadline elapses before every batch answers. It is the sole distinct
// error PoiResolver surfaces, matching
// indexer_indexing_poi_resolver.rs's ResolutionError::Timeout; callers
// penalize it distinctly from the selection layer's other error kinds
// (spec §4.3, §7).
var ErrResolutionTimeout = errors.New("indexerclient: poi resolution timed out")

// ProofOfIndexing is the 32-byte hash an indexer commits to for a
// deployment at a specific block.
type ProofOfIndexing [32]byte

type poiKey struct {
	Deployment types.DeploymentId
	Block      types.BlockNumber
}

// PoiResolver fetches and TTL-caches proofs of indexing from indexer
// status endpoints, batching requests to avoid oversized queries
// (spec §4.3).
type PoiResolver struct {
	httpClient *http.Client
	cache      *types.TtlMap[string, map[poiKey]ProofOfIndexing]
	timeout    time.Duration
}

// NewPoiResolver builds a PoiResolver with the default 20-minute cache
// TTL and 5-second fetch timeout.
func NewPoiResolver(httpClient *http.Client) *PoiResolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PoiResolver{
		httpClient: httpClient,
		cache:      types.WithTtl[string, map[poiKey]ProofOfIndexing](defaultPoiCacheTTL),
		timeout:    defaultPoiFetchTimeout,
	}
}

// WithTimeout overrides the per-fetch timeout.
func (r *PoiResolver) WithTimeout(timeout time.Duration) *PoiResolver {
	r.timeout = timeout
	return r
}

// Resolve returns the proof of indexing for every requested
// (deployment, block) pair against a single indexer, fetching only the
// entries missing from cache. A fetch failure returns an error for the
// whole call without poisoning the cache; entries already cached are
// never lost by a failed fetch of the remainder. The bounded timeout
// elapsing surfaces as ErrResolutionTimeout, distinct from any other
// fetch failure.
func (r *PoiResolver) Resolve(ctx context.Context, indexerURL string, want []poiKey) (map[poiKey]ProofOfIndexing, error) {
	cached, _ := r.cache.Get(indexerURL)
	if cached == nil {
		cached = make(map[poiKey]ProofOfIndexing)
	}

	var missing []poiKey
	for _, k := range want {
		if _, ok := cached[k]; !ok {
			missing = append(missing, k)
		}
	}

	if len(missing) > 0 {
		fetched, err := r.fetchWithTimeout(ctx, indexerURL, missing)
		if err != nil {
			return nil, err
		}

		// Concurrent resolves for the same indexer may race here; the
		// later Insert wins, and since fetched values for a given key
		// are deterministic, duplicate fetches are harmless.
		merged := make(map[poiKey]ProofOfIndexing, len(cached)+len(fetched))
		for k, v := range cached {
			merged[k] = v
		}
		for k, v := range fetched {
			merged[k] = v
		}
		r.cache.Insert(indexerURL, merged)
		cached = merged
	}

	result := make(map[poiKey]ProofOfIndexing, len(want))
	for _, k := range want {
		if v, ok := cached[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

func (r *PoiResolver) fetchWithTimeout(ctx context.Context, indexerURL string, keys []poiKey) (map[poiKey]ProofOfIndexing, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type batchResult struct {
		pois map[poiKey]ProofOfIndexing
		err  error
	}

	batches := chunkKeys(keys, poisQueryBatchSize)
	results := make([]batchResult, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(i int, batch []poiKey) {
			defer wg.Done()
			pois, err := r.fetchBatch(ctx, indexerURL, batch)
			results[i] = batchResult{pois: pois, err: err}
		}(i, batch)
	}
	wg.Wait()

	merged := make(map[poiKey]ProofOfIndexing, len(keys))
	for _, res := range results {
		if res.err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, ErrResolutionTimeout
			}
			return nil, res.err
		}
		for k, v := range res.pois {
			merged[k] = v
		}
	}
	return merged, nil
}

func chunkKeys(keys []poiKey, size int) [][]poiKey {
	var chunks [][]poiKey
	for i := 0; i < len(keys); i += size {
		end := i + size
		if end > len(keys) {
			end = len(keys)
		}
		chunks = append(chunks, keys[i:end])
	}
	return chunks
}

type poiRequest struct {
	Deployment  string `json:"deployment"`
	BlockNumber uint64 `json:"blockNumber"`
}

type poiQueryBody struct {
	Query     string `json:"query"`
	Variables struct {
		Requests []poiRequest `json:"requests"`
	} `json:"variables"`
}

type poiQueryResponse struct {
	Data *struct {
		PublicProofsOfIndexing []struct {
			Deployment string `json:"deployment"`
			Block      struct {
				Number uint64 `json:"number"`
			} `json:"block"`
			ProofOfIndexing *string `json:"proofOfIndexing"`
		} `json:"publicProofsOfIndexing"`
	} `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

const publicPoisQuery = `query PublicPois($requests: [PublicProofOfIndexingRequest!]!) {
  publicProofsOfIndexing(requests: $requests) {
    deployment
    block { number }
    proofOfIndexing
  }
}`

func (r *PoiResolver) fetchBatch(ctx context.Context, indexerURL string, keys []poiKey) (map[poiKey]ProofOfIndexing, error) {
	body := poiQueryBody{Query: publicPoisQuery}
	for _, k := range keys {
		body.Variables.Requests = append(body.Variables.Requests, poiRequest{
			Deployment:  k.Deployment.Hex(),
			BlockNumber: k.Block,
		})
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("indexerclient: encoding poi request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, indexerURL+"/status", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("indexerclient: building poi request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("indexerclient: fetching pois: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("indexerclient: reading poi response: %w", err)
	}

	var parsed poiQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("indexerclient: decoding poi response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("indexerclient: poi query errors: %s", parsed.Errors[0])
	}
	if parsed.Data == nil {
		return nil, fmt.Errorf("indexerclient: poi response has no data")
	}

	result := make(map[poiKey]ProofOfIndexing, len(keys))
	for _, entry := range parsed.Data.PublicProofsOfIndexing {
		if entry.ProofOfIndexing == nil {
			continue
		}
		deploymentBytes, err := hex.DecodeString(strings.TrimPrefix(entry.Deployment, "0x"))
		if err != nil || len(deploymentBytes) != 32 {
			continue
		}
		var deployment types.DeploymentId
		copy(deployment[:], deploymentBytes)
		poiBytes, err := hex.DecodeString(strings.TrimPrefix(*entry.ProofOfIndexing, "0x"))
		if err != nil || len(poiBytes) != 32 {
			continue
		}
		var poi ProofOfIndexing
		copy(poi[:], poiBytes)
		result[poiKey{Deployment: deployment, Block: entry.Block.Number}] = poi
	}
	return result, nil
}
