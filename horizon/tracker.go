package horizon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const horizonStatusQuery = `{"query":"{ graphNetworks(first: 5) { id tapCollectionContracts(where: {active: true}) { id active createdAtBlock } tapAllocationContracts(where: {active: true}) { id active createdAtBlock } } }"}`

// TrustedIndexer is a gateway-operator-configured indexer endpoint used
// solely to observe network-wide Horizon activation state; it is not
// necessarily one the gateway routes end-user queries to.
type TrustedIndexer struct {
	URL string
}

// Tracker polls a fixed set of trusted indexers for the network
// subgraph's TAP contract registrations and derives whether Horizon
// (collection-based TAP) is active, per spec §4.2. State only ever
// flips from pre- to post-Horizon: once active, it is never reset, and
// a round where every trusted indexer fails to answer leaves the
// previous state untouched (soft failure).
type Tracker struct {
	logger          *zap.Logger
	httpClient      *http.Client
	trustedIndexers []TrustedIndexer
	checkInterval   time.Duration

	active atomic.Bool
}

// NewTracker builds a Tracker. httpClient may be nil, in which case
// http.DefaultClient is used.
func NewTracker(logger *zap.Logger, httpClient *http.Client, trustedIndexers []TrustedIndexer, checkInterval time.Duration) *Tracker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Tracker{
		logger:          logger,
		httpClient:      httpClient,
		trustedIndexers: trustedIndexers,
		checkInterval:   checkInterval,
	}
}

// IsHorizonActive reports the tracker's current, cached view of network
// Horizon activation.
func (t *Tracker) IsHorizonActive() bool {
	return t.active.Load()
}

// GetTapStrategy returns the receipt-generation strategy implied by the
// tracker's current state.
func (t *Tracker) GetTapStrategy() Strategy {
	if t.IsHorizonActive() {
		return PostHorizon
	}
	return PreHorizon
}

// Run checks Horizon status immediately, then again on every tick of
// checkInterval, until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	t.checkOnce(ctx)

	ticker := time.NewTicker(t.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkOnce(ctx)
		}
	}
}

// checkOnce queries the trusted indexers in configured order, stopping
// at the first that answers successfully. If all of them fail, the
// round is logged and the tracker's state is left unchanged.
func (t *Tracker) checkOnce(ctx context.Context) {
	for _, indexer := range t.trustedIndexers {
		active, err := t.queryHorizonActive(ctx, indexer)
		if err != nil {
			t.logger.Debug("trusted indexer horizon check failed, trying next",
				zap.String("indexer", indexer.URL), zap.Error(err))
			continue
		}

		// Horizon activation is a one-way network upgrade: once any
		// trusted indexer reports it active, the tracker never reverts
		// to pre-Horizon, so there is no deactivation edge to log.
		if active && !t.active.Swap(true) {
			t.logger.Info("horizon activated", zap.String("observed_via", indexer.URL))
		}
		return
	}

	t.logger.Warn("horizon status check failed against all trusted indexers",
		zap.Int("indexer_count", len(t.trustedIndexers)),
		zap.Bool("current_state", t.IsHorizonActive()))
}

type horizonStatusResponse struct {
	Data *struct {
		GraphNetworks []graphNetwork `json:"graphNetworks"`
	} `json:"data"`
	Errors []json.RawMessage `json:"errors"`
}

type graphNetwork struct {
	ID                     string        `json:"id"`
	TapCollectionContracts []tapContract `json:"tapCollectionContracts"`
	TapAllocationContracts []tapContract `json:"tapAllocationContracts"`
}

type tapContract struct {
	ID             string `json:"id"`
	Active         bool   `json:"active"`
	CreatedAtBlock string `json:"createdAtBlock"`
}

// queryHorizonActive issues the graphNetworks status query against a
// single trusted indexer and evaluates the activation predicate:
// Horizon is active once a network has at least one active collection
// contract, and either no allocation contracts remain active or
// active collection contracts are at least as many as them.
func (t *Tracker) queryHorizonActive(ctx context.Context, indexer TrustedIndexer) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, indexer.URL, bytes.NewReader([]byte(horizonStatusQuery)))
	if err != nil {
		return false, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("issuing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("reading body: %w", err)
	}

	var parsed horizonStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return false, fmt.Errorf("graphql errors: %s", parsed.Errors[0])
	}
	if parsed.Data == nil {
		return false, fmt.Errorf("response has no data")
	}

	for _, network := range parsed.Data.GraphNetworks {
		activeCollections := countActive(network.TapCollectionContracts)
		activeAllocations := countActive(network.TapAllocationContracts)

		if activeCollections > 0 && (activeAllocations == 0 || activeCollections >= activeAllocations) {
			return true, nil
		}
	}

	return false, nil
}

func countActive(contracts []tapContract) int {
	count := 0
	for _, c := range contracts {
		if c.Active {
			count++
		}
	}
	return count
}
