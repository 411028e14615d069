package reporting

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/streamingfast/eth-go"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/graphprotocol/gateway-core/horizon"
	"github.com/graphprotocol/gateway-core/reporting/pb"
	"github.com/graphprotocol/gateway-core/types"
)

var errReportTest = errors.New("simulated broker error")

type recordingProducer struct {
	records []*kgo.Record
}

func (p *recordingProducer) Produce(_ context.Context, record *kgo.Record, promise func(*kgo.Record, error)) {
	p.records = append(p.records, record)
	if promise != nil {
		promise(record, nil)
	}
}

func testAddress(b byte) types.Address {
	var a types.Address
	a[0] = b
	return a
}

func testDeployment(b byte) types.DeploymentId {
	var d types.DeploymentId
	d[0] = b
	return d
}

func signedV1Receipt(t *testing.T, allocation types.AllocationId, value int64) *horizon.Receipt {
	t.Helper()
	key, err := eth.NewRandomPrivateKey()
	require.NoError(t, err)
	signer := horizon.NewSigner(key, 1337, testAddress(0x99))
	receipt, err := signer.SignV1(allocation, big.NewInt(value))
	require.NoError(t, err)
	return receipt
}

func TestReporter_Report_ShipsOneQueryRecord(t *testing.T) {
	producer := &recordingProducer{}
	reporter := NewReporter(zap.NewNop(), testAddress(0x01), "test-env", Topics{Queries: "queries", Attestations: "attestations"}, producer, 0)

	receipt := signedV1Receipt(t, testAddress(0xaa), 1_000_000_000_000)
	cr := ClientRequest{
		ID:        "query-1",
		APIKey:    "key-1",
		UserID:    "user-1",
		GrtPerUSD: 0.1,
		IndexerRequests: []IndexerRequest{
			{
				Indexer:       testAddress(0x02),
				Deployment:    testDeployment(0x03),
				SubgraphChain: "mainnet",
				URL:           "https://indexer.example.com",
				Receipt:       receipt,
				Result:        IndexerResult{},
			},
		},
	}

	err := reporter.report(cr)
	require.NoError(t, err)
	require.Len(t, producer.records, 1)
	require.Equal(t, "queries", producer.records[0].Topic)

	decoded, err := pb.UnmarshalClientQuery(producer.records[0].Value)
	require.NoError(t, err)
	require.Equal(t, "query-1", decoded.QueryID)
	require.Equal(t, "success", decoded.Result)
	require.Len(t, decoded.IndexerQueries, 1)
	require.NotEmpty(t, decoded.IndexerQueries[0].Allocation)
	require.Empty(t, decoded.IndexerQueries[0].Collection)
}

func TestReporter_Report_SamplesAttestationAtMostOncePerWindow(t *testing.T) {
	producer := &recordingProducer{}
	reporter := NewReporter(zap.NewNop(), testAddress(0x01), "test-env", Topics{Queries: "queries", Attestations: "attestations"}, producer, 0)

	deployment := testDeployment(0x03)
	indexer := testAddress(0x02)
	receipt := signedV1Receipt(t, testAddress(0xaa), 1)

	makeRequest := func() ClientRequest {
		return ClientRequest{
			ID: "q",
			IndexerRequests: []IndexerRequest{
				{
					Indexer:    indexer,
					Deployment: deployment,
					Receipt:    receipt,
					Result: IndexerResult{
						RequestPayload:  "req",
						ResponsePayload: "resp",
						Attestation:     &Attestation{},
					},
				},
			},
		}
	}

	require.NoError(t, reporter.report(makeRequest()))
	attestationCount := func() int {
		n := 0
		for _, r := range producer.records {
			if r.Topic == "attestations" {
				n++
			}
		}
		return n
	}
	require.Equal(t, 1, attestationCount())

	require.NoError(t, reporter.report(makeRequest()))
	require.Equal(t, 1, attestationCount(), "second sample within the window should not re-attest")

	reporter.sampler.lastEviction = time.Now().Add(-11 * time.Second)
	require.NoError(t, reporter.report(makeRequest()))
	require.Equal(t, 2, attestationCount(), "sample after the window elapses should attest again")
}

func TestReporter_Report_SkipsAttestationOverPayloadCap(t *testing.T) {
	producer := &recordingProducer{}
	reporter := NewReporter(zap.NewNop(), testAddress(0x01), "test-env", Topics{Queries: "queries", Attestations: "attestations"}, producer, 0)

	oversized := make([]byte, maxAttestationPayloadBytes+1)
	receipt := signedV1Receipt(t, testAddress(0xaa), 1)
	cr := ClientRequest{
		ID: "q",
		IndexerRequests: []IndexerRequest{
			{
				Indexer:    testAddress(0x02),
				Deployment: testDeployment(0x03),
				Receipt:    receipt,
				Result: IndexerResult{
					RequestPayload:  string(oversized),
					ResponsePayload: "resp",
					Attestation:     &Attestation{},
				},
			},
		},
	}

	require.NoError(t, reporter.report(cr))
	for _, r := range producer.records {
		require.NotEqual(t, "attestations", r.Topic)
	}
}

type stallingProducer struct {
	errToLog error
	warned   chan struct{}
}

func (p *stallingProducer) Produce(_ context.Context, record *kgo.Record, promise func(*kgo.Record, error)) {
	// Deliberately never invoke promise synchronously, mimicking a slow
	// broker round-trip; report() must not block waiting for it.
	go func() {
		time.Sleep(10 * time.Millisecond)
		if promise != nil {
			promise(record, p.errToLog)
		}
		close(p.warned)
	}()
}

func TestReporter_Produce_DoesNotBlockOnBrokerRoundTrip(t *testing.T) {
	producer := &stallingProducer{errToLog: errReportTest, warned: make(chan struct{})}
	reporter := NewReporter(zap.NewNop(), testAddress(0x01), "test-env", Topics{Queries: "queries", Attestations: "attestations"}, producer, 0)

	receipt := signedV1Receipt(t, testAddress(0xaa), 1)
	cr := ClientRequest{
		ID: "q",
		IndexerRequests: []IndexerRequest{
			{Indexer: testAddress(0x02), Deployment: testDeployment(0x03), Receipt: receipt},
		},
	}

	started := time.Now()
	err := reporter.report(cr)
	require.NoError(t, err)
	require.Less(t, time.Since(started), 5*time.Millisecond, "report must return before the promise callback fires")

	select {
	case <-producer.warned:
	case <-time.After(time.Second):
		t.Fatal("promise callback never fired")
	}
}

func TestAttestationSampler_WindowBoundary(t *testing.T) {
	sampler := newAttestationSampler()
	deployment := testDeployment(0x01)
	indexer := testAddress(0x01)

	base := time.Now()
	require.True(t, sampler.shouldSample(base, deployment, indexer))
	require.False(t, sampler.shouldSample(base.Add(2*time.Second), deployment, indexer))
	require.True(t, sampler.shouldSample(base.Add(12*time.Second), deployment, indexer))
}
