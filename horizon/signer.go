package horizon

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"

	"github.com/streamingfast/eth-go"

	"github.com/graphprotocol/gateway-core/types"
)

// Signer mints and signs TAP receipts on behalf of the gateway's payer
// identity. It keeps one EIP-712 domain per receipt generation, both
// named "TAP" and differing only by version, per spec §4.1.
type Signer struct {
	key      *eth.PrivateKey
	payer    types.Address
	v1Domain *Domain
	v2Domain *Domain
}

// NewSigner builds a Signer from the gateway's receipt-signing private
// key, the chain id of the TAP contracts, and the on-chain verifying
// contract address (the GraphTallyCollector for v2, the TAP escrow for
// v1 share the same address in practice, but a single contract address
// is accepted here as the examples and devnets configure it).
func NewSigner(key *eth.PrivateKey, chainID uint64, verifyingContract types.Address) *Signer {
	return &Signer{
		key:      key,
		payer:    key.PublicKey().Address(),
		v1Domain: NewDomain("TAP", "1", chainID, verifyingContract),
		v2Domain: NewDomain("TAP", "2", chainID, verifyingContract),
	}
}

// PayerAddress returns the address receipts will be signed as.
func (s *Signer) PayerAddress() types.Address {
	return s.payer
}

// SignV1 mints and signs a pre-Horizon, allocation-addressed receipt.
func (s *Signer) SignV1(allocation types.AllocationId, value *big.Int) (*Receipt, error) {
	msg := &ReceiptV1{
		AllocationId: allocation,
		TimestampNs:  uint64(time.Now().UnixNano()),
		Nonce:        randomUint64(),
		Value:        new(big.Int).Set(value),
	}
	signed, err := Sign(s.v1Domain, msg, s.key)
	if err != nil {
		return nil, fmt.Errorf("horizon: signing v1 receipt: %w", err)
	}
	return NewReceiptV1(signed), nil
}

// SignV2 mints and signs a post-Horizon, collection-addressed receipt.
func (s *Signer) SignV2(collection types.CollectionId, value *big.Int, dataService, serviceProvider types.Address) (*Receipt, error) {
	msg := &ReceiptV2{
		CollectionId:    collection,
		Payer:           s.payer,
		DataService:     dataService,
		ServiceProvider: serviceProvider,
		TimestampNs:     uint64(time.Now().UnixNano()),
		Nonce:           randomUint64(),
		Value:           new(big.Int).Set(value),
	}
	signed, err := Sign(s.v2Domain, msg, s.key)
	if err != nil {
		return nil, fmt.Errorf("horizon: signing v2 receipt: %w", err)
	}
	return NewReceiptV2(signed), nil
}

// SignWithStrategy mints a receipt of the generation dictated by
// strategy, deriving the v1 allocation id from the collection id when
// strategy is PreHorizon.
func (s *Signer) SignWithStrategy(strategy Strategy, collection types.CollectionId, value *big.Int, dataService, serviceProvider types.Address) (*Receipt, error) {
	if strategy.ShouldGenerateV1() {
		return s.SignV1(collection.Allocation(), value)
	}
	return s.SignV2(collection, value, dataService, serviceProvider)
}

// SignForIndexer mints a receipt matching what a specific indexer
// supports, independent of the gateway's own Horizon tracker state: some
// indexers accept v2 receipts before the network-wide Horizon
// activation predicate flips, and the gateway accommodates them (mirrors
// the original gateway's per-indexer override, see original Rust
// reference `create_receipt_for_indexer`).
func (s *Signer) SignForIndexer(indexerSupportsV2 bool, collection types.CollectionId, value *big.Int, dataService, serviceProvider types.Address) (*Receipt, error) {
	if indexerSupportsV2 {
		return s.SignV2(collection, value, dataService, serviceProvider)
	}
	return s.SignV1(collection.Allocation(), value)
}

func randomUint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing means the platform entropy source is
		// broken; there is no safe recovery for a nonce generator.
		panic(fmt.Sprintf("horizon: reading random nonce: %v", err))
	}
	return binary.BigEndian.Uint64(buf[:])
}
