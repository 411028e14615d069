package horizon

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/streamingfast/eth-go"

	"github.com/graphprotocol/gateway-core/types"
)

// receiptTypeHashV1 is the EIP-712 type hash for the pre-Horizon,
// allocation-addressed receipt. It mirrors the on-chain TAP escrow
// contract's Receipt struct.
var receiptTypeHashV1 = keccak256([]byte(
	"Receipt(address allocation_id,uint64 timestamp_ns,uint64 nonce,uint128 value)"))

// receiptTypeHashV2 is the EIP-712 type hash for the post-Horizon,
// collection-addressed receipt (GraphTallyCollector.Receipt).
var receiptTypeHashV2 = keccak256([]byte(
	"Receipt(bytes32 collection_id,address payer,address data_service,address service_provider,uint64 timestamp_ns,uint64 nonce,uint128 value)"))

// ReceiptV1 is the message body of a pre-Horizon, allocation-settled TAP
// receipt.
type ReceiptV1 struct {
	AllocationId types.AllocationId `json:"allocation_id"`
	TimestampNs  uint64             `json:"timestamp_ns"`
	Nonce        uint64             `json:"nonce"`
	Value        *big.Int           `json:"value"`
}

func (r *ReceiptV1) EIP712TypeHash() eth.Hash { return receiptTypeHashV1 }

func (r *ReceiptV1) EIP712EncodeData() []byte {
	data := make([]byte, 0, 32*4)
	data = append(data, padLeft(r.AllocationId[:], 32)...)
	data = append(data, encodeUint64(r.TimestampNs)...)
	data = append(data, encodeUint64(r.Nonce)...)
	data = append(data, encodeUint128(r.Value)...)
	return data
}

// ReceiptV2 is the message body of a post-Horizon, collection-settled TAP
// receipt (a GraphTallyCollector receipt).
type ReceiptV2 struct {
	CollectionId    types.CollectionId `json:"collection_id"`
	Payer           types.Address      `json:"payer"`
	DataService     types.Address      `json:"data_service"`
	ServiceProvider types.Address      `json:"service_provider"`
	TimestampNs     uint64             `json:"timestamp_ns"`
	Nonce           uint64             `json:"nonce"`
	Value           *big.Int           `json:"value"`
}

func (r *ReceiptV2) EIP712TypeHash() eth.Hash { return receiptTypeHashV2 }

func (r *ReceiptV2) EIP712EncodeData() []byte {
	data := make([]byte, 0, 32*7)
	data = append(data, padLeft(r.CollectionId[:], 32)...)
	data = append(data, padLeft(r.Payer[:], 32)...)
	data = append(data, padLeft(r.DataService[:], 32)...)
	data = append(data, padLeft(r.ServiceProvider[:], 32)...)
	data = append(data, encodeUint64(r.TimestampNs)...)
	data = append(data, encodeUint64(r.Nonce)...)
	data = append(data, encodeUint128(r.Value)...)
	return data
}

// Version identifies which TAP receipt schema a Receipt carries.
type Version int

const (
	V1 Version = iota
	V2
)

func (v Version) String() string {
	if v == V2 {
		return "v2"
	}
	return "v1"
}

// Receipt is a tagged union over the two TAP receipt generations: V1
// (pre-Horizon, allocation-addressed) and V2 (post-Horizon,
// collection-addressed). Exactly one of the two signed messages is set.
type Receipt struct {
	version Version
	v1      *SignedMessage[*ReceiptV1]
	v2      *SignedMessage[*ReceiptV2]
}

// NewReceiptV1 wraps a signed v1 message as a Receipt.
func NewReceiptV1(signed *SignedMessage[*ReceiptV1]) *Receipt {
	return &Receipt{version: V1, v1: signed}
}

// NewReceiptV2 wraps a signed v2 message as a Receipt.
func NewReceiptV2(signed *SignedMessage[*ReceiptV2]) *Receipt {
	return &Receipt{version: V2, v2: signed}
}

func (r *Receipt) IsV1() bool { return r.version == V1 }
func (r *Receipt) IsV2() bool { return r.version == V2 }

// Version reports which schema this receipt carries.
func (r *Receipt) Version() Version { return r.version }

// Value returns the receipt's fee amount, denominated in GRT wei.
func (r *Receipt) Value() *big.Int {
	if r.IsV1() {
		return r.v1.Message.Value
	}
	return r.v2.Message.Value
}

// Collection returns the receipt's collection id. For a v1 receipt this
// is the allocation id widened into collection form (spec §4.1).
func (r *Receipt) Collection() types.CollectionId {
	if r.IsV2() {
		return r.v2.Message.CollectionId
	}
	return types.CollectionFromAllocation(r.v1.Message.AllocationId)
}

// Allocation returns the receipt's allocation id. For a v2 receipt this
// truncates the collection id down to its leading 20 bytes.
func (r *Receipt) Allocation() types.AllocationId {
	if r.IsV1() {
		return r.v1.Message.AllocationId
	}
	return r.v2.Message.CollectionId.Allocation()
}

// Payer returns the receipt's payer address. It is only present on v2
// receipts.
func (r *Receipt) Payer() (types.Address, bool) {
	if r.IsV2() {
		return r.v2.Message.Payer, true
	}
	return types.Address{}, false
}

// DataService returns the receipt's data service address. It is only
// present on v2 receipts.
func (r *Receipt) DataService() (types.Address, bool) {
	if r.IsV2() {
		return r.v2.Message.DataService, true
	}
	return types.Address{}, false
}

// ServiceProvider returns the receipt's service provider address. It is
// only present on v2 receipts.
func (r *Receipt) ServiceProvider() (types.Address, bool) {
	if r.IsV2() {
		return r.v2.Message.ServiceProvider, true
	}
	return types.Address{}, false
}

// Normalize returns the receipt's collection id and value in a
// version-independent shape, for callers (the reporting pipeline,
// mainly) that don't care which TAP generation produced the receipt.
func (r *Receipt) Normalize() (types.CollectionId, *big.Int) {
	return r.Collection(), r.Value()
}

// Serialize renders the receipt as the JSON document sent to indexers
// (the hex encoding of which becomes the Scalar-Receipt header, minus
// its trailing signature bytes).
func (r *Receipt) Serialize() (string, error) {
	var (
		raw []byte
		err error
	)
	if r.IsV1() {
		raw, err = json.Marshal(r.v1)
	} else {
		raw, err = json.Marshal(r.v2)
	}
	if err != nil {
		return "", fmt.Errorf("horizon: serializing receipt: %w", err)
	}
	return string(raw), nil
}

type rawSignedMessage struct {
	Message   json.RawMessage `json:"message"`
	Signature eth.Signature `json:"signature"`
}

// FromJSON parses a receipt JSON document, first attempting the v2
// (collection-addressed) schema and falling back to v1
// (allocation-addressed) when the message lacks a collection_id field.
func FromJSON(data []byte) (*Receipt, error) {
	var raw rawSignedMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("horizon: parsing receipt envelope: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw.Message, &fields); err != nil {
		return nil, fmt.Errorf("horizon: parsing receipt message: %w", err)
	}

	if _, ok := fields["collection_id"]; ok {
		var msg ReceiptV2
		if err := json.Unmarshal(raw.Message, &msg); err != nil {
			return nil, fmt.Errorf("horizon: parsing v2 receipt: %w", err)
		}
		return NewReceiptV2(&SignedMessage[*ReceiptV2]{Message: &msg, Signature: raw.Signature}), nil
	}

	if _, ok := fields["allocation_id"]; ok {
		var msg ReceiptV1
		if err := json.Unmarshal(raw.Message, &msg); err != nil {
			return nil, fmt.Errorf("horizon: parsing v1 receipt: %w", err)
		}
		return NewReceiptV1(&SignedMessage[*ReceiptV1]{Message: &msg, Signature: raw.Signature}), nil
	}

	return nil, fmt.Errorf("horizon: receipt message matches neither the v1 nor the v2 schema")
}

// ScalarReceiptHeader renders the receipt as the hex-encoded payload
// sent in the indexer-facing Scalar-Receipt header: the JSON document's
// hex encoding with its trailing 64 hex characters (the last 32 bytes
// of the serialized document, which fall inside the signature) removed,
// per spec §4.4.
func (r *Receipt) ScalarReceiptHeader() (string, error) {
	serialized, err := r.Serialize()
	if err != nil {
		return "", err
	}
	hexEncoded := fmt.Sprintf("%x", []byte(serialized))
	if len(hexEncoded) < 64 {
		return "", fmt.Errorf("horizon: serialized receipt shorter than expected signature suffix")
	}
	return hexEncoded[:len(hexEncoded)-64], nil
}
