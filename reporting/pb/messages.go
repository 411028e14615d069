// Package pb hand-encodes the reporting pipeline's wire messages with
// protobuf's low-level wire primitives, matching the field-number table
// in spec.md §4.6/§6 bit-for-bit with the upstream aggregator service
// this core ships to. There is no protoc step in this build; the field
// numbers below are the contract, not the struct layout.
package pb

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// IndexerQueryProtobuf is one indexer leg of a client query, reported
// to the "queries" topic as part of a ClientQueryProtobuf.
type IndexerQueryProtobuf struct {
	Indexer        []byte // 20B, field 1
	Deployment     []byte // 32B, field 2
	Allocation     []byte // 20B, field 3 — present only when the receipt is v1
	IndexedChain   string // field 4
	URL            string // field 5
	FeeGRT         float64
	ResponseTimeMs uint32
	SecondsBehind  uint32
	Result         string
	IndexerErrors  string // field 10, "; "-joined
	BlocksBehind   uint64
	Collection     []byte // 32B, field 12 — present only when the receipt is v2
}

func (m *IndexerQueryProtobuf) Marshal() []byte {
	var b []byte
	if len(m.Indexer) > 0 {
		b = appendBytesField(b, 1, m.Indexer)
	}
	if len(m.Deployment) > 0 {
		b = appendBytesField(b, 2, m.Deployment)
	}
	if len(m.Allocation) > 0 {
		b = appendBytesField(b, 3, m.Allocation)
	}
	b = appendStringField(b, 4, m.IndexedChain)
	b = appendStringField(b, 5, m.URL)
	b = appendFixed64Field(b, 6, math.Float64bits(m.FeeGRT))
	b = appendVarintField(b, 7, uint64(m.ResponseTimeMs))
	b = appendVarintField(b, 8, uint64(m.SecondsBehind))
	b = appendStringField(b, 9, m.Result)
	b = appendStringField(b, 10, m.IndexerErrors)
	b = appendVarintField(b, 11, m.BlocksBehind)
	if len(m.Collection) > 0 {
		b = appendBytesField(b, 12, m.Collection)
	}
	return b
}

func UnmarshalIndexerQuery(data []byte) (*IndexerQueryProtobuf, error) {
	m := &IndexerQueryProtobuf{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("pb: consuming indexer query tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case 1:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.Indexer = v
			data = data[n:]
		case 2:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.Deployment = v
			data = data[n:]
		case 3:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.Allocation = v
			data = data[n:]
		case 4:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.IndexedChain = v
			data = data[n:]
		case 5:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.URL = v
			data = data[n:]
		case 6:
			v, n, err := consumeFixed64(data, typ)
			if err != nil {
				return nil, err
			}
			m.FeeGRT = math.Float64frombits(v)
			data = data[n:]
		case 7:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			m.ResponseTimeMs = uint32(v)
			data = data[n:]
		case 8:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			m.SecondsBehind = uint32(v)
			data = data[n:]
		case 9:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.Result = v
			data = data[n:]
		case 10:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.IndexerErrors = v
			data = data[n:]
		case 11:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			m.BlocksBehind = v
			data = data[n:]
		case 12:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.Collection = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("pb: skipping unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}

// ClientQueryProtobuf is the record shipped to the "queries" topic for
// every completed client request, one per request regardless of how
// many indexers it fanned out to.
type ClientQueryProtobuf struct {
	GatewayID      string // field 1
	ReceiptSigner  []byte // 20B, field 2
	QueryID        string // field 3
	APIKey         string // field 4
	Result         string // field 5
	ResponseTimeMs uint32 // field 6
	RequestBytes   uint32 // field 7
	ResponseBytes  *uint32 // field 8
	TotalFeesUSD   float64 // field 9
	IndexerQueries []*IndexerQueryProtobuf // field 10
	UserID         string // field 11
	Subgraph       *string // field 12
}

func (m *ClientQueryProtobuf) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.GatewayID)
	if len(m.ReceiptSigner) > 0 {
		b = appendBytesField(b, 2, m.ReceiptSigner)
	}
	b = appendStringField(b, 3, m.QueryID)
	b = appendStringField(b, 4, m.APIKey)
	b = appendStringField(b, 5, m.Result)
	b = appendVarintField(b, 6, uint64(m.ResponseTimeMs))
	b = appendVarintField(b, 7, uint64(m.RequestBytes))
	if m.ResponseBytes != nil {
		b = appendVarintField(b, 8, uint64(*m.ResponseBytes))
	}
	b = appendFixed64Field(b, 9, math.Float64bits(m.TotalFeesUSD))
	for _, q := range m.IndexerQueries {
		b = appendBytesField(b, 10, q.Marshal())
	}
	b = appendStringField(b, 11, m.UserID)
	if m.Subgraph != nil {
		b = appendStringField(b, 12, *m.Subgraph)
	}
	return b
}

func UnmarshalClientQuery(data []byte) (*ClientQueryProtobuf, error) {
	m := &ClientQueryProtobuf{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("pb: consuming client query tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case 1:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.GatewayID = v
			data = data[n:]
		case 2:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.ReceiptSigner = v
			data = data[n:]
		case 3:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.QueryID = v
			data = data[n:]
		case 4:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.APIKey = v
			data = data[n:]
		case 5:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.Result = v
			data = data[n:]
		case 6:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			m.ResponseTimeMs = uint32(v)
			data = data[n:]
		case 7:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			m.RequestBytes = uint32(v)
			data = data[n:]
		case 8:
			v, n, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			rb := uint32(v)
			m.ResponseBytes = &rb
			data = data[n:]
		case 9:
			v, n, err := consumeFixed64(data, typ)
			if err != nil {
				return nil, err
			}
			m.TotalFeesUSD = math.Float64frombits(v)
			data = data[n:]
		case 10:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			iq, err := UnmarshalIndexerQuery(v)
			if err != nil {
				return nil, err
			}
			m.IndexerQueries = append(m.IndexerQueries, iq)
			data = data[n:]
		case 11:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.UserID = v
			data = data[n:]
		case 12:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			sg := v
			m.Subgraph = &sg
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("pb: skipping unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}

// AttestationProtobuf is the record shipped to the "attestations" topic
// for a sampled subset of successful, attested indexer responses.
type AttestationProtobuf struct {
	Request            *string // field 1, omitted when nil
	Response           *string // field 2, omitted when nil
	Allocation         []byte  // 20B, field 3 — leading 20B of collection/allocation
	SubgraphDeployment []byte  // 32B, field 4
	RequestCID         []byte  // 32B, field 5
	ResponseCID        []byte  // 32B, field 6
	Signature          []byte  // 65B, field 7 — v || r || s
}

func (m *AttestationProtobuf) Marshal() []byte {
	var b []byte
	if m.Request != nil {
		b = appendStringField(b, 1, *m.Request)
	}
	if m.Response != nil {
		b = appendStringField(b, 2, *m.Response)
	}
	b = appendBytesField(b, 3, m.Allocation)
	b = appendBytesField(b, 4, m.SubgraphDeployment)
	b = appendBytesField(b, 5, m.RequestCID)
	b = appendBytesField(b, 6, m.ResponseCID)
	b = appendBytesField(b, 7, m.Signature)
	return b
}

func UnmarshalAttestation(data []byte) (*AttestationProtobuf, error) {
	m := &AttestationProtobuf{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("pb: consuming attestation tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case 1:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.Request = &v
			data = data[n:]
		case 2:
			v, n, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			m.Response = &v
			data = data[n:]
		case 3:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.Allocation = v
			data = data[n:]
		case 4:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.SubgraphDeployment = v
			data = data[n:]
		case 5:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.RequestCID = v
			data = data[n:]
		case 6:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.ResponseCID = v
			data = data[n:]
		case 7:
			v, n, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			m.Signature = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("pb: skipping unknown field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return m, nil
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed64Field(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func consumeBytes(data []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("pb: expected bytes wire type, got %d", typ)
	}
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, fmt.Errorf("pb: consuming bytes: %w", protowire.ParseError(n))
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, n, nil
}

func consumeString(data []byte, typ protowire.Type) (string, int, error) {
	v, n, err := consumeBytes(data, typ)
	if err != nil {
		return "", 0, err
	}
	return string(v), n, nil
}

func consumeVarint(data []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("pb: expected varint wire type, got %d", typ)
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("pb: consuming varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func consumeFixed64(data []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.Fixed64Type {
		return 0, 0, fmt.Errorf("pb: expected fixed64 wire type, got %d", typ)
	}
	v, n := protowire.ConsumeFixed64(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("pb: consuming fixed64: %w", protowire.ParseError(n))
	}
	return v, n, nil
}
