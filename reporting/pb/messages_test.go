package pb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexerQueryProtobuf_RoundTrip(t *testing.T) {
	msg := &IndexerQueryProtobuf{
		Indexer:        make([]byte, 20),
		Deployment:     make([]byte, 32),
		Collection:     make([]byte, 32),
		IndexedChain:   "mainnet",
		URL:            "https://indexer.example.com",
		FeeGRT:         0.00042,
		ResponseTimeMs: 150,
		SecondsBehind:  3,
		Result:         "success",
		IndexerErrors:  "",
		BlocksBehind:   0,
	}
	msg.Indexer[0] = 0xaa
	msg.Deployment[0] = 0xbb
	msg.Collection[0] = 0xcc

	encoded := msg.Marshal()
	decoded, err := UnmarshalIndexerQuery(encoded)
	require.NoError(t, err)
	require.Equal(t, msg.Indexer, decoded.Indexer)
	require.Equal(t, msg.Deployment, decoded.Deployment)
	require.Nil(t, decoded.Allocation)
	require.Equal(t, msg.Collection, decoded.Collection)
	require.Equal(t, msg.IndexedChain, decoded.IndexedChain)
	require.Equal(t, msg.URL, decoded.URL)
	require.InDelta(t, msg.FeeGRT, decoded.FeeGRT, 1e-12)
	require.Equal(t, msg.ResponseTimeMs, decoded.ResponseTimeMs)
	require.Equal(t, msg.SecondsBehind, decoded.SecondsBehind)
	require.Equal(t, msg.Result, decoded.Result)
	require.Equal(t, msg.BlocksBehind, decoded.BlocksBehind)
}

func TestIndexerQueryProtobuf_AllocationFieldNumberIsThree(t *testing.T) {
	msg := &IndexerQueryProtobuf{Allocation: []byte{0x01, 0x02, 0x03}}
	encoded := msg.Marshal()

	// field 3, wire type 2 (bytes) -> tag byte (3<<3)|2 = 26
	require.Equal(t, byte(26), encoded[0])
}

func TestClientQueryProtobuf_RoundTrip(t *testing.T) {
	responseBytes := uint32(512)
	subgraph := "QmSubgraph"
	msg := &ClientQueryProtobuf{
		GatewayID:      "gateway-prod-1",
		ReceiptSigner:  make([]byte, 20),
		QueryID:        "query-1",
		APIKey:         "key-1",
		Result:         "success",
		ResponseTimeMs: 87,
		RequestBytes:   128,
		ResponseBytes:  &responseBytes,
		TotalFeesUSD:   1.23,
		UserID:         "user-1",
		Subgraph:       &subgraph,
		IndexerQueries: []*IndexerQueryProtobuf{
			{Indexer: make([]byte, 20), Deployment: make([]byte, 32), Result: "success"},
			{Indexer: make([]byte, 20), Deployment: make([]byte, 32), Result: "timeout"},
		},
	}

	encoded := msg.Marshal()
	decoded, err := UnmarshalClientQuery(encoded)
	require.NoError(t, err)
	require.Equal(t, msg.GatewayID, decoded.GatewayID)
	require.Equal(t, msg.ReceiptSigner, decoded.ReceiptSigner)
	require.Equal(t, msg.QueryID, decoded.QueryID)
	require.Equal(t, msg.APIKey, decoded.APIKey)
	require.Equal(t, msg.Result, decoded.Result)
	require.Equal(t, msg.ResponseTimeMs, decoded.ResponseTimeMs)
	require.Equal(t, msg.RequestBytes, decoded.RequestBytes)
	require.Equal(t, *msg.ResponseBytes, *decoded.ResponseBytes)
	require.InDelta(t, msg.TotalFeesUSD, decoded.TotalFeesUSD, 1e-12)
	require.Equal(t, msg.UserID, decoded.UserID)
	require.Equal(t, *msg.Subgraph, *decoded.Subgraph)
	require.Len(t, decoded.IndexerQueries, 2)
	require.Equal(t, "success", decoded.IndexerQueries[0].Result)
	require.Equal(t, "timeout", decoded.IndexerQueries[1].Result)
}

func TestClientQueryProtobuf_OptionalFieldsOmittedWhenNil(t *testing.T) {
	msg := &ClientQueryProtobuf{GatewayID: "g", QueryID: "q", Result: "success"}
	encoded := msg.Marshal()
	decoded, err := UnmarshalClientQuery(encoded)
	require.NoError(t, err)
	require.Nil(t, decoded.ResponseBytes)
	require.Nil(t, decoded.Subgraph)
}

func TestAttestationProtobuf_RoundTrip(t *testing.T) {
	req := `{"query":"{x}"}`
	resp := `{"data":{"x":1}}`
	msg := &AttestationProtobuf{
		Request:            &req,
		Response:            &resp,
		Allocation:          make([]byte, 20),
		SubgraphDeployment:  make([]byte, 32),
		RequestCID:          make([]byte, 32),
		ResponseCID:         make([]byte, 32),
		Signature:           make([]byte, 65),
	}
	msg.Signature[0] = 27

	encoded := msg.Marshal()
	decoded, err := UnmarshalAttestation(encoded)
	require.NoError(t, err)
	require.Equal(t, req, *decoded.Request)
	require.Equal(t, resp, *decoded.Response)
	require.Equal(t, msg.Allocation, decoded.Allocation)
	require.Equal(t, msg.SubgraphDeployment, decoded.SubgraphDeployment)
	require.Len(t, decoded.Signature, 65)
	require.Equal(t, byte(27), decoded.Signature[0])
}

func TestAttestationProtobuf_OptionalPayloadsOmittedWhenNil(t *testing.T) {
	msg := &AttestationProtobuf{
		Allocation:         make([]byte, 20),
		SubgraphDeployment: make([]byte, 32),
		RequestCID:         make([]byte, 32),
		ResponseCID:        make([]byte, 32),
		Signature:          make([]byte, 65),
	}
	encoded := msg.Marshal()
	decoded, err := UnmarshalAttestation(encoded)
	require.NoError(t, err)
	require.Nil(t, decoded.Request)
	require.Nil(t, decoded.Response)
}
