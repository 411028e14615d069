package types

import (
	"encoding/json"
	"fmt"

	"github.com/streamingfast/eth-go"
)

// DeploymentId is the 32-byte content hash (IPFS CID digest) of a
// subgraph manifest.
type DeploymentId [32]byte

func (d DeploymentId) String() string {
	return eth.Hash(d[:]).Pretty()
}

// Hex returns the deployment id as a bare (no "0x") lowercase hex string,
// the form used to build indexer query URLs (spec §4.4, §6).
func (d DeploymentId) Hex() string {
	return fmt.Sprintf("%x", d[:])
}

func (d DeploymentId) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DeploymentId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	h := eth.MustNewHash(s)
	copy(d[:], h)
	return nil
}

// SubgraphId is an opaque subgraph identifier (typically a base58-style
// content hash). It is treated as an opaque string throughout the core.
type SubgraphId string

// CollectionId is the 32-byte v2 (Horizon) collection identifier. Its
// leading 20 bytes are always interpretable as an AllocationId; the
// trailing 12 bytes are a collection counter that the gateway never
// inspects.
type CollectionId [32]byte

func (c CollectionId) String() string {
	return eth.Hash(c[:]).Pretty()
}

func (c CollectionId) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *CollectionId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	h := eth.MustNewHash(s)
	copy(c[:], h)
	return nil
}

// Allocation truncates the collection id down to its leading 20 bytes,
// recovering the v1 allocation address it was derived from.
func (c CollectionId) Allocation() AllocationId {
	var a AllocationId
	copy(a[:], c[:20])
	return a
}

// CollectionFromAllocation widens a v1 allocation address into its v2
// collection id form by zero-padding the trailing 12 bytes.
func CollectionFromAllocation(allocation AllocationId) CollectionId {
	var c CollectionId
	copy(c[:20], allocation[:])
	return c
}
