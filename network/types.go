// Package network builds and serves an immutable snapshot of the
// indexer/subgraph/deployment topology that the gateway routes queries
// against. The snapshot is rebuilt from scratch on every refresh cycle
// from raw records fetched out-of-band (network subgraph, indexer
// status endpoints); this package only holds the pure transform from
// those raw records to the validated, query-ready shape.
package network

import (
	"math/big"

	"github.com/graphprotocol/gateway-core/types"
)

// minScalarTapSupportVersion is the lowest indexer-agent version that is
// considered capable of handling Scalar TAP receipts at all (v1 or v2).
const minScalarTapSupportVersion = "1.0.0-alpha"

// IndexingProgress is how far an indexer has synced a specific
// deployment, as reported by its status endpoint.
type IndexingProgress struct {
	LatestBlock types.BlockNumber
	MinBlock    *types.BlockNumber
}

// CostModel is an indexer-supplied pricing script for a deployment,
// carried opaquely by the topology snapshot (the gateway core does not
// evaluate it; query-cost estimation is out of scope, spec Non-goals).
type CostModel struct {
	Source string
}

// Allocation is a single on-chain (or Horizon collection) allocation an
// indexer has open against a deployment.
type Allocation struct {
	Indexer         types.Address
	ID              types.AllocationId
	AllocatedTokens *big.Int
}

// IndexerInfo is the raw, as-fetched view of a single indexer prior to
// snapshot construction.
type IndexerInfo struct {
	ID                 types.Address
	URL                string
	IndexerAgentVersion string
	GraphNodeVersion    string
	StakedTokens        *big.Int

	// Deployments is the set of deployments the indexer is healthily
	// indexing (already filtered for POI blocklists, etc., upstream).
	Deployments map[types.DeploymentId]struct{}

	// LargestAllocation and TotalAllocatedTokens are keyed by
	// deployment: the largest single allocation address, and the sum of
	// all allocated tokens, the indexer has open against that
	// deployment.
	LargestAllocation    map[types.DeploymentId]types.AllocationId
	TotalAllocatedTokens map[types.DeploymentId]*big.Int

	IndexingsProgress  map[types.DeploymentId]IndexingProgress
	IndexingsCostModel map[types.DeploymentId]CostModel
}

// DeploymentInfo is the raw, as-fetched view of a subgraph deployment.
type DeploymentInfo struct {
	ID types.DeploymentId

	// ManifestNetwork and ManifestStartBlock come from the deployment's
	// subgraph manifest; nil/unset means the manifest hasn't resolved
	// yet (or is unavailable). A nil ManifestNetwork excludes the
	// deployment everywhere; a nil ManifestStartBlock excludes it from
	// the deployments table, while a subgraph whose highest valid
	// version lacks one gets start block 0.
	ManifestNetwork    *string
	ManifestStartBlock *types.BlockNumber

	TransferredToL2 bool
	Allocations     []Allocation
}

// SubgraphVersion pairs a subgraph version number with the deployment it
// points to. Versions for a given subgraph are provided in descending
// order (highest version first).
type SubgraphVersion struct {
	Version    uint32
	Deployment DeploymentInfo
}

// SubgraphInfo is the raw, as-fetched view of a subgraph, with its
// versions ordered from highest to lowest.
type SubgraphInfo struct {
	ID       types.SubgraphId
	IDOnL2   *types.SubgraphId
	Versions []SubgraphVersion
}
