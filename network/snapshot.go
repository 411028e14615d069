package network

import (
	"math"
	"math/big"

	"github.com/graphprotocol/gateway-core/types"
)

// IndexingId uniquely identifies one indexer's indexing of one
// deployment.
type IndexingId struct {
	Indexer    types.Address
	Deployment types.DeploymentId
}

// Indexing is a single indexer's healthy indexing of a single
// deployment, with the allocation data and sync status needed to route
// and price queries against it.
type Indexing struct {
	ID IndexingId

	// VersionsBehind is how many subgraph versions behind the highest
	// known version this indexing's deployment is, saturating at
	// math.MaxUint8.
	VersionsBehind uint8

	LargestAllocation    types.AllocationId
	TotalAllocatedTokens *big.Int

	Indexer *Indexer

	Status    *IndexingProgress
	CostModel *CostModel
}

// Indexer is a network participant serving indexed data, materialized
// from its raw IndexerInfo plus the derived ScalarTapSupport flag.
type Indexer struct {
	ID                  types.Address
	URL                 string
	IndexerAgentVersion string
	GraphNodeVersion    string

	// ScalarTapSupport is true once IndexerAgentVersion is at or above
	// minScalarTapSupportVersion.
	ScalarTapSupport bool

	Indexings map[types.DeploymentId]struct{}

	StakedTokens *big.Int
}

// Subgraph is a queryable subgraph: its highest valid version's chain
// and start block, and every indexer healthily indexing any of its
// non-transferred deployment versions.
type Subgraph struct {
	ID types.SubgraphId

	Chain      string
	StartBlock types.BlockNumber

	Deployments map[types.DeploymentId]struct{}
	Indexings   map[IndexingId]*Indexing
}

// Deployment is a queryable subgraph deployment (a specific version of
// one or more subgraphs) and every indexer healthily indexing it.
type Deployment struct {
	ID types.DeploymentId

	Chain      string
	StartBlock types.BlockNumber

	Subgraphs map[types.SubgraphId]struct{}
	Indexings map[IndexingId]*Indexing
}

// NetworkTopologySnapshot is the immutable, validated view of the
// network the gateway routes queries against. It is rebuilt from
// scratch by NewSnapshot on every refresh cycle (spec §4.5) and never
// mutated in place.
type NetworkTopologySnapshot struct {
	transferredSubgraphs   map[types.SubgraphId]types.SubgraphId
	transferredDeployments map[types.DeploymentId]struct{}

	subgraphs   map[types.SubgraphId]*Subgraph
	deployments map[types.DeploymentId]*Deployment
}

// GetSubgraphByID returns the subgraph with the given id, or nil if it
// isn't known (never existed, or was filtered out during construction).
func (s *NetworkTopologySnapshot) GetSubgraphByID(id types.SubgraphId) *Subgraph {
	return s.subgraphs[id]
}

// GetDeploymentByID returns the deployment with the given id, or nil.
func (s *NetworkTopologySnapshot) GetDeploymentByID(id types.DeploymentId) *Deployment {
	return s.deployments[id]
}

// Subgraphs returns every subgraph in the snapshot. Callers must not
// mutate the returned map.
func (s *NetworkTopologySnapshot) Subgraphs() map[types.SubgraphId]*Subgraph {
	return s.subgraphs
}

// Deployments returns every deployment in the snapshot. Callers must
// not mutate the returned map.
func (s *NetworkTopologySnapshot) Deployments() map[types.DeploymentId]*Deployment {
	return s.deployments
}

// TransferredSubgraphs maps a subgraph id that has fully migrated to L2
// to its L2 subgraph id.
func (s *NetworkTopologySnapshot) TransferredSubgraphs() map[types.SubgraphId]types.SubgraphId {
	return s.transferredSubgraphs
}

// TransferredDeployments is the set of deployment ids that have fully
// migrated to L2.
func (s *NetworkTopologySnapshot) TransferredDeployments() map[types.DeploymentId]struct{} {
	return s.transferredDeployments
}

// NewSnapshot builds a NetworkTopologySnapshot from raw indexer and
// subgraph records. It is a pure function: no I/O, fully deterministic
// given its inputs.
func NewSnapshot(
	indexersInfo map[types.Address]IndexerInfo,
	subgraphsInfo map[types.SubgraphId]SubgraphInfo,
) *NetworkTopologySnapshot {
	deploymentsInfo := flattenDeployments(subgraphsInfo)

	indexers := make(map[types.Address]*Indexer, len(indexersInfo))
	for id, info := range indexersInfo {
		indexings := make(map[types.DeploymentId]struct{}, len(info.Deployments))
		for d := range info.Deployments {
			indexings[d] = struct{}{}
		}
		indexers[id] = &Indexer{
			ID:                  info.ID,
			URL:                 info.URL,
			IndexerAgentVersion: info.IndexerAgentVersion,
			GraphNodeVersion:    info.GraphNodeVersion,
			ScalarTapSupport:    supportsScalarTap(info.IndexerAgentVersion),
			Indexings:           indexings,
			StakedTokens:        info.StakedTokens,
		}
	}

	transferredSubgraphs := constructTransferredSubgraphsTable(subgraphsInfo)
	transferredDeployments := constructTransferredDeploymentsTable(deploymentsInfo)

	subgraphs := constructSubgraphsTable(subgraphsInfo, indexersInfo, indexers, transferredSubgraphs, transferredDeployments)
	deployments := constructDeploymentsTable(deploymentsInfo, indexersInfo, indexers, subgraphs, transferredDeployments)

	return &NetworkTopologySnapshot{
		transferredSubgraphs:   transferredSubgraphs,
		transferredDeployments: transferredDeployments,
		subgraphs:              subgraphs,
		deployments:            deployments,
	}
}

func flattenDeployments(subgraphsInfo map[types.SubgraphId]SubgraphInfo) map[types.DeploymentId]DeploymentInfo {
	deployments := make(map[types.DeploymentId]DeploymentInfo)
	for _, subgraph := range subgraphsInfo {
		for _, v := range subgraph.Versions {
			deployments[v.Deployment.ID] = v.Deployment
		}
	}
	return deployments
}

// constructTransferredSubgraphsTable extracts the subgraph ids whose
// every version-deployment is marked transferred to L2 with no open
// allocations, mapped to their L2 replacement id.
func constructTransferredSubgraphsTable(subgraphsInfo map[types.SubgraphId]SubgraphInfo) map[types.SubgraphId]types.SubgraphId {
	result := make(map[types.SubgraphId]types.SubgraphId)
	for id, subgraph := range subgraphsInfo {
		transferred := true
		for _, v := range subgraph.Versions {
			if !v.Deployment.TransferredToL2 || len(v.Deployment.Allocations) > 0 {
				transferred = false
				break
			}
		}
		if transferred && subgraph.IDOnL2 != nil {
			result[id] = *subgraph.IDOnL2
		}
	}
	return result
}

// constructTransferredDeploymentsTable extracts the deployment ids
// marked transferred to L2 with no open allocations.
func constructTransferredDeploymentsTable(deploymentsInfo map[types.DeploymentId]DeploymentInfo) map[types.DeploymentId]struct{} {
	result := make(map[types.DeploymentId]struct{})
	for id, deployment := range deploymentsInfo {
		if deployment.TransferredToL2 && len(deployment.Allocations) == 0 {
			result[id] = struct{}{}
		}
	}
	return result
}

func versionsBehind(highest, current uint32) uint8 {
	if current > highest {
		return 0
	}
	diff := highest - current
	if diff > math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(diff)
}

func materializeIndexing(
	deploymentID types.DeploymentId,
	versionsBehindValue uint8,
	alloc Allocation,
	indexersInfo map[types.Address]IndexerInfo,
	indexers map[types.Address]*Indexer,
) (IndexingId, *Indexing, bool) {
	indexerInfo, ok := indexersInfo[alloc.Indexer]
	if !ok {
		return IndexingId{}, nil, false
	}
	if _, healthy := indexerInfo.Deployments[deploymentID]; !healthy {
		return IndexingId{}, nil, false
	}

	indexer, ok := indexers[alloc.Indexer]
	if !ok {
		return IndexingId{}, nil, false
	}

	largestAllocation, ok := indexerInfo.LargestAllocation[deploymentID]
	if !ok {
		return IndexingId{}, nil, false
	}

	totalAllocatedTokens, ok := indexerInfo.TotalAllocatedTokens[deploymentID]
	if !ok {
		return IndexingId{}, nil, false
	}

	var status *IndexingProgress
	if s, ok := indexerInfo.IndexingsProgress[deploymentID]; ok {
		status = &s
	}

	var costModel *CostModel
	if c, ok := indexerInfo.IndexingsCostModel[deploymentID]; ok {
		costModel = &c
	}

	id := IndexingId{Indexer: alloc.Indexer, Deployment: deploymentID}
	return id, &Indexing{
		ID:                   id,
		VersionsBehind:       versionsBehindValue,
		LargestAllocation:    largestAllocation,
		TotalAllocatedTokens: totalAllocatedTokens,
		Indexer:              indexer,
		Status:               status,
		CostModel:            costModel,
	}, true
}

func constructSubgraphsTable(
	subgraphsInfo map[types.SubgraphId]SubgraphInfo,
	indexersInfo map[types.Address]IndexerInfo,
	indexers map[types.Address]*Indexer,
	transferredSubgraphs map[types.SubgraphId]types.SubgraphId,
	transferredDeployments map[types.DeploymentId]struct{},
) map[types.SubgraphId]*Subgraph {
	subgraphs := make(map[types.SubgraphId]*Subgraph)

	for subgraphID, subgraph := range subgraphsInfo {
		if _, transferred := transferredSubgraphs[subgraphID]; transferred {
			continue
		}
		if len(subgraph.Versions) == 0 {
			continue
		}

		// Versions arrive pre-ordered descending; the true v_max is the
		// first entry of the UNFILTERED list, even when that version
		// itself gets dropped below (e.g. because it was transferred
		// to L2) — a subgraph whose newest version just migrated is
		// still correctly reported as behind relative to it.
		rawHighestVersionNumber := subgraph.Versions[0].Version

		var validVersions []SubgraphVersion
		for _, v := range subgraph.Versions {
			if v.Deployment.ManifestNetwork == nil {
				continue
			}
			if _, transferred := transferredDeployments[v.Deployment.ID]; transferred {
				continue
			}
			validVersions = append(validVersions, v)
		}
		if len(validVersions) == 0 {
			continue
		}

		highest := validVersions[0]
		highestChain := *highest.Deployment.ManifestNetwork
		var highestStartBlock types.BlockNumber
		if highest.Deployment.ManifestStartBlock != nil {
			highestStartBlock = *highest.Deployment.ManifestStartBlock
		}

		versionsBehindTable := make(map[types.DeploymentId]uint8, len(validVersions))
		for _, v := range validVersions {
			versionsBehindTable[v.Deployment.ID] = versionsBehind(rawHighestVersionNumber, v.Version)
		}

		indexings := make(map[IndexingId]*Indexing)
		for _, v := range validVersions {
			vb := versionsBehindTable[v.Deployment.ID]
			for _, alloc := range v.Deployment.Allocations {
				id, indexing, ok := materializeIndexing(v.Deployment.ID, vb, alloc, indexersInfo, indexers)
				if !ok {
					continue
				}
				indexings[id] = indexing
			}
		}
		if len(indexings) == 0 {
			continue
		}

		deployments := make(map[types.DeploymentId]struct{})
		for id := range indexings {
			deployments[id.Deployment] = struct{}{}
		}

		subgraphs[subgraphID] = &Subgraph{
			ID:          subgraph.ID,
			Chain:       highestChain,
			StartBlock:  highestStartBlock,
			Deployments: deployments,
			Indexings:   indexings,
		}
	}

	return subgraphs
}

func constructDeploymentsTable(
	deploymentsInfo map[types.DeploymentId]DeploymentInfo,
	indexersInfo map[types.Address]IndexerInfo,
	indexers map[types.Address]*Indexer,
	subgraphs map[types.SubgraphId]*Subgraph,
	transferredDeployments map[types.DeploymentId]struct{},
) map[types.DeploymentId]*Deployment {
	deployments := make(map[types.DeploymentId]*Deployment)

	for deploymentID, deployment := range deploymentsInfo {
		if _, transferred := transferredDeployments[deploymentID]; transferred {
			continue
		}
		if deployment.ManifestNetwork == nil || deployment.ManifestStartBlock == nil {
			continue
		}

		indexings := make(map[IndexingId]*Indexing)
		for _, alloc := range deployment.Allocations {
			id, indexing, ok := materializeIndexing(deploymentID, 0, alloc, indexersInfo, indexers)
			if !ok {
				continue
			}
			indexings[id] = indexing
		}
		if len(indexings) == 0 {
			continue
		}

		referringSubgraphs := make(map[types.SubgraphId]struct{})
		for subgraphID, subgraph := range subgraphs {
			if _, ok := subgraph.Deployments[deploymentID]; ok {
				referringSubgraphs[subgraphID] = struct{}{}
			}
		}
		if len(referringSubgraphs) == 0 {
			continue
		}

		deployments[deploymentID] = &Deployment{
			ID:         deploymentID,
			Chain:      *deployment.ManifestNetwork,
			StartBlock: *deployment.ManifestStartBlock,
			Subgraphs:  referringSubgraphs,
			Indexings:  indexings,
		}
	}

	return deployments
}
