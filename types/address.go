// Package types holds the shared identifiers used across the gateway core:
// fixed-width addresses and content IDs, block numbers, and the TTL cache
// utility that doesn't belong to any single component.
package types

import (
	"github.com/streamingfast/eth-go"
)

// Address is a 20-byte network identity: an indexer, an allocation, a
// payer, a data service, or a service provider.
type Address = eth.Address

// AllocationId is the v1 on-chain allocation identifier. It is always
// equal to the leading 20 bytes of some CollectionId.
type AllocationId = eth.Address

// BlockNumber is an unsigned 64-bit chain block height.
type BlockNumber = uint64
