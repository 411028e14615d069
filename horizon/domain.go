package horizon

import (
	"encoding/binary"
	"math/big"

	"github.com/streamingfast/eth-go"

	"github.com/graphprotocol/gateway-core/types"
)

// EIP712Encodable is implemented by the two receipt message variants
// (ReceiptV1, ReceiptV2) so they can share the generic Sign/RecoverSigner
// machinery below.
type EIP712Encodable interface {
	EIP712TypeHash() eth.Hash
	EIP712EncodeData() []byte
}

// Domain represents an EIP-712 domain separator. The gateway precomputes
// one per receipt version: both are named "TAP" and differ only by
// Version ("1" for allocation-based receipts, "2" for collection-based
// ones), per spec §4.1.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract types.Address
}

var eip712DomainTypeHash = keccak256([]byte(
	"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

// NewDomain creates an EIP-712 domain separator for the given name and
// version.
func NewDomain(name, version string, chainID uint64, verifyingContract types.Address) *Domain {
	return &Domain{
		Name:              name,
		Version:           version,
		ChainID:           new(big.Int).SetUint64(chainID),
		VerifyingContract: verifyingContract,
	}
}

// Separator computes the EIP-712 domain separator hash.
func (d *Domain) Separator() eth.Hash {
	encoded := make([]byte, 0, 32*5)
	encoded = append(encoded, eip712DomainTypeHash[:]...)
	encoded = append(encoded, keccak256([]byte(d.Name))[:]...)
	encoded = append(encoded, keccak256([]byte(d.Version))[:]...)
	encoded = append(encoded, padLeft(d.ChainID.Bytes(), 32)...)
	encoded = append(encoded, padLeft(d.VerifyingContract[:], 32)...)

	return keccak256(encoded)
}

// HashTypedData computes the EIP-712 hash for signing:
// keccak256("\x19\x01" || domainSeparator || structHash).
func HashTypedData[T EIP712Encodable](domain *Domain, message T) (eth.Hash, error) {
	structHash := hashStruct(message)
	domainSep := domain.Separator()

	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, domainSep[:]...)
	data = append(data, structHash[:]...)

	return keccak256(data), nil
}

func hashStruct[T EIP712Encodable](message T) eth.Hash {
	typeHash := message.EIP712TypeHash()
	encodedData := message.EIP712EncodeData()

	data := make([]byte, 0, 32+len(encodedData))
	data = append(data, typeHash[:]...)
	data = append(data, encodedData...)

	return keccak256(data)
}

func keccak256(data []byte) eth.Hash {
	return eth.Keccak256(data)
}

func padLeft(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	result := make([]byte, size)
	copy(result[size-len(b):], b)
	return result
}

func encodeUint64(v uint64) []byte {
	result := make([]byte, 32)
	binary.BigEndian.PutUint64(result[24:], v)
	return result
}

func encodeUint128(v *big.Int) []byte {
	result := make([]byte, 32)
	if v != nil {
		b := v.Bytes()
		copy(result[32-len(b):], b)
	}
	return result
}
