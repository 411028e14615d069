package horizon

import (
	"math/big"
	"testing"

	"github.com/streamingfast/eth-go"
	"github.com/stretchr/testify/require"
)

func TestSign_ReceiptV2(t *testing.T) {
	chainID := uint64(1)
	verifyingContract := eth.MustNewAddress("0x1234567890123456789012345678901234567890")
	domain := NewDomain("TAP", "2", chainID, verifyingContract)

	key, err := eth.NewRandomPrivateKey()
	require.NoError(t, err)

	receipt := &ReceiptV2{
		Payer:           key.PublicKey().Address(),
		DataService:     eth.MustNewAddress("0x2222222222222222222222222222222222222222"),
		ServiceProvider: eth.MustNewAddress("0x3333333333333333333333333333333333333333"),
		TimestampNs:     1234567890,
		Nonce:           999,
		Value:           big.NewInt(1000),
	}

	signed, err := Sign(domain, receipt, key)
	require.NoError(t, err)
	require.NotNil(t, signed)
	require.Equal(t, receipt, signed.Message)
	require.Equal(t, 65, len(signed.Signature))
}

func TestRecoverSigner_ReceiptV2(t *testing.T) {
	chainID := uint64(1)
	verifyingContract := eth.MustNewAddress("0x1234567890123456789012345678901234567890")
	domain := NewDomain("TAP", "2", chainID, verifyingContract)

	key, err := eth.NewRandomPrivateKey()
	require.NoError(t, err)
	expectedSigner := key.PublicKey().Address()

	receipt := &ReceiptV2{
		Payer:           expectedSigner,
		DataService:     eth.MustNewAddress("0x2222222222222222222222222222222222222222"),
		ServiceProvider: eth.MustNewAddress("0x3333333333333333333333333333333333333333"),
		TimestampNs:     1234567890,
		Nonce:           999,
		Value:           big.NewInt(1000),
	}

	signed, err := Sign(domain, receipt, key)
	require.NoError(t, err)

	recoveredSigner, err := signed.RecoverSigner(domain)
	require.NoError(t, err)
	require.Equal(t, expectedSigner, recoveredSigner)
}

func TestRecoverSigner_ReceiptV1(t *testing.T) {
	chainID := uint64(1)
	verifyingContract := eth.MustNewAddress("0x1234567890123456789012345678901234567890")
	domain := NewDomain("TAP", "1", chainID, verifyingContract)

	key, err := eth.NewRandomPrivateKey()
	require.NoError(t, err)
	expectedSigner := key.PublicKey().Address()

	receipt := &ReceiptV1{
		AllocationId: eth.MustNewAddress("0x89b23fea4e46d40e8a4c6cca723e2a03fdd4bec2"),
		TimestampNs:  1234567890,
		Nonce:        999,
		Value:        big.NewInt(1000),
	}

	signed, err := Sign(domain, receipt, key)
	require.NoError(t, err)

	recoveredSigner, err := signed.RecoverSigner(domain)
	require.NoError(t, err)
	require.Equal(t, expectedSigner, recoveredSigner)
}

func TestNormalizeSignature(t *testing.T) {
	var highSSig eth.Signature

	r := big.NewInt(12345)
	rBytes := r.Bytes()
	copy(highSSig[32-len(rBytes):32], rBytes)

	s := new(big.Int).Add(secp256k1HalfN, big.NewInt(100))
	sBytes := s.Bytes()
	copy(highSSig[64-len(sBytes):64], sBytes)

	highSSig[64] = 0

	normalized := normalizeSignature(highSSig)

	expectedS := new(big.Int).Sub(secp256k1N, s)
	normalizedS := new(big.Int).SetBytes(normalized[32:64])
	require.Equal(t, 0, expectedS.Cmp(normalizedS))

	require.Equal(t, byte(1), normalized[64])
	require.Equal(t, highSSig[:32], normalized[:32])
}

func TestSignaturesEqual(t *testing.T) {
	var sig1, sig2 eth.Signature

	r := big.NewInt(12345)
	rBytes := r.Bytes()
	copy(sig1[32-len(rBytes):32], rBytes)
	copy(sig2[32-len(rBytes):32], rBytes)

	s := new(big.Int).Add(secp256k1HalfN, big.NewInt(100))
	sBytes := s.Bytes()
	copy(sig1[64-len(sBytes):64], sBytes)

	sLow := new(big.Int).Sub(secp256k1N, s)
	sLowBytes := sLow.Bytes()
	copy(sig2[64-len(sLowBytes):64], sLowBytes)

	sig1[64] = 0
	sig2[64] = 1

	require.True(t, SignaturesEqual(sig1, sig2))
}

func TestUniqueID(t *testing.T) {
	chainID := uint64(1)
	verifyingContract := eth.MustNewAddress("0x1234567890123456789012345678901234567890")
	domain := NewDomain("TAP", "2", chainID, verifyingContract)

	key, err := eth.NewRandomPrivateKey()
	require.NoError(t, err)

	receipt := &ReceiptV2{
		Payer:           key.PublicKey().Address(),
		DataService:     eth.MustNewAddress("0x2222222222222222222222222222222222222222"),
		ServiceProvider: eth.MustNewAddress("0x3333333333333333333333333333333333333333"),
		TimestampNs:     1234567890,
		Nonce:           999,
		Value:           big.NewInt(1000),
	}

	signed, err := Sign(domain, receipt, key)
	require.NoError(t, err)

	uniqueID := signed.UniqueID()
	require.Equal(t, 65, len(uniqueID))

	uniqueID2 := signed.UniqueID()
	require.Equal(t, uniqueID, uniqueID2)

	normalized := normalizeSignature(signed.Signature)
	require.Equal(t, normalized, uniqueID)
}
