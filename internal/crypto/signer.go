package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// --------------------------------------------------------------------------
// Typed-data hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version)"),
	)

	// EngineAuth(address actor,uint256 timestamp,uint256 nonce)
	engineAuthTypeHash = ethcrypto.Keccak256(
		[]byte("EngineAuth(address actor,uint256 timestamp,uint256 nonce)"),
	)

	// engineDomainSep is the domain separator binding signatures to this
	// engine, so an auth signature cannot be replayed against another app.
	engineDomainSep = buildDomainSeparator("ZmartEngine", "1")
)

// Signer holds a secp256k1 key and produces the signed challenges that
// authenticate an actor to the engine host.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// DeriveSigner deterministically derives a Signer from a seed string by
// hashing until the digest lands in the curve's scalar range. Simulation and
// tests use it to get stable identities from a seed.
func DeriveSigner(seed string) (*Signer, error) {
	sum := sha256.Sum256([]byte(seed))
	for i := 0; i < 255; i++ {
		pk, err := ethcrypto.ToECDSA(sum[:])
		if err == nil {
			return &Signer{
				privateKey: pk,
				address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
			}, nil
		}
		sum = sha256.Sum256(sum[:])
	}
	return nil, errors.New("crypto: could not derive key from seed")
}

// Address returns the actor address derived from the signer's key, in
// EIP-55 checksum form.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// PrivateKeyHex returns the hex-encoded private key without 0x prefix, for
// writing through the keystore.
func (s *Signer) PrivateKeyHex() string {
	return hex.EncodeToString(ethcrypto.FromECDSA(s.privateKey))
}

// SignAuth signs an EngineAuth challenge for the signer's own address. The
// returned string is a hex-encoded 65-byte signature (r || s || v).
func (s *Signer) SignAuth(timestamp, nonce int64) (string, error) {
	digest := AuthDigest(s.Address(), timestamp, nonce)
	return s.signDigest(digest)
}

// AuthDigest computes the typed digest an actor signs to authenticate:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
//
// with the EngineAuth struct hash over (actor, timestamp, nonce).
func AuthDigest(actor string, timestamp, nonce int64) []byte {
	addr := common.HexToAddress(actor)

	structHash := ethcrypto.Keccak256(
		concatBytes(
			engineAuthTypeHash,
			common.LeftPadBytes(addr.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(timestamp)),
			bigIntTo32Bytes(big.NewInt(nonce)),
		),
	)

	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			engineDomainSep,
			structHash,
		),
	)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// buildDomainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash)).
func buildDomainSeparator(name, version string) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *Signer) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; the wire format expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
