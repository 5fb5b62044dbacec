// Package hash defines the fixed-width content-hash types used throughout
// the sidechain: block hashes, transaction ids, merkle roots, utreexo node
// hashes, and addresses. Every one of them is a Blake3 digest, truncated to
// 20 bytes for addresses.
package hash

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Size is the length in bytes of a full Hash.
const Size = 32

// AddressSize is the length in bytes of an Address.
const AddressSize = 20

// Hash is a 32-byte Blake3 digest. BlockHash, Txid, MerkleRoot, NodeHash,
// Nullifier, and Anchor are all Hash under the hood.
type Hash [Size]byte

// BlockHash identifies a connected or candidate sidechain block.
type BlockHash = Hash

// Txid identifies a transaction, computed over its canonical bytes with the
// utreexo proof and orchard authorizing data excluded so it is stable across
// proof regeneration.
type Txid = Hash

// MerkleRoot commits to a block body.
type MerkleRoot = Hash

// NodeHash is a utreexo accumulator leaf or internal node hash.
type NodeHash = Hash

// Nullifier is a one-time tag revealed when spending a shielded note.
type Nullifier = Hash

// Anchor is a historical root of the Orchard note-commitment tree.
type Anchor = Hash

// Address is the 20-byte truncated Blake3 hash of a verifying key.
type Address [AddressSize]byte

// Sum hashes b with Blake3 and returns the full 32-byte digest.
func Sum(b []byte) Hash {
	return Hash(blake3.Sum256(b))
}

// SumAddress hashes a verifying key and truncates it to an Address.
func SumAddress(verifyingKey []byte) Address {
	full := blake3.Sum256(verifyingKey)
	var addr Address
	copy(addr[:], full[:AddressSize])
	return addr
}

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash, used as the "no parent"
// sentinel for genesis blocks and empty anchors.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String renders the address as lowercase hex.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// HashFromString parses a lowercase-hex-encoded 32-byte hash.
func HashFromString(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != Size {
		return h, errInvalidLength(len(b), Size)
	}
	copy(h[:], b)
	return h, nil
}

// AddressFromString parses a lowercase-hex-encoded 20-byte address.
func AddressFromString(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	if len(b) != AddressSize {
		return a, errInvalidLength(len(b), AddressSize)
	}
	copy(a[:], b)
	return a, nil
}

type lengthError struct {
	got, want int
}

func errInvalidLength(got, want int) error {
	return &lengthError{got: got, want: want}
}

func (e *lengthError) Error() string {
	return "hash: invalid encoded length"
}
