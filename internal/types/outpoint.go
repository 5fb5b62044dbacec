package types

import (
	"github.com/thunder-project/thunder/internal/canon"
	"github.com/thunder-project/thunder/internal/hash"
)

// OutPointKind discriminates the three ways an output can come into being.
type OutPointKind byte

const (
	// OutPointRegular points at the vout-th output of a sidechain
	// transaction.
	OutPointRegular OutPointKind = iota
	// OutPointCoinbase points at the vout-th coinbase output of the
	// block whose body hashed to merkle_root.
	OutPointCoinbase
	// OutPointDeposit wraps a mainchain (bitcoin-like) outpoint observed
	// via deposit ingestion.
	OutPointDeposit
)

// BitcoinOutPoint is the mainchain outpoint a deposit wraps.
type BitcoinOutPoint struct {
	Txid hash.Hash
	Vout uint32
}

// OutPoint is a tagged union over the three ways a UTXO can be named.
// Exactly one of the payload fields is meaningful, selected by Kind.
type OutPoint struct {
	Kind OutPointKind

	// Regular
	Txid hash.Txid
	// Coinbase
	MerkleRoot hash.MerkleRoot
	// Regular / Coinbase
	Vout uint32
	// Deposit
	Deposit BitcoinOutPoint
}

// Regular constructs a regular transaction outpoint.
func Regular(txid hash.Txid, vout uint32) OutPoint {
	return OutPoint{Kind: OutPointRegular, Txid: txid, Vout: vout}
}

// Coinbase constructs a coinbase outpoint.
func Coinbase(merkleRoot hash.MerkleRoot, vout uint32) OutPoint {
	return OutPoint{Kind: OutPointCoinbase, MerkleRoot: merkleRoot, Vout: vout}
}

// DepositOutPoint constructs a deposit outpoint wrapping a mainchain
// outpoint.
func DepositOutPoint(bitcoinOutpoint BitcoinOutPoint) OutPoint {
	return OutPoint{Kind: OutPointDeposit, Deposit: bitcoinOutpoint}
}

// OutPointKeySize is the fixed width of the canonical OutPoint encoding: one
// discriminant byte, a 32-byte hash, and a 4-byte little-endian vout.
const OutPointKeySize = 1 + hash.Size + 4

// OutPointKey is the fixed-width, byte-sortable on-disk key derived from an
// OutPoint's canonical serialization. It is used as the DB key for every
// UTXO/STXO store, so in-block double-spend detection reduces to "sort and
// scan".
type OutPointKey [OutPointKeySize]byte

// Key computes the canonical 37-byte key for this outpoint.
func (o OutPoint) Key() OutPointKey {
	var k OutPointKey
	k[0] = byte(o.Kind)
	switch o.Kind {
	case OutPointRegular:
		copy(k[1:1+hash.Size], o.Txid[:])
	case OutPointCoinbase:
		copy(k[1:1+hash.Size], o.MerkleRoot[:])
	case OutPointDeposit:
		copy(k[1:1+hash.Size], o.Deposit.Txid[:])
	}
	vout := o.Vout
	if o.Kind == OutPointDeposit {
		vout = o.Deposit.Vout
	}
	putUint32LE(k[1+hash.Size:], vout)
	return k
}

// FromOutPointKey reconstructs an OutPoint from its canonical key. It is the
// inverse of Key: for every OutPointKind, Key(FromOutPointKey(k)) == k.
func FromOutPointKey(k OutPointKey) OutPoint {
	kind := OutPointKind(k[0])
	var h hash.Hash
	copy(h[:], k[1:1+hash.Size])
	vout := getUint32LE(k[1+hash.Size:])

	switch kind {
	case OutPointRegular:
		return Regular(h, vout)
	case OutPointCoinbase:
		return Coinbase(h, vout)
	default:
		return DepositOutPoint(BitcoinOutPoint{Txid: h, Vout: vout})
	}
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Encode appends the canonical encoding of o to e.
func (o OutPoint) Encode(e *canon.Encoder) {
	e.Byte(byte(o.Kind))
	switch o.Kind {
	case OutPointRegular:
		e.Fixed(o.Txid[:]).Uint32(o.Vout)
	case OutPointCoinbase:
		e.Fixed(o.MerkleRoot[:]).Uint32(o.Vout)
	case OutPointDeposit:
		e.Fixed(o.Deposit.Txid[:]).Uint32(o.Deposit.Vout)
	}
}

// DecodeOutPoint reads a canonically-encoded OutPoint.
func DecodeOutPoint(d *canon.Decoder) (OutPoint, error) {
	kb, err := d.Byte()
	if err != nil {
		return OutPoint{}, err
	}
	kind := OutPointKind(kb)

	hb, err := d.Fixed(hash.Size)
	if err != nil {
		return OutPoint{}, err
	}
	var h hash.Hash
	copy(h[:], hb)

	vout, err := d.Uint32()
	if err != nil {
		return OutPoint{}, err
	}

	switch kind {
	case OutPointRegular:
		return Regular(h, vout), nil
	case OutPointCoinbase:
		return Coinbase(h, vout), nil
	default:
		return DepositOutPoint(BitcoinOutPoint{Txid: h, Vout: vout}), nil
	}
}
