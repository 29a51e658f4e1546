package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainContract = "s01l/contract/v1"
	DomainTx       = "s01l/tx/v1"
	DomainBlock    = "s01l/block/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ContractAddress derives the address of the contract the registry creates
// with the given creation nonce. Nonces start at 1 and are never reused, so
// derived addresses are unique per registry.
func ContractAddress(registry Address, nonce uint64) Address {
	canonical, err := MarshalCanonical(map[string]any{
		"registry": registry,
		"nonce":    nonce,
	})
	if err != nil {
		panic(fmt.Sprintf("ContractAddress: %v", err))
	}
	sum := hashWithDomain(DomainContract, canonical)
	var a Address
	copy(a[:], sum[HashLength-AddressLength:])
	return a
}

// TxHash computes the transaction identifier of a call. seq is the
// ledger-wide transaction sequence, so identical calls get distinct hashes.
func TxHash(from Address, method string, args map[string]any, seq uint64) (Hash, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"from":   from,
		"method": method,
		"args":   args,
		"seq":    seq,
	})
	if err != nil {
		return Hash{}, fmt.Errorf("TxHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTx, canonical), nil
}

// BlockHash computes a block's identity from its parent, number, timestamp,
// and ordered transaction hashes.
func BlockHash(parent Hash, number uint64, timestamp int64, txs []Hash) Hash {
	txList := make([]string, len(txs))
	for i, h := range txs {
		txList[i] = h.String()
	}
	canonical, err := MarshalCanonical(map[string]any{
		"parent":    parent,
		"number":    number,
		"timestamp": timestamp,
		"txs":       txList,
	})
	if err != nil {
		panic(fmt.Sprintf("BlockHash: %v", err))
	}
	return hashWithDomain(DomainBlock, canonical)
}

// EntityID returns the stable identifier of the entity for the log at
// logIndex within the transaction txHash: the transaction hash followed by
// the big-endian log index, in hex.
func EntityID(txHash Hash, logIndex uint32) string {
	var buf [HashLength + 4]byte
	copy(buf[:], txHash[:])
	binary.BigEndian.PutUint32(buf[HashLength:], logIndex)
	return "0x" + hex.EncodeToString(buf[:])
}
