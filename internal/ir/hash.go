package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
)

// Domain prefixes for digests. The version suffix leaves room for
// changing the framing later without colliding with old digests.
const (
	DomainState  = "tally/state/v1"
	DomainRecord = "tally/record/v1"
)

// newDomainHash starts a SHA-256 with domain separation:
// SHA256(domain + 0x00 + ...).
func newDomainHash(domain string) hash.Hash {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	return h
}

// writeFramed writes a length-prefixed chunk so adjacent chunks
// cannot be re-split into a different sequence with the same bytes.
func writeFramed(h hash.Hash, data []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))
	h.Write(n[:])
	h.Write(data)
}

// Entry is one stored key and its encoded value.
type Entry struct {
	Key   string
	Value []byte
}

// StateDigest hashes stored entries in the order given.
// Callers pass entries sorted by key; two stores holding the same
// committed state produce the same digest.
func StateDigest(entries []Entry) string {
	h := newDomainHash(DomainState)
	for _, e := range entries {
		writeFramed(h, []byte(e.Key))
		writeFramed(h, e.Value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RecordDigest computes a content address for a record within a stream.
// The payload is hashed in canonical form so NFC-equivalent payloads agree.
func RecordDigest(stream string, r Record) (string, error) {
	payload, err := MarshalCanonical(r.payloadOrEmpty())
	if err != nil {
		return "", fmt.Errorf("RecordDigest: %w", err)
	}
	h := newDomainHash(DomainRecord)
	writeFramed(h, []byte(stream))
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], r.ID)
	h.Write(n[:])
	binary.BigEndian.PutUint64(n[:], uint64(r.CreatedAt))
	h.Write(n[:])
	writeFramed(h, []byte(r.Actors.Primary))
	writeFramed(h, []byte(r.Actors.Secondary))
	writeFramed(h, payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}
