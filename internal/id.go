package internal

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/google/uuid"
)

// NullSpanID marks a span id that is absent: no parent, or not yet assigned.
const NullSpanID int64 = -1

// NewTransactionID generates a random (version 4) 128-bit transaction id.
func NewTransactionID() uuid.UUID {
	return uuid.New()
}

// NewSpanID generates a random span id. It never returns NullSpanID.
func NewSpanID() int64 {
	var b [8]byte
	for {
		rand.Read(b[:])
		if id := int64(binary.BigEndian.Uint64(b[:])); id != NullSpanID {
			return id
		}
	}
}
