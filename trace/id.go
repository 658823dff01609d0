package trace

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/kzs0/waypoint/internal"
)

// NullSpanID is the span id sentinel meaning "no parent" or "not assigned".
const NullSpanID = internal.NullSpanID

// ErrMalformedTransactionID is returned when a transaction id is not a
// canonical 128-bit identifier.
var ErrMalformedTransactionID = errors.New("malformed transaction id")

// TransactionID is the 128-bit identifier shared by every span of a trace.
type TransactionID uuid.UUID

// NewTransactionID generates a random transaction id.
func NewTransactionID() TransactionID {
	return TransactionID(internal.NewTransactionID())
}

// ParseTransactionID parses the canonical 8-4-4-4-12 text form.
func ParseTransactionID(s string) (TransactionID, error) {
	if len(s) != 36 {
		return TransactionID{}, fmt.Errorf("%w: %q", ErrMalformedTransactionID, s)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return TransactionID{}, fmt.Errorf("%w: %v", ErrMalformedTransactionID, err)
	}
	if u == uuid.Nil {
		return TransactionID{}, fmt.Errorf("%w: nil uuid", ErrMalformedTransactionID)
	}
	return TransactionID(u), nil
}

// String returns the canonical lowercase text form.
func (t TransactionID) String() string {
	return uuid.UUID(t).String()
}

// IsZero reports whether t is the nil transaction id.
func (t TransactionID) IsZero() bool {
	return uuid.UUID(t) == uuid.Nil
}

// ID identifies a position within a distributed trace. It is immutable.
type ID struct {
	transactionID TransactionID
	parentSpanID  int64
	spanID        int64
	sampled       bool
	flags         int16
}

// NewID creates the identifier of a brand new trace: a fresh transaction id,
// a fresh span id and no parent.
func NewID() ID {
	return ID{
		transactionID: NewTransactionID(),
		parentSpanID:  NullSpanID,
		spanID:        internal.NewSpanID(),
		sampled:       true,
	}
}

// ContinueID builds an identifier received from an upstream caller. Either
// span id may be NullSpanID.
func ContinueID(txid TransactionID, parentSpanID, spanID int64, sampled bool, flags int16) ID {
	return ID{
		transactionID: txid,
		parentSpanID:  parentSpanID,
		spanID:        spanID,
		sampled:       sampled,
		flags:         flags,
	}
}

// Next returns the identifier to hand to a downstream callee: same trace,
// parented on this span, with a new span id.
func (id ID) Next() ID {
	return ID{
		transactionID: id.transactionID,
		parentSpanID:  id.spanID,
		spanID:        internal.NewSpanID(),
		sampled:       id.sampled,
		flags:         id.flags,
	}
}

// IsRoot reports whether the identifier has no parent span, i.e. there is no
// upstream caller to link to.
func (id ID) IsRoot() bool {
	return id.parentSpanID == NullSpanID
}

// TransactionID returns the transaction id.
func (id ID) TransactionID() TransactionID {
	return id.transactionID
}

// ParentSpanID returns the parent span id, or NullSpanID.
func (id ID) ParentSpanID() int64 {
	return id.parentSpanID
}

// SpanID returns the span id.
func (id ID) SpanID() int64 {
	return id.spanID
}

// Sampled returns the sampled flag.
func (id ID) Sampled() bool {
	return id.sampled
}

// Flags returns the reserved flag bits.
func (id ID) Flags() int16 {
	return id.flags
}

// String renders transaction^parent^span for logs.
func (id ID) String() string {
	return id.transactionID.String() + "^" +
		strconv.FormatInt(id.parentSpanID, 10) + "^" +
		strconv.FormatInt(id.spanID, 10)
}
