// Package propagation reads and writes trace identifiers in transport
// carriers such as request headers.
//
// The wire contract is a fixed set of carrier entries, one per field:
//
//	TraceId                 transaction id, canonical 8-4-4-4-12 form
//	SpanId, ParentSpanId    decimal integers
//	Sampled                 true / false
//	Flags                   decimal small integer
//	ParentApplicationName   free text
//	ParentApplicationType   decimal small integer
//
// Only TraceId is required. Malformed optional entries fall back to their
// defaults; a malformed TraceId makes the whole carrier malformed.
package propagation

import (
	"strconv"
	"strings"

	"github.com/kzs0/waypoint/trace"
)

// Carrier entry names.
const (
	HeaderTraceID               = "TraceId"
	HeaderSpanID                = "SpanId"
	HeaderParentSpanID          = "ParentSpanId"
	HeaderSampled               = "Sampled"
	HeaderFlags                 = "Flags"
	HeaderParentApplicationName = "ParentApplicationName"
	HeaderParentApplicationType = "ParentApplicationType"
)

// Getter reads carrier entries. Absent entries read as "".
type Getter interface {
	Get(key string) string
}

// Setter writes carrier entries.
type Setter interface {
	Set(key, value string)
}

// GetterFunc adapts a lookup function to Getter.
type GetterFunc func(key string) string

// Get calls f(key).
func (f GetterFunc) Get(key string) string {
	return f(key)
}

// MapCarrier is a Getter and Setter backed by a map with exact key matching.
type MapCarrier map[string]string

// Get returns the value for key.
func (c MapCarrier) Get(key string) string {
	return c[key]
}

// Set stores value under key.
func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

// Status is the outcome of decoding a carrier.
type Status int

const (
	// StatusAbsent means the carrier has no trace id. It is not an error.
	StatusAbsent Status = iota
	// StatusDecoded means the carrier held a usable trace id.
	StatusDecoded
	// StatusMalformed means the carrier held a trace id that could not be
	// parsed.
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusAbsent:
		return "absent"
	case StatusDecoded:
		return "decoded"
	case StatusMalformed:
		return "malformed"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Result is the outcome of Decode. ID is set only for StatusDecoded and Err
// only for StatusMalformed.
type Result struct {
	Status Status
	ID     trace.ID
	Err    error
}

// Decode reads a trace identifier from c.
func Decode(c Getter) Result {
	raw := c.Get(HeaderTraceID)
	if raw == "" {
		return Result{Status: StatusAbsent}
	}
	txid, err := trace.ParseTransactionID(raw)
	if err != nil {
		return Result{Status: StatusMalformed, Err: err}
	}

	id := trace.ContinueID(
		txid,
		parseSpanID(c.Get(HeaderParentSpanID)),
		parseSpanID(c.Get(HeaderSpanID)),
		strings.EqualFold(c.Get(HeaderSampled), "true"),
		parseInt16(c.Get(HeaderFlags), 0),
	)
	return Result{Status: StatusDecoded, ID: id}
}

// DecodeParentApplication reads the calling application's identity. It
// reports false when no application name is present. A missing or
// unparsable type reads as trace.ServiceTypeUndefined.
func DecodeParentApplication(c Getter) (trace.ParentApplication, bool) {
	name := c.Get(HeaderParentApplicationName)
	if name == "" {
		return trace.ParentApplication{}, false
	}
	typ := parseInt16(c.Get(HeaderParentApplicationType), int16(trace.ServiceTypeUndefined))
	return trace.ParentApplication{Name: name, Type: trace.ServiceType(typ)}, true
}

// Encode writes id into c. Null span ids are omitted. Sampled and Flags
// always carry a value, their decoded default when absent, and are always
// written.
func Encode(c Setter, id trace.ID) {
	c.Set(HeaderTraceID, id.TransactionID().String())
	if id.SpanID() != trace.NullSpanID {
		c.Set(HeaderSpanID, strconv.FormatInt(id.SpanID(), 10))
	}
	if id.ParentSpanID() != trace.NullSpanID {
		c.Set(HeaderParentSpanID, strconv.FormatInt(id.ParentSpanID(), 10))
	}
	c.Set(HeaderSampled, strconv.FormatBool(id.Sampled()))
	c.Set(HeaderFlags, strconv.FormatInt(int64(id.Flags()), 10))
}

// EncodeParentApplication writes app into c. Nothing is written when the
// name is empty.
func EncodeParentApplication(c Setter, app trace.ParentApplication) {
	if app.Name == "" {
		return
	}
	c.Set(HeaderParentApplicationName, app.Name)
	c.Set(HeaderParentApplicationType, strconv.FormatInt(int64(app.Type), 10))
}

func parseSpanID(s string) int64 {
	if s == "" {
		return trace.NullSpanID
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return trace.NullSpanID
	}
	return n
}

func parseInt16(s string, def int16) int16 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 16)
	if err != nil {
		return def
	}
	return int16(n)
}
