package propagation

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kzs0/waypoint/trace"
	"pgregory.net/rapid"
)

const validTxID = "0af76519-16cd-43dd-8448-eb211c80319c"

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		carrier   MapCarrier
		status    Status
		checkFunc func(t *testing.T, id trace.ID)
	}{
		{
			name:    "no headers",
			carrier: MapCarrier{},
			status:  StatusAbsent,
		},
		{
			name:    "only optional headers",
			carrier: MapCarrier{HeaderSpanID: "3", HeaderSampled: "true"},
			status:  StatusAbsent,
		},
		{
			name:    "malformed transaction id",
			carrier: MapCarrier{HeaderTraceID: "not-a-uuid", HeaderSpanID: "3"},
			status:  StatusMalformed,
		},
		{
			name: "all fields",
			carrier: MapCarrier{
				HeaderTraceID:      validTxID,
				HeaderParentSpanID: "7",
				HeaderSpanID:       "3",
				HeaderSampled:      "true",
				HeaderFlags:        "5",
			},
			status: StatusDecoded,
			checkFunc: func(t *testing.T, id trace.ID) {
				if id.TransactionID().String() != validTxID {
					t.Errorf("unexpected transaction id %s", id.TransactionID())
				}
				if id.ParentSpanID() != 7 || id.SpanID() != 3 || !id.Sampled() || id.Flags() != 5 {
					t.Errorf("unexpected id %s sampled=%v flags=%d", id, id.Sampled(), id.Flags())
				}
				if id.IsRoot() {
					t.Error("expected non-root id")
				}
			},
		},
		{
			name:    "transaction id only",
			carrier: MapCarrier{HeaderTraceID: validTxID},
			status:  StatusDecoded,
			checkFunc: func(t *testing.T, id trace.ID) {
				if id.ParentSpanID() != trace.NullSpanID || id.SpanID() != trace.NullSpanID {
					t.Errorf("expected null span ids, got %s", id)
				}
				if id.Sampled() || id.Flags() != 0 {
					t.Error("expected defaults for sampled and flags")
				}
				if !id.IsRoot() {
					t.Error("expected root id without parent")
				}
			},
		},
		{
			name: "malformed optional fields fall back to defaults",
			carrier: MapCarrier{
				HeaderTraceID:      validTxID,
				HeaderParentSpanID: "seven",
				HeaderSpanID:       "3.5",
				HeaderSampled:      "yes",
				HeaderFlags:        "99999",
			},
			status: StatusDecoded,
			checkFunc: func(t *testing.T, id trace.ID) {
				if id.ParentSpanID() != trace.NullSpanID || id.SpanID() != trace.NullSpanID {
					t.Errorf("expected null span ids, got %s", id)
				}
				if id.Sampled() {
					t.Error("expected sampled=false")
				}
				if id.Flags() != 0 {
					t.Errorf("expected flags 0 for out of range value, got %d", id.Flags())
				}
			},
		},
		{
			name:    "sampled is case-insensitive",
			carrier: MapCarrier{HeaderTraceID: validTxID, HeaderSampled: "TRUE"},
			status:  StatusDecoded,
			checkFunc: func(t *testing.T, id trace.ID) {
				if !id.Sampled() {
					t.Error("expected sampled=true")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Decode(tt.carrier)
			if res.Status != tt.status {
				t.Fatalf("expected status %v, got %v (err=%v)", tt.status, res.Status, res.Err)
			}
			switch res.Status {
			case StatusMalformed:
				if !errors.Is(res.Err, trace.ErrMalformedTransactionID) {
					t.Errorf("expected ErrMalformedTransactionID, got %v", res.Err)
				}
			default:
				if res.Err != nil {
					t.Errorf("expected no error, got %v", res.Err)
				}
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, res.ID)
			}
		})
	}
}

func TestDecodeParentApplication(t *testing.T) {
	tests := []struct {
		name    string
		carrier MapCarrier
		want    trace.ParentApplication
		ok      bool
	}{
		{"absent", MapCarrier{}, trace.ParentApplication{}, false},
		{"type only", MapCarrier{HeaderParentApplicationType: "2"}, trace.ParentApplication{}, false},
		{"name and type", MapCarrier{HeaderParentApplicationName: "OrderService", HeaderParentApplicationType: "2"}, trace.ParentApplication{Name: "OrderService", Type: 2}, true},
		{"missing type", MapCarrier{HeaderParentApplicationName: "OrderService"}, trace.ParentApplication{Name: "OrderService", Type: trace.ServiceTypeUndefined}, true},
		{"unparsable type", MapCarrier{HeaderParentApplicationName: "OrderService", HeaderParentApplicationType: "tomcat"}, trace.ParentApplication{Name: "OrderService", Type: trace.ServiceTypeUndefined}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeParentApplication(tt.carrier)
			if ok != tt.ok || got != tt.want {
				t.Errorf("expected %+v (%v), got %+v (%v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestEncodeOmitsNullSpanIDs(t *testing.T) {
	id := trace.NewID()
	c := MapCarrier{}
	Encode(c, id)

	if _, ok := c[HeaderParentSpanID]; ok {
		t.Error("expected ParentSpanId to be omitted for a root id")
	}
	if c[HeaderSpanID] != strconv.FormatInt(id.SpanID(), 10) {
		t.Errorf("unexpected SpanId %q", c[HeaderSpanID])
	}
	for k, v := range c {
		if v == "" {
			t.Errorf("expected no empty entries, got %s=\"\"", k)
		}
	}
}

func TestEncodeWritesDefaultSampledAndFlags(t *testing.T) {
	in := MapCarrier{
		HeaderTraceID:      validTxID,
		HeaderParentSpanID: "7",
		HeaderSpanID:       "3",
	}
	res := Decode(in)
	if res.Status != StatusDecoded {
		t.Fatalf("expected decoded, got %v: %v", res.Status, res.Err)
	}

	out := MapCarrier{}
	Encode(out, res.ID)
	want := MapCarrier{
		HeaderTraceID:      validTxID,
		HeaderParentSpanID: "7",
		HeaderSpanID:       "3",
		HeaderSampled:      "false",
		HeaderFlags:        "0",
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("carrier mismatch (-want +got):\n%s", diff)
	}

	again := Decode(out)
	if again.Status != StatusDecoded || again.ID != res.ID {
		t.Errorf("expected re-encoded carrier to decode to %s, got %s (%v)", res.ID, again.ID, again.Status)
	}
}

func TestEncodeParentApplication(t *testing.T) {
	c := MapCarrier{}
	EncodeParentApplication(c, trace.ParentApplication{})
	if len(c) != 0 {
		t.Errorf("expected nothing written for empty name, got %v", c)
	}

	EncodeParentApplication(c, trace.ParentApplication{Name: "OrderService", Type: 2})
	want := MapCarrier{HeaderParentApplicationName: "OrderService", HeaderParentApplicationType: "2"}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("carrier mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var txid [16]byte
		for i := range txid {
			txid[i] = rapid.Byte().Draw(t, "b")
		}
		txid[0] |= 0x01 // never the nil uuid

		spanID := func(label string) int64 {
			return rapid.Int64().Filter(func(n int64) bool { return n != trace.NullSpanID }).Draw(t, label)
		}

		in := MapCarrier{
			HeaderTraceID:      trace.TransactionID(txid).String(),
			HeaderParentSpanID: strconv.FormatInt(spanID("parent"), 10),
			HeaderSpanID:       strconv.FormatInt(spanID("span"), 10),
			HeaderSampled:      strconv.FormatBool(rapid.Bool().Draw(t, "sampled")),
			HeaderFlags:        strconv.FormatInt(int64(rapid.Int16().Draw(t, "flags")), 10),
		}

		res := Decode(in)
		if res.Status != StatusDecoded {
			t.Fatalf("expected decoded, got %v: %v", res.Status, res.Err)
		}

		out := MapCarrier{}
		Encode(out, res.ID)
		if diff := cmp.Diff(in, out); diff != "" {
			t.Fatalf("round trip mismatch (-in +out):\n%s", diff)
		}
	})
}

func TestDecodeNeverPanicsWithoutTraceID(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c := MapCarrier{
			HeaderSpanID:       rapid.String().Draw(t, "span"),
			HeaderParentSpanID: rapid.String().Draw(t, "parent"),
			HeaderSampled:      rapid.String().Draw(t, "sampled"),
			HeaderFlags:        rapid.String().Draw(t, "flags"),
		}
		if res := Decode(c); res.Status != StatusAbsent {
			t.Fatalf("expected absent, got %v", res.Status)
		}
	})
}
