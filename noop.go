package waypoint

import (
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kzs0/waypoint/attr"
	wlog "github.com/kzs0/waypoint/log"
	"github.com/kzs0/waypoint/trace"
)

var (
	noopInstance *Agent
	noopOnce     sync.Once
)

// noopAgent returns a singleton agent that logs nowhere and exports nothing.
// Units of work handled through it still get spans, so code that reads the
// current span keeps working.
func noopAgent() *Agent {
	noopOnce.Do(func() {
		handler := wlog.NewHandler(&wlog.HandlerOptions{
			Level:  slog.LevelInfo,
			Output: io.Discard,
			Format: "json",
		})
		cfg := DefaultConfig()
		cfg.ApplicationName = "noop"
		cfg.ObserverAddr = ""

		noopInstance = &Agent{
			config:   cfg,
			logger:   slog.New(handler),
			tracer:   trace.NewTracer(trace.TracerConfig{ApplicationName: "noop"}),
			resource: attr.NewSet(),
			registry: prometheus.NewRegistry(),
			isNoop:   true,
		}
	})
	return noopInstance
}
