// Command waypoint-demo runs an HTTP service instrumented with waypoint next
// to the observer server. Calls to /checkout fan out to /stock on the same
// process, so both spans of a two-hop trace show up in the log.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/kzs0/waypoint"
	"github.com/kzs0/waypoint/attr"
)

func main() {
	var (
		ctx    = context.Background()
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, ff.ErrHelp), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	cfg := waypoint.DefaultConfig()
	cfg.ApplicationName = "waypoint-demo"
	cfg.LogFormat = "text"

	var listenAddr string
	fs := ff.NewFlagSet("waypoint-demo")
	fs.AddFlag(ff.FlagConfig{
		LongName: "listen-addr",
		Value:    ffval.NewValueDefault(&listenAddr, ":8080"),
		Usage:    "listen address for the demo service",
	})
	cfg.RegisterFlags(fs)

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix(waypoint.EnvVarPrefix)); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(stderr, "%s\n", ffhelp.Flags(fs))
		}
		return err
	}
	cfg.LogOutput = stdout

	agent, err := waypoint.New(cfg, waypoint.WithResource(attr.String("env", "development")))
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	ctx = waypoint.WithAgent(ctx, agent)
	logger := agent.Logger()

	selfURL := "http://" + dialable(listenAddr)
	client := waypoint.NewClient(&http.Client{Timeout: 5 * time.Second})

	mux := http.NewServeMux()
	mux.HandleFunc("/stock", func(w http.ResponseWriter, r *http.Request) {
		logger.InfoContext(r.Context(), "reserving stock", slog.String("sku", r.URL.Query().Get("sku")))
		fmt.Fprintln(w, "reserved")
	})
	mux.HandleFunc("/checkout", func(w http.ResponseWriter, r *http.Request) {
		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, selfURL+"/stock?sku="+r.URL.Query().Get("sku"), nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		logger.InfoContext(r.Context(), "checkout complete", slog.Int("stock_status", resp.StatusCode))
		fmt.Fprintln(w, "ok")
	})

	var g run.Group

	{
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           waypoint.HTTPMiddleware(ctx, mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Add(func() error {
			logger.Info("demo service listening", slog.String("addr", listenAddr))
			return server.ListenAndServe()
		}, func(error) {
			_ = server.Shutdown(context.Background())
		})
	}

	if cfg.ObserverAddr != "" {
		observer := agent.Observer()
		g.Add(func() error {
			logger.Info("observer listening", slog.String("addr", cfg.ObserverAddr))
			return observer.ListenAndServe()
		}, func(error) {
			_ = observer.Shutdown(context.Background())
		})
	}

	{
		g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	}

	err = g.Run()
	if serr := agent.Shutdown(context.Background()); serr != nil {
		logger.Warn("shutdown", slog.Any("error", serr))
	}
	return err
}

// dialable turns a listen address such as ":8080" into one a client can dial.
func dialable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return net.JoinHostPort("localhost", port)
	}
	return addr
}
