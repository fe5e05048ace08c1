package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/version"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/skobkin/web888mon/internal/app"
	"github.com/skobkin/web888mon/internal/coordinator"
)

const (
	onceTimeout     = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

type cliOptions struct {
	configPath    string
	listenAddress string
	metricsPath   string
	once          bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("run web888mon", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (cliOptions, error) {
	var opts cliOptions

	cli := kingpin.New(app.Name, "Web-888 / KiwiSDR telemetry monitor.")
	cli.Flag("config", "Path to the YAML config file.").
		OverrideDefaultFromEnvar("WEB888_CONFIG").StringVar(&opts.configPath)
	cli.Flag("web.listen-address", "Address to expose metrics on. Overrides metrics.listen_address.").
		OverrideDefaultFromEnvar("WEB888_LISTEN_ADDRESS").StringVar(&opts.listenAddress)
	cli.Flag("web.telemetry-path", "Path under which to expose metrics. Overrides metrics.path.").
		OverrideDefaultFromEnvar("WEB888_TELEMETRY_PATH").StringVar(&opts.metricsPath)
	cli.Flag("once", "Refresh once, print the view as JSON and exit.").BoolVar(&opts.once)
	cli.Version(version.Print(app.Name))
	cli.HelpFlag.Short('h')

	if _, err := cli.Parse(args); err != nil {
		return cliOptions{}, err
	}

	return opts, nil
}

func run(args []string) error {
	app.PublishBuildInfo()

	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.once {
		return runOnce(ctx, opts, os.Stdout)
	}

	return serve(ctx, opts)
}

func runOnce(ctx context.Context, opts cliOptions, out io.Writer) error {
	rt, err := app.Initialize(ctx, app.Options{ConfigPath: opts.configPath})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	refreshCtx, cancel := context.WithTimeout(ctx, onceTimeout)
	defer cancel()

	view, err := rt.RefreshOnce(refreshCtx)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	return writeReport(out, view)
}

// onceReport adds the derived values a script reading --once output needs.
type onceReport struct {
	coordinator.View
	Connected     bool
	Users         int
	UptimeSeconds int64
}

func writeReport(out io.Writer, view coordinator.View) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(onceReport{
		View:          view,
		Connected:     view.Connected(),
		Users:         view.Users(),
		UptimeSeconds: view.UptimeSeconds(),
	})
}

func serve(ctx context.Context, opts cliOptions) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		version.NewCollector(app.Name),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	rt, err := app.Initialize(ctx, app.Options{ConfigPath: opts.configPath, Registerer: reg})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	listenAddress := opts.listenAddress
	if listenAddress == "" {
		listenAddress = rt.Config.Metrics.ListenAddress
	}
	metricsPath := opts.metricsPath
	if metricsPath == "" {
		metricsPath = rt.Config.Metrics.Path
	}

	logger := rt.LogManager.Logger("cli")
	logger.Info("starting web888mon", "version", version.Info(), "build_context", version.BuildContext())

	srv := &http.Server{
		Addr:              listenAddress,
		Handler:           newMux(reg, metricsPath),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", listenAddress, "path", metricsPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	rt.Start()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func newMux(gatherer prometheus.Gatherer, metricsPath string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)

			return
		}
		_, _ = w.Write([]byte(`<html>
<head><title>Web-888 Monitor</title></head>
<body>
<h1>Web-888 Monitor</h1>
<p><a href='` + metricsPath + `'>Metrics</a></p>
</body>
</html>`))
	})

	return mux
}
