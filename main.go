package main

import (
	"agent-attendance/actuals"
	"agent-attendance/attendance"
	"agent-attendance/config"
	"agent-attendance/formatter"
	"agent-attendance/httpapi"
	"agent-attendance/metrics"
	"agent-attendance/models"
	"agent-attendance/parser"
	"agent-attendance/schedule"
	"agent-attendance/store"
	"agent-attendance/watch"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Define flags
	serve := flag.Bool("serve", false, "Run the HTTP API instead of printing a report")
	start := flag.String("start", "", "First day of the report range, YYYY-MM-DD (required without -serve)")
	end := flag.String("end", "", "Last day of the report range, YYYY-MM-DD (defaults to -start)")
	lead := flag.String("lead", "", "Only agents of this team lead")
	agent := flag.String("agent", "", "Only this agent ID")
	status := flag.String("status", "", "Comma-separated status codes to keep (e.g. D,U)")
	format := flag.String("format", "text", "Output format: text|json|csv")
	metricsAddr := flag.String("metrics-addr", "", "Address to expose Prometheus metrics (e.g., :9090)")
	pushGateway := flag.String("push-url", "", "Pushgateway URL to push metrics to (overrides METRICS_PUSH_URL)")
	wait := flag.Bool("wait", false, "Keep process running after completion to allow for metric scraping")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	validFormats := map[string]bool{"text": true, "json": true, "csv": true}
	if !validFormats[*format] {
		fmt.Fprintf(os.Stderr, "Error: format must be one of: text, json, csv (got: %s)\n", *format)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise")
	}
	defer svc.store.Close()

	if *serve {
		if err := svc.serve(ctx, cfg); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
		return
	}

	if *start == "" {
		fmt.Fprintln(os.Stderr, "Error: -start flag is required")
		fmt.Fprintln(os.Stderr, "\nUsage:")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *end == "" {
		*end = *start
	}

	// Start metrics server if address provided
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
			log.Info().Str("addr", *metricsAddr).Msg("metrics server listening")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	out, err := svc.report(ctx, *start, *end, *lead, *agent, *status, *format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(out)

	pushURL := cfg.MetricsPushURL
	if *pushGateway != "" {
		pushURL = *pushGateway
	}
	if pushURL != "" {
		if err := push.New(pushURL, "agent_attendance").Gatherer(metrics.Registry).Push(); err != nil {
			log.Error().Err(err).Str("url", pushURL).Msg("failed to push metrics")
		} else {
			log.Info().Str("url", pushURL).Msg("metrics pushed")
		}
	}

	if *wait && *metricsAddr != "" {
		log.Info().Msg("process kept alive for metric scraping, press Ctrl+C to exit")
		<-ctx.Done()
	} else if *metricsAddr != "" && pushURL == "" {
		time.Sleep(100 * time.Millisecond)
	}
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

type app struct {
	store     *store.Store
	base      *schedule.Base
	schedules *schedule.Live
	actuals   *actuals.FileSource
	engine    *attendance.Engine
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, store.Options{DatabaseURL: cfg.DatabaseURL, Path: cfg.DBPath}, log.Logger)
	if err != nil {
		return nil, err
	}

	base, err := schedule.LoadBase(cfg.ScheduleFile, log.Logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	live, err := schedule.NewLive(ctx, base, st, log.Logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	codes := make([]models.Status, 0, len(cfg.OverrideCodes))
	for _, c := range cfg.OverrideCodes {
		codes = append(codes, models.NormalizeStatus(c))
	}

	src := actuals.NewFileSource(cfg.ActualsFile, log.Logger)
	engine := attendance.NewEngine(live, src, st,
		attendance.WithLocation(cfg.Location),
		attendance.WithTolerance(cfg.ToleranceMinutes),
		attendance.WithCodes(attendance.NewCodeSet(codes...)),
		attendance.WithLogger(log.Logger),
	)

	return &app{store: st, base: base, schedules: live, actuals: src, engine: engine}, nil
}

func (a *app) report(ctx context.Context, start, end, lead, agent, status, format string) (string, error) {
	from, err := parser.ParseDate(start)
	if err != nil {
		return "", fmt.Errorf("-start: %w", err)
	}
	to, err := parser.ParseDate(end)
	if err != nil {
		return "", fmt.Errorf("-end: %w", err)
	}

	summaries, err := a.engine.Compute(ctx, attendance.Query{
		Start:   from,
		End:     to,
		Lead:    lead,
		AgentID: agent,
		Status:  status,
	})
	if err != nil {
		return "", err
	}

	report := &formatter.Report{Start: from, End: to, Agents: summaries}
	switch format {
	case "json":
		return formatter.FormatJSON(report), nil
	case "csv":
		return formatter.FormatCSV(report), nil
	default: // "text"
		return formatter.FormatText(report), nil
	}
}

func (a *app) serve(ctx context.Context, cfg *config.Config) error {
	if cfg.WatchFiles {
		w := watch.New(log.Logger, watch.DefaultDelay)
		w.Handle(a.base.Path(), func(ctx context.Context) error {
			if err := a.base.Reload(); err != nil {
				return err
			}
			return a.schedules.Refresh(ctx)
		})
		w.Handle(a.actuals.Path(), func(context.Context) error {
			return a.actuals.Reload()
		})
		if err := w.Start(ctx); err != nil {
			return err
		}
	}

	api := httpapi.NewServer(a.engine, a.schedules, a.store, cfg.AllowedOrigins, log.Logger)
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", srv.Addr).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("schedule_file", cfg.ScheduleFile).
		Str("actuals_file", cfg.ActualsFile).
		Bool("watch_files", cfg.WatchFiles).
		Msg("starting attendance server")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
