package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"runon/internal/api"
	"runon/internal/config"
	"runon/internal/ics"
	"runon/internal/location"
	appLog "runon/internal/log"
	"runon/internal/scheduler"
	"runon/internal/search"
	"runon/internal/web"
)

type flagConfig struct {
	configPath string
	envPath    string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	if err := config.LoadEnv(flags.envPath); err != nil {
		appLog.Error("failed to load env file", err, "path", flags.envPath)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	conf.Normalize()

	// CLI --listen overrides config and environment.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	loc, err := conf.TimeLocation()
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", conf.Timezone)
		loc = time.UTC
	}

	appLog.Info("runon starting",
		"listen", conf.Listen,
		"source", conf.Source,
		"timezone", loc.String(),
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := search.New(buildSource(conf, loc), search.WithContext(ctx))

	if conf.HomeLocation != nil {
		home, err := location.NewStatic(*conf.HomeLocation)
		if err == nil {
			err = coord.Attach(ctx, home)
		}
		if err != nil {
			appLog.Error("failed to attach home location", err)
		}
	}

	if flags.once {
		os.Exit(runOnce(coord))
	}

	feed := location.NewFeed(16)
	if err := coord.Attach(ctx, feed); err != nil {
		appLog.Error("failed to start location feed", err)
		os.Exit(1)
	}
	defer feed.Stop()

	// A home location already triggered the first load.
	if conf.HomeLocation == nil {
		coord.LoadInitial()
	}

	var sched *scheduler.Scheduler
	if conf.RefreshCron != "" {
		sched, err = scheduler.New(conf.RefreshCron, loc, coord.LoadInitial)
		if err != nil {
			appLog.Error("failed to create scheduler", err)
			os.Exit(1)
		}
		sched.Start()
		appLog.Info("next refresh", "at", sched.Next().Format(time.RFC3339))
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, coord, feed, loc).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen, "debug", flags.debug)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if err != nil {
			appLog.Error("HTTP server failed", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	stop()
	coord.Wait()

	appLog.Info("runon exiting")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// buildSource picks the backend API client or the ICS feed reader.
func buildSource(conf *config.Config, loc *time.Location) search.EventSource {
	httpClient := &http.Client{Timeout: conf.Timeout()}

	if conf.Source == config.SourceICS {
		cacheDir := conf.ICSCacheDir
		if cacheDir != "" {
			if abs, err := filepath.Abs(cacheDir); err == nil {
				cacheDir = abs
			}
		}
		return ics.NewSource(
			ics.NewFetcher(cacheDir, httpClient),
			conf.ICS,
			ics.WithLocation(loc),
			ics.WithHorizon(conf.Horizon(), conf.Backfill()),
			ics.WithRadiusKm(conf.SearchRadiusKm),
		)
	}

	opts := []api.Option{api.WithHTTPClient(httpClient)}
	if conf.API.Token != "" {
		opts = append(opts, api.WithToken(conf.API.Token))
	}
	return api.NewClient(conf.API.BaseURL, opts...)
}

// runOnce performs a single load, prints the resulting state as JSON and
// returns the process exit code.
func runOnce(coord *search.Coordinator) int {
	// Without a home location nothing has been issued yet.
	if coord.Snapshot().KnownLocation == nil {
		coord.LoadInitial()
	}
	coord.Wait()

	st := coord.Snapshot()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		appLog.Error("failed to write state", err)
		return 1
	}
	if st.Error != "" {
		return 1
	}
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./config.yaml", "Path to config file")
	flag.StringVar(&cfg.envPath, "env", ".env", "Path to an optional .env file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Load events once, print the state as JSON and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
