// Command gridwatch runs the live electricity-theft monitoring dashboard:
// it polls the detection backend, keeps a bounded rolling history with
// summary statistics, and serves the local web dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gridsentry/gridwatch/internal/config"
	"github.com/gridsentry/gridwatch/internal/dashboard"
	"github.com/gridsentry/gridwatch/internal/detect"
	"github.com/gridsentry/gridwatch/internal/monitor"
	"github.com/gridsentry/gridwatch/internal/prefs"
	"github.com/gridsentry/gridwatch/internal/telemetry"
	"github.com/gridsentry/gridwatch/internal/version"
)

var (
	listen      = flag.String("listen", "", "Dashboard listen address (overrides config)")
	backendURL  = flag.String("backend", "", "Detection backend base URL (overrides config and GRIDWATCH_BACKEND_URL)")
	configPath  = flag.String("config", "", "Path to JSON config file")
	prefsPath   = flag.String("prefs", "", "Path to the preference database (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridwatch %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// .env is optional; flags and the config file take precedence.
	if err := godotenv.Load(); err == nil {
		log.Print("loaded environment from .env")
	}

	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	backend := cfg.GetBackendURL()
	if env := os.Getenv("GRIDWATCH_BACKEND_URL"); env != "" {
		backend = env
	}
	if *backendURL != "" {
		backend = *backendURL
	}
	addr := cfg.GetListen()
	if *listen != "" {
		addr = *listen
	}
	prefsFile := cfg.GetPrefsPath()
	if *prefsPath != "" {
		prefsFile = *prefsPath
	}

	telemetry.InitMetrics()

	store, err := prefs.Open(prefsFile)
	if err != nil {
		log.Fatalf("failed to open preference store: %v", err)
	}
	defer store.Close()

	client := detect.NewClient(backend)
	stats := monitor.NewStatsTracker()
	engine := monitor.NewEngine(monitor.EngineConfig{
		Backend:         client,
		PollInterval:    cfg.GetPollInterval(),
		HistoryCapacity: cfg.GetHistoryCapacity(),
		Stats:           stats,
	})

	server := dashboard.NewServer(dashboard.ServerConfig{
		Engine: engine,
		Prefs:  store,
		Listen: addr,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Startup probe; afterwards reachability is inferred from each fetch.
	if client.Probe(ctx) {
		log.Printf("detection backend reachable at %s", backend)
		engine.SetConnected(true)
	} else {
		log.Printf("detection backend unreachable at %s; polling will retry", backend)
		engine.SetConnected(false)
	}

	// uptime counter routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		stats.RunUptime(ctx)
		log.Print("uptime routine terminated")
	}()

	// Begin in normal mode and start polling. A failed initial switch is not
	// fatal: the dashboard stays up and the user can retry from the UI.
	if err := engine.SwitchMode(ctx, monitor.ModeNormal); err != nil {
		log.Printf("initial mode switch failed: %v", err)
		engine.Start()
	}
	defer engine.Stop()

	// dashboard server routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Start(ctx); err != nil {
			log.Printf("dashboard server error: %v", err)
		}
		log.Print("dashboard routine terminated")
	}()

	wg.Wait()
	log.Print("Graceful shutdown complete")
}
