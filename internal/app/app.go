// Package app assembles the server: logging, tracing, the map, the hub, hot
// reload, and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tilewalk/server/internal/game"
	servernet "tilewalk/server/internal/net"
	"tilewalk/server/internal/observability"
	"tilewalk/server/internal/sim"
	"tilewalk/server/internal/telemetry"
	"tilewalk/server/internal/world"
	"tilewalk/server/logging"
	loggingSinks "tilewalk/server/logging/sinks"
)

// Config carries process-level settings resolved by cmd/server.
type Config struct {
	Addr          string
	ClientDir     string
	MapFile       string
	TickRate      int
	SearchBudget  int
	JSONLogPath   string
	Logger        telemetry.Logger
	Observability observability.Config
}

// Run starts the server and blocks until the HTTP listener fails or ctx is
// cancelled.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	router, closeRouter, err := buildRouter(cfg)
	if err != nil {
		return err
	}
	defer closeRouter(ctx, telemetryLogger)

	if telemetry.TracingConfigured() {
		shutdown, err := telemetry.SetupTracing(ctx)
		if err != nil {
			telemetryLogger.Printf("tracing disabled: %v", err)
		} else {
			defer func() {
				if terr := shutdown(context.Background()); terr != nil {
					telemetryLogger.Printf("failed to shut down tracing: %v", terr)
				}
			}()
		}
	}

	def, err := loadDefinition(cfg.MapFile)
	if err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	telemetryLogger.Printf("loaded map %q (%dx%d)", def.Name, def.Width, def.Height)

	metrics := logging.NewMetrics()
	worldState, err := game.NewWorld(def, game.WorldConfig{
		SearchBudget: cfg.SearchBudget,
		Tracer:       telemetry.Tracer("game"),
	}, sim.Deps{
		Logger:    telemetryLogger,
		Metrics:   telemetry.WrapMetrics(metrics),
		Clock:     logging.SystemClock{},
		RNG:       rand.New(rand.NewSource(time.Now().UnixNano())),
		Publisher: router,
	})
	if err != nil {
		return err
	}

	hubCfg := game.DefaultHubConfig()
	if cfg.TickRate > 0 {
		hubCfg.Loop.TickRate = cfg.TickRate
	}
	hub := game.NewHub(worldState, hubCfg)

	stop := make(chan struct{})
	go hub.RunSimulation(stop)
	defer close(stop)

	if cfg.MapFile != "" {
		stopWatch, err := watchMapFile(cfg.MapFile, hub, telemetryLogger)
		if err != nil {
			telemetryLogger.Printf("map hot reload disabled: %v", err)
		} else {
			defer stopWatch()
		}
	}

	clientDir := cfg.ClientDir
	if clientDir == "" {
		clientDir = filepath.Clean(filepath.Join(".", "client"))
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir:     clientDir,
		Logger:        telemetryLogger,
		Metrics:       metrics,
		Observability: cfg.Observability,
	})

	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	telemetryLogger.Printf("server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func buildRouter(cfg Config) (*logging.Router, func(context.Context, telemetry.Logger), error) {
	logConfig := logging.DefaultConfig()
	namedSinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)},
	}

	var jsonFile *os.File
	if cfg.JSONLogPath != "" {
		file, err := os.OpenFile(cfg.JSONLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open json log: %w", err)
		}
		jsonFile = file
		logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSONSink(file, logConfig.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, namedSinks)
	if err != nil {
		if jsonFile != nil {
			_ = jsonFile.Close()
		}
		return nil, nil, fmt.Errorf("construct logging router: %w", err)
	}

	closeFn := func(ctx context.Context, logger telemetry.Logger) {
		if cerr := router.Close(ctx); cerr != nil && logger != nil {
			logger.Printf("failed to close logging router: %v", cerr)
		}
		if jsonFile != nil {
			_ = jsonFile.Close()
		}
	}
	return router, closeFn, nil
}

func loadDefinition(path string) (*world.Definition, error) {
	if path == "" {
		return world.DefaultDefinition()
	}
	return world.LoadDefinitionFile(path)
}

// watchMapFile reloads and re-stages the map definition whenever the backing
// file changes. Invalid documents are logged and the running map kept.
func watchMapFile(path string, hub *game.Hub, logger telemetry.Logger) (func(), error) {
	watcher, err := world.NewWatcher(filepath.Dir(path))
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	go func() {
		for {
			select {
			case changed, ok := <-watcher.Events:
				if !ok {
					return
				}
				changedAbs, err := filepath.Abs(changed)
				if err != nil || changedAbs != abs {
					continue
				}
				def, err := world.LoadDefinitionFile(path)
				if err != nil {
					logger.Printf("map reload rejected: %v", err)
					continue
				}
				hub.QueueMapReload(def)
				logger.Printf("map reload staged from %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("map watcher error: %v", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
