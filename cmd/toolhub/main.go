package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"toolhub/cache"
	"toolhub/config"
	"toolhub/federation"
	"toolhub/host"
	"toolhub/logger"
	"toolhub/middleware"
	"toolhub/monitor"
	"toolhub/storage"
	"toolhub/usage"
)

var version = "1.0.0"

func main() {
	// Environment files are optional; a missing .env is not an error.
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "toolhub",
		Short: "MCP tool host with middleware, caching, and remote federation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to toolhub.yaml (default: ./toolhub.yaml if present)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve tools over stdio and expose the status HTTP listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the toolhub version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// One context governs the whole process lifetime. Signals cancel it;
	// every component tears down from that single point.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(monitor.Options{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		DependencyTTL:  cfg.Monitor.DependencyTTL,
		Logger:         log,
	})

	store := openStorage(ctx, cfg, log)
	registerStorageProbe(mon, store, cfg.Storage.Driver)

	responseCache := cache.New()
	usageTracker := usage.NewTracker(store, cfg.Storage.UsageTTL, log)

	hostServer := host.NewServer(host.Options{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
		Monitor:        mon,
		Cache:          responseCache,
		Usage:          usageTracker,
		Logger:         log,
	})

	gateway := federation.NewGateway(cfg.RemoteServers, hostServer, log)
	registerBuiltinTools(hostServer, mon, gateway)
	registerPeerProbes(mon, cfg.RemoteServers)

	var statusServer *http.Server
	if cfg.Status.Enabled {
		statusServer = monitor.NewHTTPServer(cfg.Status.Addr, mon, monitor.HTTPOptions{
			RequestTimeout: cfg.Status.RequestTimeout,
			EnableCORS:     cfg.Status.EnableCORS,
			Logger:         log,
		})
		go func() {
			log.Info("status listener starting", logger.String("addr", cfg.Status.Addr))
			if err := statusServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status listener failed", err)
			}
		}()
	}

	outcomes := gateway.RegisterAll(ctx)
	for _, outcome := range outcomes {
		if outcome.Status == federation.OutcomeSkipped {
			log.Warn("remote server skipped",
				logger.String("peer", outcome.ID),
				logger.String("reason", outcome.Reason))
			continue
		}
		log.Info("remote server registered",
			logger.String("peer", outcome.ID),
			logger.Int("tools", outcome.ToolCount),
			logger.Int("prompts", outcome.PromptCount))
	}

	var once sync.Once
	teardown := func() {
		once.Do(func() {
			log.Info("shutting down")
			if statusServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := statusServer.Shutdown(shutdownCtx); err != nil {
					log.Warn("status listener shutdown error", logger.Error(err))
				}
			}
			gateway.Dispose()
			if err := store.Disconnect(); err != nil {
				log.Warn("storage disconnect error", logger.Error(err))
			}
			_ = log.Close()
		})
	}
	defer teardown()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("serving tools over stdio",
			logger.String("service", cfg.Service.Name),
			logger.String("version", cfg.Service.Version))
		serveErr <- hostServer.ServeStdio()
	}()

	select {
	case <-ctx.Done():
		teardown()
		return nil
	case err := <-serveErr:
		teardown()
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server stopped: %w", err)
		}
		return nil
	}
}

// openStorage connects the configured driver. A Redis connection failure
// degrades to the in-memory store so the host still comes up.
func openStorage(ctx context.Context, cfg *config.Config, log logger.Logger) storage.Store {
	if cfg.Storage.Driver != "redis" {
		return storage.NewMemory()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := storage.NewRedis(connectCtx, cfg.Storage.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, falling back to in-memory storage", logger.Error(err))
		return storage.NewMemory()
	}
	log.Info("connected to redis storage")
	return store
}

// registerStorageProbe wires the storage driver into dependency health.
func registerStorageProbe(mon *monitor.Monitor, store storage.Store, driver string) {
	redisStore, ok := store.(*storage.RedisStore)
	if !ok {
		mon.RegisterDependency("storage", func(ctx context.Context) (monitor.DependencyResult, error) {
			return monitor.DependencyResult{
				Status:  monitor.StatusUp,
				Details: map[string]any{"driver": "memory"},
			}, nil
		})
		return
	}

	mon.RegisterDependency("storage", func(ctx context.Context) (monitor.DependencyResult, error) {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(probeCtx); err != nil {
			return monitor.DependencyResult{}, err
		}
		return monitor.DependencyResult{
			Status:  monitor.StatusUp,
			Details: map[string]any{"driver": driver},
		}, nil
	})
}

// registerPeerProbes adds a reachability probe per configured remote server.
func registerPeerProbes(mon *monitor.Monitor, peers []federation.RemoteServerConfig) {
	client := &http.Client{Timeout: 5 * time.Second}
	for _, peer := range peers {
		baseURL := peer.BaseURL
		mon.RegisterDependency("peer:"+peer.ID, func(ctx context.Context) (monitor.DependencyResult, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
			if err != nil {
				return monitor.DependencyResult{}, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return monitor.DependencyResult{}, err
			}
			defer resp.Body.Close()

			status := monitor.StatusUp
			if resp.StatusCode >= http.StatusInternalServerError {
				status = monitor.StatusDegraded
			}
			return monitor.DependencyResult{
				Status:  status,
				Details: map[string]any{"httpStatus": resp.StatusCode},
			}, nil
		})
	}
}

// registerBuiltinTools exposes the host's own state as tools so operators
// can inspect it from any MCP client.
func registerBuiltinTools(hostServer *host.Server, mon *monitor.Monitor, gateway *federation.Gateway) {
	hostServer.RegisterTool(host.ToolDefinition{
		Name:        "hub_status",
		Description: "Return the host status snapshot: sessions, tool stats, dependencies, and runtime info.",
		CacheTTL:    5 * time.Second,
	}, func(ctx context.Context, call *middleware.ToolCall) (string, error) {
		mon.EvaluateDependencies(ctx, false)
		data, err := json.MarshalIndent(mon.Snapshot(), "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	})

	hostServer.RegisterTool(host.ToolDefinition{
		Name:        "hub_peers",
		Description: "List federated remote servers and their connection states.",
	}, func(ctx context.Context, call *middleware.ToolCall) (string, error) {
		data, err := json.MarshalIndent(gateway.Peers(), "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
}
