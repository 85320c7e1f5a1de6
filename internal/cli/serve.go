package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/foundrydev/foundry/internal/config"
	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/gateway"
	"github.com/foundrydev/foundry/internal/lock"
	"github.com/foundrydev/foundry/internal/metrics"
	"github.com/foundrydev/foundry/internal/orchestrator"
	"github.com/foundrydev/foundry/internal/runtime"
	"github.com/foundrydev/foundry/internal/tool"
	"github.com/foundrydev/foundry/internal/truth"
)

// newServeCmd creates the serve command for the orchestrator server
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator server",
		Long: `Run the orchestrator: the tool gateway, the worker pool, the
stuck-gate scanner, and the metrics endpoint.

Exactly one orchestrator may serve a data directory; a leader lock
refuses a second instance while the first is alive.

Example:
  foundry serve              # listen per config (default :7466)
  foundry serve --port 3000  # listen on a custom port`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cfg *config.Config) error {
	guard := lock.NewGuard(lockDir(cfg), lockOwner())
	if err := guard.Acquire(); err != nil {
		return fmt.Errorf("acquire leader lock: %w", err)
	}
	defer guard.Release()

	var store *db.Store
	var err error
	switch cfg.Database.Driver {
	case "postgres":
		store, err = db.OpenPostgres(cfg.Database.Postgres.DSN())
	default:
		store, err = db.Open(cfg.Database.Path)
	}
	if err != nil {
		return fmt.Errorf("open truth store: %w", err)
	}

	pub := events.NewMemoryPublisher()
	ts := truth.New(store, truth.WithPublisher(pub))
	defer func() { _ = ts.Close() }()

	core := orchestrator.New(ts, pub, cfg, buildRuntime(cfg))
	catalog := tool.NewCatalog(core)
	gw := gateway.New(core, catalog, pub, nil)
	collector := metrics.NewCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	go func() {
		ticker := time.NewTicker(lock.DefaultHeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := guard.Heartbeat(); err != nil {
					fmt.Fprintln(os.Stderr, "leader heartbeat failed:", err)
				}
			}
		}
	}()

	if err := core.Start(ctx); err != nil {
		return err
	}
	defer core.Stop()

	go collector.Run(ctx, pub)

	apiSrv := &http.Server{Addr: cfg.Server.Addr(), Handler: gw.Handler()}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", collector.Handler())
	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr(), Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() {
		fmt.Printf("API listening on %s, metrics on %s\n", apiSrv.Addr, metricsSrv.Addr)
		fmt.Println("Press Ctrl+C to stop")
		errCh <- apiSrv.ListenAndServe()
	}()
	go func() {
		errCh <- metricsSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			cancel()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	return nil
}

// buildRuntime assembles the provider router from configured API keys.
// With no keys the orchestrator runs without an execution bridge.
func buildRuntime(cfg *config.Config) runtime.AgentRuntime {
	var providers []runtime.Provider
	if cfg.Runtime.AnthropicAPIKey != "" {
		providers = append(providers, runtime.NewAnthropicProvider(cfg.Runtime.AnthropicAPIKey))
	}
	if cfg.Runtime.OpenAIAPIKey != "" {
		providers = append(providers, runtime.NewOpenAIProvider(cfg.Runtime.OpenAIAPIKey))
	}
	if len(providers) == 0 {
		return nil
	}
	return runtime.NewRouter(providers...)
}

// lockDir is where the leader file lives: next to the sqlite database,
// or the .foundry directory for postgres deployments.
func lockDir(cfg *config.Config) string {
	if cfg.Database.Driver == "postgres" {
		return config.FoundryDir
	}
	return filepath.Dir(cfg.Database.Path)
}

func lockOwner() string {
	host, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return user + "@" + host
}
