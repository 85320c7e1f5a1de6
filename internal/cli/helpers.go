package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/foundrydev/foundry/internal/config"
	"github.com/foundrydev/foundry/internal/db"
	"github.com/foundrydev/foundry/internal/events"
	"github.com/foundrydev/foundry/internal/orchestrator"
	"github.com/foundrydev/foundry/internal/truth"
)

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	warnMark = color.New(color.FgYellow).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
)

func successf(format string, args ...any) {
	fmt.Printf("%s %s\n", okMark("✓"), fmt.Sprintf(format, args...))
}

func failf(format string, args ...any) {
	fmt.Printf("%s %s\n", failMark("✗"), fmt.Sprintf(format, args...))
}

func warnf(format string, args ...any) {
	fmt.Printf("%s %s\n", warnMark("!"), fmt.Sprintf(format, args...))
}

// printJSON renders v as indented JSON on stdout, for --json output.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadConfig honors the global --config flag.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFile(cfgFile)
	}
	return config.Load()
}

// openCore opens the truth store and assembles a workflow core without
// background loops, for one-shot commands. The returned closer must be
// called before exit.
func openCore() (*orchestrator.Core, *config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	var store *db.Store
	switch cfg.Database.Driver {
	case "postgres":
		store, err = db.OpenPostgres(cfg.Database.Postgres.DSN())
	default:
		store, err = db.Open(cfg.Database.Path)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open truth store: %w", err)
	}

	pub := events.NewMemoryPublisher()
	ts := truth.New(store, truth.WithPublisher(pub))
	core := orchestrator.New(ts, pub, cfg, nil)
	return core, cfg, func() { _ = ts.Close() }, nil
}
