package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/botchat/internal/config"
	"github.com/nextlevelbuilder/botchat/internal/upgrade"
	"github.com/nextlevelbuilder/botchat/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("botchat doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s managed\n", "Mode:")
		checkManagedDB(cfg.Database.PostgresDSN)
	} else {
		fmt.Printf("    %-12s standalone\n", "Mode:")
		path := config.ExpandHome(cfg.Database.SQLitePath)
		fmt.Printf("    %-12s %s", "SQLite:", path)
		if _, err := os.Stat(path); err != nil {
			fmt.Println(" (will be created)")
		} else {
			fmt.Println(" (OK)")
		}
	}

	fmt.Println()
	fmt.Println("  Providers:")
	checkProvider("OpenRouter", cfg.Providers.OpenRouter.APIKey)
	checkProvider("Anthropic", cfg.Providers.Anthropic.APIKey)
	if cfg.Routing.NativeClaude && cfg.Providers.Anthropic.APIKey == "" {
		fmt.Println("    native_claude is set but the Anthropic key is missing")
	}

	fmt.Println()
	fmt.Println("  Events:")
	if cfg.Events.NATSURL != "" {
		fmt.Printf("    %-12s enabled (prefix %s)\n", "NATS:", cfg.Events.SubjectPrefix)
	} else {
		fmt.Printf("    %-12s disabled\n", "NATS:")
	}
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-12s %s via %s\n", "Telemetry:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	} else {
		fmt.Printf("    %-12s disabled\n", "Telemetry:")
	}

	fmt.Println()
	fmt.Println("  Effective config (secrets masked):")
	data, _ := json.MarshalIndent(cfg.MaskedCopy(), "    ", "  ")
	fmt.Printf("    %s\n", data)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkManagedDB(dsn string) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}

	s, err := upgrade.CheckSchema(ctx, db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case s.Dirty:
		fmt.Printf("    %-12s v%d (DIRTY, run: botchat migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-12s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	default:
		fmt.Printf("    %-12s v%d (run: botchat migrate up)\n", "Schema:", s.CurrentVersion)
	}
}

// checkProvider prints whether a key is set without revealing it.
func checkProvider(name, apiKey string) {
	if apiKey == "" {
		fmt.Printf("    %-12s (not configured)\n", name+":")
		return
	}
	masked := "****"
	if len(apiKey) > 8 {
		masked = apiKey[:4] + "****" + apiKey[len(apiKey)-4:]
	}
	fmt.Printf("    %-12s %s\n", name+":", masked)
}
