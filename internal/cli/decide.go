package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/stability/internal/control"
	"github.com/vietddude/stability/internal/core/domain"
)

var (
	decideTier      string
	decideTimeLimit time.Duration
)

var decideCmd = &cobra.Command{
	Use:   "decide [kind] [payload-json-object]",
	Short: "Run one request through the configured components and print the response",
	Args:  cobra.RangeArgs(1, 2),
	Run:   runDecide,
}

func init() {
	decideCmd.Flags().StringVar(&decideTier, "tier", "critical", "requested tier")
	decideCmd.Flags().DurationVar(&decideTimeLimit, "time-limit", time.Second, "request time limit")
	rootCmd.AddCommand(decideCmd)
}

func runDecide(cmd *cobra.Command, args []string) {
	var payload map[string]any
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &payload); err != nil {
			fmt.Printf("Invalid payload: %v\n", err)
			os.Exit(1)
		}
	}
	tier, err := domain.ParseTier(decideTier)
	if err != nil {
		fmt.Printf("Invalid tier: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()

	app, err := control.NewApp(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize stability manager", "error", err)
		os.Exit(1)
	}

	req := domain.NewRequest(args[0], payload, decideTimeLimit)
	req.Tier = tier
	resp := app.Manager().Handle(ctx, req)

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		slog.Warn("Error during shutdown", "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}
