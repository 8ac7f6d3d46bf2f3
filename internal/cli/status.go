package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/stability/internal/core/domain"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show component health from a running stability manager",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "http://localhost:8080", "address of the running server")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(statusAddr + "/health/components")
	if err != nil {
		slog.Error("Failed to query server", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var body struct {
		Components []domain.HealthRecord `json:"components"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Error("Failed to decode health report", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tSCORE\tCIRCUIT\tSUCCESS\tAVG LATENCY")

	for _, rec := range body.Components {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%.0f%%\t%v\n",
			rec.Component, rec.Status, rec.Score, rec.Circuit, rec.SuccessRate*100, rec.AvgLatency)
	}
	_ = w.Flush()
}
