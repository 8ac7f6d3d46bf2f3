package cli

import "github.com/spf13/cobra"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stability manager and its HTTP API",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
