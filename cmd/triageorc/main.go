// Command triageorc runs the triage orchestrator: an HTTP API that admits
// Issues, queues Tasks for automated analysis, and drives each through the
// rule-select/materialize/pre-extract/agent-run/parse pipeline to a
// terminal AnalysisResult.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "triageorc",
	Short: "Triage orchestrator: automated log analysis for incoming issues",
	Long: `triageorc admits Issues (via HTTP API, chat, or tracker webhook), queues
one Task per Issue, and drives each through rule selection, log
materialization, pre-extraction, agent invocation, and result parsing.

Run "triageorc serve" to start the API server and worker pool.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory (triage.yaml, .env)")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
