package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hwvendor/triage-orchestrator/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
