// Package main is the entry point for the skill engine
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/KirkDiggler/rpg-skill-engine/cmd/server/client"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "skill-engine",
	Short: "Battle skill engine for chat game bots",
	Long: `The skill engine tracks battle sessions per chat channel: participants, active skills,
phases, shared damage and dice modifiers. It runs as a gRPC server, replays YAML scenarios
offline, or calls a running server.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// a missing .env is fine
		_ = godotenv.Load()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(client.ClientCmd)
}
