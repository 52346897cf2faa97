package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor   bool
	userFlag  string
	tokenFlag string
)

var rootCmd = &cobra.Command{
	Use:           "optilead",
	Short:         "OptiLead sales dashboard backend",
	Long:          "optilead serves the dashboard API: OpenHermes proxy, call scripts, system prompts, outbound AI calls and lead scoring.",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", os.Getenv("OPTILEAD_USER_ID"), "user id sent to subscription-gated routes")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", os.Getenv("OPTILEAD_USER_TOKEN"), "bearer token sent to subscription-gated routes")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scriptsCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(scoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

// versionString is printed at server start.
func versionString() string {
	return fmt.Sprintf("optilead version %s", version)
}
