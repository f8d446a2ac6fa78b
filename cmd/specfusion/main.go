package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

var noColor = os.Getenv("NO_COLOR") != ""

var rootCmd = &cobra.Command{
	Use:           "specfusion",
	Short:         "Markdown-native search service over third-party open-platform API docs",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// A .env in the working directory is a convenience, not a requirement.
	_ = godotenv.Load()

	rootCmd.AddCommand(serveCmd, syncCmd, listSourcesCmd, addOpenAPICmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
