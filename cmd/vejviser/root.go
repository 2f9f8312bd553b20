// vejviser turns journalistic goals into KM24 monitoring recipes.
//
// Usage:
//
//	vejviser serve [--port=:8000]
//	vejviser recipe "<goal>" [--stream]
//	vejviser filters "<goal>" [--module=<title>]...
//	vejviser modules validate|suggest|card ...
//	vejviser cache clear|info
//	vejviser mcp [tools|call <tool> <json>]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

type globalFlags struct {
	env      string
	cacheDir string
	model    string
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "vejviser",
	Short: "Build KM24 monitoring recipes from journalistic goals",
	Long: "vejviser asks a language model for an investigation plan, repairs and validates it\n" +
		"against the live KM24 module list and returns platform-ready monitoring steps.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.env, "env", "", "environment (local|prod), overrides APP_ENV")
	pf.StringVar(&flags.cacheDir, "cache-dir", "", "KM24 response cache directory, overrides KM24_CACHE_DIR")
	pf.StringVar(&flags.model, "model", "", "generator model, overrides VEJVISER_MODEL")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recipeCmd)
	rootCmd.AddCommand(filtersCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
