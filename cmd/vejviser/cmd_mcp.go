package main

import (
	"github.com/spf13/cobra"

	"km24vejviser/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the recipe tools over MCP stdio",
	Long: `Starts an MCP server over stdin/stdout exposing generate_recipe,
recommend_filters, validate_modules and map_filters. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		a.warm(ctx)
		return mcp.ServeStdio(ctx, a.tools(), a.log)
	},
}

var mcpToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the registered tools",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return printJSON(a.tools().Specs())
	},
}

var mcpCallCmd = &cobra.Command{
	Use:   "call <tool> [json]",
	Short: "Call a tool in-process and print its JSON result",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		var input string
		if len(args) == 2 {
			input = args[1]
		}
		raw, err := parseJSONArg(input)
		if err != nil {
			return err
		}
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		a.warm(ctx)
		out, err := a.tools().Call(ctx, args[0], raw)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

func init() {
	mcpCmd.AddCommand(mcpToolsCmd, mcpCallCmd)
}
