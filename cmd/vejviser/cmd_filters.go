package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var filterModules []string

var filtersCmd = &cobra.Command{
	Use:   "filters <goal>",
	Short: "Recommend KM24 filters for a goal",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFilters,
}

func init() {
	filtersCmd.Flags().StringSliceVar(&filterModules, "module", nil, "module title to fetch concrete values for (repeatable)")
}

func runFilters(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	a.warm(ctx)

	goal := strings.Join(args, " ")
	out := map[string]any{
		"goal":            goal,
		"recommendations": a.filters.RecommendWithValues(ctx, goal, filterModules),
	}
	if len(filterModules) == 1 {
		out["module_specific"] = a.filters.ModuleSpecific(ctx, goal, filterModules[0])
	}
	return printJSON(out)
}
