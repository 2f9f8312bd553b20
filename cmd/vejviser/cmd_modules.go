package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"km24vejviser/internal/modules"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Inspect the KM24 module list",
}

var modulesValidateCmd = &cobra.Command{
	Use:   "validate <module>...",
	Short: "Check module names and suggest close matches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return printJSON(a.modules.ValidateModules(cmd.Context(), args))
	},
}

var suggestLimit int

var modulesSuggestCmd = &cobra.Command{
	Use:   "suggest <goal>",
	Short: "Suggest modules for a goal, with cross-module workflows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		goal := strings.Join(args, " ")
		sugg, err := a.modules.SuggestForGoal(cmd.Context(), goal, suggestLimit)
		if err != nil {
			return err
		}
		titles := make([]string, 0, len(sugg))
		for _, s := range sugg {
			titles = append(titles, s.ModuleTitle)
		}
		return printJSON(map[string]any{
			"goal":        goal,
			"keywords":    modules.GoalKeywords(goal),
			"suggestions": sugg,
			"workflows":   modules.Workflows(titles),
		})
	},
}

var modulesCardCmd = &cobra.Command{
	Use:   "card <title>",
	Short: "Show a module card with filters, search examples and filter advice",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		title := strings.Join(args, " ")
		card, ok, err := a.modules.Card(cmd.Context(), title)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("module %q not found", title)
		}
		advice, err := a.modules.Advise(cmd.Context(), card.Title)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"card":            card,
			"search_examples": modules.SearchExamples(card.Title),
			"filter_advice":   advice,
		})
	},
}

func init() {
	modulesSuggestCmd.Flags().IntVar(&suggestLimit, "limit", modules.DefaultLimit, "maximum number of suggestions")
	modulesCmd.AddCommand(modulesValidateCmd, modulesSuggestCmd, modulesCardCmd)
}
