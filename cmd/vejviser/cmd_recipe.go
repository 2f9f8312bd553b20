package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"km24vejviser/internal/service"
)

var recipeStream bool

var recipeCmd = &cobra.Command{
	Use:   "recipe <goal>",
	Short: "Generate a recipe for a goal and print it as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecipe,
}

func init() {
	recipeCmd.Flags().BoolVar(&recipeStream, "stream", false, "print stage events to stderr")
}

func runRecipe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	a.warm(ctx)

	var emit service.Emitter
	if recipeStream {
		emit = func(e service.Event) {
			fmt.Fprintf(os.Stderr, "[%3d%%] %-9s %s\n", e.Progress, e.Stage, e.Message)
		}
	}
	res, err := a.service.GenerateRecipe(ctx, strings.Join(args, " "), emit)
	if err != nil {
		return err
	}
	return printJSON(res)
}
