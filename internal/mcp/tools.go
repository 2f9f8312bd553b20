package mcp

import (
	"context"
	"errors"
	"strings"

	"km24vejviser/internal/filters"
	"km24vejviser/internal/modules"
	"km24vejviser/internal/partmap"
	"km24vejviser/internal/service"
)

type RecipeService interface {
	GenerateRecipe(ctx context.Context, goal string, emit service.Emitter) (*service.Result, error)
}

// Deps are the collaborators behind the tools. Tools whose collaborator is
// nil are not registered.
type Deps struct {
	Recipes RecipeService
	Filters service.FilterRecommender
	Modules service.ModuleChecker
	Steps   service.StepBuilder
}

type generateRecipeInput struct {
	Goal string `json:"goal" jsonschema:"journalistic goal, e.g. 'Kortlæg asbestsager i byggebranchen'"`
}

type recommendFiltersInput struct {
	Goal    string   `json:"goal" jsonschema:"journalistic goal to recommend filters for"`
	Modules []string `json:"modules,omitempty" jsonschema:"KM24 module titles to fetch concrete values for"`
}

type recommendFiltersOutput struct {
	Recommendations []filters.Recommendation `json:"recommendations"`
	Total           int                      `json:"total"`
}

type validateModulesInput struct {
	Modules []string `json:"modules" jsonschema:"module titles or slugs to check"`
}

type mapFiltersInput struct {
	Title        string              `json:"title,omitempty" jsonschema:"step name"`
	ModuleID     int                 `json:"module_id" jsonschema:"numeric KM24 module id"`
	LookbackDays int                 `json:"lookback_days,omitempty" jsonschema:"lookback window in days (default 30)"`
	Filters      map[string][]string `json:"filters,omitempty" jsonschema:"filter name to values, e.g. Branche: [41.20]"`
}

type mapFiltersOutput struct {
	Step     partmap.StepJSON `json:"step"`
	Warnings []string         `json:"warnings"`
	Curl     string           `json:"curl"`
}

// NewTools builds the registry of recipe tools.
func NewTools(d Deps) *Registry {
	r := NewRegistry()
	if d.Recipes != nil {
		r.Register(newTool("generate_recipe",
			"Generate a complete KM24 investigation recipe for a journalistic goal.",
			func(ctx context.Context, in generateRecipeInput) (any, error) {
				if strings.TrimSpace(in.Goal) == "" {
					return nil, errors.New("goal is required")
				}
				return d.Recipes.GenerateRecipe(ctx, in.Goal, nil)
			}))
	}
	if d.Filters != nil {
		r.Register(newTool("recommend_filters",
			"Recommend KM24 filters (municipalities, branch codes, module values) for a goal.",
			func(ctx context.Context, in recommendFiltersInput) (recommendFiltersOutput, error) {
				if strings.TrimSpace(in.Goal) == "" {
					return recommendFiltersOutput{}, errors.New("goal is required")
				}
				recs := d.Filters.RecommendWithValues(ctx, in.Goal, in.Modules)
				if recs == nil {
					recs = []filters.Recommendation{}
				}
				return recommendFiltersOutput{Recommendations: recs, Total: len(recs)}, nil
			}))
	}
	if d.Modules != nil {
		r.Register(newTool("validate_modules",
			"Check module names against the live KM24 module list and suggest close matches.",
			func(ctx context.Context, in validateModulesInput) (modules.Result, error) {
				if len(in.Modules) == 0 {
					return modules.Result{}, errors.New("modules is required")
				}
				return d.Modules.ValidateModules(ctx, in.Modules), nil
			}))
	}
	if d.Steps != nil {
		r.Register(newTool("map_filters",
			"Map human-readable filters to part ids and build the step JSON for POST /api/steps/main.",
			func(ctx context.Context, in mapFiltersInput) (mapFiltersOutput, error) {
				if in.ModuleID <= 0 {
					return mapFiltersOutput{}, errors.New("module_id must be a positive integer")
				}
				step, warnings := d.Steps.Generate(ctx, partmap.StepInput{
					Title:        in.Title,
					ModuleID:     in.ModuleID,
					LookbackDays: in.LookbackDays,
					Filters:      in.Filters,
				})
				curl, err := partmap.CurlCommand(step, "")
				if err != nil {
					return mapFiltersOutput{}, err
				}
				if warnings == nil {
					warnings = []string{}
				}
				return mapFiltersOutput{Step: step, Warnings: warnings, Curl: curl}, nil
			}))
	}
	return r
}
