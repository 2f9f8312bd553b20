// Package service runs the recipe pipeline: generate, normalize, check
// modules, recommend filters, enrich, attach platform step JSON and
// validate. Each stage reports progress through an Emitter.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"km24vejviser/internal/filters"
	"km24vejviser/internal/km24"
	"km24vejviser/internal/logger"
	"km24vejviser/internal/modules"
	"km24vejviser/internal/partmap"
	"km24vejviser/internal/recipe"
)

// Pipeline stages in execution order.
const (
	StageGenerate  = "generate"
	StageNormalize = "normalize"
	StageModules   = "modules"
	StageFilters   = "filters"
	StageEnrich    = "enrich"
	StageSteps     = "steps"
	StageValidate  = "validate"
	StageDone      = "done"
	StageError     = "error"
)

var stageProgress = map[string]int{
	StageGenerate:  10,
	StageNormalize: 40,
	StageModules:   55,
	StageFilters:   65,
	StageEnrich:    75,
	StageSteps:     85,
	StageValidate:  95,
	StageDone:      100,
}

// ErrGeneration wraps every failure that prevents a recipe from being built.
var ErrGeneration = errors.New("recipe generation failed")

type Event struct {
	Stage    string `json:"stage"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// Emitter receives stage events. It is called from the request goroutine.
type Emitter func(Event)

type Generator interface {
	Generate(ctx context.Context, goal string, modules []string) (map[string]any, error)
}

type Catalog interface {
	recipe.ModuleResolver
	Modules() []km24.Module
	EnsureModules(ctx context.Context) error
}

type ModuleChecker interface {
	ValidateModules(ctx context.Context, names []string) modules.Result
}

type FilterRecommender interface {
	RecommendWithValues(ctx context.Context, goal string, modules []string) []filters.Recommendation
}

type StepBuilder interface {
	Generate(ctx context.Context, in partmap.StepInput) (partmap.StepJSON, []string)
}

type Enricher interface {
	Enrich(r *recipe.Recipe, goal string)
}

type Deps struct {
	Generator Generator
	Catalog   Catalog
	Modules   ModuleChecker
	Filters   FilterRecommender
	Steps     StepBuilder
	Enricher  Enricher
	Logger    *logger.Logger
}

type Service struct {
	d          Deps
	normalizer *recipe.Normalizer
	log        *logger.Logger
}

func New(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	var resolver recipe.ModuleResolver
	if d.Catalog != nil {
		resolver = d.Catalog
	}
	return &Service{
		d:          d,
		normalizer: recipe.NewNormalizer(resolver, log),
		log:        log.With("component", "service"),
	}
}

// Result is the recipe plus the side information gathered while building it.
// Recipe fields are inlined at the top level when encoded.
type Result struct {
	*recipe.Recipe
	RecipeID              string                   `json:"recipe_id"`
	Goal                  string                   `json:"goal"`
	GeneratedAt           time.Time                `json:"generated_at"`
	FilterRecommendations []filters.Recommendation `json:"filter_recommendations"`
	ModuleValidation      *modules.Result          `json:"module_validation,omitempty"`
}

// GenerateRecipe builds a recipe for goal. The only errors are an empty
// goal, generator failure after retries and unreadable generator output.
// Validation problems never fail the call; they are listed in
// validation_warnings.
func (s *Service) GenerateRecipe(ctx context.Context, goal string, emit Emitter) (*Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	goal = strings.TrimSpace(goal)
	id := uuid.NewString()
	log := s.log.With("recipe_id", id)
	stage := func(name, msg string) {
		log.Debug("pipeline stage", "stage", name)
		emit(Event{Stage: name, Message: msg, Progress: stageProgress[name]})
	}
	fail := func(err error) (*Result, error) {
		log.Error("recipe generation failed", "error", err)
		emit(Event{Stage: StageError, Message: err.Error()})
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if goal == "" {
		return fail(errors.New("goal is empty"))
	}

	stage(StageGenerate, "Generating recipe")
	raw, err := s.d.Generator.Generate(ctx, goal, s.moduleTitles(ctx))
	if err != nil {
		return fail(err)
	}
	if ok, problems := recipe.ValidateRaw(raw); !ok {
		log.Info("generator output needs repair", "problems", len(problems))
	}

	stage(StageNormalize, "Normalizing recipe")
	r, err := s.normalizer.Normalize(raw, goal)
	if err != nil {
		return fail(err)
	}
	res := &Result{Recipe: r, RecipeID: id, Goal: goal, GeneratedAt: time.Now().UTC()}

	stage(StageModules, "Checking modules and filters")
	names := stepModules(r)
	var check modules.Result
	var recs []filters.Recommendation
	var g errgroup.Group
	if s.d.Modules != nil {
		g.Go(func() error {
			check = s.d.Modules.ValidateModules(ctx, names)
			return nil
		})
	}
	if s.d.Filters != nil {
		g.Go(func() error {
			recs = s.d.Filters.RecommendWithValues(ctx, goal, names)
			return nil
		})
	}
	_ = g.Wait()
	if s.d.Modules != nil {
		res.ModuleValidation = &check
		s.applyModuleCheck(r, check)
	}

	stage(StageFilters, "Applying filter recommendations")
	res.FilterRecommendations = recs
	if res.FilterRecommendations == nil {
		res.FilterRecommendations = []filters.Recommendation{}
	}
	applyRecommendations(r, recs)

	if s.d.Enricher != nil {
		stage(StageEnrich, "Adding guidance")
		s.d.Enricher.Enrich(r, goal)
	}

	if s.d.Steps != nil {
		stage(StageSteps, "Building platform steps")
		s.attachSteps(ctx, r)
	}

	stage(StageValidate, "Validating recipe")
	for _, v := range recipe.Validate(r) {
		r.ValidationWarnings = appendUnique(r.ValidationWarnings, v)
	}
	log.Info("recipe generated", "steps", len(r.Steps), "warnings", len(r.ValidationWarnings))
	stage(StageDone, "Recipe ready")
	return res, nil
}

func (s *Service) moduleTitles(ctx context.Context) []string {
	if s.d.Catalog == nil {
		return nil
	}
	if err := s.d.Catalog.EnsureModules(ctx); err != nil {
		s.log.Warn("module list unavailable, generating without it", "error", err)
	}
	var titles []string
	for _, m := range s.d.Catalog.Modules() {
		titles = append(titles, m.Title)
	}
	return titles
}

func stepModules(r *recipe.Recipe) []string {
	seen := map[string]bool{}
	var names []string
	for _, st := range r.Steps {
		n := st.Module.Name
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		names = append(names, n)
	}
	return names
}

func (s *Service) applyModuleCheck(r *recipe.Recipe, check modules.Result) {
	if check.Error != "" {
		r.ValidationWarnings = appendUnique(r.ValidationWarnings, "Module check unavailable: "+check.Error)
		return
	}
	for _, name := range check.Invalid {
		msg := fmt.Sprintf("Module '%s' does not exist on KM24", name)
		if sugg := check.Suggestions[name]; len(sugg) > 0 {
			msg += fmt.Sprintf(" (did you mean '%s'?)", sugg[0].ModuleTitle)
		}
		r.ValidationWarnings = appendUnique(r.ValidationWarnings, msg)
	}
}

// applyRecommendations copies module-specific value suggestions into steps
// that leave that filter unset.
func applyRecommendations(r *recipe.Recipe, recs []filters.Recommendation) {
	for i := range r.Steps {
		st := &r.Steps[i]
		id, err := strconv.Atoi(st.Module.ID)
		if err != nil {
			continue
		}
		for _, rec := range recs {
			if rec.ModuleID != id || rec.PartName == "" || len(rec.Values) == 0 {
				continue
			}
			if hasFilter(st.Filters, rec.PartName) {
				continue
			}
			if st.Filters == nil {
				st.Filters = map[string][]string{}
			}
			st.Filters[rec.PartName] = append([]string(nil), rec.Values...)
		}
	}
}

func hasFilter(filters map[string][]string, name string) bool {
	for k := range filters {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func (s *Service) attachSteps(ctx context.Context, r *recipe.Recipe) {
	for i := range r.Steps {
		st := &r.Steps[i]
		id, err := strconv.Atoi(st.Module.ID)
		if err != nil || id <= 0 {
			continue
		}
		step, warnings := s.d.Steps.Generate(ctx, partmap.StepInput{
			Title:    st.Title,
			ModuleID: id,
			Filters:  st.Filters,
		})
		for _, w := range warnings {
			r.ValidationWarnings = appendUnique(r.ValidationWarnings, fmt.Sprintf("Step %d: %s", st.StepNumber, w))
		}
		body, err := json.Marshal(step)
		if err != nil {
			continue
		}
		curl, _ := partmap.CurlCommand(step, "")
		st.API = &recipe.APIBlock{
			Endpoint: partmap.StepsURL,
			Method:   "POST",
			Headers: map[string]string{
				"X-API-Key":    partmap.APIKeyPlaceholder,
				"Content-Type": "application/json",
			},
			Body:        body,
			ExampleCurl: curl,
		}
	}
}

func appendUnique(list []string, s string) []string {
	for _, have := range list {
		if have == s {
			return list
		}
	}
	return append(list, s)
}
