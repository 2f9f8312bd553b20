package partmap

import (
	"context"
	"fmt"
	"strings"

	"km24vejviser/internal/logger"
	"km24vejviser/internal/util/jsonutil"
)

const (
	DefaultLookbackDays = 30
	StepsURL            = "https://km24.dk/api/steps/main"
	APIKeyPlaceholder   = "YOUR_API_KEY"
)

// StepJSON is the body accepted by POST /api/steps/main.
type StepJSON struct {
	Name           string `json:"name"`
	ModuleID       int    `json:"moduleId"`
	LookbackDays   int    `json:"lookbackDays"`
	OnlyActive     bool   `json:"onlyActive"`
	OnlySubscribed bool   `json:"onlySubscribed"`
	Parts          []Part `json:"parts"`
}

// StepInput is the part of a recipe step needed to build its StepJSON.
type StepInput struct {
	Title        string              `json:"title"`
	ModuleID     int                 `json:"module_id"`
	LookbackDays int                 `json:"lookback_days,omitempty"`
	Filters      map[string][]string `json:"filters"`
}

// FilterMapper is satisfied by *Mapper.
type FilterMapper interface {
	MapFilters(ctx context.Context, moduleID int, filters map[string][]string) ([]Part, []string)
}

type StepGenerator struct {
	mapper FilterMapper
	log    *logger.Logger
}

func NewStepGenerator(mapper FilterMapper, log *logger.Logger) *StepGenerator {
	if log == nil {
		log = logger.Nop()
	}
	return &StepGenerator{mapper: mapper, log: log.With("component", "step_generator")}
}

// Build assembles a step from already mapped parts.
func Build(in StepInput, parts []Part) StepJSON {
	name := in.Title
	if name == "" {
		name = fmt.Sprintf("Step for module %d", in.ModuleID)
	}
	lookback := in.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	if parts == nil {
		parts = []Part{}
	}
	return StepJSON{
		Name:         name,
		ModuleID:     in.ModuleID,
		LookbackDays: lookback,
		Parts:        parts,
	}
}

// Generate maps the step's filters and builds its StepJSON.
func (g *StepGenerator) Generate(ctx context.Context, in StepInput) (StepJSON, []string) {
	parts, warnings := g.mapper.MapFilters(ctx, in.ModuleID, in.Filters)
	step := Build(in, parts)
	g.log.Debug("step json generated", "module_id", in.ModuleID, "parts", len(parts), "warnings", len(warnings))
	return step, warnings
}

// Batch generates steps for every input that has a module id. Inputs
// without one are skipped with a warning.
func (g *StepGenerator) Batch(ctx context.Context, inputs []StepInput) ([]StepJSON, []string) {
	steps := []StepJSON{}
	var warnings []string
	for _, in := range inputs {
		if in.ModuleID <= 0 {
			warnings = append(warnings, fmt.Sprintf("Step '%s' missing module_id, skipped", in.Title))
			continue
		}
		step, w := g.Generate(ctx, in)
		steps = append(steps, step)
		warnings = append(warnings, w...)
	}
	g.log.Info("step batch generated", "steps", len(steps), "inputs", len(inputs))
	return steps, warnings
}

// CurlCommand renders a shell command that creates step on the platform.
// The body is indented JSON with single quotes escaped for the shell.
func CurlCommand(step StepJSON, apiKey string) (string, error) {
	if apiKey == "" {
		apiKey = APIKeyPlaceholder
	}
	body, err := jsonutil.MarshalNoEscapeIndent(step, "", "  ")
	if err != nil {
		return "", err
	}
	escaped := strings.ReplaceAll(string(body), "'", `'\''`)
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X POST %s \\\n", StepsURL)
	fmt.Fprintf(&b, "  -H \"X-API-Key: %s\" \\\n", apiKey)
	b.WriteString("  -H \"Content-Type: application/json\" \\\n")
	fmt.Fprintf(&b, "  -d '%s'", escaped)
	return b.String(), nil
}
