package llm

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"km24vejviser/internal/logger"
	"km24vejviser/internal/util/jsonutil"
)

//go:embed prompt.md
var recipePrompt string

// Default retry policy for recipe generation.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 2 * time.Second
)

// ErrEmptyGoal is returned before any model call is made.
var ErrEmptyGoal = errors.New("goal is empty")

type GeneratorOptions struct {
	Attempts  int
	BaseDelay time.Duration
	// RPS limits calls per second; zero disables limiting.
	RPS    float64
	Logger *logger.Logger
}

// Generator asks the model for a raw recipe. Each call retries transport
// errors and malformed output with exponential backoff.
type Generator struct {
	client LLMClient
	log    *logger.Logger
}

func NewGenerator(client LLMClient, opts GeneratorOptions) *Generator {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultBaseDelay
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "generator")
	return &Generator{
		client: Wrap(client,
			WithLogging(log),
			RateLimit(opts.RPS, 1),
			Retry(opts.Attempts, opts.BaseDelay, log),
			decodeObject(),
			ExtractJSON(),
		),
		log: log,
	}
}

func (g *Generator) Name() string { return g.client.Name() }

// Generate returns the model's recipe for goal as a loosely typed map.
// modules, when given, restricts the model to those module titles.
func (g *Generator) Generate(ctx context.Context, goal string, modules []string) (map[string]any, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, ErrEmptyGoal
	}
	input := map[string]any{"goal": goal}
	if len(modules) > 0 {
		input["modules"] = modules
	}
	raw, err := g.client.GenerateJSON(ctx, recipePrompt, input)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return out, nil
}

func (g *Generator) Close() error { return g.client.Close() }

// decodeObject normalizes the model's output to a plain JSON object. A
// quoted object is unwrapped and double-escaped text is resolved; anything
// else is malformed, so the retry loop sees it.
func decodeObject() Middleware {
	return func(next LLMClient) LLMClient {
		return &objectOnly{next: next}
	}
}

type objectOnly struct{ next LLMClient }

func (o *objectOnly) Name() string { return o.next.Name() }
func (o *objectOnly) Close() error { return o.next.Close() }

func (o *objectOnly) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	raw, err := o.next.GenerateJSON(ctx, prompt, input)
	if err != nil {
		return nil, err
	}
	obj, err := jsonutil.DecodeObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return jsonutil.MarshalNoEscape(obj)
}
