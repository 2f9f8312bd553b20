package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"km24vejviser/internal/cache/disk"
	"km24vejviser/internal/catalog"
	"km24vejviser/internal/config"
	"km24vejviser/internal/enrich"
	"km24vejviser/internal/filters"
	"km24vejviser/internal/km24"
	"km24vejviser/internal/knowledge"
	"km24vejviser/internal/llm"
	"km24vejviser/internal/logger"
	"km24vejviser/internal/mcp"
	"km24vejviser/internal/modules"
	"km24vejviser/internal/partmap"
	"km24vejviser/internal/server"
	"km24vejviser/internal/service"
	"km24vejviser/internal/util/jsonutil"
)

// app holds every long-lived component. Commands build one with newApp and
// release it with close.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	km24      *km24.Client
	catalog   *catalog.Catalog
	knowledge *knowledge.Base
	watcher   *knowledge.SnapshotWatcher
	filters   *filters.Engine
	modules   *modules.Validator
	mapper    *partmap.Mapper
	steps     *partmap.StepGenerator
	generator service.Generator
	llmClient llm.LLMClient
	service   *service.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cfg)

	mode := "dev"
	if cfg.IsProduction() {
		mode = "prod"
	}
	log, err := logger.New(mode)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	store, err := disk.NewEndpointStore(disk.EndpointStoreConfig{Root: cfg.KM24.CacheDir})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", cfg.KM24.CacheDir, err)
	}
	gw := km24.New(km24.Options{
		BaseURL:     cfg.KM24.BaseURL,
		APIKey:      cfg.KM24.APIKey,
		Timeout:     cfg.KM24.Timeout,
		MinInterval: cfg.KM24.MinInterval,
		Store:       store,
		Logger:      log,
	})
	if !gw.Configured() {
		log.Warn("KM24_API_KEY is not set, only cached and fallback data is available")
	}

	a := &app{cfg: cfg, log: log, km24: gw}
	a.catalog = catalog.New(gw, catalog.Options{Logger: log})
	a.knowledge = knowledge.NewBase(gw, knowledge.Options{Snapshot: cfg.KM24.ModuleSnapshot, Logger: log})
	a.filters = filters.NewEngine(a.catalog, a.knowledge, log)
	a.modules = modules.NewValidator(gw, log)
	a.mapper = partmap.NewMapper(gw, partmap.Options{Logger: log})
	a.steps = partmap.NewStepGenerator(a.mapper, log)

	client, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		log.Warn("generator unavailable", "error", err)
		a.generator = unavailableGenerator{err: err}
	} else {
		a.llmClient = client
		a.generator = llm.NewGenerator(client, llm.GeneratorOptions{
			Attempts:  cfg.LLM.MaxAttempts,
			BaseDelay: cfg.LLM.BaseDelay,
			Logger:    log,
		})
	}

	a.service = service.New(service.Deps{
		Generator: a.generator,
		Catalog:   a.catalog,
		Modules:   a.modules,
		Filters:   a.filters,
		Steps:     a.steps,
		Enricher:  enrich.NewEnricher(nil, log),
		Logger:    log,
	})
	return a, nil
}

func applyFlags(cfg *config.Config) {
	if v := strings.TrimSpace(flags.env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(flags.cacheDir); v != "" {
		cfg.KM24.CacheDir = v
	}
	if v := strings.TrimSpace(flags.model); v != "" {
		cfg.LLM.Model = v
	}
}

// warm loads the catalog and the knowledge base. A configured module
// snapshot is the knowledge base's fallback and is watched for edits until
// close.
func (a *app) warm(ctx context.Context) {
	a.catalog.LoadAll(ctx, false)
	if st := a.knowledge.Load(ctx, false); !st.Success {
		a.log.Warn("knowledge base not loaded", "error", st.Error)
	}

	path := a.cfg.KM24.ModuleSnapshot
	if path == "" {
		return
	}
	w, err := knowledge.NewSnapshotWatcher(a.knowledge, path, a.log)
	if err != nil {
		a.log.Warn("snapshot watcher unavailable", "error", err)
		return
	}
	w.OnReload(func(profiles int, err error) {
		if err != nil {
			a.log.Warn("module snapshot reload failed", "error", err)
			return
		}
		a.mapper.Purge()
		a.log.Info("module snapshot reloaded", "profiles", profiles)
	})
	if err := w.Start(ctx); err != nil {
		a.log.Warn("snapshot watcher not started", "error", err)
		w.Stop()
		return
	}
	a.watcher = w
}

func (a *app) handler() *server.Handler {
	return server.NewHandler(server.Deps{
		Recipes: a.service,
		Gateway: a.km24,
		Catalog: a.catalog,
		Filters: a.filters,
		Modules: a.modules,
		Steps:   a.steps,
		Logger:  a.log,
	})
}

func (a *app) tools() *mcp.Registry {
	return mcp.NewTools(mcp.Deps{
		Recipes: a.service,
		Filters: a.filters,
		Modules: a.modules,
		Steps:   a.steps,
	})
}

func (a *app) close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.llmClient != nil {
		_ = a.llmClient.Close()
	}
	a.log.Sync()
}

// unavailableGenerator fails every call with the reason the real generator
// could not be built.
type unavailableGenerator struct{ err error }

func (g unavailableGenerator) Generate(context.Context, string, []string) (map[string]any, error) {
	return nil, g.err
}

func printJSON(v any) error {
	b, err := jsonutil.MarshalNoEscapeIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}

func parseJSONArg(arg string) (json.RawMessage, error) {
	raw := json.RawMessage(strings.TrimSpace(arg))
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("argument is not valid JSON: %s", arg)
	}
	return raw, nil
}
