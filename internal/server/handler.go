package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"km24vejviser/internal/catalog"
	"km24vejviser/internal/km24"
	"km24vejviser/internal/logger"
	"km24vejviser/internal/partmap"
	"km24vejviser/internal/service"
)

const maxBodyBytes = 1 << 20

type RecipeService interface {
	GenerateRecipe(ctx context.Context, goal string, emit service.Emitter) (*service.Result, error)
}

type Gateway interface {
	Health(ctx context.Context) km24.HealthStatus
	ClearCache(ctx context.Context) km24.ClearResult
}

type Catalog interface {
	Status() catalog.Summary
	LoadAll(ctx context.Context, forceRefresh bool) catalog.Summary
}

// Deps lists the collaborators of Handler. Only Recipes is required; the
// endpoints of a missing collaborator answer 503.
type Deps struct {
	Recipes RecipeService
	Gateway Gateway
	Catalog Catalog
	Filters service.FilterRecommender
	Modules service.ModuleChecker
	Steps   service.StepBuilder
	Logger  *logger.Logger
}

type Handler struct {
	d   Deps
	log *logger.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{d: d, log: log.With("component", "http")}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decodeBody reads a JSON request body into v. An empty body leaves v
// untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" is not configured")
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "km24-vejviser",
		"timestamp": time.Now().UTC(),
	})
}

type generateRequest struct {
	Goal *string `json:"goal"`
}

func (h *Handler) GenerateRecipe(w http.ResponseWriter, r *http.Request) {
	var in generateRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if in.Goal == nil || strings.TrimSpace(*in.Goal) == "" {
		writeError(w, http.StatusUnprocessableEntity, "goal is required")
		return
	}
	res, err := h.d.Recipes.GenerateRecipe(r.Context(), *in.Goal, nil)
	if err != nil {
		h.log.Error("generate recipe failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) KM24Status(w http.ResponseWriter, r *http.Request) {
	if h.d.Gateway == nil {
		unavailable(w, "KM24 gateway")
		return
	}
	writeJSON(w, http.StatusOK, h.d.Gateway.Health(r.Context()))
}

// RefreshCache drops the gateway's disk cache and reloads the catalog.
func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	if h.d.Gateway == nil {
		unavailable(w, "KM24 gateway")
		return
	}
	cleared := h.d.Gateway.ClearCache(r.Context())
	out := map[string]any{"cache": cleared}
	if h.d.Catalog != nil && cleared.Success {
		out["catalog"] = h.d.Catalog.LoadAll(r.Context(), true)
	}
	status := http.StatusOK
	if !cleared.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, out)
}

func (h *Handler) CatalogStatus(w http.ResponseWriter, _ *http.Request) {
	if h.d.Catalog == nil {
		unavailable(w, "filter catalog")
		return
	}
	writeJSON(w, http.StatusOK, h.d.Catalog.Status())
}

type recommendRequest struct {
	Goal    string   `json:"goal"`
	Modules []string `json:"modules"`
}

func (h *Handler) FilterRecommendations(w http.ResponseWriter, r *http.Request) {
	if h.d.Filters == nil {
		unavailable(w, "filter engine")
		return
	}
	var in recommendRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(in.Goal) == "" {
		writeError(w, http.StatusUnprocessableEntity, "goal is required")
		return
	}
	recs := h.d.Filters.RecommendWithValues(r.Context(), in.Goal, in.Modules)
	writeJSON(w, http.StatusOK, map[string]any{
		"goal":            in.Goal,
		"recommendations": recs,
		"total":           len(recs),
	})
}

type validateRequest struct {
	Modules []string `json:"modules"`
}

func (h *Handler) ValidateModules(w http.ResponseWriter, r *http.Request) {
	if h.d.Modules == nil {
		unavailable(w, "module validator")
		return
	}
	var in validateRequest
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(in.Modules) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "modules is required")
		return
	}
	writeJSON(w, http.StatusOK, h.d.Modules.ValidateModules(r.Context(), in.Modules))
}

type stepResponse struct {
	Step     partmap.StepJSON `json:"step"`
	Warnings []string         `json:"warnings"`
	Curl     string           `json:"curl"`
}

func (h *Handler) StepJSON(w http.ResponseWriter, r *http.Request) {
	if h.d.Steps == nil {
		unavailable(w, "step generator")
		return
	}
	var in partmap.StepInput
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if in.ModuleID <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "module_id must be a positive integer")
		return
	}
	step, warnings := h.d.Steps.Generate(r.Context(), in)
	curl, err := partmap.CurlCommand(step, "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, stepResponse{Step: step, Warnings: warnings, Curl: curl})
}
