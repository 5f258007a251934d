package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"llm-fusion/internal/app"
	"llm-fusion/internal/dispatch"
	"llm-fusion/internal/fusion"
	"llm-fusion/internal/httputil"
	"llm-fusion/internal/orchestrator"
	"llm-fusion/internal/queue"
)

type orchestrateRequest struct {
	Prompt        string   `json:"prompt" validate:"required,min=3"`
	SystemPrompt  string   `json:"system_prompt"`
	Providers     []string `json:"providers" validate:"omitempty,min=1,dive,min=1"`
	Strategy      string   `json:"strategy" validate:"omitempty,oneof=best_of vote weighted_merge synthesis"`
	CacheCategory string   `json:"cache_category"`
	Temperature   float64  `json:"temperature" validate:"omitempty,gte=0,lte=1"`
	MaxTokens     int      `json:"max_tokens" validate:"omitempty,min=1,max=128000"`
	Mode          string   `json:"mode" validate:"omitempty,oneof=parallel sequential"`
}

func main() {
	deps, err := app.Build(context.Background())
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	r := httputil.NewRouter(deps.Log)

	r.Post("/api/orchestrate", orchestrateHandler(deps))
	r.Post("/api/orchestrate/async", asyncHandler(deps))
	r.Get("/api/providers", providersHandler(deps))
	r.Get("/api/cache/stats", cacheStatsHandler(deps))
	r.Post("/api/cache/clear", cacheClearHandler(deps))
	r.Post("/api/documents/upload", uploadHandler(deps))
	r.Get("/api/documents", listDocumentsHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	addr := fmt.Sprintf(":%d", deps.Config.Port)
	deps.Log.Info("gateway listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		deps.Log.Error("server failed", "err", err)
	}
}

func decodeOrchestrate(deps app.Deps, w http.ResponseWriter, r *http.Request) (orchestrator.Request, bool) {
	var req orchestrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
		return orchestrator.Request{}, false
	}
	if err := httputil.Validator.Struct(&req); err != nil {
		httputil.ValidationError(deps.Log, w, err)
		return orchestrator.Request{}, false
	}

	providers := req.Providers
	if len(providers) == 0 {
		// Default to every usable provider, in registration order.
		for _, p := range deps.Registry.ListAvailable() {
			providers = append(providers, p.ID)
		}
	}

	return orchestrator.Request{
		Prompt:        req.Prompt,
		SystemPrompt:  req.SystemPrompt,
		Providers:     providers,
		Strategy:      fusion.Strategy(req.Strategy),
		CacheCategory: req.CacheCategory,
		Temperature:   req.Temperature,
		MaxTokens:     req.MaxTokens,
		Mode:          dispatch.Mode(req.Mode),
	}, true
}

func orchestrateHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeOrchestrate(deps, w, r)
		if !ok {
			return
		}

		resp, err := deps.Orchestrator.Orchestrate(r.Context(), req)
		if err != nil {
			status := http.StatusBadGateway
			if isCallerError(err) {
				status = http.StatusBadRequest
			}
			httputil.Fail(deps.Log, w, err.Error(), err, status)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"result":     resp.Result,
			"cached":     resp.Cached,
			"elapsed_ms": resp.Elapsed.Milliseconds(),
		})
	}
}

func asyncHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Queue == nil {
			httputil.Fail(deps.Log, w, "background queue not configured", nil, http.StatusServiceUnavailable)
			return
		}
		req, ok := decodeOrchestrate(deps, w, r)
		if !ok {
			return
		}

		body, err := json.Marshal(req)
		if err != nil {
			httputil.Fail(deps.Log, w, "marshal payload failed", err, http.StatusInternalServerError)
			return
		}
		task := queue.Task{Type: queue.TaskTypeOrchestrate, Payload: body}
		if err := queue.EnqueueWithRetry(r.Context(), deps.Queue, task, 3, 200*time.Millisecond); err != nil {
			httputil.Fail(deps.Log, w, "failed to enqueue orchestration; please retry", err, http.StatusInternalServerError)
			return
		}

		httputil.WriteJSON(w, http.StatusAccepted, map[string]any{
			"status": "queued",
		})
	}
}

func providersHandler(deps app.Deps) http.HandlerFunc {
	type providerView struct {
		ID        string `json:"id"`
		Label     string `json:"label"`
		Model     string `json:"model"`
		Available bool   `json:"available"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var views []providerView
		for _, p := range deps.Registry.ListAvailable() {
			views = append(views, providerView{
				ID:        p.ID,
				Label:     p.Label,
				Model:     p.Model,
				Available: p.Available,
			})
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"providers": views})
	}
}

func cacheStatsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Cache.Stats(r.Context())
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read cache stats", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, stats)
	}
}

func cacheClearHandler(deps app.Deps) http.HandlerFunc {
	type clearRequest struct {
		Categories []string `json:"categories"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req clearRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
				return
			}
		}
		if err := deps.Cache.Clear(r.Context(), req.Categories...); err != nil {
			httputil.Fail(deps.Log, w, "failed to clear cache", err, http.StatusInternalServerError)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"cleared": true})
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.Fail(deps.Log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(deps.Log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext != ".pdf" && ext != ".txt" {
			httputil.Fail(deps.Log, w, "unsupported file type (only PDF and TXT allowed)", nil, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}

		priority := r.FormValue("priority") == "true"
		doc, err := deps.Docs.Add(header.Filename, content, priority)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to store document", err, http.StatusInternalServerError)
			return
		}

		httputil.WriteJSON(w, http.StatusCreated, map[string]any{
			"document_id": doc.ID.String(),
			"name":        doc.Name,
			"priority":    doc.Priority,
		})
	}
}

func listDocumentsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"documents": deps.Docs.List()})
	}
}

// isCallerError reports whether err is a caller mistake rather than an
// upstream failure.
func isCallerError(err error) bool {
	return errors.Is(err, dispatch.ErrUnknownProvider) || errors.Is(err, dispatch.ErrNoProvidersRequested)
}
