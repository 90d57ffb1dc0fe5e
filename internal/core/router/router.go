// Package router holds the JSON handlers of the HTTP API.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/ortho"
	"github.com/mohammed-shakir/catastro-tool/internal/overlay"
	"github.com/mohammed-shakir/catastro-tool/internal/refcat"
)

const maxBody = 1 << 20

type Runner interface {
	Process(ctx context.Context, raw string) model.RunResult
	Batch(ctx context.Context, inputs []string) map[string]model.RunResult
}

type ReferenceLister interface {
	References() ([]string, error)
}

type LayerCatalog interface {
	Info() (overlay.CatalogInfo, error)
}

type OrtophotoGenerator interface {
	Generate(ctx context.Context, raw string) ([]ortho.Ortophoto, error)
}

type ProcessRequest struct {
	Reference string `json:"reference" validate:"required,max=64"`
}

type BatchRequest struct {
	References []string `json:"references" validate:"required,min=1,dive,required,max=64"`
}

type BatchResponse struct {
	Status  string                     `json:"status"`
	Total   int                        `json:"total"`
	Success int                        `json:"success"`
	Results map[string]model.RunResult `json:"results"`
}

type OrtophotoResponse struct {
	Status     string            `json:"status"`
	Ortophotos []ortho.Ortophoto `json:"ortophotos"`
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func HandleProcess(log *slog.Logger, run Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProcessRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		res := run.Process(r.Context(), req.Reference)
		log.InfoContext(r.Context(), "process request done",
			"reference", res.Reference, "status", res.Status, "run_id", res.RunID)
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleBatch runs references sequentially within the request; maxBatch
// bounds how long a single request may hold the pipeline.
func HandleBatch(log *slog.Logger, run Runner, maxBatch int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BatchRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if maxBatch > 0 && len(req.References) > maxBatch {
			writeError(w, http.StatusBadRequest,
				fmt.Errorf("too many references: %d (max %d)", len(req.References), maxBatch))
			return
		}

		results := run.Batch(r.Context(), req.References)
		out := BatchResponse{Status: "ok", Total: len(results), Results: results}
		for _, res := range results {
			if res.Status == model.StatusSuccess {
				out.Success++
			}
		}
		log.InfoContext(r.Context(), "batch request done", "total", out.Total, "success", out.Success)
		writeJSON(w, http.StatusOK, out)
	}
}

func HandleReferences(l ReferenceLister) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		refs, err := l.References()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if refs == nil {
			refs = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"total": len(refs), "references": refs})
	}
}

// HandleLayers reports the local layer catalog. cat may be nil when overlay
// analysis is disabled.
func HandleLayers(cat LayerCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if cat == nil {
			writeJSON(w, http.StatusOK, overlay.CatalogInfo{Layers: map[string]overlay.FolderInfo{}})
			return
		}
		info, err := cat.Info()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// HandleOrtophotos renders the multi-scale local views of one reference.
func HandleOrtophotos(log *slog.Logger, gen OrtophotoGenerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProcessRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		out, err := gen.Generate(r.Context(), req.Reference)
		switch {
		case errors.Is(err, refcat.ErrEmptyReference):
			writeError(w, http.StatusBadRequest, err)
			return
		case errors.Is(err, ortho.ErrNoCoordinates):
			writeError(w, http.StatusBadGateway, err)
			return
		case err != nil:
			log.ErrorContext(r.Context(), "ortophotos failed", "reference", req.Reference, "err", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if out == nil {
			out = []ortho.Ortophoto{}
		}
		log.InfoContext(r.Context(), "ortophotos generated", "reference", req.Reference, "count", len(out))
		writeJSON(w, http.StatusOK, OrtophotoResponse{Status: "success", Ortophotos: out})
	}
}

func decode(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("unsupported content type %q", ct)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Status: "error", Message: err.Error()})
}
