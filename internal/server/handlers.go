package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ppiankov/clausewise/internal/load"
	"github.com/ppiankov/clausewise/internal/model"
	"github.com/ppiankov/clausewise/internal/pipeline"
	"github.com/ppiankov/clausewise/internal/store"
)

const defaultListLimit = 50

var (
	validate = validator.New()

	errStoreDisabled = errors.New("result store disabled")
)

// AnalyzeTextRequest is the JSON body accepted by POST /v1/analyses
type AnalyzeTextRequest struct {
	Name   string `json:"name,omitempty" validate:"omitempty,max=255"`
	Text   string `json:"text" validate:"required"`
	Format string `json:"format,omitempty" validate:"omitempty,oneof=txt text html htm"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// createAnalysis handles POST /v1/analyses. It accepts a multipart upload
// with a "file" part and optional "format" field, or a JSON text body.
func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		result *model.AnalysisResult
		err    error
	)
	switch mediaType {
	case "multipart/form-data":
		result, err = s.analyzeUpload(r)
	case "application/json", "":
		result, err = s.analyzeJSON(r)
	default:
		s.respondError(w, http.StatusUnsupportedMediaType,
			fmt.Errorf("unsupported content type %q (use multipart/form-data or application/json)", mediaType))
		return
	}
	if err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}

	if s.store != nil {
		if err := s.store.Save(r.Context(), result); err != nil {
			s.respondError(w, http.StatusInternalServerError, fmt.Errorf("save analysis: %w", err))
			return
		}
	}

	w.Header().Set("Location", "/v1/analyses/"+result.ID)
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) analyzeUpload(r *http.Request) (*model.AnalysisResult, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, badRequest(fmt.Errorf("parse upload: %w", err))
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest(fmt.Errorf("missing file part: %w", err))
	}
	defer file.Close()

	return s.analyzer.AnalyzeReader(r.Context(), header.Filename, file, header.Size, r.FormValue("format"))
}

func (s *Server) analyzeJSON(r *http.Request) (*model.AnalysisResult, error) {
	var req AnalyzeTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	if err := validate.Struct(req); err != nil {
		return nil, badRequest(fmt.Errorf("validation error: %w", err))
	}

	if req.Name == "" {
		req.Name = "request"
	}
	if req.Format == "" {
		req.Format = string(model.FormatText)
	}
	return s.analyzer.AnalyzeReader(r.Context(), req.Name, strings.NewReader(req.Text), int64(len(req.Text)), req.Format)
}

// listAnalyses handles GET /v1/analyses?limit=N
func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotImplemented, errStoreDisabled)
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	summaries, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": summaries})
}

// getAnalysis handles GET /v1/analyses/{id}
func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	result, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getEntitiesCSV handles GET /v1/analyses/{id}/entities.csv
func (s *Server) getEntitiesCSV(w http.ResponseWriter, r *http.Request) {
	result, ok := s.lookup(w, r)
	if !ok {
		return
	}
	data, err := pipeline.EntitiesCSV(result)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.ID+"-entities.csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// deleteAnalysis handles DELETE /v1/analyses/{id}
func (s *Server) deleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusNotImplemented, errStoreDisabled)
		return
	}
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*model.AnalysisResult, bool) {
	if s.store == nil {
		s.respondError(w, http.StatusNotImplemented, errStoreDisabled)
		return nil, false
	}
	result, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, statusFor(err), err)
		return nil, false
	}
	return result, true
}

// requestError marks client mistakes that happen before analysis starts
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &requestError{err: err}
}

// statusFor maps an error to its HTTP status
func statusFor(err error) int {
	var (
		maxErr  *http.MaxBytesError
		loadErr *model.LoadError
		segErr  *model.SegmentationError
		reqErr  *requestError
	)
	switch {
	case errors.As(err, &maxErr), errors.Is(err, load.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.As(err, &loadErr), errors.As(err, &segErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Stage: string(model.StageOf(err))})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
