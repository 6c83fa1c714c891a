// Package server implements the PartForge HTTP API.
//
// The API wraps the conversion pipeline in an upload/convert/download
// flow: clients upload a file, request conversions of it by id, and
// download the converted artifact. All responses are JSON except the
// artifact download itself.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/partforge/partforge/internal/config"
	"github.com/partforge/partforge/pkg/buildinfo"
	"github.com/partforge/partforge/pkg/codec"
	"github.com/partforge/partforge/pkg/errors"
	"github.com/partforge/partforge/pkg/pipeline"
)

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	cfg    config.Config
	pool   *pipeline.Pool
	logger *log.Logger
}

// New creates a server and its upload directory.
func New(cfg config.Config, pool *pipeline.Pool, logger *log.Logger) (*Server, error) {
	if err := os.MkdirAll(cfg.Server.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{cfg: cfg, pool: pool, logger: logger}, nil
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/formats", s.handleFormats)
		r.Post("/upload", s.handleUpload)
		r.Post("/convert", s.handleConvert)
		r.Get("/download/{id}", s.handleDownload)
	})

	return r
}

// logRequests logs each request with method, path, status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).Round(time.Millisecond))
	})
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]codec.Format{
		"input":  codec.InputFormats,
		"output": codec.OutputFormats,
	})
}

// uploadResponse is returned by handleUpload.
type uploadResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.cfg.Server.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = pipeline.MaxInputBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "multipart field %q is required", "file"))
		return
	}
	defer file.Close()

	if err := errors.ValidateUploadName(header.Filename); err != nil {
		writeError(w, err)
		return
	}
	if _, err := codec.FormatFromFilename(header.Filename); err != nil {
		writeError(w, err)
		return
	}

	id := uuid.NewString()
	dst, err := os.Create(s.uploadPath(id))
	if err != nil {
		s.logger.Error("create upload file", "err", err)
		writeError(w, errors.New(errors.ErrCodeInternal, "store upload"))
		return
	}
	defer dst.Close()

	size, err := dst.ReadFrom(file)
	if err != nil {
		s.logger.Error("write upload file", "err", err)
		writeError(w, errors.New(errors.ErrCodeInternal, "store upload"))
		return
	}

	// The original name is needed later for format detection and
	// part classification.
	if err := os.WriteFile(s.uploadPath(id)+".name", []byte(header.Filename), 0644); err != nil {
		s.logger.Error("write upload metadata", "err", err)
		writeError(w, errors.New(errors.ErrCodeInternal, "store upload"))
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		ID:       id,
		Filename: header.Filename,
		Size:     size,
	})
}

// convertRequest is the JSON body accepted by handleConvert.
type convertRequest struct {
	// ID references a previous upload.
	ID string `json:"id"`

	pipeline.Options
}

// convertResponse is returned by handleConvert.
type convertResponse struct {
	DownloadID   string          `json:"download_id,omitempty"`
	OutputFormat codec.Format    `json:"output_format"`
	Report       json.RawMessage `json:"report,omitempty"`
	Cached       bool            `json:"cached"`
	DurationMS   int64           `json:"duration_ms"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid JSON body"))
		return
	}
	if req.ID == "" {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "id is required"))
		return
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "invalid upload id"))
		return
	}

	raw, err := os.ReadFile(s.uploadPath(req.ID))
	if err != nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "upload %s not found", req.ID))
		return
	}
	if name, err := os.ReadFile(s.uploadPath(req.ID) + ".name"); err == nil && req.Options.Filename == "" {
		req.Options.Filename = string(name)
	}

	result, err := s.pool.Convert(r.Context(), raw, req.Options)
	if err != nil {
		s.logger.Warn("conversion failed",
			"upload", req.ID,
			"code", errors.GetCode(err),
			"err", err)
		writeError(w, err)
		return
	}

	resp := convertResponse{
		OutputFormat: result.OutputFormat,
		Cached:       result.CacheInfo.ArtifactHit,
		DurationMS:   durationMS(result.Stats.TotalTime),
	}

	if result.Report != nil {
		data, err := json.Marshal(result.Report)
		if err != nil {
			writeError(w, errors.New(errors.ErrCodeInternal, "encode report"))
			return
		}
		resp.Report = data
	}

	if result.OutputBytes != nil {
		downloadID := uuid.NewString()
		name := downloadID + "." + string(result.OutputFormat)
		if err := os.WriteFile(filepath.Join(s.cfg.Server.UploadDir, name), result.OutputBytes, 0644); err != nil {
			s.logger.Error("store artifact", "err", err)
			writeError(w, errors.New(errors.ErrCodeInternal, "store artifact"))
			return
		}
		resp.DownloadID = name
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := errors.ValidateUploadName(id); err != nil {
		writeError(w, err)
		return
	}

	path := filepath.Join(s.cfg.Server.UploadDir, id)
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, errors.New(errors.ErrCodeNotFound, "artifact %s not found", id))
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(id))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// uploadPath returns the storage path for an upload id.
func (s *Server) uploadPath(id string) string {
	return filepath.Join(s.cfg.Server.UploadDir, id)
}

// contentTypeFor maps an artifact filename to a MIME type.
func contentTypeFor(name string) string {
	f, err := codec.FormatFromFilename(name)
	if err != nil {
		return "application/octet-stream"
	}
	switch f {
	case codec.FormatSVG:
		return "image/svg+xml"
	case codec.FormatOBJ, codec.FormatPLY:
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// =============================================================================
// Responses
// =============================================================================

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// writeJSON writes v as a JSON response with the given status.
// durationMS reports a conversion time in milliseconds, rounded to
// 10ms resolution.
func durationMS(d time.Duration) int64 {
	return d.Round(10 * time.Millisecond).Milliseconds()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error to its HTTP status and writes the JSON
// error envelope. Internal errors surface a generic message.
func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	writeJSON(w, statusFor(code), errorResponse{
		Error: errorBody{
			Kind:    string(code),
			Message: errors.UserMessage(err),
		},
	})
}

// statusFor maps error codes to HTTP status codes.
func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeParse, errors.ErrCodeGeometry:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case errors.ErrCodeSizeLimit:
		return http.StatusRequestEntityTooLarge
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
