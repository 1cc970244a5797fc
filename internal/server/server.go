package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"mailtriage/internal"
	"mailtriage/internal/pipeline"
)

// Processor is the part of the pipeline the HTTP layer needs.
type Processor interface {
	ProcessUpload(ctx context.Context, raw []byte, sourceName string) (pipeline.Outcome, error)
}

type Server struct {
	addr      string
	processor Processor
	log       *zap.Logger
	router    chi.Router
}

func New(addr string, processor Processor, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{addr: addr, processor: processor, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Post("/process-email", s.handleProcessEmail)
	s.router = r

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// processResponse keeps the success envelope's field order stable.
type processResponse struct {
	EmailSubject         string                        `json:"email_subject"`
	ClassificationResult internal.ClassificationResult `json:"classification_result"`
	ProcessedAt          string                        `json:"processed_at"`
}

func (s *Server) handleProcessEmail(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("email_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email_file is required"})
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".eml") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "only .eml files are supported"})
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read uploaded file"})
		return
	}

	outcome, err := s.processor.ProcessUpload(r.Context(), raw, header.Filename)
	if err != nil {
		s.writeProcessingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		EmailSubject:         outcome.Subject,
		ClassificationResult: outcome.Result,
		ProcessedAt:          outcome.ProcessedAt.Format(time.RFC3339),
	})
}

func (s *Server) writeProcessingError(w http.ResponseWriter, err error) {
	perr := pipeline.AsProcessingError(err)
	s.log.Error("process email failed", zap.String("kind", string(perr.Kind)), zap.Error(err))

	switch perr.Kind {
	case pipeline.ErrModelUnavailable:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": perr.Message})
	case pipeline.ErrMalformedModelOutput:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":        perr.Message,
			"raw_response": perr.Raw,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": perr.Message})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
