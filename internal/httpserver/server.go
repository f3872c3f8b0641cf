// Package httpserver exposes the optimization core over plain
// HTTP/JSON: GET /health and POST /optimize, per the core's minimal
// HTTP surface. Both handlers are synchronous — one request drives one
// Job from Pending to a terminal state before the response is written.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"roc/internal/apperror"
	"roc/internal/domain"
	"roc/internal/jobrunner"
	"roc/internal/logging"
	"roc/internal/metrics"
	"roc/internal/sinks"
	"roc/internal/telemetry"
)

// Version is reported by /health. cmd/roc-svc sets it from the
// configured app version at startup; it stays "dev" otherwise.
var Version = "dev"

// Server bundles the HTTP mux with the store it hands to JobRunner as
// both progress and result sink.
type Server struct {
	http  *http.Server
	store *sinks.MemoryStore
}

// Config controls listener and timeout behavior.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// New builds a Server with /health and /optimize wired in.
func New(cfg Config) *Server {
	store := sinks.NewMemoryStore()
	mux := http.NewServeMux()

	s := &Server{store: store}
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/optimize", s.handleOptimize)
	mux.Handle("/metrics", metrics.Handler())

	s.http = &http.Server{
		Addr:         addr(cfg.Port),
		Handler:      withRequestID(withTracing(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func addr(port int) string {
	if port <= 0 {
		port = 8080
	}
	return ":" + strconv.Itoa(port)
}

// Run starts the listener and blocks until ctx is cancelled, then
// drains in-flight requests within shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logging.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type healthResponse struct {
	Status                   string `json:"status"`
	Version                  string `json:"version"`
	NumericsBackendAvailable bool   `json:"numerics_backend_available"`
}

// handleHealth reports healthy with a true numerics backend: the SQP
// driver and physics model are native Go and carry no optional
// dependency that could be missing at runtime, unlike a bound-to-scipy
// host which can run without its numerics extension built.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:                   "healthy",
		Version:                  Version,
		NumericsBackendAvailable: true,
	})
}

type errorEnvelope struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	requestID, _ := r.Context().Value(requestIDKey{}).(string)
	log := logging.WithRequestID(requestID)

	var req domain.OptimizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("malformed request body", "error", err.Error())
		writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{
			Error:   string(apperror.CodeValidation),
			Message: "request body is not valid JSON: " + err.Error(),
		})
		return
	}

	if err := jobrunner.Validate(req); err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			writeJSON(w, appErr.StatusCode(), errorEnvelope{
				Error:   string(appErr.Code),
				Message: appErr.Message,
				Details: errorDetails(appErr),
			})
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{Error: string(apperror.CodeValidation), Message: err.Error()})
		return
	}

	started := time.Now()
	job := jobrunner.Run(r.Context(), req, s.store, s.store, nil)

	switch job.Status {
	case domain.JobFailed:
		log.Error("job failed", "job_id", job.ID, "error", job.ErrorMessage)
		metrics.Get().RecordJob("failed", string(req.Objective), time.Since(started).Seconds(), job.CurrentIteration, 0)
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{
			Error:   string(apperror.CodeInternal),
			Message: job.ErrorMessage,
		})
		return
	case domain.JobCancelled:
		metrics.Get().RecordJob("cancelled", string(req.Objective), time.Since(started).Seconds(), job.CurrentIteration, 0)
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{
			Error:   string(apperror.CodeCancelled),
			Message: "optimization was cancelled before completion",
		})
		return
	case domain.JobCompleted:
		metrics.Get().RecordJob("completed", string(req.Objective), time.Since(started).Seconds(), job.Result.Iterations, job.Result.FinalObjectiveValue)
		writeJSON(w, http.StatusOK, job.Result)
		s.store.Evict(job.ID)
		return
	default:
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{
			Error:   string(apperror.CodeInternal),
			Message: "job ended in an unexpected non-terminal state",
		})
	}
}

// errorDetails reports the offending field when exactly one is known,
// or every field collected by a ValidationErrors.Err() combined error
// (keyed error_0, error_1, ...) when the request failed on several
// fields at once.
func errorDetails(err *apperror.Error) map[string]string {
	if err.Field != "" {
		return map[string]string{"field": err.Field}
	}
	if len(err.Details) == 0 {
		return nil
	}
	details := make(map[string]string, len(err.Details))
	for k, v := range err.Details {
		details[k] = fmt.Sprintf("%v", v)
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// withTracing starts a server span per request, tagging it with the
// HTTP method, path, and final status code, and marking it errored on
// a 5xx response.
func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.Int("http.status_code", rec.status),
		)
		if rec.status >= 500 {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type requestIDKey struct{}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
