// Package server exposes the plugin operations over HTTP. Operations
// are an enumerated command type routed through a fixed dispatch table,
// not name-string reflection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/awss3"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/connector/spaceone"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/datasource"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/pipeline"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/internal/planner"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/api"
	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
	"github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/platform"
)

// Operation identifies one plugin command.
type Operation string

const (
	OpDataSourceInit   Operation = "DataSource.init"
	OpDataSourceVerify Operation = "DataSource.verify"
	OpJobGetTasks      Operation = "Job.get_tasks"
	OpCostGetData      Operation = "Cost.get_data"
)

// routes is the fixed dispatch table from operation to URL path.
var routes = map[Operation]string{
	OpDataSourceInit:   "/api/v1/data-source/init",
	OpDataSourceVerify: "/api/v1/data-source/verify",
	OpJobGetTasks:      "/api/v1/job/get-tasks",
	OpCostGetData:      "/api/v1/cost/get-data",
}

// Server routes plugin operations to the managers.
type Server struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Server {
	return &Server{log: log}
}

// Router assembles the HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(platform.APIKeyMiddleware)

	r.Get("/health", s.handleHealth)
	for op, path := range routes {
		r.Post(path, s.handlerFor(op))
	}

	return r
}

func (s *Server) handlerFor(op Operation) http.HandlerFunc {
	switch op {
	case OpDataSourceInit:
		return s.handleInit
	case OpDataSourceVerify:
		return s.handleVerify
	case OpJobGetTasks:
		return s.handleGetTasks
	case OpCostGetData:
		return s.handleGetData
	default:
		return func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unknown operation", http.StatusNotFound)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "plugin-aws-hyperbilling-cost-datasource",
	})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req api.InitRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := datasource.New(s.log).Init(req.Options)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := datasource.New(s.log).Verify(r.Context(), req.Options, req.SecretData, req.DomainID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	var req api.GetTasksRequest
	if !s.decode(w, r, &req) {
		return
	}

	options := req.Options
	if options == nil {
		options = &api.Options{}
		req.Options = options
	}
	if err := datasource.ValidateOptions(options); err != nil {
		s.writeError(w, err)
		return
	}

	coordinator, err := spaceone.NewClient(req.SecretData, s.log)
	if err != nil && options.TaskType != api.TaskTypeDirectory {
		s.writeError(w, err)
		return
	}

	var lister planner.PrefixLister
	if options.TaskType == api.TaskTypeDirectory {
		store, err := awss3.NewConnector(r.Context(), req.SecretData, s.log)
		if err != nil {
			s.writeError(w, err)
			return
		}
		lister = store
	}

	resp, err := planner.New(coordinator, lister, s.log).GetTasks(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleGetData streams normalized batches as NDJSON: one CostBatch per
// line, ending with the empty-results sentinel.
func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	var req api.GetDataRequest
	if !s.decode(w, r, &req) {
		return
	}

	options := req.Options
	if options == nil {
		options = &api.Options{}
	}
	if err := datasource.ValidateOptions(options); err != nil {
		s.writeError(w, err)
		return
	}

	store, err := awss3.NewConnector(r.Context(), req.SecretData, s.log)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The coordinator session is only needed for the first-sync state
	// transition of identity tasks.
	var coordinator pipeline.Coordinator
	if task := req.TaskOptions; task != nil && task.TaskType != api.TaskTypeDirectory && task.IsSync == "false" {
		client, err := spaceone.NewClient(req.SecretData, s.log)
		if err != nil {
			s.writeError(w, err)
			return
		}
		coordinator = client
	}

	stream, err := pipeline.New(store, coordinator, s.log).Stream(r.Context(), req.TaskOptions, options.IncludeCredit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.streamBatches(r.Context(), w, stream)
}

// streamBatches writes the NDJSON response. A failure before the first
// batch still owns the response and maps to a proper status; once a
// batch is out the error goes in-band, with prior batches left as
// delivered (at-least-once).
func (s *Server) streamBatches(ctx context.Context, w http.ResponseWriter, stream *pipeline.Stream) {
	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	sent := false

	for stream.Next(ctx) {
		if !sent {
			w.Header().Set("Content-Type", "application/x-ndjson")
			sent = true
		}
		if err := encoder.Encode(stream.Batch()); err != nil {
			s.log.Warn().Err(err).Msg("client dropped the cost stream")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	err := stream.Err()
	switch {
	case err == nil:
	case !sent:
		s.writeError(w, err)
	default:
		s.log.Error().Err(err).Msg("cost stream terminated")
		encoder.Encode(errorBody(err))
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.writeError(w, perrors.NewInvalidParameter("request", "invalid JSON body"))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("operation failed")
	s.writeJSON(w, statusFor(err), errorBody(err))
}

func errorBody(err error) api.ErrorResponse {
	var pe *perrors.PluginError
	if errors.As(err, &pe) {
		return api.ErrorResponse{Error: pe.Code, Message: pe.Message}
	}
	return api.ErrorResponse{Error: "INTERNAL", Message: err.Error()}
}

func statusFor(err error) int {
	switch perrors.CodeOf(err) {
	case perrors.ErrCodeRequiredParameter, perrors.ErrCodeInvalidParameter:
		return http.StatusBadRequest
	case perrors.ErrCodeRemoteCall:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
