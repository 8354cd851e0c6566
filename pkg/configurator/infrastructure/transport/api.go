package transport

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	applogger "github.com/tss-calculator/go-lib/pkg/application/logger"

	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/model"
	"github.com/tss-calculator/firmware-tools/pkg/configurator/application/service"
)

type CommandResponse struct {
	OperationID uuid.UUID           `json:"operationId"`
	Kind        model.OperationKind `json:"kind"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type resetRequest struct {
	Branch string `json:"branch"`
}

type targetRequest struct {
	Target string `json:"target"`
}

// NewRouter exposes the supervisor commands to the UI. Commands answer as soon as they are
// accepted; outcomes arrive on the event stream.
func NewRouter(
	logger applogger.Logger,
	supervisor service.Supervisor,
	origins OriginPolicy,
	events http.HandlerFunc,
) *mux.Router {
	handler := &commandHandler{logger: logger, supervisor: supervisor}

	r := mux.NewRouter()
	r.Use(origins.Middleware)
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	commands := r.PathPrefix("/api/commands").Subrouter()
	commands.HandleFunc("/setup", handler.command(supervisor.Setup)).Methods(http.MethodPost)
	commands.HandleFunc("/update-tools", handler.command(supervisor.UpdateTools)).Methods(http.MethodPost)
	commands.HandleFunc("/clone-repo", handler.command(supervisor.CloneRepository)).Methods(http.MethodPost)
	commands.HandleFunc("/pull-repo", handler.command(supervisor.PullRepository)).Methods(http.MethodPost)
	commands.HandleFunc("/list-branches", handler.command(supervisor.ListBranches)).Methods(http.MethodPost)
	commands.HandleFunc("/reset-branch", handler.resetBranch).Methods(http.MethodPost)
	commands.HandleFunc("/build-target", handler.targetCommand(supervisor.BuildTarget)).Methods(http.MethodPost)
	commands.HandleFunc("/upload-target", handler.targetCommand(supervisor.UploadTarget)).Methods(http.MethodPost)

	r.HandleFunc("/api/state", handler.state).Methods(http.MethodGet)
	if events != nil {
		r.HandleFunc("/api/events", events).Methods(http.MethodGet)
	}
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	return r
}

type commandHandler struct {
	logger     applogger.Logger
	supervisor service.Supervisor
}

func (handler *commandHandler) command(start func() (*service.Operation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		handler.accepted(w, start)
	}
}

func (handler *commandHandler) targetCommand(start func(target string) (*service.Operation, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request targetRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			handler.fail(w, errors.Wrap(model.ErrInvalidArgument, "invalid request body"))
			return
		}
		handler.accepted(w, func() (*service.Operation, error) {
			return start(request.Target)
		})
	}
}

func (handler *commandHandler) resetBranch(w http.ResponseWriter, r *http.Request) {
	var request resetRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		handler.fail(w, errors.Wrap(model.ErrInvalidArgument, "invalid request body"))
		return
	}
	handler.accepted(w, func() (*service.Operation, error) {
		return handler.supervisor.ResetBranch(request.Branch)
	})
}

func (handler *commandHandler) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, handler.supervisor.Snapshot())
}

func (handler *commandHandler) accepted(w http.ResponseWriter, start func() (*service.Operation, error)) {
	op, err := start()
	if err != nil {
		handler.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, CommandResponse{OperationID: op.ID(), Kind: op.Kind()})
}

func (handler *commandHandler) fail(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		handler.logger.Error(err, "command failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrOperationBusy):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrUnknownReference),
		errors.Is(err, model.ErrUnknownTarget):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
