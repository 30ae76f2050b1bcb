package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vasilii314/taskbroker/account"
	"github.com/vasilii314/taskbroker/auth"
	apperrors "github.com/vasilii314/taskbroker/errors"
	"github.com/vasilii314/taskbroker/task"
)

const msgServerError = "A server error occurred."

// ErrResponse is the body of every failed request.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	Detail         string `json:"detail"`
}

// DetailResponse is the body of a successful lifecycle action.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// MessageResponse is the body of the registration endpoints, holding either
// the created record or a field error mapping.
type MessageResponse struct {
	Message any `json:"message"`
}

// ResponseRequest is the body of POST /tasks/{id}/response. The flag is
// kept raw so that a missing or non-string value reaches the lifecycle
// check instead of failing the decode.
type ResponseRequest struct {
	Response json.RawMessage `json:"response"`
}

// Flag returns the response flag, or "" when it is not a JSON string.
func (rr ResponseRequest) Flag() string {
	var flag string
	if err := json.Unmarshal(rr.Response, &flag); err != nil {
		return ""
	}
	return flag
}

// CreateTaskRequest is the body of POST /tasks. Only descriptive fields are
// read; id, state, charity and assignee are set by the broker, so whatever
// the payload carries for them is ignored.
type CreateTaskRequest struct {
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Deadline     string      `json:"deadline"`
	AgeLimitFrom *int        `json:"age_limit_from"`
	AgeLimitTo   *int        `json:"age_limit_to"`
	GenderLimit  task.Gender `json:"gender_limit"`
}

// Draft converts the request into the draft handed to Broker.CreateTask.
func (c CreateTaskRequest) Draft() task.Task {
	return task.Task{
		Title:        c.Title,
		Description:  c.Description,
		Deadline:     c.Deadline,
		AgeLimitFrom: c.AgeLimitFrom,
		AgeLimitTo:   c.AgeLimitTo,
		GenderLimit:  c.GenderLimit,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[broker.Api] [writeJSON] unable to encode response: %v", err)
	}
}

// writeError renders err with the status of its code. Field errors are
// rendered as the bare field mapping.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperrors.As(err)
	if !ok {
		log.Printf("[broker.Api] [writeError] %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, ErrResponse{
			HTTPStatusCode: http.StatusInternalServerError,
			Detail:         msgServerError,
		})
		return
	}
	status := e.Code.HTTPStatus()
	if e.Fields != nil {
		writeJSON(w, status, e.Fields)
		return
	}
	writeJSON(w, status, ErrResponse{HTTPStatusCode: status, Detail: e.Error()})
}

// decode reads a JSON body into v, refusing unknown fields. An empty body
// leaves v untouched.
func decode(r *http.Request, v any) error {
	return decodeBody(r, v, true)
}

func decodeBody(r *http.Request, v any, strict bool) error {
	d := json.NewDecoder(r.Body)
	if strict {
		d.DisallowUnknownFields()
	}
	if err := d.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.Wrap(apperrors.CodeValidation, fmt.Sprintf("JSON parse error - %v", err), err)
	}
	return nil
}

func taskID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		log.Printf("[broker.Api] [taskID] malformed task id %q", chi.URLParam(r, "taskID"))
		return uuid.Nil, apperrors.NotFound(MsgNotFound)
	}
	return id, nil
}

// authenticate resolves the caller and stores the Identity on the request
// context. Missing credentials yield the anonymous identity.
func (a *Api) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		u, err := a.Auth.Authenticate(r)
		if errors.Is(err, auth.ErrNoCredentials) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		id, err := auth.ResolveIdentity(r.Context(), a.Broker.Accounts, u)
		if err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (a *Api) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Api) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.Broker.ListTasks(r.Context(), IdentityFrom(r.Context()), r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (a *Api) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	var body CreateTaskRequest
	if err := decodeBody(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := a.Broker.CreateTask(r.Context(), id, body.Draft())
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.Printf("[broker.Api] [CreateTaskHandler] added task %v", t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (a *Api) GetTaskHandler(w http.ResponseWriter, r *http.Request) {
	tID, err := taskID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := a.Broker.GetTask(r.Context(), IdentityFrom(r.Context()), tID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *Api) RequestTaskHandler(w http.ResponseWriter, r *http.Request) {
	tID, err := taskID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := a.Broker.RequestTask(r.Context(), IdentityFrom(r.Context()), tID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DetailResponse{Detail: MsgRequestSent})
}

func (a *Api) RespondTaskHandler(w http.ResponseWriter, r *http.Request) {
	tID, err := taskID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var body ResponseRequest
	if err := decodeBody(r, &body, false); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := a.Broker.RespondTask(r.Context(), IdentityFrom(r.Context()), tID, body.Flag()); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DetailResponse{Detail: MsgResponseSent})
}

func (a *Api) DoneTaskHandler(w http.ResponseWriter, r *http.Request) {
	tID, err := taskID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := a.Broker.CompleteTask(r.Context(), IdentityFrom(r.Context()), tID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DetailResponse{Detail: MsgTaskDone})
}

func (a *Api) TaskHistoryHandler(w http.ResponseWriter, r *http.Request) {
	tID, err := taskID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	events, err := a.Broker.TaskHistory(r.Context(), IdentityFrom(r.Context()), tID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// writeMessage renders the registration contract: 200 with either the
// created record or the field errors under "message".
func writeMessage(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		if e, ok := apperrors.As(err); ok && e.Fields != nil {
			writeJSON(w, http.StatusOK, MessageResponse{Message: e.Fields})
			return
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: v})
}

func (a *Api) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var reg account.Registration
	if err := decode(r, &reg); err != nil {
		writeError(w, r, err)
		return
	}
	_, err := a.Broker.RegisterUser(r.Context(), reg)
	writeMessage(w, r, MsgUserAdded, err)
}

func (a *Api) RegisterCharityHandler(w http.ResponseWriter, r *http.Request) {
	var reg account.CharityRegistration
	if err := decode(r, &reg); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := a.Broker.RegisterCharity(r.Context(), IdentityFrom(r.Context()), reg)
	writeMessage(w, r, c, err)
}

func (a *Api) RegisterBenefactorHandler(w http.ResponseWriter, r *http.Request) {
	var reg account.BenefactorRegistration
	if err := decode(r, &reg); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := a.Broker.RegisterBenefactor(r.Context(), IdentityFrom(r.Context()), reg)
	writeMessage(w, r, b, err)
}
