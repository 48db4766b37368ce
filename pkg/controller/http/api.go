package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/interfaces"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
	"github.com/secmon-lab/taskpilot/pkg/utils/errutil"
)

const defaultListLimit = 100

// apiHandler serves the tenant admin API
type apiHandler struct {
	uc *usecase.UseCases
}

func newAPIHandler(uc *usecase.UseCases) *apiHandler {
	return &apiHandler{uc: uc}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return goerr.Wrap(err, "invalid request body", goerr.T(model.TagValidation))
	}
	return nil
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, goerr.New("limit must be a positive integer", goerr.V("limit", raw), goerr.T(model.TagValidation))
	}
	return n, nil
}

type meResponse struct {
	Subject   string         `json:"subject"`
	TenantID  types.TenantID `json:"tenant_id"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

func (h *apiHandler) me(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	resp := meResponse{Subject: p.Subject, TenantID: p.TenantID}
	if !p.ExpiresAt.IsZero() {
		resp.ExpiresAt = &p.ExpiresAt
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *apiHandler) createTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(ctx, w, goerr.Wrap(err, "failed to read request body", goerr.T(model.TagValidation)))
		return
	}

	task, err := h.uc.Task.Ingest(ctx, types.SourceAPI, model.RawInput{
		TenantID: principalFrom(ctx).TenantID,
		Body:     body,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, toTaskResponse(task))
}

func (h *apiHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryLimit(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	tasks, err := h.uc.Task.List(ctx, principalFrom(ctx).TenantID, types.TaskStatus(r.URL.Query().Get("status")), limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	resp := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = toTaskResponse(t)
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"tasks": resp})
}

func (h *apiHandler) getTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	task, err := h.uc.Task.Get(ctx, principalFrom(ctx).TenantID, types.TaskID(chi.URLParam(r, "taskID")))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, toTaskResponse(task))
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *apiHandler) cancelTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req cancelRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	task, err := h.uc.Task.Cancel(ctx, principalFrom(ctx).TenantID, types.TaskID(chi.URLParam(r, "taskID")), req.Reason)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	// a PROCESSING task is only marked; the worker settles it
	status := http.StatusOK
	if task.CancelRequested {
		status = http.StatusAccepted
	}
	writeJSON(ctx, w, status, toTaskResponse(task))
}

func (h *apiHandler) listDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := principalFrom(ctx).TenantID
	taskID := types.TaskID(chi.URLParam(r, "taskID"))

	if _, err := h.uc.Task.Get(ctx, tenantID, taskID); err != nil {
		writeError(ctx, w, err)
		return
	}
	decisions, err := h.uc.Task.Decisions(ctx, tenantID, taskID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	resp := make([]decisionResponse, len(decisions))
	for i, d := range decisions {
		resp[i] = toDecisionResponse(d)
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"decisions": resp})
}

type approveRequest struct {
	SlotIndex *int `json:"slot_index,omitempty"`
}

type approveResponse struct {
	Task     taskResponse     `json:"task"`
	Decision decisionResponse `json:"decision"`
}

func (h *apiHandler) approveDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req approveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	slot := -1
	if req.SlotIndex != nil {
		slot = *req.SlotIndex
	}

	p := principalFrom(ctx)
	task, decision, err := h.uc.Task.Approve(ctx, p.TenantID, types.DecisionID(chi.URLParam(r, "decisionID")), p.Subject, slot)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, approveResponse{Task: toTaskResponse(task), Decision: toDecisionResponse(decision)})
}

// vault returns false after answering when no vault is configured
func (h *apiHandler) vault(w http.ResponseWriter, r *http.Request) bool {
	if h.uc.Vault != nil {
		return true
	}
	errutil.HandleHTTP(r.Context(), w, goerr.New("credential vault is not configured"), http.StatusServiceUnavailable)
	return false
}

func (h *apiHandler) listCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.vault(w, r) {
		return
	}
	list, err := h.uc.Vault.ListMetadata(ctx, principalFrom(ctx).TenantID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"credentials": list})
}

type saveCredentialRequest struct {
	UserID    string            `json:"user_id"`
	Provider  string            `json:"provider"`
	Label     string            `json:"label"`
	Scope     string            `json:"scope,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Secret    map[string]string `json:"secret"`
}

func (h *apiHandler) saveCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.vault(w, r) {
		return
	}
	var req saveCredentialRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	var opts []usecase.SaveOption
	if req.Scope != "" {
		opts = append(opts, usecase.WithScope(req.Scope))
	}
	if req.ExpiresAt != nil {
		opts = append(opts, usecase.WithExpiry(*req.ExpiresAt))
	}

	id, err := h.uc.Vault.Save(ctx, req.UserID, principalFrom(ctx).TenantID, req.Provider, req.Label, model.SecretPayload(req.Secret), opts...)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, map[string]any{"id": id})
}

func (h *apiHandler) revokeCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.vault(w, r) {
		return
	}
	id := types.CredentialID(chi.URLParam(r, "credentialID"))
	if err := h.uc.Vault.Revoke(ctx, principalFrom(ctx).TenantID, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) listEscalations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	unresolved := r.URL.Query().Get("unresolved") == "true"
	list, err := h.uc.Task.Escalations(ctx, principalFrom(ctx).TenantID, unresolved)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	resp := make([]escalationResponse, len(list))
	for i, e := range list {
		resp[i] = toEscalationResponse(e)
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"escalations": resp})
}

func (h *apiHandler) resolveEscalation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.uc.Task.ResolveEscalation(ctx, principalFrom(ctx).TenantID, chi.URLParam(r, "escalationID")); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) listAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, err := queryLimit(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	q := r.URL.Query()
	entries, err := h.uc.Task.Audit(ctx, principalFrom(ctx).TenantID, interfaces.AuditFilter{
		Kind:    model.AuditKind(q.Get("kind")),
		Subject: q.Get("subject"),
		Limit:   limit,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"entries": entries})
}
