package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taskpilot/pkg/domain/model"
	"github.com/secmon-lab/taskpilot/pkg/domain/types"
	"github.com/secmon-lab/taskpilot/pkg/usecase"
)

// SignatureHeader carries the HMAC-SHA256 of the raw request body
const SignatureHeader = "X-Webhook-Signature"

type hookHandler struct {
	task *usecase.TaskUseCase
}

func newHookHandler(task *usecase.TaskUseCase) *hookHandler {
	return &hookHandler{task: task}
}

type acceptedResponse struct {
	TaskID types.TaskID     `json:"task_id"`
	Status types.TaskStatus `json:"status"`
}

func (h *hookHandler) webhook(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, types.SourceWebhook)
}

func (h *hookHandler) email(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, types.SourceEmail)
}

func (h *hookHandler) sms(w http.ResponseWriter, r *http.Request) {
	h.ingest(w, r, types.SourceSMS)
}

// ingest passes the untouched body on; signatures are computed over the raw bytes
func (h *hookHandler) ingest(w http.ResponseWriter, r *http.Request, channel types.SourceChannel) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(ctx, w, goerr.Wrap(err, "failed to read request body", goerr.T(model.TagValidation)))
		return
	}

	task, err := h.task.Ingest(ctx, channel, model.RawInput{
		TenantID:    types.TenantID(chi.URLParam(r, "tenantID")),
		Body:        body,
		Signature:   r.Header.Get(SignatureHeader),
		ContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusAccepted, acceptedResponse{TaskID: task.ID, Status: task.Status})
}
