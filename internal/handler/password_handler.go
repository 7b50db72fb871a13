package handler

import (
	"net/http"

	"clinic-console/internal/model"
	"clinic-console/internal/password"
)

type PasswordHandler struct {
	flow *password.Flow
}

func NewPasswordHandler(flow *password.Flow) *PasswordHandler {
	if flow == nil {
		panic("handler: password handler requires a flow")
	}
	return &PasswordHandler{flow: flow}
}

func (h *PasswordHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.flow.Status())
}

func (h *PasswordHandler) Open(w http.ResponseWriter, _ *http.Request) {
	h.flow.Open()
	writeSuccess(w, http.StatusOK, h.flow.Status())
}

func (h *PasswordHandler) Submit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.ChangePasswordRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.flow.Submit(r.Context(), payload.NewPassword, payload.ConfirmPassword); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.flow.Status())
}

func (h *PasswordHandler) Dismiss(w http.ResponseWriter, _ *http.Request) {
	if !h.flow.Close() {
		writeError(w, model.ErrFirstAccessPending)
		return
	}
	writeSuccess(w, http.StatusOK, h.flow.Status())
}
