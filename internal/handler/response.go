package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"clinic-console/internal/model"
	"clinic-console/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var (
		apiErr        *apierror.APIError
		validationErr *model.ValidationError
		authErr       *model.AuthenticationError
		changeErr     *model.PasswordChangeError
	)

	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
		body.Reason = apiErr.Reason
	} else if errors.As(err, &validationErr) {
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
		body.Details = validationErr.Field
		body.Reason = string(validationErr.Reason)
	} else if errors.Is(err, model.ErrInFlight) {
		status = http.StatusConflict
		body.Code = "IN_FLIGHT"
		body.Message = "A request is already in progress"
	} else if errors.Is(err, model.ErrFirstAccessPending) {
		status = http.StatusConflict
		body.Code = "PASSWORD_CHANGE_REQUIRED"
		body.Message = "Password change is required before continuing"
	} else if errors.Is(err, model.ErrNoSession) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "No active session"
	} else if errors.As(err, &authErr) {
		status, body.Code, body.Message = upstreamStatus(err, "Invalid credentials")
		body.Details = authErr.Err.Error()
	} else if errors.As(err, &changeErr) {
		status, body.Code, body.Message = upstreamStatus(err, "Password change rejected")
		if changeErr.Status >= 400 && changeErr.Status < 500 && !errors.Is(err, model.ErrInvalidCredentials) {
			status = http.StatusUnprocessableEntity
			body.Code = "REJECTED"
		}
		body.Details = changeErr.Err.Error()
	} else if errors.Is(err, model.ErrInvalidInput) {
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
	} else {
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// upstreamStatus maps a failed clinic API exchange to the console response.
func upstreamStatus(err error, rejected string) (int, string, string) {
	switch {
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized, "UNAUTHORIZED", rejected
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Clinic API is unreachable"
	default:
		return http.StatusBadGateway, "UPSTREAM_ERROR", "Clinic API rejected the request"
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	if err := dec.Decode(dst); err != nil {
		return apierror.New("BAD_REQUEST", "invalid JSON body", "", http.StatusBadRequest)
	}
	return nil
}
