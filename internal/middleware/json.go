package middleware

import (
	"encoding/json"
	"net/http"

	"clinic-console/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, body model.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: code, Message: message},
	})
}
