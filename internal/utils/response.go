package utils

import (
	"encoding/json"
	"net/http"

	"securechat/internal/apperr"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// Error answers with the status and public message carried by err.
func Error(w http.ResponseWriter, err error) {
	JSON(w, apperr.HTTPStatus(apperr.CodeOf(err)), APIResponse{Success: false, Message: apperr.MessageOf(err)})
}
