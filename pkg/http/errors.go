package http

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error   string `json:"error"`   // closed error code, safe to branch on
	Message string `json:"message"` // human-readable, display only
}

// WriteJSON writes v as a JSON body with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

func WriteBadRequest(w http.ResponseWriter, errorCode, message string) {
	WriteError(w, http.StatusBadRequest, errorCode, message)
}

func WriteUnauthorized(w http.ResponseWriter, errorCode, message string) {
	WriteError(w, http.StatusUnauthorized, errorCode, message)
}

func WriteForbidden(w http.ResponseWriter, errorCode, message string) {
	WriteError(w, http.StatusForbidden, errorCode, message)
}

func WriteConflict(w http.ResponseWriter, errorCode, message string) {
	WriteError(w, http.StatusConflict, errorCode, message)
}

func WriteTooManyRequests(w http.ResponseWriter, errorCode, message string) {
	WriteError(w, http.StatusTooManyRequests, errorCode, message)
}

func WriteInternalError(w http.ResponseWriter, errorCode, message string) {
	WriteError(w, http.StatusInternalServerError, errorCode, message)
}
