package response

import (
	"encoding/json"
	"net/http"
)

// Fields are the payload keys merged into the response envelope next to success
type Fields map[string]any

// JSON sends an envelope {"success": ..., <fields>}. Success follows the status code.
func JSON(w http.ResponseWriter, status int, fields Fields) {
	body := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = status >= 200 && status < 300

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// Error sends an error envelope with message as its message field
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Fields{"message": message})
}

// OK sends a 200 OK response with fields
func OK(w http.ResponseWriter, fields Fields) {
	JSON(w, http.StatusOK, fields)
}

// Message sends a 200 OK response carrying only a message
func Message(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, Fields{"message": message})
}

// BadRequest sends a 400 Bad Request response
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, message)
}

// Invalid sends a 400 Bad Request response listing the failing fields
func Invalid(w http.ResponseWriter, message string, fields map[string]string) {
	JSON(w, http.StatusBadRequest, Fields{"message": message, "errors": fields})
}

// TooManyRequests sends a 429 Too Many Requests response
func TooManyRequests(w http.ResponseWriter, message string) {
	Error(w, http.StatusTooManyRequests, message)
}

// InternalError sends a 500 Internal Server Error response
func InternalError(w http.ResponseWriter, message string) {
	Error(w, http.StatusInternalServerError, message)
}
