package util

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// DecodeJSONBody reads and unmarshals a request body into T.
func DecodeJSONBody[T any](r *http.Request) (T, error) {
	defer r.Body.Close()
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		var zero T
		return zero, fmt.Errorf("decode request body: %w", err)
	}
	return data, nil
}

// WriteJSONResponse writes data as a JSON response with the given status.
func WriteJSONResponse[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
