package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/genbatch/pipeline/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorBody is the wire shape for every non-2xx response (spec §6:
// "{error_type, error_message, details?}").
type errorBody struct {
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	Details      map[string]any `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperr.As(err); ok {
		writeJSON(w, appErr.HTTPStatus, errorBody{
			ErrorType:    string(appErr.Code),
			ErrorMessage: appErr.Message,
			Details:      appErr.Details,
		})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{
		ErrorType:    string(apperr.CodeInternal),
		ErrorMessage: err.Error(),
	})
}

func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
