package respond

import (
	"encoding/json"
	"net/http"
)

// JSON escribe v como JSON con el status dado.
// (antes estaba duplicado en cada handler; ya se repetía en demasiados módulos)
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON decodifica el body en v.
func DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
