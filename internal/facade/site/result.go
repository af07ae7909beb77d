package site

import (
	"encoding/json"
	"net/http"

	"aipilot-gateway/internal/capability"
)

func writeResult(w http.ResponseWriter, status int, res capability.Result) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}
