package rdrbridge

import (
	"encoding/json"
	"net/http"
)

// RESTHandler exposes a read-only diagnostic facade over a Bridge's
// connection registry. SPEC_FULL's domain stack calls for a
// grpc-ecosystem/grpc-gateway reverse proxy here; that code is
// protoc-generated and this build has no protoc toolchain, so the
// facade is a direct net/http handler instead (DESIGN.md records the
// dropped dependency). The gRPC bidi stream remains the only path a
// renderer actually drives; this is read-only operator tooling.
func RESTHandler(b *Bridge) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/connections", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Connections []string `json:"connections"`
		}{Connections: b.ConnectionIDs()})
	})
	return mux
}
