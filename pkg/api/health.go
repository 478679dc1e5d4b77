package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/storage"
)

// Version is reported by /health and GetClusterInfo. Builds set it with
// -ldflags "-X github.com/cuemby/strata/pkg/api.Version=...".
var Version = "dev"

// maxApplyLag is how many raft entries a node may have left to apply and
// still serve the site as ready
const maxApplyLag = 256

// probeSetting is read to prove the store answers; it may be unset
const probeSetting = "theme.current"

// NodeState is what the health endpoints read from a manager
type NodeState interface {
	IsLeader() bool
	LeaderAddr() string
	Store() storage.Store
	GetRaftStats() map[string]interface{}
}

// HealthServer serves the health, readiness and metrics endpoints of a node
type HealthServer struct {
	node NodeState
	mux  *http.ServeMux
}

// NewHealthServer builds the endpoints. A nil node reports not ready.
func NewHealthServer(node NodeState) *HealthServer {
	hs := &HealthServer{node: node, mux: http.NewServeMux()}
	hs.mux.HandleFunc("/health", getOnly(hs.healthHandler))
	hs.mux.HandleFunc("/ready", getOnly(hs.readyHandler))
	hs.mux.Handle("/live", metrics.LivenessHandler())
	hs.mux.Handle("/components", metrics.HealthHandler())
	hs.mux.Handle("/metrics", metrics.Handler())
	return hs
}

// Start listens on addr until the process exits
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// GetHandler returns the endpoints for mounting in another server
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// ReadyResponse is the /ready body
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// healthHandler answers as long as the process serves HTTP
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
	})
}

// readyHandler reports whether the node can serve the site and the API: a
// leader is known, the store answers and the local state machine is close
// to the end of the log
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready", Timestamp: time.Now(), Checks: make(map[string]string)}
	fail := func(check, state, message string) {
		resp.Checks[check] = state
		resp.Status = "not ready"
		if resp.Message == "" {
			resp.Message = message
		}
	}

	if hs.node == nil {
		fail("raft", "not initialized", "Manager not initialized")
		fail("storage", "not initialized", "")
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	switch leader := hs.node.LeaderAddr(); {
	case hs.node.IsLeader():
		resp.Checks["raft"] = "leader"
	case leader != "":
		resp.Checks["raft"] = fmt.Sprintf("follower (leader: %s)", leader)
	default:
		fail("raft", "no leader elected", "Waiting for leader election")
	}

	if _, err := hs.node.Store().GetSetting(probeSetting); err != nil && !errors.Is(err, storage.ErrNotFound) {
		fail("storage", "error: "+err.Error(), "Storage not accessible")
	} else {
		resp.Checks["storage"] = "ok"
	}

	stats := hs.node.GetRaftStats()
	last, _ := stats["last_log_index"].(uint64)
	applied, _ := stats["applied_index"].(uint64)
	if last > applied && last-applied > maxApplyLag {
		fail("log", fmt.Sprintf("%d entries behind", last-applied), "Catching up with the raft log")
	} else {
		resp.Checks["log"] = fmt.Sprintf("applied %d/%d", applied, last)
	}

	code := http.StatusOK
	if resp.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
