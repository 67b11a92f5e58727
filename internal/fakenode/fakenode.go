// Package fakenode provides a scriptable in-process stand-in for the
// rsqld daemon, so harness packages can be tested without the real
// binary. It serves the same observable HTTP surface: a status document,
// reads, and writes that redirect away from non-leaders.
package fakenode

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server mimics one daemon node. Role, leader, and applied index are
// scripted by the test; executes against the leader are recorded and bump
// the applied index.
type Server struct {
	mu sync.Mutex

	id         string
	role       string
	leaderID   string
	leaderAddr string
	applied    uint64

	columns []string
	types   []string
	values  [][]any

	statements []string

	log *zap.Logger
}

// New returns a fake node that starts out as a follower with no leader.
func New(id string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		id:   id,
		role: "Follower",
		log:  log.With(zap.String("fakenode", id)),
	}
}

// Handler returns the routed HTTP surface.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/db/query", s.handleQuery).Methods(http.MethodGet)
	r.HandleFunc("/db/execute", s.handleExecute).Methods(http.MethodPost)
	return r
}

// SetRole scripts the role label reported by /status.
func (s *Server) SetRole(role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
}

// SetLeader scripts the cluster leader's identity and API authority. The
// authority is where non-leader executes redirect to.
func (s *Server) SetLeader(id, addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderID = id
	s.leaderAddr = addr
}

// SetApplied scripts the locally-applied log index.
func (s *Server) SetApplied(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = n
}

// SetQueryResult scripts the result set returned by /db/query.
func (s *Server) SetQueryResult(columns, types []string, values [][]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.columns = columns
	s.types = types
	s.values = values
}

// Statements returns the writes accepted so far, in order.
func (s *Server) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statements...)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := map[string]any{
		"node_id": s.id,
		"store": map[string]any{
			"leader": s.leaderID,
			"raft": map[string]any{
				"state":         s.role,
				"applied_index": s.applied,
			},
		},
	}
	writeJSON(w, doc)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("q") == "" {
		http.Error(w, "missing query statement", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := map[string]any{}
	if s.columns != nil {
		result["columns"] = s.columns
		result["types"] = s.types
		result["values"] = s.values
	}
	writeJSON(w, map[string]any{"results": []any{result}})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var stmts []string
	if err := json.NewDecoder(r.Body).Decode(&stmts); err != nil || len(stmts) == 0 {
		http.Error(w, "expected a JSON array of statements", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.role != "Leader" && s.leaderAddr != "" {
		s.log.Debug("redirecting write", zap.String("leader", s.leaderAddr))
		http.Redirect(w, r, "http://"+s.leaderAddr+"/db/execute", http.StatusMovedPermanently)
		return
	}

	results := make([]any, 0, len(stmts))
	for _, stmt := range stmts {
		s.statements = append(s.statements, stmt)
		s.applied++
		results = append(results, map[string]any{
			"last_insert_id": len(s.statements),
			"rows_affected":  1,
		})
	}
	writeJSON(w, map[string]any{"results": results})
}

func writeJSON(w http.ResponseWriter, doc any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
