// Package harness drives an externally supplied replicated SQL daemon
// through its OS and HTTP surfaces: per-node process lifecycle, typed
// status/query/execute accessors, and cluster-level fact aggregation.
// The daemon itself is the system under test; nothing here implements
// consensus or SQL.
package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/raftbed/raftbed/internal/poll"
)

// Role is a node's consensus role as reported by its status endpoint.
type Role string

const (
	RoleLeader    Role = "Leader"
	RoleFollower  Role = "Follower"
	RoleCandidate Role = "Candidate"
	RoleUnknown   Role = "Unknown"
)

// Level is the read-consistency level forwarded verbatim to the daemon.
type Level string

const (
	LevelNone   Level = "none"
	LevelWeak   Level = "weak"
	LevelStrong Level = "strong"
)

// Options configures every node a harness run creates.
type Options struct {
	// Binary is the path to the rsqld executable under test.
	Binary string

	// StartTimeout bounds Start's wait for the status endpoint.
	StartTimeout time.Duration
	// LeaderTimeout bounds leader and applied-index waits.
	LeaderTimeout time.Duration
	// PollInterval spaces polling rounds.
	PollInterval time.Duration
	// HTTPTimeout bounds a single request round-trip.
	HTTPTimeout time.Duration

	// Logger receives lifecycle events. Defaults to a nop logger.
	Logger *zap.Logger
}

// DefaultOptions returns the timeouts used when Options leaves them zero.
func DefaultOptions() Options {
	return Options{
		StartTimeout:  30 * time.Second,
		LeaderTimeout: 30 * time.Second,
		PollInterval:  500 * time.Millisecond,
		HTTPTimeout:   5 * time.Second,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.StartTimeout == 0 {
		o.StartTimeout = d.StartTimeout
	}
	if o.LeaderTimeout == 0 {
		o.LeaderTimeout = d.LeaderTimeout
	}
	if o.PollInterval == 0 {
		o.PollInterval = d.PollInterval
	}
	if o.HTTPTimeout == 0 {
		o.HTTPTimeout = d.HTTPTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Status is one sample of a node's view of the cluster. It is never
// retained; every accessor re-fetches.
type Status struct {
	Leader       string
	Role         Role
	AppliedIndex uint64
}

// Node owns one rsqld process: its identity, network addresses, working
// directory, and log sinks. Two nodes are the same node iff their IDs
// match; addresses and directories may change across a node's lifetime.
//
// A node is not safe for concurrent use: operations on one handle are
// strictly sequential as issued by the caller.
type Node struct {
	ID       string
	APIAddr  string
	RaftAddr string
	Dir      string

	opts   Options
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File

	client     *http.Client
	noRedirect *http.Client
	log        *zap.Logger
}

// NewNode allocates a node's addresses, working directory, and log sinks.
// No process exists until Start.
func NewNode(id string, opts Options) (*Node, error) {
	opts = opts.normalized()

	apiAddr, err := randomAddr()
	if err != nil {
		return nil, err
	}
	raftAddr, err := randomAddr()
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", "raftbed-node-"+id+"-")
	if err != nil {
		return nil, err
	}

	stdout, err := os.Create(filepath.Join(dir, "rsqld.log"))
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	stderr, err := os.Create(filepath.Join(dir, "rsqld.err"))
	if err != nil {
		stdout.Close()
		os.RemoveAll(dir)
		return nil, err
	}

	return &Node{
		ID:       id,
		APIAddr:  apiAddr,
		RaftAddr: raftAddr,
		Dir:      dir,
		opts:     opts,
		stdout:   stdout,
		stderr:   stderr,
		client:   &http.Client{Timeout: opts.HTTPTimeout},
		noRedirect: &http.Client{
			Timeout: opts.HTTPTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: opts.Logger.With(zap.String("node", id)),
	}, nil
}

// Equal reports whether other refers to the same node. Identity is the
// node ID alone; addresses and directories are not compared.
func (n *Node) Equal(other *Node) bool {
	return other != nil && n.ID == other.ID
}

func (n *Node) String() string {
	return fmt.Sprintf("%s:[%s]:[%s]:[%s]", n.ID, n.APIAddr, n.RaftAddr, n.Dir)
}

// Running reports whether the node currently owns a live process.
func (n *Node) Running() bool { return n.cmd != nil }

// ScrambleNetwork regenerates both addresses, simulating the node
// reappearing under new network coordinates after a restart. The working
// directory and persisted state are untouched. Only valid while stopped.
func (n *Node) ScrambleNetwork() error {
	if n.Running() {
		return &ProcessError{Op: "scramble", Err: fmt.Errorf("node %s is running", n.ID)}
	}

	apiAddr, err := randomAddr()
	if err != nil {
		return err
	}
	raftAddr, err := randomAddr()
	if err != nil {
		return err
	}

	n.APIAddr, n.RaftAddr = apiAddr, raftAddr
	n.log.Debug("network identity scrambled",
		zap.String("api", n.APIAddr), zap.String("raft", n.RaftAddr))
	return nil
}

// Start spawns the daemon with the node's identity, addresses, and working
// directory, plus an optional join target for admission into an existing
// cluster. A node that already owns a process is left untouched. With wait
// set, Start blocks until the status endpoint answers or timeout elapses;
// timeout <= 0 falls back to Options.StartTimeout.
func (n *Node) Start(ctx context.Context, join string, wait bool, timeout time.Duration) error {
	if n.Running() {
		return nil
	}
	if timeout <= 0 {
		timeout = n.opts.StartTimeout
	}

	args := []string{
		"-node-id", n.ID,
		"-http-addr", n.APIAddr,
		"-raft-addr", n.RaftAddr,
	}
	if join != "" {
		args = append(args, "-join", "http://"+join)
	}
	args = append(args, n.Dir)

	cmd := exec.Command(n.opts.Binary, args...)
	cmd.Stdout = n.stdout
	cmd.Stderr = n.stderr
	if err := cmd.Start(); err != nil {
		return &ProcessError{Op: "start", Err: err}
	}
	n.cmd = cmd
	n.log.Info("node started",
		zap.String("api", n.APIAddr), zap.String("raft", n.RaftAddr),
		zap.String("join", join))

	if !wait {
		return nil
	}

	if _, err := poll.Until(ctx, n.Status, n.opts.PollInterval, timeout); err != nil {
		n.log.Warn("node did not become reachable", zap.Error(err))
		return err
	}
	return nil
}

// Stop forcibly terminates the process and waits for it to exit before
// releasing ownership. Stopping a node with no process is a no-op.
func (n *Node) Stop() error {
	if !n.Running() {
		return nil
	}

	// Kill on an already-exited process fails harmlessly; Wait reaps
	// either way.
	_ = n.cmd.Process.Kill()
	_ = n.cmd.Wait()
	n.cmd = nil
	n.log.Info("node stopped")
	return nil
}

// Deprovision stops the node, releases its log sinks, and removes its
// working directory. Safe to call more than once.
func (n *Node) Deprovision() error {
	_ = n.Stop()

	if n.stdout != nil {
		n.stdout.Close()
		n.stdout = nil
	}
	if n.stderr != nil {
		n.stderr.Close()
		n.stderr = nil
	}

	if err := os.RemoveAll(n.Dir); err != nil {
		return err
	}
	n.log.Info("node deprovisioned")
	return nil
}

// Status fetches and classifies one status sample.
func (n *Node) Status() (Status, error) {
	body, err := n.get("/status", nil)
	if err != nil {
		return Status{}, err
	}
	if !gjson.Valid(body) {
		return Status{}, fmt.Errorf("node %s: malformed status document", n.ID)
	}

	return Status{
		Leader:       gjson.Get(body, "store.leader").String(),
		Role:         parseRole(gjson.Get(body, "store.raft.state").String()),
		AppliedIndex: gjson.Get(body, "store.raft.applied_index").Uint(),
	}, nil
}

func parseRole(s string) Role {
	switch Role(s) {
	case RoleLeader, RoleFollower, RoleCandidate:
		return Role(s)
	default:
		return RoleUnknown
	}
}

// IsLeader reports whether the node currently holds the Leader role. An
// unreachable node counts as not leader: absence of evidence is treated
// as absence for polling convenience, not as a status guarantee.
func (n *Node) IsLeader() bool {
	st, err := n.Status()
	return err == nil && st.Role == RoleLeader
}

// IsFollower reports whether the node currently holds the Follower role,
// with the same unreachable-means-false convention as IsLeader.
func (n *Node) IsFollower() bool {
	st, err := n.Status()
	return err == nil && st.Role == RoleFollower
}

// WaitForLeader polls until the node reports a non-empty cluster leader
// and returns that leader's identity. Connection failures are retried;
// any other status failure aborts the wait. timeout <= 0 falls back to
// Options.LeaderTimeout.
func (n *Node) WaitForLeader(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = n.opts.LeaderTimeout
	}

	return poll.Until(ctx, func() (string, error) {
		st, err := n.Status()
		if err != nil {
			return "", err
		}
		if st.Leader == "" {
			return "", poll.ErrUnsatisfied
		}
		return st.Leader, nil
	}, n.opts.PollInterval, timeout)
}

// AppliedIndex returns the node's locally-applied log position.
func (n *Node) AppliedIndex() (uint64, error) {
	st, err := n.Status()
	if err != nil {
		return 0, err
	}
	return st.AppliedIndex, nil
}

// WaitForAppliedIndex polls until the locally-applied log index reaches
// target. The wait is satisfied by any index >= target, so a burst of
// applied entries between polls cannot skip past it.
func (n *Node) WaitForAppliedIndex(ctx context.Context, target uint64, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = n.opts.LeaderTimeout
	}

	_, err := poll.Until(ctx, func() (uint64, error) {
		st, err := n.Status()
		if err != nil {
			return 0, err
		}
		if st.AppliedIndex < target {
			return 0, poll.ErrUnsatisfied
		}
		return st.AppliedIndex, nil
	}, n.opts.PollInterval, timeout)
	return err
}

// QueryResult is the first result set of a read.
type QueryResult struct {
	Columns []string
	Types   []string
	Values  [][]any
	Err     string
}

// ExecResult is the per-statement outcome of a write.
type ExecResult struct {
	LastInsertID int64
	RowsAffected int64
	Err          string
}

// Query issues a read at the given consistency level.
func (n *Node) Query(stmt string, level Level) (QueryResult, error) {
	q := url.Values{}
	q.Set("q", stmt)
	q.Set("level", string(level))

	body, err := n.get("/db/query", q)
	if err != nil {
		return QueryResult{}, err
	}

	res := gjson.Get(body, "results.0")
	out := QueryResult{Err: res.Get("error").String()}
	for _, c := range res.Get("columns").Array() {
		out.Columns = append(out.Columns, c.String())
	}
	for _, ty := range res.Get("types").Array() {
		out.Types = append(out.Types, ty.String())
	}
	for _, row := range res.Get("values").Array() {
		vals := make([]any, 0, len(row.Array()))
		for _, v := range row.Array() {
			vals = append(vals, v.Value())
		}
		out.Values = append(out.Values, vals)
	}
	return out, nil
}

// Execute issues a write, wrapped as a single-statement batch.
func (n *Node) Execute(stmt string) (ExecResult, error) {
	body, err := n.post("/db/execute", []string{stmt})
	if err != nil {
		return ExecResult{}, err
	}

	res := gjson.Get(body, "results.0")
	return ExecResult{
		LastInsertID: res.Get("last_insert_id").Int(),
		RowsAffected: res.Get("rows_affected").Int(),
		Err:          res.Get("error").String(),
	}, nil
}

// RedirectTarget issues a write with redirect following disabled and
// returns the authority the daemon redirects to, or "" when the response
// is not a redirect. Followers name the current leader this way.
func (n *Node) RedirectTarget() (string, error) {
	payload, err := json.Marshal([]string{"nonsense"})
	if err != nil {
		return "", err
	}

	u := url.URL{Scheme: "http", Host: n.APIAddr, Path: "/db/execute"}
	resp, err := n.noRedirect.Post(u.String(), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", &ConnError{Addr: n.APIAddr, Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusMovedPermanently {
		return "", nil
	}

	loc, err := resp.Location()
	if err != nil {
		return "", fmt.Errorf("node %s: redirect without location: %w", n.ID, err)
	}
	return loc.Host, nil
}

func (n *Node) get(path string, query url.Values) (string, error) {
	u := url.URL{Scheme: "http", Host: n.APIAddr, Path: path, RawQuery: query.Encode()}
	resp, err := n.client.Get(u.String())
	if err != nil {
		return "", &ConnError{Addr: n.APIAddr, Err: err}
	}
	defer resp.Body.Close()

	return n.readBody(resp, u.String())
}

func (n *Node) post(path string, stmts []string) (string, error) {
	payload, err := json.Marshal(stmts)
	if err != nil {
		return "", err
	}

	u := url.URL{Scheme: "http", Host: n.APIAddr, Path: path}
	resp, err := n.client.Post(u.String(), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", &ConnError{Addr: n.APIAddr, Err: err}
	}
	defer resp.Body.Close()

	return n.readBody(resp, u.String())
}

func (n *Node) readBody(resp *http.Response, reqURL string) (string, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ConnError{Addr: n.APIAddr, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode, URL: reqURL}
	}
	return string(body), nil
}
