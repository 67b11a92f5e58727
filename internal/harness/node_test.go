package harness_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raftbed/raftbed/internal/fakenode"
	"github.com/raftbed/raftbed/internal/harness"
	"github.com/raftbed/raftbed/internal/poll"
)

func testOptions() harness.Options {
	return harness.Options{
		PollInterval:  10 * time.Millisecond,
		LeaderTimeout: 2 * time.Second,
		StartTimeout:  2 * time.Second,
		HTTPTimeout:   time.Second,
	}
}

// newTestNode points a freshly constructed node at a fake daemon instead
// of a spawned process.
func newTestNode(t *testing.T, id string) (*harness.Node, *fakenode.Server) {
	t.Helper()

	fake := fakenode.New(id, nil)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	n, err := harness.NewNode(id, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, n.Deprovision()) })

	n.APIAddr = strings.TrimPrefix(srv.URL, "http://")
	return n, fake
}

func TestStatus(t *testing.T) {
	n, fake := newTestNode(t, "0")
	fake.SetRole("Leader")
	fake.SetLeader("0", n.APIAddr)
	fake.SetApplied(4)

	st, err := n.Status()
	require.NoError(t, err)
	assert.Equal(t, "0", st.Leader)
	assert.Equal(t, harness.RoleLeader, st.Role)
	assert.Equal(t, uint64(4), st.AppliedIndex)
}

func TestStatusUnknownRole(t *testing.T) {
	n, fake := newTestNode(t, "0")
	fake.SetRole("Shutdown")

	st, err := n.Status()
	require.NoError(t, err)
	assert.Equal(t, harness.RoleUnknown, st.Role)
}

func TestStatusConnectionFailureIsDistinct(t *testing.T) {
	// A node with no live process must report connection failures, never a
	// role.
	n, err := harness.NewNode("0", testOptions())
	require.NoError(t, err)
	defer n.Deprovision()

	_, err = n.Status()
	var ce *harness.ConnError
	require.ErrorAs(t, err, &ce)
	assert.False(t, n.IsLeader())
	assert.False(t, n.IsFollower())
}

func TestStatusHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, err := harness.NewNode("0", testOptions())
	require.NoError(t, err)
	defer n.Deprovision()
	n.APIAddr = strings.TrimPrefix(srv.URL, "http://")

	_, err = n.Status()
	var se *harness.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
}

func TestRolePredicates(t *testing.T) {
	n, fake := newTestNode(t, "0")

	fake.SetRole("Leader")
	assert.True(t, n.IsLeader())
	assert.False(t, n.IsFollower())

	fake.SetRole("Follower")
	assert.False(t, n.IsLeader())
	assert.True(t, n.IsFollower())

	fake.SetRole("Candidate")
	assert.False(t, n.IsLeader())
	assert.False(t, n.IsFollower())
}

func TestWaitForLeader(t *testing.T) {
	n, fake := newTestNode(t, "0")

	go func() {
		time.Sleep(50 * time.Millisecond)
		fake.SetLeader("2", "127.0.0.1:4001")
	}()

	leader, err := n.WaitForLeader(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "2", leader)
}

func TestWaitForLeaderTimeout(t *testing.T) {
	n, _ := newTestNode(t, "0")

	_, err := n.WaitForLeader(context.Background(), 100*time.Millisecond)
	var te *poll.TimeoutError
	assert.ErrorAs(t, err, &te)
}

func TestWaitForAppliedIndex(t *testing.T) {
	n, fake := newTestNode(t, "0")
	fake.SetApplied(5)

	require.NoError(t, n.WaitForAppliedIndex(context.Background(), 5, time.Second))

	// A burst past the target still satisfies the wait.
	fake.SetApplied(10)
	require.NoError(t, n.WaitForAppliedIndex(context.Background(), 7, time.Second))

	err := n.WaitForAppliedIndex(context.Background(), 11, 100*time.Millisecond)
	var te *poll.TimeoutError
	assert.ErrorAs(t, err, &te)

	idx, err := n.AppliedIndex()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), idx)
}

func TestQuery(t *testing.T) {
	n, fake := newTestNode(t, "0")
	fake.SetQueryResult(
		[]string{"id", "name"},
		[]string{"integer", "text"},
		[][]any{{1, "fiona"}},
	)

	q, err := n.Query("SELECT * FROM foo", harness.LevelWeak)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, q.Columns)
	assert.Equal(t, []string{"integer", "text"}, q.Types)
	require.Len(t, q.Values, 1)
	assert.Equal(t, []any{float64(1), "fiona"}, q.Values[0])
	assert.Empty(t, q.Err)
}

func TestExecute(t *testing.T) {
	n, fake := newTestNode(t, "0")
	fake.SetRole("Leader")

	res, err := n.Execute(`INSERT INTO foo(name) VALUES("fiona")`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsAffected)
	assert.Equal(t, int64(1), res.LastInsertID)

	res, err = n.Execute(`INSERT INTO foo(name) VALUES("declan")`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LastInsertID)

	assert.Len(t, fake.Statements(), 2)
}

func TestRedirectTarget(t *testing.T) {
	n, fake := newTestNode(t, "1")
	fake.SetLeader("0", "127.0.0.1:4001")

	target, err := n.RedirectTarget()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4001", target)

	// The leader accepts writes instead of redirecting.
	fake.SetRole("Leader")
	target, err = n.RedirectTarget()
	require.NoError(t, err)
	assert.Empty(t, target)
}

func TestEqualIsIdentityByID(t *testing.T) {
	opts := testOptions()
	a, err := harness.NewNode("0", opts)
	require.NoError(t, err)
	defer a.Deprovision()
	b, err := harness.NewNode("0", opts)
	require.NoError(t, err)
	defer b.Deprovision()
	c, err := harness.NewNode("1", opts)
	require.NoError(t, err)
	defer c.Deprovision()

	// Same ID, different addresses and directories: still the same node.
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestScrambleNetwork(t *testing.T) {
	n, err := harness.NewNode("0", testOptions())
	require.NoError(t, err)
	defer n.Deprovision()

	api, raft, dir := n.APIAddr, n.RaftAddr, n.Dir
	require.NoError(t, n.ScrambleNetwork())

	assert.NotEqual(t, api, n.APIAddr)
	assert.NotEqual(t, raft, n.RaftAddr)
	assert.Equal(t, dir, n.Dir, "working directory must survive a scramble")
}

// writeStubDaemon writes a shell script that ignores its arguments and
// idles, standing in for a binary that spawns but never serves.
func writeStubDaemon(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "rsqld")
	script := "#!/bin/sh\nwhile true; do sleep 1; done\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestProcessLifecycle(t *testing.T) {
	opts := testOptions()
	opts.Binary = writeStubDaemon(t)

	n, err := harness.NewNode("9", opts)
	require.NoError(t, err)

	require.NoError(t, n.Start(context.Background(), "", false, 0))
	assert.True(t, n.Running())

	// Starting an already-running node changes nothing.
	require.NoError(t, n.Start(context.Background(), "", false, 0))

	require.NoError(t, n.Stop())
	assert.False(t, n.Running())
	require.NoError(t, n.Stop())

	require.NoError(t, n.Deprovision())
	_, err = os.Stat(n.Dir)
	assert.True(t, os.IsNotExist(err), "working directory must be removed")
	require.NoError(t, n.Deprovision())
}

func TestStartWaitTimesOutOnUnreachableDaemon(t *testing.T) {
	opts := testOptions()
	opts.Binary = writeStubDaemon(t)

	n, err := harness.NewNode("9", opts)
	require.NoError(t, err)
	defer n.Deprovision()

	err = n.Start(context.Background(), "", true, 200*time.Millisecond)
	var te *poll.TimeoutError
	require.ErrorAs(t, err, &te)

	// The process stays owned; deprovisioning reaps it.
	assert.True(t, n.Running())
}

func TestStartSpawnFailure(t *testing.T) {
	opts := testOptions()
	opts.Binary = filepath.Join(t.TempDir(), "does-not-exist")

	n, err := harness.NewNode("9", opts)
	require.NoError(t, err)
	defer n.Deprovision()

	err = n.Start(context.Background(), "", false, 0)
	var pe *harness.ProcessError
	require.ErrorAs(t, err, &pe)
	assert.False(t, n.Running())
}

func TestScrambleWhileRunningFails(t *testing.T) {
	opts := testOptions()
	opts.Binary = writeStubDaemon(t)

	n, err := harness.NewNode("9", opts)
	require.NoError(t, err)
	defer n.Deprovision()

	require.NoError(t, n.Start(context.Background(), "", false, 0))

	err = n.ScrambleNetwork()
	var pe *harness.ProcessError
	assert.ErrorAs(t, err, &pe)
}
