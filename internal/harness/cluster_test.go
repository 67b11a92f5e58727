package harness_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raftbed/raftbed/internal/fakenode"
	"github.com/raftbed/raftbed/internal/harness"
	"github.com/raftbed/raftbed/internal/poll"
)

// newFakeCluster builds a three-member view over fake daemons, all
// followers with no leader until scripted otherwise.
func newFakeCluster(t *testing.T) (*harness.Cluster, []*harness.Node, []*fakenode.Server) {
	t.Helper()

	var nodes []*harness.Node
	var fakes []*fakenode.Server
	for i := range 3 {
		n, fake := newTestNode(t, strconv.Itoa(i))
		nodes = append(nodes, n)
		fakes = append(fakes, fake)
	}

	return harness.NewCluster(testOptions(), nodes...), nodes, fakes
}

func TestClusterNodes(t *testing.T) {
	c, _, _ := newFakeCluster(t)
	assert.Equal(t, 3, c.Len())
	assert.Len(t, c.Nodes(), 3)
}

func TestClusterWaitForLeader(t *testing.T) {
	c, _, fakes := newFakeCluster(t)
	fakes[1].SetRole("Leader")

	leader, err := c.WaitForLeader(context.Background(), nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1", leader.ID)
}

func TestClusterWaitForLeaderConverges(t *testing.T) {
	c, _, fakes := newFakeCluster(t)

	go func() {
		time.Sleep(50 * time.Millisecond)
		fakes[2].SetRole("Leader")
	}()

	leader, err := c.WaitForLeader(context.Background(), nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "2", leader.ID)
}

func TestClusterWaitForLeaderExcludes(t *testing.T) {
	c, nodes, fakes := newFakeCluster(t)
	fakes[0].SetRole("Leader")

	_, err := c.WaitForLeader(context.Background(), nodes[0], 150*time.Millisecond)
	var te *poll.TimeoutError
	require.ErrorAs(t, err, &te, "the excluded node must not be returned as leader")

	fakes[1].SetRole("Leader")
	leader, err := c.WaitForLeader(context.Background(), nodes[0], time.Second)
	require.NoError(t, err)
	assert.Equal(t, "1", leader.ID)
}

func TestClusterFollowers(t *testing.T) {
	c, _, fakes := newFakeCluster(t)
	fakes[0].SetRole("Leader")
	fakes[2].SetRole("Candidate")

	fs := c.Followers()
	require.Len(t, fs, 1)
	assert.Equal(t, "1", fs[0].ID)

	// An unreachable member is not a follower, whatever it last reported.
	dead, err := harness.NewNode("3", testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, dead.Deprovision()) })
	c.Add(dead)

	fs = c.Followers()
	require.Len(t, fs, 1)
}

func TestClusterDeprovisionIdempotent(t *testing.T) {
	opts := testOptions()
	var nodes []*harness.Node
	for i := range 2 {
		n, err := harness.NewNode(strconv.Itoa(i), opts)
		require.NoError(t, err)
		nodes = append(nodes, n)
	}
	c := harness.NewCluster(opts, nodes...)

	require.NoError(t, c.Deprovision())
	for _, n := range nodes {
		_, err := os.Stat(n.Dir)
		assert.True(t, os.IsNotExist(err))
	}

	require.NoError(t, c.Deprovision())
}

func TestProvisionClusterSpawnFailureCleansUp(t *testing.T) {
	opts := testOptions()
	opts.Binary = "/does/not/exist/rsqld"

	_, err := harness.ProvisionCluster(context.Background(), 1, opts)
	var pe *harness.ProcessError
	assert.ErrorAs(t, err, &pe)
}
