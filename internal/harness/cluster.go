package harness

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/raftbed/raftbed/internal/poll"
	"github.com/raftbed/raftbed/pkg/threadsafe"
)

// Cluster is an unordered view over a set of nodes, keyed by node ID. It
// derives cluster-level facts by querying every member; it keeps no state
// of its own beyond membership.
type Cluster struct {
	nodes *threadsafe.Map[string, *Node]
	opts  Options
	log   *zap.Logger
}

// NewCluster builds a view over already-constructed nodes.
func NewCluster(opts Options, nodes ...*Node) *Cluster {
	opts = opts.normalized()
	c := &Cluster{
		nodes: threadsafe.NewMap[string, *Node](),
		opts:  opts,
		log:   opts.Logger.Named("cluster"),
	}
	for _, n := range nodes {
		c.nodes.Set(n.ID, n)
	}
	return c
}

// Add inserts a node into the view. A node with a member's ID replaces
// that member.
func (c *Cluster) Add(n *Node) {
	c.nodes.Set(n.ID, n)
}

// Nodes returns the current members in no particular order.
func (c *Cluster) Nodes() []*Node { return c.nodes.Values() }

// Len returns the number of members.
func (c *Cluster) Len() int { return c.nodes.Len() }

// WaitForLeader polls every member once per round until one reports the
// Leader role, skipping exclude if given. Brief windows with no leader,
// or more than one, are expected during elections; the first observation
// wins. timeout <= 0 falls back to Options.LeaderTimeout.
func (c *Cluster) WaitForLeader(ctx context.Context, exclude *Node, timeout time.Duration) (*Node, error) {
	if timeout <= 0 {
		timeout = c.opts.LeaderTimeout
	}

	leader, err := poll.Until(ctx, func() (*Node, error) {
		var found *Node
		c.nodes.Range(func(_ string, n *Node) bool {
			if n.Equal(exclude) {
				return true
			}
			if n.IsLeader() {
				found = n
				return false
			}
			return true
		})
		if found == nil {
			return nil, poll.ErrUnsatisfied
		}
		return found, nil
	}, c.opts.PollInterval, timeout)
	if err != nil {
		return nil, err
	}

	c.log.Debug("leader observed", zap.String("node", leader.ID))
	return leader, nil
}

// Followers is a single-pass snapshot of members currently reporting the
// Follower role. Callers needing convergence poll around it.
func (c *Cluster) Followers() []*Node {
	var fs []*Node
	c.nodes.Range(func(_ string, n *Node) bool {
		if n.IsFollower() {
			fs = append(fs, n)
		}
		return true
	})
	return fs
}

// Deprovision tears down every member, continuing past individual
// failures. Safe to call more than once.
func (c *Cluster) Deprovision() error {
	var errs []error
	for _, n := range c.Nodes() {
		if err := n.Deprovision(); err != nil {
			errs = append(errs, fmt.Errorf("node %s: %w", n.ID, err))
		}
	}
	return errors.Join(errs...)
}

// ProvisionCluster starts size nodes as one cluster: node 0 boots alone
// and the rest join through it. Each node is waited on until it has
// observed a leader. On failure everything already provisioned is torn
// down.
func ProvisionCluster(ctx context.Context, size int, opts Options) (*Cluster, error) {
	opts = opts.normalized()
	c := NewCluster(opts)

	join := ""
	for i := range size {
		node, err := NewNode(strconv.Itoa(i), opts)
		if err != nil {
			c.Deprovision()
			return nil, err
		}
		c.Add(node)

		if err := node.Start(ctx, join, true, 0); err != nil {
			c.Deprovision()
			return nil, err
		}
		if _, err := node.WaitForLeader(ctx, 0); err != nil {
			c.Deprovision()
			return nil, err
		}

		if i == 0 {
			join = node.APIAddr
		}
	}
	return c, nil
}
