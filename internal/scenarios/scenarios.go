// Package scenarios contains the end-to-end suites run against a real
// rsqld binary. Each scenario provisions its own cluster and is
// registered under a key the CLI resolves.
package scenarios

import (
	"github.com/raftbed/raftbed/internal/harness"
	"github.com/raftbed/raftbed/internal/suite"
)

// provision returns the shared Setup: a cluster of the given size, node 0
// booting alone and the rest joining through it.
func provision(size int) func(*suite.Run) error {
	return func(r *suite.Run) error {
		c, err := harness.ProvisionCluster(r.Ctx, size, r.Config.Options(r.Log))
		if err != nil {
			return err
		}
		r.Cluster = c
		return nil
	}
}
