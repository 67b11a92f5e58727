package scenarios

import (
	"fmt"

	"github.com/raftbed/raftbed/internal/registry"
	"github.com/raftbed/raftbed/internal/suite"
)

func init() {
	registry.Register("leader-redirect", &registry.Scenario{
		Name:    "Leader redirect",
		Summary: "Followers redirect writes to the current leader, tracking leadership changes.",
		Fn:      leaderRedirect,
	})
}

func leaderRedirect() *suite.Suite {
	return suite.New().
		Setup(provision(3)).
		Test("followers redirect writes to the leader", func(r *suite.Run) {
			leader, err := r.Cluster.WaitForLeader(r.Ctx, nil, 0)
			suite.Check(err)

			followers := r.Cluster.Followers()
			suite.Equal(2, len(followers), "follower count")

			for _, f := range followers {
				target, err := f.RedirectTarget()
				suite.Check(err)
				suite.Equal(leader.APIAddr, target, fmt.Sprintf("redirect target reported by node %s", f.ID))
			}
		}).
		Test("redirects track a leadership change", func(r *suite.Run) {
			old, err := r.Cluster.WaitForLeader(r.Ctx, nil, 0)
			suite.Check(err)
			suite.Check(old.Stop())

			next, err := r.Cluster.WaitForLeader(r.Ctx, old, 0)
			suite.Check(err)

			for _, f := range r.Cluster.Followers() {
				target, err := f.RedirectTarget()
				suite.Check(err)
				suite.Equal(next.APIAddr, target, fmt.Sprintf("redirect target reported by node %s", f.ID))
			}
		})
}
