package scenarios

import (
	"github.com/raftbed/raftbed/internal/harness"
	"github.com/raftbed/raftbed/internal/registry"
	"github.com/raftbed/raftbed/internal/suite"
)

func init() {
	registry.Register("election", &registry.Scenario{
		Name:    "Leader election",
		Summary: "A stable cluster elects one leader, replaces it when it stops, and readmits it on restart.",
		Fn:      election,
	})
}

func election() *suite.Suite {
	var stopped *harness.Node

	return suite.New().
		Setup(provision(3)).
		Test("elects exactly one leader", func(r *suite.Run) {
			_, err := r.Cluster.WaitForLeader(r.Ctx, nil, 0)
			suite.Check(err)

			leaders := 0
			for _, n := range r.Cluster.Nodes() {
				if n.IsLeader() {
					leaders++
				}
			}
			suite.Equal(1, leaders, "leader count in a quiescent cluster")
		}).
		Test("elects a replacement when the leader stops", func(r *suite.Run) {
			leader, err := r.Cluster.WaitForLeader(r.Ctx, nil, 0)
			suite.Check(err)

			suite.Check(leader.Stop())
			stopped = leader

			next, err := r.Cluster.WaitForLeader(r.Ctx, leader, 0)
			suite.Check(err)
			suite.Truef(!next.Equal(leader), "replacement leader must differ from node %s", leader.ID)
		}).
		Test("readmits the stopped leader", func(r *suite.Run) {
			suite.Check(stopped.Start(r.Ctx, "", true, 0))

			_, err := stopped.WaitForLeader(r.Ctx, 0)
			suite.Check(err)
		})
}
