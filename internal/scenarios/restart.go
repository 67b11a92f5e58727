package scenarios

import (
	"github.com/raftbed/raftbed/internal/harness"
	"github.com/raftbed/raftbed/internal/registry"
	"github.com/raftbed/raftbed/internal/suite"
)

func init() {
	registry.Register("restart-new-identity", &registry.Scenario{
		Name:    "Restart with a new network identity",
		Summary: "A node restarting on different addresses rejoins the cluster and catches up.",
		Fn:      restartNewIdentity,
	})
}

func restartNewIdentity() *suite.Suite {
	return suite.New().
		Setup(provision(3)).
		Test("a node rejoins under new addresses", func(r *suite.Run) {
			_, err := r.Cluster.WaitForLeader(r.Ctx, nil, 0)
			suite.Check(err)

			followers := r.Cluster.Followers()
			suite.Truef(len(followers) > 0, "expected at least one follower")
			f := followers[0]
			suite.Check(f.Stop())

			leader, err := r.Cluster.WaitForLeader(r.Ctx, nil, 0)
			suite.Check(err)

			res, err := leader.Execute("CREATE TABLE foo (id INTEGER NOT NULL PRIMARY KEY, name TEXT)")
			suite.Check(err)
			suite.Equal("", res.Err, "create table error")

			res, err = leader.Execute(`INSERT INTO foo(name) VALUES("fiona")`)
			suite.Check(err)
			suite.Equal(int64(1), res.RowsAffected, "rows affected")

			suite.Check(f.ScrambleNetwork())
			suite.Check(f.Start(r.Ctx, leader.APIAddr, true, 0))

			_, err = f.WaitForLeader(r.Ctx, 0)
			suite.Check(err)

			idx, err := leader.AppliedIndex()
			suite.Check(err)
			suite.Check(f.WaitForAppliedIndex(r.Ctx, idx, 0))

			q, err := f.Query("SELECT * FROM foo", harness.LevelNone)
			suite.Check(err)
			suite.DeepEqual([][]any{{float64(1), "fiona"}}, q.Values, "rows on the rejoined node")
		})
}
