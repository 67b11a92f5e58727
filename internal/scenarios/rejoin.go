package scenarios

import (
	"github.com/raftbed/raftbed/internal/harness"
	"github.com/raftbed/raftbed/internal/registry"
	"github.com/raftbed/raftbed/internal/suite"
)

func init() {
	registry.Register("fail-rejoin", &registry.Scenario{
		Name:    "Failure and rejoin",
		Summary: "A node that fails rejoins the cluster and picks up the writes it missed.",
		Fn:      failRejoin,
	})
}

func failRejoin() *suite.Suite {
	return suite.New().
		Setup(provision(3)).
		Test("writes on the leader are visible to reads", func(r *suite.Run) {
			leader, err := r.Cluster.WaitForLeader(r.Ctx, nil, 0)
			suite.Check(err)

			res, err := leader.Execute("CREATE TABLE foo (id INTEGER NOT NULL PRIMARY KEY, name TEXT)")
			suite.Check(err)
			suite.Equal("", res.Err, "create table error")

			res, err = leader.Execute(`INSERT INTO foo(name) VALUES("fiona")`)
			suite.Check(err)
			suite.Equal(int64(1), res.RowsAffected, "rows affected")
			suite.Equal(int64(1), res.LastInsertID, "last insert id")

			q, err := leader.Query("SELECT * FROM foo", harness.LevelWeak)
			suite.Check(err)
			suite.DeepEqual([]string{"id", "name"}, q.Columns, "columns")
			suite.DeepEqual([]string{"integer", "text"}, q.Types, "types")
			suite.DeepEqual([][]any{{float64(1), "fiona"}}, q.Values, "rows")
		}).
		Test("a restarted node catches up on missed writes", func(r *suite.Run) {
			old, err := r.Cluster.WaitForLeader(r.Ctx, nil, 0)
			suite.Check(err)
			suite.Check(old.Stop())

			next, err := r.Cluster.WaitForLeader(r.Ctx, old, 0)
			suite.Check(err)

			q, err := next.Query("SELECT * FROM foo", harness.LevelWeak)
			suite.Check(err)
			suite.DeepEqual([][]any{{float64(1), "fiona"}}, q.Values, "rows on the new leader")

			res, err := next.Execute(`INSERT INTO foo(name) VALUES("declan")`)
			suite.Check(err)
			suite.Equal(int64(2), res.LastInsertID, "last insert id")

			suite.Check(old.Start(r.Ctx, "", true, 0))
			_, err = old.WaitForLeader(r.Ctx, 0)
			suite.Check(err)

			idx, err := next.AppliedIndex()
			suite.Check(err)
			suite.Check(old.WaitForAppliedIndex(r.Ctx, idx, 0))

			// A none-consistency read answers from local state only, so it
			// proves the rejoined node itself caught up.
			q, err = old.Query("SELECT * FROM foo", harness.LevelNone)
			suite.Check(err)
			suite.DeepEqual([][]any{{float64(1), "fiona"}, {float64(2), "declan"}}, q.Values, "rows on the rejoined node")
		})
}
