// Package suite runs ordered scenario tests over one provisioned
// cluster, reporting pass/fail per test with a teardown guarantee.
package suite

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/raftbed/raftbed/internal/config"
	"github.com/raftbed/raftbed/internal/harness"
)

var (
	green     = color.New(color.FgGreen).SprintFunc()
	red       = color.New(color.FgRed).SprintFunc()
	yellow    = color.New(color.FgYellow).SprintFunc()
	bold      = color.New(color.Bold).SprintFunc()
	checkMark = green("✓")
	crossMark = red("✗")
	skipMark  = yellow("○")
)

// Run carries the shared state of one scenario run: the cluster under
// test and the resolved configuration. Setup assigns the cluster; the
// suite deprovisions it when the run ends, whatever happened before.
type Run struct {
	Ctx     context.Context
	Cluster *harness.Cluster
	Config  *config.Config
	Log     *zap.Logger
}

// Suite is an ordered set of tests over one provisioned cluster.
type Suite struct {
	setupFn func(*Run) error
	tests   []TestFunc
}

type TestFunc struct {
	Name string
	Fn   func(*Run)
}

func New() *Suite {
	return &Suite{tests: make([]TestFunc, 0)}
}

// Setup adds a function that provisions the run before any test.
func (s *Suite) Setup(fn func(*Run) error) *Suite {
	s.setupFn = fn
	return s
}

// Test adds a test case to the suite.
func (s *Suite) Test(name string, fn func(*Run)) *Suite {
	s.tests = append(s.tests, TestFunc{Name: name, Fn: fn})
	return s
}

// Run executes setup then each test in order, tearing the cluster down at
// the end. Failures surface as panics from the assert helpers: the first
// one marks the suite failed and later tests are skipped.
func (s *Suite) Run(ctx context.Context, cfg *config.Config, log *zap.Logger) bool {
	start := time.Now()

	r := &Run{Ctx: ctx, Config: cfg, Log: log}
	defer func() {
		if r.Cluster != nil {
			if err := r.Cluster.Deprovision(); err != nil {
				log.Warn("cluster deprovision", zap.Error(err))
			}
		}
	}()

	failed := false
	if s.setupFn != nil {
		if err := s.setupFn(r); err != nil {
			fmt.Printf(" %s SETUP\n", crossMark)
			fmt.Printf("   %s\n", err)
			failed = true
		}
	}

	passed := 0
	for _, test := range s.tests {
		if failed {
			fmt.Printf(" %s %s [skipped]\n", skipMark, test.Name)
			continue
		}

		select {
		case <-ctx.Done():
			return false
		default:
		}

		func() {
			defer func() {
				if err := recover(); err != nil {
					failed = true
					fmt.Printf(" %s %s\n", crossMark, test.Name)
					fmt.Printf("   %s\n", err)
				}
			}()

			test.Fn(r)

			passed++
			fmt.Printf(" %s %s\n", checkMark, test.Name)
		}()
	}

	duration := time.Since(start).Round(time.Millisecond)
	if failed {
		fmt.Printf("\n%s %d/%d tests passed (took %s)\n", bold("FAILED"), passed, len(s.tests), duration)
	} else {
		fmt.Printf("\n%s %s (took %s)\n", bold("PASSED"), checkMark, duration)
	}

	return !failed
}
