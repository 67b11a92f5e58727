package cli

import (
	"context"
	"fmt"

	commands "github.com/urfave/cli/v3"

	"github.com/raftbed/raftbed/internal/config"
	"github.com/raftbed/raftbed/internal/registry"
	_ "github.com/raftbed/raftbed/internal/scenarios"
)

// Run executes the named scenarios, or every registered one when none are
// given. A failing suite fails the command.
func Run(ctx context.Context, cmd *commands.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if binary := cmd.String("binary"); binary != "" {
		cfg.Binary = binary
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := config.NewLogger(cmd.Bool("verbose"))
	if err != nil {
		return err
	}
	defer log.Sync()

	keys := cmd.Args().Slice()
	if len(keys) == 0 {
		keys = registry.Keys()
	}

	failed := 0
	for _, key := range keys {
		sc, err := registry.Get(key)
		if err != nil {
			return err
		}

		fmt.Println(sc.Name)
		if !sc.Fn().Run(ctx, cfg, log) {
			failed++
		}
		fmt.Println()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(keys))
	}
	return nil
}

// List prints the registered scenarios.
func List(ctx context.Context, cmd *commands.Command) error {
	fmt.Println("Available scenarios:")
	fmt.Println()

	for _, key := range registry.Keys() {
		sc, err := registry.Get(key)
		if err != nil {
			continue
		}
		fmt.Printf("  %-22s - %s\n", key, sc.Summary)
	}

	fmt.Println()
	fmt.Printf("Run with: raftbed run [scenario...] (binary from --binary or $%s)\n", config.BinaryPathEnv)
	return nil
}
