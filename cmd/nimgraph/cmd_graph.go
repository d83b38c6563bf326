package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/nim-graph/engine"
	"github.com/becomeliminal/nim-graph/llm/mock"
	"github.com/becomeliminal/nim-graph/memory"
	"github.com/becomeliminal/nim-graph/memory/embedder/hashing"
	"github.com/becomeliminal/nim-graph/memory/store/chromem"
	"github.com/becomeliminal/nim-graph/orchestrator"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Work with graph topology files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Load and compile a topology file against the standard nodes",
		Args:  cobra.ExactArgs(1),
		RunE:  runGraphValidate,
	})
	return cmd
}

// runGraphValidate compiles the file with offline collaborators. Nothing is
// executed, so no credentials are needed.
func runGraphValidate(cmd *cobra.Command, args []string) error {
	store, err := chromem.New()
	if err != nil {
		return err
	}
	deps := orchestrator.Deps{
		Model:  mock.Offline(),
		Memory: memory.NewManager(store, hashing.New(0), nil),
	}
	def, err := loadTopology(args[0], deps)
	if err != nil {
		return err
	}
	if _, err := engine.Compile(def); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", strings.Join(def.Nodes(), ", "))
	return nil
}
