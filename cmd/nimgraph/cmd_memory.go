package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or reset long-term memory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget every stored memory",
		Args:  cobra.NoArgs,
		RunE:  runMemoryReset,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "search <query>",
		Short: "Show the memories closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runMemorySearch,
	})
	return cmd
}

func openMemory() (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if err := a.buildMemory(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func runMemoryReset(cmd *cobra.Command, _ []string) error {
	a, err := openMemory()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	n, err := a.memory.Count(ctx)
	if err != nil {
		return err
	}
	if err := a.memory.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d memories\n", n)
	return nil
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	a, err := openMemory()
	if err != nil {
		return err
	}
	defer a.Close()

	matches, err := a.memory.Search(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(matches) == 0 {
		fmt.Fprintln(out, "no memories")
		return nil
	}
	for _, m := range matches {
		fmt.Fprintf(out, "%.3f  %s  (%s)\n", m.Similarity, m.Text, m.Source)
	}
	return nil
}
