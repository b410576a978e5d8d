// Package cli is the anvilpkg command line.
package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// Version is set via -ldflags.
var Version = "dev"

// NewRootCommand builds the anvilpkg command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "anvilpkg",
		Short: "Resolve and apply package updates across projects",
		Long: `anvilpkg updates the packages referenced by project manifests
(packages.yaml) from folder feeds into a shared package store.

Examples:
  anvilpkg install .                     Update every package of every project below .
  anvilpkg install --id Foo --safe app   Update Foo within its minor line
  anvilpkg install --id Foo --version 2.0.0 app/packages.yaml`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newInstallCommand())
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}
