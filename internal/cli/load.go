package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tessera/internal/dataset"
	"github.com/roach88/tessera/internal/store"
)

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <dataset.yaml> [more.yaml ...]",
		Short: "Load dataset fixtures into the database",
		Long: `Load one or more YAML dataset files into the database.

A dataset file declares collections (with optional CUE schemas and
index specifications), documents, graphs, and edges. Indexes are
created before documents load, so every write maintains them.

Example:
  tessera load --db data.db fixtures/users.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runLoad(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(opts.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("opening database %s", opts.DBPath), err)
	}
	defer st.Close()

	total := 0
	for _, path := range paths {
		ds, err := dataset.Load(path)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("loading %s", path), err)
		}
		if err := ds.Apply(cmd.Context(), st); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("applying %s", path), err)
		}
		for _, c := range ds.Collections {
			total += len(c.Documents)
		}
		formatter.VerboseLog("loaded %s", path)
	}

	return formatter.Success(map[string]any{
		"files":     len(paths),
		"documents": total,
	})
}
