package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tessera/internal/store"
)

// NewCollectionsCommand creates the collections command.
func NewCollectionsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "collections",
		Short:         "List the collections in the database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollections(rootOpts, cmd)
		},
	}
	return cmd
}

func runCollections(opts *RootOptions, cmd *cobra.Command) error {
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

	names, err := st.Collections(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "listing collections", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"collections": names})
	}
	for _, n := range names {
		fmt.Fprintln(formatter.Writer, n)
	}
	fmt.Fprintf(formatter.Writer, "%d collection(s)\n", len(names))
	return nil
}
