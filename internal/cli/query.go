package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tessera/internal/engine"
	"github.com/roach88/tessera/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Explain       bool
	Optimize      bool
	AllowFullScan bool
	UseCursor     bool
	Cursor        string
	Batch         int
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <aql>",
		Short: "Run an AQL query against the database",
		Long: `Run an AQL query and print the result envelope.

Examples:
  tessera query --db data.db 'FOR doc IN users FILTER doc.age > 21 RETURN doc.name'
  tessera query --db data.db --cursor-paging --batch 50 'FOR doc IN users SORT doc.age ASC RETURN doc'
  tessera query --db data.db --explain 'FOR doc IN users FILTER doc.city == "Oslo" RETURN doc'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "attach index consultation order to the response")
	cmd.Flags().BoolVar(&opts.Optimize, "optimize", false, "enable cost-based access ordering for hybrid queries")
	cmd.Flags().BoolVar(&opts.AllowFullScan, "allow-full-scan", false, "permit scanning collections without a covering index")
	cmd.Flags().BoolVar(&opts.UseCursor, "cursor-paging", false, "paginate results with an opaque cursor")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "resume from a cursor token")
	cmd.Flags().IntVar(&opts.Batch, "batch", 0, "page size for cursor pagination")

	return cmd
}

func runQuery(opts *QueryOptions, query string, cmd *cobra.Command) error {
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

	eng := engine.New(st, st, st, st, engine.Options{})
	resp, err := eng.Execute(cmd.Context(), engine.Request{
		Query:         query,
		AllowFullScan: opts.AllowFullScan,
		Optimize:      opts.Optimize,
		Explain:       opts.Explain,
		UseCursor:     opts.UseCursor || opts.Cursor != "",
		Cursor:        opts.Cursor,
		BatchSize:     opts.Batch,
	})
	if err != nil {
		if ferr := formatter.QueryFailure(err); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitQueryError, "query failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(resp)
	}
	return printEnvelope(formatter, resp)
}

// printEnvelope renders the response in a compact human-readable form:
// one JSON row per line plus a trailer with pagination state.
func printEnvelope(f *OutputFormatter, resp *engine.Response) error {
	rows := resp.Entities
	if rows == nil {
		rows = resp.Items
	}
	for _, row := range rows {
		line, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("render row: %w", err)
		}
		fmt.Fprintln(f.Writer, string(line))
	}
	fmt.Fprintf(f.Writer, "%d row(s)", resp.Count)
	if resp.Type != "" {
		fmt.Fprintf(f.Writer, " [%s]", resp.Type)
	}
	fmt.Fprintln(f.Writer)
	if resp.HasMore {
		fmt.Fprintf(f.Writer, "more rows available; resume with --cursor %s\n", resp.NextCursor)
	}
	if resp.Plan != nil {
		plan, err := json.Marshal(resp.Plan)
		if err != nil {
			return fmt.Errorf("render plan: %w", err)
		}
		fmt.Fprintf(f.Writer, "plan: %s\n", plan)
	}
	return nil
}
