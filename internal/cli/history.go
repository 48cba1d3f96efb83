package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/redub/redub/internal/format"
	"github.com/redub/redub/internal/history"
)

// defaultHistoryLimit is the number of runs listed by "redub history".
const defaultHistoryLimit = 10

// defaultPruneAge is the --older-than default of "history prune".
const defaultPruneAge = 30 * 24 * time.Hour

// runIDWidth is the ID prefix length shown in run listings.
const runIDWidth = 8

// HistoryCmd creates the history command.
// The env parameter provides injectable dependencies for testing.
func HistoryCmd(env *Env) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past redub runs",
		Long: `Show past redub runs recorded in the local history database.

Without arguments, lists the most recent runs. With a run ID (or any
unique prefix of one), shows every file of that run.`,
		Example: `  redub history
  redub history -n 50
  redub history 3f2a9c1e
  redub history prune --older-than 168h`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(env)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if len(args) == 1 {
				return runHistoryShow(cmd, env, store, args[0])
			}
			return runHistoryList(cmd, env, store, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Number of runs to list (0 = all)")
	cmd.AddCommand(historyPruneCmd(env))

	return cmd
}

// historyPruneCmd creates the "history prune" subcommand.
func historyPruneCmd(env *Env) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:     "prune",
		Short:   "Delete old runs from history",
		Example: `  redub history prune --older-than 720h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistory(env)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			return runHistoryPrune(cmd, env, store, olderThan)
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", defaultPruneAge, "Delete runs started before this age")
	return cmd
}

// openHistory opens the ledger at the configured history-db path.
func openHistory(env *Env) (HistoryStore, error) {
	cfg, err := env.ConfigLoader.Load(nil)
	if err != nil {
		return nil, err
	}
	path := cfg.HistoryDB
	if path == "" {
		if path, err = history.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return env.History.Open(path)
}

// runHistoryList prints the most recent runs as a table.
func runHistoryList(cmd *cobra.Command, env *Env, store HistoryStore, limit int) error {
	runs, err := store.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(env.Stdout, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(env.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tFILES\tMODEL\tMODE\tELAPSED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			fileCounts(r.Files),
			r.Model,
			r.Mode,
			runElapsed(r),
		)
	}
	return tw.Flush()
}

// runHistoryShow prints one run with its files.
func runHistoryShow(cmd *cobra.Command, env *Env, store HistoryStore, prefix string) error {
	run, err := store.Get(cmd.Context(), prefix)
	if err != nil {
		return err
	}
	writeRun(env.Stdout, run)
	return nil
}

// runHistoryPrune deletes runs older than age.
func runHistoryPrune(cmd *cobra.Command, env *Env, store HistoryStore, age time.Duration) error {
	if age <= 0 {
		return fmt.Errorf("--older-than must be positive, got %s", age)
	}
	n, err := store.Prune(cmd.Context(), env.Now().Add(-age))
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Stderr, "Pruned %d run(s) older than %s\n", n, age)
	return nil
}

func writeRun(w io.Writer, r *history.Run) {
	fmt.Fprintf(w, "Run:       %s\n", r.ID)
	fmt.Fprintf(w, "Started:   %s\n", r.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Elapsed:   %s\n", runElapsed(*r))
	fmt.Fprintf(w, "Reference: %s\n", r.Reference)
	fmt.Fprintf(w, "Model:     %s (%s)\n", r.Model, r.Mode)
	fmt.Fprintf(w, "Files:     %s\n", fileCounts(r.Files))
	for _, f := range r.Files {
		if f.Failed() {
			fmt.Fprintf(w, "  FAIL  %s: %s\n", f.Input, f.Error)
			continue
		}
		fmt.Fprintf(w, "  ok    %s -> %s (%s, %d chunks", f.Input, f.Output, format.Duration(f.Duration()), f.Chunks)
		if f.Irreducible > 0 {
			fmt.Fprintf(w, ", %d irreducible", f.Irreducible)
		}
		if f.Warnings > 0 {
			fmt.Fprintf(w, ", %d warnings", f.Warnings)
		}
		fmt.Fprintln(w, ")")
	}
}

func shortID(id string) string {
	if len(id) > runIDWidth {
		return id[:runIDWidth]
	}
	return id
}

// fileCounts renders "<ok>/<total>".
func fileCounts(files []history.FileRecord) string {
	ok := 0
	for _, f := range files {
		if !f.Failed() {
			ok++
		}
	}
	return fmt.Sprintf("%d/%d", ok, len(files))
}

func runElapsed(r history.Run) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return format.Elapsed(r.FinishedAt.Sub(r.StartedAt))
}
