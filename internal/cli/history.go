package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dl-alexandre/icdl/internal/config"
	"github.com/dl-alexandre/icdl/internal/journal"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past download runs",
	Long: `Show the runs recorded in the journal, newest first. With --run, list the
files of that run; --failed narrows the list to failures.`,
	Example: `  icdl history
  icdl history --run 3f0c... --failed`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historyRunID  string
	historyLimit  int
	historyFailed bool
)

func init() {
	historyCmd.Flags().StringVar(&historyRunID, "run", "", "Show the results of one run")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of runs to list")
	historyCmd.Flags().BoolVar(&historyFailed, "failed", false, "Only show failed files (with --run)")
	rootCmd.AddCommand(historyCmd)
}

// runList renders journal runs
type runList []journal.Run

func (l runList) Headers() []string {
	return []string{"Run", "Started", "Dest", "Done", "Skipped", "Resumed", "Failed", "Bytes", "State"}
}

func (l runList) Rows() [][]string {
	rows := make([][]string, len(l))
	for i, r := range l {
		rows[i] = []string{
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			config.Truncate(r.DestRoot, 40),
			strconv.Itoa(r.Completed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Resumed),
			strconv.Itoa(r.Failed),
			humanize.IBytes(uint64(r.BytesTransferred)),
			runState(r),
		}
	}
	return rows
}

func (l runList) EmptyMessage() string {
	return "No runs recorded"
}

func runState(r journal.Run) string {
	switch {
	case r.FinishedAt == nil:
		return "running"
	case r.Interrupted:
		return "interrupted"
	case r.Failed > 0:
		return "failed"
	}
	return "ok"
}

// runDetail is one run with its file results
type runDetail struct {
	Run     journal.Run      `json:"run"`
	Results []journal.Result `json:"results"`
}

func (d runDetail) AsTableRenderer() types.TableRenderer {
	return resultTable(d.Results)
}

type resultTable []journal.Result

func (t resultTable) Headers() []string {
	return []string{"Path", "Status", "Bytes", "Duration", "Error"}
}

func (t resultTable) Rows() [][]string {
	rows := make([][]string, len(t))
	for i, r := range t {
		errText := ""
		if r.ErrorCode != "" {
			errText = fmt.Sprintf("[%s] %s", r.ErrorCode, r.ErrorMessage)
		}
		rows[i] = []string{
			config.Truncate(r.RelativePath, 60),
			r.Status,
			humanize.IBytes(uint64(r.BytesWritten)),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
			config.Truncate(errText, 60),
		}
	}
	return rows
}

func (t resultTable) EmptyMessage() string {
	return "No results recorded for this run"
}

func runHistory(cmd *cobra.Command, args []string) error {
	out := newOutput("")
	ctx := cmd.Context()

	path, err := config.GetJournalPath()
	if err != nil {
		return fail(out, "history", err)
	}
	db, err := journal.Open(path)
	if err != nil {
		return fail(out, "history", err)
	}
	defer db.Close()

	if historyRunID == "" {
		runs, err := db.ListRuns(ctx, historyLimit)
		if err != nil {
			return fail(out, "history", err)
		}
		return out.WriteSuccess("history", runList(runs))
	}

	run, err := db.GetRun(ctx, historyRunID)
	if errors.Is(err, journal.ErrRunNotFound) {
		return fail(out, "history", utils.NewCLIError(utils.ErrCodeFileNotFound,
			fmt.Sprintf("No run with ID %s", historyRunID)).Err())
	}
	if err != nil {
		return fail(out, "history", err)
	}
	results, err := db.ListResults(ctx, historyRunID, historyFailed)
	if err != nil {
		return fail(out, "history", err)
	}
	return out.WriteSuccess("history", runDetail{Run: *run, Results: results})
}
