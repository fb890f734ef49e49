package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dl-alexandre/icdl/internal/config"
	"github.com/dl-alexandre/icdl/internal/downloader"
	"github.com/dl-alexandre/icdl/internal/journal"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/planner"
	"github.com/dl-alexandre/icdl/internal/progress"
	"github.com/dl-alexandre/icdl/internal/resolver"
	"github.com/dl-alexandre/icdl/internal/scheduler"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type downloadOptions struct {
	items       []string
	albums      []string
	albumIDs    []string
	photosAll   bool
	dest        string
	concurrency int
	resume      bool
	progress    bool
	exclude     []string
	verify      bool
	duplicates  string
	noJournal   bool
}

var downloadOpts downloadOptions

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Mirror remote files to a local directory",
	Long: `Download the selected part of the remote store into --dest.

Without a selector the whole drive is mirrored. Re-running the same command
skips files whose local size already matches and continues partial ones, so an
interrupted run is resumed by simply starting it again.`,
	Example: `  icdl download --dest ~/backup
  icdl download --item /Documents/Taxes --item /Pictures --dest ~/backup
  icdl download --photos-album "Summer 2023" --dest ~/backup --concurrency 8
  icdl download --photos-all --dest ~/backup --exclude "*.mov"`,
	Args: cobra.NoArgs,
	RunE: runDownload,
}

func init() {
	f := downloadCmd.Flags()
	f.StringArrayVar(&downloadOpts.items, "item", nil, "Drive path to download (repeatable)")
	f.StringArrayVar(&downloadOpts.albums, "photos-album", nil, "Photos album title (repeatable)")
	f.StringArrayVar(&downloadOpts.albumIDs, "photos-album-id", nil, "Photos album ID (repeatable)")
	f.BoolVar(&downloadOpts.photosAll, "photos-all", false, "Download the whole photos library")
	f.StringVar(&downloadOpts.dest, "dest", "", "Destination directory (required)")
	f.IntVar(&downloadOpts.concurrency, "concurrency", 0, "Parallel transfers (default from config)")
	f.BoolVar(&downloadOpts.resume, "resume", true, "Continue partial files with range requests")
	f.BoolVar(&downloadOpts.progress, "progress", true, "Print periodic progress lines")
	f.StringArrayVar(&downloadOpts.exclude, "exclude", nil, "Glob of relative paths to skip (repeatable)")
	f.BoolVar(&downloadOpts.verify, "verify", false, "Check the MD5 of fetched content when the remote has one")
	f.StringVar(&downloadOpts.duplicates, "duplicates", "", "Duplicate-name policy: first or strict")
	f.BoolVar(&downloadOpts.noJournal, "no-journal", false, "Do not record the run in the journal")

	rootCmd.AddCommand(downloadCmd)
}

// runSettings is the merged view of flags and configuration for one run
type runSettings struct {
	selectors   []types.Selector
	dest        string
	concurrency int
	resume      bool
	progress    bool
	exclude     []string
	verify      bool
	duplicates  string
	journal     bool
}

// buildSelectors maps the selector flags, in flag order per kind. No
// selector means the whole drive.
func buildSelectors(opts downloadOptions) []types.Selector {
	var sels []types.Selector
	for _, item := range opts.items {
		sels = append(sels, types.ByPath(item))
	}
	for _, name := range opts.albums {
		sels = append(sels, types.ByName(name))
	}
	for _, id := range opts.albumIDs {
		sels = append(sels, types.ByID(id))
	}
	if opts.photosAll {
		sels = append(sels, types.AllPhotos())
	}
	if len(sels) == 0 {
		sels = append(sels, types.AllDrive())
	}
	return sels
}

func resolveRunSettings(opts downloadOptions, changed func(string) bool, cfg *config.Config) (runSettings, error) {
	s := runSettings{
		selectors:   buildSelectors(opts),
		concurrency: cfg.Concurrency,
		resume:      opts.resume,
		progress:    opts.progress,
		exclude:     opts.exclude,
		verify:      cfg.Verify,
		duplicates:  cfg.DuplicatePolicy,
		journal:     cfg.Journal && !opts.noJournal,
	}
	if changed("concurrency") {
		s.concurrency = opts.concurrency
	}
	if changed("verify") {
		s.verify = opts.verify
	}
	if opts.duplicates != "" {
		s.duplicates = opts.duplicates
	}

	if s.concurrency < 1 || s.concurrency > utils.MaxConcurrency {
		return s, utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Concurrency must be between 1 and %d", utils.MaxConcurrency)).
			WithContext("concurrency", s.concurrency).Err()
	}
	if s.duplicates != utils.DuplicatePolicyFirst && s.duplicates != utils.DuplicatePolicyStrict {
		return s, utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("Invalid duplicate policy %q. Must be 'first' or 'strict'", s.duplicates)).Err()
	}
	if opts.dest == "" {
		return s, utils.NewCLIError(utils.ErrCodeInvalidArgument, "--dest is required").Err()
	}
	dest, err := filepath.Abs(opts.dest)
	if err != nil {
		return s, utils.NewCLIError(utils.ErrCodeInvalidPath, fmt.Sprintf("Invalid destination: %v", err)).Err()
	}
	s.dest = dest
	return s, nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	runID := uuid.New().String()
	out := newOutput(runID)

	settings, err := resolveRunSettings(downloadOpts, cmd.Flags().Changed, appConfig)
	if err != nil {
		return fail(out, "download", err)
	}
	if err := os.MkdirAll(settings.dest, 0755); err != nil {
		return fail(out, "download", utils.NewCLIError(utils.ErrCodeInvalidPath,
			fmt.Sprintf("Cannot create destination: %v", err)).WithCause(err).Err())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithTraceID(ctx, runID)
	log := logger.WithTraceID(runID)

	sess, err := openSession(ctx, appConfig, flags, log)
	if err != nil {
		return fail(out, "download", err)
	}

	pathResolver := resolver.NewPathResolver(sess, selectorCacheTTL(flags), log)
	roots, err := pathResolver.ResolveAll(ctx, settings.selectors, resolver.ResolveOptions{
		DuplicatePolicy: settings.duplicates,
		UseCache:        !flags.NoCache,
	})
	if err != nil {
		return fail(out, "download", err)
	}

	plan, err := planner.NewPlanner(sess, planner.Options{Exclude: settings.exclude}, log)
	if err != nil {
		return fail(out, "download", err)
	}
	dl := downloader.NewDownloader(sess, downloader.Options{
		Resume:          settings.resume,
		Verify:          settings.verify,
		PreserveModTime: appConfig.PreserveModTime,
		CheckFreeSpace:  true,
	}, log)

	var reporter progress.Reporter = progress.Disabled()
	if settings.progress && !flags.Quiet && flags.OutputFormat != types.OutputFormatJSON {
		reporter = progress.NewLineReporter(os.Stderr, appConfig.GetProgressInterval())
	}

	var recorder scheduler.Recorder
	jr := openJournal(ctx, runID, settings, log)
	if jr != nil {
		defer jr.Close()
		recorder = jr
	}

	log.Info("Run started",
		logging.F("dest", settings.dest),
		logging.F("selectors", selectorStrings(settings.selectors)),
		logging.F("roots", len(roots)),
		logging.F("concurrency", settings.concurrency),
	)

	sched := scheduler.New(dl, scheduler.Options{
		RunID:    runID,
		Reporter: reporter,
		Recorder: recorder,
		Logger:   log,
	})
	reporter.Start()
	summary, runErr := sched.Run(ctx, plan.Plan(ctx, roots, settings.dest), settings.concurrency)
	reporter.Stop()

	if jr != nil {
		if err := jr.FinishRun(context.WithoutCancel(ctx), summary); err != nil {
			log.Warn("Journal write failed", logging.F("error", err.Error()))
		}
	}

	return reportRun(cmd.OutOrStdout(), out, summary, runErr)
}

func selectorCacheTTL(flags types.GlobalFlags) time.Duration {
	if flags.NoCache {
		return 0
	}
	return appConfig.GetCacheTTL()
}

func selectorStrings(sels []types.Selector) []string {
	out := make([]string, len(sels))
	for i, sel := range sels {
		out[i] = sel.String()
	}
	return out
}

// openJournal returns nil when journaling is off or the database cannot be
// used. The journal never decides what gets downloaded.
func openJournal(ctx context.Context, runID string, s runSettings, log logging.Logger) *journal.DB {
	if !s.journal {
		return nil
	}
	path, err := config.GetJournalPath()
	if err != nil {
		log.Warn("Journal disabled", logging.F("error", err.Error()))
		return nil
	}
	db, err := journal.Open(path)
	if err != nil {
		log.Warn("Journal disabled", logging.F("path", path), logging.F("error", err.Error()))
		return nil
	}
	if err := db.StartRun(ctx, runID, s.dest, selectorStrings(s.selectors), time.Now().UTC()); err != nil {
		log.Warn("Journal disabled", logging.F("path", path), logging.F("error", err.Error()))
		_ = db.Close()
		return nil
	}
	return db
}

// runExitCode is 0 only for a complete run without failures
func runExitCode(summary types.RunSummary, runErr error) int {
	switch {
	case runErr != nil:
		return utils.GetExitCode(toCLIError(runErr).Code)
	case summary.Interrupted:
		return utils.ExitCancelled
	case !summary.OK():
		return utils.ExitBatchPartialFailure
	}
	return utils.ExitSuccess
}

// reportRun prints the summary in the selected format and converts the
// outcome into the command's exit error
func reportRun(w io.Writer, out *config.OutputFormatter, summary types.RunSummary, runErr error) error {
	code := runExitCode(summary, runErr)

	if globalFlags.OutputFormat == types.OutputFormatJSON {
		switch {
		case runErr != nil:
			cliErr := toCLIError(runErr)
			out.AddWarning(cliErr.Code, cliErr.Message, "error")
		case summary.Interrupted:
			out.AddWarning(utils.ErrCodeCancelled, "Run interrupted; re-run the command to resume", "warning")
		case !summary.OK():
			out.AddWarning(utils.ErrCodeBatchPartialFailure,
				fmt.Sprintf("%d of %d files failed", summary.Failed, summary.Total()), "error")
		}
		if err := out.WriteSuccess("download", summary); err != nil {
			return err
		}
	} else {
		fmt.Fprint(w, renderSummary(summary, appConfig.ColorOutput))
		if len(summary.Failures) > 0 {
			if err := out.WriteSuccess("download", failureTable(summary.Failures)); err != nil {
				return err
			}
		}
		if runErr != nil {
			_ = out.WriteError("download", toCLIError(runErr))
		}
	}

	if code == utils.ExitSuccess {
		return nil
	}
	err := runErr
	switch {
	case err != nil:
	case summary.Interrupted:
		err = errors.New("run interrupted")
	default:
		err = fmt.Errorf("%d of %d files failed", summary.Failed, summary.Total())
	}
	return &exitError{code: code, err: err, reported: true}
}
