package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dl-alexandre/icdl/internal/config"
	apperrors "github.com/dl-alexandre/icdl/internal/errors"
	"github.com/dl-alexandre/icdl/internal/logging"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/dl-alexandre/icdl/pkg/version"
	"github.com/spf13/cobra"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger = logging.NewNoOpLogger()
	appConfig                     = config.DefaultConfig()
	debugTransport *logging.DebugTransport
)

var rootCmd = &cobra.Command{
	Use:   "icdl",
	Short: "Resumable mirror of a remote drive and photos library",
	Long: `icdl mirrors a remote drive tree and photos library onto local disk.
Interrupted runs pick up where they stopped: files whose size already matches
are skipped and partial files are continued with range requests.

All commands support JSON output for automation and scripting.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(globalFlags.Config)
		if err != nil {
			// a broken config file must stay repairable
			if cmd.Parent() != configCmd {
				return exitWith(utils.ExitInvalidArgument, err)
			}
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			cfg = config.DefaultConfig()
		}
		appConfig = cfg
		applyConfigDefaults(cmd, cfg)

		if err := validateGlobalFlags(); err != nil {
			return exitWith(utils.ExitInvalidArgument, err)
		}

		logger, debugTransport, err = logging.NewDebugLoggerWithTransport(buildLogConfig(cfg, globalFlags))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Print version, commit and build information of icdl",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Get()
		if globalFlags.OutputFormat == types.OutputFormatJSON {
			return newOutput("").WriteSuccess("version", info)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.Profile, "profile", "default", "Token profile to use")
	pf.StringVar(&globalFlags.Backend, "backend", utils.BackendHTTP, "Remote backend (http, drive, s3)")
	pf.StringVar(&globalFlags.Endpoint, "endpoint", "", "Base URL of the remote backend")
	pf.StringVar((*string)(&globalFlags.OutputFormat), "output", string(types.OutputFormatTable), "Output format (json, table)")
	pf.BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
	pf.BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	pf.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	pf.BoolVar(&globalFlags.Debug, "debug", false, "Log every remote request")
	pf.BoolVar(&globalFlags.NoCache, "no-cache", false, "Bypass the selector cache")
	pf.StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	pf.StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return exitWith(utils.ExitInvalidArgument, err)
	})
	rootCmd.AddCommand(versionCmd)
}

// applyConfigDefaults fills flags the user did not set from the config file
func applyConfigDefaults(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("profile") && cfg.DefaultProfile != "" {
		globalFlags.Profile = cfg.DefaultProfile
	}
	if !flags.Changed("backend") {
		globalFlags.Backend = cfg.Backend
	}
	if !flags.Changed("endpoint") {
		globalFlags.Endpoint = cfg.Endpoint
	}
	if !flags.Changed("output") {
		globalFlags.OutputFormat = cfg.DefaultOutputFormat
	}
}

func validateGlobalFlags() error {
	// Handle --json flag as alias for --output json
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}

	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	switch globalFlags.Backend {
	case utils.BackendHTTP, utils.BackendDrive, utils.BackendS3:
	default:
		return fmt.Errorf("invalid backend: %s", globalFlags.Backend)
	}
	if globalFlags.Profile == "" {
		return fmt.Errorf("profile must not be empty")
	}
	return nil
}

func buildLogConfig(cfg *config.Config, flags types.GlobalFlags) logging.LogConfig {
	defaults := logging.DefaultLogConfig()
	logConfig := logging.LogConfig{
		Level:           logging.ParseLogLevel(cfg.LogLevel),
		OutputFile:      flags.LogFile,
		MaxFileSize:     defaults.MaxFileSize,
		EnableConsole:   !flags.Quiet,
		EnableDebug:     flags.Debug,
		RedactSensitive: true,
		EnableColor:     cfg.ColorOutput && defaults.EnableColor,
		EnableTimestamp: true,
	}
	if flags.Verbose || flags.Debug {
		logConfig.Level = logging.DEBUG
	}
	if flags.OutputFormat == types.OutputFormatJSON && !flags.Verbose && !flags.Debug {
		logConfig.EnableConsole = false
	}
	return logConfig
}

// exitError carries a process exit code out of a command. reported is set
// once the error has been written to the user.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCode maps an error returned by a command to the process exit code
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return utils.ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.reported && ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return utils.ExitUnknown
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	return exitCode(rootCmd.Execute(), os.Stderr)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

func newOutput(traceID string) *config.OutputFormatter {
	flags := GetGlobalFlags()
	return config.NewOutputFormatter(config.OutputOptions{
		Format:  flags.OutputFormat,
		Quiet:   flags.Quiet,
		Verbose: flags.Verbose,
		TraceID: traceID,
	})
}

// toCLIError classifies err into its stable CLI form
func toCLIError(err error) types.CLIError {
	var appErr *utils.AppError
	if errors.As(apperrors.Classify(err, nil), &appErr) {
		return appErr.CLIError
	}
	return utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()
}

// fail reports err through out and returns the matching exit error
func fail(out *config.OutputFormatter, command string, err error) error {
	cliErr := toCLIError(err)
	_ = out.WriteError(command, cliErr)
	return &exitError{code: utils.GetExitCode(cliErr.Code), err: err, reported: true}
}
