package cli

import (
	"fmt"
	"strings"

	"github.com/dl-alexandre/icdl/internal/config"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing icdl configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration, environment overrides included",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Use 'config show' to see available keys",
	Example: `  icdl config set endpoint https://gateway.example.com/api
  icdl config set concurrency 8
  icdl config set duplicatePolicy strict`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Long:  "Reset all configuration settings to their default values",
	RunE:  runConfigReset,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
}

// configView flattens cfg for display. The OAuth secret is masked.
func configView(cfg *config.Config) map[string]interface{} {
	secret := ""
	if cfg.OAuthClientSecret != "" {
		secret = "********"
	}
	return map[string]interface{}{
		"defaultProfile":      cfg.DefaultProfile,
		"backend":             cfg.Backend,
		"endpoint":            cfg.Endpoint,
		"bucket":              cfg.Bucket,
		"region":              cfg.Region,
		"oauthClientId":       cfg.OAuthClientID,
		"oauthClientSecret":   secret,
		"defaultOutputFormat": string(cfg.DefaultOutputFormat),
		"concurrency":         cfg.Concurrency,
		"cacheTTL":            cfg.CacheTTL,
		"maxRetries":          cfg.MaxRetries,
		"retryBaseDelay":      cfg.RetryBaseDelay,
		"requestTimeout":      cfg.RequestTimeout,
		"progressInterval":    cfg.ProgressInterval,
		"duplicatePolicy":     cfg.DuplicatePolicy,
		"verify":              cfg.Verify,
		"preserveModTime":     cfg.PreserveModTime,
		"journal":             cfg.Journal,
		"logLevel":            cfg.LogLevel,
		"colorOutput":         cfg.ColorOutput,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := newOutput("")
	return out.WriteSuccess("config.show", configView(appConfig))
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput("")

	key, value := args[0], args[1]

	cfg, err := config.LoadFile(flags.Config)
	if err != nil {
		return fail(out, "config.set", err)
	}
	if err := cfg.Set(key, value); err != nil {
		return fail(out, "config.set", utils.NewCLIError(utils.ErrCodeInvalidArgument, err.Error()).
			WithContext("key", key).
			WithContext("validKeys", config.Keys()).
			Err())
	}
	if err := cfg.Save(flags.Config); err != nil {
		return fail(out, "config.set", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to save configuration: %v", err)).WithCause(err).Err())
	}

	shown := value
	if strings.EqualFold(key, "oauthClientSecret") {
		shown = "********"
	}
	out.Log("Configuration updated: %s = %s", key, shown)
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": shown,
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput("")

	cfg := config.DefaultConfig()
	if err := cfg.Save(flags.Config); err != nil {
		return fail(out, "config.reset", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to reset configuration: %v", err)).WithCause(err).Err())
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", configView(cfg))
}
