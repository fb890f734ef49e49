package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dl-alexandre/icdl/internal/auth"
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Session token management",
	Long: `Store and inspect the session tokens the remote backends authenticate with.

icdl does not log in by itself: obtain a token with the service's own tooling
and hand it over with 'auth set-token'.`,
}

var authSetTokenCmd = &cobra.Command{
	Use:   "set-token",
	Short: "Store a session token",
	Long:  "Store a session token for the current or specified profile",
	Example: `  icdl auth set-token --token "$TOKEN"
  icdl auth set-token --token "$ACCESS" --refresh-token "$REFRESH" --expires-in 1h --profile work`,
	Args: cobra.NoArgs,
	RunE: runAuthSetToken,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Display whether a token is stored for the profile and when it expires",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	Long:  "Delete stored credentials for the current or specified profile",
	RunE:  runAuthLogout,
}

var authProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List credential profiles",
	Long:  "Display all stored credential profiles",
	RunE:  runAuthProfiles,
}

var (
	authToken        string
	authRefreshToken string
	authExpiresIn    time.Duration
	authScopes       []string
)

func init() {
	authSetTokenCmd.Flags().StringVar(&authToken, "token", "", "Access token (required)")
	authSetTokenCmd.Flags().StringVar(&authRefreshToken, "refresh-token", "", "OAuth refresh token")
	authSetTokenCmd.Flags().DurationVar(&authExpiresIn, "expires-in", 0, "Token lifetime, e.g. 1h (0 means no expiry)")
	authSetTokenCmd.Flags().StringSliceVar(&authScopes, "scopes", nil, "Scopes granted to the token")

	authCmd.AddCommand(authSetTokenCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authProfilesCmd)
	rootCmd.AddCommand(authCmd)
}

// credentialsFromFlags builds the stored form of a token. A refresh token
// marks the credentials as OAuth so they can be renewed.
func credentialsFromFlags(token, refresh string, expiresIn time.Duration, scopes []string, now time.Time) (*types.Credentials, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument, "--token is required").Err()
	}
	if expiresIn < 0 {
		return nil, utils.NewCLIError(utils.ErrCodeInvalidArgument, "--expires-in must not be negative").Err()
	}
	creds := &types.Credentials{
		AccessToken:  token,
		RefreshToken: strings.TrimSpace(refresh),
		Scopes:       scopes,
		Type:         types.AuthTypeToken,
	}
	if creds.RefreshToken != "" {
		creds.Type = types.AuthTypeOAuth
	}
	if expiresIn > 0 {
		creds.ExpiryDate = now.Add(expiresIn).UTC()
	}
	return creds, nil
}

func runAuthSetToken(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput("")

	creds, err := credentialsFromFlags(authToken, authRefreshToken, authExpiresIn, authScopes, time.Now())
	if err != nil {
		return fail(out, "auth.set-token", err)
	}

	mgr, err := newAuthManager()
	if err != nil {
		return fail(out, "auth.set-token", err)
	}
	if warning := mgr.GetStorageWarning(); warning != "" {
		out.Log("%s", warning)
	}
	if err := mgr.SaveCredentials(flags.Profile, creds); err != nil {
		return fail(out, "auth.set-token", err)
	}

	out.Log("Token stored for profile %s", flags.Profile)
	return out.WriteSuccess("auth.set-token", map[string]interface{}{
		"profile":        flags.Profile,
		"type":           string(creds.Type),
		"expiry":         formatExpiry(creds.ExpiryDate),
		"storageBackend": mgr.GetStorageBackend(),
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput("")

	mgr, err := newAuthManager()
	if err != nil {
		return fail(out, "auth.status", err)
	}
	if warning := mgr.GetStorageWarning(); warning != "" && flags.Verbose {
		out.Log("%s", warning)
	}

	creds, err := mgr.LoadCredentials(flags.Profile)
	if err != nil {
		status := map[string]interface{}{
			"profile":        flags.Profile,
			"authenticated":  false,
			"storageBackend": mgr.GetStorageBackend(),
		}
		if !errors.Is(err, auth.ErrNoCredentials) {
			status["error"] = err.Error()
		}
		return out.WriteSuccess("auth.status", status)
	}

	expired := !creds.ExpiryDate.IsZero() && time.Now().After(creds.ExpiryDate)
	return out.WriteSuccess("auth.status", map[string]interface{}{
		"profile":        flags.Profile,
		"authenticated":  !expired || creds.RefreshToken != "",
		"type":           string(creds.Type),
		"scopes":         strings.Join(creds.Scopes, ","),
		"expiry":         formatExpiry(creds.ExpiryDate),
		"expired":        expired,
		"needsRefresh":   mgr.NeedsRefresh(creds),
		"storageBackend": mgr.GetStorageBackend(),
	})
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput("")

	mgr, err := newAuthManager()
	if err != nil {
		return fail(out, "auth.logout", err)
	}
	if err := mgr.DeleteCredentials(flags.Profile); err != nil {
		if errors.Is(err, auth.ErrNoCredentials) {
			return fail(out, "auth.logout", utils.NewCLIError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("No credentials stored for profile %s", flags.Profile)).Err())
		}
		return fail(out, "auth.logout", err)
	}

	out.Log("Logged out profile %s", flags.Profile)
	return out.WriteSuccess("auth.logout", map[string]interface{}{
		"profile": flags.Profile,
		"status":  "logged_out",
	})
}

// profileList renders auth profiles
type profileList []map[string]interface{}

func (p profileList) Headers() []string {
	return []string{"Profile", "Authenticated", "Type", "Expiry"}
}

func (p profileList) Rows() [][]string {
	rows := make([][]string, len(p))
	for i, d := range p {
		rows[i] = []string{
			fmt.Sprintf("%v", d["profile"]),
			fmt.Sprintf("%v", d["authenticated"]),
			fmt.Sprintf("%v", valueOr(d["type"], "-")),
			fmt.Sprintf("%v", valueOr(d["expiry"], "-")),
		}
	}
	return rows
}

func (p profileList) EmptyMessage() string {
	return "No profiles stored. Run 'icdl auth set-token' to add one."
}

func runAuthProfiles(cmd *cobra.Command, args []string) error {
	out := newOutput("")

	mgr, err := newAuthManager()
	if err != nil {
		return fail(out, "auth.profiles", err)
	}
	profiles, err := mgr.ListProfiles()
	if err != nil {
		return fail(out, "auth.profiles", utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("Failed to list profiles: %v", err)).WithCause(err).Err())
	}

	details := make(profileList, 0, len(profiles))
	for _, profile := range profiles {
		detail := map[string]interface{}{"profile": profile}
		creds, err := mgr.LoadCredentials(profile)
		if err != nil {
			detail["authenticated"] = false
			detail["error"] = err.Error()
		} else {
			detail["authenticated"] = true
			detail["type"] = string(creds.Type)
			detail["expiry"] = formatExpiry(creds.ExpiryDate)
			detail["needsRefresh"] = mgr.NeedsRefresh(creds)
		}
		details = append(details, detail)
	}
	return out.WriteSuccess("auth.profiles", details)
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func valueOr(v interface{}, fallback string) interface{} {
	if v == nil {
		return fallback
	}
	return v
}
