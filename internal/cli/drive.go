package cli

import (
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/spf13/cobra"
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Browse the remote drive tree",
}

var driveLsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a drive folder",
	Long:  "List the entries of a drive folder. Without a path the drive root is listed.",
	Example: `  icdl drive ls
  icdl drive ls /Documents/Taxes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDriveLs,
}

func init() {
	driveCmd.AddCommand(driveLsCmd)
	rootCmd.AddCommand(driveCmd)
}

func runDriveLs(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput("")

	path := ""
	if len(args) == 1 {
		path = utils.NormalizeRemotePath(args[0])
	}

	ctx := cmd.Context()
	sess, err := openSession(ctx, appConfig, flags, logger)
	if err != nil {
		return fail(out, "drive.ls", err)
	}
	entries, err := listRoot(ctx, sess, types.ByPath(path), logger)
	if err != nil {
		return fail(out, "drive.ls", err)
	}
	return out.WriteSuccess("drive.ls", entryList{Path: "/" + path, Entries: entries})
}
