package cli

import (
	"github.com/dl-alexandre/icdl/internal/types"
	"github.com/spf13/cobra"
)

var photosCmd = &cobra.Command{
	Use:   "photos",
	Short: "Browse the remote photos library",
}

var photosAlbumsCmd = &cobra.Command{
	Use:   "albums",
	Short: "List photo albums",
	Long: `List the albums of the photos library. When an album key differs from its
title the key is shown next to it; pass it to 'download --photos-album-id'.`,
	Args: cobra.NoArgs,
	RunE: runPhotosAlbums,
}

var photosLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List photo assets",
	Long:  "List the assets of an album, or of the whole library when no album is given.",
	Example: `  icdl photos ls
  icdl photos ls --album "Summer 2023"`,
	Args: cobra.NoArgs,
	RunE: runPhotosLs,
}

var (
	photosLsAlbum   string
	photosLsAlbumID string
)

func init() {
	photosLsCmd.Flags().StringVar(&photosLsAlbum, "album", "", "Album title")
	photosLsCmd.Flags().StringVar(&photosLsAlbumID, "album-id", "", "Album ID")
	photosLsCmd.MarkFlagsMutuallyExclusive("album", "album-id")

	photosCmd.AddCommand(photosAlbumsCmd)
	photosCmd.AddCommand(photosLsCmd)
	rootCmd.AddCommand(photosCmd)
}

func runPhotosAlbums(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput("")

	ctx := cmd.Context()
	sess, err := openSession(ctx, appConfig, flags, logger)
	if err != nil {
		return fail(out, "photos.albums", err)
	}
	entries, err := listRoot(ctx, sess, types.AllPhotos(), logger)
	if err != nil {
		return fail(out, "photos.albums", err)
	}
	return out.WriteSuccess("photos.albums", entryList{
		Entries:     filterKind(entries, types.KindAlbum),
		albumLabels: true,
	})
}

func runPhotosLs(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := newOutput("")

	sel := types.AllPhotos()
	label := ""
	switch {
	case photosLsAlbum != "":
		sel, label = types.ByName(photosLsAlbum), photosLsAlbum
	case photosLsAlbumID != "":
		sel, label = types.ByID(photosLsAlbumID), photosLsAlbumID
	}

	ctx := cmd.Context()
	sess, err := openSession(ctx, appConfig, flags, logger)
	if err != nil {
		return fail(out, "photos.ls", err)
	}
	entries, err := listRoot(ctx, sess, sel, logger)
	if err != nil {
		return fail(out, "photos.ls", err)
	}
	return out.WriteSuccess("photos.ls", entryList{
		Path:    label,
		Entries: filterKind(entries, types.KindAsset),
	})
}
