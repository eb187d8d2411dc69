package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelierlabs/nameplate-cli/internal/blob"
)

var deleteEphemeral bool

var deleteCmd = &cobra.Command{
	Use:   "delete <image-id>",
	Short: "Delete an image, its predictions, and its ground truth",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		img, err := env.Store.GetImage(ctx, args[0])
		if err != nil {
			return err
		}

		mode := blob.Production
		if deleteEphemeral {
			mode = blob.Ephemeral
		}

		// Remove the object first; the DB row is the source of truth, so a
		// dangling row is recoverable but a dangling object is invisible.
		if err := env.Blobs.Delete(ctx, mode, img.StoragePath); err != nil {
			zap.L().Warn("object deletion failed, continuing with record",
				zap.String("path", img.StoragePath), zap.Error(err))
		}

		if err := env.Store.DeleteImage(ctx, img.ID); err != nil {
			return err
		}

		zap.L().Info("image deleted",
			zap.String("image_id", img.ID),
			zap.String("path", img.StoragePath),
		)
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteEphemeral, "ephemeral", false, "image lives in the ephemeral bucket")
	rootCmd.AddCommand(deleteCmd)
}
