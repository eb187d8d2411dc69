package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelierlabs/nameplate-cli/internal/model"
)

var (
	extractMethod    string
	extractForce     bool
	extractEphemeral bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <image-id>",
	Short: "Extract nameplate fields from an uploaded image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		imageID := args[0]

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		img, err := env.Store.GetImage(ctx, imageID)
		if err != nil {
			return err
		}

		// Serve the cached prediction unless the caller forces a re-run.
		if !extractForce {
			cached, err := env.Store.GetPredictionByImage(ctx, imageID)
			if err != nil {
				return err
			}
			if cached != nil {
				zap.L().Info("serving cached prediction",
					zap.String("image_id", imageID),
					zap.String("prediction_id", cached.ID),
				)
				return json.NewEncoder(os.Stdout).Encode(cached)
			}
		}

		opts := pipelineOptions(cfg, extractMethod, extractEphemeral)
		result, err := env.Pipeline.ProcessImage(ctx, *img, opts)
		if err != nil {
			return err
		}

		pred, err := env.Store.InsertPrediction(ctx, model.Prediction{
			ImageID:      img.ID,
			OwnerID:      img.OwnerID,
			Result:       result,
			ModelVersion: cfg.Anthropic.Model,
		})
		if err != nil {
			return err
		}

		zap.L().Info("extraction complete",
			zap.String("image_id", img.ID),
			zap.String("method", string(result.Method)),
			zap.Int64("elapsed_ms", result.ProcessingTimeMS),
		)
		return json.NewEncoder(os.Stdout).Encode(pred)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractMethod, "method", "", "extraction method: llm or hybrid (default from config)")
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "re-run extraction even when a prediction exists")
	extractCmd.Flags().BoolVar(&extractEphemeral, "ephemeral", false, "read the image from the ephemeral bucket")
	rootCmd.AddCommand(extractCmd)
}
