package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelierlabs/nameplate-cli/internal/blob"
	"github.com/atelierlabs/nameplate-cli/internal/model"
)

// maxUploadBytes caps uploads at 1 MiB, the limit the OCR tier enforces
// downstream. Larger photos should be resized before upload.
const maxUploadBytes = 1024 * 1024

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var (
	uploadOwner     string
	uploadEphemeral bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a nameplate photo to object storage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, contentType, err := readImageFile(args[0])
		if err != nil {
			return err
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		mode := blob.Production
		if uploadEphemeral {
			mode = blob.Ephemeral
		}

		img := model.Image{
			ID:               uuid.New().String(),
			OwnerID:          uploadOwner,
			OriginalFilename: filepath.Base(args[0]),
			MIMEType:         contentType,
			SizeBytes:        int64(len(data)),
		}
		img.StoragePath = fmt.Sprintf("images/%s/%s%s", img.OwnerID, img.ID, filepath.Ext(args[0]))

		if err := env.Blobs.Put(ctx, mode, img.StoragePath, data, contentType); err != nil {
			return err
		}

		saved, err := env.Store.CreateImage(ctx, img)
		if err != nil {
			// Roll back the orphaned object so storage and DB agree.
			if delErr := env.Blobs.Delete(ctx, mode, img.StoragePath); delErr != nil {
				zap.L().Warn("orphaned object left in storage",
					zap.String("path", img.StoragePath), zap.Error(delErr))
			}
			return err
		}

		zap.L().Info("image uploaded",
			zap.String("image_id", saved.ID),
			zap.String("path", saved.StoragePath),
			zap.Int64("bytes", saved.SizeBytes),
		)
		return json.NewEncoder(os.Stdout).Encode(saved)
	},
}

// readImageFile loads and validates an upload candidate from disk.
func readImageFile(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "read image %s", path)
	}
	contentType, err := validateImageBytes(data)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// validateImageBytes checks the byte cap and sniffs the content type. The
// filename extension is ignored; only content matters.
func validateImageBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", eris.New("image is empty")
	}
	if len(data) > maxUploadBytes {
		return "", eris.Errorf("image is %d bytes, over the %d byte limit", len(data), maxUploadBytes)
	}

	contentType := http.DetectContentType(data)
	if !allowedImageTypes[contentType] {
		return "", eris.Errorf("unsupported image type %s; want JPEG, PNG, or WebP", contentType)
	}
	return contentType, nil
}

func init() {
	uploadCmd.Flags().StringVar(&uploadOwner, "owner", "default", "owner id recorded on the image")
	uploadCmd.Flags().BoolVar(&uploadEphemeral, "ephemeral", false, "store in the ephemeral bucket (evaluation data)")
	rootCmd.AddCommand(uploadCmd)
}
