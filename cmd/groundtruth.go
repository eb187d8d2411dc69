package main

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelierlabs/nameplate-cli/internal/model"
)

var groundtruthCmd = &cobra.Command{
	Use:   "groundtruth",
	Short: "Record verified nameplate values for accuracy scoring",
}

var (
	gtBrand    string
	gtFamily   string
	gtModel    string
	gtSerial   string
	gtVerifier string
	gtNotes    string
	gtVerified bool
	gtOwner    string
)

var groundtruthSetCmd = &cobra.Command{
	Use:   "set <image-id>",
	Short: "Set or replace the ground truth for one image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// The image must exist; ground truth for unknown images is noise.
		img, err := st.GetImage(ctx, args[0])
		if err != nil {
			return err
		}

		owner := gtOwner
		if owner == "" {
			owner = img.OwnerID
		}

		gt, err := st.UpsertGroundTruth(ctx, model.GroundTruth{
			ImageID:       img.ID,
			OwnerID:       owner,
			Brand:         gtBrand,
			ProductFamily: gtFamily,
			ModelNumber:   gtModel,
			SerialNumber:  gtSerial,
			VerifiedBy:    gtVerifier,
			Notes:         gtNotes,
			Verified:      gtVerified,
		})
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(gt)
	},
}

var gtImportOwner string

var groundtruthImportCmd = &cobra.Command{
	Use:   "import <csv-file>",
	Short: "Bulk-import ground truth from a CSV export",
	Long: `Imports ground truth from a CSV with a header row. Recognized columns:
image_id (required), brand, product_family, model_number, serial_number,
verified_by, notes, verified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "open %s", args[0])
		}
		defer f.Close()

		entries, err := parseGroundTruthCSV(f, gtImportOwner)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.ImportGroundTruth(ctx, entries)
		if err != nil {
			return err
		}

		zap.L().Info("ground truth imported",
			zap.Int("parsed", len(entries)),
			zap.Int64("written", n),
		)
		return nil
	},
}

// parseGroundTruthCSV reads a headered CSV into ground-truth entries.
// Column order is free; unknown columns are ignored.
func parseGroundTruthCSV(r io.Reader, owner string) ([]model.GroundTruth, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "groundtruth: read csv header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["image_id"]; !ok {
		return nil, eris.New("groundtruth: csv is missing the image_id column")
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var entries []model.GroundTruth
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "groundtruth: csv line %d", line)
		}

		imageID := field(record, "image_id")
		if imageID == "" {
			return nil, eris.Errorf("groundtruth: csv line %d has no image_id", line)
		}

		verified := false
		if v := field(record, "verified"); v != "" {
			verified, err = strconv.ParseBool(v)
			if err != nil {
				return nil, eris.Wrapf(err, "groundtruth: csv line %d verified column", line)
			}
		}

		entries = append(entries, model.GroundTruth{
			ImageID:       imageID,
			OwnerID:       owner,
			Brand:         field(record, "brand"),
			ProductFamily: field(record, "product_family"),
			ModelNumber:   field(record, "model_number"),
			SerialNumber:  field(record, "serial_number"),
			VerifiedBy:    field(record, "verified_by"),
			Notes:         field(record, "notes"),
			Verified:      verified,
		})
	}
	return entries, nil
}

func init() {
	groundtruthSetCmd.Flags().StringVar(&gtBrand, "brand", "", "verified brand")
	groundtruthSetCmd.Flags().StringVar(&gtFamily, "family", "", "verified product family")
	groundtruthSetCmd.Flags().StringVar(&gtModel, "model", "", "verified model number")
	groundtruthSetCmd.Flags().StringVar(&gtSerial, "serial", "", "verified serial number")
	groundtruthSetCmd.Flags().StringVar(&gtVerifier, "verified-by", "", "who verified the values")
	groundtruthSetCmd.Flags().StringVar(&gtNotes, "notes", "", "free-form notes")
	groundtruthSetCmd.Flags().BoolVar(&gtVerified, "verified", false, "mark as reviewer-verified")
	groundtruthSetCmd.Flags().StringVar(&gtOwner, "owner", "", "owner id (defaults to the image's owner)")

	groundtruthImportCmd.Flags().StringVar(&gtImportOwner, "owner", "default", "owner id recorded on imported entries")

	groundtruthCmd.AddCommand(groundtruthSetCmd)
	groundtruthCmd.AddCommand(groundtruthImportCmd)
	rootCmd.AddCommand(groundtruthCmd)
}
