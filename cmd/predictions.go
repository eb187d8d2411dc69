package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/atelierlabs/nameplate-cli/internal/model"
	"github.com/atelierlabs/nameplate-cli/internal/store"
)

var (
	predOwner  string
	predMethod string
	predSearch string
	predLimit  int
	predOffset int
)

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "List stored predictions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		preds, err := st.ListPredictions(ctx, store.PredictionFilter{
			OwnerID: predOwner,
			Method:  model.Method(predMethod),
			Search:  predSearch,
			Limit:   predLimit,
			Offset:  predOffset,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(preds)
	},
}

func init() {
	predictionsCmd.Flags().StringVar(&predOwner, "owner", "", "filter by owner id")
	predictionsCmd.Flags().StringVar(&predMethod, "method", "", "filter by extraction method")
	predictionsCmd.Flags().StringVar(&predSearch, "search", "", "match brand, family, model, or serial (accent-insensitive)")
	predictionsCmd.Flags().IntVar(&predLimit, "limit", 100, "max results")
	predictionsCmd.Flags().IntVar(&predOffset, "offset", 0, "skip this many results")
	rootCmd.AddCommand(predictionsCmd)
}
