package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atelierlabs/nameplate-cli/internal/evaluate"
	"github.com/atelierlabs/nameplate-cli/internal/extract"
	"github.com/atelierlabs/nameplate-cli/internal/model"
)

var (
	evalMethod string
	evalOwner  string
	evalLimit  int
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run extraction over every image with ground truth and report accuracy",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		truths, err := env.Store.ListGroundTruth(ctx, evalOwner)
		if err != nil {
			return err
		}

		// Evaluation images live in the ephemeral tier.
		opts := pipelineOptions(cfg, evalMethod, true)
		summary, failed, err := runEvaluation(ctx, env, truths, evalLimit, cfg.Batch.MaxConcurrentImages, opts)
		if err != nil {
			return err
		}

		return json.NewEncoder(os.Stdout).Encode(evalReport(summary, failed))
	},
}

// extractFunc runs the pipeline on one image; injectable for tests.
type extractFunc func(ctx context.Context, img model.Image, opts extract.Options) (model.ExtractionResult, error)

// runEvaluation fans extraction out over the ground-truth set and folds
// the comparisons into a summary plus a failed-image count. Individual image
// failures are logged and counted, never fatal.
func runEvaluation(ctx context.Context, env *pipelineEnv, truths []model.GroundTruth, limit, concurrency int, opts extract.Options) (*evaluate.Summary, int64, error) {
	return runEvaluationWith(ctx, env.Store.GetImage, env.Pipeline.ProcessImage, truths, limit, concurrency, opts)
}

func runEvaluationWith(
	ctx context.Context,
	getImage func(ctx context.Context, id string) (*model.Image, error),
	process extractFunc,
	truths []model.GroundTruth,
	limit, concurrency int,
	opts extract.Options,
) (*evaluate.Summary, int64, error) {
	if len(truths) == 0 {
		zap.L().Info("no ground truth recorded, nothing to evaluate")
		return evaluate.NewSummary(), 0, nil
	}
	if limit > 0 && len(truths) > limit {
		truths = truths[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("starting evaluation",
		zap.Int("images", len(truths)),
		zap.Int("concurrency", concurrency),
		zap.String("method", string(opts.Method)),
	)

	summary := evaluate.NewSummary()
	var mu sync.Mutex
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, gt := range truths {
		g.Go(func() error {
			log := zap.L().With(zap.String("image_id", gt.ImageID))

			img, err := getImage(gctx, gt.ImageID)
			if err != nil {
				failed.Add(1)
				log.Error("image lookup failed", zap.Error(err))
				return nil
			}

			result, err := process(gctx, *img, opts)
			if err != nil {
				failed.Add(1)
				log.Error("extraction failed", zap.Error(err))
				return nil // don't abort the run on individual failure
			}

			c := evaluate.Compare(result, gt)
			mu.Lock()
			summary.Add(c)
			mu.Unlock()

			log.Info("image evaluated", zap.Bool("overall_match", c.Overall))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	zap.L().Info("evaluation complete",
		zap.Int("scored", summary.Total),
		zap.Int64("failed", failed.Load()),
		zap.Float64("overall_accuracy", summary.OverallAccuracy()),
	)
	return summary, failed.Load(), nil
}

// evalReport shapes the summary for output.
func evalReport(s *evaluate.Summary, failed int64) map[string]any {
	fields := make(map[string]float64, len(model.Fields))
	for _, f := range model.Fields {
		fields[string(f)] = s.FieldAccuracy(f)
	}
	return map[string]any{
		"images_total":     int64(s.Total) + failed,
		"images_scored":    s.Total,
		"images_failed":    failed,
		"field_accuracy":   fields,
		"overall_accuracy": s.OverallAccuracy(),
	}
}

func init() {
	evaluateCmd.Flags().StringVar(&evalMethod, "method", "", "extraction method: llm or hybrid (default from config)")
	evaluateCmd.Flags().StringVar(&evalOwner, "owner", "", "restrict to one owner's ground truth")
	evaluateCmd.Flags().IntVar(&evalLimit, "limit", 0, "max number of images to evaluate (0 = all)")
	rootCmd.AddCommand(evaluateCmd)
}
