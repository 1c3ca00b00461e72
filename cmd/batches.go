package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
)

var (
	batchesExportFormat string
	batchesExportOut    string
	batchesExportUpload bool
	batchesRetryAll     bool
	batchesRetryOffline bool
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect and manage stored batches",
}

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored batches, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		list, err := st.ListBatches(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tCOMPANIES")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", s.ID, s.Timestamp.Local().Format(time.DateTime), s.CompanyCount)
		}
		return tw.Flush()
	},
}

var batchesShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Print a stored batch as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		b, err := st.GetBatch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), b)
	},
}

var batchesDeleteCmd = &cobra.Command{
	Use:   "delete <batch-id>",
	Short: "Delete a stored batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteBatch(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var batchesExportCmd = &cobra.Command{
	Use:   "export <batch-id>",
	Short: "Export a stored batch as CSV or XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		b, err := st.GetBatch(ctx, args[0])
		if err != nil {
			return err
		}
		format := export.Format(batchesExportFormat)

		if batchesExportUpload {
			up, err := export.NewS3Uploader(ctx, cfg.Export)
			if err != nil {
				return err
			}
			if up == nil {
				return eris.New("export.s3_bucket is not configured")
			}
			key, err := up.Upload(ctx, b, format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded s3://%s/%s\n", cfg.Export.S3Bucket, key)
			return nil
		}

		if batchesExportOut == "" {
			return export.Write(cmd.OutOrStdout(), b, format)
		}
		f, err := os.Create(batchesExportOut)
		if err != nil {
			return eris.Wrapf(err, "create %s", batchesExportOut)
		}
		if err := export.Write(f, b, format); err != nil {
			_ = f.Close()
			return err
		}
		return eris.Wrap(f.Close(), "close export")
	},
}

var batchesRetryCmd = &cobra.Command{
	Use:   "retry <batch-id>",
	Short: "Re-run the failed companies of a batch into a new batch",
	Long: `Re-runs companies whose pipeline failed. By default only transient
failures (network errors and timeouts) are retried. The merged result is
stored as a new batch so the original stays intact.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{Mode: "generate", Offline: batchesRetryOffline})
		if err != nil {
			return err
		}
		defer env.Close()

		orig, err := env.Store.GetBatch(ctx, args[0])
		if err != nil {
			return err
		}
		merged, retried := retryBatch(ctx, env.Pipeline, orig, !batchesRetryAll)
		if retried == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to retry")
			return nil
		}
		if err := env.Store.SaveBatch(ctx, merged); err != nil {
			return eris.Wrap(err, "save retried batch")
		}
		printBatchSummary(cmd.OutOrStdout(), merged)
		return nil
	},
}

// batchProcessor is the part of pipeline.Pipeline retry needs.
type batchProcessor interface {
	Process(ctx context.Context, records []model.CompanyRecord, opts pipeline.BatchOptions) *model.BatchResult
}

// retryBatch re-runs the dead letters of orig and returns a copy of orig
// under a new ID with the retried results swapped in.
func retryBatch(ctx context.Context, p batchProcessor, orig *model.BatchResult, transientOnly bool) (*model.BatchResult, int) {
	dead := resilience.DeadLetters(orig, transientOnly)
	if len(dead) == 0 {
		return nil, 0
	}
	records := make([]model.CompanyRecord, len(dead))
	for i, e := range dead {
		records[i] = e.Company
	}
	zap.L().Info("retrying failed companies", zap.String("batch_id", orig.ID), zap.Int("companies", len(records)))

	rerun := p.Process(ctx, records, pipeline.BatchOptions{Mode: orig.Mode})

	merged := &model.BatchResult{
		ID:                    rerun.ID,
		Results:               append([]model.CompanyResult(nil), orig.Results...),
		CreatedAt:             rerun.CreatedAt,
		Mode:                  orig.Mode,
		ProcessingTimeSeconds: rerun.ProcessingTimeSeconds,
	}
	for i, e := range dead {
		merged.Results[e.Index] = rerun.Results[i]
	}
	merged.Tally()
	return merged, len(dead)
}

func init() {
	batchesExportCmd.Flags().StringVar(&batchesExportFormat, "format", "csv", "export format: csv or xlsx")
	batchesExportCmd.Flags().StringVarP(&batchesExportOut, "out", "o", "", "output file (default stdout)")
	batchesExportCmd.Flags().BoolVar(&batchesExportUpload, "upload", false, "upload to the configured S3 bucket instead of writing locally")
	batchesRetryCmd.Flags().BoolVar(&batchesRetryAll, "all", false, "retry permanent failures too")
	batchesRetryCmd.Flags().BoolVar(&batchesRetryOffline, "offline", false, "use stub collaborators instead of remote services")

	batchesCmd.AddCommand(batchesListCmd, batchesShowCmd, batchesDeleteCmd, batchesExportCmd, batchesRetryCmd)
	rootCmd.AddCommand(batchesCmd)
}
