package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/fetcher"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/normalize"
	"github.com/sells-group/outreach-cli/internal/pipeline"
)

var (
	genLimit        int
	genWorkers      int
	genMode         string
	genTemplate     string
	genTemplateFile string
	genOffline      bool
	genDryRun       bool
	genOutput       string
	genExport       string
	genUpload       bool
	genCheckHealth  bool
	genSheet        string
	genCharset      string
)

var generateCmd = &cobra.Command{
	Use:   "generate <file>",
	Short: "Draft outreach emails for every company in a CSV, TSV or XLSX file",
	Long: `Reads a company spreadsheet, researches and drafts emails for every row
in parallel, ranks the variants, and stores the batch.

Examples:
  # Parse only
  outreach-cli generate companies.xlsx --dry-run

  # Offline run with stub collaborators (no API keys needed)
  outreach-cli generate companies.csv --offline --export drafts.csv

  # Use a user template
  outreach-cli generate companies.csv --mode template --template-file intro.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		records, err := normalize.ReadFile(ctx, args[0], fetcher.ReadOptions{Charset: genCharset, SheetName: genSheet})
		if err != nil {
			return eris.Wrap(err, "generate: read input")
		}
		if genLimit > 0 && genLimit < len(records) {
			records = records[:genLimit]
		}
		zap.L().Info("parsed input", zap.String("file", args[0]), zap.Int("companies", len(records)))

		if genDryRun {
			return printJSON(cmd.OutOrStdout(), records)
		}

		userText, err := userTemplate(genTemplate, genTemplateFile)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, envOptions{Mode: "generate", Offline: genOffline, HealthCheck: genCheckHealth})
		if err != nil {
			return eris.Wrap(err, "generate: init")
		}
		defer env.Close()

		b := env.Pipeline.Process(ctx, records, pipeline.BatchOptions{
			Concurrency:  genWorkers,
			Mode:         model.ParseMode(genMode),
			UserTemplate: userText,
			Progress: func(done, total int) {
				zap.L().Info("progress", zap.Int("done", done), zap.Int("total", total))
			},
		})
		// A failed save still leaves the drafts in the summary and output files.
		saveErr := env.Store.SaveBatch(ctx, b)
		if saveErr != nil {
			zap.L().Error("generate: save batch", zap.String("batch_id", b.ID), zap.Error(saveErr))
		}

		printBatchSummary(cmd.OutOrStdout(), b)

		if genOutput != "" {
			if err := writeJSONFile(genOutput, b); err != nil {
				return err
			}
		}
		if genExport != "" {
			if err := exportFile(genExport, b); err != nil {
				return err
			}
		}
		if genUpload {
			if err := upload(ctx, env, b, export.FormatCSV); err != nil {
				return err
			}
		}
		return eris.Wrap(saveErr, "generate: save batch")
	},
}

func init() {
	f := generateCmd.Flags()
	f.IntVar(&genLimit, "limit", 0, "process at most this many companies (0 = all)")
	f.IntVar(&genWorkers, "workers", 0, "concurrent companies (0 = size-based default)")
	f.StringVar(&genMode, "mode", "default", "how user text is used: default, template or request")
	f.StringVar(&genTemplate, "template", "", "user template or request text")
	f.StringVar(&genTemplateFile, "template-file", "", "read user template or request text from a file")
	f.BoolVar(&genOffline, "offline", false, "use stub collaborators instead of remote services")
	f.BoolVar(&genDryRun, "dry-run", false, "print the normalized companies and exit")
	f.StringVar(&genOutput, "output", "", "write the full batch as JSON to this file")
	f.StringVar(&genExport, "export", "", "write a CSV or XLSX export to this file")
	f.BoolVar(&genUpload, "upload", false, "upload a CSV export to the configured S3 bucket")
	f.BoolVar(&genCheckHealth, "check-health", false, "verify the backend through the supervisor before dispatching")
	f.StringVar(&genSheet, "sheet", "", "xlsx sheet name (default first sheet)")
	f.StringVar(&genCharset, "charset", "", "input charset for csv/tsv (default: detect UTF-8, else EUC-KR)")
	rootCmd.AddCommand(generateCmd)
}

func userTemplate(text, path string) (*string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "read template file")
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return &text, nil
}

func printBatchSummary(w io.Writer, b *model.BatchResult) {
	fmt.Fprintf(w, "batch %s: %d companies, %d succeeded, %d failed in %.1fs (mode %s, $%.4f)\n",
		b.ID, b.TotalProcessed, b.Succeeded, b.Failed, b.ProcessingTimeSeconds, b.Mode, b.CostUSD)
	for _, r := range b.Results {
		if r.Error != nil {
			fmt.Fprintf(w, "  [%d] %s\n", r.Company.Index, r.Error.UserMessage(r.Company.Name()))
			continue
		}
		top := "-"
		if v, ok := r.Drafts.TopPick(); ok {
			top = v.Key
		}
		fmt.Fprintf(w, "  [%d] %s: %d variants, top pick %s\n", r.Company.Index, r.Company.Name(), len(r.Drafts), top)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode json")
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close() //nolint:errcheck
	return printJSON(f, v)
}

// exportFile picks the format from the file extension.
func exportFile(path string, b *model.BatchResult) error {
	format := export.FormatCSV
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		format = export.FormatXLSX
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := export.Write(f, b, format); err != nil {
		_ = f.Close()
		return err
	}
	zap.L().Info("exported batch", zap.String("file", path), zap.String("format", string(format)))
	return eris.Wrap(f.Close(), "close export")
}

func upload(ctx context.Context, env *appEnv, b *model.BatchResult, format export.Format) error {
	if env.Uploader == nil {
		return eris.New("export.s3_bucket is not configured")
	}
	key, err := env.Uploader.Upload(ctx, b, format)
	if err != nil {
		return err
	}
	zap.L().Info("uploaded export", zap.String("key", key))
	return nil
}
