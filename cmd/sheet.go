package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/sheet"
)

var (
	sheetName     string
	sheetTestRow  int
	sheetSchedule string
	sheetOffline  bool
)

var sheetCmd = &cobra.Command{
	Use:   "sheet",
	Short: "Send emails from a lead spreadsheet",
}

var sheetSendCmd = &cobra.Command{
	Use:   "send <file.xlsx>",
	Short: "Send the AI or legacy email for every unsent row",
	Long: `Routes each unsent row either through the AI pipeline (rows whose template
column holds the AI marker) or through the legacy template, sends it, and
stamps the sent column. With --test-row only that row is sent, to the test
recipient, and the sheet is not modified. With --schedule the send repeats on
a cron schedule until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tmpl, err := sheet.LoadTemplate(cfg.Sheet.LegacyTemplate)
		if err != nil {
			return err
		}
		svc, err := sheet.OpenXLSX(args[0], sheetName, sheet.LogMailer{})
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, envOptions{Mode: "generate", Offline: sheetOffline, HealthCheck: cfg.Supervisor.AutoStart})
		if err != nil {
			return err
		}
		defer env.Close()

		router := sheet.NewRouter(svc, env.Pipeline, tmpl, cfg.Sheet)

		if sheetTestRow >= 0 {
			c, err := router.SendTest(ctx, sheetTestRow)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test email sent to %s via %s route: %s\n", cfg.Sheet.TestRecipient, c.Route, c.Subject)
			return nil
		}

		spec := sheetSchedule
		if spec == "" {
			spec = cfg.Sheet.Schedule
		}
		if spec == "" {
			rep, err := router.SendAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %d ai, %d legacy, %d fallback; skipped %d, failed %d\n",
				rep.AI, rep.Legacy, rep.Fallback, rep.Skipped, rep.Failed)
			return nil
		}

		sched, err := sheet.NewScheduler(ctx, spec, router)
		if err != nil {
			return err
		}
		zap.L().Info("sheet: scheduled sends", zap.String("schedule", spec))
		sched.Start()
		<-ctx.Done()
		sched.Stop()
		return nil
	},
}

func init() {
	sheetSendCmd.Flags().StringVar(&sheetName, "sheet", "", "sheet name (default first sheet)")
	sheetSendCmd.Flags().IntVar(&sheetTestRow, "test-row", -1, "send only this data row (0-based) to sheet.test_recipient")
	sheetSendCmd.Flags().StringVar(&sheetSchedule, "schedule", "", "cron expression for repeated sends (default sheet.schedule)")
	sheetSendCmd.Flags().BoolVar(&sheetOffline, "offline", false, "use stub collaborators for AI rows")
	sheetCmd.AddCommand(sheetSendCmd)
	rootCmd.AddCommand(sheetCmd)
}
