package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/refine"
)

var (
	refineOffline bool
	refineJSON    bool
)

var refineCmd = &cobra.Command{
	Use:   "refine <batch-id> <company-index> <variant-key> <instruction...>",
	Short: "Rewrite one stored draft per an instruction",
	Long: `Applies a free-text instruction to exactly one stored draft variant.
An instruction containing a URL regenerates the draft from that article,
falling back to a plain rewrite when the article cannot be used.`,
	Args: cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		idx, err := strconv.Atoi(args[1])
		if err != nil {
			return eris.Wrapf(err, "company index %q", args[1])
		}
		target := model.RefinementTarget{BatchID: args[0], CompanyIndex: idx, VariantKey: args[2]}
		instruction := strings.Join(args[3:], " ")

		env, err := initEnv(ctx, envOptions{Mode: "refine", Offline: refineOffline})
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Refiner.NewSession().Refine(ctx, target, instruction)
		if err != nil {
			return err
		}

		if refineJSON {
			return printJSON(cmd.OutOrStdout(), out)
		}
		printOutcome(cmd, out)
		return nil
	},
}

func init() {
	refineCmd.Flags().BoolVar(&refineOffline, "offline", false, "use stub collaborators instead of remote services")
	refineCmd.Flags().BoolVar(&refineJSON, "json", false, "print the outcome as JSON")
	rootCmd.AddCommand(refineCmd)
}

func printOutcome(cmd *cobra.Command, out refine.Outcome) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "refined %s via %s branch\n", out.Target.LockKey(), out.Branch)
	if out.ArticleFailure != nil {
		fmt.Fprintf(w, "article unusable, rewrote instead: %s\n", out.ArticleFailure.UserMessage(""))
	}
	if out.ArticleSummary != nil {
		fmt.Fprintf(w, "article: %s\n", *out.ArticleSummary)
	}
	for _, p := range out.PainPoints {
		fmt.Fprintf(w, "  - %s\n", p)
	}
	fmt.Fprintf(w, "\n%s\n", out.Variant.Text())
}
