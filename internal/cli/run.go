package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one spend evaluation and alert cycle",
	Long: `Fetches current cloud costs, evaluates them against the configured
threshold, and, when the threshold is exceeded, dispatches alerts over the
broadcast channels and all registered devices. Intended to be invoked by an
external scheduler such as cron.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Float64("threshold", 0, "Override the configured spend threshold in USD")
	runCmd.Flags().Bool("no-enrichment", false, "Skip AI enrichment for this run")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if threshold, _ := cmd.Flags().GetFloat64("threshold"); threshold > 0 {
		cfg.Alerting.ThresholdUSD = threshold
	}
	if skip, _ := cmd.Flags().GetBool("no-enrichment"); skip {
		cfg.Enrichment.Enabled = false
	}

	p, _, store, err := initPipeline(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := p.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	if !report.Alerted {
		fmt.Printf("Spend $%.2f is under the $%.2f threshold; no alert sent.\n",
			report.TotalUSD, report.ThresholdUSD)
		return nil
	}

	fmt.Printf("Alert dispatched:\n")
	fmt.Printf("  Alert ID:  %s\n", report.AlertID)
	fmt.Printf("  Level:     %s\n", report.Level)
	fmt.Printf("  Total:     $%.2f (threshold $%.2f)\n", report.TotalUSD, report.ThresholdUSD)
	fmt.Printf("  Enriched:  %v\n", report.Enriched)
	fmt.Printf("  Success:   %v\n", report.Success)
	for _, r := range report.Results {
		status := "ok"
		if !r.Success {
			status = "FAILED: " + r.Err
		}
		fmt.Printf("  - %s/%s (%d attempts): %s\n", r.Channel, r.Target, r.Attempts, status)
	}
	if !report.Success {
		return fmt.Errorf("dispatch did not meet the success policy")
	}
	return nil
}
