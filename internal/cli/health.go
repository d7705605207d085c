package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check push platform health and endpoint status",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	devices := initRegistry(cfg, store, newLogger(cfg))
	report, err := devices.HealthCheck(cmd.Context())
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}

	fmt.Printf("Push platform health: %s\n", report.Status)
	if report.CertificateDaysRemaining > 0 {
		fmt.Printf("  Certificate:        %d days remaining\n", report.CertificateDaysRemaining)
	}
	fmt.Printf("  Active endpoints:   %d\n", report.ActiveEndpoints)
	fmt.Printf("  Invalid endpoints:  %d\n", report.InvalidEndpoints)
	for _, rec := range report.Recommendations {
		fmt.Printf("  ! %s\n", rec)
	}
	return nil
}
