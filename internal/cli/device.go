package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage push notification device registrations",
}

var deviceRegisterCmd = &cobra.Command{
	Use:   "register <token>",
	Short: "Register a device token for push alerts",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeviceRegister,
}

var deviceRemoveCmd = &cobra.Command{
	Use:   "remove <endpoint-ref>",
	Short: "Remove a device registration",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeviceRemove,
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered devices",
	RunE:  runDeviceList,
}

var devicePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove devices the push platform reports as invalid",
	RunE:  runDevicePrune,
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	deviceCmd.AddCommand(deviceRegisterCmd)
	deviceCmd.AddCommand(deviceRemoveCmd)
	deviceCmd.AddCommand(deviceListCmd)
	deviceCmd.AddCommand(devicePruneCmd)

	deviceRegisterCmd.Flags().StringP("owner", "o", "", "Owner identifier for the device")
	deviceListCmd.Flags().Bool("all", false, "Include inactive devices")
}

func runDeviceRegister(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	owner, _ := cmd.Flags().GetString("owner")

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	devices := initRegistry(cfg, store, newLogger(cfg))
	reg, err := devices.Register(cmd.Context(), args[0], owner)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}

	fmt.Printf("Device registered:\n")
	fmt.Printf("  Endpoint:   %s\n", reg.EndpointRef)
	if reg.OwnerID != "" {
		fmt.Printf("  Owner:      %s\n", reg.OwnerID)
	}
	fmt.Printf("  Registered: %s\n", reg.RegisteredAt.Format("2006-01-02 15:04:05"))
	return nil
}

func runDeviceRemove(cmd *cobra.Command, args []string) error {
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
	if err := devices.Remove(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	fmt.Printf("Device %s removed.\n", args[0])
	return nil
}

func runDeviceList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	all, _ := cmd.Flags().GetBool("all")

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	regs, err := store.ListRegistrations(cmd.Context(), !all)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	if len(regs) == 0 {
		fmt.Println("No devices registered. Use 'spendmon device register' to add one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ENDPOINT\tOWNER\tACTIVE\tREGISTERED\tLAST UPDATED\n")
	for _, r := range regs {
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
			r.EndpointRef, r.OwnerID, r.Active,
			r.RegisteredAt.Format("2006-01-02"),
			r.LastUpdated.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()
	return nil
}

func runDevicePrune(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	regs, err := store.ListRegistrations(cmd.Context(), false)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	refs := make([]string, 0, len(regs))
	for _, r := range regs {
		refs = append(refs, r.EndpointRef)
	}

	devices := initRegistry(cfg, store, newLogger(cfg))
	report, err := devices.RemoveInvalidTokens(cmd.Context(), refs)
	if err != nil {
		return fmt.Errorf("prune devices: %w", err)
	}

	fmt.Printf("Checked %d endpoints, removed %d.\n", len(refs), len(report.Removed))
	for _, ref := range report.Removed {
		fmt.Printf("  removed %s\n", ref)
	}
	for ref, msg := range report.Errors {
		fmt.Printf("  error on %s: %s\n", ref, msg)
	}
	return nil
}
