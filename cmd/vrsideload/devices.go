package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/sideload/adb"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List attached headsets",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := adb.NewClient("")
		if err != nil {
			return err
		}
		devices, err := client.Devices(cmd.Context())
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No devices attached")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SERIAL\tSTATE")
		for _, d := range devices {
			fmt.Fprintf(tw, "%s\t%s\n", d.Serial, d.State)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
