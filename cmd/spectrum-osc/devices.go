package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petems/spectrum-osc/internal/audio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			capture, err := audio.New()
			if err != nil {
				return err
			}
			defer capture.Close()

			devices, err := capture.ListDevices()
			if err != nil {
				return err
			}
			return printDevices(cmd, devices)
		},
	}
}

func printDevices(cmd *cobra.Command, devices []audio.AudioDevice) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCHANNELS\tRATE\tDEFAULT")
	for _, d := range devices {
		def := ""
		if d.Default {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%.0f\t%s\n", d.Name, d.Channels, d.SampleRate, def)
	}
	return w.Flush()
}
