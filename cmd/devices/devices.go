// Package devices implements the devices command.
package devices

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/longrec/internal/audiodev"
	"github.com/tphakala/longrec/internal/conf"
)

// Command creates the devices command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audiodev.Enumerate(settings.Audio.Backend)
			if err != nil {
				return err
			}
			return printDevices(cmd.OutOrStdout(), devices)
		},
	}
}

func printDevices(out io.Writer, devices []audiodev.Device) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No capture devices found.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tDEFAULT\tNAME\tID")
	for _, d := range devices {
		mark := ""
		if d.Default {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.Index, mark, d.Name, d.ID)
	}
	return tw.Flush()
}
