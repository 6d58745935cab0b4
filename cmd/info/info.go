// Package info implements the info command.
package info

import (
	"fmt"
	"io"
	"os"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/tphakala/longrec/internal/audiofile"
)

// Command creates the info command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Show the format and length of a WAV or FLAC file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printInfo(cmd.OutOrStdout(), args[0])
		},
	}
}

func printInfo(out io.Writer, path string) error {
	info, err := audiofile.ReadInfo(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "File:        %s\n", path)
	if fi, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "Size:        %s\n", units.HumanSize(float64(fi.Size())))
	}
	fmt.Fprintf(out, "Format:      %s\n", info.Format)
	fmt.Fprintf(out, "Sample rate: %d Hz\n", info.SampleRate)
	fmt.Fprintf(out, "Channels:    %d\n", info.Channels)
	fmt.Fprintf(out, "Bit depth:   %d\n", info.BitDepth)
	fmt.Fprintf(out, "Frames:      %d\n", info.Frames)
	fmt.Fprintf(out, "Duration:    %s\n", info.Duration())
	return nil
}
