package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/knieriem/bxcan/capture"
)

var captureDumpCmd = &cobra.Command{
	Use:   "capture-dump FILE",
	Short: "Print the frames of a capture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		recs, err := capture.NewReader(f).ReadAll()
		for _, rec := range recs {
			frame, ferr := rec.Frame()
			if ferr != nil {
				fmt.Printf("%s  %-10s  %v\n", rec.At().Format(time.StampMicro), rec.Source, ferr)
				continue
			}
			fmt.Printf("%s  %-10s  %v\n", rec.At().Format(time.StampMicro), rec.Source, frame)
		}
		vlogf("%d records", len(recs))
		return err
	},
}

func init() {
	rootCmd.AddCommand(captureDumpCmd)
}
