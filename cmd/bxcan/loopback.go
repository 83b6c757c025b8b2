package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knieriem/bxcan"
	"github.com/knieriem/bxcan/canbus"
)

var (
	loopbackFrame  = frameFlags{id: "123", data: "01 02 03 04"}
	loopbackFilter filterFlags
	loopbackCount  int
)

var loopbackCmd = &cobra.Command{
	Use:   "loopback",
	Short: "Transmit frames to the controller model itself",
	Long: `Initialize a controller model, configure the acceptance filter of bank 0,
and transmit frames in loopback mode. Frames passing the filter are printed
with their filter match index.

Unless --mode is given, the silent loopback mode is used.`,
	RunE: runLoopback,
}

func init() {
	loopbackCmd.Flags().StringVar(&loopbackFrame.id, "id", loopbackFrame.id, "Identifier (hex)")
	loopbackCmd.Flags().StringVar(&loopbackFrame.data, "data", loopbackFrame.data, "Data bytes (hex, separated by spaces or commas)")
	loopbackCmd.Flags().BoolVar(&loopbackFrame.ext, "ext", false, "Use the extended frame format")
	loopbackCmd.Flags().IntVarP(&loopbackCount, "count", "n", 1, "Number of frames; the identifier is incremented for each")
	loopbackCmd.Flags().StringVar(&loopbackFilter.id, "filter-id", "", "Accept only this identifier (hex); default accepts all")
	loopbackCmd.Flags().StringVar(&loopbackFilter.mask, "filter-mask", "", "Identifier bits compared by the filter (hex)")
	loopbackCmd.Flags().BoolVar(&loopbackFilter.ext, "filter-ext", false, "Filter extended identifiers")
	rootCmd.AddCommand(loopbackCmd)
}

func runLoopback(cmd *cobra.Command, args []string) error {
	cfg, err := config()
	if err != nil {
		return err
	}
	if !cmd.Flag("mode").Changed {
		cfg.Mode = bxcan.ModeSilentLoopback
	}
	filter, err := loopbackFilter.filter()
	if err != nil {
		return err
	}
	f, err := loopbackFrame.frame()
	if err != nil {
		return err
	}
	sink, err := openSink("loopback")
	if err != nil {
		return err
	}
	defer sink.Close()

	n, err := newSimNode(cfg, filter, sink.received)
	if err != nil {
		return err
	}
	lim := uint32(canbus.MaxStdID)
	if f.Extended {
		lim = canbus.MaxExtID
	}
	for i := 0; i < loopbackCount; i++ {
		if err := n.send(f); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		f.ID = (f.ID + 1) & lim
	}
	if err := sink.Close(); err != nil {
		return err
	}
	st := n.ErrorState()
	vlogf("error state: %+v", st)
	return nil
}
