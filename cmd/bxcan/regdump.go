package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/knieriem/bxcan"
	"github.com/knieriem/bxcan/canbus"
)

var regdumpOut string

var regdumpCmd = &cobra.Command{
	Use:   "regdump",
	Short: "Write the register file of an initialized controller as Intel HEX",
	Long: `Initialize and start a controller model with an accept-all filter, and
write its register file as Intel HEX records, placed at the controller's
physical address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config()
		if err != nil {
			return err
		}
		n, err := newSimNode(cfg, bxcan.AcceptAll(0, bxcan.FIFO0), func(canbus.Frame, uint8) {})
		if err != nil {
			return err
		}
		w := os.Stdout
		if regdumpOut != "" && regdumpOut != "-" {
			f, err := os.Create(regdumpOut)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := n.hw.DumpHex(w); err != nil {
			return err
		}
		vlogf("register file written")
		return nil
	},
}

func init() {
	regdumpCmd.Flags().StringVarP(&regdumpOut, "out", "o", "", "Output file (default stdout)")
	rootCmd.AddCommand(regdumpCmd)
}
