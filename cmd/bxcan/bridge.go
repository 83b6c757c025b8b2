package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/knieriem/bxcan"
	"github.com/knieriem/bxcan/slcan"
)

var (
	bridgePort       string
	bridgeSerialBaud int
	bridgeTraffic    = trafficFlags{interval: time.Second}
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Connect the controller model to a serial SLCAN adapter",
	Long: `Attach a controller model to a real CAN bus through an adapter speaking
the Lawicel SLCAN protocol. Frames received by the adapter are delivered to
the model; frames transmitted by the model are sent through the adapter.`,
	RunE: runBridge,
}

func init() {
	bridgeCmd.Flags().StringVarP(&bridgePort, "port", "p", "", "Serial port device of the adapter")
	bridgeCmd.Flags().IntVar(&bridgeSerialBaud, "baud-serial", 115200, "Baud rate of the serial line")
	addTrafficFlags(bridgeCmd, &bridgeTraffic)
	bridgeCmd.MarkFlagRequired("port")
	rootCmd.AddCommand(bridgeCmd)
}

func addTrafficFlags(cmd *cobra.Command, tf *trafficFlags) {
	cmd.Flags().StringVar(&tf.id, "id", "", "Transmit periodically with this identifier (hex)")
	cmd.Flags().StringVar(&tf.data, "data", "", "Data bytes (hex, separated by spaces or commas)")
	cmd.Flags().BoolVar(&tf.ext, "ext", false, "Use the extended frame format")
	cmd.Flags().DurationVar(&tf.interval, "interval", tf.interval, "Transmission interval")
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := config()
	if err != nil {
		return err
	}
	conn, port, err := slcan.OpenPort(bridgePort, bridgeSerialBaud)
	if err != nil {
		return err
	}
	defer port.Close()
	conn.Errors = func(err error) { log.Print(err) }
	if err := conn.Open(cfg.BaudRate.BitsPerSecond()); err != nil {
		return err
	}
	defer conn.Close()

	sink, err := openSink(bridgePort)
	if err != nil {
		return err
	}
	defer sink.Close()
	n, err := newSimNode(cfg, bxcan.AcceptAll(0, bxcan.FIFO0), sink.received)
	if err != nil {
		return err
	}
	n.hw.Attach(conn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		err := conn.Serve(n.hw)
		if !errors.Is(err, io.EOF) {
			log.Printf("serial: %v", err)
		}
		stop()
	}()
	log.Printf("bridging %s at %v", bridgePort, cfg.BaudRate)
	return bridgeTraffic.run(ctx, n)
}
