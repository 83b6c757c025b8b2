package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/knieriem/bxcan"
	"github.com/knieriem/bxcan/wsbus"
)

var (
	nodeURL     string
	nodeName    string
	nodeTraffic = trafficFlags{interval: time.Second}
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Join a virtual bus as a controller model",
	Long: `Connect a controller model to a virtual bus served by "bxcan hub", print
the frames it receives, and optionally transmit a frame periodically.`,
	RunE: runNode,
}

func init() {
	nodeCmd.Flags().StringVarP(&nodeURL, "url", "u", "ws://localhost:8080/bus", "WebSocket URL of the hub")
	nodeCmd.Flags().StringVar(&nodeName, "name", "", "Node name stored in transmitted records")
	addTrafficFlags(nodeCmd, &nodeTraffic)
	rootCmd.AddCommand(nodeCmd)
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	c, err := wsbus.Dial(dialCtx, nodeURL)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()
	c.Source = nodeName
	if c.Source == "" {
		c.Source, _ = os.Hostname()
	}

	sink, err := openSink(c.Source)
	if err != nil {
		return err
	}
	defer sink.Close()
	n, err := newSimNode(cfg, bxcan.AcceptAll(0, bxcan.FIFO0), sink.received)
	if err != nil {
		return err
	}
	n.hw.Attach(c)

	go func() {
		err := c.Serve(n.hw)
		if !errors.Is(err, wsbus.ErrConnectionClosed) {
			log.Printf("hub: %v", err)
		}
		stop()
	}()
	log.Printf("joined %s as %s", nodeURL, c.Source)
	return nodeTraffic.run(ctx, n)
}
