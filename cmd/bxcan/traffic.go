package main

import (
	"context"
	"log"
	"time"

	"github.com/knieriem/bxcan/regs"
)

// trafficFlags describes the periodic transmission of long running
// commands.
type trafficFlags struct {
	frameFlags
	interval time.Duration
}

// run steps the model until ctx is done, and transmits the
// configured frame periodically if an identifier has been given.
func (tf *trafficFlags) run(ctx context.Context, n *simNode) error {
	step := time.NewTicker(time.Millisecond)
	defer step.Stop()

	var tick <-chan time.Time
	if tf.id != "" && tf.interval > 0 {
		t := time.NewTicker(tf.interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-step.C:
			n.hw.Flush(regs.NumMailboxes)
		case <-tick:
			f, err := tf.frame()
			if err != nil {
				return err
			}
			if err := n.send(f); err != nil {
				log.Printf("transmit: %v", err)
			}
		}
	}
}
