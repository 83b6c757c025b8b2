package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/knieriem/bxcan"
	"github.com/knieriem/bxcan/canbus"
	"github.com/knieriem/bxcan/capture"
)

var (
	modeName    string
	baudName    string
	captureFile string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "bxcan",
	Short: "CAN controller driver test bench",
	Long: `bxcan runs the CAN driver on a register level model of the controller.

The model can run on its own in loopback mode, join a virtual bus served
over websockets by "bxcan hub", or be bridged to a real bus through a
serial SLCAN adapter. Received frames can be captured into a CBOR file
and printed later with "bxcan capture-dump".`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&modeName, "mode", "m", "normal", "Operating mode (normal, loopback, silent, silent-loopback)")
	rootCmd.PersistentFlags().StringVarP(&baudName, "baud", "b", "500k", "CAN bit rate (50k, 100k, 125k, 250k, 500k, 800k, 1M)")
	rootCmd.PersistentFlags().StringVar(&captureFile, "capture", "", "Append received frames to a CBOR capture file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log transmissions and interrupts")
}

// config returns the controller configuration selected by the
// persistent flags.
func config() (bxcan.Config, error) {
	cfg := bxcan.DefaultConfig()
	m, err := bxcan.ParseMode(modeName)
	if err != nil {
		return cfg, err
	}
	b, err := bxcan.ParseBaudRate(baudName)
	if err != nil {
		return cfg, err
	}
	cfg.Mode = m
	cfg.BaudRate = b
	return cfg, nil
}

func vlogf(format string, args ...any) {
	if verbose {
		log.Printf(format, args...)
	}
}

// frameSink prints received frames, and records them if a capture
// file has been requested.
type frameSink struct {
	w *capture.Writer
	f *os.File
}

func openSink(source string) (*frameSink, error) {
	s := new(frameSink)
	if captureFile == "" {
		return s, nil
	}
	f, err := os.OpenFile(captureFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	s.f = f
	s.w = capture.NewWriter(f)
	s.w.Source = source
	return s, nil
}

func (s *frameSink) received(f canbus.Frame, fmi uint8) {
	fmt.Printf("%v  fmi %d\n", f, fmi)
	if s.w != nil {
		s.w.WriteFrame(f)
	}
}

// Close closes the capture file; further calls do nothing.
func (s *frameSink) Close() error {
	f := s.f
	if f == nil {
		return nil
	}
	s.f = nil
	if err := s.w.Err(); err != nil {
		f.Close()
		return err
	}
	vlogf("%d frames captured to %s", s.w.Count(), captureFile)
	return f.Close()
}
