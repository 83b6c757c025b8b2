package main

import (
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/knieriem/bxcan/wsbus"
)

var hubListen string

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Serve a virtual CAN bus over websockets",
	Long: `Serve a virtual CAN bus at /bus. Each frame sent by a client is relayed
to all other clients; "bxcan node" connects a controller model to it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h := wsbus.NewHub()
		h.Logger = log.Default()
		h.Verbose = verbose
		mux := http.NewServeMux()
		mux.Handle("/bus", h)
		log.Printf("serving virtual bus on ws://%s/bus", hubListen)
		return http.ListenAndServe(hubListen, mux)
	},
}

func init() {
	hubCmd.Flags().StringVarP(&hubListen, "listen", "l", "localhost:8080", "Listen address")
	rootCmd.AddCommand(hubCmd)
}
