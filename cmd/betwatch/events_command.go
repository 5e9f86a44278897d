package main

import (
	"encoding/json"
	"errors"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knakamura13/twitch-open-cv/internal/events"
	"github.com/knakamura13/twitch-open-cv/internal/events/zmqpub"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var (
		endpoint string
		kinds    []string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail a running watcher's event feed as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if endpoint == "" {
				endpoint = connectEndpoint(cfg.Server.ZMQEndpoint)
			}
			if endpoint == "" {
				return errors.New("no event endpoint: set server.zmq_endpoint or pass --endpoint")
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			filter := make([]events.Kind, 0, len(kinds))
			for _, k := range kinds {
				filter = append(filter, events.Kind(strings.TrimSpace(k)))
			}
			ch, err := zmqpub.Subscribe(signalCtx, endpoint, filter...)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for ev := range ch {
				if err := enc.Encode(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "ZeroMQ endpoint to connect to (default from server.zmq_endpoint)")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Only show these event kinds (observation, notification, stream)")
	return cmd
}

// connectEndpoint turns a bind address like tcp://*:5556 into one a
// subscriber can connect to.
func connectEndpoint(bind string) string {
	return strings.Replace(bind, "*", "localhost", 1)
}
