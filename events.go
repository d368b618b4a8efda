package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dyadchat/service/natsx"
)

func buildEventsCmd() *cobra.Command {
	var queue string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print chat lifecycle events published on NATS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.NATSURL == "" {
				return errors.New("events requires DYAD_NATS_URL")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			nc, err := natsx.NewNatsxClient(natsx.NatsxConfig{
				Servers: natsx.ParseServers(cfg.NATSURL),
				Name:    "dyadchat-events",
			})
			if err != nil {
				return err
			}
			defer nc.Close()

			out := cmd.OutOrStdout()
			err = natsx.TailEvents(ctx, nc, cfg.NATSSubjectPrefix, queue, func(biz string, data []byte) {
				var buf bytes.Buffer
				if json.Compact(&buf, data) != nil {
					buf.Reset()
					buf.Write(data)
				}
				fmt.Fprintf(out, "%s %-18s %s\n", time.Now().Format(time.RFC3339), biz, buf.String())
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s.*, ctrl-c to stop\n", cfg.NATSSubjectPrefix)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "NATS queue group (load-balance between several tails)")
	return cmd
}
