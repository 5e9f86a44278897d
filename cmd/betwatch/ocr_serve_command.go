package main

import (
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/knakamura13/twitch-open-cv/internal/grpcclient"
	"github.com/knakamura13/twitch-open-cv/internal/ocr"
	"github.com/knakamura13/twitch-open-cv/internal/ocr/tesseract"
	"github.com/knakamura13/twitch-open-cv/internal/trace"
)

func newOCRServeCommand(ctx *commandContext) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "ocr-serve",
		Short: "Serve local Tesseract OCR over gRPC for remote watchers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.OCR.ListenAddr
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			t := tesseract.New()
			defer func() { _ = t.Close() }()
			var rec ocr.Recognizer = t
			if cfg.OCR.SkipSimilar {
				rec = ocr.NewDedup(rec, cfg.OCR.MaxHashDistance)
			}

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", listen, err)
			}
			srv := grpcclient.NewServer(grpcclient.NewService(rec, cfg.OCR.Language))
			go func() {
				<-signalCtx.Done()
				srv.GracefulStop()
			}()

			trace.Logger(signalCtx).Info("ocr service listening", "addr", lis.Addr().String(), "lang", cfg.OCR.Language)
			return srv.Serve(lis)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from ocr.listen_addr)")
	return cmd
}
