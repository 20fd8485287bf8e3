package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/docvault/internal/broker"
	"github.com/dharsanguruparan/docvault/internal/config"
	"github.com/dharsanguruparan/docvault/internal/logging"
	"github.com/dharsanguruparan/docvault/internal/ocr"
)

func newPublishCmd() *cobra.Command {
	var result bool
	cmd := &cobra.Command{
		Use:   "publish <document-id> <file-ref|text>",
		Short: "Publish a message to the file queue (or the result queue with --result)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			ctx := cmd.Context()

			session, err := broker.NewManager(cfg.Broker.URL,
				[]string{cfg.Broker.FileQueue, cfg.Broker.ResultQueue},
				broker.WithRetry(cfg.Broker.ConnectAttempts, cfg.Broker.ConnectBackoff),
				broker.WithLogger(logger)).Connect(ctx)
			if err != nil {
				return err
			}
			defer session.Close()
			publisher, err := broker.NewPublisher(session, broker.PublisherConfig{
				FileQueue:   cfg.Broker.FileQueue,
				ResultQueue: cfg.Broker.ResultQueue,
				Timeout:     cfg.Broker.PublishTimeout,
			}, logger)
			if err != nil {
				return err
			}
			target := cfg.Broker.FileQueue
			if result {
				target = cfg.Broker.ResultQueue
				err = publisher.PublishResult(ctx, id, args[1])
			} else {
				err = publisher.PublishFileForProcessing(ctx, id, args[1])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published document %d to %s\n", id, target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&result, "result", false, "Publish OCR text to the result queue instead")
	return cmd
}

func newOCRCmd() *cobra.Command {
	var engine, language string
	var dpi int
	cmd := &cobra.Command{
		Use:   "ocr <file>",
		Short: "Run text extraction on a local PDF or image and print the text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if engine != "" {
				cfg.OCR.Engine = engine
			}
			if language != "" {
				cfg.OCR.Language = language
			}
			if dpi > 0 {
				cfg.OCR.DPI = dpi
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			extractor, err := ocr.New(cfg.OCR, logger)
			if err != nil {
				return err
			}
			text, err := extractor.Extract(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&engine, "engine", "", "OCR engine: tesseract or gosseract")
	cmd.Flags().StringVarP(&language, "lang", "l", "", "Tesseract language")
	cmd.Flags().IntVar(&dpi, "dpi", 0, "PDF render resolution")
	return cmd
}
