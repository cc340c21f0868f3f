package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"legal-rag/internal/helper"
	"legal-rag/internal/server"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a := newApp(ctx)
			defer a.close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			log.Info().Int("chunks", a.store.Count()).Msg("Knowledge base ready")
			return server.New(addr, a.ingest, a.rag, a.store).Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func ingestCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "ingest <file.pdf>...",
		Short: "Index local PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a := newApp(ctx)
			defer a.close()
			for _, path := range args {
				if dryRun {
					pages, chunks, err := a.ingest.Prepare(path)
					if err != nil {
						return err
					}
					log.Info().Str("file", path).Int("pages", len(pages)).Msg("Parsed content")
					helper.PrettyPrint(cmd.OutOrStdout(), chunks)
					continue
				}
				res, err := a.ingest.IngestFile(ctx, path)
				if err != nil {
					return err
				}
				log.Info().Str("file", res.Filename).Int("pages", res.Pages).Int("chunks", res.Chunks).Msg("File added to knowledge base")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and chunk only, do not save to the vector store")
	return cmd
}

func askCmd() *cobra.Command {
	var stream bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question from the knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a := newApp(ctx)
			defer a.close()
			query := args[0]
			out := cmd.OutOrStdout()

			log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
			fmt.Fprintf(out, "%s\n\n", query)

			if stream {
				tokens, err := a.rag.Stream(ctx, query)
				if err != nil {
					return err
				}
				log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
				for tok := range tokens {
					if tok.Err != nil {
						fmt.Fprintln(out)
						return tok.Err
					}
					fmt.Fprint(out, tok.Content)
				}
				fmt.Fprint(out, "\n\n")
				return nil
			}

			response, err := a.rag.Query(ctx, query)
			if err != nil {
				return err
			}
			log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
			fmt.Fprintf(out, "%s\n\n", response.Source)

			log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
			fmt.Fprintf(out, "%s\n\n", response.Content)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stream, "stream", false, "print the answer as it is generated")
	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the collection to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a := newApp(ctx)
			defer a.close()
			if err := a.store.Export(ctx, args[0]); err != nil {
				return err
			}
			log.Info().Str("file", args[0]).Int("chunks", a.store.Count()).Msg("Exported collection")
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete every chunk of the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a := newApp(ctx)
			defer a.close()
			if err := a.store.Reset(ctx); err != nil {
				return err
			}
			log.Info().Msg("Collection cleared")
			return nil
		},
	}
}
