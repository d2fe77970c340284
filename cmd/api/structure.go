package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"smartrecipe/internal/flyer"
	"smartrecipe/internal/sale"
)

// structureCmd runs the structuring step on a local file and prints the
// normalized result. Nothing is uploaded or persisted.
func structureCmd() *cobra.Command {
	var asText bool

	cmd := &cobra.Command{
		Use:   "structure <file>",
		Short: "Structure a flyer image (or OCR text with --text) and print the JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			client, closeClient, err := newLLMClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeClient()

			processor := flyer.NewProcessor(flyer.Deps{
				LLM:          client,
				Provider:     client.Provider(),
				Preprocessor: newPreprocessor(cfg.Imaging),
				Logger:       log,
				Retry:        cfg.LLM.Retry,
			})

			structure := processor.StructureImage
			if asText {
				structure = func(ctx context.Context, b []byte) (*sale.StructureData, bool, error) {
					return processor.StructureText(ctx, string(b))
				}
			}

			result, repaired, err := structure(ctx, data)
			if err != nil {
				return err
			}
			if repaired {
				log.Warn().Msg("Sale period was missing or invalid and has been replaced with the default window")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().BoolVar(&asText, "text", false, "treat the file as OCR text instead of an image")
	return cmd
}
