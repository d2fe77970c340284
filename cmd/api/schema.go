package main

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"smartrecipe/internal/recipe"
	"smartrecipe/internal/sale"
)

// schemaTypes are the payloads the browser client exchanges with the API.
var schemaTypes = []any{
	recipe.Constraints{},
	recipe.GeneratedRecipe{},
	sale.StructureData{},
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the API payloads",
		// Needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := generateSchema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(doc))
			return err
		},
	}
}

func generateSchema() ([]byte, error) {
	reflector := &jsonschema.Reflector{}

	definitions := make(map[string]any)
	for _, t := range schemaTypes {
		schema := reflector.Reflect(t)
		for name, def := range schema.Definitions {
			definitions[name] = def
		}
	}

	doc := map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"title":       "smartrecipe API types",
		"description": "JSON Schema for smartrecipe API payloads generated from Go structs",
		"$defs":       definitions,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
