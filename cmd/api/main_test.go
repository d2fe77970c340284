package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartrecipe/internal/config"
)

func TestSchemaCommand(t *testing.T) {
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"schema"})

	require.NoError(t, root.Execute())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	defs, ok := doc["$defs"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, defs, "Constraints")
	assert.Contains(t, defs, "GeneratedRecipe")
	assert.Contains(t, defs, "StructureData")
	assert.Contains(t, defs, "Item")
}

func TestNewPreprocessor(t *testing.T) {
	p := newPreprocessor(config.ImagingConfig{MaxWidth: 800, Sharpen: true})
	assert.Equal(t, uint(800), p.MaxWidth)
	assert.Equal(t, uint(2000), p.MaxHeight)
	assert.Equal(t, 98, p.Quality)
	assert.True(t, p.Sharpen)
}

func TestNewLLMClient(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		c, closeClient, err := newLLMClient(t.Context(), &config.Config{LLM: config.LLMConfig{Provider: config.ProviderLocal}})
		require.NoError(t, err)
		defer closeClient()
		assert.Equal(t, "local", c.Provider())
	})

	t.Run("gemini without key", func(t *testing.T) {
		_, _, err := newLLMClient(t.Context(), &config.Config{LLM: config.LLMConfig{Provider: config.ProviderGemini}})
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, _, err := newLLMClient(t.Context(), &config.Config{LLM: config.LLMConfig{Provider: "openai"}})
		assert.Error(t, err)
	})
}

func TestServeRejectsIncompleteConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("GEMINI_API_KEY", "")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--log-level", "error"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestStructureCommandMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SMARTRECIPE_LLM_PROVIDER", "local")

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"structure", filepath.Join(os.TempDir(), "does-not-exist.jpg")})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}
