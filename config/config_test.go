package config

import (
	"errors"
	"testing"

	"github.com/adonese/plstats/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	var c Config
	c.Defaults()

	assert.Equal(t, "0.0.0.0:8001", c.Port)
	assert.Equal(t, "text-embedding-3-small", c.OpenAI.Model)
	assert.Equal(t, "sentence-transformers/all-mpnet-base-v2", c.HuggingFace.Model)
	assert.Equal(t, "pl_core_news_sm", c.Spacy.Model)
	assert.Equal(t, "tokenize,mwt,pos,lemma", c.Stanza.Processors)
	assert.Equal(t, "pl", c.Stanza.Lang)
	assert.Equal(t, c.Stanza.Lang, c.Spacy.Lang)
	assert.Equal(t, 5, c.TopN)
	assert.Equal(t, "l2", c.Distance)
	assert.Positive(t, c.NLPConcurrency)
	require.NoError(t, c.Validate())
}

func TestDefaultsKeepExplicitValues(t *testing.T) {
	c := Config{Port: ":9000", TopN: 3, Distance: "cosine"}
	c.Defaults()

	assert.Equal(t, ":9000", c.Port)
	assert.Equal(t, 3, c.TopN)
	assert.Equal(t, "cosine", c.Distance)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PLSTATS_PORT", "127.0.0.1:9001")
	t.Setenv("HF_API_TOKEN", "  ")

	c := Config{HuggingFace: EmbeddingProvider{APIKey: "from-file"}}
	c.ApplyEnv()

	assert.Equal(t, "sk-test", c.OpenAI.APIKey)
	assert.Equal(t, "127.0.0.1:9001", c.Port)
	assert.Equal(t, "from-file", c.HuggingFace.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{"bad distance", func(c *Config) { c.Distance = "manhattan" }, "distance"},
		{"bad redis url", func(c *Config) { c.RedisURL = "not a url" }, "redis_url"},
		{"bad tagger url", func(c *Config) { c.Stanza.BaseURL = "::" }, "stanza.base_url"},
		{"bad driver", func(c *Config) { c.DatabaseDriver = "mysql" }, "db_driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.Defaults()
			tt.mutate(&c)

			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Contains(t, e.Fields, tt.wantField)
		})
	}
}
