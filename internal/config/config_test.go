package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return defaultConfig()
}

func TestValidateDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsOverlapNotBelowChunkSize(t *testing.T) {
	cfg := validConfig()
	cfg.Ingest.ChunkSize = 100
	cfg.Ingest.ChunkOverlap = 100
	assert.Error(t, cfg.Validate())

	cfg.Ingest.ChunkOverlap = 150
	assert.Error(t, cfg.Validate())

	cfg.Ingest.ChunkOverlap = 99
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Vector.Backend = "pinecone"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Blob.Backend = "s3"
	assert.Error(t, cfg.Validate())
}

func TestValidateQdrantRequiresURLAndCollection(t *testing.T) {
	cfg := validConfig()
	cfg.Vector.Backend = "qdrant"
	cfg.Vector.Qdrant.URL = ""
	assert.Error(t, cfg.Validate())

	cfg.Vector.Qdrant.URL = "http://127.0.0.1:6333"
	cfg.Vector.Qdrant.Collection = ""
	assert.Error(t, cfg.Validate())

	cfg.Vector.Qdrant.Collection = "documents"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDimension(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Dimension = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateAsyncRequiresRabbitMQ(t *testing.T) {
	cfg := validConfig()
	cfg.Ingest.Async = true
	cfg.RabbitMQ.URL = ""
	assert.Error(t, cfg.Validate())
}
