package storage

import (
	"context"
	"testing"
	"time"

	"ncert-tutor-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresignedURL(t *testing.T) {
	client, err := NewClient(config.MinIOConfig{
		Endpoint:        "localhost:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Region:          "us-east-1",
	})
	require.NoError(t, err)

	store := NewStore(client, "tutor", 15*time.Minute)
	u, err := store.PresignedURL(context.Background(), "audio/1.mp3")
	require.NoError(t, err)
	assert.Contains(t, u, "http://localhost:9000/tutor/audio/1.mp3")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=900")
}

func TestNewStoreDefaultsExpiry(t *testing.T) {
	s := NewStore(nil, "b", 0)
	assert.Equal(t, time.Hour, s.expiry)
}
