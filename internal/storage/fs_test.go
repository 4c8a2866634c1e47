package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipcloud/ielts-practice/internal/storage"
)

func TestCleanKey(t *testing.T) {
	cases := map[string]string{
		"audio/part1.mp3":        "audio/part1.mp3",
		"/audio//part1.mp3":      "audio/part1.mp3",
		"../../etc/passwd":       "etc/passwd",
		`images\passage\one.png`: "images/passage/one.png",
	}
	for in, want := range cases {
		got, err := storage.CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := storage.CleanKey("/")
	assert.ErrorIs(t, err, storage.ErrInvalidKey)
}

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	bs, err := storage.NewFSStore(t.TempDir(), "")
	require.NoError(t, err)

	key, err := bs.Put(ctx, "../exams/e1/audio.mp3", strings.NewReader("ID3"), 3, "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "exams/e1/audio.mp3", key)

	rc, err := bs.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "ID3", string(b))

	u, err := bs.SignedURL(ctx, key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))

	_, err = bs.Get(ctx, "missing.bin")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFSStorePublicURL(t *testing.T) {
	bs, err := storage.NewFSStore(t.TempDir(), "https://ielts.example.com/")
	require.NoError(t, err)
	u, err := bs.SignedURL(context.Background(), "/exams/e1/map.png")
	require.NoError(t, err)
	assert.Equal(t, "https://ielts.example.com/assets/exams/e1/map.png", u)
}
