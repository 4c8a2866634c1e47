package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FSStore keeps blobs under a local directory. With a public URL set,
// SignedURL points at the gateway's /assets route instead of the file.
type FSStore struct {
	base   string
	public string
}

func NewFSStore(base, publicURL string) (*FSStore, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base, public: strings.TrimRight(publicURL, "/")}, nil
}

func (s *FSStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(s.base, filepath.FromSlash(k))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return k, nil
}

func (s *FSStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.base, filepath.FromSlash(k)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *FSStore) SignedURL(_ context.Context, key string) (string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	if s.public != "" {
		return s.public + "/assets/" + k, nil
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(s.base, filepath.FromSlash(k)))}
	return u.String(), nil
}
