package http

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chipcloud/ielts-practice/internal/rbac"
	"github.com/chipcloud/ielts-practice/internal/storage"
)

const maxUpload = 64 << 20

// audio formats used by listening sections; not all systems register them
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
}

func contentType(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// MountAssets serves listening audio and passage images from the blob store.
func MountAssets(r chi.Router, bs storage.BlobStore) {
	// POST /assets  multipart: file=..., optional key=exams/<id>/part1.mp3
	r.With(rbac.Require(rbac.PermAssetUpload)).Post("/", func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, badRequest("file required"))
			return
		}
		defer f.Close()

		key := strings.TrimSpace(r.FormValue("key"))
		if key == "" {
			key = "uploads/" + uuid.NewString() + strings.ToLower(path.Ext(hdr.Filename))
		}
		stored, err := bs.Put(r.Context(), key, f, hdr.Size, contentType(key))
		if err != nil {
			writeError(w, r, err)
			return
		}
		url, err := bs.SignedURL(r.Context(), stored)
		if err != nil {
			LoggerFrom(r.Context()).Warn("sign asset url", zap.String("key", stored), zap.Error(err))
		}
		writeJSON(w, http.StatusCreated, map[string]string{"key": stored, "url": url})
	})

	// GET /assets/*  streams the blob at whatever follows /assets/
	r.With(rbac.Require(rbac.PermAssetView)).Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(r.Context(), key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", contentType(key))
		w.Header().Set("Cache-Control", "private, max-age=3600")
		_, _ = io.Copy(w, rc)
	})
}
