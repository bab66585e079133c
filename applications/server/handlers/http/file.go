package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"

	"github.com/mkovtun/filedrop/applications/server"
	"github.com/mkovtun/filedrop/applications/server/config"
	"github.com/mkovtun/filedrop/applications/server/domain"
)

func NewRouter(svc server.FileService, conf config.Api, logger log.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/upload", UploadHandler(svc, conf, logger)).Methods(http.MethodPost)
	r.HandleFunc("/download/{id}", DownloadHandler(svc, logger)).Methods(http.MethodGet, http.MethodHead)
	return r
}

type uploadResponse struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func UploadHandler(svc server.FileService, conf config.Api, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Bound the whole request body before multipart parsing touches it.
		r.Body = http.MaxBytesReader(w, r.Body, conf.MaxUploadBytes)

		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeErr(w, "file too large", http.StatusRequestEntityTooLarge)
				return
			}
			writeErr(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		id, _, err := svc.Upload(r.Context(), domain.Upload{
			OriginalName: header.Filename,
			MimeType:     detectMimeType(file, header.Header.Get("Content-Type")),
			SizeBytes:    header.Size,
			Body:         file,
		})
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNoPayload):
				writeErr(w, "no file", http.StatusBadRequest)
			case errors.Is(err, domain.ErrTooLarge):
				writeErr(w, "file too large", http.StatusRequestEntityTooLarge)
			default:
				level.Error(logger).Log("msg", "upload error",
					"err", err,
				)
				writeErr(w, "upload failed", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err = json.NewEncoder(w).Encode(uploadResponse{
			ID:   id,
			Link: shareLink(r, conf.BaseURL, id),
		}); err != nil {
			level.Error(logger).Log("msg", "can't write upload response",
				"err", err,
			)
		}
	}
}

func DownloadHandler(svc server.FileService, logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		file, err := svc.Fetch(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound):
				http.Error(w, "file not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrExpired):
				http.Error(w, "file expired", http.StatusGone)
			default:
				level.Error(logger).Log("msg", "fetch error",
					"id", id,
					"err", err,
				)
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}
		defer file.Body.Close()

		if !inlineMimeType(file.Meta.MimeType) {
			w.Header().Set("Content-Disposition", `attachment; filename="`+sanitizeFilename(file.Meta.OriginalName)+`"`)
		}

		serveBlob(w, r, file, logger)
	}
}

// detectMimeType prefers the client-declared type and falls back to sniffing
// the content, leaving the reader rewound either way.
func detectMimeType(file io.ReadSeeker, declared string) string {
	if declared != "" {
		return declared
	}

	mt, err := mimetype.DetectReader(file)
	if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
		return ""
	}
	if err != nil {
		return ""
	}

	return mt.String()
}

// inlineMimeType reports whether the browser should render the content
// instead of downloading it.
func inlineMimeType(mimeType string) bool {
	for _, prefix := range []string{"video/", "audio/", "image/"} {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}

	return false
}

// sanitizeFilename strips characters that would break out of a quoted
// Content-Disposition value.
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '\r', '\n':
			return -1
		}
		return r
	}, name)
}

func shareLink(r *http.Request, baseURL, id string) string {
	if baseURL != "" {
		return strings.TrimRight(baseURL, "/") + "/download/" + id
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if v := r.Header.Get("X-Forwarded-Proto"); v != "" {
		scheme = v
	}

	return scheme + "://" + r.Host + "/download/" + id
}

func writeErr(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
