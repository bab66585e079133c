package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/mkovtun/filedrop/applications/server/domain"
)

var (
	errMalformedRange = errors.New("malformed range")
	errUnsatisfiable  = errors.New("range not satisfiable")
)

type byteRange struct {
	start int64
	end   int64
}

func (b byteRange) length() int64 {
	return b.end - b.start + 1
}

// parseRange resolves a single "bytes=start-end" header against size.
// Only one range with an explicit start is honored; end defaults to the last
// byte and is clamped to it. A start at or past the end of the blob is
// unsatisfiable; everything else that doesn't parse is malformed.
func parseRange(spec string, size int64) (byteRange, error) {
	const prefix = "bytes="
	if !strings.HasPrefix(spec, prefix) {
		return byteRange{}, errMalformedRange
	}

	spec = strings.TrimPrefix(spec, prefix)
	if strings.Contains(spec, ",") {
		return byteRange{}, errMalformedRange
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return byteRange{}, errMalformedRange
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, errMalformedRange
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < 0 {
			return byteRange{}, errMalformedRange
		}
		if end > size-1 {
			end = size - 1
		}
	}

	if start > end && start < size {
		return byteRange{}, errMalformedRange
	}
	if start >= size {
		return byteRange{}, errUnsatisfiable
	}

	return byteRange{start: start, end: end}, nil
}

// serveBlob streams the blob honoring a single byte range. Malformed ranges
// fall back to the full content; an unsatisfiable one gets 416.
func serveBlob(w http.ResponseWriter, r *http.Request, file domain.File, logger log.Logger) {
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", file.Meta.MimeType)

	rangeSpec := r.Header.Get("Range")
	if rangeSpec == "" {
		serveFull(w, r, file, logger)
		return
	}

	br, err := parseRange(rangeSpec, file.Size)
	if errors.Is(err, errUnsatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", file.Size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if err != nil {
		serveFull(w, r, file, logger)
		return
	}

	if _, err = file.Body.Seek(br.start, io.SeekStart); err != nil {
		level.Error(logger).Log("msg", "can't seek blob",
			"id", file.ID,
			"err", err,
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, file.Size))
	w.Header().Set("Content-Length", strconv.FormatInt(br.length(), 10))
	w.WriteHeader(http.StatusPartialContent)

	if r.Method == http.MethodHead {
		return
	}

	if _, err = io.CopyN(w, file.Body, br.length()); err != nil {
		// Usually the client going away mid-stream.
		level.Error(logger).Log("msg", "error body copy",
			"id", file.ID,
			"err", err,
		)
	}
}

func serveFull(w http.ResponseWriter, r *http.Request, file domain.File, logger log.Logger) {
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, file.Body); err != nil {
		level.Error(logger).Log("msg", "error body copy",
			"id", file.ID,
			"err", err,
		)
	}
}
