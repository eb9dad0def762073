package ingest

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"slices"
	"strings"
)

const (
	MaxVideoSize     = 1 << 30
	MaxThumbnailSize = 10 << 20
)

// Upload is a single file part pulled out of the request body.
type Upload struct {
	Body      io.Reader
	Size      int64
	MediaType string
}

// OpenFunc yields the uploaded file. The Service calls it only once the caller
// has been authorized, so unauthorized requests never have their body read.
type OpenFunc func() (Upload, error)

type uploadKind struct {
	name    string
	maxSize int64
	allowed []string
}

var (
	videoUpload     = uploadKind{name: "video", maxSize: MaxVideoSize, allowed: []string{"video/mp4"}}
	thumbnailUpload = uploadKind{name: "thumbnail", maxSize: MaxThumbnailSize, allowed: []string{"image/jpeg", "image/png"}}
)

// validate checks size and declared media type and returns the bare media
// type plus the file extension derived from its subtype.
func (k uploadKind) validate(u Upload) (string, string, error) {
	if u.Body == nil {
		return "", "", newError(KindBadRequest, fmt.Sprintf("%s file missing", k.name), nil)
	}
	if u.Size > k.maxSize {
		return "", "", newError(KindBadRequest, "File too large", fmt.Errorf("%d bytes exceeds %d", u.Size, k.maxSize))
	}

	mediaType, _, err := mime.ParseMediaType(u.MediaType)
	if err != nil {
		return "", "", newError(KindBadRequest, "Invalid media type", err)
	}
	if !slices.Contains(k.allowed, mediaType) {
		return "", "", newError(KindBadRequest, "File type not supported", fmt.Errorf("%s upload declared %q", k.name, mediaType))
	}

	_, ext, _ := strings.Cut(mediaType, "/")
	return mediaType, ext, nil
}

// open runs fn and turns whatever it fails with into a request error.
func (k uploadKind) open(fn OpenFunc) (Upload, error) {
	if fn == nil {
		return Upload{}, newError(KindBadRequest, fmt.Sprintf("%s file missing", k.name), nil)
	}
	u, err := fn()
	if err != nil {
		var ingestErr *Error
		if errors.As(err, &ingestErr) {
			return Upload{}, err
		}
		if isTooLarge(err) {
			return Upload{}, newError(KindBadRequest, "File too large", err)
		}
		return Upload{}, newError(KindBadRequest, fmt.Sprintf("Unable to read %s file", k.name), err)
	}
	return u, nil
}

// copyToFile streams r into a new file at path, removing the file if the copy fails.
// Failures reading r come back as *readError.
func copyToFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeBody(f, r); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// writeBody copies r into f and closes f.
func writeBody(f *os.File, r io.Reader) error {
	if _, err := io.Copy(f, bodyReader{r}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readError marks a failure reading the upload itself, such as a truncated
// body or a client that went away, as opposed to a local write failure.
type readError struct{ err error }

func (e *readError) Error() string { return "read upload: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

type bodyReader struct{ r io.Reader }

func (b bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		err = &readError{err: err}
	}
	return n, err
}

// copyError classifies a failed copy of the upload body. saveMsg is used when
// the body was read fine but the local write failed.
func copyError(err error, saveMsg string) *Error {
	var readErr *readError
	switch {
	case isTooLarge(err):
		return newError(KindBadRequest, "File too large", err)
	case errors.As(err, &readErr):
		return newError(KindBadRequest, "Unable to read uploaded file", err)
	default:
		return newError(KindInternal, saveMsg, err)
	}
}

func isTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}
