package geo

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// ErrNoOriginal is returned by OpenOriginal when only the given copy is available
var ErrNoOriginal = errors.New("original image not available")

// ImageRef is a handle to a submitted photo. Pickers may hand over a copy with
// metadata stripped, so the untouched original is requested separately.
type ImageRef interface {
	Open() (io.ReadCloser, error)
	OpenOriginal() (io.ReadCloser, error)
}

// BytesRef is an in-memory image, optionally paired with its original bytes
type BytesRef struct {
	Data     []byte
	Original []byte
}

func (r BytesRef) Open() (io.ReadCloser, error) {
	if len(r.Data) == 0 {
		return nil, errors.New("empty image")
	}
	return io.NopCloser(bytes.NewReader(r.Data)), nil
}

func (r BytesRef) OpenOriginal() (io.ReadCloser, error) {
	if len(r.Original) == 0 {
		return nil, ErrNoOriginal
	}
	return io.NopCloser(bytes.NewReader(r.Original)), nil
}

// FileRef points at image files on disk
type FileRef struct {
	Path         string
	OriginalPath string
}

func (r FileRef) Open() (io.ReadCloser, error) {
	return os.Open(r.Path)
}

func (r FileRef) OpenOriginal() (io.ReadCloser, error) {
	if r.OriginalPath == "" {
		return nil, ErrNoOriginal
	}
	return os.Open(r.OriginalPath)
}
