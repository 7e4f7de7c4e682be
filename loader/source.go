package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gogpu/volstream/brick"
)

// Source errors.
var (
	// ErrNoSource is returned for a file entry with neither a path nor a URL,
	// or a locator whose file index is out of range.
	ErrNoSource = errors.New("loader: brick has no source")

	// ErrShortRead is returned when fewer bytes than the locator's size could
	// be read.
	ErrShortRead = errors.New("loader: short read")

	// ErrHTTPStatus is returned for a response that is neither 200 nor 206.
	ErrHTTPStatus = errors.New("loader: unexpected HTTP status")
)

// File is one entry of a pyramid level's file table. Exactly one of Path
// and URL is set. A packed stream is a single File shared by many bricks
// with different offsets.
type File struct {
	Path  string
	URL   string
	Codec Codec
}

// Remote reports whether the file is fetched over HTTP.
func (f File) Remote() bool { return f.URL != "" }

// Name returns the path or URL.
func (f File) Name() string {
	if f.Remote() {
		return f.URL
	}
	return f.Path
}

// Request is one brick read.
type Request struct {
	// Dataset and Level key the on-disk cache of remote payloads.
	Dataset string
	Level   int

	File   File
	Offset int64
	// Size is the encoded byte size; 0 reads to the end of the file.
	Size  int64
	Shape brick.Shape
}

// NewRequest builds a request from a level file table and a brick locator.
func NewRequest(dataset string, level int, files []File, loc brick.Locator, shape brick.Shape) (Request, error) {
	if loc.File < 0 || loc.File >= len(files) {
		return Request{}, fmt.Errorf("%w: file index %d of %d", ErrNoSource, loc.File, len(files))
	}
	return Request{
		Dataset: dataset,
		Level:   level,
		File:    files[loc.File],
		Offset:  loc.Offset,
		Size:    loc.Size,
		Shape:   shape,
	}, nil
}

// key identifies the payload of a request.
func (r Request) key() string {
	return r.File.Name() + "#" + strconv.FormatInt(r.Offset, 10) + "+" + strconv.FormatInt(r.Size, 10)
}

// readLocal reads [offset, offset+size) of a local file. A size of 0 reads
// to the end of the file.
func readLocal(path string, offset, size int64) ([]byte, error) {
	if path == "" {
		return nil, ErrNoSource
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open: %w", err)
	}
	defer f.Close()

	if size == 0 {
		fi, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("loader: stat: %w", err)
		}
		size = fi.Size() - offset
		if size <= 0 {
			return nil, fmt.Errorf("%w: offset %d past end of %s", ErrShortRead, offset, path)
		}
	}

	buf := make([]byte, size)
	n, err := io.ReadFull(io.NewSectionReader(f, offset, size), buf)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %d of %d bytes from %s", ErrShortRead, n, size, path)
		}
		return nil, fmt.Errorf("loader: read: %w", err)
	}
	return buf, nil
}

// fetchRange performs a ranged GET. A server that ignores the Range header
// and answers 200 has the range sliced from the full body.
func fetchRange(ctx context.Context, client *http.Client, url string, offset, size int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("loader: request: %w", err)
	}
	ranged := offset > 0 || size > 0
	if ranged {
		if size > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))
		} else {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loader: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("loader: body %s: %w", url, err)
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if ranged {
			if offset >= int64(len(body)) {
				return nil, fmt.Errorf("%w: offset %d past end of %s", ErrShortRead, offset, url)
			}
			body = body[offset:]
		}
	default:
		return nil, fmt.Errorf("%w: %s from %s", ErrHTTPStatus, resp.Status, url)
	}

	if size > 0 {
		if int64(len(body)) < size {
			return nil, fmt.Errorf("%w: %d of %d bytes from %s", ErrShortRead, len(body), size, url)
		}
		body = body[:size]
	}
	return body, nil
}
