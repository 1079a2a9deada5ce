// Package transfer streams HTTP bodies to disk with throttled progress.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"trim-it/internal/domain"
)

const (
	userAgent = "trim-it"

	// DefaultProgressInterval bounds how often progress callbacks fire.
	DefaultProgressInterval = 500 * time.Millisecond

	copyBufferSize = 256 * 1024
)

// NewClient returns the HTTP client used for media and archive downloads.
// It never retries and imposes no overall timeout; callers cancel via ctx.
func NewClient() *resty.Client {
	return resty.New().
		SetHeader("User-Agent", userAgent).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetRetryCount(0)
}

// Response is an open streaming response. Callers must Close it.
type Response struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	StatusCode    int
}

// Close releases the underlying connection.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Open issues a GET and returns the unread body. Transport failures wrap
// domain.ErrNetwork and non-2xx responses wrap domain.ErrBadStatus.
func Open(ctx context.Context, client *resty.Client, rawURL string) (*Response, error) {
	resp, err := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}

	body := resp.RawBody()
	code := resp.StatusCode()
	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		if body != nil {
			_ = body.Close()
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrBadStatus, resp.Status())
	}
	if body == nil {
		return nil, fmt.Errorf("%w: empty response body", domain.ErrNetwork)
	}

	length := int64(-1)
	if resp.RawResponse != nil {
		length = resp.RawResponse.ContentLength
	}
	return &Response{
		Body:          body,
		ContentType:   resp.Header().Get("Content-Type"),
		ContentLength: length,
		StatusCode:    code,
	}, nil
}

// ProgressFunc receives bytes written so far and the expected total
// (-1 when unknown).
type ProgressFunc func(written, total int64)

// Copy streams src into dst. Read failures wrap domain.ErrNetwork and
// write failures wrap domain.ErrDisk; cancellation returns ctx.Err().
// onProgress fires at most once per interval plus once at the end.
func Copy(ctx context.Context, dst io.Writer, src io.Reader, total int64, interval time.Duration, onProgress ProgressFunc) (int64, error) {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	throttle := rate.Sometimes{Interval: interval}
	report := func(written int64) {
		if onProgress != nil {
			onProgress(written, total)
		}
	}

	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			m, writeErr := dst.Write(buf[:n])
			written += int64(m)
			if writeErr == nil && m != n {
				writeErr = io.ErrShortWrite
			}
			if writeErr != nil {
				return written, fmt.Errorf("%w: %v", domain.ErrDisk, writeErr)
			}
			throttle.Do(func() { report(written) })
		}
		if errors.Is(readErr, io.EOF) {
			report(written)
			return written, nil
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return written, ctxErr
			}
			return written, fmt.Errorf("%w: %v", domain.ErrNetwork, readErr)
		}
	}
}

// Percent converts byte counts to 0..100, or -1 when total is unknown.
func Percent(written, total int64) int {
	if total <= 0 {
		return -1
	}
	if written >= total {
		return 100
	}
	return int(written * 100 / total)
}
