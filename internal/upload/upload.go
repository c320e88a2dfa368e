// Package upload turns image payloads into hosted URLs on a remote
// object-storage provider.
package upload

import (
	"context"
	"io"
	"time"

	"github.com/go-faster/errors"
)

// DefaultTimeout bounds a single upload when Options.Timeout is zero.
const DefaultTimeout = 60 * time.Second

var (
	// ErrMissingPayload is returned for an absent or empty payload. The
	// provider is not contacted.
	ErrMissingPayload = errors.New("no image payload provided")
	// ErrTimeout is returned when the provider does not confirm the upload
	// within the adapter's timeout.
	ErrTimeout = errors.New("upload timed out")
)

// ProviderError reports a transport failure or a rejection by the provider.
type ProviderError struct {
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return "provider: " + e.Message
	}
	return "provider: " + e.Message + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider is the client of a remote storage host. Implementations return
// the canonical URL of the stored object and should stop work once ctx is
// done. The Adapter stops waiting at its timeout either way.
type Provider interface {
	// PutBuffer stores a fixed-size body.
	PutBuffer(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// PutStream pipes body to the host without materializing it.
	PutStream(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// Options configures an Adapter.
type Options struct {
	// Timeout bounds the wait for provider confirmation.
	Timeout time.Duration
	// Prefix is prepended to generated object keys.
	Prefix string
}

// Adapter wraps a Provider with payload checks, key generation and a
// bounded wait.
type Adapter struct {
	provider Provider
	timeout  time.Duration
	prefix   string
	newKey   func(prefix, contentType, filename string) string
}

// NewAdapter returns an Adapter uploading through provider.
func NewAdapter(provider Provider, opts Options) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Adapter{
		provider: provider,
		timeout:  opts.Timeout,
		prefix:   opts.Prefix,
		newKey:   ObjectKey,
	}
}

// Upload stores payload and returns its hosted URL. It blocks until the
// provider confirms or the timeout elapses.
func (a *Adapter) Upload(ctx context.Context, p *Payload) (string, error) {
	if p == nil {
		return "", ErrMissingPayload
	}
	empty, err := p.Empty()
	if err != nil {
		return "", errors.Wrap(err, "read payload")
	}
	if empty {
		return "", ErrMissingPayload
	}

	key := a.newKey(a.prefix, p.ContentType, p.Filename)

	uctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		if p.Streaming() {
			r.url, r.err = a.provider.PutStream(uctx, key, p.Reader(), p.ContentType)
		} else {
			r.url, r.err = a.provider.PutBuffer(uctx, key, p.Bytes(), p.ContentType)
		}
		done <- r
	}()

	var url string
	select {
	case r := <-done:
		url, err = r.url, r.err
	case <-uctx.Done():
		// The provider did not return in time; its result is dropped.
		err = uctx.Err()
	}
	if err != nil {
		if errors.Is(uctx.Err(), context.DeadlineExceeded) {
			return "", errors.Wrapf(ErrTimeout, "key %s after %s", key, a.timeout)
		}
		return "", &ProviderError{Message: "put " + key, Err: err}
	}
	if url == "" {
		return "", &ProviderError{Message: "no url returned for " + key}
	}
	return url, nil
}
