// Package ingest validates inbound image payloads and hands them to the
// upload adapter, returning the hosted URL a catalog record may reference.
//
// The pipeline never writes catalog records itself. Callers persist only
// after Ingest returns a URL, so no record points at a missing image. The
// converse, an uploaded image whose record write then fails, is left as an
// orphan on the provider.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/food-catalog/internal/upload"
)

const instrumentationName = "github.com/xenking/food-catalog/internal/ingest"

var (
	// ErrNoImage is returned when no payload, or an empty one, is supplied.
	ErrNoImage = errors.New("image file is required")
	// ErrUnsupportedType is returned when the payload is not an image.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrTooLarge is returned when the payload exceeds the maximum size.
	ErrTooLarge = errors.New("image exceeds maximum size")
)

// UploadFailedError wraps any failure reported by the upload adapter.
type UploadFailedError struct {
	Cause error
}

func (e *UploadFailedError) Error() string { return "upload image: " + e.Cause.Error() }

func (e *UploadFailedError) Unwrap() error { return e.Cause }

// Uploader is the upload adapter contract.
type Uploader interface {
	Upload(ctx context.Context, p *upload.Payload) (string, error)
}

// Options configures a Pipeline.
type Options struct {
	// MaxSize caps the payload in bytes. Zero disables the cap.
	MaxSize        int64
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Pipeline runs validate, upload, return for one payload at a time. It is
// safe for concurrent use.
type Pipeline struct {
	uploader Uploader
	maxSize  int64

	tracer   trace.Tracer
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

// New creates a Pipeline over uploader.
func New(uploader Uploader, opts Options) (*Pipeline, error) {
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = noop.NewMeterProvider()
	}
	meter := opts.MeterProvider.Meter(instrumentationName)

	outcomes, err := meter.Int64Counter("catalog.ingest.requests",
		metric.WithDescription("Image ingestions by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "outcomes counter")
	}
	duration, err := meter.Float64Histogram("catalog.ingest.duration",
		metric.WithDescription("Image ingestion duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "duration histogram")
	}

	return &Pipeline{
		uploader: uploader,
		maxSize:  opts.MaxSize,
		tracer:   opts.TracerProvider.Tracer(instrumentationName),
		outcomes: outcomes,
		duration: duration,
	}, nil
}

// Ingest validates p and uploads it, returning the hosted URL.
func (p *Pipeline) Ingest(ctx context.Context, payload *upload.Payload) (_ string, rerr error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "ingest.Image")
	defer func() {
		result := outcome(rerr)
		attrs := metric.WithAttributes(attribute.String("outcome", result))
		p.outcomes.Add(ctx, 1, attrs)
		p.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, result)
		}
		span.End()
	}()

	if err := p.validate(payload); err != nil {
		return "", err
	}
	span.SetAttributes(
		attribute.String("image.content_type", payload.ContentType),
		attribute.Bool("image.streaming", payload.Streaming()),
	)

	url, err := p.uploader.Upload(ctx, payload)
	if err != nil {
		if payload.Exceeded() {
			return "", ErrTooLarge
		}
		return "", &UploadFailedError{Cause: err}
	}

	zctx.From(ctx).Debug("Image ingested",
		zap.String("url", url),
		zap.String("content_type", payload.ContentType),
	)
	return url, nil
}

func (p *Pipeline) validate(payload *upload.Payload) error {
	if payload == nil {
		return ErrNoImage
	}
	head, err := payload.Peek(upload.SniffLen)
	if err != nil {
		return errors.Wrap(err, "read image")
	}
	if len(head) == 0 {
		return ErrNoImage
	}
	if p.maxSize > 0 {
		if payload.Size() > p.maxSize {
			return ErrTooLarge
		}
		payload.SetLimit(p.maxSize)
	}

	ct, ok := imageType(head, payload.ContentType)
	if !ok {
		return ErrUnsupportedType
	}
	payload.ContentType = ct
	return nil
}

// imageType sniffs head and returns the image media type to store. The
// declared type is only consulted when sniffing is inconclusive. SVG is
// refused since hosts serve it as a scriptable document.
func imageType(head []byte, declared string) (string, bool) {
	detected := mimetype.Detect(head)
	if detected.Is("image/svg+xml") {
		return "", false
	}
	if strings.HasPrefix(detected.String(), "image/") {
		return detected.String(), true
	}
	if detected.Is("application/octet-stream") && strings.HasPrefix(declared, "image/") &&
		!strings.HasPrefix(declared, "image/svg") {
		return declared, true
	}
	return "", false
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoImage):
		return "no_image"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, upload.ErrTimeout):
		return "timeout"
	default:
		return "failed"
	}
}
