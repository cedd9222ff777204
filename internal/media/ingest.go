package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"fundsphere/internal/middleware"
	"fundsphere/internal/observability"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultMaxBytes = 10 * 1024 * 1024
	DefaultTimeout  = 60 * time.Second
	DefaultWorkers  = 4
	sniffLen        = 3072
)

// AllowedTypes lists the accepted content types.
var AllowedTypes = []string{"image/jpeg", "image/png", "video/mp4"}

// Ingestion failures. They are wrapped with the file name.
var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTypeMismatch    = errors.New("file content does not match its declared type")
	ErrTooLarge        = errors.New("file exceeds the upload size limit")
	ErrEmptyFile       = errors.New("file is empty")
)

// File is one uploaded file. Open is called once per ingestion.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// Result is the outcome for the file at the same index of the batch.
type Result struct {
	File string
	URL  string
	Err  error
}

// Options configures an Ingestor.
type Options struct {
	MaxBytes int64
	Timeout  time.Duration
	Workers  int
	Now      func() time.Time
}

// Ingestor validates files and writes them to a BlobStore on a bounded pool.
type Ingestor struct {
	store    BlobStore
	maxBytes int64
	timeout  time.Duration
	now      func() time.Time
	pool     *ants.Pool
}

// NewIngestor creates an Ingestor. Close releases its worker pool.
func NewIngestor(store BlobStore, opts Options) (*Ingestor, error) {
	if store == nil {
		return nil, errors.New("media: blob store is required")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("media: create worker pool: %w", err)
	}
	return &Ingestor{
		store:    store,
		maxBytes: opts.MaxBytes,
		timeout:  opts.Timeout,
		now:      opts.Now,
		pool:     pool,
	}, nil
}

// Close releases the worker pool.
func (in *Ingestor) Close() {
	in.pool.Release()
}

// MaxBytes returns the per-file size cap.
func (in *Ingestor) MaxBytes() int64 {
	return in.maxBytes
}

// IngestAll ingests files concurrently. The batch shares one timeout derived
// from ctx. Results keep the input order; a failed file does not affect the
// others.
func (in *Ingestor) IngestAll(ctx context.Context, files []File) []Result {
	results := make([]Result, len(files))
	if len(files) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for i := range files {
		results[i].File = files[i].Name
		wg.Add(1)
		task := func() {
			defer wg.Done()
			url, err := in.Ingest(ctx, files[i])
			results[i].URL = url
			results[i].Err = err
		}
		if err := in.pool.Submit(task); err != nil {
			wg.Done()
			results[i].Err = fmt.Errorf("%s: %w", files[i].Name, err)
		}
	}
	wg.Wait()
	return results
}

// Ingest validates one file and writes it to the store under
// "<unix millis>-<sanitized name>".
func (in *Ingestor) Ingest(ctx context.Context, f File) (url string, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			middleware.Logger.WarnContext(ctx, "media ingestion failed",
				slog.String("file", f.Name),
				slog.String("store", in.store.Name()),
				slog.String("error", err.Error()),
			)
		}
		observability.MediaUploads.WithLabelValues(in.store.Name(), result).Inc()
	}()

	declared := normalizeContentType(f.MimeType)
	if !allowed(declared) {
		return "", fmt.Errorf("%s: %w %q", f.Name, ErrUnsupportedType, f.MimeType)
	}
	if f.Size > in.maxBytes {
		return "", fmt.Errorf("%s: %w", f.Name, ErrTooLarge)
	}
	if f.Open == nil {
		return "", fmt.Errorf("%s: %w", f.Name, ErrEmptyFile)
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("%s: open: %w", f.Name, err)
	}
	defer rc.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%s: read: %w", f.Name, err)
	}
	head = head[:n]
	if n == 0 {
		return "", fmt.Errorf("%s: %w", f.Name, ErrEmptyFile)
	}
	if !mimetype.Detect(head).Is(declared) {
		return "", fmt.Errorf("%s: %w", f.Name, ErrTypeMismatch)
	}

	body := &cappedReader{ctx: ctx, r: io.MultiReader(bytes.NewReader(head), rc), remaining: in.maxBytes}
	key := objectKey(in.now(), f.Name)

	url, err = in.store.Put(ctx, key, declared, body)
	if body.exceeded {
		return "", fmt.Errorf("%s: %w", f.Name, ErrTooLarge)
	}
	if err != nil {
		return "", fmt.Errorf("%s: store: %w", f.Name, err)
	}
	observability.MediaUploadBytes.Observe(float64(body.read))
	return url, nil
}

func allowed(contentType string) bool {
	for _, t := range AllowedTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// cappedReader fails once more than remaining bytes are read, so a lying
// Size header cannot push an oversized body into the store. It also stops
// when ctx is done.
type cappedReader struct {
	ctx       context.Context
	r         io.Reader
	remaining int64
	read      int64
	exceeded  bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.exceeded {
		return 0, ErrTooLarge
	}
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.read += int64(n)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		c.exceeded = true
		return n, ErrTooLarge
	}
	return n, err
}

// objectKey names a stored object <unix millis>-<random>-<sanitized name>.
// Files with the same name in one batch share the millisecond, so the random
// part keeps their keys apart.
func objectKey(at time.Time, name string) string {
	return fmt.Sprintf("%d-%s-%s", at.UnixMilli(), uuid.NewString()[:8], SanitizeFileName(name))
}
