// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
	"sync"
	"time"
)

// ErrStubStoreFull is returned by BlobStoreStub for keys matching FailOn.
var ErrStubStoreFull = errors.New("disk full")

// ErrStubKeyExists is returned by BlobStoreStub when a key is written twice.
var ErrStubKeyExists = errors.New("object already exists")

// BlobStoreStub is an in-memory blob store. Safe for concurrent use.
type BlobStoreStub struct {
	mu   sync.Mutex
	objs map[string][]byte
	// FailOn makes Put fail for keys containing it.
	FailOn string
}

// NewBlobStoreStub creates an empty in-memory blob store.
func NewBlobStoreStub() *BlobStoreStub {
	return &BlobStoreStub{objs: make(map[string][]byte)}
}

func (s *BlobStoreStub) Name() string { return "memory" }

// Put stores body under key and returns a CDN-style URL. Like a store that
// refuses overwrites, a second Put of the same key fails.
func (s *BlobStoreStub) Put(_ context.Context, key, _ string, body io.Reader) (string, error) {
	if s.FailOn != "" && strings.Contains(key, s.FailOn) {
		return "", ErrStubStoreFull
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[key]; exists {
		return "", ErrStubKeyExists
	}
	s.objs[key] = data
	return "https://cdn.example/" + key, nil
}

// Object returns the bytes stored under key.
func (s *BlobStoreStub) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objs[key]
	return data, ok
}

// Len reports how many objects are stored.
func (s *BlobStoreStub) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objs)
}

type fataler interface {
	Helper()
	Fatalf(string, ...any)
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t fataler, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// TinyJPEG returns an in-memory JPEG byte slice with the requested dimensions.
func TinyJPEG(t fataler, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// FixedClock reports a settable instant.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
