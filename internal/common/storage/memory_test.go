package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	payload := []byte("int main() {}")
	if err := s.PutObject(ctx, "b", "k", bytes.NewReader(payload), int64(len(payload)), "text/plain"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	stat, err := s.StatObject(ctx, "b", "k")
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if stat.SizeBytes != int64(len(payload)) || stat.ContentType != "text/plain" || stat.ETag == "" {
		t.Fatalf("unexpected stat: %+v", stat)
	}
	rc, err := s.GetObject(ctx, "b", "k")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q", got)
	}
}

func TestMemoryStorageMissing(t *testing.T) {
	s := NewMemoryStorage()
	if _, err := s.GetObject(context.Background(), "b", "missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if err := s.PutObject(context.Background(), "b", "k", bytes.NewReader([]byte("ab")), 3, ""); err == nil {
		t.Fatalf("expected size mismatch")
	}
}
