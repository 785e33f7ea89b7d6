package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStore_SaveAndURL(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)

	err := s.Save(context.Background(), "clips/abc.mp3", []byte("audio-bytes"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "clips", "abc.mp3"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Errorf("stored data = %q, want audio-bytes", data)
	}

	url, err := s.URL(context.Background(), "clips/abc.mp3")
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "abc.mp3") {
		t.Errorf("URL = %q, want file:// locator ending in abc.mp3", url)
	}
}

func TestLocalStore_SaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir)
	ctx := context.Background()

	if err := s.Save(ctx, "clips/a.mp3", []byte("first"), "audio/mpeg"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Retried publishes re-put the same key; the second write must win cleanly.
	if err := s.Save(ctx, "clips/a.mp3", []byte("second"), "audio/mpeg"); err != nil {
		t.Fatalf("Save (overwrite): %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "clips", "a.mp3"))
	if string(data) != "second" {
		t.Errorf("stored data = %q, want second", data)
	}

	// No temp files left behind
	entries, _ := os.ReadDir(filepath.Join(dir, "clips"))
	if len(entries) != 1 {
		t.Errorf("clip dir has %d entries, want 1", len(entries))
	}
}
