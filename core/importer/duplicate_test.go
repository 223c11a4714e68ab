package importer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSourceHashIdenticalFiles(t *testing.T) {
	content := []byte("identical audio bytes")
	a := tempFile(t, "a.wav", content)
	b := tempFile(t, "b.wav", content)

	hashA, err := SourceHash(a)
	if err != nil {
		t.Fatal(err)
	}
	hashB, err := SourceHash(b)
	if err != nil {
		t.Fatal(err)
	}
	if hashA != hashB {
		t.Fatal("identical files must hash identically")
	}
}

func TestSourceHashDifferentFiles(t *testing.T) {
	a := tempFile(t, "a.wav", []byte("content one"))
	b := tempFile(t, "b.wav", []byte("content two"))

	hashA, _ := SourceHash(a)
	hashB, _ := SourceHash(b)
	if hashA == hashB {
		t.Fatal("different files must hash differently")
	}
}

func TestSourceHashSizeDisambiguates(t *testing.T) {
	// Same first MiB, different length: the size suffix must change
	// the hash.
	prefix := bytes.Repeat([]byte{0xAB}, hashPrefixBytes)
	a := tempFile(t, "a.wav", prefix)
	b := tempFile(t, "b.wav", append(append([]byte{}, prefix...), 0x01))

	hashA, _ := SourceHash(a)
	hashB, _ := SourceHash(b)
	if hashA == hashB {
		t.Fatal("files differing only beyond the prefix must hash differently")
	}
}

func TestSourceHashMissingFile(t *testing.T) {
	if _, err := SourceHash("/nonexistent/file.wav"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestSourceHashLargeFile(t *testing.T) {
	large := tempFile(t, "large.wav", make([]byte, 2*hashPrefixBytes))
	if _, err := SourceHash(large); err != nil {
		t.Fatal(err)
	}
}
