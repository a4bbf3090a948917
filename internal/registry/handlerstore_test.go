package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHandlerStoreWritePathByLanguage(t *testing.T) {
	root := t.TempDir()
	hs := NewHandlerStore(root, 0)

	if err := hs.Write(1, "python", "print('hi')"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	wantPath := filepath.Join(root, "1", "handler.py")
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("expected handler file at %s: %v", wantPath, err)
	}
	if string(data) != "print('hi')" {
		t.Errorf("unexpected file contents: %q", data)
	}
}

func TestHandlerStoreWriteJavaScriptExtension(t *testing.T) {
	root := t.TempDir()
	hs := NewHandlerStore(root, 0)

	if err := hs.Write(2, "javascript", "console.log('hi')"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "2", "handler.js")); err != nil {
		t.Errorf("expected handler.js to exist: %v", err)
	}
}

func TestHandlerStoreWriteUnsupportedLanguage(t *testing.T) {
	root := t.TempDir()
	hs := NewHandlerStore(root, 0)

	if err := hs.Write(3, "ruby", "puts 'hi'"); err == nil {
		t.Error("expected an error for an unsupported language")
	}
}

func TestHandlerStoreOverwriteReplacesContent(t *testing.T) {
	root := t.TempDir()
	hs := NewHandlerStore(root, 0)

	if err := hs.Write(1, "python", "old"); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := hs.Write(1, "python", "new"); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	path, _ := hs.Path(1, "python")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "new" {
		t.Errorf("expected overwritten content %q, got %q", "new", data)
	}
}

func TestHandlerStoreRemoveDeletesDirectory(t *testing.T) {
	root := t.TempDir()
	hs := NewHandlerStore(root, 0)

	if err := hs.Write(1, "python", "code"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := hs.Remove(1); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "1")); !os.IsNotExist(err) {
		t.Errorf("expected function directory to be gone, got err=%v", err)
	}
}

func TestHandlerStoreSettleDelayIsObserved(t *testing.T) {
	root := t.TempDir()
	hs := NewHandlerStore(root, 20*time.Millisecond)

	start := time.Now()
	if err := hs.Write(1, "python", "code"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected Write to observe the settle delay, took %v", elapsed)
	}
}
