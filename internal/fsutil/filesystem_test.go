package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_Exists(t *testing.T) {
	fs := OSFileSystem{}

	if !fs.Exists("filesystem.go") {
		t.Error("expected filesystem.go to exist")
	}

	if fs.Exists("nonexistent_file_xyz.go") {
		t.Error("expected nonexistent file to not exist")
	}
}

func TestOSFileSystem_CreateOpenRemove(t *testing.T) {
	fs := OSFileSystem{}
	name := filepath.Join(t.TempDir(), "scratch.bin")

	w, err := fs.Create(name)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := fs.Open(name)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(data) != 4 || data[3] != 4 {
		t.Errorf("unexpected content %v", data)
	}

	if err := fs.Remove(name); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if fs.Exists(name) {
		t.Error("file should be gone after Remove")
	}
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/scratch/a")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("grid")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if data, _ := mfs.ReadFile("/scratch/a"); len(data) != 0 {
		t.Errorf("expected empty file before Close, got %q", data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := mfs.Open("/scratch/a")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(f)
	if string(data) != "grid" {
		t.Errorf("expected 'grid', got %q", data)
	}
	info, err := f.Stat()
	if err != nil || info.Size() != 4 {
		t.Errorf("Stat = %v, %v", info, err)
	}
}

func TestMemoryFileSystem_OpenMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_, err := mfs.Open("/nope")
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
	if err := mfs.Remove("/nope"); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error from Remove, got %v", err)
	}
}

func TestMemoryFileSystem_RemoveAll(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.MkdirAll("/root/run/sub", 0o755)
	for _, n := range []string{"/root/run/a", "/root/run/sub/b", "/root/other"} {
		w, _ := mfs.Create(n)
		w.Close()
	}

	if err := mfs.RemoveAll("/root/run"); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if mfs.Exists("/root/run/a") || mfs.Exists("/root/run/sub/b") || mfs.Exists("/root/run") {
		t.Error("expected run tree removed")
	}
	if !mfs.Exists("/root/other") {
		t.Error("sibling file should survive")
	}
	if len(mfs.Files()) != 1 {
		t.Errorf("expected one file left, got %v", mfs.Files())
	}
}
