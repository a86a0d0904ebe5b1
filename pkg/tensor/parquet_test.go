package tensor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/atomworks/nnprep/pkg/record"
)

func TestWriteReadPositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.parquet")
	want := [][3]float64{
		{0, 0, 0},
		{0.15, 0, 0},
		{0.15, 0.12, 0},
		{-1.5, 2.25, -0.75},
	}

	if err := WritePositions(path, want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadPositions(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("read %d positions, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWriteReadPositions_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	if err := WritePositions(path, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadPositions(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("read %d positions, want 0", len(got))
	}
}

func TestReadPositions_MissingFile(t *testing.T) {
	_, err := ReadPositions(filepath.Join(t.TempDir(), "absent.parquet"))
	if !errors.Is(err, record.ErrDeserialization) {
		t.Fatalf("got %v, want ErrDeserialization", err)
	}
}

func TestReadPositions_NotParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.parquet")
	if err := os.WriteFile(path, []byte("not a parquet file"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := ReadPositions(path)
	if !errors.Is(err, record.ErrDeserialization) {
		t.Fatalf("got %v, want ErrDeserialization", err)
	}
}
