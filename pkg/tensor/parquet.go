// Package tensor reads and writes position arrays as parquet files: one row
// per atom with x/y/z double columns.
package tensor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/atomworks/nnprep/pkg/record"
)

type positionRow struct {
	X float64 `parquet:"x"`
	Y float64 `parquet:"y"`
	Z float64 `parquet:"z"`
}

// positionColumns holds the leaf indices of the coordinate columns.
type positionColumns struct {
	x, y, z int
}

// resolvePositionColumns finds the x/y/z leaf indices by column name.
func resolvePositionColumns(pf *parquet.File) (positionColumns, error) {
	cols := positionColumns{x: -1, y: -1, z: -1}
	for i, path := range pf.Schema().Columns() {
		if len(path) == 0 {
			continue
		}
		switch path[0] {
		case "x":
			cols.x = i
		case "y":
			cols.y = i
		case "z":
			cols.z = i
		}
	}
	if cols.x < 0 || cols.y < 0 || cols.z < 0 {
		return cols, fmt.Errorf("%w: parquet schema lacks x/y/z columns", record.ErrDeserialization)
	}
	return cols, nil
}

// ReadPositions reads one (N, 3) position array from a parquet file.
func ReadPositions(path string) ([][3]float64, error) {
	h, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	cols, err := resolvePositionColumns(h.pf)
	if err != nil {
		return nil, err
	}

	positions := make([][3]float64, 0, h.pf.NumRows())
	for _, rg := range h.pf.RowGroups() {
		rows := parquet.NewRowGroupReader(rg)
		buf := make([]parquet.Row, 256)

		for {
			n, readErr := rows.ReadRows(buf)
			for i := 0; i < n; i++ {
				positions = append(positions, rowToPosition(buf[i], cols))
			}
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					break
				}
				return nil, fmt.Errorf("%w: read rows: %v", record.ErrDeserialization, readErr)
			}
		}
	}
	return positions, nil
}

func rowToPosition(row parquet.Row, cols positionColumns) [3]float64 {
	var p [3]float64
	for _, v := range row {
		if v.IsNull() {
			continue
		}
		switch v.Column() {
		case cols.x:
			p[0] = v.Double()
		case cols.y:
			p[1] = v.Double()
		case cols.z:
			p[2] = v.Double()
		}
	}
	return p
}

// WritePositions writes an (N, 3) position array to a parquet file.
func WritePositions(path string, positions [][3]float64) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := parquet.NewGenericWriter[positionRow](f)
	rows := make([]positionRow, len(positions))
	for i, p := range positions {
		rows[i] = positionRow{X: p[0], Y: p[1], Z: p[2]}
	}
	if _, err := w.Write(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("write positions: %w", err)
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// parquetHandle wraps parquet.File plus the underlying os.File for cleanup.
type parquetHandle struct {
	pf   *parquet.File
	file *os.File
}

func (h *parquetHandle) Close() {
	_ = h.file.Close()
}

func openParquet(path string) (*parquetHandle, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", record.ErrDeserialization, path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", record.ErrDeserialization, path, err)
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: open parquet %s: %v", record.ErrDeserialization, path, err)
	}
	return &parquetHandle{pf: pf, file: f}, nil
}
