package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"

	"github.com/atomworks/nnprep/pkg/record"
)

// Magic identifies a valid snapshot file.
const (
	Magic      uint32 = 0x4E4E5053 // "NNPS"
	headerSize        = 24
	footerSize        = 8
)

// Optional section flags in the file header.
const (
	flagPairList uint32 = 1 << iota
	flagPartialCharge
	flagBox
	flagPeriodicSet
	flagPeriodicTrue
)

// Encode serialises a snapshot into the current-version binary layout:
// a fixed header (magic, version, counts, flags), little-endian field
// sections, and a CRC32 footer over the payload.
func Encode(s Snapshot) ([]byte, error) {
	atomCount := len(s.AtomicNumbers)
	if len(s.Positions) != atomCount || len(s.SubsystemIndices) != atomCount {
		return nil, record.NewShapeMismatch("positions",
			"cannot encode: %d atoms, %d positions, %d subsystem indices",
			atomCount, len(s.Positions), len(s.SubsystemIndices))
	}

	var flags uint32
	pairCount := 0
	if s.PairList != nil {
		if len(s.PairList.I) != len(s.PairList.J) {
			return nil, record.NewShapeMismatch("pair_list",
				"cannot encode: index columns differ in length: %d vs %d",
				len(s.PairList.I), len(s.PairList.J))
		}
		flags |= flagPairList
		pairCount = s.PairList.Len()
	}
	if s.PartialCharge != nil {
		if len(s.PartialCharge) != atomCount {
			return nil, record.NewShapeMismatch("partial_charge",
				"cannot encode: length %d does not match %d atoms",
				len(s.PartialCharge), atomCount)
		}
		flags |= flagPartialCharge
	}
	if s.BoxVectors != nil {
		flags |= flagBox
	}
	if s.IsPeriodic != nil {
		flags |= flagPeriodicSet
		if *s.IsPeriodic {
			flags |= flagPeriodicTrue
		}
	}

	var payload bytes.Buffer
	writeInts(&payload, s.AtomicNumbers)
	for _, p := range s.Positions {
		mustWrite(&payload, p[:])
	}
	writeInts(&payload, s.SubsystemIndices)
	writeInts(&payload, s.TotalCharge)
	if s.PairList != nil {
		writeInts(&payload, s.PairList.I)
		writeInts(&payload, s.PairList.J)
	}
	if s.PartialCharge != nil {
		mustWrite(&payload, s.PartialCharge)
	}
	if s.BoxVectors != nil {
		for _, row := range s.BoxVectors {
			mustWrite(&payload, row[:])
		}
	}

	out := make([]byte, 0, headerSize+payload.Len()+footerSize)
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(VersionCurrent))
	binary.LittleEndian.PutUint32(header[8:12], uint32(atomCount))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(s.TotalCharge)))
	binary.LittleEndian.PutUint32(header[16:20], uint32(pairCount))
	binary.LittleEndian.PutUint32(header[20:24], flags)

	footer := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(payload.Bytes()))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(payload.Len()))

	out = append(out, header...)
	out = append(out, payload.Bytes()...)
	out = append(out, footer...)
	return out, nil
}

// Decode parses a binary snapshot of any known version into a tagged
// Snapshot. Optional fields absent from the payload stay nil; defaults are
// resolved by ToRecord, not here.
func Decode(data []byte) (Snapshot, error) {
	if len(data) < headerSize+footerSize {
		return Snapshot{}, decodeErr("file too short (%d bytes)", len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != Magic {
		return Snapshot{}, decodeErr("bad magic 0x%08X", magic)
	}
	version := int(binary.LittleEndian.Uint32(data[4:8]))
	if version != VersionLegacy && version != VersionCurrent {
		return Snapshot{}, decodeErr("unknown schema version %d", version)
	}
	atomCount := int(binary.LittleEndian.Uint32(data[8:12]))
	systemCount := int(binary.LittleEndian.Uint32(data[12:16]))
	pairCount := int(binary.LittleEndian.Uint32(data[16:20]))
	flags := binary.LittleEndian.Uint32(data[20:24])

	if version == VersionLegacy && (flags != 0 || pairCount != 0) {
		return Snapshot{}, decodeErr("legacy snapshot carries optional sections")
	}

	payload := data[headerSize : len(data)-footerSize]
	wantCRC := binary.LittleEndian.Uint32(data[len(data)-footerSize:])
	wantLen := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	if len(payload) != wantLen {
		return Snapshot{}, decodeErr("payload size %d does not match footer %d", len(payload), wantLen)
	}
	if crc := crc32.ChecksumIEEE(payload); crc != wantCRC {
		return Snapshot{}, decodeErr("payload checksum 0x%08X does not match footer 0x%08X", crc, wantCRC)
	}

	r := &payloadReader{data: payload}
	s := Snapshot{Version: version}
	s.AtomicNumbers = r.ints(atomCount)
	s.Positions = r.triples(atomCount)
	s.SubsystemIndices = r.ints(atomCount)
	s.TotalCharge = r.ints(systemCount)

	if flags&flagPairList != 0 {
		s.PairList = &record.PairList{I: r.ints(pairCount), J: r.ints(pairCount)}
	}
	if flags&flagPartialCharge != 0 {
		s.PartialCharge = r.floats(atomCount)
	}
	if flags&flagBox != 0 {
		var box [3][3]float64
		for i := range box {
			row := r.floats(3)
			if row != nil {
				copy(box[i][:], row)
			}
		}
		s.BoxVectors = &box
	}
	if flags&flagPeriodicSet != 0 {
		periodic := flags&flagPeriodicTrue != 0
		s.IsPeriodic = &periodic
	}

	if r.err != nil {
		return Snapshot{}, r.err
	}
	if r.off != len(payload) {
		return Snapshot{}, decodeErr("%d trailing payload bytes", len(payload)-r.off)
	}
	return s, nil
}

// WriteFile encodes a snapshot and writes it atomically: the bytes go to a
// .tmp file first and are renamed into place on success.
func WriteFile(path string, s Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}

	cleanPath := filepath.Clean(path)
	tmpPath := cleanPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, cleanPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ReadFile reads and decodes a snapshot file.
func ReadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read %s: %v", record.ErrDeserialization, path, err)
	}
	s, err := Decode(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", record.ErrDeserialization, fmt.Sprintf(format, args...))
}

func writeInts(buf *bytes.Buffer, vals []int) {
	conv := make([]int32, len(vals))
	for i, v := range vals {
		conv[i] = int32(v)
	}
	mustWrite(buf, conv)
}

// mustWrite writes fixed-size values into an in-memory buffer; binary.Write
// cannot fail there.
func mustWrite(buf *bytes.Buffer, v any) {
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
}

// payloadReader consumes little-endian sections, latching the first error.
type payloadReader struct {
	data []byte
	off  int
	err  error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = decodeErr("truncated payload at offset %d (need %d bytes)", r.off, n)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *payloadReader) ints(count int) []int {
	b := r.take(4 * count)
	if b == nil {
		return nil
	}
	vals := make([]int, count)
	for i := range vals {
		vals[i] = int(int32(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return vals
}

func (r *payloadReader) floats(count int) []float64 {
	b := r.take(8 * count)
	if b == nil {
		return nil
	}
	vals := make([]float64, count)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return vals
}

func (r *payloadReader) triples(count int) [][3]float64 {
	flat := r.floats(3 * count)
	if flat == nil {
		return nil
	}
	vals := make([][3]float64, count)
	for i := range vals {
		copy(vals[i][:], flat[3*i:3*i+3])
	}
	return vals
}
