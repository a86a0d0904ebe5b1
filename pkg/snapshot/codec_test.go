package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/atomworks/nnprep/pkg/record"
)

func carbonMonoxideRecord(t *testing.T, opts ...record.Option) record.Record {
	t.Helper()
	r, err := record.New(
		[]int{6, 6, 8},
		[][3]float64{{0, 0, 0}, {0.15, 0, 0}, {0.15, 0.12, 0}},
		[]int{0, 0, 0},
		[]int{0},
		opts...,
	)
	if err != nil {
		t.Fatalf("building record: %v", err)
	}
	return r
}

// encodeLegacy builds a version 1 payload by hand: required sections only,
// no flags, no pair count.
func encodeLegacy(atoms []int, positions [][3]float64, subsystems, charge []int) []byte {
	var payload bytes.Buffer
	writeInts(&payload, atoms)
	for _, p := range positions {
		mustWrite(&payload, p[:])
	}
	writeInts(&payload, subsystems)
	writeInts(&payload, charge)

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], uint32(VersionLegacy))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(atoms)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(charge)))

	footer := make([]byte, footerSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(payload.Bytes()))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(payload.Len()))

	out := append([]byte{}, header...)
	out = append(out, payload.Bytes()...)
	return append(out, footer...)
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	box := [3][3]float64{{2.5, 0, 0}, {0, 2.5, 0}, {0, 0, 2.5}}
	r := carbonMonoxideRecord(t,
		record.WithPairList([]int{0, 1, 2}, []int{1, 2, 0}),
		record.WithPartialCharge([]float64{-0.05, 0.35, -0.3}),
		record.WithBoxVectors(box),
		record.Periodic(),
	)

	data, err := Encode(FromRecord(r))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Version != VersionCurrent {
		t.Errorf("Version = %d, want %d", s.Version, VersionCurrent)
	}

	got, err := ToRecord(s)
	if err != nil {
		t.Fatalf("migrating decoded snapshot: %v", err)
	}
	assertRecordsEqual(t, got, r)
}

// End-to-end scenario from the construction side: a minimal three-atom record
// with no optional fields survives serialize/deserialize field-for-field.
func TestEncodeDecode_MinimalRecord(t *testing.T) {
	r := carbonMonoxideRecord(t)

	data, err := Encode(FromRecord(r))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := ToRecord(s)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	assertRecordsEqual(t, got, r)
	if got.PairList() != nil || got.PartialCharge() != nil {
		t.Error("optional fields should stay absent through a round trip")
	}
}

func TestDecode_LegacyVersion(t *testing.T) {
	data := encodeLegacy(
		[]int{1, 1, 8},
		[][3]float64{{0, 0, 0}, {0.1, 0, 0}, {0, 0.1, 0}},
		[]int{0, 0, 0},
		[]int{0},
	)

	s, err := Decode(data)
	if err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	if s.Version != VersionLegacy {
		t.Errorf("Version = %d, want %d", s.Version, VersionLegacy)
	}
	if s.PairList != nil || s.PartialCharge != nil || s.BoxVectors != nil || s.IsPeriodic != nil {
		t.Error("legacy decode must leave every optional field nil")
	}
	if len(s.AtomicNumbers) != 3 || s.AtomicNumbers[2] != 8 {
		t.Errorf("AtomicNumbers = %v", s.AtomicNumbers)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	valid, err := Encode(FromRecord(carbonMonoxideRecord(t)))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	badMagic := append([]byte{}, valid...)
	binary.LittleEndian.PutUint32(badMagic[0:4], 0xDEADBEEF)

	badVersion := append([]byte{}, valid...)
	binary.LittleEndian.PutUint32(badVersion[4:8], 99)

	badCRC := append([]byte{}, valid...)
	badCRC[headerSize] ^= 0xFF

	cases := []struct {
		name string
		data []byte
	}{
		{"too short", valid[:headerSize-1]},
		{"bad magic", badMagic},
		{"unknown version", badVersion},
		{"checksum mismatch", badCRC},
		{"truncated payload", append(append([]byte{}, valid[:headerSize+4]...), valid[len(valid)-footerSize:]...)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			if !errors.Is(err, record.ErrDeserialization) {
				t.Fatalf("got %v, want ErrDeserialization", err)
			}
		})
	}
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.nnps")
	r := carbonMonoxideRecord(t, record.WithPartialCharge([]float64{0.1, 0.1, -0.2}))

	if err := WriteFile(path, FromRecord(r)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after successful write")
	}

	s, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := ToRecord(s)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	assertRecordsEqual(t, got, r)
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.nnps"))
	if !errors.Is(err, record.ErrDeserialization) {
		t.Fatalf("got %v, want ErrDeserialization", err)
	}
}

func assertRecordsEqual(t *testing.T, got, want record.Record) {
	t.Helper()
	if got.NumAtoms() != want.NumAtoms() {
		t.Fatalf("NumAtoms() = %d, want %d", got.NumAtoms(), want.NumAtoms())
	}
	for i := range want.AtomicNumbers() {
		if got.AtomicNumbers()[i] != want.AtomicNumbers()[i] {
			t.Errorf("AtomicNumbers()[%d] = %d, want %d",
				i, got.AtomicNumbers()[i], want.AtomicNumbers()[i])
		}
		if got.Positions()[i] != want.Positions()[i] {
			t.Errorf("Positions()[%d] = %v, want %v",
				i, got.Positions()[i], want.Positions()[i])
		}
		if got.SubsystemIndices()[i] != want.SubsystemIndices()[i] {
			t.Errorf("SubsystemIndices()[%d] = %d, want %d",
				i, got.SubsystemIndices()[i], want.SubsystemIndices()[i])
		}
	}
	if len(got.TotalCharge()) != len(want.TotalCharge()) {
		t.Fatalf("TotalCharge() length = %d, want %d",
			len(got.TotalCharge()), len(want.TotalCharge()))
	}
	for i := range want.TotalCharge() {
		if got.TotalCharge()[i] != want.TotalCharge()[i] {
			t.Errorf("TotalCharge()[%d] = %d, want %d",
				i, got.TotalCharge()[i], want.TotalCharge()[i])
		}
	}
	switch {
	case (got.PairList() == nil) != (want.PairList() == nil):
		t.Errorf("PairList() presence = %v, want %v", got.PairList() != nil, want.PairList() != nil)
	case got.PairList() != nil:
		if got.PairList().Len() != want.PairList().Len() {
			t.Fatalf("PairList().Len() = %d, want %d", got.PairList().Len(), want.PairList().Len())
		}
		for k := range want.PairList().I {
			if got.PairList().I[k] != want.PairList().I[k] || got.PairList().J[k] != want.PairList().J[k] {
				t.Errorf("pair %d = (%d, %d), want (%d, %d)", k,
					got.PairList().I[k], got.PairList().J[k],
					want.PairList().I[k], want.PairList().J[k])
			}
		}
	}
	if (got.PartialCharge() == nil) != (want.PartialCharge() == nil) {
		t.Errorf("PartialCharge() presence = %v, want %v",
			got.PartialCharge() != nil, want.PartialCharge() != nil)
	}
	for i := range want.PartialCharge() {
		if got.PartialCharge()[i] != want.PartialCharge()[i] {
			t.Errorf("PartialCharge()[%d] = %v, want %v",
				i, got.PartialCharge()[i], want.PartialCharge()[i])
		}
	}
	if got.BoxVectors() != want.BoxVectors() {
		t.Errorf("BoxVectors() = %v, want %v", got.BoxVectors(), want.BoxVectors())
	}
	if got.Periodic() != want.Periodic() {
		t.Errorf("Periodic() = %v, want %v", got.Periodic(), want.Periodic())
	}
}
