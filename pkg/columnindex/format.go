// Package columnindex persists and reads the on-disk columnar index
// described by spec.md §3/§6: a sibling `<log>.idx/` directory holding a
// meta header plus offsets/flags/time/checkpoints columns, giving O(1)
// line lookup and bitmap pre-filtering without re-scanning the log file.
package columnindex

import (
	"encoding/binary"

	"github.com/lazytail-go/lazytail/pkg/types"
)

// Magic identifies a lazytail columnar index directory (spec §6).
const Magic = "LZTI"

const metaVersion = uint16(1)

// Column presence bits in meta's bitmask.
const (
	ColumnOffsets     uint32 = 1 << 0
	ColumnFlags       uint32 = 1 << 1
	ColumnTime        uint32 = 1 << 2
	ColumnCheckpoints uint32 = 1 << 3
)

// CheckpointInterval is how often a severity-histogram checkpoint is
// recorded, in lines.
const CheckpointInterval = 1000

// meta is the binary header persisted as the `meta` file.
type meta struct {
	Version     uint16
	Columns     uint32
	EntryCount  uint64
	LogFileSize uint64
}

const metaSize = 4 + 2 + 2 + 4 + 8 + 8 // magic + version + reserved + columns + entry_count + log_file_size

func encodeMeta(m meta) []byte {
	buf := make([]byte, metaSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], m.Version)
	// buf[6:8] reserved, left zero
	binary.LittleEndian.PutUint32(buf[8:12], m.Columns)
	binary.LittleEndian.PutUint64(buf[12:20], m.EntryCount)
	binary.LittleEndian.PutUint64(buf[20:28], m.LogFileSize)
	return buf
}

func decodeMeta(buf []byte) (meta, bool) {
	if len(buf) < metaSize || string(buf[0:4]) != Magic {
		return meta{}, false
	}
	return meta{
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		Columns:     binary.LittleEndian.Uint32(buf[8:12]),
		EntryCount:  binary.LittleEndian.Uint64(buf[12:20]),
		LogFileSize: binary.LittleEndian.Uint64(buf[20:28]),
	}, true
}

// Checkpoint is a periodic cumulative severity histogram (spec §3/§6).
type Checkpoint struct {
	AtLine         uint64
	SeverityCounts [types.SeverityCount]uint32
}

const checkpointSize = 8 + types.SeverityCount*4

func encodeCheckpoints(cps []Checkpoint) []byte {
	buf := make([]byte, len(cps)*checkpointSize)
	for i, cp := range cps {
		off := i * checkpointSize
		binary.LittleEndian.PutUint64(buf[off:off+8], cp.AtLine)
		for j, c := range cp.SeverityCounts {
			binary.LittleEndian.PutUint32(buf[off+8+j*4:off+8+j*4+4], c)
		}
	}
	return buf
}

func decodeCheckpoints(buf []byte) []Checkpoint {
	n := len(buf) / checkpointSize
	cps := make([]Checkpoint, n)
	for i := range cps {
		off := i * checkpointSize
		cps[i].AtLine = binary.LittleEndian.Uint64(buf[off : off+8])
		for j := range cps[i].SeverityCounts {
			cps[i].SeverityCounts[j] = binary.LittleEndian.Uint32(buf[off+8+j*4 : off+8+j*4+4])
		}
	}
	return cps
}

func encodeU64Slice(vals []uint64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], v)
	}
	return buf
}

func decodeU64Slice(buf []byte) []uint64 {
	n := len(buf) / 8
	vals := make([]uint64, n)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint64(buf[i*8 : i*8+8])
	}
	return vals
}

func encodeU32Slice(vals []uint32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], v)
	}
	return buf
}

func decodeU32Slice(buf []byte) []uint32 {
	n := len(buf) / 4
	vals := make([]uint32, n)
	for i := range vals {
		vals[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return vals
}
