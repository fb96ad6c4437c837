package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Each template loaded into an image is introduced by a segment header
// inside the data blob, immediately followed by the template's raw source
// bytes. Headers chain through Next, so the loaded set can be walked
// without an index structure:
//
//	| 4 bytes  InstStart   first instruction of this template      |
//	| 4 bytes  Next        absolute blob offset of the next header |
//	| 2 bytes  FilenameLen                                         |
//	| 2 bytes  PathLen     bytes up to and including the last '/' or '\' |
//	| FilenameLen bytes    name                                    |
//	| 1 byte   0                                                   |
//
// All fields are little endian.

// SegmentFixedSize is the size of a segment header without its name.
const SegmentFixedSize = 13

// Segment is a decoded template segment header. Filename aliases the
// blob it was read from; no bytes are copied.
type Segment struct {
	Filename  []byte
	InstStart uint32
	Next      uint32
	PathLen   uint16
}

// Dir returns the directory prefix of the segment's filename, up to and
// including the final path separator (empty when the template was loaded
// from the working directory or from memory).
func (s Segment) Dir() []byte { return s.Filename[:s.PathLen] }

// SegmentSize returns the encoded size of a header for a name of the
// given length.
func SegmentSize(filenameLen int) int { return SegmentFixedSize + filenameLen }

// PathLen returns the index just past the last path separator in name,
// or 0 if name has no directory prefix. Both '/' and '\' separate.
func PathLen(name []byte) uint16 {
	for i := len(name); i > 0; i-- {
		if c := name[i-1]; c == '/' || c == '\\' {
			return uint16(i)
		}
	}
	return 0
}

// PutSegment encodes seg into dst, which must hold at least
// SegmentSize(len(seg.Filename)) bytes. It returns the encoded size.
func PutSegment(dst []byte, seg Segment) int {
	binary.LittleEndian.PutUint32(dst[0:4], seg.InstStart)
	binary.LittleEndian.PutUint32(dst[4:8], seg.Next)
	binary.LittleEndian.PutUint16(dst[8:10], uint16(len(seg.Filename)))
	binary.LittleEndian.PutUint16(dst[10:12], seg.PathLen)
	copy(dst[12:], seg.Filename)
	dst[12+len(seg.Filename)] = 0
	return SegmentSize(len(seg.Filename))
}

// ReadSegment decodes the segment header at the start of data.
func ReadSegment(data []byte) (Segment, error) {
	if len(data) < SegmentFixedSize {
		return Segment{}, fmt.Errorf("%w: segment header truncated", ErrUnknown)
	}
	nameLen := int(binary.LittleEndian.Uint16(data[8:10]))
	if SegmentFixedSize+nameLen > len(data) {
		return Segment{}, fmt.Errorf("%w: segment name truncated", ErrUnknown)
	}
	seg := Segment{
		Filename:  data[12 : 12+nameLen],
		InstStart: binary.LittleEndian.Uint32(data[0:4]),
		Next:      binary.LittleEndian.Uint32(data[4:8]),
		PathLen:   binary.LittleEndian.Uint16(data[10:12]),
	}
	if int(seg.PathLen) > nameLen {
		return Segment{}, fmt.Errorf("%w: segment path length out of range", ErrUnknown)
	}
	return seg, nil
}

// WalkSegments calls fn for every segment header in blob, in load order,
// until fn returns false or the chain reaches the end of the blob. The
// chain is followed through Next; a header whose Next does not advance
// past its own offset terminates the walk with an error.
func WalkSegments(blob []byte, fn func(offset uint32, seg Segment) bool) error {
	off := uint32(0)
	for off < uint32(len(blob)) {
		seg, err := ReadSegment(blob[off:])
		if err != nil {
			return err
		}
		if !fn(off, seg) {
			return nil
		}
		if seg.Next <= off {
			return fmt.Errorf("%w: segment chain does not advance", ErrUnknown)
		}
		off = seg.Next
	}
	return nil
}

// FindSegment walks blob for a segment whose filename equals name and
// returns it. The second return value reports whether it was found.
func FindSegment(blob []byte, name []byte) (Segment, bool) {
	var (
		found Segment
		ok    bool
	)
	_ = WalkSegments(blob, func(_ uint32, seg Segment) bool {
		if string(seg.Filename) == string(name) {
			found, ok = seg, true
			return false
		}
		return true
	})
	return found, ok
}
