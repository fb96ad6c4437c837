package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Persisted image format: a fixed header followed by the instruction
// vector and the data blob, all little endian.
//
//	| 4 bytes  magic "MST1"          |
//	| 4 bytes  format version        |
//	| 4 bytes  instruction count     |
//	| 4 bytes  data blob length      |
//	| count * 24 bytes  instructions |
//	| data blob                      |

const (
	// ImageHeaderSize is the size of the persisted image header.
	ImageHeaderSize = 16

	// InstructionSize is the persisted size of one instruction record.
	InstructionSize = 24

	imageVersion = 1
)

func fourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var imageMagic = fourCC('M', 'S', 'T', '1')

// MarshalBinary encodes the program into its persisted form.
func (p *Program) MarshalBinary() ([]byte, error) {
	size := ImageHeaderSize + len(p.Insts)*InstructionSize + len(p.Data)
	out := make([]byte, size)
	binary.LittleEndian.PutUint32(out[0:4], imageMagic)
	binary.LittleEndian.PutUint32(out[4:8], imageVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(p.Insts)))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(p.Data)))
	off := ImageHeaderSize
	for i := range p.Insts {
		putInstruction(out[off:], &p.Insts[i])
		off += InstructionSize
	}
	copy(out[off:], p.Data)
	return out, nil
}

// ParseProgram decodes a persisted image. The instructions are decoded
// into a new vector, but the data blob aliases the input; callers must not
// mutate data afterwards.
func ParseProgram(data []byte) (*Program, error) {
	if len(data) < ImageHeaderSize {
		return nil, fmt.Errorf("%w: image header truncated", ErrUnknown)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != imageMagic {
		return nil, fmt.Errorf("%w: bad image magic", ErrUnknown)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != imageVersion {
		return nil, fmt.Errorf("%w: unsupported image version %d", ErrUnknown, v)
	}
	count := int(binary.LittleEndian.Uint32(data[8:12]))
	dataLen := int(binary.LittleEndian.Uint32(data[12:16]))
	need := ImageHeaderSize + count*InstructionSize + dataLen
	if count < 0 || dataLen < 0 || need > len(data) {
		return nil, fmt.Errorf("%w: image body truncated", ErrUnknown)
	}
	p := &Program{
		Insts: make([]Instruction, count),
		Data:  data[ImageHeaderSize+count*InstructionSize : need],
	}
	off := ImageHeaderSize
	for i := range p.Insts {
		if err := readInstruction(data[off:], &p.Insts[i]); err != nil {
			return nil, err
		}
		off += InstructionSize
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func putInstruction(dst []byte, in *Instruction) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(in.Op))
	binary.LittleEndian.PutUint32(dst[4:8], in.End)
	binary.LittleEndian.PutUint32(dst[8:12], in.Len)
	binary.LittleEndian.PutUint32(dst[12:16], in.NamePos)
	binary.LittleEndian.PutUint32(dst[16:20], in.NameLen)
	binary.LittleEndian.PutUint32(dst[20:24], in.Offset)
}

func readInstruction(src []byte, in *Instruction) error {
	op := binary.LittleEndian.Uint32(src[0:4])
	in.Op = Opcode(op)
	if op >= uint32(opCount) {
		return fmt.Errorf("%w: invalid opcode %d", ErrUnknown, op)
	}
	in.End = binary.LittleEndian.Uint32(src[4:8])
	in.Len = binary.LittleEndian.Uint32(src[8:12])
	in.NamePos = binary.LittleEndian.Uint32(src[12:16])
	in.NameLen = binary.LittleEndian.Uint32(src[16:20])
	in.Offset = binary.LittleEndian.Uint32(src[20:24])
	return nil
}

// validate rejects images whose offsets escape the instruction vector or
// the data blob, so a corrupted image fails at load instead of at render.
func (p *Program) validate() error {
	n := uint32(len(p.Insts))
	blob := uint32(len(p.Data))
	for i := range p.Insts {
		in := &p.Insts[i]
		if uint64(in.NamePos)+uint64(in.NameLen) > uint64(blob) {
			return fmt.Errorf("%w: instruction %d name out of range", ErrUnknown, i)
		}
		switch in.Op {
		case OpSectionStart, OpSectionStartInv:
			if in.End >= n || p.Insts[in.End].Op != OpSectionEnd {
				return fmt.Errorf("%w: instruction %d has no closer", ErrUnknown, i)
			}
			if uint64(in.NamePos)+uint64(in.Offset)+uint64(in.Len) > uint64(blob) {
				return fmt.Errorf("%w: instruction %d body out of range", ErrUnknown, i)
			}
		case OpSectionGoto:
			if in.Len >= n || p.Insts[in.Len].Op != OpSectionStart {
				return fmt.Errorf("%w: instruction %d goto target invalid", ErrUnknown, i)
			}
			if in.End >= n {
				return fmt.Errorf("%w: instruction %d goto resume invalid", ErrUnknown, i)
			}
		}
	}
	return WalkSegments(p.Data, func(uint32, Segment) bool { return true })
}
