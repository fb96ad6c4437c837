// Package bytecode defines the compiled template image: the instruction
// vector, the data blob with its per-template segment headers, and the
// binary form used to persist an image.
//
// An image is position independent. Instructions reference template text
// through byte offsets into the data blob, never through pointers, so a
// marshalled image can be reloaded byte-for-byte.
package bytecode

// Engine limits.
const (
	// NestingLimit bounds both the compiler's parse stack and the
	// renderer's section stack.
	NestingLimit = 96

	// DelimiterLimit is the longest allowed tag delimiter, in bytes.
	DelimiterLimit = 10

	// MaxFileSize bounds partial files; files of this size or larger
	// are rejected.
	MaxFileSize = 1 << 31

	// MaxFileNameLen bounds partial names; names of this many bytes or
	// more are rejected.
	MaxFileNameLen = 8192

	// MaxNameLen bounds tag names; names of this many bytes or more are
	// rejected.
	MaxNameLen = 1 << 16

	// MaxDataLen is the largest allowed data blob.
	MaxDataLen = 1<<32 - 1
)

// Opcode identifies one instruction kind.
type Opcode uint8

const (
	OpWriteText         Opcode = iota // emit literal template text
	OpWriteArg                        // emit a named value, HTML escaped
	OpWriteArgUnescaped               // emit a named value verbatim
	OpSectionStart                    // open a section (or spliced template)
	OpSectionStartInv                 // open an inverted section
	OpSectionEnd                      // close the innermost section
	OpSectionGoto                     // splice a previously loaded template

	opCount
)

var opNames = [opCount]string{
	OpWriteText:         "WRITE_TEXT",
	OpWriteArg:          "WRITE_ARG",
	OpWriteArgUnescaped: "WRITE_ARG_UNESCAPED",
	OpSectionStart:      "SECTION_START",
	OpSectionStartInv:   "SECTION_START_INV",
	OpSectionEnd:        "SECTION_END",
	OpSectionGoto:       "SECTION_GOTO",
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool { return op < opCount }

func (op Opcode) String() string {
	if op.Valid() {
		return opNames[op]
	}
	return "INVALID"
}

// Instruction is one fixed-width record in the instruction vector.
//
// The payload fields are overloaded by opcode:
//
//   - End: for section opens, the index of the matching OpSectionEnd; for
//     OpSectionGoto, the instruction to resume at once the spliced
//     template completes (the goto's own index).
//   - Len: for OpSectionStart, the byte length of the raw inner source;
//     for OpSectionGoto, the target instruction index.
//   - NamePos/NameLen: the referenced name (or literal text) as a byte
//     range inside the data blob. NamePos zero marks an unnamed
//     instruction, since offset zero always falls inside the root
//     template's segment header.
//   - Offset: for section opens, the byte distance from the name start to
//     the inner-content start; NamePos+Offset locates the raw section
//     body.
type Instruction struct {
	Op      Opcode
	End     uint32
	Len     uint32
	NamePos uint32
	NameLen uint32
	Offset  uint32
}

// Named reports whether the instruction references a name in the blob.
func (in *Instruction) Named() bool { return in.NamePos != 0 }

// Program is a compiled template image: the instruction vector plus the
// data blob. Both are immutable after compilation, which is what makes a
// single Program safe to render from many goroutines at once.
type Program struct {
	Insts []Instruction
	Data  []byte
}

// Name returns the blob bytes referenced by the instruction's name range.
func (p *Program) Name(in *Instruction) []byte {
	return p.Data[in.NamePos : in.NamePos+in.NameLen]
}

// Text returns the blob bytes of a WriteText instruction.
func (p *Program) Text(in *Instruction) []byte {
	return p.Data[in.NamePos : in.NamePos+in.NameLen]
}

// SectionBody returns the raw inner source of a section-open instruction.
func (p *Program) SectionBody(in *Instruction) []byte {
	start := in.NamePos + in.Offset
	return p.Data[start : start+in.Len]
}
