package mustache

import (
	"fmt"
	"io"

	"github.com/deepteams/mustache/internal/bytecode"
	"github.com/deepteams/mustache/internal/compiler"
)

// FileSystem is the filesystem surface used to resolve and read partial
// templates. See LoadArgs.FS.
type FileSystem = compiler.FileSystem

// OSFileSystem reads templates from the operating system. It is the
// default when LoadArgs.FS is nil.
var OSFileSystem = compiler.OSFileSystem

// LoadArgs are the arguments for Load.
type LoadArgs struct {
	// Filename names the root template. When Data is nil it is resolved
	// and read from FS; otherwise it only registers the root's name,
	// which partials may use to reference the root itself.
	Filename string

	// Data, when non-nil, is used as the root template's source instead
	// of reading Filename.
	Data []byte

	// FS resolves and reads partial files. Nil means the operating
	// system.
	FS FileSystem
}

// Template is a compiled template image. It is immutable and safe for
// concurrent Render calls; release it by dropping the last reference.
type Template struct {
	prog *bytecode.Program
}

// Load compiles the root template and every partial it transitively
// references into a single image.
func Load(args LoadArgs) (*Template, error) {
	if args.Filename == "" && args.Data == nil {
		return nil, ErrEmptyTemplate
	}
	fs := args.FS
	if fs == nil {
		fs = compiler.OSFileSystem
	}
	prog, err := compiler.Compile(args.Filename, args.Data, fs)
	if err != nil {
		return nil, err
	}
	return &Template{prog: prog}, nil
}

// LoadFile compiles the template stored at filename.
func LoadFile(filename string) (*Template, error) {
	return Load(LoadArgs{Filename: filename})
}

// LoadString compiles an in-memory template. name registers the root's
// name for self-referencing partials; it does not need to exist on disk.
func LoadString(name, source string) (*Template, error) {
	return Load(LoadArgs{Filename: name, Data: []byte(source)})
}

// Stats describes a compiled image.
type Stats struct {
	Instructions int      // instruction vector length
	DataLen      int      // data blob length in bytes
	Templates    []string // loaded template names, in load order
}

// Stats returns the image's instruction count, data size and the set of
// templates stitched into it.
func (t *Template) Stats() Stats {
	st := Stats{
		Instructions: len(t.prog.Insts),
		DataLen:      len(t.prog.Data),
	}
	_ = bytecode.WalkSegments(t.prog.Data, func(_ uint32, seg bytecode.Segment) bool {
		st.Templates = append(st.Templates, string(seg.Filename))
		return true
	})
	return st
}

// MarshalBinary encodes the image into a persistable byte form. The
// encoding is position independent; UnmarshalTemplate restores it.
func (t *Template) MarshalBinary() ([]byte, error) {
	return t.prog.MarshalBinary()
}

// UnmarshalTemplate reloads an image produced by MarshalBinary. The
// returned template aliases data, which must not be mutated afterwards.
// Corrupted input fails with ErrUnknown.
func UnmarshalTemplate(data []byte) (*Template, error) {
	prog, err := bytecode.ParseProgram(data)
	if err != nil {
		return nil, err
	}
	return &Template{prog: prog}, nil
}

// Disassemble writes a human-readable instruction listing to w.
func (t *Template) Disassemble(w io.Writer) error {
	for i := range t.prog.Insts {
		in := &t.prog.Insts[i]
		var detail string
		switch in.Op {
		case bytecode.OpWriteText:
			detail = fmt.Sprintf("%q", preview(t.prog.Text(in)))
		case bytecode.OpWriteArg, bytecode.OpWriteArgUnescaped:
			detail = fmt.Sprintf("name=%q", t.prog.Name(in))
		case bytecode.OpSectionStart, bytecode.OpSectionStartInv:
			if in.Named() {
				detail = fmt.Sprintf("name=%q end=%d", t.prog.Name(in), in.End)
			} else {
				detail = fmt.Sprintf("template end=%d", in.End)
			}
		case bytecode.OpSectionGoto:
			detail = fmt.Sprintf("target=%d resume=%d", in.Len, in.End)
		}
		if _, err := fmt.Fprintf(w, "%4d  %-19s %s\n", i, in.Op, detail); err != nil {
			return err
		}
	}
	return nil
}

// preview truncates long text runs for disassembly output.
func preview(b []byte) []byte {
	const max = 32
	if len(b) > max {
		return b[:max]
	}
	return b
}
