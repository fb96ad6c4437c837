package compiler

import (
	"bytes"
	"fmt"
	"os"

	"github.com/deepteams/mustache/internal/bytecode"
)

// FileSystem is the minimal filesystem surface the loader needs to read
// partial templates. The default implementation is the operating system;
// hosts may substitute their own (embedded templates, test fixtures).
type FileSystem interface {
	// Stat returns the size of the named regular file, or an error if
	// the file does not exist or is not regular.
	Stat(name string) (int64, error)

	// ReadFile returns the contents of the named file.
	ReadFile(name string) ([]byte, error)
}

type osFS struct{}

func (osFS) Stat(name string) (int64, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("not a regular file: %s", name)
	}
	return fi.Size(), nil
}

func (osFS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// OSFileSystem reads templates directly from the operating system.
var OSFileSystem FileSystem = osFS{}

// defaultExt is appended to a partial name when the raw name does not
// resolve to a file.
const defaultExt = ".mustache"

// loadData appends a segment header and the template source to the data
// blob, emits the injected section opener that brackets the template's
// instructions, and pushes a parse frame. Delimiters reset to {{ }} for
// every pushed frame.
func (c *compiler) loadData(name, body []byte) error {
	old := len(c.data)
	segSize := bytecode.SegmentSize(len(name))
	if uint64(old)+uint64(len(body))+uint64(segSize) > bytecode.MaxDataLen {
		return bytecode.ErrTooDeep
	}
	if len(c.stack) >= bytecode.NestingLimit {
		return bytecode.ErrTooDeep
	}
	c.data = append(c.data, make([]byte, segSize)...)
	bytecode.PutSegment(c.data[old:], bytecode.Segment{
		Filename:  name,
		InstStart: uint32(len(c.insts)),
		Next:      uint32(old + len(body) + segSize),
		PathLen:   bytecode.PathLen(name),
	})
	c.data = append(c.data, body...)

	// The injected opener runs the template exactly once at render time;
	// its End is back-patched when the frame pops.
	if err := c.emit(bytecode.Instruction{Op: bytecode.OpSectionStart}); err != nil {
		return err
	}
	c.stack = append(c.stack, frame{
		dataStart: uint32(old),
		dataPos:   uint32(old + segSize),
		dataEnd:   uint32(len(c.data)),
		delStart:  []byte("{{"),
		delEnd:    []byte("}}"),
	})
	return nil
}

// loadFile resolves a partial name against the parse stack's ancestor
// directories and loads it. A partial that already sits in the image is
// spliced with a goto instead of being loaded twice, which is also what
// breaks partial-inclusion cycles.
func (c *compiler) loadFile(name []byte) error {
	if len(name) == 0 {
		return bytecode.ErrFileNameTooShort
	}
	if len(name) >= bytecode.MaxFileNameLen {
		return bytecode.ErrFileNameTooLong
	}

	path, size, ok := c.resolve(name)
	if !ok {
		// A name that matches the root template's registered name refers
		// back to instruction 0. This is how an in-memory root includes
		// itself, since it has no backing file to resolve.
		if len(c.data) > 0 {
			root, err := bytecode.ReadSegment(c.data)
			if err != nil {
				return err
			}
			if bytes.Equal(root.Filename, name) {
				return c.emit(bytecode.Instruction{
					Op:  bytecode.OpSectionGoto,
					End: uint32(len(c.insts)),
				})
			}
		}
		return fmt.Errorf("%w: %q", bytecode.ErrFileNotFound, name)
	}
	if size >= bytecode.MaxFileSize {
		return bytecode.ErrFileTooBig
	}

	if seg, found := bytecode.FindSegment(c.data, []byte(path)); found {
		// Already loaded: splice it. End records where to resume, which
		// is this goto's own index.
		return c.emit(bytecode.Instruction{
			Op:  bytecode.OpSectionGoto,
			Len: seg.InstStart,
			End: uint32(len(c.insts)),
		})
	}

	body, err := c.fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", bytecode.ErrUnknown, path, err)
	}
	if int64(len(body)) >= bytecode.MaxFileSize {
		return bytecode.ErrFileTooBig
	}
	return c.loadData([]byte(path), body)
}

// resolve walks the parse stack from the including template outward
// toward the root, trying each ancestor directory with the raw name and
// then with the default extension. A directory equal to the one just
// tried is skipped. The first hit wins.
func (c *compiler) resolve(name []byte) (path string, size int64, ok bool) {
	var prevDir []byte
	tryDir := func(dir []byte) (string, int64, bool) {
		cand := string(dir) + string(name)
		if sz, err := c.fs.Stat(cand); err == nil {
			return cand, sz, true
		}
		cand += defaultExt
		if sz, err := c.fs.Stat(cand); err == nil {
			return cand, sz, true
		}
		return "", 0, false
	}

	for i := len(c.stack) - 1; i >= 0; i-- {
		seg, err := bytecode.ReadSegment(c.data[c.stack[i].dataStart:])
		if err != nil {
			continue
		}
		dir := seg.Dir()
		if len(prevDir) > 0 && bytes.Equal(dir, prevDir) {
			continue
		}
		prevDir = dir
		if p, sz, found := tryDir(dir); found {
			return p, sz, true
		}
		if len(dir) == 0 {
			// The working directory was just tried; outer frames cannot
			// add anything shorter.
			return "", 0, false
		}
	}
	if len(c.stack) == 0 {
		// Root load: only the working directory to try.
		return tryDir(nil)
	}
	return "", 0, false
}
