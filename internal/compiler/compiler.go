// Package compiler turns mustache template source into a bytecode
// program. It drives a bounded stack of parse frames, one per template
// being scanned: partials push a frame, and a frame pops once its source
// is exhausted. Instructions reference template text by blob offset, so
// the emitted program is position independent.
package compiler

import (
	"bytes"
	"fmt"

	"github.com/deepteams/mustache/internal/bytecode"
)

// frame tracks the scan position and active delimiters of one template
// on the parse stack.
type frame struct {
	dataStart    uint32 // blob offset of this template's segment header
	dataPos      uint32 // current read position
	dataEnd      uint32 // end of this template's source
	openSections int    // sections awaiting closure in this template
	delStart     []byte
	delEnd       []byte
}

type compiler struct {
	fs    FileSystem
	insts []bytecode.Instruction
	data  []byte // scratch data blob; consolidated into the Program
	stack []frame
}

// Compile builds a program from the root template. When data is non-nil
// it is used as the root source and filename only registers the root's
// name; otherwise filename is resolved and read through fs.
func Compile(filename string, data []byte, fs FileSystem) (*bytecode.Program, error) {
	c := &compiler{
		fs:    fs,
		insts: make([]bytecode.Instruction, 0, 32),
		stack: make([]frame, 0, 8),
	}
	if data != nil {
		if err := c.loadData([]byte(filename), data); err != nil {
			return nil, err
		}
	} else {
		if err := c.loadFile([]byte(filename)); err != nil {
			return nil, err
		}
	}
	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		if top.dataPos < top.dataEnd {
			if err := c.step(); err != nil {
				return nil, err
			}
			continue
		}
		if err := c.closeFrame(); err != nil {
			return nil, err
		}
	}
	return &bytecode.Program{Insts: c.insts, Data: c.data}, nil
}

func (c *compiler) top() *frame { return &c.stack[len(c.stack)-1] }

func (c *compiler) emit(in bytecode.Instruction) error {
	if len(c.insts) >= 1<<31-1 {
		return bytecode.ErrTooDeep
	}
	c.insts = append(c.insts, in)
	return nil
}

// step scans the top frame for its next tag. Text before the tag becomes
// a WriteText instruction; the tag body is dispatched on its sigil.
func (c *compiler) step() error {
	f := c.top()
	start := f.dataPos
	rel := bytes.Index(c.data[start:f.dataEnd], f.delStart)
	if rel < 0 {
		// No tags left, only text.
		err := c.emit(bytecode.Instruction{
			Op:      bytecode.OpWriteText,
			NamePos: start,
			NameLen: f.dataEnd - start,
		})
		f.dataPos = f.dataEnd
		return err
	}
	tagStart := start + uint32(rel)
	if tagStart != start {
		if err := c.emit(bytecode.Instruction{
			Op:      bytecode.OpWriteText,
			NamePos: start,
			NameLen: tagStart - start,
		}); err != nil {
			return err
		}
	}
	beg := tagStart + uint32(len(f.delStart))
	erel := bytes.Index(c.data[beg:f.dataEnd], f.delEnd)
	if erel < 0 {
		return fmt.Errorf("%w: unclosed delimiter", bytecode.ErrClosureMismatch)
	}
	end := beg + uint32(erel)
	f.dataPos = end + uint32(len(f.delEnd))

	if beg == end {
		// Empty tag body: an empty escaped variable.
		return c.emit(bytecode.Instruction{Op: bytecode.OpWriteArg, NamePos: beg})
	}

	switch c.data[beg] {
	case '!':
		// Comment, emits nothing.
		return nil
	case '=':
		return c.setDelimiters(beg, end)
	case '#':
		return c.openSection(beg+1, end, false)
	case '^':
		return c.openSection(beg+1, end, true)
	case '/':
		return c.closeSection(beg+1, end, tagStart)
	case '>':
		nb, ne := trim(c.data, beg+1, end)
		return c.loadFile(c.data[nb:ne])
	case '{':
		// Triple mustache: consume the extra '}' when the end delimiter
		// is brace-shaped.
		if f.dataPos < f.dataEnd && c.data[f.dataPos] == '}' &&
			f.delEnd[0] == '}' && f.delEnd[len(f.delEnd)-1] == '}' {
			f.dataPos++
		}
		return c.emitArg(beg+1, end, false)
	case '&':
		return c.emitArg(beg+1, end, false)
	case ':', '<':
		// Reserved sigils: stripped, then treated as escaped variables.
		return c.emitArg(beg+1, end, true)
	default:
		return c.emitArg(beg, end, true)
	}
}

// setDelimiters handles a `{{=X Y=}}` tag. beg and end bracket the tag
// body including both '=' markers.
func (c *compiler) setDelimiters(beg, end uint32) error {
	f := c.top()
	beg++ // past the leading '='
	if end <= beg || c.data[end-1] != '=' {
		return fmt.Errorf("%w: malformed delimiter tag", bytecode.ErrClosureMismatch)
	}
	end--
	beg, end = trim(c.data, beg, end)
	// Split on the first inner whitespace run.
	div := beg
	for div < end && !isSpace(c.data[div]) {
		div++
	}
	if div == end || div == beg {
		return fmt.Errorf("%w: malformed delimiter tag", bytecode.ErrClosureMismatch)
	}
	if div-beg > bytecode.DelimiterLimit {
		return bytecode.ErrDelimiterTooLong
	}
	newStart := append([]byte(nil), c.data[beg:div]...)
	div++
	for div < end && isSpace(c.data[div]) {
		div++
	}
	if div == end {
		return fmt.Errorf("%w: malformed delimiter tag", bytecode.ErrClosureMismatch)
	}
	if end-div > bytecode.DelimiterLimit {
		return bytecode.ErrDelimiterTooLong
	}
	f.delStart = newStart
	f.delEnd = append([]byte(nil), c.data[div:end]...)
	return nil
}

func (c *compiler) emitArg(beg, end uint32, escape bool) error {
	beg, end = trim(c.data, beg, end)
	if end-beg >= bytecode.MaxNameLen {
		return bytecode.ErrNameTooLong
	}
	op := bytecode.OpWriteArg
	if !escape {
		op = bytecode.OpWriteArgUnescaped
	}
	return c.emit(bytecode.Instruction{Op: op, NamePos: beg, NameLen: end - beg})
}

func (c *compiler) openSection(beg, end uint32, inverted bool) error {
	f := c.top()
	beg, end = trim(c.data, beg, end)
	f.openSections++
	if f.openSections >= bytecode.NestingLimit {
		return bytecode.ErrTooDeep
	}
	if end-beg >= bytecode.MaxNameLen {
		return bytecode.ErrNameTooLong
	}
	op := bytecode.OpSectionStart
	if inverted {
		op = bytecode.OpSectionStartInv
	}
	// Offset points just past the closing delimiter: the start of the
	// section's inner source. End and Len are back-patched by the closer.
	return c.emit(bytecode.Instruction{
		Op:      op,
		NamePos: beg,
		NameLen: end - beg,
		Offset:  f.dataPos - beg,
	})
}

// closeSection back-patches the nearest unmatched opener and emits the
// matching SectionEnd. tagStart is the blob offset of the closer's
// opening delimiter; the opener's Len becomes the distance from its
// body start to that point, i.e. the raw inner source length.
func (c *compiler) closeSection(beg, end, tagStart uint32) error {
	f := c.top()
	beg, end = trim(c.data, beg, end)
	if f.openSections == 0 {
		return fmt.Errorf("%w: unexpected section close", bytecode.ErrClosureMismatch)
	}
	nested := 0
	for pos := len(c.insts) - 1; pos >= 0; pos-- {
		switch c.insts[pos].Op {
		case bytecode.OpSectionEnd:
			nested++
		case bytecode.OpSectionStart, bytecode.OpSectionStartInv:
			if nested > 0 {
				nested--
				continue
			}
			opener := &c.insts[pos]
			if opener.NameLen != end-beg ||
				!bytes.Equal(c.data[beg:end], c.data[opener.NamePos:opener.NamePos+opener.NameLen]) {
				return fmt.Errorf("%w: section %q closed by %q",
					bytecode.ErrClosureMismatch,
					c.data[opener.NamePos:opener.NamePos+opener.NameLen],
					c.data[beg:end])
			}
			opener.End = uint32(len(c.insts))
			opener.Len = tagStart - (opener.NamePos + opener.Offset)
			f.openSections--
			return c.emit(bytecode.Instruction{
				Op:      bytecode.OpSectionEnd,
				End:     opener.End,
				Len:     opener.Len,
				NamePos: opener.NamePos,
				NameLen: opener.NameLen,
				Offset:  opener.Offset,
			})
		}
	}
	return fmt.Errorf("%w: no matching section open", bytecode.ErrClosureMismatch)
}

// closeFrame verifies all sections in the finished template were closed,
// back-patches the loader-injected opener and appends its closer.
func (c *compiler) closeFrame() error {
	f := c.top()
	if f.openSections != 0 {
		return fmt.Errorf("%w: unclosed section", bytecode.ErrClosureMismatch)
	}
	seg, err := bytecode.ReadSegment(c.data[f.dataStart:])
	if err != nil {
		return err
	}
	c.insts[seg.InstStart].End = uint32(len(c.insts))
	if err := c.emit(bytecode.Instruction{Op: bytecode.OpSectionEnd}); err != nil {
		return err
	}
	c.stack = c.stack[:len(c.stack)-1]
	return nil
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// trim narrows [beg, end) in src to exclude surrounding whitespace.
func trim(src []byte, beg, end uint32) (uint32, uint32) {
	for beg < end && isSpace(src[beg]) {
		beg++
	}
	for end > beg && isSpace(src[end-1]) {
		end--
	}
	return beg, end
}
