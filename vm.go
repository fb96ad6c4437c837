package mustache

import (
	"fmt"

	"github.com/deepteams/mustache/internal/bytecode"
)

// vmFrame is one entry on the render stack: the host-visible section
// handle plus the loop bookkeeping for the section it brackets.
type vmFrame struct {
	sec   Section
	start uint32 // instruction index of the section's opener
	end   uint32 // instruction to jump to once iteration completes
	index uint32 // zero-based iteration counter
	count uint32 // iterations requested by the host
}

// renderStack is the per-invocation VM state. Each Render call owns its
// own stack, which is what makes concurrent renders over one Template
// safe: the instructions, much like machine code, may loop or jump, and
// the explicit stack keeps recursive templates off the host call stack.
type renderStack struct {
	prog  *bytecode.Program
	pos   uint32 // program counter
	index int    // top of stack
	stack [bytecode.NestingLimit]vmFrame
}

// Render executes the compiled template against the handler. The two
// opaque user-data values seed the root section; child sections inherit
// them and may be rebound per iteration through OnSectionStart.
//
// On any failure the handler's OnError hook runs exactly once and the
// error is returned; the template itself is never mutated.
func (t *Template) Render(h Handler, udata1, udata2 any) error {
	if err := t.render(h, udata1, udata2); err != nil {
		h.OnError(udata1, udata2)
		return err
	}
	return nil
}

func (t *Template) render(h Handler, udata1, udata2 any) error {
	insts := t.prog.Insts
	if len(insts) == 0 {
		return nil
	}
	s := &renderStack{prog: t.prog}
	s.stack[0] = vmFrame{
		sec: Section{UData1: udata1, UData2: udata2, owner: s},
		end: insts[0].End,
	}

	for s.pos < uint32(len(insts)) {
		in := &insts[s.pos]
		switch in.Op {
		case bytecode.OpWriteText:
			if err := h.OnText(&s.stack[s.index].sec, t.prog.Text(in)); err != nil {
				return userError(err)
			}

		case bytecode.OpWriteArg:
			if err := h.OnArg(&s.stack[s.index].sec, t.prog.Name(in), true); err != nil {
				return userError(err)
			}

		case bytecode.OpWriteArgUnescaped:
			if err := h.OnArg(&s.stack[s.index].sec, t.prog.Name(in), false); err != nil {
				return userError(err)
			}

		case bytecode.OpSectionGoto, bytecode.OpSectionStart, bytecode.OpSectionStartInv:
			if s.index+1 >= bytecode.NestingLimit {
				return ErrTooDeep
			}
			parent := &s.stack[s.index]
			s.index++
			f := &s.stack[s.index]
			*f = vmFrame{
				sec: Section{
					UData1: parent.sec.UData1,
					UData2: parent.sec.UData2,
					depth:  s.index,
					owner:  s,
				},
				start: s.pos,
				end:   in.End,
				count: 1,
			}
			if in.Op == bytecode.OpSectionGoto {
				// Jump into the spliced template's injected opener.
				f.start = in.Len
			}
			if in.Named() {
				n, err := h.OnSectionTest(&f.sec, t.prog.Name(in), in.Op == bytecode.OpSectionStart)
				if err != nil {
					return userError(err)
				}
				if n < 0 {
					n = 0
				}
				if in.Op == bytecode.OpSectionStartInv {
					if n == 0 {
						n = 1
					} else {
						n = 0
					}
				}
				f.count = uint32(n)
			}
			if err := s.advance(h); err != nil {
				return err
			}

		case bytecode.OpSectionEnd:
			if err := s.advance(h); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: invalid instruction %d at %d", ErrUnknown, in.Op, s.pos)
		}
		s.pos++
	}
	return nil
}

// advance is the shared tail of every section instruction: either jump
// back to the opener for the next iteration, or pop the frame and resume
// past the section.
func (s *renderStack) advance(h Handler) error {
	f := &s.stack[s.index]
	if f.index < f.count {
		s.pos = f.start
		// Re-inherit user data each iteration so per-element rebinding
		// never leaks backward into the parent scope.
		parent := &s.stack[s.index-1]
		f.sec.UData1 = parent.sec.UData1
		f.sec.UData2 = parent.sec.UData2
		in := &s.prog.Insts[s.pos]
		if in.Named() {
			if err := h.OnSectionStart(&f.sec, s.prog.Name(in), int(f.index)); err != nil {
				return userError(err)
			}
		}
		f.index++
		return nil
	}
	s.pos = f.end
	if s.index > 0 {
		s.index--
	}
	return nil
}

func userError(err error) error {
	return fmt.Errorf("%w: %w", ErrUserError, err)
}
