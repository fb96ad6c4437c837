package mustache

import (
	"reflect"

	"github.com/deepteams/mustache/internal/bytecode"
)

// Section is the host-visible handle for one entry on the render stack.
// It lets callbacks walk outward for name resolution and carries two
// opaque user-data slots. Child sections inherit the parent's values at
// the start of every iteration; updates propagate inward but never back
// to the parent.
//
// A Section is only valid for the duration of the callback it was passed
// to.
type Section struct {
	UData1 any
	UData2 any

	depth int
	owner *renderStack
}

// Parent returns the closest enclosing section whose user data differs
// from this one, or nil at the root. Sections that share both user-data
// values with their child represent the same host scope and are skipped,
// matching mustache's context-lookup semantics.
func (s *Section) Parent() *Section {
	for d := s.depth; d > 0; {
		d--
		p := &s.owner.stack[d].sec
		if !sameValue(p.UData1, s.UData1) || !sameValue(p.UData2, s.UData2) {
			return p
		}
	}
	return nil
}

// Text returns the raw, unparsed inner source of the currently executing
// section, for hosts that hand section bodies to lambdas. It returns nil
// when the active instruction is not a section open (inverted sections
// included). The slice aliases the compiled image; do not mutate it.
func (s *Section) Text() []byte {
	st := s.owner
	if st.pos >= uint32(len(st.prog.Insts)) {
		return nil
	}
	in := &st.prog.Insts[st.pos]
	if in.Op != bytecode.OpSectionStart {
		return nil
	}
	return st.prog.SectionBody(in)
}

// sameValue reports whether two user-data values are the same for the
// purposes of Parent's scope walk. Reference types compare by identity,
// everything comparable by value; an uncomparable non-reference value
// never equals anything.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() {
		return false
	}
	switch ra.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func, reflect.Chan,
		reflect.Pointer, reflect.UnsafePointer:
		return ra.Pointer() == rb.Pointer()
	}
	if !ra.Type().Comparable() {
		return false
	}
	return a == b
}
