package mustache

// Handler supplies the host side of a render: the value model, escaping
// policy, and output sink all live behind these five callbacks.
//
// Name and text slices passed to callbacks alias the compiled image and
// must not be mutated or retained past the call.
type Handler interface {
	// OnText emits literal template text.
	OnText(sec *Section, text []byte) error

	// OnArg emits the named value. A conforming host searches the
	// current section and its parents (via sec.Parent) and treats a
	// missing value as an empty string. When escape is true the value
	// must be HTML escaped.
	OnArg(sec *Section, name []byte, escape bool) error

	// OnSectionTest returns the number of times a section's body should
	// run: 0 for false or empty values, 1 for truthy scalars, the
	// element count for arrays. It is called for inverted sections too;
	// the engine inverts the result. When callable is true the host may
	// instead invoke the value as a lambda over sec.Text() and return 0
	// to suppress default iteration.
	OnSectionTest(sec *Section, name []byte, callable bool) (int, error)

	// OnSectionStart is called once per iteration, before the body
	// runs, with the zero-based iteration index. It is the place to
	// rebind sec.UData1/sec.UData2 to the current element; the fields
	// are re-inherited from the parent section before every iteration.
	OnSectionStart(sec *Section, name []byte, index int) error

	// OnError is the cleanup hook, called exactly once when a render
	// fails for any reason.
	OnError(udata1, udata2 any)
}
