package mustache

import "github.com/deepteams/mustache/internal/bytecode"

// Errors returned by Load and Render. All are matchable with errors.Is
// even when wrapped with positional context.
var (
	// ErrTooDeep is returned when the parse or render stack exceeds the
	// nesting limit, or an instruction count runs away.
	ErrTooDeep = bytecode.ErrTooDeep

	// ErrClosureMismatch is returned for an unclosed delimiter, an
	// unmatched section, a malformed delimiter-change tag, or a section
	// closer whose name disagrees with its opener.
	ErrClosureMismatch = bytecode.ErrClosureMismatch

	// ErrFileNotFound is returned when a partial cannot be resolved
	// against any ancestor directory.
	ErrFileNotFound = bytecode.ErrFileNotFound

	// ErrFileTooBig is returned for template files of 2 GiB or more.
	ErrFileTooBig = bytecode.ErrFileTooBig

	// ErrFileNameTooLong is returned for partial names of 8192 bytes or
	// more.
	ErrFileNameTooLong = bytecode.ErrFileNameTooLong

	// ErrFileNameTooShort is returned for empty partial names.
	ErrFileNameTooShort = bytecode.ErrFileNameTooShort

	// ErrEmptyTemplate is returned by Load when neither a filename nor
	// in-memory data is provided.
	ErrEmptyTemplate = bytecode.ErrEmptyTemplate

	// ErrDelimiterTooLong is returned for delimiters over 10 bytes.
	ErrDelimiterTooLong = bytecode.ErrDelimiterTooLong

	// ErrNameTooLong is returned for tag names of 64 KiB or more.
	ErrNameTooLong = bytecode.ErrNameTooLong

	// ErrUserError is returned when a host callback aborts a render; the
	// callback's own error is wrapped alongside it.
	ErrUserError = bytecode.ErrUserError

	// ErrUnknown is returned for I/O failures and corrupted images.
	ErrUnknown = bytecode.ErrUnknown
)

// NestingLimit bounds section nesting at both compile and render time.
const NestingLimit = bytecode.NestingLimit
