// Package mustache provides a framework-agnostic mustache template
// engine built around a compiler and a small virtual machine.
//
// Load compiles one or more template sources (a root file with
// transitive partial inclusion, or an in-memory buffer that may still
// reference partials by name) into a self-contained, position-independent
// bytecode image. Render walks that image, invoking host-supplied
// callbacks to resolve variables, test and iterate sections, and emit
// text. The engine has no opinion about the host's value model, HTML
// escaping policy, or output sink; all of that lives behind the Handler
// interface.
//
// The package supports:
//   - Variables, escaped {{name}} and unescaped {{{name}}} / {{&name}}
//   - Sections {{#name}}...{{/name}} and inverted sections {{^name}}
//   - Partials {{>name}} with path-sensitive lookup and cycle handling
//   - Delimiter changes {{=<% %>=}}, scoped to the current template
//   - Comments {{!...}}
//   - Raw section text access for lambda-style hosts
//
// Basic usage:
//
//	tmpl, err := mustache.LoadFile("page.mustache")
//	...
//	err = tmpl.Render(handler, data, output)
//
// A compiled Template is immutable and safe for concurrent Render calls
// from many goroutines; each invocation owns its own section stack.
package mustache
