package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deepteams/mustache/internal/bytecode"
)

// mapFS is an in-memory FileSystem keyed by exact path.
type mapFS map[string]string

func (m mapFS) Stat(name string) (int64, error) {
	body, ok := m[name]
	if !ok {
		return 0, fmt.Errorf("stat %s: no such file", name)
	}
	return int64(len(body)), nil
}

func (m mapFS) ReadFile(name string) ([]byte, error) {
	body, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("read %s: no such file", name)
	}
	return []byte(body), nil
}

func TestLoadFile_Root(t *testing.T) {
	fs := mapFS{"views/root.mustache": "hello {{name}}"}
	prog, err := Compile("views/root.mustache", nil, fs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	seg, err := bytecode.ReadSegment(prog.Data)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if string(seg.Filename) != "views/root.mustache" {
		t.Fatalf("root segment name = %q", seg.Filename)
	}
	if string(seg.Dir()) != "views/" {
		t.Fatalf("root dir = %q", seg.Dir())
	}
}

func TestLoadFile_PartialWithExtensionFallback(t *testing.T) {
	fs := mapFS{
		"views/root.mustache":  "[{{>child}}]",
		"views/child.mustache": "hi",
	}
	prog, err := Compile("views/root.mustache", nil, fs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := bytecode.FindSegment(prog.Data, []byte("views/child.mustache")); !ok {
		t.Fatalf("child segment missing; segments in image:\n%s", dumpSegments(prog))
	}
}

func TestLoadFile_RawNameBeforeExtension(t *testing.T) {
	fs := mapFS{
		"root.mustache":  "{{>child}}",
		"child":          "raw wins",
		"child.mustache": "extension loses",
	}
	prog, err := Compile("root.mustache", nil, fs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := bytecode.FindSegment(prog.Data, []byte("child")); !ok {
		t.Fatalf("raw name not preferred; segments:\n%s", dumpSegments(prog))
	}
}

func TestLoadFile_AncestorDirectoryWalk(t *testing.T) {
	// The nested partial resolves "shared" against its own directory
	// first, then the including template's directory.
	fs := mapFS{
		"views/root.mustache":     "{{>sub/item}}",
		"views/sub/item.mustache": "({{>shared}})",
		"views/shared.mustache":   "found in parent dir",
	}
	prog, err := Compile("views/root.mustache", nil, fs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := bytecode.FindSegment(prog.Data, []byte("views/shared.mustache")); !ok {
		t.Fatalf("shared not resolved against ancestor; segments:\n%s", dumpSegments(prog))
	}
}

func TestLoadFile_OwnDirectoryWins(t *testing.T) {
	fs := mapFS{
		"views/root.mustache":       "{{>sub/item}}",
		"views/sub/item.mustache":   "({{>shared}})",
		"views/sub/shared.mustache": "own dir",
		"views/shared.mustache":     "parent dir",
	}
	prog, err := Compile("views/root.mustache", nil, fs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := bytecode.FindSegment(prog.Data, []byte("views/sub/shared.mustache")); !ok {
		t.Fatalf("own directory did not win; segments:\n%s", dumpSegments(prog))
	}
	if _, ok := bytecode.FindSegment(prog.Data, []byte("views/shared.mustache")); ok {
		t.Fatalf("parent copy loaded as well; segments:\n%s", dumpSegments(prog))
	}
}

func TestLoadFile_MemoizedAsGoto(t *testing.T) {
	fs := mapFS{
		"root.mustache": "{{>a}} {{>a}}",
		"a.mustache":    "x",
	}
	prog, err := Compile("root.mustache", nil, fs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var gotos []int
	for i := range prog.Insts {
		if prog.Insts[i].Op == bytecode.OpSectionGoto {
			gotos = append(gotos, i)
		}
	}
	if len(gotos) != 1 {
		t.Fatalf("goto count = %d, want 1\n%s", len(gotos), dumpSegments(prog))
	}
	g := &prog.Insts[gotos[0]]
	if g.End != uint32(gotos[0]) {
		t.Fatalf("goto resume = %d, want its own index %d", g.End, gotos[0])
	}
	if prog.Insts[g.Len].Op != bytecode.OpSectionStart {
		t.Fatalf("goto target op = %v, want SECTION_START", prog.Insts[g.Len].Op)
	}
	// Only two segments: root and a single copy of the partial.
	count := 0
	_ = bytecode.WalkSegments(prog.Data, func(uint32, bytecode.Segment) bool {
		count++
		return true
	})
	if count != 2 {
		t.Fatalf("segment count = %d, want 2", count)
	}
}

func TestLoadFile_CyclicPartials(t *testing.T) {
	// a includes b includes a: the second reference to a becomes a goto
	// into the already-loaded instructions, so compilation terminates.
	fs := mapFS{
		"a.mustache": "A{{>b}}",
		"b.mustache": "B{{>a}}",
	}
	prog, err := Compile("a.mustache", nil, fs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	found := false
	for i := range prog.Insts {
		if prog.Insts[i].Op == bytecode.OpSectionGoto {
			found = true
		}
	}
	if !found {
		t.Fatalf("cycle did not compile to a goto")
	}
}

func TestLoadFile_VirtualRootSelfReference(t *testing.T) {
	prog, err := Compile("me", []byte("x{{>me}}"), mapFS{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var g *bytecode.Instruction
	for i := range prog.Insts {
		if prog.Insts[i].Op == bytecode.OpSectionGoto {
			g = &prog.Insts[i]
		}
	}
	if g == nil {
		t.Fatalf("self reference did not compile to a goto")
	}
	if g.Len != 0 {
		t.Fatalf("goto target = %d, want 0", g.Len)
	}
}

func TestLoadFile_NotFound(t *testing.T) {
	_, err := Compile("root", []byte("{{>missing}}"), mapFS{})
	if !errors.Is(err, bytecode.ErrFileNotFound) {
		t.Fatalf("error = %v, want ErrFileNotFound", err)
	}
}

func TestLoadFile_NameLimits(t *testing.T) {
	long := strings.Repeat("p", bytecode.MaxFileNameLen)
	_, err := Compile("root", []byte("{{>"+long+"}}"), mapFS{})
	if !errors.Is(err, bytecode.ErrFileNameTooLong) {
		t.Fatalf("error = %v, want ErrFileNameTooLong", err)
	}
}

func TestLoadFile_PartialDepthLimit(t *testing.T) {
	fs := mapFS{}
	for i := 0; i < bytecode.NestingLimit+4; i++ {
		fs[fmt.Sprintf("t%d.mustache", i)] = fmt.Sprintf("{{>t%d}}", i+1)
	}
	_, err := Compile("t0.mustache", nil, fs)
	if !errors.Is(err, bytecode.ErrTooDeep) {
		t.Fatalf("error = %v, want ErrTooDeep", err)
	}
}

func TestLoadFile_DelimiterResetInPartial(t *testing.T) {
	// A delimiter change in the including template does not leak into
	// the partial, and the outer frame keeps its delimiters afterwards.
	fs := mapFS{
		"root.mustache":  "{{=<% %>=}}<%>child%><%x%>",
		"child.mustache": "{{y}}",
	}
	prog, err := Compile("root.mustache", nil, fs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var names []string
	for i := range prog.Insts {
		in := &prog.Insts[i]
		if in.Op == bytecode.OpWriteArg {
			names = append(names, string(prog.Name(in)))
		}
	}
	if len(names) != 2 || names[0] != "y" || names[1] != "x" {
		t.Fatalf("arg names = %v, want [y x]", names)
	}
}

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.mustache")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	size, err := OSFileSystem.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if size != 5 {
		t.Fatalf("size = %d, want 5", size)
	}
	if _, err := OSFileSystem.Stat(dir); err == nil {
		t.Fatalf("expected error for directory stat")
	}
	body, err := OSFileSystem.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("body = %q", body)
	}
}

func TestCompileFromDisk(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "root.mustache")
	child := filepath.Join(dir, "child.mustache")
	if err := os.WriteFile(root, []byte("[{{>child}}]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(child, []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	prog, err := Compile(root, nil, OSFileSystem)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, ok := bytecode.FindSegment(prog.Data, []byte(child)); !ok {
		t.Fatalf("child not loaded from disk; segments:\n%s", dumpSegments(prog))
	}
}

func dumpSegments(p *bytecode.Program) string {
	var sb strings.Builder
	_ = bytecode.WalkSegments(p.Data, func(off uint32, seg bytecode.Segment) bool {
		fmt.Fprintf(&sb, "  %6d  %s\n", off, seg.Filename)
		return true
	})
	return sb.String()
}
