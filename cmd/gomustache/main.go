// Command gomustache compiles and renders mustache templates from the
// command line.
//
// Usage:
//
//	gomustache render [-d data.json] [-o out] <template>   Render with JSON data
//	gomustache check <template>                            Compile only, report errors
//	gomustache inspect <template>                          Disassemble the compiled image
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/xyproto/env/v2"
	"go.uber.org/zap"

	"github.com/deepteams/mustache"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "render":
		err = runRender(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "-h", "-help", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "gomustache: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "gomustache: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage:
  gomustache render [-d data.json] [-o out] <template>   Render a template with JSON data
  gomustache check <template>                            Compile a template, report errors
  gomustache inspect <template>                          Show the compiled instruction listing

Use "-d -" to read JSON data from stdin, "-o -" (the default) for stdout.
Set MUSTACHE_VERBOSE=1 (or pass -v) for compile diagnostics.

Run "gomustache <command> -h" for command-specific options.
`)
}

// newLogger returns a development logger when verbose is requested and a
// no-op logger otherwise.
func newLogger(verbose bool) *zap.SugaredLogger {
	if !verbose {
		return zap.NewNop().Sugar()
	}
	return zap.Must(zap.NewDevelopment()).Sugar()
}

func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	dataPath := fs.String("d", "", `JSON data file ("-" for stdin; default: empty context)`)
	output := fs.String("o", "-", `output path ("-" for stdout)`)
	verbose := fs.Bool("v", env.Bool("MUSTACHE_VERBOSE"), "verbose compile diagnostics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("render: missing template file\nUsage: gomustache render [options] <template>")
	}
	log := newLogger(*verbose)
	defer log.Sync()

	tmpl, err := loadTemplate(fs.Arg(0), log)
	if err != nil {
		return err
	}

	var root any
	if *dataPath != "" {
		blob, err := readInput(*dataPath)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(blob, &root); err != nil {
			return fmt.Errorf("render: parsing %s: %w", *dataPath, err)
		}
	}

	out := os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	h := &jsonHost{out: out, log: log}
	return tmpl.Render(h, root, nil)
}

func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	verbose := fs.Bool("v", env.Bool("MUSTACHE_VERBOSE"), "verbose compile diagnostics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("check: missing template file\nUsage: gomustache check <template>")
	}
	log := newLogger(*verbose)
	defer log.Sync()

	tmpl, err := loadTemplate(fs.Arg(0), log)
	if err != nil {
		return err
	}
	st := tmpl.Stats()
	fmt.Printf("%s: ok (%d instructions, %d templates, %d bytes of data)\n",
		fs.Arg(0), st.Instructions, len(st.Templates), st.DataLen)
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	verbose := fs.Bool("v", env.Bool("MUSTACHE_VERBOSE"), "verbose compile diagnostics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("inspect: missing template file\nUsage: gomustache inspect <template>")
	}
	log := newLogger(*verbose)
	defer log.Sync()

	tmpl, err := loadTemplate(fs.Arg(0), log)
	if err != nil {
		return err
	}
	st := tmpl.Stats()
	fmt.Printf("; %d instructions, %d bytes of data\n", st.Instructions, st.DataLen)
	for _, name := range st.Templates {
		fmt.Printf("; template %s\n", name)
	}
	return tmpl.Disassemble(os.Stdout)
}

// loadTemplate compiles a template from a file, or from stdin when path
// is "-".
func loadTemplate(path string, log *zap.SugaredLogger) (*mustache.Template, error) {
	var (
		tmpl *mustache.Template
		err  error
	)
	if path == "-" {
		var src []byte
		src, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		tmpl, err = mustache.Load(mustache.LoadArgs{Filename: "stdin", Data: src})
	} else {
		tmpl, err = mustache.LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	st := tmpl.Stats()
	log.Debugw("template compiled",
		"root", path,
		"instructions", st.Instructions,
		"templates", st.Templates,
		"data_bytes", st.DataLen,
	)
	return tmpl, nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
