// Fusabi CLI - run scripts, grind bytecode, execute images, or start a REPL.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "github.com/tliron/commonlog/simple"

	"github.com/fusabi-lang/fusabi"
	"github.com/fusabi-lang/fusabi/compiler"
	"github.com/fusabi-lang/fusabi/manifest"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fusabi <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  run <file.fsx>          Load and evaluate a script\n")
		fmt.Fprintf(os.Stderr, "  grind <file.fsx>        Compile a script to a .fzb image\n")
		fmt.Fprintf(os.Stderr, "  exec <file.fzb>         Execute a compiled image\n")
		fmt.Fprintf(os.Stderr, "  repl                    Start an interactive session\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	debug := flag.Bool("g", false, "Emit debug info (source spans)")
	out := flag.String("o", "", "Output path for grind (default: input with .fzb)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	config := fusabi.DefaultConfig()
	config.DebugInfo = *debug
	if m, err := manifest.FindAndLoad("."); err == nil && m != nil {
		applyManifest(&config, m)
	}

	engine, err := fusabi.NewEngine(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	switch args[0] {
	case "run":
		requireArg(args, "run <file.fsx>")
		value, err := engine.EvalFile(args[1])
		if err != nil {
			renderError(args[1], err)
			os.Exit(1)
		}
		fmt.Println(value)

	case "grind":
		requireArg(args, "grind <file.fsx>")
		outPath := *out
		if outPath == "" {
			outPath = strings.TrimSuffix(args[1], ".fsx") + ".fzb"
		}
		if err := engine.Grind(args[1], outPath); err != nil {
			renderError(args[1], err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", outPath)

	case "exec":
		requireArg(args, "exec <file.fzb>")
		value, err := engine.ExecFile(args[1])
		if err != nil {
			renderError(args[1], err)
			os.Exit(1)
		}
		fmt.Println(value)

	case "repl":
		repl(engine)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
}

func applyManifest(config *fusabi.Config, m *manifest.Manifest) {
	if m.Engine.MaxStackDepth > 0 {
		config.MaxStackDepth = m.Engine.MaxStackDepth
	}
	if m.Engine.MaxInstructions > 0 {
		config.MaxInstructions = m.Engine.MaxInstructions
	}
	if m.Engine.EnableAsync != nil {
		config.EnableAsync = *m.Engine.EnableAsync
	}
	if m.Engine.AsyncWorkerThreads > 0 {
		config.AsyncWorkerThreads = m.Engine.AsyncWorkerThreads
	}
	if m.Engine.DebugInfo {
		config.DebugInfo = true
	}
	if m.Engine.StrictExhaustiveness {
		config.StrictExhaustiveness = true
	}
	if m.Bytecode.CachePath != "" {
		config.ChunkCachePath = m.Bytecode.CachePath
	}
}

func requireArg(args []string, usage string) {
	if len(args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: fusabi %s\n", usage)
		os.Exit(2)
	}
}

// repl binds a persistent engine whose environment accumulates across
// lines.
func repl(engine *fusabi.Engine) {
	fmt.Println("Fusabi REPL - :quit to exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ":quit", ":q":
			return
		}
		value, err := engine.Eval(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(value)
	}
}

// renderError prints an error with file and line:column, a one-line
// source excerpt and a caret under the offending span when available.
func renderError(path string, err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	pos, ok := positionOf(err)
	if !ok {
		return
	}
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return
	}
	lines := strings.Split(string(data), "\n")
	if pos.Line < 1 || pos.Line > len(lines) {
		return
	}
	excerpt := lines[pos.Line-1]
	fmt.Fprintf(os.Stderr, "  %s:%d:%d\n", path, pos.Line, pos.Column)
	fmt.Fprintf(os.Stderr, "  | %s\n", excerpt)
	if pos.Column >= 1 && pos.Column <= len(excerpt)+1 {
		fmt.Fprintf(os.Stderr, "  | %s^\n", strings.Repeat(" ", pos.Column-1))
	}
}

func positionOf(err error) (compiler.Position, bool) {
	var parseErr *compiler.ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Pos, true
	}
	var typeErr *compiler.TypeError
	if errors.As(err, &typeErr) {
		return typeErr.Pos, true
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compileErr.Pos, true
	}
	var lexErr *compiler.LexError
	if errors.As(err, &lexErr) {
		return lexErr.Pos, true
	}
	return compiler.Position{}, false
}
