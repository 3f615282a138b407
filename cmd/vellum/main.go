package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/parser"
	"github.com/kristofer/vellum/pkg/program"
	"github.com/kristofer/vellum/pkg/vm"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		fmt.Printf("vellum version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	case "run":
		runFile(os.Args[2:])
	case "build":
		buildFile(os.Args[2:])
	default:
		// Assume it's a file to run, smog-style.
		runFile(os.Args[1:])
	}
}

func printUsage() {
	fmt.Println("vellum - a small register-based scripting language")
	fmt.Println("\nUsage:")
	fmt.Println("  vellum <file.vl>          Run a source file")
	fmt.Println("  vellum run [-b] <file.vl> Run a source file")
	fmt.Println("  vellum build <file.vl>    Transpile to C (out of scope)")
	fmt.Println("  vellum version            Show version")
	fmt.Println("  vellum help               Show this help")
	fmt.Println("\nFlags:")
	fmt.Println("  -b   dump bytecode disassembly before running")
	fmt.Println("  -c   (build only) emit C instead of compiling it")
}

// runFile implements the CLI's `run` action: parse, link natives, execute.
// The -b flag dumps every function's disassembly to stdout before running
// and puts the run under the interactive step debugger (pkg/vm/debugger.go),
// the register-VM equivalent of the teacher's own bytecode-inspection path.
func runFile(args []string) {
	var dumpBytecode bool
	var path string
	for _, a := range args {
		switch a {
		case "-b":
			dumpBytecode = true
		default:
			path = a
		}
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "Error: no file specified")
		printUsage()
		os.Exit(1)
	}

	prog, pData := parseFile(path)
	if dumpBytecode {
		dump(prog, pData)
	}

	tl := vm.NewThreadLocal(os.Stdout)
	if dumpBytecode {
		d := vm.NewDebugger(os.Stdin, os.Stdout)
		d.Enable()
		d.SetStepMode(true)
		tl.Debugger = d
	}
	result := vm.RunProgram(tl, prog)
	if result.IsError() {
		os.Exit(1)
	}
}

// buildFile implements the CLI's `build` action. Transpiling to C and
// linking against a static runtime via $CC is out of scope (spec.md §6);
// this always reports that and exits nonzero, the fatal spec.md licenses
// for the feature it scopes away.
func buildFile(args []string) {
	cc := os.Getenv("CC")
	if cc == "" {
		cc = "gcc"
	}
	fmt.Fprintf(os.Stderr, "vellum build: C-code generation is out of scope (would invoke %q)\n", cc)
	os.Exit(1)
}

func parseFile(path string) (*program.Program, *program.ProgramData) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		os.Exit(1)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving path: %v\n", err)
		os.Exit(1)
	}
	prog, err := parser.Parse(data, abs, filepath.Dir(abs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parse error: %v\n", err)
		os.Exit(1)
	}
	return prog, prog.Data
}

func dump(prog *program.Program, pData *program.ProgramData) {
	namer := func(idx int) string {
		if idx < 0 || idx >= len(pData.Consts) {
			return "?"
		}
		c := pData.Consts[idx]
		switch c.Kind {
		case program.ConstInt:
			return fmt.Sprintf("%d", c.I)
		case program.ConstDouble:
			return fmt.Sprintf("%g", c.D)
		case program.ConstString:
			return fmt.Sprintf("%q", c.S)
		default:
			return "nil"
		}
	}
	fmt.Println("=== main ===")
	fmt.Print(bytecode.Disassemble(prog.Main.Code, namer))
	for i, fn := range pData.Fns {
		if fn.Kind != program.FnBytecode || fn.Bytecode.Code == nil {
			continue
		}
		fmt.Printf("=== fn[%d] %s ===\n", i, fn.Name)
		fmt.Print(bytecode.Disassemble(fn.Bytecode.Code, namer))
	}
}
