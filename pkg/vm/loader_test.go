package vm

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/kristofer/vellum/pkg/parser"
)

func TestImportResolvesExportedFn(t *testing.T) {
	dir := t.TempDir()
	libPath := filepath.Join(dir, "lib.vl")
	if err := os.WriteFile(libPath, []byte(`export def add(a, b) { return a + b; }`), 0644); err != nil {
		t.Fatalf("write lib.vl: %v", err)
	}

	mainSrc := `
import "./lib.vl" as lib;
print lib::add(2, 3);
`
	prog, err := parser.Parse([]byte(mainSrc), filepath.Join(dir, "main.vl"), dir)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	var out bytes.Buffer
	tl := NewThreadLocal(&out)
	result := RunProgram(tl, prog)
	if result.IsError() {
		t.Fatalf("unexpected error result")
	}
	if out.String() != "5" {
		t.Fatalf("stdout = %q, want %q", out.String(), "5")
	}
}

func TestImportIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	libPath := filepath.Join(dir, "lib.vl")
	if err := os.WriteFile(libPath, []byte(`
print "loaded";
export def id(a) { return a; }
`), 0644); err != nil {
		t.Fatalf("write lib.vl: %v", err)
	}

	mainSrc := `
import "./lib.vl" as a;
import "./lib.vl" as b;
print a::id(1);
print b::id(2);
`
	prog, err := parser.Parse([]byte(mainSrc), filepath.Join(dir, "main.vl"), dir)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	var out bytes.Buffer
	tl := NewThreadLocal(&out)
	RunProgram(tl, prog)

	if got := out.String(); got != "loaded12" {
		t.Fatalf("stdout = %q, want %q (lib's top level must run exactly once)", got, "loaded12")
	}
}
