package vm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kristofer/vellum/pkg/parser"
	"github.com/kristofer/vellum/pkg/program"
	"github.com/kristofer/vellum/pkg/value"
)

// execImport implements IMPORT imm16 per spec.md §4.5: resolve the
// import record's path against pData.Cwd, load the target module at most
// once (keyed by absolute path in tl.modules), then eagerly resolve every
// stub in the importing alias's fn_map against the target's exports.
func (tl *ThreadLocal) execImport(caller *Frame, pData *program.ProgramData, importIdx int) {
	imp := pData.Imports[importIdx]
	abs, err := resolveImportPath(pData.Cwd, imp.Path)
	if err != nil {
		tl.abort(caller, fmt.Sprintf("import %q: %v", imp.Path, err))
		return
	}

	mod, err := tl.loadModule(abs)
	if err != nil {
		tl.abort(caller, fmt.Sprintf("import %q: %v", imp.Path, err))
		return
	}

	if imp.ModuleAliasIdx < 0 {
		return
	}
	alias := pData.ImportedModules[imp.ModuleAliasIdx]
	for name, stubIdx := range alias.FnMap {
		stub := pData.Fns[stubIdx]
		if stub.Kind != program.FnImporter {
			continue // already resolved by an earlier IMPORT of the same alias
		}
		targetIdx, ok := mod.FnIndex[name]
		if !ok || !mod.ExportedFns[name] {
			tl.abort(caller, fmt.Sprintf("import %q: %q is not an exported function", imp.Path, name))
			return
		}
		target := mod.Fns[targetIdx]
		stub.Importer.SetResolved(mod, targetIdx)
		stub.Importer.NumArgs = target.NumArgs()
	}
}

// resolveImportPath implements spec.md §6's "./"-relative module
// resolution: any relative path (with or without a leading "./" or "../")
// resolves against cwd, the importing file's directory; an absolute path
// is used as-is.
func resolveImportPath(cwd, path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(cwd, path)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", err
	}
	return abs, nil
}

// loadModule returns the already-loaded ProgramData for abs, or parses
// and executes it for the first time. Idempotence (spec.md §8: "does not
// re-execute its main and does not allocate a second ProgramData") comes
// from checking tl.modules before doing any work.
func (tl *ThreadLocal) loadModule(abs string) (*program.ProgramData, error) {
	if mod, ok := tl.modules[abs]; ok {
		return mod, nil
	}

	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	prog, err := parser.Parse(src, abs, filepath.Dir(abs))
	if err != nil {
		return nil, err
	}

	tl.modules[abs] = prog.Data
	tl.moduleGeneration++
	tl.LinkNatives(prog.Data)

	result := Exec(tl, prog.Main, prog.Data, nil, tl.Frame)
	if result.IsError() {
		return nil, fmt.Errorf("module %s raised during its top level", abs)
	}
	return prog.Data, nil
}

// RunProgram executes prog's top level as the entry point of a session,
// wiring natives first. It is cmd/vellum's "run" action and the harness
// most tests drive through.
func RunProgram(tl *ThreadLocal, prog *program.Program) value.Value {
	tl.LinkNatives(prog.Data)
	return Exec(tl, prog.Main, prog.Data, nil, nil)
}
