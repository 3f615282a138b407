// Package parser implements vellum's single-pass compiler: a
// recursive-descent parser that emits register bytecode directly as it
// reads tokens, with no intermediate AST. Every expression production
// returns an exprResult describing where its value lives (or how to
// compute it lazily, for assignable forms); statements drive those
// productions and flush temporaries at each statement boundary.
//
// Operand conventions emitted here, which pkg/vm must read back
// identically:
//
//	MOV_U16        a=dest,               imm16=unsigned literal (0..0x8000)
//	MOV_BOOL       a=dest, c1=0/1
//	LOAD_CONST     a=dest,               imm16=Consts index
//	LOAD_NIL       a=dest
//	LOAD_FUNC      a=dest,               imm16=Fns index (bare fn value)
//	LOAD_SELF      a=dest (current frame's receiver, args[0])
//	SET_CONST      a=0,                  imm16=Consts index (emitted for every
//	               const declaration, no register effect)
//	MOV_REG_LOCAL  a=src,  c1=local slot
//	MOV_LOCAL_REG  a=dest, c1=local slot
//	ADD/SUB/.../GEQ, BAND/BOR/BXOR/BSHL/BSHR   a=dest, c1=lhs, c2=rhs
//	NOT/BNOT/NEG   a=dest, c1=src
//	JIF/JNIF       a=cond reg,           imm16=word displacement
//	JREL/JRELB     a=0,                  imm16=word displacement
//	PUSH_ARG       a=src reg
//	CALL           a=dest,               imm16=Fns index
//	CALL_FUNC_VALUE a=dest, c1=fn value reg
//	BIND_ARG_TO_FUNC a=fn value reg (mutated in place), c1=arg reg
//	RET            a=src reg
//	RET_LOCAL      a=0, c1=local slot
//	RET_NULL
//	IMPORT         a=0,                  imm16=Imports index
//	ARRAY_NEW/TUPLE_NEW/DICT_NEW  a=dest, imm16=capacity/length hint
//	ARRAY_PUSH     a=array reg, c1=value reg
//	IDX_GET        a=dest, c1=base reg, c2=key reg
//	IDX_SET        a=base reg, c1=key reg, c2=value reg
//	IDX_SET_STATIC a=base reg, c1=Consts index (<=255, string key), c2=value reg
//	CLASS_NEW/CLASS_NEW_INITIALIZED  a=dest, imm16=Classes index
//	CLASS_GET_INNER a=dest, c1=field slot (always targets the current
//	                frame's receiver — @field reads only occur inside a
//	                method body)
//	CLASS_SET_INNER a=field slot, c1=value reg, c2=target reg, or
//	                selfTargetSentinel to mean the current frame's
//	                receiver (an @field write inside a method body, as
//	                opposed to a field initializer inside `new Class{...}`,
//	                which names the register holding the instance under
//	                construction since it is not yet bound to any local)
//	RAISE          a=src reg
//	PRINT          a=src reg
//
// Jump displacements are word counts (InstrSize-sized steps) relative to
// the instruction immediately following the jump itself: forward jumps
// (JIF, JNIF, JREL) land at pc+4+disp*4; JRELB lands at pc+4-disp*4.
package parser

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kristofer/vellum/pkg/bytecode"
	"github.com/kristofer/vellum/pkg/lexer"
	"github.com/kristofer/vellum/pkg/program"
	"github.com/kristofer/vellum/pkg/value"
)

// selfTargetSentinel in CLASS_SET_INNER's target-register operand means
// "the current frame's receiver". Register index 0xFF is reserved for
// this and is never handed out by regAllocator (see maxRegisters).
const selfTargetSentinel = 0xFF

// exprKind tags which lazy form an exprResult describes.
type exprKind int

const (
	exprValue exprKind = iota // already computed, sitting in reg
	exprLocal                 // a named local, not yet loaded
	exprIndex                 // container[key], registers already evaluated
	exprField                 // @field on the current method's receiver
	exprMember                // .identifier sugar (string-keyed IDX_GET/SET)
)

// exprResult is what every expression-parsing function returns: either a
// value already sitting in a register, or enough information to load or
// store it later. Assignment needs the latter form to tell an lvalue from
// an rvalue without a separate grammar pass.
type exprResult struct {
	kind   exprKind
	reg    byte
	loaded bool

	name string // exprLocal

	baseReg byte // exprIndex, exprMember
	keyReg  byte // exprIndex

	fieldSlot int // exprField

	memberConst int // exprMember: Consts index of the string key
}

// loopCtx tracks a single enclosing while loop's break patch list and
// continue target, pushed/popped around parseWhile.
type loopCtx struct {
	breaks         []int
	continueTarget int
}

// funcScope is the parser's state for one function body currently being
// emitted: its own register allocator, local-slot table, and loop stack.
// vellum has no nested function literals, so these never nest more than
// two deep (top level, then one def), but a stack keeps the parser honest
// about which function is "current".
type funcScope struct {
	code   *bytecode.Buffer
	regs   *regAllocator
	locals map[string]int

	// localToReg caches, per local slot, the register the straight-line
	// code is currently holding its value in (spec.md §4.2): load's
	// exprLocal case consults this before emitting a fresh MOV_LOCAL_REG,
	// and store's exprLocal case updates it after a write. Entries are
	// pinned in regs so flush (the statement-boundary rule) leaves them
	// alone; invalidateLocalCache drops the whole map and unpins
	// everything at a control-flow join, where a cached register can no
	// longer be trusted to still hold that local's value on every path.
	localToReg map[int]byte

	numLocals int
	class     *value.ClassInterface // non-nil inside a method body
	mayFail   bool

	loopStack []loopCtx

	hasScratch bool
	scratch    int
}

func (fs *funcScope) declareLocal(name string) int {
	slot := fs.numLocals
	fs.locals[name] = slot
	fs.numLocals++
	return slot
}

// scratchLocal lazily reserves one local slot for the reg-to-reg copies
// the instruction set doesn't provide directly (short-circuit operators
// need to land either operand in a shared result register).
func (fs *funcScope) scratchLocal() int {
	if !fs.hasScratch {
		fs.scratch = fs.numLocals
		fs.numLocals++
		fs.hasScratch = true
	}
	return fs.scratch
}

// Parser drives a Lexer one token of lookahead ahead of the grammar,
// emitting bytecode into the current funcScope as each production
// completes instead of building a syntax tree.
type Parser struct {
	lex *lexer.Lexer
	cur lexer.Token

	data *program.ProgramData

	fnStack []*funcScope
	fn      *funcScope

	constNames map[string]int // top-level `const` name -> Consts index

	importAliases    map[string]int // alias -> ImportedModules index
	aliasToImportIdx map[string]int // alias -> Imports index
}

// Parse compiles src into a Program. filePath and cwd are recorded on the
// resulting ProgramData for the module loader's relative-import
// resolution (SPEC_FULL.md §6).
func Parse(src []byte, filePath, cwd string) (*program.Program, error) {
	data := program.NewProgramData(filePath, cwd)
	data.Source = src

	p := &Parser{
		lex:              lexer.New(src),
		data:             data,
		constNames:       make(map[string]int),
		importAliases:    make(map[string]int),
		aliasToImportIdx: make(map[string]int),
	}
	p.cur = p.lex.Next()

	mainFS := &funcScope{code: bytecode.NewBuffer(), regs: newRegAllocator(), locals: make(map[string]int), localToReg: make(map[int]byte)}
	p.pushFn(mainFS)

	for p.cur.Type != lexer.EOF {
		if err := p.parseStatement(); err != nil {
			return nil, err
		}
		p.fn.regs.flush()
	}
	mainFS.code.WriteABC(bytecode.OpExit, 0, 0, 0)

	main := &program.BytecodeFn{
		Code:         mainFS.code,
		NumArgs:      0,
		NumLocals:    mainFS.numLocals,
		NumRegisters: mainFS.regs.numRegisters(),
		FuncIdx:      -1,
		MayFail:      mainFS.mayFail,
	}
	return &program.Program{Main: main, Data: data}, nil
}

func (p *Parser) pushFn(fs *funcScope) {
	p.fnStack = append(p.fnStack, fs)
	p.fn = fs
}

func (p *Parser) popFn() {
	p.fnStack = p.fnStack[:len(p.fnStack)-1]
	if n := len(p.fnStack); n > 0 {
		p.fn = p.fnStack[n-1]
	} else {
		p.fn = nil
	}
}

// --- token helpers ---------------------------------------------------

func (p *Parser) next() { p.cur = p.lex.Next() }

func (p *Parser) curOp(lit string) bool {
	return p.cur.Type == lexer.Operator && p.cur.Literal == lit
}

func (p *Parser) curKeyword(kw string) bool {
	return p.cur.Type == lexer.Identifier && p.cur.Literal == kw
}

func (p *Parser) expectOp(lit string) error {
	if !p.curOp(lit) {
		return p.errf("expected %q, got %q", lit, p.cur.Literal)
	}
	p.next()
	return nil
}

func (p *Parser) expectIdent() (string, error) {
	if p.cur.Type != lexer.Identifier {
		return "", p.errf("expected identifier, got %q", p.cur.Literal)
	}
	name := p.cur.Literal
	p.next()
	return name, nil
}

// peekIsReceiverClause reports whether the parser is sitting at
// `( ident :` — the lookahead pattern distinguishing a method definition
// `def (recv: Class) name(...)` from a plain one, without consuming
// anything.
func (p *Parser) peekIsReceiverClause() bool {
	t0 := p.lex.Peek(0)
	t1 := p.lex.Peek(1)
	return t0.Type == lexer.Identifier && t1.Type == lexer.Operator && t1.Literal == ":"
}

// --- statements --------------------------------------------------------

func (p *Parser) parseStatement() error {
	switch {
	case p.curKeyword("export"):
		p.next()
		switch {
		case p.curKeyword("const"):
			return p.parseConstDecl(true)
		case p.curKeyword("def"):
			return p.parseDef(true)
		default:
			return p.errf("'export' must be followed by 'const' or 'def'")
		}
	case p.curKeyword("const"):
		return p.parseConstDecl(false)
	case p.curKeyword("def"):
		return p.parseDef(false)
	case p.curKeyword("class"):
		return p.parseClass()
	case p.curKeyword("import"):
		return p.parseImport()
	case p.curKeyword("if"):
		return p.parseIf()
	case p.curKeyword("while"):
		return p.parseWhile()
	case p.curKeyword("return"):
		return p.parseReturn()
	case p.curKeyword("raise"):
		return p.parseRaise()
	case p.curKeyword("print"):
		return p.parsePrint()
	case p.curKeyword("break"):
		return p.parseBreak()
	case p.curKeyword("continue"):
		return p.parseContinue()
	case p.curOp("{"):
		return p.parseBlock()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseBlock() error {
	if err := p.expectOp("{"); err != nil {
		return err
	}
	for !p.curOp("}") && p.cur.Type != lexer.EOF {
		if err := p.parseStatement(); err != nil {
			return err
		}
		p.fn.regs.flush()
	}
	return p.expectOp("}")
}

// parseBranchBody parses either a `{ ... }` block or a single statement,
// the way the teacher's own control-flow bodies accept both.
func (p *Parser) parseBranchBody() error {
	if p.curOp("{") {
		return p.parseBlock()
	}
	return p.parseStatement()
}

func (p *Parser) parseExprStatement() error {
	if _, err := p.parseExpr(); err != nil {
		return err
	}
	return p.expectOp(";")
}

func (p *Parser) parseIf() error {
	p.next() // 'if'
	if err := p.expectOp("("); err != nil {
		return err
	}
	condReg, err := p.parseExprLoaded()
	if err != nil {
		return err
	}
	if err := p.expectOp(")"); err != nil {
		return err
	}
	jElse := p.fn.code.WriteImm16(bytecode.OpJnif, condReg, 0)
	p.fn.regs.flush()
	p.invalidateLocalCache()
	if err := p.parseBranchBody(); err != nil {
		return err
	}
	if p.curKeyword("else") {
		jEnd := p.fn.code.WriteImm16(bytecode.OpJrel, 0, 0)
		if err := p.patchForwardHere(jElse); err != nil {
			return err
		}
		p.next() // 'else'
		p.fn.regs.flush()
		p.invalidateLocalCache()
		if err := p.parseBranchBody(); err != nil {
			return err
		}
		if err := p.patchForwardHere(jEnd); err != nil {
			return err
		}
		p.fn.regs.flush()
		p.invalidateLocalCache()
		return nil
	}
	if err := p.patchForwardHere(jElse); err != nil {
		return err
	}
	p.fn.regs.flush()
	p.invalidateLocalCache()
	return nil
}

func (p *Parser) parseWhile() error {
	// loopStart is itself a join point: reached both by falling through
	// from above and by the backward jump at the end of the body, so any
	// local cached before it can't be trusted inside the loop.
	p.invalidateLocalCache()
	loopStart := p.fn.code.PC()
	p.next() // 'while'
	if err := p.expectOp("("); err != nil {
		return err
	}
	condReg, err := p.parseExprLoaded()
	if err != nil {
		return err
	}
	if err := p.expectOp(")"); err != nil {
		return err
	}
	jExit := p.fn.code.WriteImm16(bytecode.OpJnif, condReg, 0)
	p.fn.regs.flush()
	p.invalidateLocalCache()

	p.fn.loopStack = append(p.fn.loopStack, loopCtx{continueTarget: loopStart})
	if err := p.parseBranchBody(); err != nil {
		return err
	}
	lc := p.fn.loopStack[len(p.fn.loopStack)-1]
	p.fn.loopStack = p.fn.loopStack[:len(p.fn.loopStack)-1]

	if err := p.emitBackwardJump(loopStart); err != nil {
		return err
	}
	if err := p.patchForwardHere(jExit); err != nil {
		return err
	}
	// The exit point also merges the no-iterations path with every break,
	// each potentially reached with a different cache state.
	p.fn.regs.flush()
	p.invalidateLocalCache()
	for _, b := range lc.breaks {
		if err := p.patchForwardHere(b); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseBreak() error {
	if len(p.fn.loopStack) == 0 {
		return p.errf("'break' outside a loop")
	}
	p.next()
	if err := p.expectOp(";"); err != nil {
		return err
	}
	pc := p.fn.code.WriteImm16(bytecode.OpJrel, 0, 0)
	top := len(p.fn.loopStack) - 1
	p.fn.loopStack[top].breaks = append(p.fn.loopStack[top].breaks, pc)
	return nil
}

func (p *Parser) parseContinue() error {
	if len(p.fn.loopStack) == 0 {
		return p.errf("'continue' outside a loop")
	}
	p.next()
	if err := p.expectOp(";"); err != nil {
		return err
	}
	target := p.fn.loopStack[len(p.fn.loopStack)-1].continueTarget
	return p.emitBackwardJump(target)
}

func (p *Parser) parseReturn() error {
	p.next() // 'return'
	if p.curOp(";") {
		p.next()
		p.fn.code.WriteABC(bytecode.OpRetNull, 0, 0, 0)
		return nil
	}
	if p.cur.Type == lexer.Identifier {
		if slot, ok := p.fn.locals[p.cur.Literal]; ok && p.lex.Peek(0).Type == lexer.Operator && p.lex.Peek(0).Literal == ";" {
			p.next()
			p.next() // ';'
			p.fn.code.WriteABC(bytecode.OpRetLocal, 0, byte(slot), 0)
			return nil
		}
	}
	reg, err := p.parseExprLoaded()
	if err != nil {
		return err
	}
	if err := p.expectOp(";"); err != nil {
		return err
	}
	p.fn.code.WriteABC(bytecode.OpRet, reg, 0, 0)
	return nil
}

func (p *Parser) parseRaise() error {
	p.next() // 'raise'
	reg, err := p.parseExprLoaded()
	if err != nil {
		return err
	}
	if err := p.expectOp(";"); err != nil {
		return err
	}
	p.fn.code.WriteABC(bytecode.OpRaise, reg, 0, 0)
	p.fn.mayFail = true
	return nil
}

func (p *Parser) parsePrint() error {
	p.next() // 'print'
	reg, err := p.parseExprLoaded()
	if err != nil {
		return err
	}
	if err := p.expectOp(";"); err != nil {
		return err
	}
	p.fn.code.WriteABC(bytecode.OpPrint, reg, 0, 0)
	return nil
}

func (p *Parser) parseConstDecl(exported bool) error {
	p.next() // 'const'
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectOp("="); err != nil {
		return err
	}
	idx, err := p.parseConstLiteral()
	if err != nil {
		return err
	}
	if err := p.expectOp(";"); err != nil {
		return err
	}
	p.constNames[name] = idx
	p.fn.code.WriteImm16(bytecode.OpSetConst, 0, uint16(idx))
	if exported {
		p.data.ExportedConsts[name] = idx
	}
	return nil
}

func (p *Parser) parseConstLiteral() (int, error) {
	switch {
	case p.cur.Type == lexer.Int:
		v := parseIntLiteral(p.cur.Literal)
		p.next()
		return p.internInt(v), nil
	case p.cur.Type == lexer.Double:
		v, _ := strconv.ParseFloat(p.cur.Literal, 64)
		p.next()
		return p.internDouble(v), nil
	case p.cur.Type == lexer.String:
		s := p.cur.Literal
		p.next()
		return p.internString([]byte(s)), nil
	default:
		return 0, p.errf("const initializer must be an int, double, or string literal")
	}
}

func (p *Parser) parseImport() error {
	p.next() // 'import'
	if p.cur.Type != lexer.String {
		return p.errf("expected a string path after 'import'")
	}
	path := p.cur.Literal
	p.next()
	if !p.curKeyword("as") {
		if err := p.expectOp(";"); err != nil {
			return err
		}
		impIdx := len(p.data.Imports)
		p.data.Imports = append(p.data.Imports, program.Import{Path: path, ModuleAliasIdx: -1})
		p.fn.code.WriteImm16(bytecode.OpImport, 0, uint16(impIdx))
		return nil
	}
	p.next()
	alias, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectOp(";"); err != nil {
		return err
	}

	modIdx := len(p.data.ImportedModules)
	p.data.ImportedModules = append(p.data.ImportedModules, &program.ImportedModule{
		Alias:    alias,
		FnMap:    make(map[string]int),
		ConstMap: make(map[string]int),
	})
	impIdx := len(p.data.Imports)
	p.data.Imports = append(p.data.Imports, program.Import{Path: path, ModuleAliasIdx: modIdx})

	p.importAliases[alias] = modIdx
	p.aliasToImportIdx[alias] = impIdx

	p.fn.code.WriteImm16(bytecode.OpImport, 0, uint16(impIdx))
	return nil
}

func (p *Parser) parseClass() error {
	p.next() // 'class'
	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectOp("{"); err != nil {
		return err
	}
	var fields []string
	for !p.curOp("}") && p.cur.Type != lexer.EOF {
		if p.cur.Type != lexer.AtIdent {
			return p.errf("expected a field declaration (@name), got %q", p.cur.Literal)
		}
		fields = append(fields, strings.TrimPrefix(p.cur.Literal, "@"))
		p.next()
		if err := p.expectOp(";"); err != nil {
			return err
		}
	}
	if err := p.expectOp("}"); err != nil {
		return err
	}
	iface := value.NewClassInterface(name, fields)
	idx := len(p.data.Classes)
	p.data.Classes = append(p.data.Classes, iface)
	p.data.ClassIndex[name] = idx
	return nil
}

func (p *Parser) parseDef(exported bool) error {
	p.next() // 'def'

	var class *value.ClassInterface
	var recvName string
	isMethod := false

	if p.curOp("(") && p.peekIsReceiverClause() {
		isMethod = true
		p.next() // '('
		var err error
		recvName, err = p.expectIdent()
		if err != nil {
			return err
		}
		if err := p.expectOp(":"); err != nil {
			return err
		}
		className, err := p.expectIdent()
		if err != nil {
			return err
		}
		idx, ok := p.data.ClassIndex[className]
		if !ok {
			return p.errf("unknown class %q in method receiver", className)
		}
		class = p.data.Classes[idx]
		if err := p.expectOp(")"); err != nil {
			return err
		}
	}

	name, err := p.expectIdent()
	if err != nil {
		return err
	}
	if err := p.expectOp("("); err != nil {
		return err
	}
	var params []string
	for !p.curOp(")") {
		pn, err := p.expectIdent()
		if err != nil {
			return err
		}
		params = append(params, pn)
		if p.curOp(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectOp(")"); err != nil {
		return err
	}

	fs := &funcScope{code: bytecode.NewBuffer(), regs: newRegAllocator(), locals: make(map[string]int), localToReg: make(map[int]byte), class: class}
	if isMethod {
		fs.declareLocal(recvName)
	}
	for _, pn := range params {
		fs.declareLocal(pn)
	}
	p.pushFn(fs)
	if err := p.parseBlock(); err != nil {
		return err
	}
	fs.code.WriteABC(bytecode.OpRetNull, 0, 0, 0)
	p.popFn()

	numArgs := len(params)
	if isMethod {
		numArgs++
	}
	bf := &program.BytecodeFn{
		Code:         fs.code,
		NumArgs:      numArgs,
		NumLocals:    fs.numLocals,
		NumRegisters: fs.regs.numRegisters(),
		Class:        class,
		FuncIdx:      -1,
		MayFail:      fs.mayFail,
	}

	if isMethod {
		return p.registerMethod(name, class, bf, exported)
	}
	idx := p.resolveOrDeclareFn(name)
	fn := p.data.Fns[idx]
	if fn.Kind != program.FnNone && fn.Kind != program.FnBytecode {
		return p.errf("%q is already declared as a different kind of function", name)
	}
	fn.Kind = program.FnBytecode
	fn.Name = name
	fn.Bytecode = bf
	bf.FuncIdx = idx
	if exported {
		p.data.ExportedFns[name] = true
	}
	return nil
}

func (p *Parser) registerMethod(name string, class *value.ClassInterface, bf *program.BytecodeFn, exported bool) error {
	idx, ok := p.data.FnIndex[name]
	var disp *program.Fn
	if !ok {
		disp = &program.Fn{
			Kind: program.FnDispatch,
			Name: name,
			Dispatch: &program.DispatchFn{
				PerClass: make(map[*value.ClassInterface]int),
				Fallback: -1,
				NumArgs:  bf.NumArgs,
			},
		}
		p.data.Fns = append(p.data.Fns, disp)
		idx = len(p.data.Fns) - 1
		p.data.FnIndex[name] = idx
	} else {
		disp = p.data.Fns[idx]
		if disp.Kind != program.FnDispatch {
			return p.errf("%q is already declared as a plain function, cannot add a method", name)
		}
	}
	implIdx := len(p.data.Fns)
	implFn := &program.Fn{Kind: program.FnBytecode, Name: name, Bytecode: bf}
	bf.FuncIdx = implIdx
	p.data.Fns = append(p.data.Fns, implFn)
	disp.Dispatch.PerClass[class] = implIdx
	if exported {
		p.data.ExportedFns[name] = true
	}
	return nil
}

// resolveOrDeclareFn returns the Fns index for name, allocating a FnNone
// placeholder on first reference. Because CALL addresses a function by
// table index rather than by code offset, a forward reference — including
// self-recursion — resolves correctly the moment the name's `def` later
// fills the same slot in; no patch list is needed.
func (p *Parser) resolveOrDeclareFn(name string) int {
	if idx, ok := p.data.FnIndex[name]; ok {
		return idx
	}
	fn := &program.Fn{Kind: program.FnNone, Name: name}
	p.data.Fns = append(p.data.Fns, fn)
	idx := len(p.data.Fns) - 1
	p.data.FnIndex[name] = idx
	return idx
}

func (p *Parser) resolveImportedFn(modIdx int, name string) int {
	mod := p.data.ImportedModules[modIdx]
	if idx, ok := mod.FnMap[name]; ok {
		return idx
	}
	impIdx := -1
	for alias, mi := range p.importAliases {
		if mi == modIdx {
			impIdx = p.aliasToImportIdx[alias]
			break
		}
	}
	fn := &program.Fn{
		Kind: program.FnImporter,
		Name: name,
		Importer: &program.ImporterFn{
			TargetModuleIdx: impIdx,
			Name:            name,
			NumArgs:         -1, // unknown until the target module resolves
		},
	}
	p.data.Fns = append(p.data.Fns, fn)
	idx := len(p.data.Fns) - 1
	mod.FnMap[name] = idx
	return idx
}

// --- jump patching -----------------------------------------------------

func (p *Parser) patchForwardHere(jumpPC int) error {
	target := p.fn.code.PC()
	disp := (target - (jumpPC + bytecode.InstrSize)) / bytecode.InstrSize
	if disp < 0 || disp > 0xFFFF {
		return p.errf("jump displacement overflows 16 bits")
	}
	p.fn.code.PatchImm16(jumpPC, uint16(disp))
	return nil
}

func (p *Parser) emitBackwardJump(target int) error {
	pc := p.fn.code.WriteImm16(bytecode.OpJrelb, 0, 0)
	disp := ((pc + bytecode.InstrSize) - target) / bytecode.InstrSize
	if disp < 0 || disp > 0xFFFF {
		return p.errf("jump displacement overflows 16 bits")
	}
	p.fn.code.PatchImm16(pc, uint16(disp))
	return nil
}

// invalidateLocalCache drops every cached local->register mapping and
// unpins the registers that held them, spec.md §4.2's control-flow-join
// rule: a branch, loop header, or logical-operator short circuit can
// reach the following code along more than one path, so a register
// cached before the join can no longer be trusted to still hold that
// local's value afterward. Ordinary statement boundaries use regs.flush
// instead, which leaves pinned (cached) registers alone.
func (p *Parser) invalidateLocalCache() {
	p.fn.regs.unpinAll()
	for slot := range p.fn.localToReg {
		delete(p.fn.localToReg, slot)
	}
}

// dropLocalCacheReg evicts whichever cache entry is backed by reg,
// without releasing reg itself. Used where reg's contents just changed
// out from under the local it used to cache but reg is still live as an
// in-flight expression's result (the short-circuit operators' merged
// operand register) rather than free for reuse.
func (p *Parser) dropLocalCacheReg(reg byte) {
	for slot, r := range p.fn.localToReg {
		if r == reg {
			delete(p.fn.localToReg, slot)
		}
	}
	p.fn.regs.clearPin(reg)
}

func (p *Parser) emitMove(dst, src byte) {
	if dst == src {
		return
	}
	slot := byte(p.fn.scratchLocal())
	p.fn.code.WriteABC(bytecode.OpMovRegLocal, src, slot, 0)
	p.fn.code.WriteABC(bytecode.OpMovLocalReg, dst, slot, 0)
}

// --- load/store for assignable exprResults -----------------------------

func (p *Parser) load(e *exprResult) (byte, error) {
	if e.loaded {
		return e.reg, nil
	}
	switch e.kind {
	case exprLocal:
		slot, ok := p.fn.locals[e.name]
		if !ok {
			return 0, p.errf("undefined identifier %q", e.name)
		}
		if reg, cached := p.fn.localToReg[slot]; cached {
			e.reg, e.loaded = reg, true
			return reg, nil
		}
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return 0, p.errf("out of registers")
		}
		p.fn.code.WriteABC(bytecode.OpMovLocalReg, reg, byte(slot), 0)
		p.fn.regs.pin(reg)
		p.fn.localToReg[slot] = reg
		e.reg, e.loaded = reg, true
	case exprIndex:
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return 0, p.errf("out of registers")
		}
		p.fn.code.WriteABC(bytecode.OpIdxGet, reg, e.baseReg, e.keyReg)
		e.reg, e.loaded = reg, true
	case exprField:
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return 0, p.errf("out of registers")
		}
		p.fn.code.WriteABC(bytecode.OpClassGetInner, reg, byte(e.fieldSlot), 0)
		e.reg, e.loaded = reg, true
	case exprMember:
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return 0, p.errf("out of registers")
		}
		keyReg, ok := p.fn.regs.alloc()
		if !ok {
			return 0, p.errf("out of registers")
		}
		p.fn.code.WriteImm16(bytecode.OpLoadConst, keyReg, uint16(e.memberConst))
		p.fn.code.WriteABC(bytecode.OpIdxGet, reg, e.baseReg, keyReg)
		p.fn.regs.release(keyReg)
		e.reg, e.loaded = reg, true
	}
	return e.reg, nil
}

func (p *Parser) store(e *exprResult, valueReg byte) error {
	switch e.kind {
	case exprLocal:
		slot, ok := p.fn.locals[e.name]
		if !ok {
			slot = p.fn.declareLocal(e.name)
		}
		p.fn.code.WriteABC(bytecode.OpMovRegLocal, valueReg, byte(slot), 0)
		if old, cached := p.fn.localToReg[slot]; cached && old != valueReg {
			p.fn.regs.unpin(old)
			delete(p.fn.localToReg, slot)
		}
		// valueReg already backs a different slot's cache entry (e.g.
		// `a = b;`, where valueReg is b's cached register): leave that
		// mapping alone rather than aliasing two slots to one register.
		aliased := false
		for other, reg := range p.fn.localToReg {
			if other != slot && reg == valueReg {
				aliased = true
				break
			}
		}
		if !aliased {
			p.fn.regs.pin(valueReg)
			p.fn.localToReg[slot] = valueReg
		}
	case exprIndex:
		p.fn.code.WriteABC(bytecode.OpIdxSet, e.baseReg, e.keyReg, valueReg)
	case exprField:
		p.fn.code.WriteABC(bytecode.OpClassSetInner, byte(e.fieldSlot), valueReg, selfTargetSentinel)
	case exprMember:
		if e.memberConst <= 0xFF {
			p.fn.code.WriteABC(bytecode.OpIdxSetStatic, e.baseReg, byte(e.memberConst), valueReg)
		} else {
			keyReg, ok := p.fn.regs.alloc()
			if !ok {
				return p.errf("out of registers")
			}
			p.fn.code.WriteImm16(bytecode.OpLoadConst, keyReg, uint16(e.memberConst))
			p.fn.code.WriteABC(bytecode.OpIdxSet, e.baseReg, keyReg, valueReg)
			p.fn.regs.release(keyReg)
		}
	default:
		return p.errf("invalid assignment target")
	}
	return nil
}

// --- constant interning --------------------------------------------------

func (p *Parser) internInt(v int32) int {
	for i, c := range p.data.Consts {
		if c.Kind == program.ConstInt && c.I == v {
			return i
		}
	}
	p.data.Consts = append(p.data.Consts, program.ConstSlot{Kind: program.ConstInt, I: v})
	return len(p.data.Consts) - 1
}

func (p *Parser) internDouble(v float64) int {
	for i, c := range p.data.Consts {
		if c.Kind == program.ConstDouble && c.D == v {
			return i
		}
	}
	p.data.Consts = append(p.data.Consts, program.ConstSlot{Kind: program.ConstDouble, D: v})
	return len(p.data.Consts) - 1
}

func (p *Parser) internString(b []byte) int {
	s := string(b)
	for i, c := range p.data.Consts {
		if c.Kind == program.ConstString && string(c.S) == s {
			return i
		}
	}
	p.data.Consts = append(p.data.Consts, program.ConstSlot{Kind: program.ConstString, S: b})
	return len(p.data.Consts) - 1
}

func parseIntLiteral(lit string) int32 {
	if strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X") {
		v, _ := strconv.ParseInt(lit[2:], 16, 64)
		return int32(v)
	}
	v, _ := strconv.ParseInt(lit, 10, 64)
	return int32(v)
}

// --- expressions ---------------------------------------------------------

func (p *Parser) parseExprLoaded() (byte, error) {
	e, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	return p.load(&e)
}

func (p *Parser) parseExpr() (exprResult, error) {
	return p.parseAssignment()
}

var compoundOps = map[string]bytecode.Opcode{
	"+=": bytecode.OpAdd,
	"-=": bytecode.OpSub,
	"*=": bytecode.OpMul,
	"/=": bytecode.OpDiv,
	"%=": bytecode.OpMod,
}

func (p *Parser) parseAssignment() (exprResult, error) {
	left, err := p.parseLogicalOr()
	if err != nil {
		return left, err
	}
	if p.cur.Type != lexer.Operator {
		return left, nil
	}
	if p.cur.Literal == "=" {
		p.next()
		rhs, err := p.parseAssignment()
		if err != nil {
			return left, err
		}
		rhsReg, err := p.load(&rhs)
		if err != nil {
			return left, err
		}
		if err := p.store(&left, rhsReg); err != nil {
			return left, err
		}
		return exprResult{kind: exprValue, reg: rhsReg, loaded: true}, nil
	}
	if op, ok := compoundOps[p.cur.Literal]; ok {
		p.next()
		curReg, err := p.load(&left)
		if err != nil {
			return left, err
		}
		rhs, err := p.parseAssignment()
		if err != nil {
			return left, err
		}
		rhsReg, err := p.load(&rhs)
		if err != nil {
			return left, err
		}
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return left, p.errf("out of registers")
		}
		p.fn.code.WriteABC(op, reg, curReg, rhsReg)
		if err := p.store(&left, reg); err != nil {
			return left, err
		}
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	}
	return left, nil
}

func (p *Parser) parseLogicalOr() (exprResult, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return left, err
	}
	for p.curOp("||") {
		p.next()
		leftReg, err := p.load(&left)
		if err != nil {
			return left, err
		}
		jSkip := p.fn.code.WriteImm16(bytecode.OpJif, leftReg, 0)
		right, err := p.parseLogicalAnd()
		if err != nil {
			return left, err
		}
		rightReg, err := p.load(&right)
		if err != nil {
			return left, err
		}
		p.emitMove(leftReg, rightReg)
		if err := p.patchForwardHere(jSkip); err != nil {
			return left, err
		}
		// The short-circuit skip and the fall-through both land here, and
		// emitMove may just have overwritten leftReg's contents — if it
		// was a cached local's register, that cache entry is now stale.
		// leftReg itself stays live as this expression's result, so only
		// its cache entry is dropped, not the register.
		p.dropLocalCacheReg(leftReg)
		left = exprResult{kind: exprValue, reg: leftReg, loaded: true}
	}
	return left, nil
}

func (p *Parser) parseLogicalAnd() (exprResult, error) {
	left, err := p.parseBitOr()
	if err != nil {
		return left, err
	}
	for p.curOp("&&") {
		p.next()
		leftReg, err := p.load(&left)
		if err != nil {
			return left, err
		}
		jSkip := p.fn.code.WriteImm16(bytecode.OpJnif, leftReg, 0)
		right, err := p.parseBitOr()
		if err != nil {
			return left, err
		}
		rightReg, err := p.load(&right)
		if err != nil {
			return left, err
		}
		p.emitMove(leftReg, rightReg)
		if err := p.patchForwardHere(jSkip); err != nil {
			return left, err
		}
		p.dropLocalCacheReg(leftReg)
		left = exprResult{kind: exprValue, reg: leftReg, loaded: true}
	}
	return left, nil
}

type binOp struct {
	lit string
	op  bytecode.Opcode
}

func (p *Parser) parseBinaryLevel(ops []binOp, next func() (exprResult, error)) (exprResult, error) {
	left, err := next()
	if err != nil {
		return left, err
	}
	for {
		matched := false
		for _, bo := range ops {
			if !p.curOp(bo.lit) {
				continue
			}
			p.next()
			lreg, err := p.load(&left)
			if err != nil {
				return left, err
			}
			right, err := next()
			if err != nil {
				return left, err
			}
			rreg, err := p.load(&right)
			if err != nil {
				return left, err
			}
			reg, ok := p.fn.regs.alloc()
			if !ok {
				return left, p.errf("out of registers")
			}
			p.fn.code.WriteABC(bo.op, reg, lreg, rreg)
			p.fn.regs.release(lreg)
			p.fn.regs.release(rreg)
			left = exprResult{kind: exprValue, reg: reg, loaded: true}
			matched = true
			break
		}
		if !matched {
			return left, nil
		}
	}
}

func (p *Parser) parseBitOr() (exprResult, error) {
	return p.parseBinaryLevel([]binOp{{"|", bytecode.OpBOr}}, p.parseBitXor)
}
func (p *Parser) parseBitXor() (exprResult, error) {
	return p.parseBinaryLevel([]binOp{{"^", bytecode.OpBXor}}, p.parseBitAnd)
}
func (p *Parser) parseBitAnd() (exprResult, error) {
	return p.parseBinaryLevel([]binOp{{"&", bytecode.OpBAnd}}, p.parseEquality)
}
func (p *Parser) parseEquality() (exprResult, error) {
	return p.parseBinaryLevel([]binOp{{"==", bytecode.OpEq}, {"!=", bytecode.OpNeq}}, p.parseRelational)
}
func (p *Parser) parseRelational() (exprResult, error) {
	return p.parseBinaryLevel([]binOp{
		{"<", bytecode.OpLt}, {">", bytecode.OpGt}, {"<=", bytecode.OpLeq}, {">=", bytecode.OpGeq},
	}, p.parseShift)
}
func (p *Parser) parseShift() (exprResult, error) {
	return p.parseBinaryLevel([]binOp{{"<<", bytecode.OpBShl}, {">>", bytecode.OpBShr}}, p.parseAdditive)
}
func (p *Parser) parseAdditive() (exprResult, error) {
	return p.parseBinaryLevel([]binOp{{"+", bytecode.OpAdd}, {"-", bytecode.OpSub}}, p.parseMultiplicative)
}
func (p *Parser) parseMultiplicative() (exprResult, error) {
	return p.parseBinaryLevel([]binOp{
		{"*", bytecode.OpMul}, {"/", bytecode.OpDiv}, {"%", bytecode.OpMod},
	}, p.parseUnary)
}

func (p *Parser) parseUnary() (exprResult, error) {
	var op bytecode.Opcode
	switch {
	case p.curOp("-"):
		op = bytecode.OpNeg
	case p.curOp("!"):
		op = bytecode.OpNot
	case p.curOp("~"):
		op = bytecode.OpBNot
	default:
		return p.parsePostfix()
	}
	p.next()
	operand, err := p.parseUnary()
	if err != nil {
		return operand, err
	}
	src, err := p.load(&operand)
	if err != nil {
		return operand, err
	}
	reg, ok := p.fn.regs.alloc()
	if !ok {
		return operand, p.errf("out of registers")
	}
	p.fn.code.WriteABC(op, reg, src, 0)
	p.fn.regs.release(src)
	return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
}

func (p *Parser) parsePostfix() (exprResult, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return e, err
	}
	for {
		switch {
		case p.curOp("("):
			// Any expression producing a function value, called directly:
			// a local variable, a `.FuncName` reference, a parenthesized
			// sub-expression. Bare function-name calls are resolved
			// earlier, in parsePrimary, straight to CALL by Fns index —
			// by the time control reaches here the '(' has already been
			// consumed for that case, so this is never ambiguous with it.
			base, err := p.load(&e)
			if err != nil {
				return e, err
			}
			args, err := p.parseArgList()
			if err != nil {
				return e, err
			}
			e, err = p.emitCall(bytecode.OpCallFuncValue, int(base), args)
			if err != nil {
				return e, err
			}
		case p.curOp("["):
			base, err := p.load(&e)
			if err != nil {
				return e, err
			}
			p.next()
			key, err := p.parseExpr()
			if err != nil {
				return e, err
			}
			keyReg, err := p.load(&key)
			if err != nil {
				return e, err
			}
			if err := p.expectOp("]"); err != nil {
				return e, err
			}
			e = exprResult{kind: exprIndex, baseReg: base, keyReg: keyReg}
		case p.curOp("."):
			p.next()
			if p.curOp("(") {
				base, err := p.load(&e)
				if err != nil {
					return e, err
				}
				args, err := p.parseArgList()
				if err != nil {
					return e, err
				}
				e, err = p.emitCall(bytecode.OpCallFuncValue, int(base), args)
				if err != nil {
					return e, err
				}
				continue
			}
			name, err := p.expectIdent()
			if err != nil {
				return e, err
			}
			if name == "bind" && p.curOp("(") {
				base, err := p.load(&e)
				if err != nil {
					return e, err
				}
				p.next()
				arg, err := p.parseExpr()
				if err != nil {
					return e, err
				}
				argReg, err := p.load(&arg)
				if err != nil {
					return e, err
				}
				if err := p.expectOp(")"); err != nil {
					return e, err
				}
				p.fn.code.WriteABC(bytecode.OpBindArgToFunc, base, argReg, 0)
				e = exprResult{kind: exprValue, reg: base, loaded: true}
				continue
			}
			base, err := p.load(&e)
			if err != nil {
				return e, err
			}
			e = exprResult{kind: exprMember, baseReg: base, memberConst: p.internString([]byte(name))}
		default:
			return e, nil
		}
	}
}

func (p *Parser) parseArgList() ([]byte, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var regs []byte
	for !p.curOp(")") {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		reg, err := p.load(&e)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
		if p.curOp(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return regs, nil
}

// emitCall pushes args and issues either CALL_FUNC_VALUE (callee is a
// register holding a function value) — op and a carry that register as
// the second operand — or a plain CALL by Fns index, signalled by passing
// bytecode.OpCall as op and the Fns index (widened to a byte-pair-safe
// int) through callee.
func (p *Parser) emitCall(op bytecode.Opcode, callee int, args []byte) (exprResult, error) {
	for _, a := range args {
		p.fn.code.WriteABC(bytecode.OpPushArg, a, 0, 0)
	}
	dest, ok := p.fn.regs.alloc()
	if !ok {
		return exprResult{}, p.errf("out of registers")
	}
	if op == bytecode.OpCallFuncValue {
		p.fn.code.WriteABC(op, dest, byte(callee), 0)
	} else {
		p.fn.code.WriteImm16(op, dest, uint16(callee))
	}
	for _, a := range args {
		p.fn.regs.release(a)
	}
	return exprResult{kind: exprValue, reg: dest, loaded: true}, nil
}

func (p *Parser) parseCallByIndex(fnIdx int) (exprResult, error) {
	args, err := p.parseArgList()
	if err != nil {
		return exprResult{}, err
	}
	return p.emitCall(bytecode.OpCall, fnIdx, args)
}

func (p *Parser) parseNewExpr() (exprResult, error) {
	p.next() // 'new'
	className, err := p.expectIdent()
	if err != nil {
		return exprResult{}, err
	}
	classIdx, ok := p.data.ClassIndex[className]
	if !ok {
		return exprResult{}, p.errf("unknown class %q", className)
	}
	iface := p.data.Classes[classIdx]
	reg, ok := p.fn.regs.alloc()
	if !ok {
		return exprResult{}, p.errf("out of registers")
	}

	if p.curOp("{") {
		p.next()
		p.fn.code.WriteImm16(bytecode.OpClassNewInitialized, reg, uint16(classIdx))
		for !p.curOp("}") {
			fieldName, err := p.expectIdent()
			if err != nil {
				return exprResult{}, err
			}
			if err := p.expectOp(":"); err != nil {
				return exprResult{}, err
			}
			slot, ok := iface.FieldIndex[fieldName]
			if !ok {
				return exprResult{}, p.errf("class %q has no field %q", className, fieldName)
			}
			val, err := p.parseExpr()
			if err != nil {
				return exprResult{}, err
			}
			valReg, err := p.load(&val)
			if err != nil {
				return exprResult{}, err
			}
			p.fn.code.WriteABC(bytecode.OpClassSetInner, byte(slot), valReg, reg)
			p.fn.regs.release(valReg)
			if p.curOp(",") {
				p.next()
				continue
			}
			break
		}
		if err := p.expectOp("}"); err != nil {
			return exprResult{}, err
		}
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	}

	if p.curOp("(") {
		p.next()
		if err := p.expectOp(")"); err != nil {
			return exprResult{}, err
		}
	}
	p.fn.code.WriteImm16(bytecode.OpClassNew, reg, uint16(classIdx))
	return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
}

func (p *Parser) parsePrimary() (exprResult, error) {
	tok := p.cur

	if tok.Type == lexer.AtIdent {
		p.next()
		if p.fn.class == nil {
			return exprResult{}, p.errf("field access (%s) outside a method body", tok.Literal)
		}
		fieldName := strings.TrimPrefix(tok.Literal, "@")
		slot, ok := p.fn.class.FieldIndex[fieldName]
		if !ok {
			return exprResult{}, p.errf("class %q has no field %q", p.fn.class.Name, fieldName)
		}
		return exprResult{kind: exprField, fieldSlot: slot}, nil
	}

	switch tok.Type {
	case lexer.Int:
		p.next()
		v := parseIntLiteral(tok.Literal)
		return p.loadIntLiteral(v)
	case lexer.Double:
		p.next()
		v, _ := strconv.ParseFloat(tok.Literal, 64)
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteImm16(bytecode.OpLoadConst, reg, uint16(p.internDouble(v)))
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	case lexer.String:
		p.next()
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteImm16(bytecode.OpLoadConst, reg, uint16(p.internString([]byte(tok.Literal))))
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	case lexer.CharString:
		p.next()
		r, _ := utf8.DecodeRuneInString(tok.Literal)
		return p.loadIntLiteral(int32(r))
	}

	if tok.Type == lexer.Operator {
		switch tok.Literal {
		case "(":
			p.next()
			e, err := p.parseExpr()
			if err != nil {
				return e, err
			}
			if err := p.expectOp(")"); err != nil {
				return e, err
			}
			return e, nil
		case "[":
			return p.parseArrayLiteral()
		case "#[":
			return p.parseTupleLiteral()
		case "{":
			return p.parseDictLiteral()
		case ".":
			p.next()
			name, err := p.expectIdent()
			if err != nil {
				return exprResult{}, err
			}
			fnIdx := p.resolveOrDeclareFn(name)
			reg, ok := p.fn.regs.alloc()
			if !ok {
				return exprResult{}, p.errf("out of registers")
			}
			p.fn.code.WriteImm16(bytecode.OpLoadFunc, reg, uint16(fnIdx))
			return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
		}
		return exprResult{}, p.errf("unexpected token %q", tok.Literal)
	}

	if tok.Type != lexer.Identifier {
		return exprResult{}, p.errf("unexpected token %q", tok.Literal)
	}

	switch tok.Literal {
	case "true":
		p.next()
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteABC(bytecode.OpMovBool, reg, 1, 0)
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	case "false":
		p.next()
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteABC(bytecode.OpMovBool, reg, 0, 0)
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	case "nil":
		p.next()
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteABC(bytecode.OpLoadNil, reg, 0, 0)
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	case "self":
		p.next()
		if p.fn.class == nil {
			return exprResult{}, p.errf("'self' used outside a method body")
		}
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteABC(bytecode.OpLoadSelf, reg, 0, 0)
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	case "new":
		return p.parseNewExpr()
	}

	name := tok.Literal
	p.next()

	if p.curOp("::") {
		p.next()
		rhs, err := p.expectIdent()
		if err != nil {
			return exprResult{}, err
		}
		modIdx, ok := p.importAliases[name]
		if !ok {
			return exprResult{}, p.errf("unknown module alias %q", name)
		}
		fnIdx := p.resolveImportedFn(modIdx, rhs)
		if p.curOp("(") {
			return p.parseCallByIndex(fnIdx)
		}
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteImm16(bytecode.OpLoadFunc, reg, uint16(fnIdx))
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	}

	if idx, ok := p.constNames[name]; ok {
		reg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteImm16(bytecode.OpLoadConst, reg, uint16(idx))
		return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
	}

	if _, isLocal := p.fn.locals[name]; isLocal {
		return exprResult{kind: exprLocal, name: name}, nil
	}

	if p.curOp("(") {
		fnIdx := p.resolveOrDeclareFn(name)
		return p.parseCallByIndex(fnIdx)
	}

	// Not yet a local, not a call: an implicit local, auto-declared the
	// first time it's assigned (see store's exprLocal case). Reading it
	// before that assignment is an undefined-identifier error, raised
	// lazily by load.
	return exprResult{kind: exprLocal, name: name}, nil
}

func (p *Parser) loadIntLiteral(v int32) (exprResult, error) {
	reg, ok := p.fn.regs.alloc()
	if !ok {
		return exprResult{}, p.errf("out of registers")
	}
	if v >= 0 && v <= 0x8000 {
		p.fn.code.WriteImm16(bytecode.OpMovU16, reg, uint16(v))
	} else {
		p.fn.code.WriteImm16(bytecode.OpLoadConst, reg, uint16(p.internInt(v)))
	}
	return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
}

func (p *Parser) parseArrayLiteral() (exprResult, error) {
	p.next() // '['
	var elems []byte
	for !p.curOp("]") {
		e, err := p.parseExpr()
		if err != nil {
			return exprResult{}, err
		}
		reg, err := p.load(&e)
		if err != nil {
			return exprResult{}, err
		}
		elems = append(elems, reg)
		if p.curOp(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectOp("]"); err != nil {
		return exprResult{}, err
	}
	reg, ok := p.fn.regs.alloc()
	if !ok {
		return exprResult{}, p.errf("out of registers")
	}
	p.fn.code.WriteImm16(bytecode.OpArrayNew, reg, uint16(len(elems)))
	for _, er := range elems {
		p.fn.code.WriteABC(bytecode.OpArrayPush, reg, er, 0)
		p.fn.regs.release(er)
	}
	return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
}

func (p *Parser) parseTupleLiteral() (exprResult, error) {
	p.next() // '#['
	var elems []byte
	for !p.curOp("]") {
		e, err := p.parseExpr()
		if err != nil {
			return exprResult{}, err
		}
		reg, err := p.load(&e)
		if err != nil {
			return exprResult{}, err
		}
		elems = append(elems, reg)
		if p.curOp(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectOp("]"); err != nil {
		return exprResult{}, err
	}
	reg, ok := p.fn.regs.alloc()
	if !ok {
		return exprResult{}, p.errf("out of registers")
	}
	p.fn.code.WriteImm16(bytecode.OpTupleNew, reg, uint16(len(elems)))
	for i, er := range elems {
		keyReg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteImm16(bytecode.OpMovU16, keyReg, uint16(i))
		p.fn.code.WriteABC(bytecode.OpIdxSet, reg, keyReg, er)
		p.fn.regs.release(keyReg)
		p.fn.regs.release(er)
	}
	return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
}

func (p *Parser) parseDictLiteral() (exprResult, error) {
	p.next() // '{'
	reg, ok := p.fn.regs.alloc()
	if !ok {
		return exprResult{}, p.errf("out of registers")
	}
	p.fn.code.WriteImm16(bytecode.OpDictNew, reg, 0)
	for !p.curOp("}") {
		var keyConst int
		switch p.cur.Type {
		case lexer.Identifier:
			keyConst = p.internString([]byte(p.cur.Literal))
			p.next()
		case lexer.String:
			keyConst = p.internString([]byte(p.cur.Literal))
			p.next()
		default:
			return exprResult{}, p.errf("expected a dict key (identifier or string)")
		}
		if err := p.expectOp(":"); err != nil {
			return exprResult{}, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return exprResult{}, err
		}
		valReg, err := p.load(&val)
		if err != nil {
			return exprResult{}, err
		}
		keyReg, ok := p.fn.regs.alloc()
		if !ok {
			return exprResult{}, p.errf("out of registers")
		}
		p.fn.code.WriteImm16(bytecode.OpLoadConst, keyReg, uint16(keyConst))
		p.fn.code.WriteABC(bytecode.OpIdxSet, reg, keyReg, valReg)
		p.fn.regs.release(keyReg)
		p.fn.regs.release(valReg)
		if p.curOp(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectOp("}"); err != nil {
		return exprResult{}, err
	}
	return exprResult{kind: exprValue, reg: reg, loaded: true}, nil
}
