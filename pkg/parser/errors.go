package parser

import "fmt"

// Error is a parse-time failure: a malformed program, an undefined name,
// or a boundary violation such as a jump displacement that overflows the
// 16-bit immediate (spec.md §8's "jump overflow is a parse error, not a
// runtime panic" edge case).
type Error struct {
	Msg  string
	Line int
	Col  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}

func (p *Parser) errf(format string, args ...interface{}) error {
	return &Error{Msg: fmt.Sprintf(format, args...), Line: p.cur.Line, Col: p.cur.Col}
}
