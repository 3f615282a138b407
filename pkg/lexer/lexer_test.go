package lexer

import "testing"

func TestNext_BasicTokens(t *testing.T) {
	input := `( ) { } [ ] , ; + - * / % == != <= >= && || << >> :: #[ += -= *= /= %=`

	tests := []struct {
		typ     Type
		literal string
	}{
		{Operator, "("}, {Operator, ")"}, {Operator, "{"}, {Operator, "}"},
		{Operator, "["}, {Operator, "]"}, {Operator, ","}, {Operator, ";"},
		{Operator, "+"}, {Operator, "-"}, {Operator, "*"}, {Operator, "/"}, {Operator, "%"},
		{Operator, "=="}, {Operator, "!="}, {Operator, "<="}, {Operator, ">="},
		{Operator, "&&"}, {Operator, "||"}, {Operator, "<<"}, {Operator, ">>"},
		{Operator, "::"}, {Operator, "#["},
		{Operator, "+="}, {Operator, "-="}, {Operator, "*="}, {Operator, "/="}, {Operator, "%="},
		{EOF, ""},
	}

	l := New([]byte(input))
	for i, tt := range tests {
		tok := l.Next()
		if tok.Type != tt.typ {
			t.Fatalf("tests[%d] - type wrong. expected=%s got=%s (literal=%q)", i, tt.typ, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.literal {
			t.Fatalf("tests[%d] - literal wrong. expected=%q got=%q", i, tt.literal, tok.Literal)
		}
	}
}

func TestNext_NumbersAndIdentifiers(t *testing.T) {
	input := `42 0x1A 3.14 foo_bar _baz @field`

	tests := []struct {
		typ     Type
		literal string
	}{
		{Int, "42"},
		{Int, "0x1A"},
		{Double, "3.14"},
		{Identifier, "foo_bar"},
		{Identifier, "_baz"},
		{AtIdent, "@field"},
		{EOF, ""},
	}

	l := New([]byte(input))
	for i, tt := range tests {
		tok := l.Next()
		if tok.Type != tt.typ || tok.Literal != tt.literal {
			t.Fatalf("tests[%d] - expected {%s %q}, got {%s %q}", i, tt.typ, tt.literal, tok.Type, tok.Literal)
		}
	}
}

func TestNext_StringEscapes(t *testing.T) {
	input := `"a\nb" 'x' "multi\\word"`
	l := New([]byte(input))

	tok := l.Next()
	if tok.Type != String || tok.Literal != "a\nb" {
		t.Fatalf("expected String %q, got %s %q", "a\nb", tok.Type, tok.Literal)
	}

	tok = l.Next()
	if tok.Type != CharString || tok.Literal != "x" {
		t.Fatalf("expected CharString %q, got %s %q", "x", tok.Type, tok.Literal)
	}

	tok = l.Next()
	if tok.Type != String || tok.Literal != `multi\word` {
		t.Fatalf("expected String %q, got %s %q", `multi\word`, tok.Type, tok.Literal)
	}
}

func TestNext_LineComment(t *testing.T) {
	input := "1 // this is a comment\n2"
	l := New([]byte(input))

	tok := l.Next()
	if tok.Type != Int || tok.Literal != "1" {
		t.Fatalf("expected Int 1, got %s %q", tok.Type, tok.Literal)
	}
	tok = l.Next()
	if tok.Type != Int || tok.Literal != "2" {
		t.Fatalf("expected Int 2, got %s %q", tok.Type, tok.Literal)
	}
	if tok.Line != 2 {
		t.Fatalf("expected line 2, got %d", tok.Line)
	}
}

func TestPeek_TwoSlotLookahead(t *testing.T) {
	l := New([]byte("1 2 3"))

	if p := l.Peek(0); p.Literal != "1" {
		t.Fatalf("peek(0) expected 1, got %q", p.Literal)
	}
	if p := l.Peek(1); p.Literal != "2" {
		t.Fatalf("peek(1) expected 2, got %q", p.Literal)
	}
	// Peeking doesn't consume.
	if p := l.Peek(0); p.Literal != "1" {
		t.Fatalf("peek(0) after peek(1) expected 1, got %q", p.Literal)
	}

	if n := l.Next(); n.Literal != "1" {
		t.Fatalf("next expected 1, got %q", n.Literal)
	}
	if n := l.Next(); n.Literal != "2" {
		t.Fatalf("next expected 2, got %q", n.Literal)
	}
	if n := l.Next(); n.Literal != "3" {
		t.Fatalf("next expected 3, got %q", n.Literal)
	}
}

func TestNext_IllegalByte(t *testing.T) {
	l := New([]byte("$"))
	tok := l.Next()
	if tok.Type != Illegal {
		t.Fatalf("expected Illegal, got %s", tok.Type)
	}
}
