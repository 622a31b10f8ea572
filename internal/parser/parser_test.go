package parser_test

import (
	"testing"

	"repcrec/internal/parser"
)

func TestParseEachKind(t *testing.T) {
	cases := []struct {
		line string
		want parser.Command
	}{
		{"begin(T1)", parser.Command{Kind: parser.Begin, Txn: "T1"}},
		{"  R( T1 , x3 )  ", parser.Command{Kind: parser.Read, Txn: "T1", Var: "x3"}},
		{"W(T1,x3,-7)", parser.Command{Kind: parser.Write, Txn: "T1", Var: "x3", Value: -7}},
		{"end(T1)", parser.Command{Kind: parser.End, Txn: "T1"}},
		{"fail(2)", parser.Command{Kind: parser.Fail, Site: 2}},
		{"recover(2)", parser.Command{Kind: parser.Recover, Site: 2}},
		{"dump()", parser.Command{Kind: parser.Dump}},
	}

	for _, tc := range cases {
		got, err := parser.Parse(tc.line)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.line, err)
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	bad := []string{
		"begin(T1",
		"begin T1)",
		"nonsense(T1)",
		"W(T1,x1)",      // wrong arity
		"W(T1,x1,abc)",  // non-numeric value
		"fail(two)",     // non-numeric site
		"dump(garbage)", // dump takes no args
	}
	for _, line := range bad {
		if _, err := parser.Parse(line); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", line)
		}
	}
}
