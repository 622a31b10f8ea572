// Package parser tokenizes the line-oriented RepCRec command script
// into Commands. This is the thin external shell named in the spec —
// not part of the transactional core — so it stays close to the
// original Driver.py's simple split-on-punctuation approach rather
// than pulling in a parser-combinator library.
package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which of the seven script operations a Command is.
type Kind int

const (
	Begin Kind = iota
	Read
	Write
	End
	Fail
	Recover
	Dump
)

// Command is one parsed script line. Which fields are populated
// depends on Kind: Begin/End use Txn; Read uses Txn+Var;
// Write uses Txn+Var+Value; Fail/Recover use Site; Dump uses none.
type Command struct {
	Kind  Kind
	Txn   string
	Var   string
	Value int64
	Site  int
}

var kinds = map[string]Kind{
	"begin":   Begin,
	"R":       Read,
	"W":       Write,
	"end":     End,
	"fail":    Fail,
	"recover": Recover,
	"dump":    Dump,
}

// Parse tokenizes one non-blank script line of the form
// "name(arg, arg, ...)", tolerating surrounding and inner whitespace.
func Parse(line string) (Command, error) {
	trimmed := strings.TrimSpace(line)

	open := strings.IndexByte(trimmed, '(')
	if open < 0 || !strings.HasSuffix(trimmed, ")") {
		return Command{}, fmt.Errorf("parser: malformed command %q", line)
	}

	name := strings.TrimSpace(trimmed[:open])
	kind, ok := kinds[name]
	if !ok {
		return Command{}, fmt.Errorf("parser: unknown command %q", name)
	}

	inner := trimmed[open+1 : len(trimmed)-1]
	var args []string
	if strings.TrimSpace(inner) != "" {
		for _, a := range strings.Split(inner, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}

	switch kind {
	case Begin, End:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("parser: %s wants 1 argument, got %d", name, len(args))
		}
		return Command{Kind: kind, Txn: args[0]}, nil

	case Read:
		if len(args) != 2 {
			return Command{}, fmt.Errorf("parser: R wants 2 arguments, got %d", len(args))
		}
		return Command{Kind: kind, Txn: args[0], Var: args[1]}, nil

	case Write:
		if len(args) != 3 {
			return Command{}, fmt.Errorf("parser: W wants 3 arguments, got %d", len(args))
		}
		value, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("parser: malformed value %q: %w", args[2], err)
		}
		return Command{Kind: kind, Txn: args[0], Var: args[1], Value: value}, nil

	case Fail, Recover:
		if len(args) != 1 {
			return Command{}, fmt.Errorf("parser: %s wants 1 argument, got %d", name, len(args))
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("parser: malformed site id %q: %w", args[0], err)
		}
		return Command{Kind: kind, Site: id}, nil

	case Dump:
		if len(args) != 0 {
			return Command{}, fmt.Errorf("parser: dump wants no arguments, got %d", len(args))
		}
		return Command{Kind: kind}, nil
	}

	return Command{}, fmt.Errorf("parser: unhandled command %q", name)
}
