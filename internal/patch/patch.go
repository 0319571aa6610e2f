// Package patch rewrites an AMD module so that its define() call names the
// module explicitly.
//
// Only the call and its first argument are located; every other byte of the
// source is copied through untouched.
package patch

import (
	"fmt"
	"strconv"

	"github.com/robertkrimen/otto/ast"
	"github.com/robertkrimen/otto/parser"

	"github.com/git-pkgs/jslib/internal/core"
)

const defineFunc = "define"

// Span is a half-open byte range of the source.
type Span struct {
	Start, End int
}

// Call is a define() call located in a source.
type Call struct {
	// Callee is the span of the "define" identifier.
	Callee Span

	// LParen is the offset of the opening parenthesis.
	LParen int

	// Args holds the span of every argument, in order.
	Args []Span
}

type defineFinder struct {
	base int
	call *Call
}

func (f *defineFinder) Enter(n ast.Node) ast.Visitor {
	if f.call != nil {
		return nil
	}
	call, ok := n.(*ast.CallExpression)
	if !ok {
		return f
	}
	id, ok := call.Callee.(*ast.Identifier)
	if !ok || id.Name != defineFunc {
		return f
	}

	found := &Call{
		Callee: Span{Start: int(id.Idx0()) - f.base, End: int(id.Idx1()) - f.base},
		LParen: int(call.LeftParenthesis) - f.base,
	}
	for _, arg := range call.ArgumentList {
		found.Args = append(found.Args, Span{
			Start: int(arg.Idx0()) - f.base,
			End:   int(arg.Idx1()) - f.base,
		})
	}
	f.call = found
	return nil
}

func (f *defineFinder) Exit(ast.Node) {}

// Find returns the first call to the global define function, in source order.
func Find(src string) (*Call, error) {
	program, err := parser.ParseFile(nil, "", src, 0)
	if err != nil {
		return nil, fmt.Errorf("parsing source: %w", err)
	}

	finder := &defineFinder{base: program.File.Base()}
	ast.Walk(finder, program)
	if finder.call == nil {
		return nil, core.ErrNoDefineCall
	}
	return finder.call, nil
}

// InjectDefine returns src with id as the explicit first argument of its
// define() call. A call with three arguments already carries an id, which
// is replaced; any other call gets the id inserted after its parenthesis.
func InjectDefine(src, id string) (string, error) {
	call, err := Find(src)
	if err != nil {
		return "", err
	}
	literal := strconv.Quote(id)

	if len(call.Args) == 3 {
		arg := call.Args[0]
		if arg.Start < 0 || arg.End > len(src) || arg.Start >= arg.End {
			return src, nil
		}
		return src[:arg.Start] + literal + src[arg.End:], nil
	}

	if call.LParen < 0 || call.LParen >= len(src) || src[call.LParen] != '(' {
		return src, nil
	}
	at := call.LParen + 1
	return src[:at] + literal + ", " + src[at:], nil
}
