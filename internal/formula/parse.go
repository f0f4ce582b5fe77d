package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/efp"
)

// Operator binding powers. All operators are left-associative.
var opPrecedence = map[string]int{
	"+": 1,
	"-": 1,
	"*": 2,
	"/": 2,
	"^": 3,
}

// Parse turns formula source (without the leading "=" sigil) into a syntax
// tree. Tokenization is delegated to the efp spreadsheet parser; this
// function assembles its token stream into Node form with ordinary
// precedence climbing.
//
// Function names are validated against the builtin table here, so an
// unknown function is rejected when the formula is written rather than on
// a later recalculation.
func Parse(src string) (*Node, error) {
	ps := efp.ExcelParser()
	raw := ps.Parse(src)
	toks := make([]efp.Token, 0, len(raw))
	for _, t := range raw {
		if t.TType == efp.TokenTypeWhitespace || t.TType == efp.TokenTypeNoop {
			continue
		}
		toks = append(toks, t)
	}
	if len(toks) == 0 {
		return nil, &ParseError{Pos: 0, Message: "empty formula"}
	}

	p := &tokenParser{toks: toks}
	node, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, &ParseError{
			Pos:     p.pos,
			Message: fmt.Sprintf("unexpected %q", p.toks[p.pos].TValue),
		}
	}
	return node, nil
}

type tokenParser struct {
	toks []efp.Token
	pos  int
}

func (p *tokenParser) peek() (efp.Token, bool) {
	if p.pos >= len(p.toks) {
		return efp.Token{}, false
	}
	return p.toks[p.pos], true
}

func (p *tokenParser) next() (efp.Token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

// parseExpr parses an expression whose operators bind at least as tightly
// as minPrec.
func (p *tokenParser) parseExpr(minPrec int) (*Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok, ok := p.peek()
		if !ok || tok.TType != efp.TokenTypeOperatorInfix {
			return left, nil
		}
		prec, known := opPrecedence[tok.TValue]
		if !known || prec < minPrec {
			return left, nil
		}
		p.pos++

		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindOperator, Name: tok.TValue, Args: []*Node{left, right}}
	}
}

func (p *tokenParser) parsePrimary() (*Node, error) {
	tok, ok := p.next()
	if !ok {
		return nil, &ParseError{Pos: p.pos, Message: "unexpected end of formula"}
	}

	switch tok.TType {
	case efp.TokenTypeOperand:
		return p.operandNode(tok)

	case efp.TokenTypeFunction:
		if tok.TSubType != efp.TokenSubTypeStart {
			return nil, &ParseError{Pos: p.pos - 1, Message: fmt.Sprintf("unexpected %q", tok.TValue)}
		}
		return p.parseCall(tok)

	case efp.TokenTypeSubexpression:
		if tok.TSubType != efp.TokenSubTypeStart {
			return nil, &ParseError{Pos: p.pos - 1, Message: "unbalanced parenthesis"}
		}
		child, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		closing, ok := p.next()
		if !ok || closing.TType != efp.TokenTypeSubexpression || closing.TSubType != efp.TokenSubTypeStop {
			return nil, &ParseError{Pos: p.pos - 1, Message: "unbalanced parenthesis"}
		}
		return &Node{Kind: KindGroup, Args: []*Node{child}}, nil

	case efp.TokenTypeOperatorPrefix:
		return nil, &ParseError{Pos: p.pos - 1, Message: fmt.Sprintf("unary %q is not supported", tok.TValue)}

	default:
		return nil, &ParseError{Pos: p.pos - 1, Message: fmt.Sprintf("unexpected %q", tok.TValue)}
	}
}

func (p *tokenParser) operandNode(tok efp.Token) (*Node, error) {
	switch tok.TSubType {
	case efp.TokenSubTypeNumber:
		f, err := strconv.ParseFloat(tok.TValue, 64)
		if err != nil {
			return nil, &ParseError{Pos: p.pos - 1, Message: fmt.Sprintf("invalid number %q", tok.TValue)}
		}
		return &Node{Kind: KindNumber, Number: f}, nil

	case efp.TokenSubTypeText:
		return &Node{Kind: KindString, Text: tok.TValue}, nil

	case efp.TokenSubTypeRange:
		return &Node{Kind: KindVariable, Name: NormalizeName(tok.TValue)}, nil

	default:
		return nil, &ParseError{Pos: p.pos - 1, Message: fmt.Sprintf("unsupported literal %q", tok.TValue)}
	}
}

// parseCall parses arguments after a Function/Start token through the
// matching Function/Stop.
func (p *tokenParser) parseCall(start efp.Token) (*Node, error) {
	name := strings.ToLower(start.TValue)
	if !knownFunction(name) {
		return nil, newEvalError(ErrCodeUnknownFunction, "unknown function %q", start.TValue)
	}

	node := &Node{Kind: KindCall, Name: name}

	// Empty argument list: min()
	if tok, ok := p.peek(); ok && tok.TType == efp.TokenTypeFunction && tok.TSubType == efp.TokenSubTypeStop {
		p.pos++
		return node, nil
	}

	for {
		arg, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		node.Args = append(node.Args, arg)

		tok, ok := p.next()
		if !ok {
			return nil, &ParseError{Pos: p.pos, Message: fmt.Sprintf("unterminated call to %q", name)}
		}
		switch {
		case tok.TType == efp.TokenTypeArgument:
			continue
		case tok.TType == efp.TokenTypeFunction && tok.TSubType == efp.TokenSubTypeStop:
			return node, nil
		default:
			return nil, &ParseError{Pos: p.pos - 1, Message: fmt.Sprintf("unexpected %q in call to %q", tok.TValue, name)}
		}
	}
}
