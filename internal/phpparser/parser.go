package phpparser

import (
	"fmt"
	"strings"

	"github.com/tourze/php-packer-sub000/internal/phpast"
)

// Parser is the interface the rest of the packer depends on (spec.md §6's
// parser oracle). analyzer.Analyzer and merge.Merger are its core consumers.
type Parser interface {
	Parse(path string, src []byte) (*phpast.Node, error)
}

// DefaultParser is the bundled implementation backed by this package's
// recursive-descent parser.
type DefaultParser struct{}

func (DefaultParser) Parse(path string, src []byte) (*phpast.Node, error) {
	return Parse(path, src)
}

// SyntaxError is returned when the source cannot be parsed; the analyzer
// wraps this into a perror.ParseError.
type SyntaxError struct {
	Path string
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

type parser struct {
	path string
	lex  *lexer
	buf  []token
}

// Parse parses src (the full contents of one source file) into a
// phpast.Node tree rooted at a KindFile node.
func Parse(path string, src []byte) (root *phpast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			if se, ok := r.(*SyntaxError); ok {
				err = se
				return
			}
			panic(r)
		}
	}()

	p := &parser{path: path, lex: newLexer(string(src))}
	p.lex.skipToOpenTag()
	p.fill(1)

	root = phpast.NewNode(phpast.KindFile, 1)
	for p.cur().kind != tokEOF {
		stmt := p.parseTopStatement(false)
		if stmt != nil {
			root.AddChild(stmt)
		}
	}
	return root, nil
}

func (p *parser) fill(n int) {
	for len(p.buf) < n {
		p.buf = append(p.buf, p.lex.next())
	}
}

func (p *parser) cur() token {
	p.fill(1)
	return p.buf[0]
}

func (p *parser) la(n int) token {
	p.fill(n + 1)
	return p.buf[n]
}

func (p *parser) advance() token {
	p.fill(1)
	t := p.buf[0]
	p.buf = p.buf[1:]
	return t
}

func (p *parser) fail(format string, args ...any) {
	panic(&SyntaxError{Path: p.path, Line: p.cur().line, Msg: fmt.Sprintf(format, args...)})
}

func (p *parser) expectPunct(text string) token {
	t := p.cur()
	if t.kind != tokPunct || t.text != text {
		p.fail("expected %q, got %q", text, t.text)
	}
	return p.advance()
}

func (p *parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (p *parser) isPunct(text string) bool {
	t := p.cur()
	return t.kind == tokPunct && t.text == text
}

// parseTopStatement parses one statement, at file scope or inside a block.
// cond marks whether this statement is already inside a conditional
// context (branch, try/catch arm); it is propagated to dependency nodes per
// spec.md §4.4.
func (p *parser) parseTopStatement(cond bool) *phpast.Node {
	t := p.cur()
	if t.kind == tokEOF {
		return nil
	}

	switch {
	case p.isKeyword("namespace"):
		return p.parseNamespace()
	case p.isKeyword("use"):
		return p.parseUse()
	case p.isKeyword("abstract") || p.isKeyword("final"):
		return p.parseClassLike(cond)
	case p.isKeyword("class"):
		return p.parseClassLike(cond)
	case p.isKeyword("interface"):
		return p.parseInterface(cond)
	case p.isKeyword("trait"):
		return p.parseTrait(cond)
	case p.isKeyword("function") && p.la(1).kind == tokIdent:
		return p.parseFunction(cond)
	case p.isKeyword("const"):
		return p.parseTopConst(cond)
	case p.isKeyword("if"):
		return p.parseIf(cond)
	case p.isKeyword("try"):
		return p.parseTry(cond)
	case p.isKeyword("require") || p.isKeyword("require_once") || p.isKeyword("include") || p.isKeyword("include_once"):
		return p.parseInclude(cond)
	case p.isKeyword("declare"):
		return p.parseDeclare(cond)
	case p.isPunct("{"):
		return p.parseBlock(cond)
	case p.isPunct(";"):
		p.advance()
		return nil
	default:
		return p.parseExprStatement(cond)
	}
}

func (p *parser) parseNamespace() *phpast.Node {
	line := p.cur().line
	p.advance() // "namespace"
	n := phpast.NewNode(phpast.KindNamespace, line)
	if p.cur().kind == tokIdent {
		n.Name = strings.Trim(p.advance().text, `\`)
	}
	if p.isPunct("{") {
		// Block-form namespace: treat its body as top-level statements,
		// flattened into this node's children.
		p.advance()
		for !p.isPunct("}") && p.cur().kind != tokEOF {
			if s := p.parseTopStatement(false); s != nil {
				n.AddChild(s)
			}
		}
		p.expectPunct("}")
	} else {
		p.expectPunct(";")
	}
	return n
}

// parseUse handles both `use Foo\Bar [as Baz];` and `use Foo\{Bar, Baz as
// Qux};`.
func (p *parser) parseUse() *phpast.Node {
	line := p.cur().line
	p.advance() // "use"

	name := ""
	if p.cur().kind == tokIdent {
		name = strings.Trim(p.advance().text, `\`)
	}

	if p.isPunct("{") {
		n := phpast.NewNode(phpast.KindGroupUseImport, line)
		p.advance()
		prefix := name
		for {
			if p.isPunct("}") {
				break
			}
			member := ""
			if p.cur().kind == tokIdent {
				member = strings.Trim(p.advance().text, `\`)
			}
			full := member
			if prefix != "" {
				full = prefix + "\\" + member
			}
			alias := ""
			if p.isKeyword("as") {
				p.advance()
				if p.cur().kind == tokIdent {
					alias = p.advance().text
				}
			}
			n.Imports = append(n.Imports, phpast.UseImport{Name: full, Alias: alias})
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		p.expectPunct("}")
		p.expectPunct(";")
		return n
	}

	n := phpast.NewNode(phpast.KindUseImport, line)
	alias := ""
	if p.isKeyword("as") {
		p.advance()
		if p.cur().kind == tokIdent {
			alias = p.advance().text
		}
	}
	n.Imports = append(n.Imports, phpast.UseImport{Name: name, Alias: alias})
	// Additional comma-separated imports in one `use` statement.
	for p.isPunct(",") {
		p.advance()
		name = ""
		if p.cur().kind == tokIdent {
			name = strings.Trim(p.advance().text, `\`)
		}
		alias = ""
		if p.isKeyword("as") {
			p.advance()
			if p.cur().kind == tokIdent {
				alias = p.advance().text
			}
		}
		n.Imports = append(n.Imports, phpast.UseImport{Name: name, Alias: alias})
	}
	p.expectPunct(";")
	return n
}

func (p *parser) parseModifiers() (abstract, final bool, vis phpast.Visibility) {
	vis = phpast.VisibilityPublic
	for {
		switch {
		case p.isKeyword("abstract"):
			abstract = true
			p.advance()
		case p.isKeyword("final"):
			final = true
			p.advance()
		case p.isKeyword("public"):
			vis = phpast.VisibilityPublic
			p.advance()
		case p.isKeyword("protected"):
			vis = phpast.VisibilityProtected
			p.advance()
		case p.isKeyword("private"):
			vis = phpast.VisibilityPrivate
			p.advance()
		default:
			return
		}
	}
}

func (p *parser) parseClassLike(cond bool) *phpast.Node {
	abstract, final, _ := p.parseModifiers()
	line := p.cur().line
	p.expectKeyword("class")
	n := phpast.NewNode(phpast.KindClass, line)
	n.IsAbstract = abstract
	n.IsFinal = final
	n.Conditional = cond
	n.Name = p.advance().text // class name

	// Optional generic/template-ish parameter list is not part of PHP; skip
	// constructor-promotion parens only inside methods, not here.
	if p.isKeyword("extends") {
		p.advance()
		n.Extends = append(n.Extends, p.advance().text)
	}
	if p.isKeyword("implements") {
		p.advance()
		n.Implements = append(n.Implements, p.advance().text)
		for p.isPunct(",") {
			p.advance()
			n.Implements = append(n.Implements, p.advance().text)
		}
	}

	p.parseClassBody(n)
	return n
}

func (p *parser) expectKeyword(kw string) {
	if !p.isKeyword(kw) {
		p.fail("expected %q, got %q", kw, p.cur().text)
	}
	p.advance()
}

func (p *parser) parseInterface(cond bool) *phpast.Node {
	line := p.cur().line
	p.advance() // "interface"
	n := phpast.NewNode(phpast.KindInterface, line)
	n.Conditional = cond
	n.Name = p.advance().text
	if p.isKeyword("extends") {
		p.advance()
		n.Extends = append(n.Extends, p.advance().text)
		for p.isPunct(",") {
			p.advance()
			n.Extends = append(n.Extends, p.advance().text)
		}
	}
	p.parseClassBody(n)
	return n
}

func (p *parser) parseTrait(cond bool) *phpast.Node {
	line := p.cur().line
	p.advance() // "trait"
	n := phpast.NewNode(phpast.KindTrait, line)
	n.Conditional = cond
	n.Name = p.advance().text
	p.parseClassBody(n)
	return n
}

// parseClassBody parses the declaration body shared by class/interface/
// trait: methods, trait-use clauses, properties, and class constants.
// Properties and class constants are consumed but not retained as Symbols
// (spec.md §3 Symbol only models class/interface/trait/function/constant
// at file scope).
func (p *parser) parseClassBody(owner *phpast.Node) {
	p.expectPunct("{")
	for !p.isPunct("}") && p.cur().kind != tokEOF {
		switch {
		case p.isKeyword("use"):
			p.advance()
			owner.UseTraits = append(owner.UseTraits, p.advance().text)
			for p.isPunct(",") {
				p.advance()
				owner.UseTraits = append(owner.UseTraits, p.advance().text)
			}
			if p.isPunct("{") {
				// Trait adaptation block (insteadof/as); skip balanced braces.
				p.skipBalanced("{", "}")
			} else {
				p.expectPunct(";")
			}
		default:
			abstract, _, vis := p.parseModifiers()
			switch {
			case p.isKeyword("const"):
				p.advance()
				for {
					p.advance() // const name
					p.expectPunct("=")
					p.skipExprUntil(";", ",")
					if p.isPunct(",") {
						p.advance()
						continue
					}
					break
				}
				p.expectPunct(";")
			case p.isKeyword("function"):
				m := p.parseMethod(abstract || owner.Kind == phpast.KindInterface)
				m.Visibility = vis
				owner.AddChild(m)
			case p.isPunct("}"):
				// Dangling modifiers before close brace; defensive.
			default:
				// Typed or untyped property declaration(s), possibly with
				// default values: skip to the terminating ";".
				p.skipStatementTail()
			}
		}
	}
	p.expectPunct("}")
}

func (p *parser) parseMethod(abstractCtx bool) *phpast.Node {
	line := p.cur().line
	p.advance() // "function"
	if p.isPunct("&") {
		p.advance()
	}
	n := phpast.NewNode(phpast.KindClassMethod, line)
	n.MethodName = p.advance().text
	p.skipBalanced("(", ")")
	// Optional return type: ": Type" or ": ?Type" or union types.
	if p.isPunct(":") {
		p.advance()
		for !p.isPunct("{") && !p.isPunct(";") && p.cur().kind != tokEOF {
			p.advance()
		}
	}
	if abstractCtx || p.isPunct(";") {
		if p.isPunct(";") {
			p.advance()
		}
		n.EndLine = line
		return n
	}
	body := p.parseBlock(false)
	n.Children = append(n.Children, body.Children...)
	n.EndLine = body.EndLine
	return n
}

func (p *parser) parseFunction(cond bool) *phpast.Node {
	line := p.cur().line
	p.advance() // "function"
	if p.isPunct("&") {
		p.advance()
	}
	n := phpast.NewNode(phpast.KindFunction, line)
	n.Conditional = cond
	n.Name = p.advance().text
	p.skipBalanced("(", ")")
	if p.isPunct(":") {
		p.advance()
		for !p.isPunct("{") && p.cur().kind != tokEOF {
			p.advance()
		}
	}
	body := p.parseBlock(cond)
	n.Children = body.Children
	n.EndLine = body.EndLine
	return n
}

func (p *parser) parseTopConst(cond bool) *phpast.Node {
	line := p.cur().line
	p.advance() // "const"
	first := phpast.NewNode(phpast.KindConst, line)
	first.Conditional = cond
	first.Name = p.advance().text
	p.expectPunct("=")
	p.skipExprUntil(";", ",")
	group := first
	for p.isPunct(",") {
		p.advance()
		extra := phpast.NewNode(phpast.KindConst, p.cur().line)
		extra.Conditional = cond
		extra.Name = p.advance().text
		p.expectPunct("=")
		p.skipExprUntil(";", ",")
		_ = extra
		// Multiple consts in one statement are rare in the corpus this
		// packer targets; only the first is retained as a Symbol, matching
		// how spec.md §4.4 describes "Trait / function / constant
		// declaration: records Symbol" as a per-node action.
		group.Attrs = mergeAttr(group.Attrs, "extra_const", extra.Name)
	}
	p.expectPunct(";")
	return group
}

// parseDeclare parses `declare(directive, ...);` or the block form
// `declare(directive, ...) { ... }` (spec.md §4.7 step 2: "directive
// statements", e.g. strict_types, ticks, encoding).
func (p *parser) parseDeclare(cond bool) *phpast.Node {
	line := p.cur().line
	p.advance() // "declare"
	n := phpast.NewNode(phpast.KindDirective, line)
	n.Conditional = cond
	p.skipBalanced("(", ")")
	if p.isPunct("{") {
		body := p.parseBlock(cond)
		n.Children = body.Children
		n.EndLine = body.EndLine
		return n
	}
	p.expectPunct(";")
	n.EndLine = line
	return n
}

func (p *parser) parseIf(cond bool) *phpast.Node {
	line := p.cur().line
	p.advance() // "if"
	n := phpast.NewNode(phpast.KindConditional, line)
	p.skipBalanced("(", ")")
	n.AddChild(p.parseBranchBody())
	for p.isKeyword("elseif") {
		p.advance()
		p.skipBalanced("(", ")")
		n.AddChild(p.parseBranchBody())
	}
	if p.isKeyword("else") {
		p.advance()
		if p.isKeyword("if") {
			n.AddChild(p.parseIf(true))
		} else {
			n.AddChild(p.parseBranchBody())
		}
	}
	n.EndLine = p.cur().line
	_ = cond
	return n
}

// parseBranchBody parses a single branch's body (block or single
// statement), with every statement inside marked conditional.
func (p *parser) parseBranchBody() *phpast.Node {
	if p.isPunct("{") {
		return p.parseBlock(true)
	}
	b := phpast.NewNode(phpast.KindBlock, p.cur().line)
	if s := p.parseTopStatement(true); s != nil {
		b.AddChild(s)
	}
	return b
}

func (p *parser) parseTry(cond bool) *phpast.Node {
	line := p.cur().line
	p.advance() // "try"
	n := phpast.NewNode(phpast.KindTryCatch, line)
	n.AddChild(p.parseBlock(true))
	for p.isKeyword("catch") {
		p.advance()
		p.skipBalanced("(", ")")
		n.AddChild(p.parseBlock(true))
	}
	if p.isKeyword("finally") {
		p.advance()
		n.AddChild(p.parseBlock(true))
	}
	_ = cond
	return n
}

func (p *parser) parseInclude(cond bool) *phpast.Node {
	line := p.cur().line
	op := p.advance().text
	n := phpast.NewNode(phpast.KindInclude, line)
	n.Conditional = cond
	n.IncludeOp = strings.ToLower(op)
	p.classifyIncludeArg(n)
	p.expectPunct(";")
	return n
}

// classifyIncludeArg implements spec.md §4.4's include-argument
// classification: string literal, __DIR__-concatenation, or unresolvable
// dynamic/complex expression.
func (p *parser) classifyIncludeArg(n *phpast.Node) {
	if p.cur().kind == tokString && (p.la(1).kind == tokPunct && p.la(1).text == ";") {
		n.IncludeArgKind = "literal"
		n.IncludeLiteral = p.advance().text
		return
	}

	if p.isDirMagic(p.cur()) {
		parts, ok := p.tryParseDirConcat()
		if ok {
			n.IncludeArgKind = "dir"
			n.DirParts = parts
			return
		}
	}

	if p.cur().kind == tokString && p.isPunct2(1, ".") {
		// literal concatenated with something other than __DIR__: still
		// "complex" per spec.md (only __DIR__-concatenation gets special
		// treatment), but consume the expression.
		p.skipExprUntil(";")
		n.IncludeArgKind = "complex"
		return
	}

	// Anything else (variables, function calls, ternaries): dynamic or
	// complex. We don't distinguish further since neither is resolvable.
	kind := "complex"
	if p.cur().kind == tokVariable {
		kind = "dynamic"
	}
	p.skipExprUntil(";")
	n.IncludeArgKind = kind
}

func (p *parser) isDirMagic(t token) bool {
	return t.kind == tokIdent && (strings.EqualFold(t.text, "__DIR__") || strings.EqualFold(t.text, "__dir__"))
}

func (p *parser) isPunct2(ahead int, text string) bool {
	t := p.la(ahead)
	return t.kind == tokPunct && t.text == text
}

// tryParseDirConcat parses `__DIR__ . "literal" [. "literal" ...]`, common
// PHP patterns for building include paths relative to the current file.
func (p *parser) tryParseDirConcat() ([]string, bool) {
	save := append([]token(nil), p.buf...)
	savePos := p.lex.pos
	saveLine := p.lex.line

	p.advance() // __DIR__
	var parts []string
	ok := true
	for p.isPunct(".") {
		p.advance()
		if p.cur().kind != tokString {
			ok = false
			break
		}
		parts = append(parts, p.advance().text)
	}
	if !ok || !p.isPunct(";") {
		// Not a clean __DIR__-concat chain; restore lexer state and let the
		// caller fall through to the dynamic/complex classification.
		p.buf = save
		p.lex.pos = savePos
		p.lex.line = saveLine
		return nil, false
	}
	return parts, true
}

func (p *parser) parseBlock(cond bool) *phpast.Node {
	line := p.cur().line
	p.expectPunct("{")
	n := phpast.NewNode(phpast.KindBlock, line)
	for !p.isPunct("}") && p.cur().kind != tokEOF {
		if s := p.parseTopStatement(cond); s != nil {
			n.AddChild(s)
		}
	}
	n.EndLine = p.cur().line
	p.expectPunct("}")
	return n
}

// parseExprStatement scans a generic statement up to its terminating ";",
// extracting `new X(...)` and `X::member` references along the way per
// spec.md §4.4 ("static call or class-constant access on a named class").
func (p *parser) parseExprStatement(cond bool) *phpast.Node {
	line := p.cur().line
	n := phpast.NewNode(phpast.KindGeneric, line)
	n.Conditional = cond

	depth := 0
	for {
		t := p.cur()
		if t.kind == tokEOF {
			break
		}
		if t.kind == tokPunct {
			switch t.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				if depth == 0 {
					break
				}
				depth--
			case ";":
				if depth == 0 {
					p.advance()
					n.EndLine = t.line
					return n
				}
			}
		}

		if p.isKeyword("new") {
			n.AddChild(p.parseNewExpr(cond))
			continue
		}
		if t.kind == tokIdent && p.la(1).kind == tokPunct && p.la(1).text == "::" {
			name := p.advance().text
			p.advance() // "::"
			member := ""
			if p.cur().kind == tokIdent || p.cur().kind == tokVariable {
				member = p.advance().text
			}
			call := phpast.NewNode(phpast.KindStaticCall, t.line)
			call.Conditional = cond
			call.RefName = name
			call.Name = member
			if p.isPunct("(") {
				call.Kind = phpast.KindStaticCall
			} else {
				call.Kind = phpast.KindClassConstAccess
			}
			n.AddChild(call)
			continue
		}

		p.advance()
	}
	n.EndLine = p.cur().line
	return n
}

// parseNewExpr parses `new Name(...)` or `new class ... { ... }` (an
// anonymous class, spec.md §4.4: "records its extends/implements/
// use-trait dependencies but no Symbol").
func (p *parser) parseNewExpr(cond bool) *phpast.Node {
	line := p.cur().line
	p.advance() // "new"
	n := phpast.NewNode(phpast.KindNewExpr, line)
	n.Conditional = cond

	if p.isKeyword("class") {
		p.advance()
		n.IsAnonClass = true
		n.Conditional = true
		if p.isPunct("(") {
			p.skipBalanced("(", ")")
		}
		if p.isKeyword("extends") {
			p.advance()
			n.Extends = append(n.Extends, p.advance().text)
		}
		if p.isKeyword("implements") {
			p.advance()
			n.Implements = append(n.Implements, p.advance().text)
			for p.isPunct(",") {
				p.advance()
				n.Implements = append(n.Implements, p.advance().text)
			}
		}
		p.parseClassBody(n)
		n.UseTraits = n.UseTraits // traits recorded by parseClassBody via n.UseTraits
		return n
	}

	if p.cur().kind == tokIdent {
		n.RefName = p.advance().text
	} else if p.cur().kind == tokVariable {
		// `new $class(...)`: dynamic class reference, unresolvable.
		p.advance()
		n.RefName = ""
	}
	if p.isPunct("(") {
		p.skipBalanced("(", ")")
	}
	return n
}

// skipBalanced consumes tokens from open through its matching close,
// assuming the current token is open.
func (p *parser) skipBalanced(open, close string) {
	p.expectPunct(open)
	depth := 1
	for depth > 0 {
		t := p.cur()
		if t.kind == tokEOF {
			p.fail("unexpected EOF while scanning for matching %q", close)
		}
		if t.kind == tokPunct {
			if t.text == open {
				depth++
			} else if t.text == close {
				depth--
				if depth == 0 {
					p.advance()
					return
				}
			}
		}
		p.advance()
	}
}

// skipExprUntil consumes tokens until one of stops is seen at depth 0,
// without consuming the stop token.
func (p *parser) skipExprUntil(stops ...string) {
	depth := 0
	for {
		t := p.cur()
		if t.kind == tokEOF {
			return
		}
		if t.kind == tokPunct {
			switch t.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			default:
				if depth == 0 {
					for _, s := range stops {
						if t.text == s {
							return
						}
					}
				}
			}
		}
		p.advance()
	}
}

// skipStatementTail consumes tokens to the end of a statement this parser
// does not structurally analyze (property declarations, expression
// statements encountered while already inside parseClassBody's modifier
// branch).
func (p *parser) skipStatementTail() {
	p.skipExprUntil(";")
	if p.isPunct(";") {
		p.advance()
	}
}

func mergeAttr(attrs map[string]any, key string, val any) map[string]any {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	if existing, ok := attrs[key]; ok {
		if list, ok2 := existing.([]any); ok2 {
			attrs[key] = append(list, val)
			return attrs
		}
		attrs[key] = []any{existing, val}
		return attrs
	}
	attrs[key] = val
	return attrs
}
