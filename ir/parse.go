package ir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/tileir/tileir/ir/layout"
	"github.com/tileir/tileir/types/shapes"
)

// SyntaxError is a parse failure with the line it occurred on.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("(line %d): %s", e.Line, e.Msg)
	}
	return e.Msg
}

// ParseOp parses the textual form of a single operation (without a result
// assignment) and immediately verifies it. src must hold exactly one op.
func ParseOp(src string) (Op, error) {
	p := newParser(src)
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	if err := op.Verify(); err != nil {
		return nil, err
	}
	return op, nil
}

// ParseModule parses a sequence of `%name = op ...` lines sharing one value
// scope, verifying each op as it is built. Blank lines and `//` comments are
// skipped. Parsing aborts at the first syntax or verification failure.
func ParseModule(src string) (*Module, error) {
	p := newParser(src)
	module := &Module{}
	for {
		p.skipSpace()
		if p.atEOF() {
			return module, nil
		}
		op, err := p.parseAssignedOp()
		if err != nil {
			return nil, err
		}
		if err := op.Verify(); err != nil {
			return nil, &SyntaxError{Line: p.line, Msg: err.Error()}
		}
		module.Ops = append(module.Ops, op)
	}
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord           // identifiers, numbers and shaped-type words like 4x8xbf16
	tokValueID        // %name
	tokString         // "..."
	tokArrow          // ->
	tokPunct          // single-rune punctuation
)

type token struct {
	kind  tokenKind
	text  string
	punct rune
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokValueID:
		return "%" + t.text
	case tokString:
		return strconv.Quote(t.text)
	case tokArrow:
		return "->"
	case tokPunct:
		return string(t.punct)
	}
	return t.text
}

// parser is a hand-rolled scanner plus recursive-descent parser over the
// exact op grammars. It keeps a scope of named values so that operand
// references resolve consistently across one parse.
type parser struct {
	src   []rune
	pos   int
	line  int
	scope map[string]Value

	peeked *token
}

func newParser(src string) *parser {
	return &parser{src: []rune(src), line: 1, scope: make(map[string]Value)}
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		r := p.src[p.pos]
		if r == '\n' {
			p.line++
			p.pos++
			continue
		}
		if unicode.IsSpace(r) {
			p.pos++
			continue
		}
		// Line comment.
		if r == '/' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '/' {
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		return
	}
}

func (p *parser) atEOF() bool {
	p.skipSpace()
	return p.pos >= len(p.src)
}

func isWordRune(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// next returns the following token, consuming it.
func (p *parser) next() token {
	if p.peeked != nil {
		tok := *p.peeked
		p.peeked = nil
		return tok
	}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return token{kind: tokEOF}
	}
	r := p.src[p.pos]
	switch {
	case r == '%':
		p.pos++
		start := p.pos
		for p.pos < len(p.src) && isWordRune(p.src[p.pos]) {
			p.pos++
		}
		return token{kind: tokValueID, text: string(p.src[start:p.pos])}
	case r == '"':
		p.pos++
		start := p.pos
		for p.pos < len(p.src) && p.src[p.pos] != '"' && p.src[p.pos] != '\n' {
			p.pos++
		}
		text := string(p.src[start:p.pos])
		if p.pos < len(p.src) && p.src[p.pos] == '"' {
			p.pos++
		}
		return token{kind: tokString, text: text}
	case r == '-':
		if p.pos+1 < len(p.src) && p.src[p.pos+1] == '>' {
			p.pos += 2
			return token{kind: tokArrow}
		}
		p.pos++
		return token{kind: tokPunct, punct: '-'}
	case isWordRune(r):
		start := p.pos
		for p.pos < len(p.src) && isWordRune(p.src[p.pos]) {
			p.pos++
		}
		return token{kind: tokWord, text: string(p.src[start:p.pos])}
	default:
		p.pos++
		return token{kind: tokPunct, punct: r}
	}
}

func (p *parser) peek() token {
	if p.peeked == nil {
		tok := p.next()
		p.peeked = &tok
	}
	return *p.peeked
}

func (p *parser) expectPunct(r rune) error {
	tok := p.next()
	if tok.kind != tokPunct || tok.punct != r {
		return p.errorf("expected %q, got %q", string(r), tok)
	}
	return nil
}

func (p *parser) expectKeyword(kw string) error {
	tok := p.next()
	if tok.kind != tokWord || tok.text != kw {
		return p.errorf("expected %q, got %q", kw, tok)
	}
	return nil
}

func (p *parser) expectEOF() error {
	if !p.atEOF() {
		return p.errorf("unexpected trailing input starting at %q", p.peek())
	}
	return nil
}

// resolveOperand resolves a value reference against the type the grammar
// demands at that position. A fresh name defines the value; a known name
// must already carry an identical type.
func (p *parser) resolveOperand(name string, typ Type) (Value, error) {
	if known, found := p.scope[name]; found {
		if !known.Type.Equal(typ) {
			return Value{}, p.errorf("operand %%%s used with type %s but already defined with type %s",
				name, typ, known.Type)
		}
		return known, nil
	}
	v := Value{Name: name, Type: typ}
	p.scope[name] = v
	return v, nil
}

// parseAssignedOp parses `%name = op ...` and records the result in scope.
func (p *parser) parseAssignedOp() (Op, error) {
	tok := p.next()
	if tok.kind != tokValueID {
		return nil, p.errorf("expected result name (%%...), got %q", tok)
	}
	resultName := tok.text
	if err := p.expectPunct('='); err != nil {
		return nil, err
	}
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}
	result := op.Result()
	result.Name = resultName
	if _, err := p.resolveOperand(resultName, result.Type); err != nil {
		return nil, err
	}
	return op, nil
}

// parseOp dispatches on the op mnemonic.
func (p *parser) parseOp() (Op, error) {
	tok := p.next()
	if tok.kind != tokWord {
		return nil, p.errorf("expected an operation name, got %q", tok)
	}
	switch tok.text {
	case "tile":
		return p.parseTile()
	case "extract":
		return p.parseExtract()
	case "insert":
		return p.parseInsert()
	case "sparse_dot":
		return p.parseSparseDot()
	}
	return nil, p.errorf("unknown operation %q", tok.text)
}

// parseTile parses
//
//	%src[offsets][sizes][strides] : tiled_tensor<...>
func (p *parser) parseTile() (*TileOp, error) {
	tok := p.next()
	if tok.kind != tokValueID {
		return nil, p.errorf("expected the source tensor operand, got %q", tok)
	}
	srcName := tok.text
	offsets, err := parseIntList[int32](p)
	if err != nil {
		return nil, err
	}
	sizes, err := parseIntList[int32](p)
	if err != nil {
		return nil, err
	}
	strides, err := parseIntList[int64](p)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(':'); err != nil {
		return nil, err
	}
	viewType, err := p.parseTiledTensorType()
	if err != nil {
		return nil, err
	}
	src, err := p.resolveOperand(srcName, viewType.Original)
	if err != nil {
		return nil, err
	}
	return NewTile(src, offsets, sizes, strides, viewType), nil
}

// parseExtract parses
//
//	%src[%offsets] attr-dict? : original-type to tile-type
func (p *parser) parseExtract() (*ExtractOp, error) {
	tok := p.next()
	if tok.kind != tokValueID {
		return nil, p.errorf("expected the tiled-tensor operand, got %q", tok)
	}
	srcName := tok.text
	offsetNames, err := p.parseOperandList()
	if err != nil {
		return nil, err
	}
	attrs, err := p.parseOptionalAttrDict()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(':'); err != nil {
		return nil, err
	}
	originalType, err := p.parseTensorType()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("to"); err != nil {
		return nil, err
	}
	tileType, err := p.parseTensorType()
	if err != nil {
		return nil, err
	}
	viewType, err := p.makeTiledTensorType(tileType, originalType)
	if err != nil {
		return nil, err
	}
	src, err := p.resolveOperand(srcName, viewType)
	if err != nil {
		return nil, err
	}
	offsets, err := p.resolveOffsetOperands(offsetNames)
	if err != nil {
		return nil, err
	}
	return NewExtract(src, offsets, attrs), nil
}

// parseInsert parses
//
//	%src into %dst[%offsets] attr-dict? : tile-type into original-type
func (p *parser) parseInsert() (*InsertOp, error) {
	tok := p.next()
	if tok.kind != tokValueID {
		return nil, p.errorf("expected the tile operand, got %q", tok)
	}
	tileName := tok.text
	if err := p.expectKeyword("into"); err != nil {
		return nil, err
	}
	tok = p.next()
	if tok.kind != tokValueID {
		return nil, p.errorf("expected the destination operand, got %q", tok)
	}
	dstName := tok.text
	offsetNames, err := p.parseOperandList()
	if err != nil {
		return nil, err
	}
	attrs, err := p.parseOptionalAttrDict()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(':'); err != nil {
		return nil, err
	}
	tileType, err := p.parseTensorType()
	if err != nil {
		return nil, err
	}
	// The tile operand resolves against the written tile type right away;
	// the destination and offsets only resolve once the tiled-tensor type
	// is reconstructed from both written types.
	src, err := p.resolveOperand(tileName, tileType)
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("into"); err != nil {
		return nil, err
	}
	originalType, err := p.parseTensorType()
	if err != nil {
		return nil, err
	}
	viewType, err := p.makeTiledTensorType(tileType, originalType)
	if err != nil {
		return nil, err
	}
	dst, err := p.resolveOperand(dstName, viewType)
	if err != nil {
		return nil, err
	}
	offsets, err := p.resolveOffsetOperands(offsetNames)
	if err != nil {
		return nil, err
	}
	return NewInsert(src, dst, offsets, attrs), nil
}

// parseSparseDot parses the generic n-ary form
//
//	%a, %b, %c, %meta attr-dict? : (types) -> result-type
func (p *parser) parseSparseDot() (*SparseDotOp, error) {
	var operandNames []string
	for {
		tok := p.next()
		if tok.kind != tokValueID {
			return nil, p.errorf("expected an operand, got %q", tok)
		}
		operandNames = append(operandNames, tok.text)
		if p.peek().kind == tokPunct && p.peek().punct == ',' {
			p.next()
			continue
		}
		break
	}
	attrs, err := p.parseOptionalAttrDict()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(':'); err != nil {
		return nil, err
	}
	if err := p.expectPunct('('); err != nil {
		return nil, err
	}
	var operandTypes []TensorType
	for {
		t, err := p.parseTensorType()
		if err != nil {
			return nil, err
		}
		operandTypes = append(operandTypes, t)
		tok := p.next()
		if tok.kind == tokPunct && tok.punct == ',' {
			continue
		}
		if tok.kind == tokPunct && tok.punct == ')' {
			break
		}
		return nil, p.errorf("expected \",\" or \")\" in the operand type list, got %q", tok)
	}
	tok := p.next()
	if tok.kind != tokArrow {
		return nil, p.errorf("expected \"->\", got %q", tok)
	}
	declaredResult, err := p.parseTensorType()
	if err != nil {
		return nil, err
	}
	if len(operandNames) != 4 || len(operandTypes) != 4 {
		return nil, p.errorf("sparse_dot expects 4 operands and 4 operand types, got %d and %d",
			len(operandNames), len(operandTypes))
	}
	operands := make([]Value, 4)
	for i, name := range operandNames {
		operands[i], err = p.resolveOperand(name, operandTypes[i])
		if err != nil {
			return nil, err
		}
	}
	op, err := NewSparseDot(operands[0], operands[1], operands[2], operands[3])
	if err != nil {
		return nil, p.errorf("%s", err)
	}
	op.Attrs = attrs
	if !op.result.Type.Equal(declaredResult) {
		return nil, p.errorf("declared result type %s does not match the inferred type %s",
			declaredResult, op.result.Type)
	}
	return op, nil
}

// parseOperandList parses `[%a, %b, ...]` and returns the referenced names.
// An empty list `[]` is valid.
func (p *parser) parseOperandList() ([]string, error) {
	if err := p.expectPunct('['); err != nil {
		return nil, err
	}
	var names []string
	if p.peek().kind == tokPunct && p.peek().punct == ']' {
		p.next()
		return names, nil
	}
	for {
		tok := p.next()
		if tok.kind != tokValueID {
			return nil, p.errorf("expected an offset operand, got %q", tok)
		}
		names = append(names, tok.text)
		tok = p.next()
		if tok.kind == tokPunct && tok.punct == ',' {
			continue
		}
		if tok.kind == tokPunct && tok.punct == ']' {
			return names, nil
		}
		return nil, p.errorf("expected \",\" or \"]\" in the offset list, got %q", tok)
	}
}

func (p *parser) resolveOffsetOperands(names []string) ([]Value, error) {
	offsetType := TensorType{ShapeOf: shapes.Make(dtypes.Int32)}
	offsets := make([]Value, len(names))
	var err error
	for i, name := range names {
		offsets[i], err = p.resolveOperand(name, offsetType)
		if err != nil {
			return nil, err
		}
	}
	return offsets, nil
}

// parseIntList parses `[1, 2, -3]`.
func parseIntList[T int32 | int64](p *parser) ([]T, error) {
	if err := p.expectPunct('['); err != nil {
		return nil, err
	}
	var values []T
	if p.peek().kind == tokPunct && p.peek().punct == ']' {
		p.next()
		return values, nil
	}
	for {
		v, err := parseInt[T](p)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		tok := p.next()
		if tok.kind == tokPunct && tok.punct == ',' {
			continue
		}
		if tok.kind == tokPunct && tok.punct == ']' {
			return values, nil
		}
		return nil, p.errorf("expected \",\" or \"]\" in the integer list, got %q", tok)
	}
}

func parseInt[T int32 | int64](p *parser) (T, error) {
	negative := false
	tok := p.next()
	if tok.kind == tokPunct && tok.punct == '-' {
		negative = true
		tok = p.next()
	}
	if tok.kind != tokWord {
		return 0, p.errorf("expected an integer, got %q", tok)
	}
	v, err := strconv.ParseInt(tok.text, 10, 64)
	if err != nil {
		return 0, p.errorf("invalid integer %q", tok.text)
	}
	if negative {
		v = -v
	}
	return T(v), nil
}

// parseTensorType parses a shaped-type word like "4x8xbf16" (or "f32" for a
// scalar) with an optional ` #alias` encoding reference.
func (p *parser) parseTensorType() (TensorType, error) {
	tok := p.next()
	if tok.kind != tokWord {
		return TensorType{}, p.errorf("expected a tensor type, got %q", tok)
	}
	dims, dtypeToken, err := splitShapedWord(tok.text)
	if err != nil {
		return TensorType{}, p.errorf("%s", err)
	}
	if dtypeToken == "" {
		return TensorType{}, p.errorf("tensor type %q is missing an element type", tok.text)
	}
	dtype, err := DTypeByToken(dtypeToken)
	if err != nil {
		return TensorType{}, p.errorf("%s", err)
	}
	t := TensorType{ShapeOf: shapes.Make(dtype, dims...)}
	if p.peek().kind == tokPunct && p.peek().punct == '#' {
		p.next()
		encTok := p.next()
		if encTok.kind != tokWord {
			return TensorType{}, p.errorf("expected an encoding name after \"#\", got %q", encTok)
		}
		encoding, found := layout.ByAlias(encTok.text)
		if !found {
			return TensorType{}, p.errorf("unknown encoding #%s", encTok.text)
		}
		t.Encoding = encoding
	}
	return t, nil
}

// parseTiledTensorType parses "tiled_tensor<8x8|64x64xf32>".
func (p *parser) parseTiledTensorType() (TiledTensorType, error) {
	if err := p.expectKeyword("tiled_tensor"); err != nil {
		return TiledTensorType{}, err
	}
	if err := p.expectPunct('<'); err != nil {
		return TiledTensorType{}, err
	}
	var tileDims []int
	if !(p.peek().kind == tokPunct && p.peek().punct == '|') {
		tok := p.next()
		if tok.kind != tokWord {
			return TiledTensorType{}, p.errorf("expected the tile dimensions, got %q", tok)
		}
		dims, dtypeToken, err := splitShapedWord(tok.text)
		if err != nil {
			return TiledTensorType{}, p.errorf("%s", err)
		}
		if dtypeToken != "" {
			return TiledTensorType{}, p.errorf("tile dimensions %q must not repeat the element type", tok.text)
		}
		tileDims = dims
	}
	if err := p.expectPunct('|'); err != nil {
		return TiledTensorType{}, err
	}
	original, err := p.parseTensorType()
	if err != nil {
		return TiledTensorType{}, err
	}
	if err := p.expectPunct('>'); err != nil {
		return TiledTensorType{}, err
	}
	tile := TensorType{ShapeOf: shapes.Make(original.DType(), tileDims...)}
	return TiledTensorType{Tile: tile, Original: original}, nil
}

// makeTiledTensorType reconstructs the tiled-tensor type from the written
// tile and original types, rejecting mismatched element types gracefully.
func (p *parser) makeTiledTensorType(tile, original TensorType) (TiledTensorType, error) {
	if tile.DType() != original.DType() {
		return TiledTensorType{}, p.errorf("tile element type %s differs from original element type %s",
			tile.DType(), original.DType())
	}
	return TiledTensorType{Tile: tile, Original: original}, nil
}

// parseOptionalAttrDict parses `{name = value, ...}` if present.
func (p *parser) parseOptionalAttrDict() (Attributes, error) {
	if !(p.peek().kind == tokPunct && p.peek().punct == '{') {
		return nil, nil
	}
	p.next()
	attrs := make(Attributes)
	if p.peek().kind == tokPunct && p.peek().punct == '}' {
		p.next()
		return attrs, nil
	}
	for {
		tok := p.next()
		if tok.kind != tokWord {
			return nil, p.errorf("expected an attribute name, got %q", tok)
		}
		name := tok.text
		if err := p.expectPunct('='); err != nil {
			return nil, err
		}
		value, err := p.parseAttrValue()
		if err != nil {
			return nil, err
		}
		attrs[name] = value
		tok = p.next()
		if tok.kind == tokPunct && tok.punct == ',' {
			continue
		}
		if tok.kind == tokPunct && tok.punct == '}' {
			return attrs, nil
		}
		return nil, p.errorf("expected \",\" or \"}\" in the attribute dictionary, got %q", tok)
	}
}

func (p *parser) parseAttrValue() (any, error) {
	tok := p.peek()
	switch {
	case tok.kind == tokString:
		p.next()
		return tok.text, nil
	case tok.kind == tokWord && tok.text == "true":
		p.next()
		return true, nil
	case tok.kind == tokWord && tok.text == "false":
		p.next()
		return false, nil
	default:
		return parseInt[int64](p)
	}
}

// splitShapedWord splits "4x8xbf16" into dimensions and the element-type
// token. Dimensions are the leading all-digit parts; whatever follows is the
// element type (possibly empty for dimension-only words like "8x8").
func splitShapedWord(word string) ([]int, string, error) {
	parts := strings.Split(word, "x")
	var dims []int
	i := 0
	for ; i < len(parts); i++ {
		v, err := strconv.Atoi(parts[i])
		if err != nil {
			break
		}
		if v <= 0 {
			return nil, "", fmt.Errorf("dimension %d in type %q must be positive", v, word)
		}
		dims = append(dims, v)
	}
	return dims, strings.Join(parts[i:], "x"), nil
}
