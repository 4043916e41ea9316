// Package cql parses a textual filter language into predicate trees.
//
// The grammar covers comparison, BETWEEN, LIKE/ILIKE, IN and NULL
// predicates, arithmetic, AND/OR/NOT with the usual precedence, spatial
// predicates written as keyword calls (INTERSECTS, DWITHIN, BBOX, ...),
// WKT geometry literals and ENVELOPE shorthand:
//
//	INTERSECTS(geom, POINT (13.4 52.5)) AND name LIKE 'Berlin%'
//	DWITHIN(geom, POINT (0 0), 10, kilometers)
//	BBOX(geom, -10, 40, 10, 60)
package cql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom"

	"github.com/tobyn/gaiaq/filterir"
	"github.com/tobyn/gaiaq/geo"
)

// ParseError reports where and why parsing stopped.
type ParseError struct {
	Line    int
	Col     int
	Token   string
	Message string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%d:%d: %s near %q", e.Line, e.Col, e.Message, e.Token)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Message)
}

// IsParseError reports whether err is a ParseError.
func IsParseError(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}

// Parse compiles filter text to a predicate tree. Column references and
// operation names are not resolved here; the SQL compiler checks them
// against the schema and the operation catalog.
func Parse(input string) (filterir.Predicate, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, tokens: tokens}
	if p.at(tokenEOF) {
		return nil, p.errorAt(p.cur(), "empty filter")
	}
	pred, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	if !p.at(tokenEOF) {
		return nil, p.errorAt(p.cur(), "expected end of input")
	}
	return pred, nil
}

type parser struct {
	input  string
	tokens []token
	pos    int
}

func (p *parser) cur() token {
	return p.tokens[p.pos]
}

func (p *parser) peekNext() token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *parser) advance() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) at(kind tokenKind) bool {
	return p.cur().kind == kind
}

func (p *parser) expect(kind tokenKind) (token, error) {
	if !p.at(kind) {
		return token{}, p.errorAt(p.cur(), "expected %s", kind)
	}
	return p.advance(), nil
}

// matchKeyword consumes the next token when it is the given bare-word
// keyword, compared case-insensitively.
func (p *parser) matchKeyword(kw string) bool {
	tok := p.cur()
	if tok.kind == tokenIdent && strings.EqualFold(tok.text, kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.matchKeyword(kw) {
		return p.errorAt(p.cur(), "expected %s", kw)
	}
	return nil
}

func (p *parser) errorAt(tok token, format string, args ...any) *ParseError {
	return &ParseError{
		Line:    tok.line,
		Col:     tok.col,
		Token:   tok.text,
		Message: fmt.Sprintf(format, args...),
	}
}

func (p *parser) parseCondition() (filterir.Predicate, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (filterir.Predicate, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	preds := []filterir.Predicate{first}
	for p.matchKeyword("OR") {
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		preds = append(preds, next)
	}
	if len(preds) == 1 {
		return first, nil
	}
	return filterir.Or{Predicates: preds}, nil
}

func (p *parser) parseAnd() (filterir.Predicate, error) {
	first, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	preds := []filterir.Predicate{first}
	for p.matchKeyword("AND") {
		next, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		preds = append(preds, next)
	}
	if len(preds) == 1 {
		return first, nil
	}
	return filterir.And{Predicates: preds}, nil
}

func (p *parser) parseUnary() (filterir.Predicate, error) {
	if p.matchKeyword("NOT") {
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return filterir.Not{Predicate: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (filterir.Predicate, error) {
	if tok := p.cur(); tok.kind == tokenIdent && p.peekNext().kind == tokenLParen {
		switch kw := strings.ToUpper(tok.text); {
		case spatialPredicates[kw] != "":
			return p.parseSpatial(spatialPredicates[kw])
		case kw == "DWITHIN":
			return p.parseDistance("distance_lte")
		case kw == "BEYOND":
			return p.parseDistance("beyond")
		case kw == "RELATE":
			return p.parseRelate()
		case kw == "BBOX":
			return p.parseBBox()
		}
	}

	// A parenthesis may open a grouped condition or a grouped arithmetic
	// expression. Try the condition reading first and fall back.
	if p.at(tokenLParen) {
		mark := p.pos
		p.advance()
		cond, err := p.parseCondition()
		if err == nil {
			if _, err = p.expect(tokenRParen); err == nil {
				return cond, nil
			}
		}
		p.pos = mark
	}

	return p.parseComparison()
}

// spatialPredicates maps predicate keywords to catalog operation names.
var spatialPredicates = map[string]string{
	"EQUALS":     "equals",
	"DISJOINT":   "disjoint",
	"INTERSECTS": "intersects",
	"TOUCHES":    "touches",
	"CROSSES":    "crosses",
	"WITHIN":     "within",
	"CONTAINS":   "contains",
	"OVERLAPS":   "overlaps",
	"COVERS":     "covers",
	"COVEREDBY":  "coveredby",
}

func (p *parser) parseSpatial(op string) (filterir.Predicate, error) {
	p.advance()
	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenComma); err != nil {
		return nil, err
	}
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}
	return filterir.Spatial{Op: op, Left: left, Right: right}, nil
}

// parseDistance handles DWITHIN and BEYOND. The distance and its unit
// collapse to meters in the tree.
func (p *parser) parseDistance(op string) (filterir.Predicate, error) {
	p.advance()
	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenComma); err != nil {
		return nil, err
	}
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenComma); err != nil {
		return nil, err
	}
	distance, err := p.parseSignedNumber()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenComma); err != nil {
		return nil, err
	}
	factor, err := p.parseUnits()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}
	return filterir.Spatial{
		Op:    op,
		Left:  left,
		Right: right,
		Extra: []filterir.Expr{filterir.Literal{Value: distance * factor}},
	}, nil
}

// parseUnits reads a distance unit and returns its factor to meters.
func (p *parser) parseUnits() (float64, error) {
	tok, err := p.expect(tokenIdent)
	if err != nil {
		return 0, err
	}
	unit := strings.ToLower(tok.text)
	if unit == "statute" || unit == "nautical" {
		more, err := p.expect(tokenIdent)
		if err != nil {
			return 0, err
		}
		unit += " " + strings.ToLower(more.text)
	}
	switch unit {
	case "meters":
		return 1, nil
	case "kilometers":
		return 1000, nil
	case "feet":
		return 0.3048, nil
	case "statute miles":
		return 1609.344, nil
	case "nautical miles":
		return 1852, nil
	default:
		return 0, p.errorAt(tok, "unknown distance unit %q", unit)
	}
}

func (p *parser) parseRelate() (filterir.Predicate, error) {
	p.advance()
	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenComma); err != nil {
		return nil, err
	}
	right, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenComma); err != nil {
		return nil, err
	}
	pattern, err := p.expect(tokenString)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}
	return filterir.Spatial{
		Op:    "relate",
		Left:  left,
		Right: right,
		Extra: []filterir.Expr{filterir.Literal{Value: pattern.text}},
	}, nil
}

// parseBBox reads BBOX(attr, minx, miny, maxx, maxy [, 'EPSG:n']) and
// lowers it to a bounding-box test against the equivalent polygon.
func (p *parser) parseBBox() (filterir.Predicate, error) {
	p.advance()
	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	attr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	coords := make([]float64, 4)
	for i := range coords {
		if _, err := p.expect(tokenComma); err != nil {
			return nil, err
		}
		coords[i], err = p.parseSignedNumber()
		if err != nil {
			return nil, err
		}
	}
	var srid int32
	if p.at(tokenComma) {
		p.advance()
		crs, err := p.expect(tokenString)
		if err != nil {
			return nil, err
		}
		srid, err = parseCRS(crs.text)
		if err != nil {
			return nil, p.errorAt(crs, "%s", err)
		}
	}
	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}

	box, err := boundsPolygon(srid, coords[0], coords[1], coords[2], coords[3])
	if err != nil {
		return nil, p.errorAt(p.cur(), "%s", err)
	}
	return filterir.Spatial{
		Op:    "bbox",
		Left:  attr,
		Right: filterir.GeometryLiteral{Geom: box},
	}, nil
}

func parseCRS(s string) (int32, error) {
	rest, ok := strings.CutPrefix(strings.ToUpper(s), "EPSG:")
	if !ok {
		return 0, fmt.Errorf("unsupported crs %q, expected EPSG:n", s)
	}
	srid, err := strconv.ParseInt(rest, 10, 32)
	if err != nil || srid < 0 {
		return 0, fmt.Errorf("bad srid in crs %q", s)
	}
	return int32(srid), nil
}

func boundsPolygon(srid int32, minx, miny, maxx, maxy float64) (geo.Geometry, error) {
	ring := []geom.Coord{
		{minx, miny},
		{maxx, miny},
		{maxx, maxy},
		{minx, maxy},
		{minx, miny},
	}
	return geo.NewPolygon(srid, [][]geom.Coord{ring})
}

// parseComparison reads an expression followed by one of the comparison
// tails: an operator, BETWEEN, LIKE, ILIKE, IN or IS NULL.
func (p *parser) parseComparison() (filterir.Predicate, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	not := p.matchKeyword("NOT")
	switch {
	case p.matchKeyword("BETWEEN"):
		low, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return nil, err
		}
		high, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return filterir.Between{Expr: left, Low: low, High: high, Not: not}, nil

	case p.matchKeyword("LIKE"):
		pattern, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return filterir.Like{Expr: left, Pattern: pattern, Not: not}, nil

	case p.matchKeyword("ILIKE"):
		pattern, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return filterir.Like{Expr: left, Pattern: pattern, CaseInsensitive: true, Not: not}, nil

	case p.matchKeyword("IN"):
		if _, err := p.expect(tokenLParen); err != nil {
			return nil, err
		}
		var list []filterir.Expr
		for {
			item, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			list = append(list, item)
			if !p.at(tokenComma) {
				break
			}
			p.advance()
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return filterir.In{Expr: left, List: list, Not: not}, nil

	case not:
		return nil, p.errorAt(p.cur(), "expected BETWEEN, LIKE, ILIKE or IN after NOT")

	case p.matchKeyword("IS"):
		isNot := p.matchKeyword("NOT")
		if err := p.expectKeyword("NULL"); err != nil {
			return nil, err
		}
		return filterir.IsNull{Expr: left, Not: isNot}, nil

	case p.at(tokenOp) && comparisonOps[p.cur().text]:
		op := filterir.CompareOp(p.advance().text)
		right, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return filterir.Compare{Op: op, Left: left, Right: right}, nil

	default:
		return nil, p.errorAt(p.cur(), "expected a predicate")
	}
}

var comparisonOps = map[string]bool{
	"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
}

func (p *parser) parseExpr() (filterir.Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.at(tokenOp) && (p.cur().text == "+" || p.cur().text == "-") {
		op := filterir.ArithOp(p.advance().text)
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = filterir.Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (filterir.Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.at(tokenOp) && (p.cur().text == "*" || p.cur().text == "/") {
		op := filterir.ArithOp(p.advance().text)
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = filterir.Arith{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseFactor() (filterir.Expr, error) {
	tok := p.cur()
	switch tok.kind {
	case tokenNumber:
		p.advance()
		return numberLiteral(tok.text)
	case tokenString:
		p.advance()
		return filterir.Literal{Value: tok.text}, nil
	case tokenQuotedIdent:
		p.advance()
		return filterir.Column{Name: tok.text}, nil
	case tokenLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenRParen); err != nil {
			return nil, err
		}
		return inner, nil
	case tokenOp:
		if tok.text == "-" && p.peekNext().kind == tokenNumber {
			p.advance()
			num := p.advance()
			lit, err := numberLiteral(num.text)
			if err != nil {
				return nil, err
			}
			return negateLiteral(lit), nil
		}
		return nil, p.errorAt(tok, "expected an expression")
	case tokenIdent:
		switch kw := strings.ToUpper(tok.text); {
		case wktKeywords[kw]:
			return p.parseGeometry()
		case kw == "ENVELOPE":
			return p.parseEnvelope()
		case kw == "TRUE":
			p.advance()
			return filterir.Literal{Value: true}, nil
		case kw == "FALSE":
			p.advance()
			return filterir.Literal{Value: false}, nil
		case p.peekNext().kind == tokenLParen:
			return p.parseFunction()
		default:
			p.advance()
			return filterir.Column{Name: tok.text}, nil
		}
	default:
		return nil, p.errorAt(tok, "expected an expression")
	}
}

func numberLiteral(text string) (filterir.Literal, error) {
	if !strings.ContainsAny(text, ".eE") {
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return filterir.Literal{Value: v}, nil
		}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return filterir.Literal{}, fmt.Errorf("bad number %q", text)
	}
	return filterir.Literal{Value: v}, nil
}

func negateLiteral(lit filterir.Literal) filterir.Literal {
	switch v := lit.Value.(type) {
	case int64:
		return filterir.Literal{Value: -v}
	case float64:
		return filterir.Literal{Value: -v}
	default:
		return lit
	}
}

// parseFunction reads name(args...) into a catalog call. Names are not
// resolved here; unknown operations surface when the tree is compiled.
func (p *parser) parseFunction() (filterir.Expr, error) {
	name := p.advance()
	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	var args []filterir.Expr
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.at(tokenComma) {
			break
		}
		p.advance()
	}
	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}
	return filterir.FuncCall{Op: strings.ToLower(name.text), Args: args}, nil
}

var wktKeywords = map[string]bool{
	"POINT":              true,
	"LINESTRING":         true,
	"POLYGON":            true,
	"MULTIPOINT":         true,
	"MULTILINESTRING":    true,
	"MULTIPOLYGON":       true,
	"GEOMETRYCOLLECTION": true,
}

// parseGeometry consumes a WKT literal by walking tokens to the closing
// parenthesis of the outermost group, then hands the raw source slice to
// the geometry parser.
func (p *parser) parseGeometry() (filterir.Expr, error) {
	start := p.advance()

	// Optional dimension tag, as in POINT Z (1 2 3).
	if tok := p.cur(); tok.kind == tokenIdent {
		switch strings.ToUpper(tok.text) {
		case "Z", "M", "ZM":
			p.advance()
		}
	}

	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	depth := 1
	var last token
	for depth > 0 {
		tok := p.advance()
		switch tok.kind {
		case tokenLParen:
			depth++
		case tokenRParen:
			depth--
			last = tok
		case tokenEOF:
			return nil, p.errorAt(start, "unterminated geometry literal")
		}
	}

	// WKT carries no strings, so upper-casing the raw slice only touches
	// keywords and dimension tags.
	wkt := strings.ToUpper(p.input[start.off : last.off+1])
	g, err := geo.ParseWKT(wkt)
	if err != nil {
		return nil, p.errorAt(start, "bad geometry literal: %s", err)
	}
	return filterir.GeometryLiteral{Geom: g}, nil
}

// parseEnvelope reads ENVELOPE(minx, maxx, maxy, miny), with the corner
// order CQL inherited from WCS, into the equivalent polygon.
func (p *parser) parseEnvelope() (filterir.Expr, error) {
	p.advance()
	if _, err := p.expect(tokenLParen); err != nil {
		return nil, err
	}
	coords := make([]float64, 4)
	for i := range coords {
		if i > 0 {
			if _, err := p.expect(tokenComma); err != nil {
				return nil, err
			}
		}
		var err error
		coords[i], err = p.parseSignedNumber()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokenRParen); err != nil {
		return nil, err
	}

	minx, maxx, maxy, miny := coords[0], coords[1], coords[2], coords[3]
	box, err := boundsPolygon(0, minx, miny, maxx, maxy)
	if err != nil {
		return nil, p.errorAt(p.cur(), "%s", err)
	}
	return filterir.GeometryLiteral{Geom: box}, nil
}

func (p *parser) parseSignedNumber() (float64, error) {
	neg := false
	if p.at(tokenOp) && p.cur().text == "-" {
		p.advance()
		neg = true
	}
	tok, err := p.expect(tokenNumber)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(tok.text, 64)
	if err != nil {
		return 0, p.errorAt(tok, "bad number %q", tok.text)
	}
	if neg {
		v = -v
	}
	return v, nil
}
