// Copyright (C) 2021 Toitware ApS.
//
// This library is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; version
// 2.1 only.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// The license can be found in the file `LICENSE` in the top level
// directory of this repository.

package osgi

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Filter is an LDAP-style filter expression as used for environment
// filters of installable units, for example
// "(&(osgi.os=linux)(|(osgi.arch=x86_64)(osgi.arch=aarch64)))".
//
// Attribute names are case-insensitive. Values may contain '*' wildcards.
// "(attr=*)" tests for presence.
type Filter struct {
	text string
	root filterNode
}

type filterNode interface {
	match(props map[string]string) bool
}

type andNode []filterNode
type orNode []filterNode
type notNode struct{ child filterNode }

type compareOp int

const (
	opEqual compareOp = iota
	opApprox
	opGreaterEqual
	opLessEqual
	opPresent
	opSubstring
)

type compareNode struct {
	attr    string
	op      compareOp
	value   string
	pattern glob.Glob
}

func (n andNode) match(props map[string]string) bool {
	for _, child := range n {
		if !child.match(props) {
			return false
		}
	}
	return true
}

func (n orNode) match(props map[string]string) bool {
	for _, child := range n {
		if child.match(props) {
			return true
		}
	}
	return false
}

func (n notNode) match(props map[string]string) bool {
	return !n.child.match(props)
}

func lookup(props map[string]string, attr string) (string, bool) {
	if v, ok := props[attr]; ok {
		return v, true
	}
	for k, v := range props {
		if strings.EqualFold(k, attr) {
			return v, true
		}
	}
	return "", false
}

func (n compareNode) match(props map[string]string) bool {
	actual, ok := lookup(props, n.attr)
	if !ok {
		return false
	}
	switch n.op {
	case opPresent:
		return true
	case opEqual:
		return actual == n.value
	case opApprox:
		return strings.EqualFold(strings.Join(strings.Fields(actual), ""), strings.Join(strings.Fields(n.value), ""))
	case opSubstring:
		return n.pattern.Match(actual)
	case opGreaterEqual, opLessEqual:
		c := compareValues(actual, n.value)
		if n.op == opGreaterEqual {
			return c >= 0
		}
		return c <= 0
	}
	return false
}

// compareValues compares as versions if both sides are versions, and as
// strings otherwise.
func compareValues(a string, b string) int {
	va, errA := ParseVersion(a)
	vb, errB := ParseVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	return strings.Compare(a, b)
}

func ParseFilter(str string) (*Filter, error) {
	p := filterParser{input: strings.TrimSpace(str)}
	node, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.input) {
		return nil, p.errorf("unexpected trailing characters")
	}
	return &Filter{text: p.input, root: node}, nil
}

func MustParseFilter(str string) *Filter {
	f, err := ParseFilter(str)
	if err != nil {
		panic(err)
	}
	return f
}

// Match evaluates the filter against the given properties.
// A nil filter matches everything.
func (f *Filter) Match(props map[string]string) bool {
	if f == nil {
		return true
	}
	return f.root.match(props)
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.text
}

func (f *Filter) MarshalYAML() (interface{}, error) {
	return f.String(), nil
}

func (f *Filter) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}
	parsed, err := ParseFilter(str)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

type filterParser struct {
	input string
	pos   int
}

func (p *filterParser) errorf(format string, a ...interface{}) error {
	return fmt.Errorf("invalid filter '%s' at %d: %s", p.input, p.pos, fmt.Sprintf(format, a...))
}

func (p *filterParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *filterParser) expect(c byte) error {
	p.skipSpaces()
	if p.pos >= len(p.input) || p.input[p.pos] != c {
		return p.errorf("expected '%c'", c)
	}
	p.pos++
	return nil
}

func (p *filterParser) parseFilter() (filterNode, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return nil, p.errorf("unexpected end")
	}
	var node filterNode
	var err error
	switch p.input[p.pos] {
	case '&':
		p.pos++
		var children []filterNode
		children, err = p.parseList()
		node = andNode(children)
	case '|':
		p.pos++
		var children []filterNode
		children, err = p.parseList()
		node = orNode(children)
	case '!':
		p.pos++
		var child filterNode
		child, err = p.parseFilter()
		node = notNode{child: child}
	default:
		node, err = p.parseItem()
	}
	if err != nil {
		return nil, err
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *filterParser) parseList() ([]filterNode, error) {
	var result []filterNode
	for {
		p.skipSpaces()
		if p.pos >= len(p.input) || p.input[p.pos] != '(' {
			break
		}
		child, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		result = append(result, child)
	}
	if len(result) == 0 {
		return nil, p.errorf("empty filter list")
	}
	return result, nil
}

func (p *filterParser) parseItem() (filterNode, error) {
	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune("=<>~()", rune(p.input[p.pos])) {
		p.pos++
	}
	attr := strings.TrimSpace(p.input[start:p.pos])
	if attr == "" {
		return nil, p.errorf("missing attribute")
	}
	if p.pos >= len(p.input) {
		return nil, p.errorf("missing operator")
	}
	op := opEqual
	switch p.input[p.pos] {
	case '~':
		op = opApprox
		p.pos++
	case '>':
		op = opGreaterEqual
		p.pos++
	case '<':
		op = opLessEqual
		p.pos++
	}
	if p.pos >= len(p.input) || p.input[p.pos] != '=' {
		return nil, p.errorf("expected '='")
	}
	p.pos++
	valueStart := p.pos
	for p.pos < len(p.input) && p.input[p.pos] != ')' {
		if p.input[p.pos] == '\\' {
			p.pos++
		}
		p.pos++
	}
	if p.pos > len(p.input) {
		return nil, p.errorf("unterminated escape")
	}
	raw := p.input[valueStart:p.pos]
	node := compareNode{attr: attr, op: op}
	if op != opEqual {
		node.value = unescapeFilterValue(raw)
		return node, nil
	}
	if raw == "*" {
		node.op = opPresent
		return node, nil
	}
	if !hasUnescapedStar(raw) {
		node.value = unescapeFilterValue(raw)
		return node, nil
	}
	parts := splitUnescapedStar(raw)
	for i, part := range parts {
		parts[i] = glob.QuoteMeta(unescapeFilterValue(part))
	}
	pattern, err := glob.Compile(strings.Join(parts, "*"))
	if err != nil {
		return nil, p.errorf("bad wildcard value '%s': %v", raw, err)
	}
	node.op = opSubstring
	node.pattern = pattern
	node.value = raw
	return node, nil
}

func hasUnescapedStar(raw string) bool {
	return len(splitUnescapedStar(raw)) > 1
}

func splitUnescapedStar(raw string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '\\':
			i++
		case '*':
			parts = append(parts, raw[start:i])
			start = i + 1
		}
	}
	return append(parts, raw[start:])
}

func unescapeFilterValue(raw string) string {
	if !strings.Contains(raw, "\\") {
		return raw
	}
	sb := strings.Builder{}
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
		}
		sb.WriteByte(raw[i])
	}
	return sb.String()
}
