package ir

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// writeAttrs renders an optional attribute dictionary, ` {k = v, ...}` with
// sorted keys, or nothing when the dictionary is empty.
func writeAttrs(sb *strings.Builder, attrs Attributes) {
	if len(attrs) == 0 {
		return
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	sb.WriteString(" {")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(k)
		sb.WriteString(" = ")
		switch v := attrs[k].(type) {
		case string:
			sb.WriteString(strconv.Quote(v))
		case bool:
			sb.WriteString(strconv.FormatBool(v))
		case int64:
			sb.WriteString(strconv.FormatInt(v, 10))
		default:
			fmt.Fprintf(sb, "%v", v)
		}
	}
	sb.WriteByte('}')
}

// Module is an ordered list of ops sharing one value scope, the unit the
// textual IR round-trips through.
type Module struct {
	Ops []Op
}

// AssignResultNames gives every unnamed result a readable unique name, using
// each op's suggestion ("tiled_tensor", "extracted_tile", ...) when it has
// one and positional names otherwise.
func (m *Module) AssignResultNames() {
	taken := make(map[string]bool)
	for _, op := range m.Ops {
		if name := op.Result().Name; name != "" {
			taken[name] = true
		}
	}
	next := 0
	for _, op := range m.Ops {
		result := op.Result()
		if result.Name != "" {
			continue
		}
		base := op.ResultName()
		if base == "" {
			for taken[strconv.Itoa(next)] {
				next++
			}
			result.Name = strconv.Itoa(next)
			taken[result.Name] = true
			continue
		}
		name := base
		for suffix := 0; taken[name]; suffix++ {
			name = fmt.Sprintf("%s_%d", base, suffix)
		}
		result.Name = name
		taken[name] = true
	}
}

// String renders the module, one `%name = op` line per op. Unnamed results
// get names assigned first.
func (m *Module) String() string {
	m.AssignResultNames()
	var sb strings.Builder
	for _, op := range m.Ops {
		sb.WriteString(op.Result().String())
		sb.WriteString(" = ")
		sb.WriteString(op.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
