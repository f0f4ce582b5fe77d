// Package formula implements the cell formula language: a JSON-serializable
// syntax tree, a parser built on the efp spreadsheet tokenizer, and a
// tree-walking evaluator with typed domain errors.
package formula

import (
	"encoding/json"
	"fmt"
)

// NodeKind identifies the variant of a syntax tree node.
type NodeKind string

const (
	KindNumber   NodeKind = "number"
	KindString   NodeKind = "string"
	KindVariable NodeKind = "variable"
	KindOperator NodeKind = "operator"
	KindCall     NodeKind = "call"
	KindGroup    NodeKind = "group"
)

// Node is a formula syntax tree node. Which fields are meaningful depends
// on Kind:
//
//   - KindNumber:   Number
//   - KindString:   Text
//   - KindVariable: Name (lower-cased)
//   - KindOperator: Name (one of + - * / ^), Args[0] and Args[1]
//   - KindCall:     Name (lower-cased function name), Args
//   - KindGroup:    Args[0] (transparent parenthesized child)
//
// Nodes round-trip through JSON so a parsed formula can be persisted on the
// cell row and reloaded during recalculation without re-parsing raw text.
type Node struct {
	Kind   NodeKind `json:"kind"`
	Number float64  `json:"number,omitempty"`
	Text   string   `json:"text,omitempty"`
	Name   string   `json:"name,omitempty"`
	Args   []*Node  `json:"args,omitempty"`
}

// MarshalNode serializes a syntax tree for storage.
func MarshalNode(n *Node) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal formula: %w", err)
	}
	return data, nil
}

// UnmarshalNode restores a syntax tree persisted by MarshalNode.
func UnmarshalNode(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal formula: %w", err)
	}
	return &n, nil
}
