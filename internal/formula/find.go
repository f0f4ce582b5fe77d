package formula

// FindVariables collects every variable referenced by the formula, in
// first-occurrence order with duplicates removed. Names are already
// lower-cased by the parser. Variables used as external_ref arguments are
// included; callers that only care about cell references subtract the
// synthetic pre-processor bindings.
func FindVariables(node *Node) []string {
	var out []string
	seen := make(map[string]bool)
	walk(node, func(n *Node) {
		if n.Kind == KindVariable && !seen[n.Name] {
			seen[n.Name] = true
			out = append(out, n.Name)
		}
	})
	return out
}

// FindExternalRefs collects the argument of every external_ref call: the
// variable name when the argument is a variable, or the literal text when
// it is a string literal. Duplicates are removed, first occurrence wins.
func FindExternalRefs(node *Node) []string {
	var out []string
	seen := make(map[string]bool)
	walk(node, func(n *Node) {
		if n.Kind != KindCall || n.Name != ExternalRefFunc || len(n.Args) != 1 {
			return
		}
		arg := n.Args[0]
		var ref string
		switch arg.Kind {
		case KindVariable:
			ref = arg.Name
		case KindString:
			ref = arg.Text
		default:
			return
		}
		if !seen[ref] {
			seen[ref] = true
			out = append(out, ref)
		}
	})
	return out
}

// walk visits every node of the tree in depth-first pre-order.
func walk(node *Node, visit func(*Node)) {
	if node == nil {
		return
	}
	visit(node)
	for _, child := range node.Args {
		walk(child, visit)
	}
}
