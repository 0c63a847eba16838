package ast

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes an indented outline of the tree, one node per line.
func Fprint(w io.Writer, n *Node) {
	printNode(w, n, 0)
}

func printNode(w io.Writer, n *Node, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("-", depth)
	if n.Value != "" && len(n.Children) == 0 {
		fmt.Fprintf(w, "%s[%s]\n", indent, n.Value)
		return
	}
	fmt.Fprintf(w, "%s<%s>\n", indent, n.Type)
	for _, c := range n.Children {
		printNode(w, c, depth+1)
	}
}

// PrintScopes writes one line per symbol: name, type, scope, line and flags.
func PrintScopes(w io.Writer, root *Scope) {
	fmt.Fprintf(w, "%-5s %-8s %-5s %-5s %-5s %s\n", "NAME", "TYPE", "SCOPE", "LINE", "INIT", "USED")
	root.Walk(func(s *Scope) {
		for _, sym := range s.Ordered() {
			fmt.Fprintf(w, "%-5s %-8s %-5d %-5d %-5v %v\n", sym.Name, sym.Type, s.ID, sym.Tok.Line, sym.Initialized, sym.Used)
		}
	})
}
