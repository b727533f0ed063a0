package hierarchy

import (
	"fmt"
	"io"
)

// CountUnit is the measure word printed after each node's count.
const CountUnit = "项"

const (
	branchMarker = "├── "
	lastMarker   = "└── "
	branchIndent = "│   "
	lastIndent   = "    "
)

// Render walks root depth-first and returns one line per node. The root is
// always drawn as a last sibling.
func Render(root *Node) []string {
	var lines []string
	root.render(&lines, "", true)
	return lines
}

// Write emits Render(root) to w, one line at a time.
func Write(w io.Writer, root *Node) error {
	for _, line := range Render(root) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) render(lines *[]string, indent string, last bool) {
	marker := branchMarker
	if last {
		marker = lastMarker
	}
	*lines = append(*lines, fmt.Sprintf("%s%s%s (%d %s)", indent, marker, n.Name, n.Count, CountUnit))

	if last {
		indent += lastIndent
	} else {
		indent += branchIndent
	}

	children := n.SortedChildren()
	for i, c := range children {
		c.render(lines, indent, i == len(children)-1)
	}
}
