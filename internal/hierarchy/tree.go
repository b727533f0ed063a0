// Package hierarchy groups located model elements by their ancestry and
// renders the result as an indented, occurrence-counted tree.
package hierarchy

import (
	"encoding/json"
	"sort"
)

// DefaultTitle labels the synthetic root of a report.
const DefaultTitle = "模型结构树"

// Node is one distinct name at one depth under a specific parent.
//
// Count is the number of inserted paths that visit the node, including the
// paths that terminate there.
type Node struct {
	Name     string
	Count    int
	Children map[string]*Node
}

// NewRoot returns an empty tree titled title.
func NewRoot(title string) *Node {
	return &Node{Name: title, Children: make(map[string]*Node)}
}

// Aggregate builds a fresh tree from paths. The result does not depend on
// the order of paths.
func Aggregate(title string, paths [][]string) *Node {
	root := NewRoot(title)
	for _, p := range paths {
		root.Insert(p)
	}
	return root
}

// Insert adds one path below n, creating missing nodes and incrementing the
// count of n and of every node on the path.
func (n *Node) Insert(path []string) {
	current := n
	current.Count++
	for _, part := range path {
		child, ok := current.Children[part]
		if !ok {
			child = &Node{Name: part, Children: make(map[string]*Node)}
			if current.Children == nil {
				current.Children = make(map[string]*Node)
			}
			current.Children[part] = child
		}
		current = child
		current.Count++
	}
}

// Child returns the direct child named name.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.Children[name]
	return c, ok
}

// Lookup follows path from n and returns the node it ends on.
func (n *Node) Lookup(path ...string) (*Node, bool) {
	current := n
	for _, part := range path {
		next, ok := current.Children[part]
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// SortedChildren returns the direct children ordered by name, comparing
// bytes (code point order for valid UTF-8).
func (n *Node) SortedChildren() []*Node {
	children := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, c)
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].Name < children[j].Name
	})
	return children
}

type jsonNode struct {
	Name     string  `json:"name"`
	Count    int     `json:"count"`
	Children []*Node `json:"children,omitempty"`
}

// MarshalJSON encodes the subtree with children in rendering order.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonNode{
		Name:     n.Name,
		Count:    n.Count,
		Children: n.SortedChildren(),
	})
}
