package format

import (
	"sort"
	"strings"
)

// Node is one element of the virtual directory tree projected from a
// flat index. Directories are synthesized from path components; they
// exist only for navigation and carry rollup totals. The projection is
// read-only and never triggers decompression.
type Node struct {
	Name     string
	Path     string // full relative path, "" for the root
	Children []*Node
	Entry    *Entry // nil for directories

	// Rollups: for a file node these equal the entry's own sizes, for a
	// directory the sums over all files beneath it.
	Files    int
	CompSize uint64
	OrigSize uint64
}

// IsDir reports whether the node is a synthesized directory.
func (n *Node) IsDir() bool { return n.Entry == nil }

// Ratio returns compressed size as a fraction of original size, or 1
// when the subtree holds no bytes. STORE-only archives report 1.
func (n *Node) Ratio() float64 {
	if n.OrigSize == 0 {
		return 1
	}
	return float64(n.CompSize) / float64(n.OrigSize)
}

// Lookup descends the tree by relative path. Returns nil when no such
// file or directory was archived.
func (n *Node) Lookup(rel string) *Node {
	if rel == "" {
		return n
	}
	current := n
	for _, part := range strings.Split(rel, "/") {
		var next *Node
		for _, child := range current.Children {
			if child.Name == part {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		current = next
	}
	return current
}

// BuildTree projects a flat index into a directory tree. Intermediate
// directory nodes are synthesized; children are sorted by name with
// directories first, so rendering order is stable.
func BuildTree(idx Index) *Node {
	root := &Node{}
	for rel, entry := range idx {
		entry := entry
		parts := strings.Split(rel, "/")
		current := root
		for i, part := range parts {
			last := i == len(parts)-1
			var child *Node
			for _, c := range current.Children {
				if c.Name == part {
					child = c
					break
				}
			}
			if child == nil {
				child = &Node{
					Name: part,
					Path: strings.Join(parts[:i+1], "/"),
				}
				current.Children = append(current.Children, child)
			}
			if last {
				child.Entry = &entry
				child.Files = 1
				child.CompSize = entry.CompSize
				child.OrigSize = entry.OrigSize
			}
			current = child
		}
	}
	rollup(root)
	sortTree(root)
	return root
}

func rollup(n *Node) {
	for _, child := range n.Children {
		rollup(child)
		if n.Entry == nil {
			n.Files += child.Files
			n.CompSize += child.CompSize
			n.OrigSize += child.OrigSize
		}
	}
}

func sortTree(n *Node) {
	sort.Slice(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		return a.Name < b.Name
	})
	for _, child := range n.Children {
		sortTree(child)
	}
}
