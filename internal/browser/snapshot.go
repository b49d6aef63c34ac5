package browser

import (
	"strings"

	"github.com/chromedp/cdproto/domsnapshot"

	"imgpick/page"
)

// injectedAttr marks nodes the picker adds to the page. They and their
// subtrees are left out of snapshots.
const injectedAttr = "data-imgpick"

// Computed styles requested from DOMSnapshot, in this order.
var snapshotStyles = []string{"background-image", "pointer-events", "visibility"}

const (
	styleBackground = iota
	stylePointerEvents
	styleVisibility
)

const (
	nodeTypeElement  = 1
	nodeTypeDocument = 9
)

// documentFromSnapshot turns the main frame of a DOMSnapshot capture into a
// page.Document with viewport coordinates. Elements without a layout box
// are kept but marked hidden.
func documentFromSnapshot(docs []*domsnapshot.DocumentSnapshot, strs []string) *page.Document {
	if len(docs) == 0 || docs[0] == nil || docs[0].Nodes == nil {
		return &page.Document{}
	}
	snap := docs[0]
	str := func(i domsnapshot.StringIndex) string {
		if i < 0 || int(i) >= len(strs) {
			return ""
		}
		return strs[i]
	}
	tree := snap.Nodes
	count := len(tree.NodeName)
	nodes := make([]*page.Node, count)
	skip := make([]bool, count)

	for i := 0; i < count; i++ {
		parent := -1
		if i < len(tree.ParentIndex) {
			parent = int(tree.ParentIndex[i])
		}
		if parent >= 0 && parent < count && skip[parent] {
			skip[i] = true
			continue
		}
		if i < len(tree.NodeType) && tree.NodeType[i] != nodeTypeElement {
			continue
		}
		n := page.NewNode(str(tree.NodeName[i]))
		n.Hidden = true
		if i < len(tree.Attributes) {
			attrs := tree.Attributes[i]
			for j := 0; j+1 < len(attrs); j += 2 {
				n.Attrs[strings.ToLower(str(domsnapshot.StringIndex(attrs[j])))] = str(domsnapshot.StringIndex(attrs[j+1]))
			}
		}
		if _, ok := n.Attrs[injectedAttr]; ok {
			skip[i] = true
			continue
		}
		nodes[i] = n
	}

	if src := tree.CurrentSourceURL; src != nil {
		for j, idx := range src.Index {
			if int(idx) < count && nodes[idx] != nil && j < len(src.Value) {
				nodes[idx].Src = str(src.Value[j])
			}
		}
	}

	if layout := snap.Layout; layout != nil {
		for j, idx := range layout.NodeIndex {
			if int(idx) >= count || nodes[idx] == nil {
				continue
			}
			n := nodes[idx]
			if j < len(layout.Bounds) && len(layout.Bounds[j]) == 4 {
				b := layout.Bounds[j]
				n.Box = page.Rect{
					Left:   b[0] - snap.ScrollOffsetX,
					Top:    b[1] - snap.ScrollOffsetY,
					Width:  b[2],
					Height: b[3],
				}
				n.Hidden = false
			}
			if j < len(layout.Styles) {
				applyStyles(n, layout.Styles[j], str)
			}
			if j < len(layout.PaintOrders) {
				n.Order = int(layout.PaintOrders[j])
			}
		}
	}

	doc := &page.Document{URL: str(snap.DocumentURL)}
	for i, n := range nodes {
		if n == nil {
			continue
		}
		p := elementParent(tree, nodes, i)
		if p == nil {
			if doc.Root == nil {
				doc.Root = n
			}
			continue
		}
		p.AppendChild(n)
	}
	return doc
}

// elementParent returns the nearest element ancestor of node i. Shadow
// roots and other non-element nodes in between are skipped, so shadow
// content hangs off its host.
func elementParent(tree *domsnapshot.NodeTreeSnapshot, nodes []*page.Node, i int) *page.Node {
	seen := 0
	for p := parentOf(tree, i); p >= 0 && seen < len(nodes); p = parentOf(tree, p) {
		if nodes[p] != nil {
			return nodes[p]
		}
		if p < len(tree.NodeType) && tree.NodeType[p] == nodeTypeDocument {
			return nil
		}
		seen++
	}
	return nil
}

func parentOf(tree *domsnapshot.NodeTreeSnapshot, i int) int {
	if i < 0 || i >= len(tree.ParentIndex) {
		return -1
	}
	return int(tree.ParentIndex[i])
}

// applyStyles reads the snapshotStyles values of one layout node. The
// entries of an ArrayOfStrings are plain indexes into the string table.
func applyStyles(n *page.Node, styles domsnapshot.ArrayOfStrings, str func(domsnapshot.StringIndex) string) {
	get := func(k int) string {
		if k < len(styles) {
			return strings.TrimSpace(str(domsnapshot.StringIndex(styles[k])))
		}
		return ""
	}
	if bg := get(styleBackground); bg != "" {
		n.Background = bg
	}
	n.PointerEvents = get(stylePointerEvents)
	if v := get(styleVisibility); v == "hidden" || v == "collapse" {
		n.Hidden = true
	}
}
