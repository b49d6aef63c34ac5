package page

// MaxSpiderDepth bounds both the ancestor walk and descendant recursion.
const MaxSpiderDepth = 4096

// Spider finds the image most closely related to n when n itself carries
// none. At each ancestor level it checks every sibling of the current
// container in DOM order (the sibling, then its subtree), then the parent,
// and then moves one level up. It returns "" once the root is passed.
func Spider(n *Node) string {
	if n == nil {
		return ""
	}
	if u := ImageURL(n); u != "" {
		return u
	}
	visited := map[*Node]struct{}{}
	container := n
	for depth := 0; container != nil && depth < MaxSpiderDepth; depth++ {
		if _, seen := visited[container]; seen {
			return ""
		}
		visited[container] = struct{}{}

		parent := container.Parent
		if parent == nil {
			return ""
		}
		for _, sib := range parent.Children {
			if sib == container {
				continue
			}
			if u := ImageURL(sib); u != "" {
				return u
			}
			if u := searchDescendants(sib); u != "" {
				return u
			}
		}
		if u := ImageURL(parent); u != "" {
			return u
		}
		container = parent
	}
	return ""
}

// searchDescendants prefers the first <img> with a source anywhere below n
// and otherwise the first background image met in a depth-first walk that
// checks each child before descending into it.
func searchDescendants(n *Node) string {
	if img := firstImageTag(n); img != nil {
		return img.Src
	}
	return firstBackground(n, 0)
}

func firstImageTag(n *Node) *Node {
	if n == nil {
		return nil
	}
	type frame struct {
		node  *Node
		depth int
	}
	stack := make([]frame, 0, len(n.Children))
	for i := len(n.Children) - 1; i >= 0; i-- {
		stack = append(stack, frame{n.Children[i], 1})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if isImageTag(f.node) && f.node.Src != "" {
			return f.node
		}
		if f.depth >= MaxSpiderDepth {
			continue
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.depth + 1})
		}
	}
	return nil
}

func firstBackground(n *Node, depth int) string {
	if n == nil || depth >= MaxSpiderDepth {
		return ""
	}
	for _, c := range n.Children {
		if u := ImageURL(c); u != "" {
			return u
		}
		if u := firstBackground(c, depth+1); u != "" {
			return u
		}
	}
	return ""
}
