package detect

// unionFind gives order-independent transitive closure over pairwise
// duplicate edges: whatever order edges arrive in, the final partition is
// the same.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// groups returns the members of each set, keyed by root.
func (uf *unionFind) groups() map[int][]int {
	g := make(map[int][]int)
	for i := range uf.parent {
		root := uf.find(i)
		g[root] = append(g[root], i)
	}
	return g
}
