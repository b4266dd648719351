package book

// bidHeap is the buy-side max-heap: highest price first, earliest arrival
// first on a price tie. Wired through container/heap instead of a bare
// slice so peek/pop are real O(log n) heap operations.
type bidHeap []*Entry

func (h bidHeap) Len() int { return len(h) }

func (h bidHeap) Less(i, j int) bool {
	if h[i].Price == h[j].Price {
		return h[i].Seq < h[j].Seq // earliest-placed first
	}
	return h[i].Price > h[j].Price // highest buy price first
}

func (h bidHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *bidHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *bidHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
