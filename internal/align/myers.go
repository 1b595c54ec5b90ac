package align

// Op is a diff operation between the basic (old) and rich (new) streams.
type Op int

const (
	OpMatch Op = iota
	// OpRemove marks tokens present only in the basic transcript.
	OpRemove
	// OpAdd marks tokens present only in the rich transcript.
	OpAdd
)

func (o Op) String() string {
	switch o {
	case OpMatch:
		return "MATCH"
	case OpRemove:
		return "REMOVED"
	case OpAdd:
		return "ADDED"
	default:
		return "UNKNOWN"
	}
}

// Run is a maximal stretch of one operation. A and B are the starting
// indices into the old and new sequences.
type Run struct {
	Op    Op
	A     int
	B     int
	Count int
}

// diff computes a shortest edit script between sequences of length n and m
// using Myers' O(ND) algorithm. ok is false when more than maxEdits edits
// would be needed; maxEdits <= 0 means unbounded.
func diff(n, m int, eq func(i, j int) bool, maxEdits int) (runs []Run, ok bool) {
	prefix := 0
	for prefix < n && prefix < m && eq(prefix, prefix) {
		prefix++
	}
	suffix := 0
	for suffix < n-prefix && suffix < m-prefix && eq(n-1-suffix, m-1-suffix) {
		suffix++
	}

	innerN, innerM := n-prefix-suffix, m-prefix-suffix
	innerEq := func(i, j int) bool { return eq(prefix+i, prefix+j) }

	ops, ok := myers(innerN, innerM, innerEq, maxEdits)
	if !ok {
		return nil, false
	}

	var b runBuilder
	b.push(OpMatch, 0, 0, prefix)
	for _, e := range ops {
		b.push(e.op, prefix+e.a, prefix+e.b, 1)
	}
	b.push(OpMatch, n-suffix, m-suffix, suffix)
	return b.runs, true
}

type edit struct {
	op   Op
	a, b int
}

func myers(n, m int, eq func(i, j int) bool, maxEdits int) ([]edit, bool) {
	if n == 0 && m == 0 {
		return nil, true
	}

	max := n + m
	if maxEdits > 0 && maxEdits < max {
		max = maxEdits
	}

	offset := max + 1
	v := make([]int, 2*max+3)
	// trace[d] holds V for diagonals -d..d after round d.
	var trace [][]int

	for d := 0; d <= max; d++ {
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && eq(x, y) {
				x++
				y++
			}
			v[offset+k] = x

			if x >= n && y >= m {
				trace = append(trace, nil)
				return backtrack(trace, n, m), true
			}
		}

		snap := make([]int, 2*d+1)
		copy(snap, v[offset-d:offset+d+1])
		trace = append(trace, snap)
	}

	return nil, false
}

func backtrack(trace [][]int, n, m int) []edit {
	at := func(snap []int, k int) int {
		return snap[k+(len(snap)-1)/2]
	}

	var edits []edit
	x, y := n, m
	for d := len(trace) - 1; d > 0; d-- {
		prev := trace[d-1]
		k := x - y

		var prevK int
		if k == -d || (k != d && at(prev, k-1) < at(prev, k+1)) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := at(prev, prevK)
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			edits = append(edits, edit{op: OpMatch, a: x, b: y})
		}
		if x == prevX {
			y--
			edits = append(edits, edit{op: OpAdd, a: x, b: y})
		} else {
			x--
			edits = append(edits, edit{op: OpRemove, a: x, b: y})
		}
	}
	for x > 0 && y > 0 {
		x--
		y--
		edits = append(edits, edit{op: OpMatch, a: x, b: y})
	}

	for i, j := 0, len(edits)-1; i < j; i, j = i+1, j-1 {
		edits[i], edits[j] = edits[j], edits[i]
	}
	return edits
}

type runBuilder struct {
	runs []Run
}

func (rb *runBuilder) push(op Op, a, b, count int) {
	if count <= 0 {
		return
	}
	if n := len(rb.runs); n > 0 {
		last := &rb.runs[n-1]
		if last.Op == op && last.A+advanceA(op, last.Count) == a && last.B+advanceB(op, last.Count) == b {
			last.Count += count
			return
		}
	}
	rb.runs = append(rb.runs, Run{Op: op, A: a, B: b, Count: count})
}

func advanceA(op Op, count int) int {
	if op == OpAdd {
		return 0
	}
	return count
}

func advanceB(op Op, count int) int {
	if op == OpRemove {
		return 0
	}
	return count
}
