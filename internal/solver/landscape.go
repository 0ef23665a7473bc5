package solver

import "github.com/joshharrison/qsched/internal/qubo"

type neighbor struct {
	id   int
	coef float64
}

// landscape is a flip-friendly view of a QUBO: per-variable linear
// coefficients and adjacency lists, so single-bit energy deltas are O(degree)
// instead of a full term-list scan.
type landscape struct {
	n         int
	offset    float64
	linear    []float64
	neighbors [][]neighbor
}

func newLandscape(p *qubo.Problem) *landscape {
	l := &landscape{
		n:         p.NumVariables(),
		offset:    p.Offset,
		linear:    make([]float64, p.NumVariables()),
		neighbors: make([][]neighbor, p.NumVariables()),
	}
	for _, term := range p.Terms {
		switch len(term.IDs) {
		case 1:
			l.linear[term.IDs[0]] += term.Coefficient
		case 2:
			i, j := term.IDs[0], term.IDs[1]
			l.neighbors[i] = append(l.neighbors[i], neighbor{id: j, coef: term.Coefficient})
			l.neighbors[j] = append(l.neighbors[j], neighbor{id: i, coef: term.Coefficient})
		}
	}
	return l
}

func (l *landscape) energy(bits []int) float64 {
	e := l.offset
	for i := 0; i < l.n; i++ {
		if bits[i] != 1 {
			continue
		}
		e += l.linear[i]
		for _, nb := range l.neighbors[i] {
			if nb.id > i && bits[nb.id] == 1 {
				e += nb.coef
			}
		}
	}
	return e
}

// delta returns the energy change from flipping bit i.
func (l *landscape) delta(bits []int, i int) float64 {
	d := l.linear[i]
	for _, nb := range l.neighbors[i] {
		if bits[nb.id] == 1 {
			d += nb.coef
		}
	}
	if bits[i] == 1 {
		return -d
	}
	return d
}
