package topology

import (
	"fmt"
	"slices"
	"strings"
)

// Matrix is an immutable square adjacency matrix over node indices 0..N-1.
// Entry (i, j) = 1 means nodes i and j may peer directly. Diagonal entries
// are kept but carry no peering meaning.
type Matrix struct {
	rows [][]uint8
}

// Edge identifies an adjacency entry with I <= J.
type Edge struct {
	I int
	J int
}

func (e Edge) String() string {
	return fmt.Sprintf("(%d,%d)", e.I, e.J)
}

// New copies rows into a new matrix and validates it.
func New(rows [][]int) (*Matrix, error) {
	if err := validateRows(rows); err != nil {
		return nil, err
	}

	m := &Matrix{rows: make([][]uint8, len(rows))}
	for i, row := range rows {
		m.rows[i] = make([]uint8, len(row))
		for j, v := range row {
			m.rows[i][j] = uint8(v)
		}
	}

	return m, nil
}

// MustNew is like New but panics on invalid input.
func MustNew(rows [][]int) *Matrix {
	m, err := New(rows)
	if err != nil {
		panic(err)
	}

	return m
}

// Full returns an n-node matrix where every node may peer with every other.
func Full(n int) *Matrix {
	rows := make([][]int, n)
	for i := range rows {
		rows[i] = make([]int, n)
		for j := range rows[i] {
			rows[i][j] = 1
		}
	}

	return MustNew(rows)
}

// Validate checks that the matrix is square, symmetric and binary.
func (m *Matrix) Validate() error {
	return validateRows(m.Rows())
}

func validateRows(rows [][]int) error {
	n := len(rows)
	if n == 0 {
		return &InvalidTopologyError{Row: -1, Col: -1, Reason: "matrix is empty"}
	}

	for i, row := range rows {
		if len(row) != n {
			return &InvalidTopologyError{
				Row:    i,
				Col:    -1,
				Reason: fmt.Sprintf("row has %d entries, want %d", len(row), n),
			}
		}

		for j, v := range row {
			if v != 0 && v != 1 {
				return &InvalidTopologyError{
					Row:    i,
					Col:    j,
					Reason: fmt.Sprintf("entry %d is not 0 or 1", v),
				}
			}
		}
	}

	for i := range n {
		for j := i + 1; j < n; j++ {
			if rows[i][j] != rows[j][i] {
				return &InvalidTopologyError{Row: i, Col: j, Reason: "matrix is not symmetric"}
			}
		}
	}

	return nil
}

// Size returns N.
func (m *Matrix) Size() int {
	return len(m.rows)
}

// At returns entry (i, j).
func (m *Matrix) At(i, j int) int {
	return int(m.rows[i][j])
}

// Rows returns a deep copy of the matrix entries.
func (m *Matrix) Rows() [][]int {
	rows := make([][]int, len(m.rows))
	for i, row := range m.rows {
		rows[i] = make([]int, len(row))
		for j, v := range row {
			rows[i][j] = int(v)
		}
	}

	return rows
}

// Neighbors returns the nodes j != i that node i may peer with, ascending.
func (m *Matrix) Neighbors(i int) []int {
	neighbors := []int{}
	for j, v := range m.rows[i] {
		if j != i && v == 1 {
			neighbors = append(neighbors, j)
		}
	}

	return neighbors
}

// Degree returns len(Neighbors(i)).
func (m *Matrix) Degree(i int) int {
	return len(m.Neighbors(i))
}

// Difference returns every edge whose adjacency differs between m and other.
func (m *Matrix) Difference(other *Matrix) ([]Edge, error) {
	if m.Size() != other.Size() {
		return nil, &TopologySizeMismatchError{Want: m.Size(), Got: other.Size()}
	}

	edges := []Edge{}
	for i := range m.rows {
		for j := i; j < len(m.rows); j++ {
			if m.rows[i][j] != other.rows[i][j] {
				edges = append(edges, Edge{I: i, J: j})
			}
		}
	}

	return edges, nil
}

// Affected returns the nodes touched by the given edges, ascending.
func Affected(edges []Edge) []int {
	seen := make(map[int]bool)
	for _, e := range edges {
		seen[e.I] = true
		seen[e.J] = true
	}

	nodes := make([]int, 0, len(seen))
	for i := range seen {
		nodes = append(nodes, i)
	}
	slices.Sort(nodes)

	return nodes
}

// With returns a copy of m with entries (i, j) and (j, i) set to v.
func (m *Matrix) With(i, j, v int) (*Matrix, error) {
	rows := m.Rows()
	rows[i][j] = v
	rows[j][i] = v

	return New(rows)
}

// Sever returns a copy of m where node i keeps no edge to any other node.
// The diagonal entry is left untouched.
func (m *Matrix) Sever(i int) *Matrix {
	rows := m.Rows()
	for j := range rows {
		if j == i {
			continue
		}
		rows[i][j] = 0
		rows[j][i] = 0
	}

	return MustNew(rows)
}

// Equal reports whether both matrices have identical entries.
func (m *Matrix) Equal(other *Matrix) bool {
	if other == nil || m.Size() != other.Size() {
		return false
	}

	edges, _ := m.Difference(other)
	return len(edges) == 0
}

func (m *Matrix) String() string {
	var b strings.Builder
	for i, row := range m.rows {
		if i > 0 {
			b.WriteString(" / ")
		}
		for j, v := range row {
			if j > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", v)
		}
	}

	return b.String()
}
