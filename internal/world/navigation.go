package world

import (
	"container/heap"
	"fmt"
	"math"
)

// DefaultSearchBudget caps the number of nodes a single search may explore.
// It is an empirical ceiling, large enough for any sane map; exhausting it is
// reported the same way as an unreachable goal.
const DefaultSearchBudget = 50000

type neighborDelta struct {
	dx, dy int
	cost   float64
}

var neighborDeltas = [...]neighborDelta{
	{dx: 0, dy: -1, cost: 1},
	{dx: 1, dy: 0, cost: 1},
	{dx: 0, dy: 1, cost: 1},
	{dx: -1, dy: 0, cost: 1},
	{dx: 1, dy: -1, cost: math.Sqrt2},
	{dx: 1, dy: 1, cost: math.Sqrt2},
	{dx: -1, dy: 1, cost: math.Sqrt2},
	{dx: -1, dy: -1, cost: math.Sqrt2},
}

type pathNode struct {
	cell   Cell
	g      float64
	h      float64
	f      float64
	seq    int
	index  int
	parent *pathNode
}

// pathQueue is an array-backed binary heap. Ties on f prefer the most
// recently discovered node so repeated searches expand in the same order.
type pathQueue []*pathNode

func (pq pathQueue) Len() int { return len(pq) }

func (pq pathQueue) Less(i, j int) bool {
	if pq[i].f == pq[j].f {
		return pq[i].seq > pq[j].seq
	}
	return pq[i].f < pq[j].f
}

func (pq pathQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *pathQueue) Push(x any) {
	node := x.(*pathNode)
	node.index = len(*pq)
	*pq = append(*pq, node)
}

func (pq *pathQueue) Pop() any {
	old := *pq
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*pq = old[:n-1]
	return node
}

// Pathfinder runs A* searches over a Terrain. Every search allocates its own
// open and closed sets, so a single Pathfinder is safe to share between
// goroutines as long as the terrain is not mutated concurrently.
type Pathfinder struct {
	terrain Terrain
	budget  int
}

// NewPathfinder wraps the terrain with a search budget. A non-positive budget
// selects DefaultSearchBudget.
func NewPathfinder(terrain Terrain, budget int) *Pathfinder {
	if budget <= 0 {
		budget = DefaultSearchBudget
	}
	return &Pathfinder{terrain: terrain, budget: budget}
}

// FindPath computes the minimum-cost cell sequence from start to goal over
// the 8-connected grid, or nil when no walkable route exists. A nil result is
// a normal outcome, not an error. Start and goal must be in bounds; violating
// that precondition is a caller bug and panics.
func (p *Pathfinder) FindPath(start, goal Cell) []Cell {
	cols, rows := p.terrain.Dimensions()
	if !cellInBounds(start, cols, rows) || !cellInBounds(goal, cols, rows) {
		panic(fmt.Sprintf("world: path query out of bounds start=%+v goal=%+v grid=%dx%d", start, goal, cols, rows))
	}

	if start == goal {
		return []Cell{start}
	}

	goalTile := p.terrain.TileInfo(goal)
	if !goalTile.Walkable || goalTile.WalkSpeed <= 0 {
		return nil
	}

	key := func(c Cell) int { return c.GY*cols + c.GX }

	open := &pathQueue{}
	heap.Init(open)
	nodes := make(map[int]*pathNode)
	closed := make(map[int]struct{})

	seq := 0
	startNode := &pathNode{
		cell: start,
		g:    0,
		h:    euclidean(start, goal),
		seq:  seq,
	}
	startNode.f = startNode.h
	heap.Push(open, startNode)
	nodes[key(start)] = startNode

	explored := 0
	for open.Len() > 0 && explored < p.budget {
		explored++
		current := heap.Pop(open).(*pathNode)
		if current.cell == goal {
			return reconstructPath(current)
		}
		closed[key(current.cell)] = struct{}{}

		for _, delta := range neighborDeltas {
			next := Cell{GX: current.cell.GX + delta.dx, GY: current.cell.GY + delta.dy}
			if !cellInBounds(next, cols, rows) {
				continue
			}
			nextKey := key(next)
			if _, seen := closed[nextKey]; seen {
				continue
			}
			tile := p.terrain.TileInfo(next)
			if !tile.Walkable || tile.WalkSpeed <= 0 {
				continue
			}

			// Slower terrain costs more, so routes prefer faster tiles.
			stepCost := delta.cost / tile.WalkSpeed
			tentativeG := current.g + stepCost

			neighbor, exists := nodes[nextKey]
			if !exists {
				seq++
				neighbor = &pathNode{
					cell:   next,
					g:      tentativeG,
					h:      euclidean(next, goal),
					seq:    seq,
					parent: current,
				}
				neighbor.f = neighbor.g + neighbor.h
				nodes[nextKey] = neighbor
				heap.Push(open, neighbor)
			} else if tentativeG < neighbor.g {
				seq++
				neighbor.parent = current
				neighbor.g = tentativeG
				neighbor.f = neighbor.g + neighbor.h
				neighbor.seq = seq
				heap.Fix(open, neighbor.index)
			}
		}
	}

	return nil
}

func cellInBounds(c Cell, cols, rows int) bool {
	return c.GX >= 0 && c.GX < cols && c.GY >= 0 && c.GY < rows
}

// euclidean is the admissible heuristic for this cost model: the diagonal
// step cost equals the Euclidean diagonal distance.
func euclidean(a, b Cell) float64 {
	dx := float64(a.GX - b.GX)
	dy := float64(a.GY - b.GY)
	return math.Hypot(dx, dy)
}

func reconstructPath(end *pathNode) []Cell {
	path := make([]Cell, 0)
	for node := end; node != nil; node = node.parent {
		path = append(path, node.cell)
	}
	for i := 0; i < len(path)/2; i++ {
		j := len(path) - 1 - i
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// PathCost sums the step costs of a cell sequence under the terrain's cost
// model, mirroring what the search minimizes.
func PathCost(terrain Terrain, path []Cell) float64 {
	cost := 0.0
	for i := 1; i < len(path); i++ {
		prev := path[i-1]
		next := path[i]
		base := 1.0
		if prev.GX != next.GX && prev.GY != next.GY {
			base = math.Sqrt2
		}
		tile := terrain.TileInfo(next)
		if tile.WalkSpeed > 0 {
			cost += base / tile.WalkSpeed
		}
	}
	return cost
}
