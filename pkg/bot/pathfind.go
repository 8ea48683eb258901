package bot

import (
	"container/heap"

	"github.com/roguetalk/roguetalk/pkg/level"
)

// maxPathIterations caps the A* search so a degenerate walkability
// predicate cannot spin forever.
const maxPathIterations = 10000

type pathNode struct {
	f   int
	pos level.Pos
	g   int
}

type nodeHeap []pathNode

func (h nodeHeap) Len() int            { return len(h) }
func (h nodeHeap) Less(i, j int) bool  { return h[i].f < h[j].f }
func (h nodeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x interface{}) { *h = append(*h, x.(pathNode)) }
func (h *nodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// chebyshev is the admissible heuristic for 8-directional movement with
// uniform cost.
func chebyshev(a, b level.Pos) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

var neighborOffsets = [8][2]int{
	{1, 0}, {-1, 0}, {0, 1}, {0, -1},
	{1, 1}, {1, -1}, {-1, 1}, {-1, -1},
}

// FindPath runs A* over the level's walkability.
func FindPath(start, goal level.Pos, lv *level.Level) []level.Pos {
	return FindPathFunc(start, goal, lv.IsWalkable)
}

// FindPathFunc finds a shortest 8-directional path from start to goal,
// inclusive of both, under a caller-supplied walkability predicate.
// Diagonal steps require both orthogonal neighbours to be walkable.
// Returns nil when no path exists within the iteration cap.
func FindPathFunc(start, goal level.Pos, walkable func(x, y int) bool) []level.Pos {
	if start == goal {
		return []level.Pos{start}
	}
	if !walkable(goal.X, goal.Y) {
		return nil
	}

	open := &nodeHeap{{f: chebyshev(start, goal), pos: start, g: 0}}
	heap.Init(open)
	cameFrom := map[level.Pos]level.Pos{}
	gScores := map[level.Pos]int{start: 0}
	inOpen := map[level.Pos]bool{start: true}

	for iter := 0; open.Len() > 0 && iter < maxPathIterations; iter++ {
		current := heap.Pop(open).(pathNode).pos
		delete(inOpen, current)

		if current == goal {
			path := []level.Pos{current}
			for {
				prev, ok := cameFrom[current]
				if !ok {
					break
				}
				current = prev
				path = append(path, current)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}

		currentG := gScores[current]
		for _, off := range neighborOffsets {
			next := level.Pos{X: current.X + off[0], Y: current.Y + off[1]}
			if !walkable(next.X, next.Y) {
				continue
			}
			if off[0] != 0 && off[1] != 0 {
				// No cutting corners through walls.
				if !walkable(current.X+off[0], current.Y) || !walkable(current.X, current.Y+off[1]) {
					continue
				}
			}
			tentative := currentG + 1
			if g, seen := gScores[next]; !seen || tentative < g {
				cameFrom[next] = current
				gScores[next] = tentative
				if !inOpen[next] {
					heap.Push(open, pathNode{f: tentative + chebyshev(next, goal), pos: next, g: tentative})
					inOpen[next] = true
				}
			}
		}
	}
	return nil
}
