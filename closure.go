package esbridge

import "github.com/jward/esbridge/internal/unit"

// Closure returns the local units reachable from roots through their
// dependencies, in first-visit depth-first order. Third-party units are
// left out and never descended into. Each unit appears once, cycles
// included.
func Closure(roots []*unit.Unit) []*unit.Unit {
	var (
		out     []*unit.Unit
		visited = make(map[*unit.Unit]bool)
		walk    func(u *unit.Unit)
	)
	walk = func(u *unit.Unit) {
		if u == nil || visited[u] {
			return
		}
		visited[u] = true
		if u.ThirdParty {
			return
		}
		out = append(out, u)
		for _, d := range u.Dependencies {
			walk(d)
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return out
}
