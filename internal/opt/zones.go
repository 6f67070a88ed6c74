package opt

import (
	"math/rand"
	"slices"
)

// zoneGrid is the number of rows and columns the bounding box is split into.
const zoneGrid = 5

type zoneMember struct {
	route int
	loc   int
}

// customerZones buckets the served customers by grid cell. Cells are laid out
// row by row over the bounding box of all instance coordinates.
func customerZones(s *Solution) map[int][]zoneMember {
	minX, minY, maxX, maxY := s.inst.Bounds()
	w := (maxX - minX) / zoneGrid
	h := (maxY - minY) / zoneGrid
	cell := func(v, lo, size float64) int {
		if size <= 0 {
			return 0
		}
		return min(zoneGrid-1, int((v-lo)/size))
	}

	zones := make(map[int][]zoneMember)
	for ri, r := range s.routes {
		for _, v := range r.visits {
			if !s.inst.IsCustomer(v.Loc) {
				continue
			}
			l := s.inst.Locations[v.Loc]
			z := cell(l.Y, minY, h)*zoneGrid + cell(l.X, minX, w)
			zones[z] = append(zones[z], zoneMember{route: ri, loc: v.Loc})
		}
	}
	return zones
}

// pickZone draws one non-empty cell uniformly, or -1 if no customer is served.
func pickZone(zones map[int][]zoneMember, rng *rand.Rand) int {
	cells := make([]int, 0, len(zones))
	for z, m := range zones {
		if len(m) > 0 {
			cells = append(cells, z)
		}
	}
	if len(cells) == 0 {
		return -1
	}
	slices.Sort(cells)
	return cells[rng.Intn(len(cells))]
}
