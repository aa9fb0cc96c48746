package brackets

import "fmt"

const (
	maxHeatSize = 4
	minHeatSize = 2
)

// HeatDistributor splits an ordered pool of pilot ids into heats.
type HeatDistributor interface {
	Distribute(pilotIDs []string) ([][]string, error)
}

// FourFirstDistributor fills heats of four in input order and spreads any
// remainder over heats of three:
//
//	N%4 == 3: one heat of three
//	N%4 == 2: two heats of three (2 pilots: one heat of two)
//	N%4 == 1: three heats of three (5 pilots: a three and a two)
//
// No heat is ever smaller than two or larger than four pilots.
type FourFirstDistributor struct{}

func NewFourFirstDistributor() HeatDistributor {
	return FourFirstDistributor{}
}

func (FourFirstDistributor) Distribute(pilotIDs []string) ([][]string, error) {
	n := len(pilotIDs)
	if n == 0 {
		return nil, nil
	}
	if n < minHeatSize {
		return nil, fmt.Errorf("%w: %d pilot(s)", ErrPoolTooSmall, n)
	}

	sizes := heatSizes(n)
	heats := make([][]string, 0, len(sizes))
	offset := 0
	for _, size := range sizes {
		heat := make([]string, size)
		copy(heat, pilotIDs[offset:offset+size])
		heats = append(heats, heat)
		offset += size
	}
	return heats, nil
}

func heatSizes(n int) []int {
	switch n {
	case 2, 3, 4:
		return []int{n}
	case 5:
		return []int{3, 2}
	}

	threes := 0
	switch n % maxHeatSize {
	case 1:
		threes = 3
	case 2:
		threes = 2
	case 3:
		threes = 1
	}
	fours := (n - 3*threes) / maxHeatSize

	sizes := make([]int, 0, fours+threes)
	for i := 0; i < fours; i++ {
		sizes = append(sizes, maxHeatSize)
	}
	for i := 0; i < threes; i++ {
		sizes = append(sizes, 3)
	}
	return sizes
}
