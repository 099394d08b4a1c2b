package scanner

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Reason says why a session ended.
type Reason int

const (
	ReasonQuit Reason = iota + 1
	ReasonStartReached
	ReasonEndReached
	ReasonCancelled
	ReasonFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonQuit:
		return "quit"
	case ReasonStartReached:
		return "start_reached"
	case ReasonEndReached:
		return "end_reached"
	case ReasonCancelled:
		return "cancelled"
	case ReasonFailed:
		return "failed"
	}
	return "unknown"
}

// Summary describes a finished session. Tile counts are distinct tiles;
// Polls and BlankPolls count loop iterations, which repeat while a tile is
// shown. Candidate statistics use the latest count of every evaluated tile.
type Summary struct {
	Reason           Reason
	LastTile         int
	Polls            int
	BlankPolls       int
	Evaluations      int
	TilesVisited     int
	TilesBlank       int
	TilesEvaluated   int
	TilesWithCells   int
	TotalCandidates  int
	MeanCandidates   float64
	StdDevCandidates float64
}

func (s Summary) Fields() map[string]interface{} {
	return map[string]interface{}{
		"reason":           s.Reason.String(),
		"last_tile":        s.LastTile,
		"polls":            s.Polls,
		"blank_polls":      s.BlankPolls,
		"evaluations":      s.Evaluations,
		"tiles_visited":    s.TilesVisited,
		"tiles_blank":      s.TilesBlank,
		"tiles_evaluated":  s.TilesEvaluated,
		"tiles_with_cells": s.TilesWithCells,
		"total_candidates": s.TotalCandidates,
		"mean_candidates":  s.MeanCandidates,
		"stddev":           s.StdDevCandidates,
	}
}

type stats struct {
	polls       int
	blankPolls  int
	evaluations int
	blank       map[int]struct{}
	latest      map[int]int
}

func (st *stats) recordBlank(tile int) {
	if st.blank == nil {
		st.blank = make(map[int]struct{})
	}
	st.blankPolls++
	st.blank[tile] = struct{}{}
}

func (st *stats) record(tile, count int) {
	if st.latest == nil {
		st.latest = make(map[int]int)
	}
	st.evaluations++
	st.latest[tile] = count
}

func (st *stats) summarize(reason Reason, last int) Summary {
	sum := Summary{
		Reason:         reason,
		LastTile:       last,
		Polls:          st.polls,
		BlankPolls:     st.blankPolls,
		Evaluations:    st.evaluations,
		TilesBlank:     len(st.blank),
		TilesEvaluated: len(st.latest),
	}

	sum.TilesVisited = len(st.latest)
	for tile := range st.blank {
		if _, ok := st.latest[tile]; !ok {
			sum.TilesVisited++
		}
	}

	if len(st.latest) == 0 {
		return sum
	}

	keys := make([]int, 0, len(st.latest))
	for k := range st.latest {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	counts := make([]float64, len(keys))
	for i, k := range keys {
		n := st.latest[k]
		counts[i] = float64(n)
		sum.TotalCandidates += n
		if n > 0 {
			sum.TilesWithCells++
		}
	}

	sum.MeanCandidates = stat.Mean(counts, nil)
	if len(counts) > 1 {
		sum.StdDevCandidates = stat.StdDev(counts, nil)
	}
	if math.IsNaN(sum.StdDevCandidates) {
		sum.StdDevCandidates = 0
	}
	return sum
}
