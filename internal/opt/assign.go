package opt

import (
	"math"
	"math/rand"

	"fieldroute/internal/geo"
	"fieldroute/internal/model"
)

// minSkillMatch keeps a team with no matching skills eligible at reduced weight.
const minSkillMatch = 0.1

// SkillMatch is the share of the job's requirements the team covers, floored
// at 0.1. Empty tag sets count as {"general"}.
func SkillMatch(team model.Team, job model.Job) float64 {
	req := model.Tags(job.Requirements)
	have := make(map[string]struct{})
	for _, s := range model.Tags(team.Skills) {
		have[s] = struct{}{}
	}
	hit := 0
	for _, r := range req {
		if _, ok := have[r]; ok {
			hit++
		}
	}
	return math.Max(minSkillMatch, float64(hit)/float64(len(req)))
}

// Proximity is 1/(1+d) for the team-to-job distance d in km.
func Proximity(team model.Team, job model.Job) float64 {
	return 1 / (1 + geo.Distance(team.Location.Coordinate, job.Location.Coordinate))
}

// AffinityMatrix scores every team (row) against every job (column). When
// noise is non-nil each cell is scaled by one uniform draw, taken row-major.
func AffinityMatrix(teams []model.Team, jobs []model.Job, noise *rand.Rand) [][]float64 {
	scores := make([][]float64, len(teams))
	for i, t := range teams {
		row := make([]float64, len(jobs))
		for j, jb := range jobs {
			w := 1.0
			if noise != nil {
				w = noise.Float64()
			}
			row[j] = w * SkillMatch(t, jb) * Proximity(t, jb)
		}
		scores[i] = row
	}
	return scores
}

// Pair is one committed team/job match.
type Pair struct {
	Team  int
	Job   int
	Score float64
}

// Collapse turns a score matrix into a one-to-one matching. Each round takes
// the highest positive score among free rows and columns, scanning row-major
// and keeping the first maximum. It stops when either side runs out or no
// positive score is left. Greedy, so not globally optimal.
func Collapse(scores [][]float64) []Pair {
	rows := len(scores)
	if rows == 0 {
		return nil
	}
	cols := 0
	for _, r := range scores {
		if len(r) > cols {
			cols = len(r)
		}
	}
	rowUsed := make([]bool, rows)
	colUsed := make([]bool, cols)
	var pairs []Pair
	for len(pairs) < rows && len(pairs) < cols {
		bi, bj, bs := -1, -1, 0.0
		for i, r := range scores {
			if rowUsed[i] {
				continue
			}
			for j, v := range r {
				if colUsed[j] {
					continue
				}
				if v > bs {
					bi, bj, bs = i, j, v
				}
			}
		}
		if bi < 0 {
			break
		}
		rowUsed[bi], colUsed[bj] = true, true
		pairs = append(pairs, Pair{Team: bi, Job: bj, Score: bs})
	}
	return pairs
}
