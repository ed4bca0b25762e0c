package graph

import (
	"math"

	"github.com/rs/zerolog/log"
)

// DefaultPropagationThreshold stops propagation once attenuated scores
// fall to or below this value.
const DefaultPropagationThreshold = 1.0

type queueItem struct {
	gid   int64
	score float64
}

// Propagate distributes a risk score from the origin node through its
// dependents. Each hop attenuates by edge weight and successor
// vulnerability (1.5 for single-source nodes, 1.0 otherwise):
//
//	s' = s * w * (0.5 + 0.5*vuln)
//
// BFS order with re-queue on improvement: when a higher-weight path
// reaches an already-scored node, the higher score wins. The returned map
// is keyed by external node ID and includes the origin.
func (sg *SupplyGraph) Propagate(originID string, initial, threshold float64) map[string]float64 {
	origin, ok := sg.gids[originID]
	if !ok {
		log.Warn().Str("node", originID).Msg("propagation origin not in graph")
		return nil
	}

	out := map[int64]float64{origin: initial}
	queue := []queueItem{{gid: origin, score: initial}}
	visited := make(map[int64]bool)

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		if visited[item.gid] {
			continue
		}
		visited[item.gid] = true

		succs := sg.g.From(item.gid)
		for succs.Next() {
			sid := succs.Node().ID()
			weight := sg.g.WeightedEdge(item.gid, sid).Weight()

			vuln := 1.0
			if sg.nodes[sid].IsSingleSource {
				vuln = 1.5
			}
			score := item.score * weight * (0.5 + 0.5*vuln)

			prev, seen := out[sid]
			if score > threshold && (!seen || prev < score) {
				out[sid] = round2(score)
				queue = append(queue, queueItem{gid: sid, score: score})
			}
		}
	}

	result := make(map[string]float64, len(out))
	for gid, score := range out {
		result[sg.nodes[gid].ID] = round2(score)
	}
	log.Info().
		Str("origin", originID).
		Float64("initial", initial).
		Int("affected", len(result)).
		Msg("risk propagation complete")
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
