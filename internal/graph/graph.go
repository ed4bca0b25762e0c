// Package graph models the supplier dependency DAG and propagates risk
// scores through it.
package graph

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/chainwatch/chainwatch/internal/models"
)

// Node types.
const (
	NodeCompany  = "company"
	NodeSupplier = "supplier"
)

// Node is one participant in the supply chain: the company, a catalog
// supplier, or a declared tier-2+ upstream.
type Node struct {
	ID             string
	Name           string
	Type           string
	Tier           int
	Country        string
	Supplies       []string
	Status         models.SupplierStatus
	IsSingleSource bool
	IsUpstream     bool
}

// SupplyGraph is a weighted directed graph whose edges flow from supplier
// to dependent. Immutable once built; rebuilds produce a new graph.
type SupplyGraph struct {
	g         *simple.WeightedDirectedGraph
	gids      map[string]int64
	nodes     map[int64]*Node
	byName    map[string]string
	materials map[[2]int64]string
	next      int64
}

// Build constructs the graph from the company profile and its supplier
// catalog. Each supplier points at the company with weight
// supply_volume_pct/100; declared upstreams point at their supplier.
func Build(company *models.CompanyProfile, suppliers []models.Supplier) *SupplyGraph {
	sg := &SupplyGraph{
		g:         simple.NewWeightedDirectedGraph(0, 0),
		gids:      make(map[string]int64),
		nodes:     make(map[int64]*Node),
		byName:    make(map[string]string),
		materials: make(map[[2]int64]string),
	}

	sg.addNode(&Node{
		ID:   company.ID,
		Name: company.CompanyName,
		Type: NodeCompany,
		Tier: 0,
	})

	for i := range suppliers {
		s := &suppliers[i]
		sg.addNode(&Node{
			ID:             s.ID,
			Name:           s.Name,
			Type:           NodeSupplier,
			Tier:           s.Tier,
			Country:        s.Country,
			Supplies:       s.Supplies,
			Status:         s.Status,
			IsSingleSource: s.IsSingleSource,
		})

		material := s.PrimaryMaterial()
		sg.addEdge(s.ID, company.ID, s.SupplyVolumePct/100.0, material)

		for _, up := range s.UpstreamSuppliers {
			upID := fmt.Sprintf("%s_upstream_%s", s.ID, up.Name)
			sg.addNode(&Node{
				ID:         upID,
				Name:       up.Name,
				Type:       NodeSupplier,
				Tier:       s.Tier + 1,
				Country:    up.Country,
				IsUpstream: true,
			})
			sg.addEdge(upID, s.ID, up.SupplyVolumePct/100.0, material)
		}
	}

	log.Info().
		Int("nodes", sg.NodeCount()).
		Int("edges", sg.EdgeCount()).
		Str("company", company.CompanyName).
		Msg("supply graph built")
	return sg
}

func (sg *SupplyGraph) addNode(n *Node) {
	if _, exists := sg.gids[n.ID]; exists {
		return
	}
	gid := sg.next
	sg.next++
	sg.g.AddNode(simple.Node(gid))
	sg.gids[n.ID] = gid
	sg.nodes[gid] = n
	sg.byName[strings.ToLower(n.Name)] = n.ID
}

func (sg *SupplyGraph) addEdge(fromID, toID string, weight float64, material string) {
	fu, ok1 := sg.gids[fromID]
	tu, ok2 := sg.gids[toID]
	if !ok1 || !ok2 || fu == tu {
		return
	}
	sg.g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(fu), T: simple.Node(tu), W: weight})
	sg.materials[[2]int64{fu, tu}] = material
}

// Node returns the node with the given external ID.
func (sg *SupplyGraph) Node(id string) (*Node, bool) {
	gid, ok := sg.gids[id]
	if !ok {
		return nil, false
	}
	return sg.nodes[gid], true
}

// NodeByName resolves a node case-insensitively by display name.
func (sg *SupplyGraph) NodeByName(name string) (*Node, bool) {
	id, ok := sg.byName[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return sg.Node(id)
}

// NodeCount returns the number of nodes.
func (sg *SupplyGraph) NodeCount() int {
	return sg.g.Nodes().Len()
}

// EdgeCount returns the number of edges.
func (sg *SupplyGraph) EdgeCount() int {
	return sg.g.Edges().Len()
}

// EdgeMaterial returns the material carried on the edge between two nodes.
func (sg *SupplyGraph) EdgeMaterial(fromID, toID string) (string, bool) {
	fu, ok1 := sg.gids[fromID]
	tu, ok2 := sg.gids[toID]
	if !ok1 || !ok2 {
		return "", false
	}
	m, ok := sg.materials[[2]int64{fu, tu}]
	return m, ok
}

// SingleSourceNodes lists suppliers flagged as the sole provider of a
// material. Used by the weekly report.
func (sg *SupplyGraph) SingleSourceNodes() []*Node {
	var out []*Node
	for _, n := range sg.nodes {
		if n.IsSingleSource {
			out = append(out, n)
		}
	}
	return out
}

// TierCounts returns supplier counts keyed by tier. The company (tier 0)
// is excluded.
func (sg *SupplyGraph) TierCounts() map[int]int {
	counts := make(map[int]int)
	for _, n := range sg.nodes {
		if n.Type == NodeSupplier {
			counts[n.Tier]++
		}
	}
	return counts
}
