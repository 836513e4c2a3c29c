// Package cluster partitions the templates recorded at one station into
// groups of mutually similar waveforms.
//
// Similarity is the normalized cross-correlation of pick-aligned traces.
// Groups are the connected components of the graph whose edges join templates
// with similarity at or above the threshold (single-link grouping), so
// raising the threshold only ever splits groups. Components with one member
// are singletons and are scanned with a plain correlation detector.
package cluster

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/logger"
	"github.com/tphakala/seisnet-go/internal/waveform"
)

const componentName = "cluster"

// Config controls similarity grouping.
type Config struct {
	Threshold float64       // minimum similarity for an edge, in [0,1]
	MaxLag    time.Duration // largest alignment shift tried; 0 compares at zero lag only
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if math.IsNaN(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		return errors.NewConfigError(componentName, "cluster threshold %v must be within [0,1]", c.Threshold)
	}
	if c.MaxLag < 0 {
		return errors.NewConfigError(componentName, "cluster max lag %v must not be negative", c.MaxLag)
	}
	return nil
}

// Member is one template's aligned waveform at the station being partitioned.
type Member struct {
	TemplateID string
	Waveform   *waveform.Waveform
}

// Cluster is a group of two or more similar templates at one station.
type Cluster struct {
	ID         string      // "<station>.c<NN>"
	Station    string      // station the cluster was built for
	Members    []string    // template ids, ascending
	Similarity [][]float64 // similarity submatrix in Members order
}

// Size returns the number of members.
func (c *Cluster) Size() int {
	return len(c.Members)
}

// Partition is the grouping of all templates at one station.
type Partition struct {
	Station    string
	Threshold  float64
	IDs        []string    // all template ids, ascending
	Matrix     [][]float64 // full similarity matrix in IDs order
	Clusters   []Cluster
	Singletons []string // template ids not grouped with any other
}

// ClusterOf returns the cluster containing templateID, or nil for singletons.
func (p *Partition) ClusterOf(templateID string) *Cluster {
	for i := range p.Clusters {
		if slices.Contains(p.Clusters[i].Members, templateID) {
			return &p.Clusters[i]
		}
	}
	return nil
}

// Engine builds partitions.
type Engine struct {
	cfg Config
	log logger.Logger
}

// NewEngine validates cfg and returns an Engine. A nil logger discards output.
func NewEngine(cfg Config, log logger.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, log: logger.OrDiscard(log).Module(componentName)}, nil
}

// Partition groups the members recorded at station. Members must share
// sample rate and length and contain no gaps.
func (e *Engine) Partition(ctx context.Context, station string, members []Member) (*Partition, error) {
	if len(members) == 0 {
		return nil, errors.Newf("no templates to partition at station %s", station).
			Component(componentName).
			Category(errors.CategoryAlgorithm).
			Context("station", station).
			Build()
	}

	sorted := slices.Clone(members)
	slices.SortFunc(sorted, func(a, b Member) int {
		return strings.Compare(a.TemplateID, b.TemplateID)
	})

	if err := checkMembers(station, sorted); err != nil {
		return nil, err
	}

	ids := make([]string, len(sorted))
	traces := make([][]float64, len(sorted))
	for i, m := range sorted {
		ids[i] = m.TemplateID
		traces[i] = m.Waveform.Samples
	}

	maxLag := waveform.Samples(e.cfg.MaxLag, sorted[0].Waveform.SampleRate)
	matrix, err := SimilarityMatrix(ctx, traces, maxLag)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Context("station", station).
			Build()
	}

	p := &Partition{
		Station:   station,
		Threshold: e.cfg.Threshold,
		IDs:       ids,
		Matrix:    matrix,
	}

	for _, group := range groupIndices(matrix, e.cfg.Threshold) {
		if len(group) == 1 {
			p.Singletons = append(p.Singletons, ids[group[0]])
			continue
		}
		c := Cluster{
			ID:         fmt.Sprintf("%s.c%02d", station, len(p.Clusters)+1),
			Station:    station,
			Members:    make([]string, len(group)),
			Similarity: make([][]float64, len(group)),
		}
		for i, gi := range group {
			c.Members[i] = ids[gi]
			c.Similarity[i] = make([]float64, len(group))
			for j, gj := range group {
				c.Similarity[i][j] = matrix[gi][gj]
			}
		}
		p.Clusters = append(p.Clusters, c)
	}

	e.log.Debug("partitioned templates",
		logger.String("station", station),
		logger.Int("templates", len(ids)),
		logger.Int("clusters", len(p.Clusters)),
		logger.Int("singletons", len(p.Singletons)))

	return p, nil
}

func checkMembers(station string, members []Member) error {
	first := members[0]
	for i, m := range members {
		if m.Waveform == nil || m.Waveform.Len() == 0 {
			return dataError(station, m.TemplateID, "template %s has no waveform at %s", m.TemplateID, station)
		}
		if i > 0 && m.TemplateID == members[i-1].TemplateID {
			return dataError(station, m.TemplateID, "duplicate template id %s at %s", m.TemplateID, station)
		}
		if m.Waveform.SampleRate != first.Waveform.SampleRate {
			return dataError(station, m.TemplateID, "template %s sample rate %v differs from %v",
				m.TemplateID, m.Waveform.SampleRate, first.Waveform.SampleRate)
		}
		if m.Waveform.Len() != first.Waveform.Len() {
			return dataError(station, m.TemplateID, "template %s has %d samples, expected %d",
				m.TemplateID, m.Waveform.Len(), first.Waveform.Len())
		}
		if waveform.HasGaps(m.Waveform.Samples) {
			return dataError(station, m.TemplateID, "template %s contains gaps at %s", m.TemplateID, station)
		}
	}
	return nil
}

func dataError(station, templateID, format string, args ...any) error {
	return errors.Newf(format, args...).
		Component(componentName).
		Category(errors.CategoryData).
		Context("station", station).
		Context("template", templateID).
		Build()
}

// GroupBySimilarity groups ids into the connected components of the graph
// with an edge wherever matrix[i][j] >= threshold. ids must be in the order
// of the matrix rows. Groups are returned ordered by their lowest id and each
// group is sorted ascending.
func GroupBySimilarity(ids []string, matrix [][]float64, threshold float64) [][]string {
	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return strings.Compare(ids[a], ids[b])
	})

	// permute into ascending id order so groupIndices yields canonical output
	sortedMatrix := make([][]float64, len(order))
	for i, oi := range order {
		sortedMatrix[i] = make([]float64, len(order))
		for j, oj := range order {
			sortedMatrix[i][j] = matrix[oi][oj]
		}
	}

	var groups [][]string
	for _, group := range groupIndices(sortedMatrix, threshold) {
		names := make([]string, len(group))
		for i, g := range group {
			names[i] = ids[order[g]]
		}
		groups = append(groups, names)
	}
	return groups
}

// groupIndices returns connected components of row indices, each ascending,
// ordered by their smallest index.
func groupIndices(matrix [][]float64, threshold float64) [][]int {
	n := len(matrix)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	for i := range n {
		for j := i + 1; j < n; j++ {
			if matrix[i][j] >= threshold || matrix[j][i] >= threshold {
				ri, rj := find(i), find(j)
				if ri != rj {
					// keep the smaller index as root
					parent[max(ri, rj)] = min(ri, rj)
				}
			}
		}
	}

	index := make(map[int]int)
	var groups [][]int
	for i := range n {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = len(groups)
			index[root] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
