package version

import (
	"time"

	"github.com/randalmurphal/flowcanvas/pkg/flowcanvas/graph"
)

// Version is a numbered snapshot of the graph.
type Version struct {
	Number      int                `json:"number" yaml:"number"`
	Label       string             `json:"label,omitempty" yaml:"label,omitempty"`
	Author      string             `json:"author,omitempty" yaml:"author,omitempty"`
	Nodes       []graph.Node       `json:"nodes" yaml:"nodes"`
	Connections []graph.Connection `json:"connections" yaml:"connections"`
	CreatedAt   time.Time          `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" yaml:"updated_at"`
}

// Snapshot returns a copy of the version's graph.
func (v Version) Snapshot() graph.Snapshot {
	return graph.Snapshot{Nodes: v.Nodes, Connections: v.Connections}.Clone()
}

func newVersion(number int, s graph.Snapshot, author, label string, at time.Time) Version {
	return Version{
		Number:      number,
		Label:       label,
		Author:      author,
		Nodes:       s.Nodes,
		Connections: s.Connections,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// Stats are the workflow usage counters.
type Stats struct {
	TotalRuns      int        `json:"total_runs" yaml:"total_runs"`
	SuccessfulRuns int        `json:"successful_runs" yaml:"successful_runs"`
	SuccessRate    float64    `json:"success_rate" yaml:"success_rate"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty" yaml:"last_run_at,omitempty"`
}

// Metadata is the persisted record of a workflow.
type Metadata struct {
	ID             string    `json:"id" yaml:"id"`
	Namespace      string    `json:"namespace" yaml:"namespace"`
	Name           string    `json:"name" yaml:"name"`
	CurrentVersion int       `json:"current_version" yaml:"current_version"`
	Versions       []Version `json:"versions,omitempty" yaml:"versions,omitempty"`
	Stats          Stats     `json:"stats" yaml:"stats"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
}

// Latest returns the newest version.
func (m *Metadata) Latest() (Version, bool) {
	if len(m.Versions) == 0 {
		return Version{}, false
	}
	return m.Versions[len(m.Versions)-1], true
}

// Version finds a version by number.
func (m *Metadata) Version(n int) (Version, bool) {
	for _, v := range m.Versions {
		if v.Number == n {
			return v, true
		}
	}
	return Version{}, false
}

// clone copies the metadata. Version payloads are replaced wholesale on
// save, never edited, so they are shared.
func (m Metadata) clone() Metadata {
	c := m
	c.Versions = append([]Version(nil), m.Versions...)
	if m.Stats.LastRunAt != nil {
		t := *m.Stats.LastRunAt
		c.Stats.LastRunAt = &t
	}
	return c
}

// IndexEntry is one workflow in a tenant's index.
type IndexEntry struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
