package statestore

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// Record is the persisted state of one node.
type Record struct {
	NodeID  string            `json:"node_id"`
	Kind    string            `json:"kind"`
	Desired json.RawMessage   `json:"desired"`
	Outputs map[string]string `json:"outputs,omitempty"`

	// Sequence is the order the node was created in, relative to the other
	// records. Destruction walks records in descending sequence so teardown
	// reverses what was actually built, even where creation order was
	// ambiguous.
	Sequence  int       `json:"sequence"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State is the full persisted snapshot for one stack.
type State struct {
	// Serial increments on every save.
	Serial  int                `json:"serial"`
	Records map[string]*Record `json:"records"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Records: make(map[string]*Record)}
}

// Get returns the record for a node, or nil.
func (s *State) Get(nodeID string) *Record {
	return s.Records[nodeID]
}

// Put inserts or replaces a record, preserving an existing sequence number
// so re-applies keep the original creation order.
func (s *State) Put(rec *Record) {
	if existing, ok := s.Records[rec.NodeID]; ok && rec.Sequence == 0 {
		rec.Sequence = existing.Sequence
	}
	s.Records[rec.NodeID] = rec
}

// Delete removes a node's record.
func (s *State) Delete(nodeID string) {
	delete(s.Records, nodeID)
}

// NextSequence returns a sequence number after every recorded one.
func (s *State) NextSequence() int {
	max := 0
	for _, rec := range s.Records {
		if rec.Sequence > max {
			max = rec.Sequence
		}
	}
	return max + 1
}

// ByReverseSequence returns all records ordered by descending sequence,
// ties broken by node ID for determinism.
func (s *State) ByReverseSequence() []*Record {
	recs := make([]*Record, 0, len(s.Records))
	for _, rec := range s.Records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Sequence != recs[j].Sequence {
			return recs[i].Sequence > recs[j].Sequence
		}
		return recs[i].NodeID > recs[j].NodeID
	})
	return recs
}

// Store persists state snapshots. Load returns an empty state when nothing
// has been persisted yet.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}
