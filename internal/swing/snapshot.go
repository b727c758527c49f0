package swing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wonny/swingdag/internal/contracts"
)

const (
	// SnapshotSchemaVersion is the layout version of the serialized state.
	SnapshotSchemaVersion = 1
	// AlgorithmVersion changes whenever detection or pruning rules change in a
	// way that makes old state disagree with a fresh replay.
	AlgorithmVersion = "swingdag-1"
)

// Snapshot is the lossless, versioned form of a detector's state.
type Snapshot struct {
	SchemaVersion    int    `json:"schema_version"`
	AlgorithmVersion string `json:"algorithm_version"`
	ConfigHash       string `json:"config_hash"`
	Config           Config `json:"config"`

	BarsProcessed int64          `json:"bars_processed"`
	PrevBar       *contracts.Bar `json:"prev_bar,omitempty"`
	NextLegSeq    uint64         `json:"next_leg_seq"`
	LastEventSeq  uint64         `json:"last_event_seq"`

	Legs         []Leg          `json:"legs"` // active legs, creation order
	Pending      PendingOrigins `json:"pending"`
	Distribution Distribution   `json:"distribution"`
}

// Snapshot captures the current state. A halted detector has no usable state.
func (d *Detector) Snapshot() (*Snapshot, error) {
	if d.halted != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetectorHalted, d.halted)
	}
	hash, err := d.cfg.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}
	st := d.state.clone()
	snap := &Snapshot{
		SchemaVersion:    SnapshotSchemaVersion,
		AlgorithmVersion: AlgorithmVersion,
		ConfigHash:       hash,
		Config:           d.cfg,
		BarsProcessed:    st.barsProcessed,
		PrevBar:          st.prevBar,
		NextLegSeq:       st.nextLegSeq,
		LastEventSeq:     d.events.next,
		Legs:             make([]Leg, 0, len(st.order)),
		Pending:          st.pending,
		Distribution:     st.dist,
	}
	for _, id := range st.order {
		snap.Legs = append(snap.Legs, *st.legs[id])
	}
	return snap, nil
}

// Marshal encodes the snapshot as JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a snapshot and rejects unknown schema versions.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var head struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if head.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedSnapshot, head.SchemaVersion)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var snap Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// CheckCompatible reports ErrStaleSnapshot when the snapshot was built with a
// different configuration or algorithm. The caller decides whether to rebuild.
func (s *Snapshot) CheckCompatible(cfg Config) error {
	if s.AlgorithmVersion != AlgorithmVersion {
		return fmt.Errorf("%w: algorithm %q, running %q", ErrStaleSnapshot, s.AlgorithmVersion, AlgorithmVersion)
	}
	hash, err := cfg.Hash()
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}
	if s.ConfigHash != hash {
		return fmt.Errorf("%w: config hash %.12s, running %.12s", ErrStaleSnapshot, s.ConfigHash, hash)
	}
	return nil
}

// Restore rebuilds a detector from a snapshot using the snapshot's own config.
func Restore(snap *Snapshot, log zerolog.Logger) (*Detector, error) {
	if snap == nil {
		return nil, fmt.Errorf("restore: nil snapshot")
	}
	if snap.SchemaVersion != SnapshotSchemaVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedSnapshot, snap.SchemaVersion)
	}
	if err := snap.Config.Validate(); err != nil {
		return nil, fmt.Errorf("restore: invalid config: %w", err)
	}
	if err := snap.CheckCompatible(snap.Config); err != nil {
		return nil, err
	}

	st := newState()
	st.barsProcessed = snap.BarsProcessed
	st.nextLegSeq = snap.NextLegSeq
	st.pending = snap.Pending.clone()
	st.dist = snap.Distribution.clone()
	if snap.PrevBar != nil {
		b := *snap.PrevBar
		st.prevBar = &b
	}
	for i := range snap.Legs {
		l := snap.Legs[i].clone()
		if _, dup := st.legs[l.ID]; dup {
			return nil, invariantf("snapshot holds leg %s twice", l.ID)
		}
		if l.Seq >= st.nextLegSeq {
			return nil, invariantf("leg %s seq %d not below next seq %d", l.ID, l.Seq, st.nextLegSeq)
		}
		st.add(&l)
	}
	if err := st.checkInvariants(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	return newDetector(snap.Config, log, st, snap.LastEventSeq), nil
}
