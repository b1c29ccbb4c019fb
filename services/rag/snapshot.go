package rag

import (
	"encoding/json"
	"fmt"

	"github.com/pleader-ai/pleader-backend/services"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version   int             `json:"version"`
	Dimension int             `json:"dimension"`
	Entries   []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	ChunkID  string        `json:"chunk_id"`
	Vector   []float32     `json:"vector"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Snapshot serialises every entry in insertion order
func (m *MemoryIndex) Snapshot() ([]byte, error) {
	m.mu.RLock()
	file := snapshotFile{
		Version:   snapshotVersion,
		Dimension: m.dimension,
		Entries:   make([]snapshotEntry, len(m.entries)),
	}
	for i := range m.entries {
		file.Entries[i] = snapshotEntry{
			ChunkID:  m.entries[i].id,
			Vector:   m.entries[i].vector,
			Metadata: m.entries[i].meta,
		}
	}
	data, err := json.Marshal(file)
	m.mu.RUnlock()

	if err != nil {
		return nil, fmt.Errorf("failed to encode index snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the index contents with a snapshot. The snapshot is fully
// validated before anything is replaced.
func (m *MemoryIndex) Restore(data []byte) error {
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to decode index snapshot: %w", err)
	}
	if file.Version != snapshotVersion {
		return fmt.Errorf("unsupported index snapshot version %d", file.Version)
	}
	if file.Dimension != m.dimension {
		return services.NewDimensionMismatchError(m.dimension, file.Dimension)
	}

	entries := make([]memoryEntry, 0, len(file.Entries))
	seen := make(map[string]struct{}, len(file.Entries))
	for _, se := range file.Entries {
		if _, dup := seen[se.ChunkID]; dup {
			return fmt.Errorf("index snapshot contains duplicate chunk %s", se.ChunkID)
		}
		seen[se.ChunkID] = struct{}{}

		entry, err := m.newEntry(se.ChunkID, se.Vector, se.Metadata)
		if err != nil {
			return fmt.Errorf("invalid snapshot entry %s: %w", se.ChunkID, err)
		}
		entries = append(entries, entry)
	}

	m.mu.Lock()
	m.resetLocked(entries)
	m.mu.Unlock()
	return nil
}
