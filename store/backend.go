// Copyright (C) 2020-2026, judgenet Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/judgenet/node/consensus"
	"github.com/judgenet/node/internal/jerr"
)

// Snapshot is the persisted-state layout: the validator table and the
// retained chain, enough to resume without a full catchup.
type Snapshot struct {
	ValidatorTable map[string]consensus.Validator
	Chain          []consensus.Block
	LastSlot       uint64
}

// Backend persists and restores a Snapshot. The core consensus/chain
// packages depend only on this interface, never on a concrete backend,
// so storage can be swapped without touching consensus logic.
type Backend interface {
	Save(Snapshot) error
	Load() (Snapshot, bool, error)
}

// memoryBackend is the default backend: nothing survives a restart,
// but it never fails and needs no setup, useful for tests and
// single-process demos.
type memoryBackend struct {
	snap Snapshot
	has  bool
}

// NewMemoryBackend returns a Backend that holds its snapshot in
// process memory only.
func NewMemoryBackend() Backend {
	return &memoryBackend{}
}

func (m *memoryBackend) Save(s Snapshot) error {
	m.snap = s
	m.has = true
	return nil
}

func (m *memoryBackend) Load() (Snapshot, bool, error) {
	return m.snap, m.has, nil
}

// fileBackend persists the snapshot as a single JSON blob on disk, for
// local soak runs across process restarts. The file format is an
// opaque blob as far as the rest of the node is concerned.
type fileBackend struct {
	path string
}

// NewFileBackend returns a Backend that reads/writes a JSON snapshot
// at path.
func NewFileBackend(path string) Backend {
	return &fileBackend{path: path}
}

func (f *fileBackend) Save(s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return jerr.Wrap(jerr.StoreBackendUnavailable, "failed to marshal snapshot", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return jerr.Wrap(jerr.StoreBackendUnavailable, "failed to write snapshot file", err)
	}
	return nil
}

func (f *fileBackend) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, jerr.Wrap(jerr.StoreBackendUnavailable, "failed to read snapshot file", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, jerr.Wrap(jerr.StoreBackendUnavailable, "failed to unmarshal snapshot file", err)
	}
	return snap, true, nil
}

// remoteBackend is a placeholder for a networked store (object storage,
// a remote database) that this repo does not implement; it exists so
// callers can wire the Backend interface end-to-end and swap in a real
// implementation later without touching any other package.
type remoteBackend struct {
	endpoint string
}

// NewRemoteBackend returns a Backend stub targeting endpoint. Every
// call fails with store_backend_unavailable until a real client is
// wired in.
func NewRemoteBackend(endpoint string) Backend {
	return &remoteBackend{endpoint: endpoint}
}

func (r *remoteBackend) Save(Snapshot) error {
	return jerr.Wrap(jerr.StoreBackendUnavailable, "remote backend not implemented: "+r.endpoint, errors.New("not implemented"))
}

func (r *remoteBackend) Load() (Snapshot, bool, error) {
	return Snapshot{}, false, jerr.Wrap(jerr.StoreBackendUnavailable, "remote backend not implemented: "+r.endpoint, errors.New("not implemented"))
}
