// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package block holds the registry of known blocks: their length and
// the set of (worker, tier) locations currently believed to hold a
// replica. A block's length is fixed once known; UnknownLength is a
// sentinel used while a block is mid-write and no writer has yet
// reported the final size.
package block

import (
	"sync"

	"github.com/tiercluster/blockmaster/proto"
)

// UnknownLength marks a block committed before its final size was
// known. A later commit with a concrete length upgrades it exactly
// once; lengths otherwise never change.
const UnknownLength = ^uint64(0)

type location struct {
	workerID uint64
	tier     proto.TierAlias
}

// Info is one block's registry entry. All access is through the owning
// Registry's per-block lock.
type Info struct {
	mu        sync.Mutex
	blockID   uint64
	length    uint64
	locations map[location]struct{}
}

func newInfo(blockID, length uint64) *Info {
	return &Info{blockID: blockID, length: length, locations: make(map[location]struct{})}
}

func (b *Info) view() proto.BlockInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	locs := make([]proto.BlockLocation, 0, len(b.locations))
	for l := range b.locations {
		locs = append(locs, proto.BlockLocation{WorkerID: l.workerID, Tier: l.tier})
	}
	return proto.BlockInfo{BlockID: b.blockID, Length: b.length, Locations: locs}
}

func (b *Info) addLocation(workerID uint64, tier proto.TierAlias) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locations[location{workerID, tier}] = struct{}{}
}

func (b *Info) removeWorker(workerID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for l := range b.locations {
		if l.workerID == workerID {
			delete(b.locations, l)
		}
	}
}

func (b *Info) workerIDs() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]uint64, 0, len(b.locations))
	seen := make(map[uint64]struct{})
	for l := range b.locations {
		if _, ok := seen[l.workerID]; !ok {
			seen[l.workerID] = struct{}{}
			ids = append(ids, l.workerID)
		}
	}
	return ids
}

func (b *Info) locationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.locations)
}

// Registry is the block master's block table. The zero value is not
// usable; construct with New.
type Registry struct {
	mu     sync.RWMutex
	blocks map[uint64]*Info
	lost   map[uint64]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{blocks: make(map[uint64]*Info), lost: make(map[uint64]struct{})}
}

// Get returns the block's entry, or nil if unknown. The returned Info's
// own lock still needs to be held for any read beyond a single View.
func (r *Registry) Get(blockID uint64) *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blocks[blockID]
}

// View returns the wire projection of a block, or ok=false if unknown.
func (r *Registry) View(blockID uint64) (proto.BlockInfo, bool) {
	b := r.Get(blockID)
	if b == nil {
		return proto.BlockInfo{}, false
	}
	return b.view(), true
}

// CommitKnown records that workerID holds a replica of blockID on tier,
// creating the block entry with length if it did not exist, or
// upgrading an UnknownLength entry to length. It returns whether a new
// block entry was created or an existing one's length was upgraded —
// either case needs a journal entry; a location-only update on an
// already-known block does not.
func (r *Registry) CommitKnown(blockID, length uint64, workerID uint64, tier proto.TierAlias) (needsJournal bool) {
	r.mu.Lock()
	b, ok := r.blocks[blockID]
	if !ok {
		b = newInfo(blockID, length)
		r.blocks[blockID] = b
		needsJournal = true
	}
	r.mu.Unlock()

	if ok {
		b.mu.Lock()
		if b.length != length && b.length == UnknownLength {
			b.length = length
			needsJournal = true
		}
		b.mu.Unlock()
	}

	b.addLocation(workerID, tier)

	r.mu.Lock()
	delete(r.lost, blockID)
	r.mu.Unlock()

	return needsJournal
}

// CommitInUFS records a block written directly to the backing store,
// with no worker location. It is a no-op if the block is already
// known, matching commitBlockInUFS's "already committed" short circuit.
func (r *Registry) CommitInUFS(blockID, length uint64) (created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocks[blockID]; ok {
		return false
	}
	r.blocks[blockID] = newInfo(blockID, length)
	return true
}

// RemoveWorkerFromBlock drops workerID from blockID's location set, and
// returns how many locations remain. A block with no error return means
// it is currently registered; ok is false if the block is unknown.
func (r *Registry) RemoveWorkerFromBlock(blockID, workerID uint64) (remaining int, ok bool) {
	b := r.Get(blockID)
	if b == nil {
		return 0, false
	}
	b.removeWorker(workerID)
	return b.locationCount(), true
}

// Remove deletes a block from the registry entirely (the "delete" path
// of removeBlocks) and returns the worker ids that held it, so the
// caller can signal each of those workers outside of any lock this
// registry holds. It also clears the block from the lost set so a
// later stale sighting cannot resurrect a dangling index.
func (r *Registry) Remove(blockID uint64) (workerIDs []uint64, existed bool) {
	r.mu.Lock()
	b, ok := r.blocks[blockID]
	if ok {
		delete(r.blocks, blockID)
		delete(r.lost, blockID)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return b.workerIDs(), true
}

// Free keeps the block's metadata but drops workerID's location, for a
// worker that no longer holds its copy (a heartbeat's removed list, or
// the worker being declared lost). It sends nothing to the worker. If
// the block has no locations left afterward, it is marked lost.
func (r *Registry) Free(blockID, workerID uint64) {
	remaining, ok := r.RemoveWorkerFromBlock(blockID, workerID)
	if ok && remaining == 0 {
		r.markLost(blockID)
	}
}

func (r *Registry) markLost(blockID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocks[blockID]; ok {
		r.lost[blockID] = struct{}{}
	}
}

// MarkLost records blockID as having no known live location, without
// touching its registry entry.
func (r *Registry) MarkLost(blockID uint64) {
	r.markLost(blockID)
}

// LostBlockIDs returns a snapshot of the lost-block set.
func (r *Registry) LostBlockIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.lost))
	for id := range r.lost {
		ids = append(ids, id)
	}
	return ids
}

// Validate reports which of the given block ids are no longer valid per
// keep, optionally deleting them (mirroring validateBlocks(repair)).
func (r *Registry) Validate(keep func(blockID uint64) bool, repair bool) []uint64 {
	r.mu.RLock()
	candidates := make([]uint64, 0, len(r.blocks))
	for id := range r.blocks {
		candidates = append(candidates, id)
	}
	r.mu.RUnlock()

	var invalid []uint64
	for _, id := range candidates {
		if !keep(id) {
			invalid = append(invalid, id)
		}
	}
	if repair {
		for _, id := range invalid {
			r.Remove(id)
		}
	}
	return invalid
}

// Apply is the journal.Sink half of this registry: it replays
// BlockInfoEntry and DeleteBlockEntry records. Location data is not
// journaled (it is rebuilt from worker registration/heartbeat, exactly
// as the worker registry's own replay does), so Apply only restores
// length and existence.
func (r *Registry) Apply(blockID, length uint64, deleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if deleted {
		delete(r.blocks, blockID)
		delete(r.lost, blockID)
		return
	}
	if b, ok := r.blocks[blockID]; ok {
		b.mu.Lock()
		b.length = length
		b.mu.Unlock()
		return
	}
	r.blocks[blockID] = newInfo(blockID, length)
}

// Count returns the number of registered blocks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks)
}
