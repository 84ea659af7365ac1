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

// Package worker holds the worker registry: three disjoint sets (active,
// lost, temp) dual-indexed by id and address, plus the minting of new
// worker ids. None of it is journaled — a restart rebuilds the registry
// from scratch as workers re-register, exactly like the block registry's
// location data.
package worker

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tiercluster/blockmaster/proto"
)

// State is which of the three sets a worker currently occupies.
type State int

const (
	StateTemp State = iota
	StateActive
	StateLost
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateLost:
		return "lost"
	default:
		return "temp"
	}
}

// Info is one worker's registry entry.
type Info struct {
	mu sync.RWMutex

	id      uint64
	address proto.NetAddress
	state   State

	capacity map[proto.TierAlias]uint64
	used     map[proto.TierAlias]uint64
	blocks   map[uint64]struct{}
	toRemove map[uint64]struct{}

	lastContact time.Time
}

func newInfo(id uint64, addr proto.NetAddress) *Info {
	return &Info{
		id:       id,
		address:  addr,
		state:    StateTemp,
		capacity: make(map[proto.TierAlias]uint64),
		used:     make(map[proto.TierAlias]uint64),
		blocks:   make(map[uint64]struct{}),
		toRemove: make(map[uint64]struct{}),
	}
}

// ID returns the worker's id.
func (w *Info) ID() uint64 { return w.id }

// Address returns the worker's registered network address.
func (w *Info) Address() proto.NetAddress {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.address
}

func (w *Info) touch() {
	w.lastContact = time.Now()
}

// Touch refreshes the worker's last-contact timestamp under its own lock.
func (w *Info) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()
}

func (w *Info) View() proto.WorkerView {
	w.mu.RLock()
	defer w.mu.RUnlock()
	capacity := make(map[proto.TierAlias]uint64, len(w.capacity))
	for k, v := range w.capacity {
		capacity[k] = v
	}
	used := make(map[proto.TierAlias]uint64, len(w.used))
	for k, v := range w.used {
		used[k] = v
	}
	return proto.WorkerView{
		ID:              w.id,
		Address:         w.address,
		Capacity:        capacity,
		Used:            used,
		LastContactSecs: int64(time.Since(w.lastContact).Seconds()),
		State:           w.state.String(),
	}
}

func (w *Info) CapacityBytes() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var total uint64
	for _, v := range w.capacity {
		total += v
	}
	return total
}

func (w *Info) UsedBytes() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var total uint64
	for _, v := range w.used {
		total += v
	}
	return total
}

// Register resets capacity/used/blocks from a registration payload and
// returns the block ids the worker used to have that it no longer
// reports, so the caller can process them as removed.
func (w *Info) Register(capacity, used map[proto.TierAlias]uint64, blockIDs map[uint64]struct{}) (removed []uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.capacity = capacity
	w.used = used

	for id := range w.blocks {
		if _, ok := blockIDs[id]; !ok {
			removed = append(removed, id)
		}
	}
	w.blocks = blockIDs
	w.touch()
	return removed
}

func (w *Info) AddBlock(blockID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.blocks[blockID] = struct{}{}
}

func (w *Info) RemoveBlock(blockID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.blocks, blockID)
}

func (w *Info) BlockIDs() []uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]uint64, 0, len(w.blocks))
	for id := range w.blocks {
		ids = append(ids, id)
	}
	return ids
}

func (w *Info) MarkToRemove(blockID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.toRemove[blockID] = struct{}{}
}

func (w *Info) DrainToRemove() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]uint64, 0, len(w.toRemove))
	for id := range w.toRemove {
		ids = append(ids, id)
	}
	w.toRemove = make(map[uint64]struct{})
	return ids
}

func (w *Info) UpdateUsed(used map[proto.TierAlias]uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, v := range used {
		w.used[k] = v
	}
}

func (w *Info) LastContactAge() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return time.Since(w.lastContact)
}

func (w *Info) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// Registry is the worker master's worker table: three disjoint,
// dual-indexed sets plus the id-minting path.
type Registry struct {
	mu sync.RWMutex

	byID      map[uint64]*Info
	byAddress map[proto.NetAddress]*Info

	active map[uint64]struct{}
	lost   map[uint64]struct{}
	temp   map[uint64]struct{}

	mint singleflight.Group
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		byID:      make(map[uint64]*Info),
		byAddress: make(map[proto.NetAddress]*Info),
		active:    make(map[uint64]struct{}),
		lost:      make(map[uint64]struct{}),
		temp:      make(map[uint64]struct{}),
	}
}

// GetWorkerID returns addr's worker id, minting a fresh one into the
// temp set if addr has never been seen. Concurrent first-time calls for
// the same address are coalesced so only one new id is minted.
func (r *Registry) GetWorkerID(ctx context.Context, addr proto.NetAddress) (uint64, error) {
	r.mu.RLock()
	if w, ok := r.byAddress[addr]; ok {
		id := w.ID()
		r.mu.RUnlock()
		r.Promote(id)
		w.Touch()
		return id, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.mint.Do(addr.String(), func() (interface{}, error) {
		r.mu.Lock()
		if w, ok := r.byAddress[addr]; ok {
			id := w.ID()
			r.mu.Unlock()
			r.Promote(id)
			return id, nil
		}
		id := r.newRandomID()
		w := newInfo(id, addr)
		r.byID[id] = w
		r.byAddress[addr] = w
		r.temp[id] = struct{}{}
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func (r *Registry) newRandomID() uint64 {
	for {
		id := rand.Uint64() >> 1 // non-negative, mirrors IdUtils.getRandomNonNegativeLong
		if id == 0 {
			continue
		}
		if _, ok := r.byID[id]; !ok {
			return id
		}
	}
}

// Get returns a worker's entry regardless of which set it occupies, or
// nil if the id is unknown. Most callers want GetActive or
// GetActiveOrTemp instead; Get is for paths that operate on a worker id
// independent of its current set, such as removing it from a block's
// location list.
func (r *Registry) Get(id uint64) *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// GetActive returns id's entry if it currently occupies the active
// set, or nil otherwise (including if the id is unknown). This is the
// check commitBlock and workerHeartbeat require: a worker that has only
// minted an id, or that has been demoted to lost, is not "found".
func (r *Registry) GetActive(id uint64) *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.active[id]; !ok {
		return nil
	}
	return r.byID[id]
}

// GetActiveOrTemp returns id's entry if it occupies the active or temp
// set, or nil otherwise. workerRegister accepts either: a worker
// registering for the first time is still in temp (it called
// getWorkerId but never registered before), while re-registration finds
// it active. A lost worker is neither, so a stale register call does
// not silently reactivate it.
func (r *Registry) GetActiveOrTemp(id uint64) *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, active := r.active[id]
	_, temp := r.temp[id]
	if !active && !temp {
		return nil
	}
	return r.byID[id]
}

// Promote moves a temp or lost worker into the active set. It is a
// no-op if the worker is already active.
func (r *Registry) Promote(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[id]; ok {
		return
	}
	delete(r.temp, id)
	delete(r.lost, id)
	r.active[id] = struct{}{}
	if w, ok := r.byID[id]; ok {
		w.setState(StateActive)
	}
}

// MarkLost moves an active worker into the lost set.
func (r *Registry) MarkLost(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, id)
	r.lost[id] = struct{}{}
	if w, ok := r.byID[id]; ok {
		w.setState(StateLost)
	}
}

// ActiveIDs returns a snapshot of the active worker id set.
func (r *Registry) ActiveIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// LostIDs returns a snapshot of the lost worker id set.
func (r *Registry) LostIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint64, 0, len(r.lost))
	for id := range r.lost {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of active workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CapacityBytes sums capacity across active workers.
func (r *Registry) CapacityBytes() uint64 {
	var total uint64
	for _, id := range r.ActiveIDs() {
		if w := r.Get(id); w != nil {
			total += w.CapacityBytes()
		}
	}
	return total
}

// UsedBytes sums used bytes across active workers.
func (r *Registry) UsedBytes() uint64 {
	var total uint64
	for _, id := range r.ActiveIDs() {
		if w := r.Get(id); w != nil {
			total += w.UsedBytes()
		}
	}
	return total
}

// BytesByTier sums capacity or used bytes per tier across active
// workers, backing getTotalBytesOnTiers/getUsedBytesOnTiers.
func (r *Registry) BytesByTier(used bool) map[proto.TierAlias]uint64 {
	totals := make(map[proto.TierAlias]uint64)
	for _, id := range r.ActiveIDs() {
		w := r.Get(id)
		if w == nil {
			continue
		}
		w.mu.RLock()
		src := w.capacity
		if used {
			src = w.used
		}
		for tier, v := range src {
			totals[tier] += v
		}
		w.mu.RUnlock()
	}
	return totals
}
