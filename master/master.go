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

// Package master composes the block registry, the worker registry and
// the container id generator behind the protocol handlers a worker or
// client actually calls.
package master

import (
	"context"
	"sort"

	"github.com/cubefs/cubefs/blobstore/common/trace"

	blockerrors "github.com/tiercluster/blockmaster/errors"
	"github.com/tiercluster/blockmaster/master/block"
	"github.com/tiercluster/blockmaster/master/evictstage"
	"github.com/tiercluster/blockmaster/master/idgen"
	"github.com/tiercluster/blockmaster/master/journal"
	"github.com/tiercluster/blockmaster/master/worker"
	"github.com/tiercluster/blockmaster/metrics"
	"github.com/tiercluster/blockmaster/proto"
)

// Engine is the block master's in-memory metadata state plus its
// durability contract. It is safe for concurrent use by many RPC
// handlers and the detector goroutine.
type Engine struct {
	cfg Config

	blocks  *block.Registry
	workers *worker.Registry
	idgen   *idgen.Generator
	evict   *evictstage.Stage
	jrnl    journal.Journal

	safeMode SafeMode

	cancel context.CancelFunc
}

// NewEngine constructs an Engine, replaying jrnl before returning so
// the caller never serves traffic against a half-loaded state.
func NewEngine(ctx context.Context, cfg Config, jrnl journal.Journal) (*Engine, error) {
	e := &Engine{
		cfg:      cfg,
		blocks:   block.New(),
		workers:  worker.New(),
		idgen:    idgen.NewGenerator(jrnl),
		evict:    evictstage.New(),
		jrnl:     jrnl,
		safeMode: AlwaysOff{},
	}

	if err := jrnl.Replay(ctx, e); err != nil {
		return nil, err
	}

	metrics.RegisterMasterGauges(e)

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.runDetector(runCtx)

	return e, nil
}

// SetSafeMode swaps the engine's safe-mode gate. Must be called before
// traffic starts; it is not itself synchronized against concurrent
// reads of InSafeMode.
func (e *Engine) SetSafeMode(sm SafeMode) {
	e.safeMode = sm
}

// Close stops the detector and the journal.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.jrnl.Close()
}

// Apply is the journal.Sink used during startup replay.
func (e *Engine) Apply(entry journal.Entry) error {
	switch entry.Type {
	case journal.EntryContainerIDGenerator:
		if entry.ContainerIDEntry == nil {
			return blockerrors.ErrUnexpectedJournalEntry
		}
		e.idgen.Apply(*entry.ContainerIDEntry)
	case journal.EntryBlockInfo:
		if entry.BlockInfoEntry == nil {
			return blockerrors.ErrUnexpectedJournalEntry
		}
		e.blocks.Apply(entry.BlockInfoEntry.BlockID, entry.BlockInfoEntry.Length, false)
	case journal.EntryDeleteBlock:
		if entry.DeleteBlockEntry == nil {
			return blockerrors.ErrUnexpectedJournalEntry
		}
		e.blocks.Apply(entry.DeleteBlockEntry.BlockID, 0, true)
	default:
		return blockerrors.ErrUnexpectedJournalEntry
	}
	return nil
}

// metrics.Source implementation.
func (e *Engine) CapacityBytes() uint64 { return e.workers.CapacityBytes() }
func (e *Engine) UsedBytes() uint64     { return e.workers.UsedBytes() }
func (e *Engine) WorkerCount() int      { return e.workers.Count() }

// GetNewContainerID mints the next container id (C3, via C4).
func (e *Engine) GetNewContainerID(ctx context.Context) (uint64, error) {
	return e.idgen.NewContainerID(ctx)
}

// GetWorkerID mints or returns addr's worker id.
func (e *Engine) GetWorkerID(ctx context.Context, addr proto.NetAddress) (uint64, error) {
	return e.workers.GetWorkerID(ctx, addr)
}

// WorkerRegister installs a worker's tier/capacity/block report and
// reconciles resident blocks against what was previously known,
// mirroring workerRegister.
func (e *Engine) WorkerRegister(ctx context.Context, req *proto.WorkerRegisterRequest) error {
	w := e.workers.GetActiveOrTemp(req.WorkerID)
	if w == nil {
		return blockerrors.ErrNoWorker
	}
	e.workers.Promote(req.WorkerID)

	blockIDs := make(map[uint64]struct{})
	for _, ids := range req.BlocksByTier {
		for _, id := range ids {
			blockIDs[id] = struct{}{}
		}
	}

	removed := w.Register(req.CapacityByTier, req.UsedByTier, blockIDs)
	e.processRemovedBlockIDs(w, removed)
	e.processAddedBlocks(w, req.BlocksByTier)
	e.processOrphanedBlocks(w)
	return nil
}

// WorkerHeartbeat applies a heartbeat's deltas and returns the command
// the worker should act on next, mirroring workerHeartbeat. Blocks the
// worker reports in EvictedBlockIDs are staged for later eviction
// bookkeeping rather than rolled into the reply immediately — see
// evictstage.
func (e *Engine) WorkerHeartbeat(ctx context.Context, req *proto.WorkerHeartbeatRequest) (proto.Command, error) {
	w := e.workers.GetActive(req.WorkerID)
	if w == nil {
		span := trace.SpanFromContextSafe(ctx)
		span.Warnf("could not find worker id %d for heartbeat", req.WorkerID)
		return proto.Command{Type: proto.CommandRegister}, nil
	}

	e.evict.Add(req.WorkerID, req.EvictedBlockIDs)
	e.processRemovedBlockIDs(w, req.RemovedBlockIDs)
	e.processAddedBlocks(w, req.AddedByTier)

	w.UpdateUsed(req.UsedByTier)
	w.Touch()

	toRemove := w.DrainToRemove()
	if len(toRemove) == 0 {
		return proto.Command{Type: proto.CommandNothing}, nil
	}
	return proto.Command{Type: proto.CommandFree, BlockIDs: toRemove}, nil
}

func (e *Engine) processRemovedBlockIDs(w *worker.Info, removedBlockIDs []uint64) {
	for _, blockID := range removedBlockIDs {
		b := e.blocks.Get(blockID)
		if b == nil {
			w.RemoveBlock(blockID)
			continue
		}
		w.RemoveBlock(blockID)
		e.blocks.Free(blockID, w.ID())
	}
}

func (e *Engine) processAddedBlocks(w *worker.Info, addedByTier map[proto.TierAlias][]uint64) {
	for tier, ids := range addedByTier {
		for _, blockID := range ids {
			if e.blocks.Get(blockID) == nil {
				continue
			}
			w.AddBlock(blockID)
			e.blocks.CommitKnown(blockID, block.UnknownLength, w.ID(), tier)
		}
	}
}

func (e *Engine) processOrphanedBlocks(w *worker.Info) {
	for _, blockID := range w.BlockIDs() {
		if e.blocks.Get(blockID) == nil {
			w.MarkToRemove(blockID)
		}
	}
}

// CommitBlock records that a worker holds a block of a given length on
// a tier, mirroring commitBlock.
func (e *Engine) CommitBlock(ctx context.Context, req *proto.CommitBlockRequest) error {
	w := e.workers.GetActive(req.WorkerID)
	if w == nil {
		return blockerrors.ErrNoWorker
	}

	jctx := e.jrnl.NewContext(ctx)

	needsJournal := e.blocks.CommitKnown(req.BlockID, req.Length, req.WorkerID, req.Tier)
	if needsJournal {
		jctx.Append(journal.Entry{
			Type:           journal.EntryBlockInfo,
			BlockInfoEntry: &journal.BlockInfoEntry{BlockID: req.BlockID, Length: req.Length},
		})
	}
	if err := jctx.Commit(); err != nil {
		return blockerrors.ErrUnavailable
	}

	w.AddBlock(req.BlockID)
	w.UpdateUsed(map[proto.TierAlias]uint64{req.Tier: req.UsedBytesOnTier})
	w.Touch()
	return nil
}

// CommitBlockInUFS records a block written directly to the backing
// store, with no worker location, mirroring commitBlockInUFS.
func (e *Engine) CommitBlockInUFS(ctx context.Context, req *proto.CommitBlockInUFSRequest) error {
	jctx := e.jrnl.NewContext(ctx)
	created := e.blocks.CommitInUFS(req.BlockID, req.Length)
	if created {
		jctx.Append(journal.Entry{
			Type:           journal.EntryBlockInfo,
			BlockInfoEntry: &journal.BlockInfoEntry{BlockID: req.BlockID, Length: req.Length},
		})
	}
	if err := jctx.Commit(); err != nil {
		return blockerrors.ErrUnavailable
	}
	return nil
}

// RemoveBlocks deletes or frees a batch of blocks, mirroring
// removeBlocks. The worker-side signal is applied after the block lock
// is released, inverting the usual worker-before-block order: the
// block is already unreachable by the time workers are notified, so
// there is no composite invariant left to protect.
func (e *Engine) RemoveBlocks(ctx context.Context, req *proto.RemoveBlocksRequest) error {
	jctx := e.jrnl.NewContext(ctx)

	for _, blockID := range req.BlockIDs {
		var workerIDs []uint64
		if req.Delete {
			ids, existed := e.blocks.Remove(blockID)
			if !existed {
				continue
			}
			workerIDs = ids
			jctx.Append(journal.Entry{
				Type:             journal.EntryDeleteBlock,
				DeleteBlockEntry: &journal.DeleteBlockEntry{BlockID: blockID},
			})
		} else {
			info, ok := e.blocks.View(blockID)
			if !ok {
				continue
			}
			for _, l := range info.Locations {
				workerIDs = append(workerIDs, l.WorkerID)
			}
		}
		for _, workerID := range workerIDs {
			if w := e.workers.Get(workerID); w != nil {
				w.MarkToRemove(blockID)
			}
		}
	}

	if err := jctx.Commit(); err != nil {
		return blockerrors.ErrUnavailable
	}
	return nil
}

// ValidateBlocks reports (and optionally deletes) blocks for which
// keep returns false, mirroring validateBlocks.
func (e *Engine) ValidateBlocks(ctx context.Context, keep func(blockID uint64) bool, repair bool) ([]uint64, error) {
	invalid := e.blocks.Validate(keep, false)
	if repair && len(invalid) > 0 {
		if err := e.RemoveBlocks(ctx, &proto.RemoveBlocksRequest{BlockIDs: invalid, Delete: true}); err != nil {
			return invalid, err
		}
	}
	return invalid, nil
}

// GetBlockInfo looks up one block, mirroring getBlockInfo.
func (e *Engine) GetBlockInfo(blockID uint64) (proto.BlockInfo, error) {
	if e.safeMode.InSafeMode() {
		return proto.BlockInfo{}, blockerrors.ErrUnavailable
	}
	info, ok := e.blocks.View(blockID)
	if !ok {
		return proto.BlockInfo{}, blockerrors.ErrBlockNotFound
	}
	e.sortLocations(info.Locations)
	return info, nil
}

// GetBlockInfoList looks up a batch, silently skipping unknown ids,
// mirroring getBlockInfoList.
func (e *Engine) GetBlockInfoList(blockIDs []uint64) ([]proto.BlockInfo, error) {
	if e.safeMode.InSafeMode() {
		return nil, blockerrors.ErrUnavailable
	}
	out := make([]proto.BlockInfo, 0, len(blockIDs))
	for _, id := range blockIDs {
		if info, ok := e.blocks.View(id); ok {
			e.sortLocations(info.Locations)
			out = append(out, info)
		}
	}
	return out, nil
}

func (e *Engine) sortLocations(locs []proto.BlockLocation) {
	sort.SliceStable(locs, func(i, j int) bool {
		return e.cfg.TierOrdinal(locs[i].Tier) < e.cfg.TierOrdinal(locs[j].Tier)
	})
}

// ReportLostBlocks bulk-adds to the lost-blocks set, mirroring
// reportLostBlocks.
func (e *Engine) ReportLostBlocks(blockIDs []uint64) {
	for _, id := range blockIDs {
		e.blocks.MarkLost(id)
	}
}

// GetWorkerInfoList lists active workers, mirroring getWorkerInfoList.
func (e *Engine) GetWorkerInfoList() ([]proto.WorkerView, error) {
	if e.safeMode.InSafeMode() {
		return nil, blockerrors.ErrUnavailable
	}
	ids := e.workers.ActiveIDs()
	out := make([]proto.WorkerView, 0, len(ids))
	for _, id := range ids {
		if w := e.workers.Get(id); w != nil {
			out = append(out, w.View())
		}
	}
	return out, nil
}

// GetLostWorkersInfoList lists lost workers sorted ascending by
// seconds since last contact, mirroring getLostWorkersInfoList.
func (e *Engine) GetLostWorkersInfoList() []proto.WorkerView {
	ids := e.workers.LostIDs()
	out := make([]proto.WorkerView, 0, len(ids))
	for _, id := range ids {
		if w := e.workers.Get(id); w != nil {
			out = append(out, w.View())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastContactSecs < out[j].LastContactSecs })
	return out
}

// GetCapacityBytes sums active worker capacity.
func (e *Engine) GetCapacityBytes() uint64 { return e.workers.CapacityBytes() }

// GetUsedBytes sums active worker usage.
func (e *Engine) GetUsedBytes() uint64 { return e.workers.UsedBytes() }

// GetTotalBytesOnTiers sums capacity per tier across active workers.
func (e *Engine) GetTotalBytesOnTiers() map[proto.TierAlias]uint64 {
	return e.workers.BytesByTier(false)
}

// GetUsedBytesOnTiers sums used bytes per tier across active workers.
func (e *Engine) GetUsedBytesOnTiers() map[proto.TierAlias]uint64 {
	return e.workers.BytesByTier(true)
}

// GetWorkerCount returns the number of active workers, backing the
// Workers metrics gauge.
func (e *Engine) GetWorkerCount() int { return e.workers.Count() }
