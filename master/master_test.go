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

package master

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	blockerrors "github.com/tiercluster/blockmaster/errors"
	"github.com/tiercluster/blockmaster/master/block"
	"github.com/tiercluster/blockmaster/master/journal"
	"github.com/tiercluster/blockmaster/proto"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	jrnl, err := journal.NewFileJournal(t.TempDir())
	require.NoError(t, err)
	e, err := NewEngine(context.Background(), DefaultConfig(), jrnl)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// registerWorker runs getWorkerId then workerRegister, returning the id.
func registerWorker(t *testing.T, e *Engine, addr proto.NetAddress, capacity map[proto.TierAlias]uint64) uint64 {
	t.Helper()
	ctx := context.Background()
	id, err := e.GetWorkerID(ctx, addr)
	require.NoError(t, err)
	err = e.WorkerRegister(ctx, &proto.WorkerRegisterRequest{
		WorkerID:       id,
		Tiers:          []proto.TierAlias{"MEM"},
		CapacityByTier: capacity,
		UsedByTier:     map[proto.TierAlias]uint64{},
		BlocksByTier:   map[proto.TierAlias][]uint64{},
	})
	require.NoError(t, err)
	return id
}

func TestS1ContainerIDReservation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for i := uint64(0); i < 999; i++ {
		id, err := e.GetNewContainerID(ctx)
		require.NoError(t, err)
		require.Equal(t, i, id)
	}

	id, err := e.GetNewContainerID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(999), id)
}

func TestS2CommitThenLookup(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id := registerWorker(t, e, proto.NetAddress{Host: "10.0.0.1", RPCPort: 9000}, map[proto.TierAlias]uint64{"MEM": 1 << 30})

	err := e.CommitBlock(ctx, &proto.CommitBlockRequest{
		WorkerID: id, UsedBytesOnTier: 1024, Tier: "MEM", BlockID: 7, Length: 1024,
	})
	require.NoError(t, err)

	info, err := e.GetBlockInfo(7)
	require.NoError(t, err)
	require.Equal(t, uint64(1024), info.Length)
	require.Equal(t, []proto.BlockLocation{{WorkerID: id, Tier: "MEM"}}, info.Locations)
}

func TestS4DeleteAndJournal(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id := registerWorker(t, e, proto.NetAddress{Host: "10.0.0.2", RPCPort: 9000}, map[proto.TierAlias]uint64{"MEM": 1 << 30})
	require.NoError(t, e.CommitBlock(ctx, &proto.CommitBlockRequest{
		WorkerID: id, UsedBytesOnTier: 1024, Tier: "MEM", BlockID: 7, Length: 1024,
	}))

	require.NoError(t, e.RemoveBlocks(ctx, &proto.RemoveBlocksRequest{BlockIDs: []uint64{7}, Delete: true}))

	_, err := e.GetBlockInfo(7)
	require.ErrorIs(t, err, blockerrors.ErrBlockNotFound)

	cmd, err := e.WorkerHeartbeat(ctx, &proto.WorkerHeartbeatRequest{WorkerID: id})
	require.NoError(t, err)
	require.Equal(t, proto.CommandFree, cmd.Type)
	require.Contains(t, cmd.BlockIDs, uint64(7))
}

func TestS5WorkerIDLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	addr := proto.NetAddress{Host: "10.0.0.3", RPCPort: 9000}

	id, err := e.GetWorkerID(ctx, addr)
	require.NoError(t, err)

	err = e.CommitBlock(ctx, &proto.CommitBlockRequest{WorkerID: id, Tier: "MEM", BlockID: 9, Length: 100})
	require.ErrorIs(t, err, blockerrors.ErrNoWorker)

	err = e.WorkerRegister(ctx, &proto.WorkerRegisterRequest{
		WorkerID:       id,
		CapacityByTier: map[proto.TierAlias]uint64{"MEM": 1},
		UsedByTier:     map[proto.TierAlias]uint64{},
		BlocksByTier:   map[proto.TierAlias][]uint64{},
	})
	require.NoError(t, err)

	id2, err := e.GetWorkerID(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, id, id2)
}

func TestS6UnknownLengthUpgrade(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.CommitBlockInUFS(ctx, &proto.CommitBlockInUFSRequest{BlockID: 11, Length: block.UnknownLength}))

	id := registerWorker(t, e, proto.NetAddress{Host: "10.0.0.4", RPCPort: 9000}, map[proto.TierAlias]uint64{"MEM": 1 << 30})
	require.NoError(t, e.CommitBlock(ctx, &proto.CommitBlockRequest{
		WorkerID: id, Tier: "MEM", BlockID: 11, Length: 500,
	}))

	info, err := e.GetBlockInfo(11)
	require.NoError(t, err)
	require.Equal(t, uint64(500), info.Length)
}

func TestWorkerHeartbeatFromUnknownWorkerAsksForRegister(t *testing.T) {
	e := newTestEngine(t)
	cmd, err := e.WorkerHeartbeat(context.Background(), &proto.WorkerHeartbeatRequest{WorkerID: 99999})
	require.NoError(t, err)
	require.Equal(t, proto.CommandRegister, cmd.Type)
}

func TestWorkerHeartbeatFromLostWorkerAsksForRegister(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id := registerWorker(t, e, proto.NetAddress{Host: "10.0.0.5", RPCPort: 9000}, map[proto.TierAlias]uint64{"MEM": 1 << 30})
	e.workers.MarkLost(id)

	cmd, err := e.WorkerHeartbeat(ctx, &proto.WorkerHeartbeatRequest{WorkerID: id})
	require.NoError(t, err)
	require.Equal(t, proto.CommandRegister, cmd.Type)
	require.Empty(t, cmd.BlockIDs)
}

func TestWorkerRegisterFromLostWorkerFails(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	id := registerWorker(t, e, proto.NetAddress{Host: "10.0.0.6", RPCPort: 9000}, map[proto.TierAlias]uint64{"MEM": 1 << 30})
	e.workers.MarkLost(id)

	err := e.WorkerRegister(ctx, &proto.WorkerRegisterRequest{
		WorkerID:       id,
		CapacityByTier: map[proto.TierAlias]uint64{"MEM": 1},
		UsedByTier:     map[proto.TierAlias]uint64{},
		BlocksByTier:   map[proto.TierAlias][]uint64{},
	})
	require.ErrorIs(t, err, blockerrors.ErrNoWorker)
}
