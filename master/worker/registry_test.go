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

package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiercluster/blockmaster/proto"
)

func TestGetWorkerIDMintsOnceThenReturnsSameID(t *testing.T) {
	r := New()
	addr := proto.NetAddress{Host: "10.0.0.1", RPCPort: 9000}

	id1, err := r.GetWorkerID(context.Background(), addr)
	require.NoError(t, err)

	w := r.Get(id1)
	require.NotNil(t, w)
	require.Equal(t, StateTemp, w.state)

	// A repeat call for the same address promotes it out of temp, per
	// mint_worker_id's temp/lost branches.
	id2, err := r.GetWorkerID(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
	require.Equal(t, StateActive, w.state)
	require.Contains(t, r.ActiveIDs(), id1)
}

func TestGetWorkerIDConcurrentMintCoalesces(t *testing.T) {
	r := New()
	addr := proto.NetAddress{Host: "10.0.0.2", RPCPort: 9000}

	var wg sync.WaitGroup
	ids := make([]uint64, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.GetWorkerID(context.Background(), addr)
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		require.Equal(t, ids[0], id)
	}
}

func TestPromoteMovesTempToActive(t *testing.T) {
	r := New()
	addr := proto.NetAddress{Host: "10.0.0.3", RPCPort: 9000}
	id, err := r.GetWorkerID(context.Background(), addr)
	require.NoError(t, err)

	r.Promote(id)

	require.Contains(t, r.ActiveIDs(), id)
	require.NotContains(t, r.LostIDs(), id)
}

func TestMarkLostThenPromoteReactivates(t *testing.T) {
	r := New()
	addr := proto.NetAddress{Host: "10.0.0.4", RPCPort: 9000}
	id, _ := r.GetWorkerID(context.Background(), addr)
	r.Promote(id)

	r.MarkLost(id)
	require.Contains(t, r.LostIDs(), id)
	require.NotContains(t, r.ActiveIDs(), id)

	r.Promote(id)
	require.Contains(t, r.ActiveIDs(), id)
	require.NotContains(t, r.LostIDs(), id)
}

func TestRegisterReportsRemovedBlocks(t *testing.T) {
	w := newInfo(1, proto.NetAddress{Host: "h", RPCPort: 1})
	w.AddBlock(1)
	w.AddBlock(2)

	removed := w.Register(nil, nil, map[uint64]struct{}{2: {}})
	require.ElementsMatch(t, []uint64{1}, removed)
	require.ElementsMatch(t, []uint64{2}, w.BlockIDs())
}
