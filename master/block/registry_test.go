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

package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiercluster/blockmaster/proto"
)

func TestCommitKnownCreatesThenAddsLocation(t *testing.T) {
	r := New()

	needsJournal := r.CommitKnown(7, 1024, 42, "MEM")
	require.True(t, needsJournal)

	info, ok := r.View(7)
	require.True(t, ok)
	require.Equal(t, uint64(1024), info.Length)
	require.Len(t, info.Locations, 1)
	require.Equal(t, proto.BlockLocation{WorkerID: 42, Tier: "MEM"}, info.Locations[0])

	needsJournal = r.CommitKnown(7, 1024, 43, "SSD")
	require.False(t, needsJournal)
	info, _ = r.View(7)
	require.Len(t, info.Locations, 2)
}

func TestCommitKnownUpgradesUnknownLength(t *testing.T) {
	r := New()
	r.CommitInUFS(11, UnknownLength)

	needsJournal := r.CommitKnown(11, 500, 42, "MEM")
	require.True(t, needsJournal)

	info, ok := r.View(11)
	require.True(t, ok)
	require.Equal(t, uint64(500), info.Length)
}

func TestFreeMarksLostWhenNoLocationsRemain(t *testing.T) {
	r := New()
	r.CommitKnown(7, 1024, 42, "MEM")

	r.Free(7, 42)

	require.Contains(t, r.LostBlockIDs(), uint64(7))
	info, ok := r.View(7)
	require.True(t, ok)
	require.Empty(t, info.Locations)
}

func TestRemoveDeletesAndClearsLost(t *testing.T) {
	r := New()
	r.CommitKnown(7, 1024, 42, "MEM")
	r.Free(7, 42)
	require.Contains(t, r.LostBlockIDs(), uint64(7))

	workerIDs, existed := r.Remove(7)
	require.True(t, existed)
	require.Empty(t, workerIDs)

	_, ok := r.View(7)
	require.False(t, ok)
	require.NotContains(t, r.LostBlockIDs(), uint64(7))
}

func TestValidateRepairRemovesInvalidBlocks(t *testing.T) {
	r := New()
	r.CommitKnown(7, 1024, 42, "MEM")
	r.CommitKnown(8, 2048, 42, "MEM")

	invalid := r.Validate(func(blockID uint64) bool { return blockID != 8 }, true)
	require.ElementsMatch(t, []uint64{8}, invalid)

	_, ok := r.View(8)
	require.False(t, ok)
	_, ok = r.View(7)
	require.True(t, ok)
}
