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

package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	entries []Entry
}

func (s *recordingSink) Apply(e Entry) error {
	s.entries = append(s.entries, e)
	return nil
}

func TestAppendCommitThenReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := NewFileJournal(dir)
	require.NoError(t, err)

	ctx := context.Background()
	jctx := j.NewContext(ctx)
	jctx.Append(Entry{Type: EntryBlockInfo, BlockInfoEntry: &BlockInfoEntry{BlockID: 7, Length: 1024}})
	jctx.Append(Entry{Type: EntryDeleteBlock, DeleteBlockEntry: &DeleteBlockEntry{BlockID: 7}})
	require.NoError(t, jctx.Commit())
	require.NoError(t, j.Close())

	j2, err := NewFileJournal(dir)
	require.NoError(t, err)
	defer j2.Close()

	sink := &recordingSink{}
	require.NoError(t, j2.Replay(ctx, sink))
	require.Len(t, sink.entries, 2)
	require.Equal(t, EntryBlockInfo, sink.entries[0].Type)
	require.Equal(t, EntryDeleteBlock, sink.entries[1].Type)
}

func TestDiscardWritesNothing(t *testing.T) {
	dir := t.TempDir()
	j, err := NewFileJournal(dir)
	require.NoError(t, err)
	defer j.Close()

	jctx := j.NewContext(context.Background())
	jctx.Append(Entry{Type: EntryBlockInfo, BlockInfoEntry: &BlockInfoEntry{BlockID: 1, Length: 1}})
	jctx.Discard()

	sink := &recordingSink{}
	require.NoError(t, j.Replay(context.Background(), sink))
	require.Empty(t, sink.entries)
}

func TestCommitWithNoEntriesIsNoop(t *testing.T) {
	dir := t.TempDir()
	j, err := NewFileJournal(dir)
	require.NoError(t, err)
	defer j.Close()

	jctx := j.NewContext(context.Background())
	require.NoError(t, jctx.Commit())

	sink := &recordingSink{}
	require.NoError(t, j.Replay(context.Background(), sink))
	require.Empty(t, sink.entries)
}
