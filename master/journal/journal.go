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

// Package journal is the master's durable write-ahead log. A handler
// opens a Context, appends zero or more entries to it, and either
// Commits (entries are fsynced before the handler returns) or Discards
// (nothing touched disk). Replay on startup feeds every entry back to a
// Sink in the order they were written. There is no snapshot: replay
// always starts from the first entry of the log.
package journal

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/common/trace"
)

// EntryType tags the kind of state transition an Entry carries. Unknown
// tags are fatal during replay: the log format is closed, not
// extensible, because nothing outside this package reads it.
type EntryType int

const (
	EntryContainerIDGenerator EntryType = iota + 1
	EntryBlockInfo
	EntryDeleteBlock
)

// ContainerIDGeneratorEntry records a reservation boundary: the
// exclusive upper bound of the ids the generator may hand out before it
// journals the next boundary. Replaying it resumes minting at this id.
type ContainerIDGeneratorEntry struct {
	NextContainerID uint64 `json:"next_container_id"`
}

// BlockInfoEntry records a block's existence and current length. The
// engine's handlers set only BlockID and Length; WorkerID and Tier are
// left empty, and replay restores length and existence only.
type BlockInfoEntry struct {
	BlockID  uint64 `json:"block_id"`
	Length   uint64 `json:"length"`
	WorkerID uint64 `json:"worker_id,omitempty"`
	Tier     string `json:"tier,omitempty"`
}

// DeleteBlockEntry records a block removed from the registry entirely.
type DeleteBlockEntry struct {
	BlockID uint64 `json:"block_id"`
}

// Entry is one journaled record. Exactly one of the typed fields below
// is populated, matching Type.
type Entry struct {
	Type              EntryType                  `json:"type"`
	ContainerIDEntry  *ContainerIDGeneratorEntry  `json:"container_id_entry,omitempty"`
	BlockInfoEntry    *BlockInfoEntry             `json:"block_info_entry,omitempty"`
	DeleteBlockEntry  *DeleteBlockEntry           `json:"delete_block_entry,omitempty"`
}

// Sink receives replayed entries; Commit does not feed a Sink.
// Implementations must tolerate being called while the journal holds its
// own lock: replay happens before the server accepts traffic.
type Sink interface {
	Apply(e Entry) error
}

// Journal is the durable log. Implementations may batch underlying
// writes but must not acknowledge a Context's Commit until every entry
// appended to it is durable.
type Journal interface {
	// NewContext opens a scope for one handler invocation.
	NewContext(ctx context.Context) *Context

	// Replay feeds every entry written so far to sink, oldest first.
	Replay(ctx context.Context, sink Sink) error

	// Close releases the underlying log resources.
	Close() error
}

// Context scopes the entries produced by a single handler invocation.
// Append buffers; Commit flushes and fsyncs; Discard drops the buffer
// with no durable effect. A Context must end in exactly one of Commit
// or Discard.
type Context struct {
	ctx     context.Context
	journal Journal
	writer  func(ctx context.Context, entries []Entry) error
	entries []Entry
	done    bool
}

func newContext(ctx context.Context, j Journal, writer func(context.Context, []Entry) error) *Context {
	return &Context{ctx: ctx, journal: j, writer: writer}
}

// Append buffers an entry. It does not touch disk until Commit.
func (c *Context) Append(e Entry) {
	c.entries = append(c.entries, e)
}

// Commit fsyncs every buffered entry. A Context with no buffered
// entries commits as a no-op without touching the log, so read-only
// handlers can open a Context unconditionally and still Commit.
func (c *Context) Commit() error {
	if c.done {
		return nil
	}
	c.done = true
	if len(c.entries) == 0 {
		return nil
	}
	span := trace.SpanFromContextSafe(c.ctx)
	if err := c.writer(c.ctx, c.entries); err != nil {
		span.Errorf("journal commit failed, %d entries: %s", len(c.entries), err)
		return err
	}
	return nil
}

// Discard drops the buffer. Safe to call after Commit; it is then a
// no-op.
func (c *Context) Discard() {
	c.done = true
	c.entries = nil
}
