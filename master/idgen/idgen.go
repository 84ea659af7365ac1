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

// Package idgen mints the container id half of a block id. Most mints
// are served from an in-memory reservation and cost no journal write;
// a write only happens when the reservation is exhausted, bounding
// write amplification to one entry per ReservationSize mints.
package idgen

import (
	"context"
	"sync"

	"github.com/tiercluster/blockmaster/master/journal"
)

// ReservationSize is the number of container ids journaled per
// reservation boundary.
const ReservationSize = 1000

// Generator mints container ids. NewContainerID is safe for concurrent
// use.
type Generator struct {
	mu   sync.Mutex
	jrnl journal.Journal

	next     uint64 // next id to hand out
	reserved uint64 // exclusive upper bound already journaled
}

// NewGenerator constructs a Generator with no journaled state; callers
// must feed replayed entries through Apply before serving traffic.
func NewGenerator(jrnl journal.Journal) *Generator {
	return &Generator{jrnl: jrnl}
}

// Apply replays a journaled reservation boundary. It is the Sink half
// of this component; master.go registers it for EntryContainerIDGenerator
// entries during startup replay.
func (g *Generator) Apply(e journal.ContainerIDGeneratorEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.NextContainerID > g.reserved {
		g.reserved = e.NextContainerID
	}
	if e.NextContainerID > g.next {
		g.next = e.NextContainerID
	}
}

// NewContainerID returns the next container id, journaling a new
// reservation boundary first if the current one is exhausted. The
// reservation write is its own journal scope, independent of whatever
// context the caller's handler is accumulating, so a mint never blocks
// on or gets rolled back by unrelated handler state.
func (g *Generator) NewContainerID(ctx context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next >= g.reserved {
		newReserved := g.reserved + ReservationSize
		jctx := g.jrnl.NewContext(ctx)
		jctx.Append(journal.Entry{
			Type:             journal.EntryContainerIDGenerator,
			ContainerIDEntry: &journal.ContainerIDGeneratorEntry{NextContainerID: newReserved},
		})
		if err := jctx.Commit(); err != nil {
			return 0, err
		}
		g.reserved = newReserved
	}

	id := g.next
	g.next++
	return id, nil
}

// Reserved reports the current exclusive upper bound, for tests and
// diagnostics only.
func (g *Generator) Reserved() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reserved
}
