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

// Package errors holds the sentinel error taxonomy shared by the engine,
// the transport and the client SDK.
package errors

import "errors"

var (
	// ErrBlockNotFound is returned by lookups of an unknown block id.
	ErrBlockNotFound = errors.New("block meta not found")

	// ErrNoWorker is returned when an operation names a worker id that is
	// not in the active set (and, where relevant, not in the temp set).
	ErrNoWorker = errors.New("no worker found")

	// ErrUnavailable is returned by read paths while the master is in
	// safe mode, or when the journal subsystem refuses writes.
	ErrUnavailable = errors.New("master is unavailable")

	// ErrUnexpectedJournalEntry is fatal for journal replay: an unknown
	// entry tag was encountered.
	ErrUnexpectedJournalEntry = errors.New("unexpected journal entry")

	// ErrInternal marks an invariant violation. It should never surface
	// in a healthy cluster.
	ErrInternal = errors.New("internal invariant violation")

	// ErrInvalidReservation is returned by the id generator for a
	// nonsensical reservation size.
	ErrInvalidReservation = errors.New("invalid id reservation size")

	// ErrWorkerAlreadyExists is returned when a worker address collides
	// with a different id already occupying one of the three sets.
	ErrWorkerAlreadyExists = errors.New("worker address already registered under another id")
)

// New is a thin re-export so callers that only need a one-off sentinel do
// not need to also import the standard errors package.
func New(text string) error {
	return errors.New(text)
}
