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

package idgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tiercluster/blockmaster/master/journal"
)

func TestNewContainerIDReservation(t *testing.T) {
	dir := t.TempDir()
	jrnl, err := journal.NewFileJournal(dir)
	require.NoError(t, err)
	defer jrnl.Close()

	g := NewGenerator(jrnl)
	ctx := context.Background()

	for i := uint64(0); i < ReservationSize; i++ {
		id, err := g.NewContainerID(ctx)
		require.NoError(t, err)
		require.Equal(t, i, id)
	}
	require.Equal(t, uint64(ReservationSize), g.Reserved())

	id, err := g.NewContainerID(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(ReservationSize), id)
	require.Equal(t, uint64(2*ReservationSize), g.Reserved())
}

func TestApplyAdvancesReservationAndNextID(t *testing.T) {
	dir := t.TempDir()
	jrnl, err := journal.NewFileJournal(dir)
	require.NoError(t, err)
	defer jrnl.Close()

	g := NewGenerator(jrnl)
	g.Apply(journal.ContainerIDGeneratorEntry{NextContainerID: 5000})
	require.Equal(t, uint64(5000), g.Reserved())

	id, err := g.NewContainerID(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(5000), id)
}
