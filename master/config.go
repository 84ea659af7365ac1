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

import "github.com/tiercluster/blockmaster/proto"

// Config holds the engine's tunables. Durations are in milliseconds to
// match the rest of the config tree, which is loaded as plain JSON.
type Config struct {
	// JournalDir is where the write-ahead log lives on disk.
	JournalDir string `json:"journal_dir"`

	// WorkerTimeoutMs is how long a worker may go without a heartbeat
	// before the detector declares it lost.
	WorkerTimeoutMs int64 `json:"worker_timeout_ms"`

	// DetectorIntervalMs is how often the lost-worker sweep runs.
	DetectorIntervalMs int64 `json:"detector_interval_ms"`

	// Tiers orders the cluster's storage tiers from fastest to slowest;
	// a block's locations list is sorted by this ordinal.
	Tiers []proto.TierAlias `json:"tiers"`
}

// DefaultConfig returns the engine's defaults; a loaded config should
// be overlaid onto this, not used standalone in production.
func DefaultConfig() Config {
	return Config{
		JournalDir:         "./run/journal",
		WorkerTimeoutMs:    60_000,
		DetectorIntervalMs: 10_000,
		Tiers:              []proto.TierAlias{"MEM", "SSD", "HDD"},
	}
}

// TierOrdinal returns a tier's position in Tiers, or -1 if unknown.
func (c Config) TierOrdinal(tier proto.TierAlias) int {
	for i, t := range c.Tiers {
		if t == tier {
			return i
		}
	}
	return -1
}
