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
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*

# blockmaster: metadata coordinator for a tiered-storage cluster

Workers hold block data across storage tiers (MEM, SSD, HDD, ...); the
block master holds none of it. It owns three things:

  - the block registry: which worker(s) hold a replica of a given block,
    and how large the block is
  - the worker registry: which workers are alive, how their capacity is
    split across tiers, and what each currently holds
  - a container-id generator that mints the high bits of new block ids in
    journaled reservations, so most mints cost no durable write

Clients mint ids and look up block locations. Workers register, heartbeat,
and receive free-block commands piggybacked on the heartbeat reply. Every
state transition that needs to survive a restart is journaled before the
handler that produced it returns; the RPC transport and the journal's
physical log format are both treated as pluggable collaborators, not part
of this package's concern.

## Building Blocks

  - gRPC (health/reflection only — the metadata RPCs are plain JSON/HTTP)
  - Prometheus
  - a file-backed journal

*/
package blockmaster
