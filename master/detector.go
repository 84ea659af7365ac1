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
	"time"

	"github.com/cubefs/cubefs/blobstore/util/log"
)

// runDetector is the lost-worker detector: a single periodic task that
// demotes any active worker silent for longer than WorkerTimeoutMs. It
// never deletes worker records, only moves them to the lost set and
// releases their blocks' locations.
func (e *Engine) runDetector(ctx context.Context) {
	interval := time.Duration(e.cfg.DetectorIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepLostWorkers()
		}
	}
}

func (e *Engine) sweepLostWorkers() {
	timeout := time.Duration(e.cfg.WorkerTimeoutMs) * time.Millisecond
	for _, id := range e.workers.ActiveIDs() {
		w := e.workers.Get(id)
		if w == nil {
			continue
		}
		if w.LastContactAge() <= timeout {
			continue
		}
		log.Infof("worker %d(%s) timed out after %s without a heartbeat", id, w.Address(), w.LastContactAge())
		e.workers.MarkLost(id)
		for _, blockID := range w.BlockIDs() {
			e.blocks.Free(blockID, id)
		}
	}
}
