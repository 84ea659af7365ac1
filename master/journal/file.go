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
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/cubefs/cubefs/blobstore/util/errors"
)

// fileJournal appends entries as newline-delimited JSON to a single
// append-only file. It is the physical log format the spec explicitly
// leaves pluggable; this is the simplest implementation that satisfies
// the durability contract, not the only possible one.
type fileJournal struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileJournal opens (creating if absent) a journal file under dir.
func NewFileJournal(dir string) (Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Info(err, "create journal dir")
	}
	f, err := os.OpenFile(filepath.Join(dir, "block-master.journal"), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Info(err, "open journal file")
	}
	return &fileJournal{file: f}, nil
}

func (j *fileJournal) NewContext(ctx context.Context) *Context {
	return newContext(ctx, j, j.write)
}

func (j *fileJournal) write(_ context.Context, entries []Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return errors.Info(err, "marshal journal entry")
		}
		line = append(line, '\n')
		if _, err := j.file.Write(line); err != nil {
			return errors.Info(err, "write journal entry")
		}
	}
	return j.file.Sync()
}

func (j *fileJournal) Replay(_ context.Context, sink Sink) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Seek(0, 0); err != nil {
		return errors.Info(err, "seek journal for replay")
	}
	scanner := bufio.NewScanner(j.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return errors.Info(err, "unmarshal journal entry")
		}
		if err := sink.Apply(e); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Info(err, "scan journal")
	}
	if _, err := j.file.Seek(0, 2); err != nil {
		return errors.Info(err, "seek journal to tail")
	}
	return nil
}

func (j *fileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
