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

// SafeMode reports whether the cluster is still converging on startup
// (workers reporting in, blocks being reconciled). It is consulted by
// read paths only — lookup and getWorkerInfoList — never by mutation
// handlers, matching the source this engine is modeled on. Whether
// that asymmetry is intentional is an open question upstream; this
// engine preserves it rather than guessing.
type SafeMode interface {
	InSafeMode() bool
}

// AlwaysOff never reports safe mode. It is the Engine's default.
type AlwaysOff struct{}

func (AlwaysOff) InSafeMode() bool { return false }
