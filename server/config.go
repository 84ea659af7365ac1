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

package server

import "github.com/tiercluster/blockmaster/master"

// Config is the top-level configuration loaded by cmd/blockmaster.
type Config struct {
	// HTTPAddr serves the metadata API and /metrics.
	HTTPAddr string `json:"http_addr"`

	// GRPCAddr serves the gRPC health and reflection services only.
	GRPCAddr string `json:"grpc_addr"`

	Master master.Config `json:"master"`
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{
		HTTPAddr: "127.0.0.1:9210",
		GRPCAddr: "127.0.0.1:9211",
		Master:   master.DefaultConfig(),
	}
}
