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

// Package server wires the engine behind an HTTP and a gRPC front end.
package server

import (
	"context"

	"github.com/tiercluster/blockmaster/master"
	"github.com/tiercluster/blockmaster/master/journal"
)

// Server owns the engine and the two transports in front of it.
type Server struct {
	engine *master.Engine

	httpServer *HttpServer
	grpcServer *GrpcServer
}

// NewServer replays the journal at jrnl, builds the engine and wraps it
// with an HTTP and a gRPC front end. The engine and its lost-worker
// detector are running once this returns; call Serve to start accepting
// connections.
func NewServer(ctx context.Context, cfg Config, jrnl journal.Journal) (*Server, error) {
	engine, err := master.NewEngine(ctx, cfg.Master, jrnl)
	if err != nil {
		return nil, err
	}

	s := &Server{engine: engine}
	s.httpServer = NewHttpServer(s, cfg.HTTPAddr)
	s.grpcServer = NewGrpcServer(s, cfg.GRPCAddr)
	return s, nil
}

// Serve starts both transports; it does not block.
func (s *Server) Serve() {
	s.httpServer.Serve()
	s.grpcServer.Serve()
}

// Stop shuts down both transports and the engine.
func (s *Server) Stop() {
	s.httpServer.Stop()
	s.grpcServer.Stop()
	s.engine.Close()
}
