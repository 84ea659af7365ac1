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

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/reflection"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/tiercluster/blockmaster/metrics"
	"github.com/tiercluster/blockmaster/proto"
	"github.com/tiercluster/blockmaster/util"
)

// GrpcServer exposes liveness over the standard gRPC health protocol and
// registers Prometheus's server interceptor so per-method RPC latency
// shows up next to the HTTP handlers' metrics. The metadata API itself
// is served over HTTP (see httpserver.go); there is no generated
// protobuf service for it, so nothing but health/reflection is wired
// here.
type GrpcServer struct {
	*Server
	addr   string
	server *grpc.Server
	health *health.Server
}

func NewGrpcServer(server *Server, addr string) *GrpcServer {
	health := health.NewServer()
	g := &GrpcServer{Server: server, addr: addr, health: health}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(
		g.unaryInterceptorWithTracer,
		metrics.GRPCMetrics.UnaryServerInterceptor(),
	))
	healthpb.RegisterHealthServer(s, health)
	reflection.Register(s)
	metrics.GRPCMetrics.InitializeMetrics(s)

	g.server = s
	return g
}

func (g *GrpcServer) Serve() {
	lis, err := net.Listen("tcp", g.addr)
	if err != nil {
		log.Fatal("grpc server listen failed:", err)
	}
	g.health.SetServingStatus("blockmaster", healthpb.HealthCheckResponse_SERVING)

	go func() {
		if err := g.server.Serve(lis); err != nil {
			log.Error("grpc server exits:", err)
		}
	}()
	log.Info("grpc server is running at:", g.addr)
}

func (g *GrpcServer) Stop() {
	g.health.SetServingStatus("blockmaster", healthpb.HealthCheckResponse_NOT_SERVING)
	g.server.GracefulStop()
}

func (g *GrpcServer) unaryInterceptorWithTracer(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	reqID := util.NewTraceID()
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(proto.ReqIdKey); len(ids) > 0 {
			reqID = ids[0]
		}
	}
	_, ctx = trace.StartSpanFromContextWithTraceID(ctx, info.FullMethod, reqID)
	return handler(ctx, req)
}
