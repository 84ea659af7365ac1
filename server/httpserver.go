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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cubefs/cubefs/blobstore/common/profile"
	"github.com/cubefs/cubefs/blobstore/common/rpc"
	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	blockerrors "github.com/tiercluster/blockmaster/errors"
	"github.com/tiercluster/blockmaster/metrics"
	"github.com/tiercluster/blockmaster/proto"
	"github.com/tiercluster/blockmaster/util"
)

const (
	defaultShutdownTimeoutS      = 10
	defaultReadRequestTimeoutS   = 30
	defaultWriteResponseTimeoutS = 30
)

// HttpServer exposes the metadata API as JSON over HTTP, plus /metrics
// and the usual stats/pprof surface.
type HttpServer struct {
	*Server
	addr       string
	httpServer *http.Server
}

func NewHttpServer(server *Server, addr string) *HttpServer {
	return &HttpServer{Server: server, addr: addr}
}

func (h *HttpServer) Serve() {
	ph := profile.NewProfileHandler(h.addr)
	httpServer := &http.Server{
		Addr:         h.addr,
		Handler:      rpc.MiddlewareHandlerWith(h.newHandler(), progressHandlerFunc(h.traceHandler), progressHandlerFunc(h.metricsHandler), ph),
		ReadTimeout:  defaultReadRequestTimeoutS * time.Second,
		WriteTimeout: defaultWriteResponseTimeoutS * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server exits:", err)
		}
	}()
	h.httpServer = httpServer

	log.Info("http server is running at:", h.addr)
}

func (h *HttpServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeoutS*time.Second)
	defer cancel()

	h.httpServer.Shutdown(ctx)
}

func (h *HttpServer) newHandler() *rpc.Router {
	rpc.GET("/stats", h.Stats, rpc.OptArgsQuery())
	rpc.GET("/metrics", h.Metrics, rpc.OptArgsQuery())

	rpc.GET("/worker/id", h.GetWorkerId, rpc.OptArgsQuery())
	rpc.POST("/worker/register", h.WorkerRegister, rpc.OptArgsBody())
	rpc.POST("/worker/heartbeat", h.WorkerHeartbeat, rpc.OptArgsBody())
	rpc.GET("/worker/list", h.GetWorkerInfoList, rpc.OptArgsQuery())
	rpc.GET("/worker/lost", h.GetLostWorkersInfoList, rpc.OptArgsQuery())

	rpc.POST("/container/new", h.GetNewContainerID, rpc.OptArgsBody())

	rpc.POST("/block/commit", h.CommitBlock, rpc.OptArgsBody())
	rpc.POST("/block/commit_ufs", h.CommitBlockInUFS, rpc.OptArgsBody())
	rpc.POST("/block/remove", h.RemoveBlocks, rpc.OptArgsBody())
	rpc.POST("/block/validate", h.ValidateBlocks, rpc.OptArgsBody())
	rpc.POST("/block/report_lost", h.ReportLostBlocks, rpc.OptArgsBody())
	rpc.GET("/block/info", h.GetBlockInfo, rpc.OptArgsQuery())
	rpc.POST("/block/info_list", h.GetBlockInfoList, rpc.OptArgsBody())

	return rpc.DefaultRouter
}

// progressHandlerFunc adapts a plain middleware func to rpc.ProgressHandler.
type progressHandlerFunc func(http.ResponseWriter, *http.Request, func(http.ResponseWriter, *http.Request))

func (f progressHandlerFunc) Handler(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request)) {
	f(w, r, next)
}

// traceHandler starts a span off the caller's req-id header, minting
// one when absent, and hangs it on the request context.
func (h *HttpServer) traceHandler(w http.ResponseWriter, r *http.Request, f func(http.ResponseWriter, *http.Request)) {
	reqID := r.Header.Get(proto.ReqIdKey)
	if reqID == "" {
		reqID = util.NewTraceID()
	}
	_, ctx := trace.StartSpanFromContextWithTraceID(r.Context(), r.URL.Path, reqID)
	f(w, r.WithContext(ctx))
}

func (h *HttpServer) metricsHandler(w http.ResponseWriter, r *http.Request, f func(http.ResponseWriter, *http.Request)) {
	start := time.Now()
	f(w, r)
	metrics.ObserveHTTP(r.Method, "200", time.Since(start).Seconds())
}

func (h *HttpServer) Stats(c *rpc.Context) {
	c.RespondStatus(http.StatusOK)
}

func (h *HttpServer) Metrics(c *rpc.Context) {
	promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
}

func decodeBody(c *rpc.Context, v interface{}) bool {
	if c.Request.Body == nil {
		return true
	}
	if err := json.NewDecoder(c.Request.Body).Decode(v); err != nil {
		respondError(c, blockerrors.New("malformed request body"))
		return false
	}
	return true
}

func respondJSON(c *rpc.Context, v interface{}) {
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.WriteHeader(http.StatusOK)
	json.NewEncoder(c.Writer).Encode(v)
}

func respondError(c *rpc.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, blockerrors.ErrBlockNotFound), errors.Is(err, blockerrors.ErrNoWorker):
		status = http.StatusNotFound
	case errors.Is(err, blockerrors.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, blockerrors.ErrWorkerAlreadyExists):
		status = http.StatusConflict
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	c.Writer.WriteHeader(status)
	json.NewEncoder(c.Writer).Encode(proto.ErrorBody{Error: http.StatusText(status), Message: err.Error()})
}

func (h *HttpServer) GetWorkerId(c *rpc.Context) {
	req := new(proto.GetWorkerIdRequest)
	if !decodeBody(c, req) {
		return
	}
	id, err := h.engine.GetWorkerID(c.Request.Context(), req.Address)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, proto.GetWorkerIdResponse{WorkerID: id})
}

func (h *HttpServer) WorkerRegister(c *rpc.Context) {
	req := new(proto.WorkerRegisterRequest)
	if !decodeBody(c, req) {
		return
	}
	if err := h.engine.WorkerRegister(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.RespondStatus(http.StatusOK)
}

func (h *HttpServer) WorkerHeartbeat(c *rpc.Context) {
	req := new(proto.WorkerHeartbeatRequest)
	if !decodeBody(c, req) {
		return
	}
	cmd, err := h.engine.WorkerHeartbeat(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, proto.WorkerHeartbeatResponse{Command: cmd})
}

func (h *HttpServer) GetNewContainerID(c *rpc.Context) {
	id, err := h.engine.GetNewContainerID(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, proto.GetWorkerIdResponse{WorkerID: id})
}

func (h *HttpServer) CommitBlock(c *rpc.Context) {
	req := new(proto.CommitBlockRequest)
	if !decodeBody(c, req) {
		return
	}
	if err := h.engine.CommitBlock(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.RespondStatus(http.StatusOK)
}

func (h *HttpServer) CommitBlockInUFS(c *rpc.Context) {
	req := new(proto.CommitBlockInUFSRequest)
	if !decodeBody(c, req) {
		return
	}
	if err := h.engine.CommitBlockInUFS(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.RespondStatus(http.StatusOK)
}

func (h *HttpServer) RemoveBlocks(c *rpc.Context) {
	req := new(proto.RemoveBlocksRequest)
	if !decodeBody(c, req) {
		return
	}
	if err := h.engine.RemoveBlocks(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.RespondStatus(http.StatusOK)
}

func (h *HttpServer) ValidateBlocks(c *rpc.Context) {
	req := new(proto.ValidateBlocksRequest)
	if !decodeBody(c, req) {
		return
	}
	known := make(map[uint64]struct{}, len(req.KnownBlockIDs))
	for _, id := range req.KnownBlockIDs {
		known[id] = struct{}{}
	}
	invalid, err := h.engine.ValidateBlocks(c.Request.Context(), func(blockID uint64) bool {
		_, ok := known[blockID]
		return ok
	}, req.Repair)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, proto.ValidateBlocksResponse{InvalidBlockIDs: invalid})
}

func (h *HttpServer) ReportLostBlocks(c *rpc.Context) {
	req := new(proto.ReportLostBlocksRequest)
	if !decodeBody(c, req) {
		return
	}
	h.engine.ReportLostBlocks(req.BlockIDs)
	c.RespondStatus(http.StatusOK)
}

func (h *HttpServer) GetBlockInfo(c *rpc.Context) {
	req := new(struct {
		BlockID uint64 `json:"block_id"`
	})
	if !decodeBody(c, req) {
		return
	}
	info, err := h.engine.GetBlockInfo(req.BlockID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, info)
}

func (h *HttpServer) GetBlockInfoList(c *rpc.Context) {
	req := new(proto.GetBlockInfoListRequest)
	if !decodeBody(c, req) {
		return
	}
	blocks, err := h.engine.GetBlockInfoList(req.BlockIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, proto.GetBlockInfoListResponse{Blocks: blocks})
}

func (h *HttpServer) GetWorkerInfoList(c *rpc.Context) {
	workers, err := h.engine.GetWorkerInfoList()
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, workers)
}

func (h *HttpServer) GetLostWorkersInfoList(c *rpc.Context) {
	respondJSON(c, h.engine.GetLostWorkersInfoList())
}
