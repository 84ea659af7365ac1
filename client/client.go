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

// Package client is the SDK a worker or a CLI links against to talk to
// the block master. The metadata API runs over JSON/HTTP rather than a
// generated protobuf stub, so Client wraps an *http.Client instead of a
// grpc.ClientConn; the keepalive/timeout posture it sets mirrors what
// the teacher's gRPC client configures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tiercluster/blockmaster/proto"
	"github.com/tiercluster/blockmaster/util"
)

const defaultTimeout = 5 * time.Second

// Config configures a Client.
type Config struct {
	// Addr is the block master's HTTP address, e.g. "10.0.0.1:9210".
	Addr string `json:"addr"`

	// Timeout bounds a single request. Zero means defaultTimeout.
	Timeout time.Duration `json:"timeout"`
}

// Client is the SDK entry point; it is safe for concurrent use.
type Client struct {
	addr string
	http *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		addr: cfg.Addr,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 64,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) Address() string {
	return c.addr
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://"+c.addr+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(proto.ReqIdKey, util.NewTraceID())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody proto.ErrorBody
		json.NewDecoder(resp.Body).Decode(&errBody)
		return fmt.Errorf("blockmaster: %s: %s", errBody.Error, errBody.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) GetWorkerId(ctx context.Context, addr proto.NetAddress) (uint64, error) {
	v := url.Values{}
	v.Set("host", addr.Host)
	v.Set("rpc_port", fmt.Sprint(addr.RPCPort))
	resp := new(proto.GetWorkerIdResponse)
	if err := c.do(ctx, http.MethodGet, "/worker/id?"+v.Encode(), proto.GetWorkerIdRequest{Address: addr}, resp); err != nil {
		return 0, err
	}
	return resp.WorkerID, nil
}

func (c *Client) WorkerRegister(ctx context.Context, req *proto.WorkerRegisterRequest) error {
	return c.do(ctx, http.MethodPost, "/worker/register", req, nil)
}

func (c *Client) WorkerHeartbeat(ctx context.Context, req *proto.WorkerHeartbeatRequest) (proto.Command, error) {
	resp := new(proto.WorkerHeartbeatResponse)
	if err := c.do(ctx, http.MethodPost, "/worker/heartbeat", req, resp); err != nil {
		return proto.Command{}, err
	}
	return resp.Command, nil
}

func (c *Client) GetNewContainerID(ctx context.Context) (uint64, error) {
	resp := new(proto.GetWorkerIdResponse)
	if err := c.do(ctx, http.MethodPost, "/container/new", nil, resp); err != nil {
		return 0, err
	}
	return resp.WorkerID, nil
}

func (c *Client) CommitBlock(ctx context.Context, req *proto.CommitBlockRequest) error {
	return c.do(ctx, http.MethodPost, "/block/commit", req, nil)
}

func (c *Client) CommitBlockInUFS(ctx context.Context, req *proto.CommitBlockInUFSRequest) error {
	return c.do(ctx, http.MethodPost, "/block/commit_ufs", req, nil)
}

func (c *Client) RemoveBlocks(ctx context.Context, req *proto.RemoveBlocksRequest) error {
	return c.do(ctx, http.MethodPost, "/block/remove", req, nil)
}

func (c *Client) ValidateBlocks(ctx context.Context, req *proto.ValidateBlocksRequest) (*proto.ValidateBlocksResponse, error) {
	resp := new(proto.ValidateBlocksResponse)
	if err := c.do(ctx, http.MethodPost, "/block/validate", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ReportLostBlocks(ctx context.Context, blockIDs []uint64) error {
	return c.do(ctx, http.MethodPost, "/block/report_lost", proto.ReportLostBlocksRequest{BlockIDs: blockIDs}, nil)
}

func (c *Client) GetBlockInfo(ctx context.Context, blockID uint64) (proto.BlockInfo, error) {
	info := new(proto.BlockInfo)
	body := struct {
		BlockID uint64 `json:"block_id"`
	}{blockID}
	if err := c.do(ctx, http.MethodGet, "/block/info", body, info); err != nil {
		return proto.BlockInfo{}, err
	}
	return *info, nil
}

func (c *Client) GetBlockInfoList(ctx context.Context, blockIDs []uint64) ([]proto.BlockInfo, error) {
	resp := new(proto.GetBlockInfoListResponse)
	if err := c.do(ctx, http.MethodPost, "/block/info_list", proto.GetBlockInfoListRequest{BlockIDs: blockIDs}, resp); err != nil {
		return nil, err
	}
	return resp.Blocks, nil
}

func (c *Client) GetWorkerInfoList(ctx context.Context) ([]proto.WorkerView, error) {
	var out []proto.WorkerView
	if err := c.do(ctx, http.MethodGet, "/worker/list", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetLostWorkersInfoList(ctx context.Context) ([]proto.WorkerView, error) {
	var out []proto.WorkerView
	if err := c.do(ctx, http.MethodGet, "/worker/lost", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
