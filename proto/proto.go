package proto

// ReqIdKey is the header/metadata key used to propagate a caller-supplied
// trace id; when absent the transport mints one (see util.NewTraceID).
const ReqIdKey = "req-id"

// GetWorkerIdRequest/Response — worker-facing.
type (
	GetWorkerIdRequest struct {
		Address NetAddress `json:"address"`
	}
	GetWorkerIdResponse struct {
		WorkerID uint64 `json:"worker_id"`
	}

	WorkerRegisterRequest struct {
		WorkerID       uint64                 `json:"worker_id"`
		Tiers          []TierAlias            `json:"tiers"`
		CapacityByTier map[TierAlias]uint64   `json:"capacity_by_tier"`
		UsedByTier     map[TierAlias]uint64   `json:"used_by_tier"`
		BlocksByTier   map[TierAlias][]uint64 `json:"blocks_by_tier"`
	}

	WorkerHeartbeatRequest struct {
		WorkerID        uint64                 `json:"worker_id"`
		UsedByTier      map[TierAlias]uint64   `json:"used_by_tier"`
		RemovedBlockIDs []uint64               `json:"removed_block_ids"`
		EvictedBlockIDs []uint64               `json:"evicted_block_ids,omitempty"`
		AddedByTier     map[TierAlias][]uint64 `json:"added_blocks_by_tier"`
	}
	WorkerHeartbeatResponse struct {
		Command Command `json:"command"`
	}
)

// Client-facing requests/responses.
type (
	GetBlockInfoListRequest struct {
		BlockIDs []uint64 `json:"block_ids"`
	}
	GetBlockInfoListResponse struct {
		Blocks []BlockInfo `json:"blocks"`
	}

	CommitBlockRequest struct {
		WorkerID        uint64    `json:"worker_id"`
		UsedBytesOnTier uint64    `json:"used_bytes_on_tier"`
		Tier            TierAlias `json:"tier"`
		BlockID         uint64    `json:"block_id"`
		Length          uint64    `json:"length"`
	}

	CommitBlockInUFSRequest struct {
		BlockID uint64 `json:"block_id"`
		Length  uint64 `json:"length"`
	}

	RemoveBlocksRequest struct {
		BlockIDs []uint64 `json:"block_ids"`
		Delete   bool     `json:"delete"`
	}

	ReportLostBlocksRequest struct {
		BlockIDs []uint64 `json:"block_ids"`
	}

	// ValidateBlocksRequest carries the full set of block ids the caller
	// believes should still exist; any registered block absent from
	// KnownBlockIDs is reported (and, if Repair is set, removed).
	ValidateBlocksRequest struct {
		KnownBlockIDs []uint64 `json:"known_block_ids"`
		Repair        bool     `json:"repair"`
	}
	ValidateBlocksResponse struct {
		InvalidBlockIDs []uint64 `json:"invalid_block_ids"`
	}

	BytesOnTiersResponse struct {
		BytesByTier map[TierAlias]uint64 `json:"bytes_by_tier"`
	}
)

// ErrorBody is the JSON body returned alongside non-2xx status codes.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
