// Copyright 2026 Blink Labs Software
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

// Package rangehandler answers blocks-by-range requests from the local chain data
package rangehandler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/blinklabs-io/gobeacon/chaindata"
	"github.com/blinklabs-io/gobeacon/ledger"
	"github.com/blinklabs-io/gobeacon/metrics"
	"github.com/blinklabs-io/gobeacon/protocol/blocksbyrange"
	"golang.org/x/time/rate"
)

// DefaultMaxRequestBlocks is the largest number of slots served for a single request
const DefaultMaxRequestBlocks = 1024

const (
	msgStepZero             = "Step must be greater than zero"
	msgAltairRequiresV2     = "Must request altair blocks using v2 protocol"
	msgHistoryUnavailable   = "Requested historical blocks are currently unavailable"
	msgBlockNotInStorage    = "Requested block is not available"
	msgChainDataUnavailable = "Unable to read chain data"
)

// ResponseWriter receives the response to a single range request. Exactly one of
// Complete or Fail ends the response
type ResponseWriter interface {
	WriteBlock(*ledger.Block) error
	Complete() error
	Fail(*blocksbyrange.RpcError) error
}

type Config struct {
	ChainConfig      ledger.ChainConfig
	Logger           *slog.Logger
	Metrics          *metrics.ServerMetrics
	MaxRequestBlocks uint64
	RateLimit        rate.Limit
	RateBurst        int
}

// HandlerOptionFunc is a type that represents functions that modify the handler config
type HandlerOptionFunc func(*Config)

func WithChainConfig(chainConfig ledger.ChainConfig) HandlerOptionFunc {
	return func(c *Config) {
		c.ChainConfig = chainConfig
	}
}

func WithLogger(logger *slog.Logger) HandlerOptionFunc {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithMetrics(m *metrics.ServerMetrics) HandlerOptionFunc {
	return func(c *Config) {
		c.Metrics = m
	}
}

func WithMaxRequestBlocks(maxRequestBlocks uint64) HandlerOptionFunc {
	return func(c *Config) {
		c.MaxRequestBlocks = maxRequestBlocks
	}
}

// WithRateLimit sets the per-peer block allowance. A limit of rate.Inf disables it
func WithRateLimit(limit rate.Limit, burst int) HandlerOptionFunc {
	return func(c *Config) {
		c.RateLimit = limit
		c.RateBurst = burst
	}
}

// Handler serves range requests. It keeps no state between requests other than the
// per-peer rate limits
type Handler struct {
	config    Config
	chainData chaindata.Client
	limiter   *ObjectsLimiter
}

func New(chainData chaindata.Client, opts ...HandlerOptionFunc) *Handler {
	cfg := Config{
		ChainConfig:      ledger.MainnetChainConfig,
		MaxRequestBlocks: DefaultMaxRequestBlocks,
		RateLimit:        DefaultObjectsPerSecond,
		RateBurst:        DefaultObjectsBurst,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewServerMetrics(nil)
	}
	return &Handler{
		config:    cfg,
		chainData: chainData,
		limiter:   NewObjectsLimiter(cfg.RateLimit, cfg.RateBurst),
	}
}

// RequestRangeFunc adapts the handler for use as a blocks-by-range server callback
func (h *Handler) RequestRangeFunc() blocksbyrange.RequestRangeFunc {
	return func(ctx blocksbyrange.CallbackContext, req blocksbyrange.RangeRequest) error {
		peerID := ctx.ConnectionId.String()
		if ctx.ConnectionId.RemoteAddr != nil {
			peerID = ctx.ConnectionId.RemoteAddr.String()
		}
		return h.HandleRequest(ctx.Server.Context(), peerID, ctx.Version, req, ctx.Server)
	}
}

// ValidateRequest checks a request before any chain data is read
func (h *Handler) ValidateRequest(
	version blocksbyrange.Version,
	req blocksbyrange.RangeRequest,
) *blocksbyrange.RpcError {
	if req.Step == 0 {
		return blocksbyrange.NewInvalidRequestError(msgStepZero)
	}
	if h.config.ChainConfig.MilestoneAtSlot(req.StartSlot) > version.MaxMilestone() {
		return blocksbyrange.NewInvalidMethodVersionError(msgAltairRequiresV2)
	}
	return nil
}

// HandleRequest validates and answers a request. The returned error is only non-nil
// when the response could not be written
func (h *Handler) HandleRequest(
	ctx context.Context,
	peerID string,
	version blocksbyrange.Version,
	req blocksbyrange.RangeRequest,
	w ResponseWriter,
) error {
	start := time.Now()
	defer func() {
		h.config.Metrics.RequestSeconds.Observe(time.Since(start).Seconds())
	}()
	h.config.Metrics.Requests.WithLabelValues(version.String()).Inc()
	logger := h.config.Logger.With(
		"component", "rangehandler",
		"peer", peerID,
		"version", version.String(),
	)
	logger.Debug(
		fmt.Sprintf("handling range request (%s)", req.String()),
	)
	if rpcErr := h.ValidateRequest(version, req); rpcErr != nil {
		return h.fail(logger, w, rpcErr)
	}
	slots, rpcErr := h.candidateSlots(ctx, version, req)
	if rpcErr != nil {
		return h.fail(logger, w, rpcErr)
	}
	if len(slots) == 0 {
		return w.Complete()
	}
	waited, err := h.limiter.Wait(ctx, peerID, len(slots))
	if waited {
		h.config.Metrics.RateLimited.Inc()
	}
	if err != nil {
		return err
	}
	sent, rpcErr, err := h.streamBlocks(ctx, req.Step, slots, w)
	if err != nil {
		return err
	}
	if rpcErr != nil {
		return h.fail(logger, w, rpcErr)
	}
	logger.Debug(
		"completed range request",
		"blocks", sent,
	)
	return w.Complete()
}

// candidateSlots returns the slots to resolve for the request. The count is clamped
// to MaxRequestBlocks and no slot is past the chain head or past the last slot the
// request version can encode
func (h *Handler) candidateSlots(
	ctx context.Context,
	version blocksbyrange.Version,
	req blocksbyrange.RangeRequest,
) ([]uint64, *blocksbyrange.RpcError) {
	count := min(req.Count, h.config.MaxRequestBlocks)
	head, err := h.chainData.ChainHead(ctx)
	if err != nil {
		if errors.Is(err, chaindata.ErrNoChainHead) {
			return nil, nil
		}
		return nil, blocksbyrange.NewServerError(msgChainDataUnavailable)
	}
	if req.StartSlot > head.Slot {
		return nil, nil
	}
	earliest, known, err := h.chainData.EarliestAvailableBlockSlot(ctx)
	if err != nil {
		return nil, blocksbyrange.NewServerError(msgChainDataUnavailable)
	}
	if !known || req.StartSlot < earliest {
		return nil, blocksbyrange.NewResourceUnavailableError(msgHistoryUnavailable)
	}
	lastSlot := head.Slot
	if version.MaxMilestone() < ledger.MilestoneAltair {
		// Validation guarantees the start slot is before the fork
		lastSlot = min(lastSlot, h.config.ChainConfig.MilestoneStartSlot(ledger.MilestoneAltair)-1)
	}
	slots := make([]uint64, 0, min(count, 64))
	slot := req.StartSlot
	for i := uint64(0); i < count && slot <= lastSlot; i++ {
		slots = append(slots, slot)
		next := slot + req.Step
		if next < slot {
			break
		}
		slot = next
	}
	return slots, nil
}

// streamBlocks resolves and writes the blocks for the slots in order. A block that
// the chain data claims exists but cannot be loaded ends the response with an error
func (h *Handler) streamBlocks(
	ctx context.Context,
	step uint64,
	slots []uint64,
	w ResponseWriter,
) (int, *blocksbyrange.RpcError, error) {
	var hotRoots map[uint64]ledger.Root
	var sent int
	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			return sent, nil, err
		}
		var blk *ledger.Block
		var err error
		if h.chainData.IsFinalized(slot) {
			blk, err = h.chainData.BlockAtSlotExact(ctx, slot)
			if errors.Is(err, chaindata.ErrNotFound) {
				// Empty slot
				continue
			}
		} else {
			if hotRoots == nil {
				// Resolve every hot slot with a single query
				hotRoots, err = h.chainData.AncestorRoots(
					ctx,
					slots[0],
					step,
					uint64(len(slots)),
				)
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return sent, nil, ctxErr
					}
					return sent, blocksbyrange.NewServerError(msgChainDataUnavailable), nil
				}
			}
			root, ok := hotRoots[slot]
			if !ok {
				// Empty slot
				continue
			}
			blk, err = h.chainData.BlockByRoot(ctx, root)
			if errors.Is(err, chaindata.ErrNotFound) {
				return sent, blocksbyrange.NewResourceUnavailableError(msgBlockNotInStorage), nil
			}
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sent, nil, ctxErr
			}
			return sent, blocksbyrange.NewServerError(msgChainDataUnavailable), nil
		}
		if err := w.WriteBlock(blk); err != nil {
			return sent, nil, err
		}
		sent++
		h.config.Metrics.BlocksServed.Inc()
	}
	return sent, nil, nil
}

func (h *Handler) fail(logger *slog.Logger, w ResponseWriter, rpcErr *blocksbyrange.RpcError) error {
	logger.Debug(
		"rejecting range request",
		"error", rpcErr.Error(),
	)
	h.config.Metrics.Errors.WithLabelValues(strconv.Itoa(int(rpcErr.Code))).Inc()
	return w.Fail(rpcErr)
}
