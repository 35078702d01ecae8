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

package rangehandler

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultObjectsPerSecond = 500
	DefaultObjectsBurst     = 2048
	defaultLimiterTableSize = 1024
)

// ObjectsLimiter limits the number of blocks each peer may request over time. Peers
// that go over their allowance have their responses delayed
type ObjectsLimiter struct {
	limit    rate.Limit
	burst    int
	now      func() time.Time
	limiters *lru.Cache[string, *rate.Limiter]
}

func NewObjectsLimiter(limit rate.Limit, burst int) *ObjectsLimiter {
	// This can only fail for a non-positive size
	limiters, _ := lru.New[string, *rate.Limiter](defaultLimiterTableSize)
	return &ObjectsLimiter{
		limit:    limit,
		burst:    burst,
		now:      time.Now,
		limiters: limiters,
	}
}

// GetLimiter returns the limiter for the peer, creating one if needed
func (l *ObjectsLimiter) GetLimiter(peerID string) *rate.Limiter {
	if limiter, ok := l.limiters.Get(peerID); ok {
		return limiter
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	// Another request from the same peer may have raced us here
	if existing, ok, _ := l.limiters.PeekOrAdd(peerID, limiter); ok {
		return existing
	}
	return limiter
}

// Delay reserves allowance for objects and returns how long the caller must wait
// before using it. Requests larger than the burst are charged the full burst
func (l *ObjectsLimiter) Delay(peerID string, objects int) time.Duration {
	if objects <= 0 || l.limit == rate.Inf {
		return 0
	}
	objects = min(objects, l.burst)
	r := l.GetLimiter(peerID).ReserveN(l.now(), objects)
	if !r.OK() {
		return 0
	}
	return r.DelayFrom(l.now())
}

// Wait blocks until the peer has allowance for objects. It returns true if the
// caller had to wait
func (l *ObjectsLimiter) Wait(ctx context.Context, peerID string, objects int) (bool, error) {
	delay := l.Delay(peerID, objects)
	if delay <= 0 {
		return false, nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-timer.C:
		return true, nil
	}
}
