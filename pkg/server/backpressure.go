package server

import "sync/atomic"

// BackpressureController bounds the connections that are queued on the pool
// or being handled. A capacity of 0 admits everything and only counts load.
type BackpressureController struct {
	capacity int64
	load     atomic.Int64
	rejected atomic.Int64
}

// NewBackpressureController creates a controller admitting up to capacity
// concurrent connections.
func NewBackpressureController(capacity int) *BackpressureController {
	if capacity < 0 {
		capacity = 0
	}
	return &BackpressureController{capacity: int64(capacity)}
}

// TryAcquire takes one slot. It returns false, without blocking, when the
// controller is at capacity.
func (bc *BackpressureController) TryAcquire() bool {
	if bc.capacity <= 0 {
		bc.load.Add(1)
		return true
	}
	for {
		cur := bc.load.Load()
		if cur >= bc.capacity {
			bc.rejected.Add(1)
			return false
		}
		if bc.load.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release returns a slot taken by TryAcquire.
func (bc *BackpressureController) Release() {
	bc.load.Add(-1)
}

// GetMetrics returns current backpressure metrics.
func (bc *BackpressureController) GetMetrics() BackpressureMetrics {
	load := bc.load.Load()
	util := 0.0
	if bc.capacity > 0 {
		util = float64(load) / float64(bc.capacity) * 100
	}
	return BackpressureMetrics{
		Capacity:      bc.capacity,
		CurrentLoad:   load,
		RejectedCount: bc.rejected.Load(),
		Utilization:   util,
	}
}

// BackpressureMetrics provides backpressure statistics.
type BackpressureMetrics struct {
	Capacity      int64   // 0 means unlimited
	CurrentLoad   int64   // Connections queued or being handled
	RejectedCount int64   // Total rejected connections
	Utilization   float64 // Percentage of Capacity, 0 when unlimited
}
