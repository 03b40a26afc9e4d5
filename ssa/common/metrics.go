package common

import (
	"sync"
	"time"
)

// BaseMetrics provides common fields used across different metrics types
type BaseMetrics struct {
	TotalOperations int64
	SuccessfulOps   int64
	FailedOps       int64
	LastOperation   time.Time
	Mu              sync.RWMutex
}

// UpdateBaseMetrics updates common metrics fields
func (bm *BaseMetrics) UpdateBaseMetrics(success bool) {
	bm.Mu.Lock()
	defer bm.Mu.Unlock()
	bm.updateLocked(success)
}

func (bm *BaseMetrics) updateLocked(success bool) {
	bm.TotalOperations++
	if success {
		bm.SuccessfulOps++
	} else {
		bm.FailedOps++
	}
	bm.LastOperation = time.Now()
}

// GetBaseMetrics returns the common metrics as a map
func (bm *BaseMetrics) GetBaseMetrics() map[string]interface{} {
	bm.Mu.RLock()
	defer bm.Mu.RUnlock()

	return map[string]interface{}{
		"total_operations": bm.TotalOperations,
		"successful_ops":   bm.SuccessfulOps,
		"failed_ops":       bm.FailedOps,
		"last_operation":   bm.LastOperation,
	}
}

// InferenceMetrics tracks encode calls of a single encoder
type InferenceMetrics struct {
	BaseMetrics
	TotalTokens int64
	AverageTime time.Duration
}

// UpdateMetrics records one encode call that started at start and consumed tokens real tokens
func (im *InferenceMetrics) UpdateMetrics(start time.Time, success bool, tokens int) {
	duration := time.Since(start)

	im.Mu.Lock()
	defer im.Mu.Unlock()

	im.updateLocked(success)
	im.TotalTokens += int64(tokens)

	// Rolling average over all operations
	if im.TotalOperations == 1 {
		im.AverageTime = duration
	} else {
		im.AverageTime = (im.AverageTime*time.Duration(im.TotalOperations-1) + duration) / time.Duration(im.TotalOperations)
	}
}

// GetMetrics returns inference metrics as a map
func (im *InferenceMetrics) GetMetrics() map[string]interface{} {
	metrics := im.GetBaseMetrics()
	im.Mu.RLock()
	defer im.Mu.RUnlock()

	metrics["total_tokens"] = im.TotalTokens
	metrics["average_time"] = im.AverageTime
	return metrics
}
