package engine

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/metrics"
)

// DefaultBatchConcurrency is the number of requests in flight per window.
const DefaultBatchConcurrency = 5

// RequestExecutor sends one request through a connection.
type RequestExecutor interface {
	Execute(ctx context.Context, conn *core.ConnectionConfig, req core.APIRequest) (*core.APIResponse, error)
}

// BatchScheduler fans requests out in fixed-size windows. Every request in a
// window settles before the next window starts; failures are captured per
// item and never abort the batch.
type BatchScheduler struct {
	Executor    RequestExecutor
	Concurrency int
}

// ExecuteBatch returns one response per request, in input order.
func (b *BatchScheduler) ExecuteBatch(ctx context.Context, conn *core.ConnectionConfig, requests []core.APIRequest) []*core.APIResponse {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]*core.APIResponse, len(requests))
	size := b.concurrency()

	for start := 0; start < len(requests); start += size {
		end := start + size
		if end > len(requests) {
			end = len(requests)
		}

		if err := ctx.Err(); err != nil {
			for i := start; i < len(requests); i++ {
				results[i] = failedResponse(nil, err)
			}
			break
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = b.run(ctx, conn, requests[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	return results
}

func (b *BatchScheduler) run(ctx context.Context, conn *core.ConnectionConfig, req core.APIRequest) (resp *core.APIResponse) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordPanic()
			resp = failedResponse(nil, fmt.Errorf("request panicked: %v", r))
		}
	}()

	if b.Executor == nil {
		return failedResponse(nil, fmt.Errorf("batch executor is not configured"))
	}

	result, err := b.Executor.Execute(ctx, conn, req)
	if err != nil {
		return failedResponse(result, err)
	}
	if result == nil {
		return failedResponse(nil, fmt.Errorf("executor returned no response"))
	}
	return result
}

func (b *BatchScheduler) concurrency() int {
	if b == nil || b.Concurrency < 1 {
		return DefaultBatchConcurrency
	}
	return b.Concurrency
}

func failedResponse(partial *core.APIResponse, err error) *core.APIResponse {
	resp := &core.APIResponse{}
	if partial != nil {
		copied := *partial
		resp = &copied
	}
	resp.Success = false
	resp.Error = err.Error()
	return resp
}
