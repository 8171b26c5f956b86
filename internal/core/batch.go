package core

import "time"

// BatchSummary aggregates the per-item outcomes of a batch run.
type BatchSummary struct {
	ConnectionID string         `json:"connection_id"`
	Total        int            `json:"total"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	Elapsed      time.Duration  `json:"elapsed"`
	Responses    []*APIResponse `json:"responses"`
}

// SummarizeBatch counts successes and failures, keeping input order.
func SummarizeBatch(connectionID string, responses []*APIResponse, elapsed time.Duration) *BatchSummary {
	summary := &BatchSummary{
		ConnectionID: connectionID,
		Total:        len(responses),
		Elapsed:      elapsed,
		Responses:    responses,
	}
	for _, resp := range responses {
		if resp != nil && resp.Success {
			summary.Succeeded++
			continue
		}
		summary.Failed++
	}
	return summary
}
