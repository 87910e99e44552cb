// history.go - Execution log of reconciliation runs

package storage

import (
	"context"
	"errors"
	"time"
)

// ExecutionLog is one finished run with its AI usage and estimated cost
type ExecutionLog struct {
	RunID         string    `bson:"run_id" json:"run_id"`
	User          string    `bson:"user" json:"user"`
	Provider      string    `bson:"provider" json:"provider"`
	BusinessCode  string    `bson:"business_code" json:"business_code"`
	ProductCode   string    `bson:"product_code" json:"product_code"`
	ReferenceCode string    `bson:"reference_code" json:"reference_code"`
	ImageCount    int       `bson:"image_count" json:"image_count"`
	GroupCount    int       `bson:"group_count" json:"group_count"`
	InputTokens   int       `bson:"input_tokens" json:"input_tokens"`
	OutputTokens  int       `bson:"output_tokens" json:"output_tokens"`
	TotalTokens   int       `bson:"total_tokens" json:"total_tokens"`
	CostJPY       float64   `bson:"cost_jpy" json:"cost_jpy"`
	Incomplete    bool      `bson:"incomplete" json:"incomplete"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
}

// HistoryStore persists execution logs
type HistoryStore interface {
	SaveExecution(ctx context.Context, log ExecutionLog) error
	RecentExecutions(ctx context.Context, limit int) ([]ExecutionLog, error)
	Close(ctx context.Context) error
}

// MultiHistory writes to every store and reads from the first one
type MultiHistory []HistoryStore

// SaveExecution implements HistoryStore
func (m MultiHistory) SaveExecution(ctx context.Context, log ExecutionLog) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveExecution(ctx, log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecentExecutions implements HistoryStore
func (m MultiHistory) RecentExecutions(ctx context.Context, limit int) ([]ExecutionLog, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].RecentExecutions(ctx, limit)
}

// Close implements HistoryStore
func (m MultiHistory) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
