package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/novel-engine/pkg/chat"
)

// MockGenerator is a mock implementation of Generator for testing
type MockGenerator struct {
	EvaluateFunc func(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error)
	AdvanceFunc  func(ctx context.Context, req AdvanceRequest) (*AdvanceResponse, error)
	HintFunc     func(ctx context.Context, req HintRequest) (*HintResponse, error)

	// Track calls for testing
	EvaluateCalls []EvaluateRequest
	AdvanceCalls  []AdvanceRequest
	HintCalls     []HintRequest

	mu sync.Mutex // protects all fields above
}

var _ Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock that fires nothing and narrates a fixed line.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error) {
	m.mu.Lock()
	m.EvaluateCalls = append(m.EvaluateCalls, req)
	fn := m.EvaluateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &EvaluateResponse{}, nil
}

func (m *MockGenerator) Advance(ctx context.Context, req AdvanceRequest) (*AdvanceResponse, error) {
	m.mu.Lock()
	m.AdvanceCalls = append(m.AdvanceCalls, req)
	fn := m.AdvanceFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &AdvanceResponse{Lines: []chat.XmlLine{{Role: chat.ChatRoleAgent, Text: "Mock response"}}}, nil
}

func (m *MockGenerator) Hint(ctx context.Context, req HintRequest) (*HintResponse, error) {
	m.mu.Lock()
	m.HintCalls = append(m.HintCalls, req)
	fn := m.HintFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &HintResponse{Lines: []chat.XmlLine{{Role: chat.ChatRoleAgent, Text: "{Try looking around}"}}}, nil
}

// FireTriggers makes Evaluate report the given ids on every call.
func (m *MockGenerator) FireTriggers(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EvaluateFunc = func(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error) {
		return &EvaluateResponse{ActivatedTriggerIDs: ids}, nil
	}
}

// SetAdvanceError sets up the mock to return an error on Advance
func (m *MockGenerator) SetAdvanceError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdvanceFunc = func(ctx context.Context, req AdvanceRequest) (*AdvanceResponse, error) {
		return nil, err
	}
}

// SetEvaluateError sets up the mock to return an error on Evaluate
func (m *MockGenerator) SetEvaluateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EvaluateFunc = func(ctx context.Context, req EvaluateRequest) (*EvaluateResponse, error) {
		return nil, err
	}
}

// Calls returns how many times each method was called.
func (m *MockGenerator) Calls() (evaluate, advance, hint int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.EvaluateCalls), len(m.AdvanceCalls), len(m.HintCalls)
}

// Reset clears all call tracking
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EvaluateCalls = nil
	m.AdvanceCalls = nil
	m.HintCalls = nil
}
