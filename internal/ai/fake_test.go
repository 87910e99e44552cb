package ai

import (
	"context"
	"sync"
)

// fakeProvider answers every call with respond and records the requests
type fakeProvider struct {
	mu       sync.Mutex
	requests []Request
	respond  func(req Request) (*Response, error)
}

func (f *fakeProvider) GetProviderName() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func answer(text string) func(Request) (*Response, error) {
	return func(Request) (*Response, error) {
		return &Response{Text: text, InputTokens: 10, OutputTokens: 2}, nil
	}
}

func failWith(err error) func(Request) (*Response, error) {
	return func(Request) (*Response, error) { return nil, err }
}

type fakeImages struct {
	data map[string][]byte
	err  error
}

func (f *fakeImages) FetchImageBytes(_ context.Context, fileID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[fileID], nil
}
