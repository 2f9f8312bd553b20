package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// FakeReply is one scripted answer of a FakeClient.
type FakeReply struct {
	Text string
	Err  error
}

// FakeClient replays scripted replies for offline runs and tests. The last
// reply repeats once the script is exhausted.
type FakeClient struct {
	mu      sync.Mutex
	replies []FakeReply
	calls   int
	inputs  []any
}

func NewFakeClient(replies ...FakeReply) *FakeClient {
	return &FakeClient{replies: replies}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if len(f.replies) == 0 {
		f.calls++
		return nil, ErrInvalidJSON
	}
	i := f.calls
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	f.calls++
	r := f.replies[i]
	if r.Err != nil {
		return nil, r.Err
	}
	return json.RawMessage(r.Text), nil
}

func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastInput returns the input of the most recent call.
func (f *FakeClient) LastInput() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return nil
	}
	return f.inputs[len(f.inputs)-1]
}
