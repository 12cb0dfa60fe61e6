// ABOUTME: Tests for the producer/consumer streaming pair of spec.md §4.7

package scheduler

import (
	"context"
	"testing"

	"github.com/loomrun/loom/internal/registry"
	"github.com/loomrun/loom/pkg/types"
)

// counterProducer streams N integers then reports success.
type counterProducer struct{ n int }

func (p *counterProducer) Type() string { return "counter" }

func (p *counterProducer) Execute(ctx context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	return &types.TaskResult{Success: true, Output: types.NewMap(nil)}, nil
}

func (p *counterProducer) StreamOutput(ctx context.Context, config map[string]interface{}, out chan<- types.Value) (*types.TaskResult, error) {
	for i := 0; i < p.n; i++ {
		select {
		case out <- types.NewInt(int64(i)):
		case <-ctx.Done():
			return &types.TaskResult{Success: false, Output: types.Null()}, ctx.Err()
		}
	}
	return &types.TaskResult{Success: true, Output: types.NewMap(map[string]types.Value{"emitted": types.NewInt(int64(p.n))})}, nil
}

// failingProducer streams a couple values then fails mid-stream.
type failingProducer struct{}

func (p *failingProducer) Type() string { return "failing-counter" }

func (p *failingProducer) Execute(ctx context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	return &types.TaskResult{Success: true, Output: types.NewMap(nil)}, nil
}

func (p *failingProducer) StreamOutput(ctx context.Context, config map[string]interface{}, out chan<- types.Value) (*types.TaskResult, error) {
	out <- types.NewInt(1)
	out <- types.NewInt(2)
	return nil, types.NewTaskError("producer", "upstream feed broke", nil)
}

// summingConsumer reads every item until end-of-stream and reports whether
// it observed an error flag.
type summingConsumer struct{}

func (c *summingConsumer) Type() string { return "summer" }

func (c *summingConsumer) Execute(ctx context.Context, config map[string]interface{}) (*types.TaskResult, error) {
	return &types.TaskResult{Success: true, Output: types.NewMap(nil)}, nil
}

func (c *summingConsumer) ConsumeStream(ctx context.Context, config map[string]interface{}, in <-chan types.StreamItem) (*types.TaskResult, error) {
	var sum int64
	var count int64
	sawErr := false
	for item := range in {
		if item.Done {
			if item.Err != nil {
				sawErr = true
			}
			break
		}
		sum += item.Value.Int
		count++
	}
	return &types.TaskResult{Success: !sawErr, Output: types.NewMap(map[string]types.Value{
		"sum":     types.NewInt(sum),
		"count":   types.NewInt(count),
		"saw_err": types.NewBool(sawErr),
	})}, nil
}

func TestStreamPairDeliversAllItems(t *testing.T) {
	producer := &counterProducer{n: 5}
	consumer := &summingConsumer{}

	pResult, cResult := runStreamPair(context.Background(), producer, "p", nil, consumer, "c", nil)

	if !pResult.Success {
		t.Fatalf("expected producer to succeed, got %+v", pResult)
	}
	if !cResult.Success {
		t.Fatalf("expected consumer to succeed, got %+v", cResult.Error)
	}
	if got := cResult.Output.Map["sum"].Int; got != 10 { // 0+1+2+3+4
		t.Fatalf("expected sum 10, got %d", got)
	}
	if got := cResult.Output.Map["count"].Int; got != 5 {
		t.Fatalf("expected 5 items, got %d", got)
	}
}

func TestStreamPairProducerFailureSignalsConsumer(t *testing.T) {
	producer := &failingProducer{}
	consumer := &summingConsumer{}

	pResult, cResult := runStreamPair(context.Background(), producer, "p", nil, consumer, "c", nil)

	if pResult.Success {
		t.Fatalf("expected producer failure to be reported, got %+v", pResult)
	}
	if cResult.Success {
		t.Fatalf("expected consumer to observe the producer's error flag and report failure")
	}
	if !cResult.Output.Map["saw_err"].Bool {
		t.Fatalf("expected consumer to see the error flag on end-of-stream")
	}
	if got := cResult.Output.Map["count"].Int; got != 2 {
		t.Fatalf("expected consumer to have read the 2 items sent before failure, got %d", got)
	}
}

func TestSchedulerDispatchesConsumesPairConcurrently(t *testing.T) {
	reg := registry.New()
	reg.Register("counter", func(instanceID string) types.Task { return &counterProducer{n: 3} })
	reg.Register("summer", func(instanceID string) types.Task { return &summingConsumer{} })

	wf := &types.Workflow{
		Name: "stream",
		Tasks: map[string]*types.TaskSpec{
			"produce": {Type: "counter", Config: map[string]interface{}{}},
			"consume": {Type: "summer", Config: map[string]interface{}{}, Consumes: "produce"},
		},
		TaskOrder: taskOrder("produce", "consume"),
	}
	wf.Tasks["produce"].SetDeclOrder(0)
	wf.Tasks["consume"].SetDeclOrder(1)

	sched := New(wf, reg, Config{})
	result, err := sched.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	consume := result.Results["consume"]
	if !consume.Success {
		t.Fatalf("expected consumer to succeed, got %+v", consume.Error)
	}
	if got := consume.Output.Map["sum"].Int; got != 3 { // 0+1+2
		t.Fatalf("expected sum 3, got %d", got)
	}
}
