// ABOUTME: Producer/consumer streaming pair launched concurrently by the scheduler
// ABOUTME: Bounded channel with backpressure and end-of-stream/error signalling, per spec.md §4.7

package scheduler

import (
	"context"
	"time"

	"github.com/loomrun/loom/pkg/types"
)

// streamChannelCapacity is the default bounded channel size between a
// producer and its consumer, per spec.md §4.7.
const streamChannelCapacity = 64

// runStreamPair launches a producer and its consumer concurrently over a
// bounded channel. Both TaskResults are returned; a producer failure closes
// the channel with an error flag that the consumer observes on its next
// read, per spec.md §4.7.
//
// This implementation requires a stream producer to itself be ready for
// dispatch at the same time as its consumer; the pairing is driven entirely
// by the consumer's own declared dependencies; the `consumes` edge carries
// no separate ordering constraint of its own.
func runStreamPair(ctx context.Context, producer types.StreamProducer, producerInstanceID string, producerConfig map[string]interface{}, consumer types.StreamConsumer, consumerInstanceID string, consumerConfig map[string]interface{}) (producerResult, consumerResult *types.TaskResult) {
	ch := make(chan types.StreamItem, streamChannelCapacity)
	raw := make(chan types.Value, streamChannelCapacity)

	pStarted := time.Now()
	cStarted := time.Now()

	done := make(chan struct{})
	go func() {
		defer close(raw)
		res, err := producer.StreamOutput(ctx, producerConfig, raw)
		if err != nil && res == nil {
			res = &types.TaskResult{Success: false, Output: types.Null(), Error: &types.ErrorInfo{Kind: "TaskError", Message: err.Error()}}
		}
		res.StartedAt = pStarted
		res.FinishedAt = time.Now()
		producerResult = res
		close(done)
	}()

	go func() {
		for v := range raw {
			ch <- types.StreamItem{Value: v}
		}
		var endErr error
		if producerResult != nil && !producerResult.Success && producerResult.Error != nil {
			endErr = types.NewTaskError(producerInstanceID, producerResult.Error.Message, nil)
		}
		ch <- types.StreamItem{Done: true, Err: endErr}
		close(ch)
	}()

	res, err := consumer.ConsumeStream(ctx, consumerConfig, ch)
	if err != nil && res == nil {
		res = &types.TaskResult{Success: false, Output: types.Null(), Error: &types.ErrorInfo{Kind: "TaskError", Message: err.Error()}}
	}
	res.StartedAt = cStarted
	res.FinishedAt = time.Now()
	consumerResult = res

	<-done
	return producerResult, consumerResult
}
