// internal/pkg/outbox/publisher_test.go
package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource 是内存版的 EventSource。
type fakeSource struct {
	events  []*Event
	markErr error
}

func (f *fakeSource) FetchUnprocessed(ctx context.Context, limit int) ([]*Event, error) {
	var pending []*Event
	for _, e := range f.events {
		if !e.Processed {
			pending = append(pending, e)
		}
		if len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (f *fakeSource) MarkProcessed(ctx context.Context, ids []string) error {
	if f.markErr != nil {
		return f.markErr
	}
	now := time.Now()
	for _, e := range f.events {
		for _, id := range ids {
			if e.ID == id {
				e.Processed = true
				e.ProcessedAt = &now
			}
		}
	}
	return nil
}

func (f *fakeSource) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []*Event
	var deleted int64
	for _, e := range f.events {
		if e.Processed && e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return deleted, nil
}

// fakeBroker 按事件 ID 注入失败次数。
type fakeBroker struct {
	failuresLeft map[string]int
	published    []string
}

func (f *fakeBroker) Publish(ctx context.Context, evt *Event) error {
	if n := f.failuresLeft[evt.ID]; n > 0 {
		f.failuresLeft[evt.ID] = n - 1
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, evt.ID)
	return nil
}

func mustEvent(t *testing.T, id string) *Event {
	t.Helper()
	evt, err := NewEvent("order", id, "order-cancel-requested", "order-cancel", id, map[string]string{"orderId": id})
	require.NoError(t, err)
	evt.ID = id
	return evt
}

func TestPublishPendingMarksAfterAck(t *testing.T) {
	source := &fakeSource{events: []*Event{mustEvent(t, "evt-1"), mustEvent(t, "evt-2")}}
	broker := &fakeBroker{failuresLeft: map[string]int{}}
	pub := NewPublisher(source, broker, 10, time.Hour)

	require.NoError(t, pub.PublishPending(context.Background()))

	assert.Equal(t, []string{"evt-1", "evt-2"}, broker.published)
	for _, e := range source.events {
		assert.True(t, e.Processed, "event %s should be marked processed", e.ID)
		assert.NotNil(t, e.ProcessedAt)
	}
}

func TestPublishPendingFailureDoesNotBlockSiblings(t *testing.T) {
	source := &fakeSource{events: []*Event{mustEvent(t, "evt-1"), mustEvent(t, "evt-2")}}
	broker := &fakeBroker{failuresLeft: map[string]int{"evt-1": 1}}
	pub := NewPublisher(source, broker, 10, time.Hour)

	require.NoError(t, pub.PublishPending(context.Background()))

	// evt-1 失败不拦路，evt-2 照常发布并标记
	assert.Equal(t, []string{"evt-2"}, broker.published)
	assert.False(t, source.events[0].Processed)
	assert.True(t, source.events[1].Processed)
}

func TestPublishPendingRetriesUntilBrokerAccepts(t *testing.T) {
	source := &fakeSource{events: []*Event{mustEvent(t, "evt-1")}}
	broker := &fakeBroker{failuresLeft: map[string]int{"evt-1": 2}}
	pub := NewPublisher(source, broker, 10, time.Hour)

	// 前两轮 broker 拒绝，事件保持未处理
	require.NoError(t, pub.PublishPending(context.Background()))
	require.NoError(t, pub.PublishPending(context.Background()))
	assert.Empty(t, broker.published)
	assert.False(t, source.events[0].Processed)

	// 第三轮成功
	require.NoError(t, pub.PublishPending(context.Background()))
	assert.Equal(t, []string{"evt-1"}, broker.published)
	assert.True(t, source.events[0].Processed)
}

func TestPublishPendingRepublishesWhenMarkFails(t *testing.T) {
	source := &fakeSource{
		events:  []*Event{mustEvent(t, "evt-1")},
		markErr: errors.New("db down"),
	}
	broker := &fakeBroker{failuresLeft: map[string]int{}}
	pub := NewPublisher(source, broker, 10, time.Hour)

	// 发布成功但标记失败：宁可重复，不可丢失
	require.Error(t, pub.PublishPending(context.Background()))
	assert.False(t, source.events[0].Processed)

	source.markErr = nil
	require.NoError(t, pub.PublishPending(context.Background()))
	assert.Equal(t, []string{"evt-1", "evt-1"}, broker.published, "event is republished after mark failure")
	assert.True(t, source.events[0].Processed)
}

func TestSweepProcessedHonorsRetention(t *testing.T) {
	old := mustEvent(t, "evt-old")
	old.Processed = true
	old.CreatedAt = time.Now().Add(-48 * time.Hour)

	fresh := mustEvent(t, "evt-fresh")
	fresh.Processed = true

	pending := mustEvent(t, "evt-pending")
	pending.CreatedAt = time.Now().Add(-48 * time.Hour)

	source := &fakeSource{events: []*Event{old, fresh, pending}}
	pub := NewPublisher(source, &fakeBroker{failuresLeft: map[string]int{}}, 10, 24*time.Hour)

	require.NoError(t, pub.SweepProcessed(context.Background()))

	ids := make([]string, 0, len(source.events))
	for _, e := range source.events {
		ids = append(ids, e.ID)
	}
	// 只有超过保留期的已处理事件被删；未处理的再老也不碰
	assert.ElementsMatch(t, []string{"evt-fresh", "evt-pending"}, ids)
}
