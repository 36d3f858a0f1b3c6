package hub

import (
	"sync"

	"queue-system/internal/status"
	"queue-system/models"
	"queue-system/monitoring"
)

// ChannelSink buffers snapshots for one consumer goroutine. Writes never
// block: a full buffer drops the frame (the next one carries fresher state
// anyway), a closed sink reports status.ErrSubscriberClosed so the hub
// evicts it.
type ChannelSink struct {
	scopeID string
	ch      chan models.Snapshot
	done    chan struct{}
	once    sync.Once
}

func NewChannelSink(scopeID string, buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{
		scopeID: scopeID,
		ch:      make(chan models.Snapshot, buffer),
		done:    make(chan struct{}),
	}
}

func (s *ChannelSink) Write(snap models.Snapshot) error {
	select {
	case <-s.done:
		return status.ErrSubscriberClosed
	default:
	}

	select {
	case s.ch <- snap:
		return nil
	case <-s.done:
		return status.ErrSubscriberClosed
	default:
		// Consumer is behind; this frame is already superseded.
		monitoring.TrackDroppedWrite(s.scopeID)
		return nil
	}
}

// Close marks the sink dead. Idempotent; the snapshot channel is left open
// because a Publish may still be mid-Write.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Snapshots is the consumer side of the sink.
func (s *ChannelSink) Snapshots() <-chan models.Snapshot {
	return s.ch
}

// Done closes when the sink is torn down, letting the consumer loop exit.
func (s *ChannelSink) Done() <-chan struct{} {
	return s.done
}
