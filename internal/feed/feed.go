// Package feed turns a store's change signals into a stream of full,
// ordered snapshots of the message collection.
package feed

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"securechat/internal/models"
)

// Source is the read side of a message store.
type Source interface {
	List(ctx context.Context) ([]models.Message, error)
	Changes() (<-chan struct{}, func())
}

// Snapshot is the whole collection at one point in time. Seq starts at 1
// and increases with every snapshot of a subscription.
type Snapshot struct {
	Messages []models.Message
	Seq      uint64
}

// Subscription delivers snapshots until it is closed or its context ends.
//
// Delivery is latest-wins: the channel holds at most one pending snapshot
// and a newer one replaces it, so a slow reader never stalls the producer.
type Subscription struct {
	c      chan Snapshot
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe registers for changes, reads the first snapshot and queues it
// before returning. Registration happens before the first read, so a change
// racing with Subscribe is never lost.
func Subscribe(ctx context.Context, src Source, log logrus.FieldLogger) (*Subscription, error) {
	changes, release := src.Changes()
	first, err := src.List(ctx)
	if err != nil {
		release()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		c:      make(chan Snapshot, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.c <- Snapshot{Messages: first, Seq: 1}
	go s.run(ctx, src, changes, release, log)
	return s, nil
}

// C is closed once the subscription ends.
func (s *Subscription) C() <-chan Snapshot { return s.c }

// Done is closed once the subscription has stopped producing.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close cancels the subscription and waits for it to stop. Snapshots still
// queued are discarded, so nothing is received after Close returns. Safe to
// call more than once and from any goroutine.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		for range s.c {
		}
	})
}

func (s *Subscription) run(ctx context.Context, src Source, changes <-chan struct{}, release func(), log logrus.FieldLogger) {
	defer close(s.done)
	defer close(s.c)
	defer release()

	seq := uint64(1)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			messages, err := src.List(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("refreshing message snapshot failed")
				continue
			}
			seq++
			s.deliver(ctx, Snapshot{Messages: messages, Seq: seq})
		}
	}
}

func (s *Subscription) deliver(ctx context.Context, snap Snapshot) {
	for ctx.Err() == nil {
		select {
		case s.c <- snap:
			return
		default:
		}
		// reader is behind: drop the stale snapshot and retry
		select {
		case <-s.c:
		default:
		}
	}
}
