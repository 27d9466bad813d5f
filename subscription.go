package redis

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/pior/redis/resp"
)

type subscriptionState int

const (
	subscriptionActive subscriptionState = iota
	subscriptionUnsubscribed
	subscriptionAbandoned
)

// Subscription receives the messages published to one channel, on a
// connection reserved for it until Unsubscribe or Close.
//
// A Subscription is used by one goroutine at a time.
type Subscription struct {
	client  *Client
	res     Resource
	channel string

	mu    sync.Mutex
	state subscriptionState

	scratch *resp.PooledBuffers // nil unless Config.UseBufferPool
}

// Subscribe reserves a connection, subscribes it to channel and waits for
// the server acknowledgement.
func (c *Client) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	res, err := c.acquire(ctx)
	if err != nil {
		c.stats.recordError(err)
		return nil, err
	}

	s := &Subscription{client: c, res: res, channel: channel}
	if c.config.UseBufferPool {
		s.scratch = resp.NewPooledBuffers()
	}

	err = res.Value().Send(ctx, NewCommand(ValueResult, "SUBSCRIBE", key(channel)).Args)
	if err == nil {
		_, err = s.read(ctx, "subscribe", nil)
	}
	if err != nil {
		s.abandon()
		c.stats.recordError(err)
		return nil, err
	}

	c.stats.recordSubscription()
	return s, nil
}

// Channel returns the subscribed channel.
func (s *Subscription) Channel() string {
	return s.channel
}

// Message waits for the next message and returns its payload. Other frames
// received meanwhile are discarded.
//
// A cancelled ctx leaves the subscription usable. Any other failure
// abandons the connection and closes the subscription.
func (s *Subscription) Message(ctx context.Context) ([]byte, error) {
	v, err := s.read(ctx, "message", s.scratchPool())
	if err != nil {
		return nil, err
	}
	payload := v.Items()[2].Bytes()
	if s.scratch != nil {
		payload = bytes.Clone(payload)
		s.scratch.Release()
	}
	return payload, nil
}

// MessageInto is Message decoding the payload into a buffer rented from
// bufs. The payload is valid until bufs is released.
func (s *Subscription) MessageInto(ctx context.Context, bufs resp.BufferPool) ([]byte, error) {
	v, err := s.read(ctx, "message", bufs)
	if err != nil {
		return nil, err
	}
	return v.Items()[2].Bytes(), nil
}

// Unsubscribe unsubscribes from the channel and waits for the
// acknowledgement, discarding messages still in flight. The connection then
// returns to the pool.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	if err := s.active(); err != nil {
		return err
	}

	err := s.res.Value().Send(ctx, NewCommand(ValueResult, "UNSUBSCRIBE", key(s.channel)).Args)
	if err == nil {
		_, err = s.read(ctx, "unsubscribe", s.scratchPool())
	}
	if err != nil {
		s.abandon()
		return err
	}

	s.mu.Lock()
	s.state = subscriptionUnsubscribed
	s.mu.Unlock()

	s.releaseScratch()
	s.client.release(s.res, nil)
	return nil
}

// Close abandons the subscription: its connection is destroyed rather than
// returned to the pool. It does nothing after Unsubscribe.
func (s *Subscription) Close() error {
	s.abandon()
	return nil
}

// Shutdown unsubscribes gracefully, and abandons the connection if that
// fails.
func (s *Subscription) Shutdown(ctx context.Context) error {
	err := s.Unsubscribe(ctx)
	if errors.Is(err, ErrSubscriptionClosed) {
		return nil
	}
	return err
}

// read waits for a frame of the given kind on the subscribed channel.
func (s *Subscription) read(ctx context.Context, kind string, bufs resp.BufferPool) (resp.Value, error) {
	if err := s.active(); err != nil {
		return resp.Value{}, err
	}
	conn := s.res.Value()

	for {
		v, err := conn.Receive(ctx, bufs)
		if err != nil {
			if !resp.IsCanceled(err) {
				s.abandon()
			}
			return resp.Value{}, err
		}

		if v.IsError() {
			err := newServerError(v)
			if kind == "subscribe" {
				return resp.Value{}, err
			}
			slog.Debug("redis: error reply on subscription", "channel", s.channel, "error", err)
			continue
		}

		if isPushFrame(v, kind, s.channel) {
			return v, nil
		}
		if s.scratch != nil && bufs == resp.BufferPool(s.scratch) {
			s.scratch.Release()
		}
	}
}

// isPushFrame matches [kind, channel, payload] frames.
func isPushFrame(v resp.Value, kind, channel string) bool {
	if v.Kind() != resp.KindArray || v.Len() != 3 {
		return false
	}
	items := v.Items()
	return items[0].Text() == kind && items[1].Text() == channel
}

func (s *Subscription) active() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != subscriptionActive {
		return ErrSubscriptionClosed
	}
	return nil
}

func (s *Subscription) scratchPool() resp.BufferPool {
	if s.scratch == nil {
		return nil
	}
	return s.scratch
}

func (s *Subscription) releaseScratch() {
	if s.scratch != nil {
		s.scratch.Release()
	}
}

func (s *Subscription) abandon() {
	s.mu.Lock()
	if s.state != subscriptionActive {
		s.mu.Unlock()
		return
	}
	s.state = subscriptionAbandoned
	s.mu.Unlock()

	slog.Debug("redis: abandoning subscription", "channel", s.channel)
	s.releaseScratch()
	s.res.Destroy()
}
