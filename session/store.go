package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	originIDLen          = 36
	subscribeConfirmWait = 2 * time.Second
	maxStoreAttempts     = 32
)

// RedisCache is a Cache whose slots live in Redis, so controllers in different
// processes share one logical session slot. Stores are fanned out to other
// processes over a pub/sub channel; local subscribers are notified synchronously.
type RedisCache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
	origin string

	flight singleflight.Group
	subs   subscribers

	remoteMu sync.Mutex
	remote   map[string]*remoteQueue

	mu        sync.Mutex
	pubsub    *redis.PubSub
	wg        sync.WaitGroup
	closed    bool
	closeOnce sync.Once
}

// NewRedisCache returns a RedisCache. ttl <= 0 keeps slots until deleted.
func NewRedisCache(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "authsession"
	}
	return &RedisCache{
		redis:  rdb,
		prefix: prefix,
		ttl:    ttl,
		origin: uuid.NewString(),
	}
}

func (c *RedisCache) slotKey(key string) string {
	return c.prefix + ":slot:" + key
}

func (c *RedisCache) genKey(key string) string {
	return c.prefix + ":gen:" + key
}

func (c *RedisCache) channel() string {
	return c.prefix + ":events"
}

// Load reads the slot for key. A missing slot reads as StatusUnknown.
func (c *RedisCache) Load(ctx context.Context, key string) (Entry, error) {
	data, err := c.redis.Get(ctx, c.slotKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{Status: StatusUnknown}, nil
		}
		return Entry{}, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return Decode(data)
}

// Store writes entry under the next generation for key. The generation bump,
// the slot write and the publication run in one optimistic transaction on the
// generation key, so the slot always holds the highest generation issued.
func (c *RedisCache) Store(ctx context.Context, key string, entry Entry) (Entry, error) {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}

	var (
		stored Entry
		encErr error
	)
	write := func(tx *redis.Tx) error {
		gen, err := tx.Get(ctx, c.genKey(key)).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		stored = entry
		stored.Generation = gen + 1

		data, err := Encode(stored)
		if err != nil {
			encErr = err
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.genKey(key), stored.Generation, c.ttl)
			pipe.Set(ctx, c.slotKey(key), data, c.ttl)
			pipe.Publish(ctx, c.channel(), c.frame(key, data))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxStoreAttempts; attempt++ {
		err := c.redis.Watch(ctx, write, c.genKey(key))
		switch {
		case err == nil:
			// Encoding normalises the error into a RemoteError; local observers
			// keep the original value.
			c.subs.notify(key, stored)
			return stored, nil
		case encErr != nil:
			return Entry{}, encErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return Entry{}, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
	}
	return Entry{}, fmt.Errorf("%w: generation contention on %q", ErrCacheUnavailable, key)
}

// Delete removes the slot. The generation counter is kept so that later
// stores stay ordered.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.redis.Del(ctx, c.slotKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Do runs fn once per key among concurrent callers in this process.
func (c *RedisCache) Do(ctx context.Context, key string, fn FetchFunc) (Entry, error) {
	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		return fn(ctx)
	})
	entry, _ := v.(Entry)
	return entry, err
}

// Subscribe registers fn for local stores and for stores published by other
// processes. Remote notifications are delivered off the listener goroutine.
func (c *RedisCache) Subscribe(key string, fn func(Entry)) func() {
	c.ensureListener()
	return c.subs.add(key, fn)
}

// Close stops the pub/sub listener. It does not close the Redis client.
func (c *RedisCache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		ps := c.pubsub
		c.mu.Unlock()
		if ps != nil {
			err = ps.Close()
		}
		c.wg.Wait()
	})
	return err
}

func (c *RedisCache) ensureListener() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pubsub != nil || c.closed {
		return
	}

	ps := c.redis.Subscribe(context.Background(), c.channel())
	ctx, cancel := context.WithTimeout(context.Background(), subscribeConfirmWait)
	_, _ = ps.Receive(ctx)
	cancel()

	c.pubsub = ps
	c.wg.Add(1)
	go c.listen(ps.Channel())
}

func (c *RedisCache) listen(ch <-chan *redis.Message) {
	defer c.wg.Done()
	for msg := range ch {
		origin, key, data, ok := c.unframe([]byte(msg.Payload))
		if !ok || origin == c.origin {
			continue
		}
		entry, err := Decode(data)
		if err != nil {
			continue
		}
		c.deliverRemote(key, entry)
	}
}

// remoteQueue holds notifications for one key received from other processes.
type remoteQueue struct {
	pending []Entry
}

// deliverRemote hands entry to a per-key goroutine so that a slow subscriber
// holds up only its own key. Entries for one key are delivered in order.
func (c *RedisCache) deliverRemote(key string, entry Entry) {
	c.remoteMu.Lock()
	if q, ok := c.remote[key]; ok {
		q.pending = append(q.pending, entry)
		c.remoteMu.Unlock()
		return
	}
	if c.remote == nil {
		c.remote = make(map[string]*remoteQueue)
	}
	q := &remoteQueue{pending: []Entry{entry}}
	c.remote[key] = q
	c.remoteMu.Unlock()

	c.wg.Add(1)
	go c.drainRemote(key, q)
}

func (c *RedisCache) drainRemote(key string, q *remoteQueue) {
	defer c.wg.Done()
	for {
		c.remoteMu.Lock()
		if len(q.pending) == 0 {
			delete(c.remote, key)
			c.remoteMu.Unlock()
			return
		}
		entry := q.pending[0]
		q.pending = q.pending[1:]
		c.remoteMu.Unlock()

		c.subs.notify(key, entry)
	}
}

// frame prefixes the encoded entry with the publishing cache and the slot key.
func (c *RedisCache) frame(key string, data []byte) []byte {
	out := make([]byte, 0, originIDLen+2+len(key)+len(data))
	out = append(out, c.origin...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(key)))
	out = append(out, key...)
	return append(out, data...)
}

func (c *RedisCache) unframe(payload []byte) (string, string, []byte, bool) {
	if len(payload) < originIDLen+2 {
		return "", "", nil, false
	}
	origin := string(payload[:originIDLen])
	n := int(binary.BigEndian.Uint16(payload[originIDLen : originIDLen+2]))
	rest := payload[originIDLen+2:]
	if len(rest) < n {
		return "", "", nil, false
	}
	return origin, string(rest[:n]), rest[n:], true
}
