package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DefaultMoveBufferCapacity is the default per-instance move-buffer slot
// count (spec §6 "capacity configurable (default 64 slots per
// instance)").
const DefaultMoveBufferCapacity = 64

// ErrBufferFull is returned by Post when the buffer has no free slot.
// Per the Open Question decision in DESIGN.md, callers do not retry —
// they log and drop, since no step may block on I/O (spec §5).
var ErrBufferFull = errors.New("message: move-buffer is full")

// MoveBuffer is the process-wide (or broadcast) thread-safe queue used
// to deliver messages between instances (spec §3 "Move buffer").
// Reading is non-blocking and transfers ownership to the caller.
type MoveBuffer interface {
	// Post enqueues msg, or returns ErrBufferFull immediately.
	Post(ctx context.Context, msg *Message) error
	// TakeAway non-blockingly removes and returns one pending message,
	// or (nil, false) if the buffer is empty right now.
	TakeAway(ctx context.Context) (*Message, bool)
	Close() error
}

// localMoveBuffer backs same-process instances with a buffered channel,
// the natural Go analogue of the source's intrusive FIFO guarded by a
// process-local lock (spec §5 "protected by a per-buffer read-write
// lock").
type localMoveBuffer struct {
	ch chan *Message
}

// NewLocalMoveBuffer creates an in-process move buffer with the given
// capacity (0 uses DefaultMoveBufferCapacity).
func NewLocalMoveBuffer(capacity int) MoveBuffer {
	if capacity <= 0 {
		capacity = DefaultMoveBufferCapacity
	}
	return &localMoveBuffer{ch: make(chan *Message, capacity)}
}

func (b *localMoveBuffer) Post(ctx context.Context, msg *Message) error {
	select {
	case b.ch <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

func (b *localMoveBuffer) TakeAway(ctx context.Context) (*Message, bool) {
	select {
	case m := <-b.ch:
		return m, true
	default:
		return nil, false
	}
}

func (b *localMoveBuffer) Close() error {
	close(b.ch)
	return nil
}

// wireMessage is the JSON envelope used to ship a Message across the
// Redis-backed cross-process move-buffer. Native/dynamic payloads
// cannot cross the wire; the caller's EncodeFunc is responsible for
// rejecting them before Post is called.
type wireMessage struct {
	Type        Type            `json:"type"`
	Target      Target          `json:"target"`
	TargetValue uint64          `json:"target_value"`
	SourceURI   string          `json:"source_uri"`
	EventType   string          `json:"event_type,omitempty"`
	EventSub    string          `json:"event_sub,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	ElementJSON json.RawMessage `json:"element_value,omitempty"`
	DataJSON    json.RawMessage `json:"data,omitempty"`
}

// EncodeFunc serializes a message's variant payloads to raw JSON (the
// heap wires this to variant.Serialize, keeping this package free of a
// dependency on internal/variant).
type EncodeFunc func(m *Message) (elementJSON, dataJSON json.RawMessage, err error)

// DecodeFunc parses raw JSON payloads back into a Message's variant
// fields (the heap wires this to variant.Parse).
type DecodeFunc func(m *Message, elementJSON, dataJSON json.RawMessage) error

// RedisMoveBuffer backs cross-process instances sharing a Redis
// deployment (spec §10 domain-stack wiring: the teacher's
// internal/queue Redis list notifier, generalized to PurC's move
// buffer). A list named by key holds pending envelopes; Post uses
// RPUSH bounded by LLEN, TakeAway uses a non-blocking LPOP.
type RedisMoveBuffer struct {
	client   *redis.Client
	key      string
	capacity int64
	encode   EncodeFunc
	decode   DecodeFunc
}

// NewRedisMoveBuffer creates a Redis-backed move buffer keyed by
// instanceKey, with encode/decode hooks supplied by the caller to avoid
// a package-level dependency on internal/variant.
func NewRedisMoveBuffer(client *redis.Client, instanceKey string, capacity int64, encode EncodeFunc, decode DecodeFunc) *RedisMoveBuffer {
	if capacity <= 0 {
		capacity = DefaultMoveBufferCapacity
	}
	return &RedisMoveBuffer{
		client:   client,
		key:      "purc:movebuf:" + instanceKey,
		capacity: capacity,
		encode:   encode,
		decode:   decode,
	}
}

func (b *RedisMoveBuffer) Post(ctx context.Context, msg *Message) error {
	n, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		return fmt.Errorf("message: redis move-buffer llen: %w", err)
	}
	if n >= b.capacity {
		return ErrBufferFull
	}

	var elementJSON, dataJSON json.RawMessage
	if b.encode != nil {
		elementJSON, dataJSON, err = b.encode(msg)
		if err != nil {
			return fmt.Errorf("message: encode payload: %w", err)
		}
	}

	wm := wireMessage{
		Type:        msg.Type,
		Target:      msg.Target,
		TargetValue: msg.TargetValue,
		SourceURI:   msg.SourceURI,
		RequestID:   msg.RequestID,
		ElementJSON: elementJSON,
		DataJSON:    dataJSON,
	}
	payload, err := json.Marshal(wm)
	if err != nil {
		return fmt.Errorf("message: marshal envelope: %w", err)
	}
	if err := b.client.RPush(ctx, b.key, payload).Err(); err != nil {
		return fmt.Errorf("message: redis rpush: %w", err)
	}
	return nil
}

func (b *RedisMoveBuffer) TakeAway(ctx context.Context) (*Message, bool) {
	result, err := b.client.LPop(ctx, b.key).Result()
	if err != nil {
		return nil, false
	}
	var wm wireMessage
	if err := json.Unmarshal([]byte(result), &wm); err != nil {
		return nil, false
	}
	m := &Message{
		Type:        wm.Type,
		Target:      wm.Target,
		TargetValue: wm.TargetValue,
		SourceURI:   wm.SourceURI,
		RequestID:   wm.RequestID,
	}
	if b.decode != nil {
		_ = b.decode(m, wm.ElementJSON, wm.DataJSON)
	}
	return m, true
}

func (b *RedisMoveBuffer) Close() error {
	return nil
}
