// Package ingest implements the durable transaction stream: a
// single-writer append log with per-record acknowledgement and
// idle-record reclaiming, built on top of Kafka via segmentio/kafka-go.
// Kafka itself only offers partition-offset commits, not per-record
// ack/claim_idle, so this adds a low-water-mark ack-tracking layer: Ack
// marks an offset acked and advances an in-memory low-water-mark over the
// contiguous acked prefix, and ClaimIdle re-delivers any fetched but
// unacked offset whose claim deadline has elapsed. The reader uses no
// Kafka consumer group and nothing is committed to Kafka, so the
// low-water-mark is not kept across restarts.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	kafkaLib "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rlaau/swapsentry/shared/kafka"
)

// Record is one durable-stream entry handed to a consumer group.
type Record struct {
	Offset    int64
	Key       []byte
	Value     []byte
	ClaimedAt time.Time
}

// Stream provides an append/read_group/ack/claim_idle/length/trim_to_maxlen
// contract over a durable, consumer-group-backed log.
type Stream struct {
	brokers []string
	topic   string
	log     *zap.Logger

	writer *kafkaLib.Writer

	mu      sync.Mutex
	reader  *kafkaLib.Reader
	pending map[int64]time.Time // claimed, not yet acked
	lwm     int64               // low water mark: lowest offset not yet acked
	acked   map[int64]bool      // sparse ack set above lwm, collapsed into lwm as it advances
}

// New opens a Stream against topic, starting from the given offset, which
// also seeds the low-water-mark. main.go passes 0, so every start reads the
// topic from its beginning.
func New(brokers []string, topic string, startOffset int64, log *zap.Logger) *Stream {
	reader := kafkaLib.NewReader(kafkaLib.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	reader.SetOffset(startOffset)

	writer := &kafkaLib.Writer{
		Addr:         kafkaLib.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkaLib.Hash{},
		RequiredAcks: kafkaLib.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Stream{
		brokers: brokers,
		topic:   topic,
		log:     log,
		writer:  writer,
		reader:  reader,
		pending: make(map[int64]time.Time),
		acked:   make(map[int64]bool),
		lwm:     startOffset,
	}
}

// Append writes one raw record to the stream.
func (s *Stream) Append(ctx context.Context, key, value []byte) error {
	return s.writer.WriteMessages(ctx, kafkaLib.Message{Key: key, Value: value})
}

// ReadGroup fetches the next record for this consumer group and marks it
// claimed (pending ack). It does not commit any offset.
func (s *Stream) ReadGroup(ctx context.Context) (Record, error) {
	msg, err := s.reader.FetchMessage(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("fetch message: %w", err)
	}
	now := time.Now()

	s.mu.Lock()
	s.pending[msg.Offset] = now
	s.mu.Unlock()

	return Record{Offset: msg.Offset, Key: msg.Key, Value: msg.Value, ClaimedAt: now}, nil
}

// Ack marks offset acknowledged and advances the low-water-mark over any
// now-contiguous acked prefix.
func (s *Stream) Ack(offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, offset)
	if offset < s.lwm {
		return // already passed by the watermark
	}
	s.acked[offset] = true

	for s.acked[s.lwm] {
		delete(s.acked, s.lwm)
		s.lwm++
	}
}

// LowWaterMark returns the offset to persist as the durable restart
// cursor: everything below it is fully acked.
func (s *Stream) LowWaterMark() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lwm
}

// ClaimIdle returns every claimed-but-unacked record whose claim age
// exceeds minIdle, re-reading each from its own offset so it can be
// redelivered to a (possibly different) consumer.
func (s *Stream) ClaimIdle(ctx context.Context, minIdle time.Duration) ([]Record, error) {
	s.mu.Lock()
	var stale []int64
	cutoff := time.Now().Add(-minIdle)
	for off, claimedAt := range s.pending {
		if claimedAt.Before(cutoff) {
			stale = append(stale, off)
		}
	}
	s.mu.Unlock()

	if len(stale) == 0 {
		return nil, nil
	}

	records := make([]Record, 0, len(stale))
	for _, off := range stale {
		rec, err := s.reReadOffset(ctx, off)
		if err != nil {
			s.log.Warn("claim_idle: re-read failed", zap.Int64("offset", off), zap.Error(err))
			continue
		}
		now := time.Now()
		s.mu.Lock()
		s.pending[off] = now
		s.mu.Unlock()
		rec.ClaimedAt = now
		records = append(records, rec)
	}
	return records, nil
}

// reReadOffset opens a short-lived reader seeked to a specific offset;
// kafka-go allows multiple independent readers on the same partition.
func (s *Stream) reReadOffset(ctx context.Context, offset int64) (Record, error) {
	r := kafkaLib.NewReader(kafkaLib.ReaderConfig{Brokers: s.brokers, Topic: s.topic, MinBytes: 1, MaxBytes: 10e6})
	defer r.Close()
	r.SetOffset(offset)

	msg, err := r.ReadMessage(ctx)
	if err != nil {
		return Record{}, err
	}
	return Record{Offset: msg.Offset, Key: msg.Key, Value: msg.Value}, nil
}

// Length reports the number of records produced but not yet acked
// (the stream's current backlog), used by backpressure saturation
// sampling.
func (s *Stream) Length(ctx context.Context) (int64, error) {
	conn, err := kafkaLib.DialLeader(ctx, "tcp", s.brokers[0], s.topic, 0)
	if err != nil {
		return 0, fmt.Errorf("dial leader: %w", err)
	}
	defer conn.Close()

	last, err := conn.ReadLastOffset()
	if err != nil {
		return 0, fmt.Errorf("read last offset: %w", err)
	}

	s.mu.Lock()
	lwm := s.lwm
	s.mu.Unlock()
	return last - lwm, nil
}

// TrimToMaxLen caps the stream's retained backlog by relying on Kafka's
// own per-topic retention/segment trimming (configured at topic-creation
// time via shared/kafka.CreateTopicIfNotExists); kafka-go has no
// low-level DeleteRecords-before-offset call, so there is nothing further
// to do here at per-offset granularity. Logged so an operator can see
// the request was received.
func (s *Stream) TrimToMaxLen(maxLen int64) {
	s.log.Debug("trim_to_maxlen relies on topic retention config", zap.Int64("requested_max_len", maxLen))
}

func (s *Stream) Close() error {
	werr := s.writer.Close()
	rerr := s.reader.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// EnsureTopic creates the topic if absent as an idempotent startup step.
func EnsureTopic(brokers []string, topic string, partitions, replication int, log *zap.Logger) error {
	return kafka.CreateTopicIfNotExists(brokers, topic, partitions, replication, log)
}
