package writer

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"tradesim/config"
	"tradesim/models"
)

type fakeRedis struct {
	hashes  map[string]map[string]any
	ttls    map[string]time.Duration
	hsetErr error
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: map[string]map[string]any{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...any) error {
	if f.hsetErr != nil {
		return f.hsetErr
	}
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]any{}
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1]
	}
	return nil
}

func (f *fakeRedis) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func sampleResult() models.ResultSnapshot {
	return models.ResultSnapshot{
		Symbol:           "BTC-USDT-SWAP",
		SlippagePct:      0.15,
		FeesUSD:          5,
		MarketImpactPct:  0.35,
		NetCostUSD:       20.5,
		MakerProbability: 0.73,
		BookDepthLevels:  4,
		Processed:        9,
		UpdatedAt:        time.UnixMilli(1700000000123),
	}
}

func TestRedisWriterWritesHash(t *testing.T) {
	client := newFakeRedis()
	w := NewRedisWriter(client, config.RedisConfig{KeyPrefix: "sim", TTL: time.Minute})

	if err := w.Write(context.Background(), sampleResult()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	h, ok := client.hashes["sim:result:BTC-USDT-SWAP"]
	if !ok {
		t.Fatalf("hash not written, have %v", client.hashes)
	}
	if h["fees_usd"] != "5" || h["book_depth_levels"] != "4" || h["processed"] != "9" {
		t.Fatalf("unexpected hash contents: %v", h)
	}
	if h["updated_at"] != "1700000000123" {
		t.Fatalf("updated_at = %v", h["updated_at"])
	}
	if client.ttls["sim:result:BTC-USDT-SWAP"] != time.Minute {
		t.Fatal("ttl not applied")
	}

	// a second write overwrites in place
	res := sampleResult()
	res.SlippagePct = math.Inf(1)
	if err := w.Write(context.Background(), res); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(client.hashes) != 1 || client.hashes["sim:result:BTC-USDT-SWAP"]["slippage_pct"] != "+Inf" {
		t.Fatalf("unexpected state after overwrite: %v", client.hashes)
	}

	if err := w.Close(); err != nil || !client.closed {
		t.Fatal("close not forwarded")
	}
}

func TestRedisWriterDefaultsAndErrors(t *testing.T) {
	client := newFakeRedis()
	w := NewRedisWriter(client, config.RedisConfig{})
	if got := w.Key("ETH-USDT-SWAP"); got != "tradesim:result:ETH-USDT-SWAP" {
		t.Fatalf("key = %s", got)
	}
	if err := w.Write(context.Background(), sampleResult()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(client.ttls) != 0 {
		t.Fatal("zero ttl must not set an expiry")
	}

	client.hsetErr = errors.New("connection refused")
	if err := w.Write(context.Background(), sampleResult()); err == nil {
		t.Fatal("expected hset error")
	}
}

type fakeKafka struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafka) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafka) Close() error {
	f.closed = true
	return nil
}

func TestKafkaWriterPublishesJSON(t *testing.T) {
	fake := &fakeKafka{}
	w := newKafkaWriter(fake, "tradesim.results")

	res := sampleResult()
	res.NetCostUSD = math.Inf(1)
	if err := w.Write(context.Background(), res); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(fake.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(fake.msgs))
	}
	msg := fake.msgs[0]
	if string(msg.Key) != "BTC-USDT-SWAP" {
		t.Fatalf("key = %s", msg.Key)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["fees_usd"] != 5.0 || decoded["net_cost_usd"] != nil {
		t.Fatalf("unexpected payload: %v", decoded)
	}

	fake.err = errors.New("broker down")
	if err := w.Write(context.Background(), res); err == nil {
		t.Fatal("expected write error")
	}
	if err := w.Close(); err != nil || !fake.closed {
		t.Fatal("close not forwarded")
	}
}

func TestNewKafkaWriterRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaWriter(config.KafkaConfig{Topic: "t"}); err == nil {
		t.Fatal("expected error without brokers")
	}
	w, err := NewKafkaWriter(config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"})
	if err != nil {
		t.Fatalf("NewKafkaWriter: %v", err)
	}
	if w.Name() != "kafka" {
		t.Fatalf("name = %s", w.Name())
	}
	_ = w.Close()
}
