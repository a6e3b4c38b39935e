package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	err       error
	msgs      []published
}

func (b *fakeBroker) IsConnected() bool { return b.connected }

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{topic: topic, payload: payload.([]byte)})
	return newToken(b.err)
}

func newTestNotifier(enc Encoding, b *fakeBroker) *MQTTNotifier {
	n := NewMQTTNotifier(MQTTConfig{ClientID: "test", Encoding: enc})
	n.pub = b
	return n
}

// TestMQTTNotifier_TopicsAndCoalescing verifies the topic layout and that
// repeated buffering percentages are published once.
func TestMQTTNotifier_TopicsAndCoalescing(t *testing.T) {
	b := &fakeBroker{connected: true}
	n := newTestNotifier(EncodingJSON, b)

	for _, p := range []int{10, 10, 50, 100, 100} {
		n.Notify(Event{Kind: KindBuffering, Source: "decode-sink", Percent: p})
	}
	n.Notify(Event{Kind: KindEndOfStream, Source: "decode-sink"})

	require.Len(t, b.msgs, 4)
	assert.Equal(t, "shvideo/decode-sink/buffering", b.msgs[0].topic)
	assert.Equal(t, "shvideo/decode-sink/eos", b.msgs[3].topic)

	e, err := Unmarshal(EncodingJSON, b.msgs[2].payload)
	require.NoError(t, err)
	assert.Equal(t, 100, e.Percent)

	st := n.Stats()
	assert.True(t, st.Connected)
	assert.Equal(t, uint64(3), st.Published["shvideo/decode-sink/buffering"])
	t.Logf("✅ 5 buffering events coalesced to 3 publishes")
}

func TestMQTTNotifier_Failures(t *testing.T) {
	b := &fakeBroker{connected: false}
	n := newTestNotifier(EncodingMsgpack, b)

	n.Notify(Event{Kind: KindError, Source: "encoder", Message: "boom"})
	assert.Empty(t, b.msgs)
	assert.Equal(t, uint64(1), n.Stats().Errors)

	b.connected = true
	b.err = errors.New("broker said no")
	n.Notify(Event{Kind: KindError, Source: "encoder", Message: "boom"})
	assert.Len(t, b.msgs, 1)
	assert.Equal(t, uint64(2), n.Stats().Errors)

	unconnected := NewMQTTNotifier(MQTTConfig{})
	unconnected.Notify(Event{Kind: KindEndOfStream})
	assert.Equal(t, uint64(1), unconnected.Stats().Errors)
	unconnected.Disconnect()
}

func TestPayload_Encodings(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := Event{Kind: KindError, Source: "encoder", Session: "s-1", Message: "frame size", Severity: "fatal", At: at}

	for _, enc := range []Encoding{EncodingJSON, EncodingMsgpack} {
		b, err := Marshal(enc, in)
		require.NoError(t, err, enc)
		out, err := Unmarshal(enc, b)
		require.NoError(t, err, enc)
		assert.Equal(t, in.Message, out.Message, enc)
		assert.True(t, in.At.Equal(out.At), enc)
	}

	_, err := Marshal("xml", in)
	assert.Error(t, err)
	_, err = Unmarshal(EncodingMsgpack, []byte{0xc1})
	assert.Error(t, err)
}

func TestRecorderAndMulti(t *testing.T) {
	var r1, r2 Recorder
	var calls int
	m := Multi{&r1, nil, &r2, Func(func(Event) { calls++ }), Nop{}, Log{}}

	m.Notify(Event{Kind: KindBuffering, Source: "decode-sink", Percent: 40})
	m.Notify(Event{Kind: KindEndOfStream, Source: "decode-sink"})
	m.Notify(Event{Kind: KindError, Source: "decode-sink", Message: "x"})
	m.Notify(Event{Kind: KindFormat, Source: "encoder", Message: "format"})

	assert.Len(t, r1.Events(), 4)
	assert.Equal(t, []int{40}, r2.Percents())
	assert.Len(t, r2.Of(KindEndOfStream), 1)
	assert.Equal(t, 4, calls)
}
