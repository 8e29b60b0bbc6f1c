package discovery

import (
	"errors"
	"fmt"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"sync"
	"testing"
)

type fakePublisher struct {
	sync.Mutex
	msgs []Announcement
	err  error
}

func (f *fakePublisher) PublishRetained(topic string, payload []byte) error {
	f.Lock()
	defer f.Unlock()
	f.msgs = append(f.msgs, Announcement{Topic: topic, Payload: payload})
	return f.err
}

func (f *fakePublisher) published() []Announcement {
	f.Lock()
	defer f.Unlock()
	return append([]Announcement{}, f.msgs...)
}

func newTestDiscovery(t *testing.T, fieldMode bool, republish bool) (*Discovery, *fakePublisher) {
	pub := &fakePublisher{}
	d, err := New(&Config{
		Topics:             DefaultTopics(),
		EnableFieldMode:    fieldMode,
		RepublishOnConnect: republish,
		Publisher:          pub,
		Logger:             zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return d, pub
}

func stateTopics(t *testing.T, anns []Announcement) []string {
	out := []string{}
	for _, a := range anns {
		m := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(a.Payload, &m))
		out = append(out, m["state_topic"].(string))
	}
	return out
}

func TestNewRequiresPublisher(t *testing.T) {
	_, err := New(&Config{Topics: DefaultTopics()})
	assert.Error(t, err)
	_, err = New(&Config{Publisher: &fakePublisher{}})
	assert.Error(t, err)
}

func TestSubscriptions(t *testing.T) {
	d, _ := newTestDiscovery(t, true, false)
	assert.Equal(t, []string{"tele/+/json", "tele/+/main/#", "tele/+/LWT"}, d.Subscriptions())
	d, _ = newTestDiscovery(t, false, false)
	assert.Equal(t, []string{"tele/+/json", "tele/+/LWT"}, d.Subscriptions())
}

func TestJsonTelemetryAnnouncesAllSensors(t *testing.T) {
	for _, dev := range []string{"dev1", "8C4B14AB12CD", "kitchen-gas"} {
		d, pub := newTestDiscovery(t, true, false)
		d.HandleMessage("tele/"+dev+"/json", []byte(`{"gastotal": 1234.5, "value": "12,3"}`))

		msgs := pub.published()
		require.Len(t, msgs, len(Sensors), dev)
		for i, s := range Sensors {
			assert.Equal(t, fmt.Sprintf("homeassistant/sensor/smartnetz_gasreader_%s/%s/config", dev, s.Key), msgs[i].Topic)
		}
		assert.True(t, d.Registry().IsDiscovered(dev))
		assert.Equal(t, ModeJSON, d.Registry().Mode(dev))
	}
}

func TestJsonTelemetryIdempotent(t *testing.T) {
	d, pub := newTestDiscovery(t, true, false)
	d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1, "value": 2}`))
	d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1.1, "value": 2.1}`))
	assert.Len(t, pub.published(), 8)
	d.OnConnect()
	assert.Len(t, pub.published(), 8, "republish disabled")
}

func TestJsonTelemetryMissingField(t *testing.T) {
	d, pub := newTestDiscovery(t, true, false)
	d.HandleMessage("tele/dev1/json", []byte(`{"value": 12.3}`))
	assert.Empty(t, pub.published())
	assert.Equal(t, 0, d.Registry().Len())
	assert.Equal(t, ModeUnset, d.Registry().Mode("dev1"))
}

func TestJsonTelemetryUndecodable(t *testing.T) {
	d, pub := newTestDiscovery(t, true, false)
	assert.NotPanics(t, func() {
		d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1, "val`))
		d.HandleMessage("tele/dev1/json", []byte{0xff, 0x00, 0x12})
		d.HandleMessage("tele/dev1/json", nil)
		d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1, "value": 2} garbage`))
		d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1, "value": 2}{"x":`))
		d.HandleMessage("tele/dev1/json", []byte("{\"gastotal\": \"\xff\xfe\", \"value\": 2}"))
	})
	assert.Empty(t, pub.published())
	assert.False(t, d.Registry().IsDiscovered("dev1"))
}

func TestIrrelevantAndLWT(t *testing.T) {
	d, pub := newTestDiscovery(t, true, false)
	d.HandleMessage("tele/dev1/other", []byte(`{"gastotal": 1, "value": 2}`))
	d.HandleMessage("homeassistant/sensor/x/config", []byte(`{"gastotal": 1, "value": 2}`))
	d.HandleMessage("tele/dev1/LWT", []byte("Online"))
	assert.Empty(t, pub.published())
	assert.Empty(t, d.Registry().Devices())
}

func TestFieldTelemetry(t *testing.T) {
	d, pub := newTestDiscovery(t, true, false)
	d.HandleMessage("tele/dev1/main/today_m3", []byte("1,2"))
	assert.Empty(t, pub.published(), "non-trigger field")

	d.HandleMessage("tele/dev1/main/value", []byte("12,3"))
	msgs := pub.published()
	require.Len(t, msgs, 8)
	assert.Equal(t, ModeField, d.Registry().Mode("dev1"))
	for i, st := range stateTopics(t, msgs) {
		assert.Equal(t, "tele/dev1/main/"+Sensors[i].Key, st)
	}

	d.HandleMessage("tele/dev1/main/gastotal", []byte("100"))
	assert.Len(t, pub.published(), 8)
}

func TestFieldTelemetryDisabled(t *testing.T) {
	d, pub := newTestDiscovery(t, false, false)
	d.HandleMessage("tele/dev1/main/gastotal", []byte("100"))
	d.HandleFieldTelemetry("dev1", "gastotal")
	assert.Empty(t, pub.published())
	assert.Equal(t, ModeUnset, d.Registry().Mode("dev1"))
}

// first observed mode wins, later JSON telemetry keeps per-field state topics
func TestModeLatchFirstWins(t *testing.T) {
	d, pub := newTestDiscovery(t, true, true)
	d.HandleMessage("tele/dev1/main/gastotal", []byte("100"))
	d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1, "value": 2}`))
	assert.Equal(t, ModeField, d.Registry().Mode("dev1"))
	assert.Len(t, pub.published(), 8)

	d.OnConnect()
	msgs := pub.published()
	require.Len(t, msgs, 16)
	assert.Equal(t, "tele/dev1/main/gastotal", stateTopics(t, msgs[8:])[0])

	d2, pub2 := newTestDiscovery(t, true, false)
	d2.HandleMessage("tele/dev2/json", []byte(`{"gastotal": 1, "value": 2}`))
	d2.HandleMessage("tele/dev2/main/value", []byte("2"))
	assert.Equal(t, ModeJSON, d2.Registry().Mode("dev2"))
	assert.Len(t, pub2.published(), 8)
}

func TestRepublishOnConnect(t *testing.T) {
	d, pub := newTestDiscovery(t, true, true)
	d.OnConnect()
	assert.Empty(t, pub.published())

	d.HandleMessage("tele/a/json", []byte(`{"gastotal": 1, "value": 2}`))
	d.HandleMessage("tele/b/json", []byte(`{"gastotal": 1, "value": 2}`))
	d.HandleMessage("tele/c/json", []byte(`{"value": 2}`))
	require.Len(t, pub.published(), 16)

	d.OnConnect()
	msgs := pub.published()
	require.Len(t, msgs, 32)
	assert.Equal(t, "homeassistant/sensor/smartnetz_gasreader_a/gastotal/config", msgs[16].Topic)
	assert.Equal(t, "homeassistant/sensor/smartnetz_gasreader_b/gastotal/config", msgs[24].Topic)
}

func TestPublishFailureRetriesOnNextTelemetry(t *testing.T) {
	d, pub := newTestDiscovery(t, true, false)
	pub.err = errors.New("not connected")
	d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1, "value": 2}`))
	assert.Len(t, pub.published(), 8)
	assert.False(t, d.Registry().IsDiscovered("dev1"))
	assert.Equal(t, ModeJSON, d.Registry().Mode("dev1"))

	pub.Lock()
	pub.err = nil
	pub.msgs = nil
	pub.Unlock()
	d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1, "value": 2}`))
	assert.Len(t, pub.published(), 8)
	assert.True(t, d.Registry().IsDiscovered("dev1"))

	d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1, "value": 2}`))
	assert.Len(t, pub.published(), 8)
}

func TestFieldPublishFailureRetries(t *testing.T) {
	d, pub := newTestDiscovery(t, true, false)
	pub.err = errors.New("not connected")
	d.HandleMessage("tele/dev1/main/gastotal", []byte("1"))
	assert.False(t, d.Registry().IsDiscovered("dev1"))

	pub.Lock()
	pub.err = nil
	pub.Unlock()
	d.HandleMessage("tele/dev1/main/value", []byte("1"))
	assert.True(t, d.Registry().IsDiscovered("dev1"))
	assert.Equal(t, 1, d.Registry().Len())
}

func TestConcurrentTelemetryAnnouncesOnce(t *testing.T) {
	d, pub := newTestDiscovery(t, true, false)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.HandleMessage("tele/dev1/json", []byte(`{"gastotal": 1, "value": 2}`))
		}()
		go func() {
			defer wg.Done()
			d.HandleMessage("tele/dev1/main/gastotal", []byte("1"))
		}()
	}
	wg.Wait()
	assert.Len(t, pub.published(), 8)
	assert.Equal(t, 1, d.Registry().Len())
}
