package discovery

import (
	"fmt"
	"go.uber.org/zap"
)

// Publisher sends retained messages to the bus. Implementations must not block on broker acknowledgement.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
}

type Config struct {
	Topics Topics
	// EnableFieldMode adds support for per-field tele/<dev>/main/<key> topics
	EnableFieldMode bool
	// RepublishOnConnect re-announces every discovered device on each (re)connect
	RepublishOnConnect bool
	Publisher          Publisher
	Logger             *zap.SugaredLogger
}

type Discovery struct {
	topics     Topics
	classifier *Classifier
	registry   *Registry
	pub        Publisher
	fieldMode  bool
	republish  bool
	l          *zap.SugaredLogger
}

func New(cfg *Config) (*Discovery, error) {
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if cfg.Topics.TelePrefix == "" || cfg.Topics.DiscoveryPrefix == "" || cfg.Topics.JSONSuffix == "" {
		return nil, fmt.Errorf("incomplete topic config: %+v", cfg.Topics)
	}
	d := &Discovery{
		topics:     cfg.Topics,
		classifier: NewClassifier(cfg.Topics, cfg.EnableFieldMode),
		registry:   NewRegistry(),
		pub:        cfg.Publisher,
		fieldMode:  cfg.EnableFieldMode,
		republish:  cfg.RepublishOnConnect,
		l:          cfg.Logger,
	}
	if d.l == nil {
		d.l = zap.NewNop().Sugar()
	}
	return d, nil
}

func (d *Discovery) Registry() *Registry {
	return d.registry
}

// Subscriptions returns topic filters that have to be subscribed for HandleMessage
func (d *Discovery) Subscriptions() []string {
	subs := []string{d.topics.JSONFilter()}
	if d.fieldMode {
		subs = append(subs, d.topics.FieldFilter())
	}
	return append(subs, d.topics.LWTFilter())
}

// HandleMessage is the bus callback entry point. It never fails, bad messages are logged and dropped.
func (d *Discovery) HandleMessage(topic string, payload []byte) {
	ev := d.classifier.Classify(topic)
	switch ev.Kind {
	case JsonTelemetry:
		d.HandleJsonTelemetry(ev.Device, payload)
	case FieldTelemetry:
		d.HandleFieldTelemetry(ev.Device, ev.Field)
	case LastWill:
		d.l.Debugf("[%s] LWT: %s", ev.Device, string(payload))
	default:
		d.l.Debugf("ignoring %s", topic)
	}
}

func (d *Discovery) HandleJsonTelemetry(device string, payload []byte) {
	t, err := DecodeTelemetry(payload)
	if err != nil {
		d.l.Warnf("[%s] could not decode telemetry %s: %s", device, string(payload), err)
		return
	}
	if err := t.Validate(); err != nil {
		d.l.Debugf("[%s] skipping telemetry: %s", device, err)
		return
	}
	if d.registry.IsDiscovered(device) {
		d.l.Debugf("[%s] gastotal=%s value=%s", device, t.reading("gastotal"), t.reading("value"))
		return
	}
	if m := d.registry.LatchMode(device, ModeJSON); m != ModeJSON {
		d.l.Debugf("[%s] got JSON telemetry, keeping mode %s", device, m)
	}
	if d.registry.MarkDiscovered(device) {
		d.l.Infof("[%s] valid JSON telemetry, publishing discovery", device)
		d.discover(device)
	}
}

// HandleFieldTelemetry reacts only to gastotal and value keys, other fields are plain readings
func (d *Discovery) HandleFieldTelemetry(device string, field string) {
	if !d.fieldMode || !isTriggerField(field) {
		return
	}
	d.registry.LatchMode(device, ModeField)
	if d.registry.MarkDiscovered(device) {
		d.l.Infof("[%s] main value %s, publishing discovery", device, field)
		d.discover(device)
	}
}

// OnConnect should be called by bus connector after every successful (re)connect
func (d *Discovery) OnConnect() {
	if !d.republish {
		return
	}
	if n := d.Republish(); n > 0 {
		d.l.Infof("republished discovery for %d devices", n)
	}
}

// Republish announces every discovered device again and returns number of devices
func (d *Discovery) Republish() int {
	n := 0
	for _, dev := range d.registry.Devices() {
		if dev.Discovered {
			d.announce(dev.ID)
			n++
		}
	}
	return n
}

// Announcements builds discovery messages for every sensor of device using its current mode
func (d *Discovery) Announcements(device string) ([]Announcement, error) {
	mode := d.registry.Mode(device)
	out := make([]Announcement, 0, len(Sensors))
	for _, s := range Sensors {
		a, err := BuildAnnouncement(d.topics, device, mode, s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// discover announces device already claimed via MarkDiscovered, the claim is dropped if nothing got published
// so next valid telemetry retries.
func (d *Discovery) discover(device string) {
	if d.announce(device) == 0 {
		d.l.Warnf("[%s] no discovery message published, will retry on next telemetry", device)
		d.registry.forget(device)
	}
}

// announce returns number of successfully queued messages
func (d *Discovery) announce(device string) int {
	anns, err := d.Announcements(device)
	if err != nil {
		d.l.Errorf("[%s] %s", device, err)
		return 0
	}
	sent := 0
	for _, a := range anns {
		if err := d.pub.PublishRetained(a.Topic, a.Payload); err != nil {
			d.l.Warnf("[%s] error publishing %s: %s", device, a.Topic, err)
			continue
		}
		sent++
	}
	return sent
}
