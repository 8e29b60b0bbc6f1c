package discovery

import (
	"strings"
)

const mainSegment = "main"
const lwtSegment = "LWT"

// NodePrefix is prepended to device id to form Home Assistant node id
const NodePrefix = "smartnetz_gasreader_"

// Topics holds the topic layout of both telemetry and discovery side
type Topics struct {
	DiscoveryPrefix string
	TelePrefix      string
	JSONSuffix      string
}

func DefaultTopics() Topics {
	return Topics{
		DiscoveryPrefix: "homeassistant",
		TelePrefix:      "tele",
		JSONSuffix:      "json",
	}
}

func NodeID(device string) string {
	return NodePrefix + device
}

func (t Topics) JSONFilter() string {
	return t.TelePrefix + "/+/" + t.JSONSuffix
}

func (t Topics) FieldFilter() string {
	return t.TelePrefix + "/+/" + mainSegment + "/#"
}

func (t Topics) LWTFilter() string {
	return t.TelePrefix + "/+/" + lwtSegment
}

func (t Topics) JSONTopic(device string) string {
	return t.TelePrefix + "/" + device + "/" + t.JSONSuffix
}

func (t Topics) FieldTopic(device string, key string) string {
	return t.TelePrefix + "/" + device + "/" + mainSegment + "/" + key
}

func (t Topics) LWTTopic(device string) string {
	return t.TelePrefix + "/" + device + "/" + lwtSegment
}

// DiscoveryTopic returns {discovery_prefix}/sensor/{node_id}/{key}/config
func (t Topics) DiscoveryTopic(device string, key string) string {
	return t.DiscoveryPrefix + "/sensor/" + NodeID(device) + "/" + key + "/config"
}

type EventKind int

const (
	Irrelevant EventKind = iota
	JsonTelemetry
	FieldTelemetry
	LastWill
)

func (k EventKind) String() string {
	switch k {
	case JsonTelemetry:
		return "json"
	case FieldTelemetry:
		return "field"
	case LastWill:
		return "lwt"
	}
	return "irrelevant"
}

// Event is a classified inbound topic
type Event struct {
	Kind   EventKind
	Device string
	// Field is only set for FieldTelemetry
	Field string
}

// Classifier maps raw topics to events. Matching is purely structural: segment count and literal segment equality.
type Classifier struct {
	topics    Topics
	prefix    []string
	fieldMode bool
}

func NewClassifier(topics Topics, fieldMode bool) *Classifier {
	return &Classifier{
		topics:    topics,
		prefix:    strings.Split(topics.TelePrefix, "/"),
		fieldMode: fieldMode,
	}
}

func (c *Classifier) Classify(topic string) Event {
	parts := strings.Split(topic, "/")
	if len(parts) < len(c.prefix)+2 {
		return Event{}
	}
	for i, p := range c.prefix {
		if parts[i] != p {
			return Event{}
		}
	}
	rest := parts[len(c.prefix):]
	device := rest[0]
	if device == "" {
		return Event{}
	}
	switch len(rest) {
	case 2:
		switch rest[1] {
		case c.topics.JSONSuffix:
			return Event{Kind: JsonTelemetry, Device: device}
		case lwtSegment:
			return Event{Kind: LastWill, Device: device}
		}
	case 3:
		if c.fieldMode && rest[1] == mainSegment && rest[2] != "" {
			return Event{Kind: FieldTelemetry, Device: device, Field: rest[2]}
		}
	}
	return Event{}
}
