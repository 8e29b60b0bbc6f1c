package discovery

import (
	"fmt"
	"github.com/goccy/go-json"
)

const (
	Manufacturer        = "Smartnetz"
	Model               = "Gasreader"
	PayloadAvailable    = "Online"
	PayloadNotAvailable = "Offline"
)

// HADiscovery is the sensor config payload, device_class is omitted for class-less sensors
type HADiscovery struct {
	Name          string           `json:"name"`
	UniqID        string           `json:"unique_id"`
	StateTopic    string           `json:"state_topic"`
	Unit          string           `json:"unit_of_measurement"`
	StateClass    StateClass       `json:"state_class"`
	DeviceClass   DeviceClass      `json:"device_class,omitempty"`
	Dev           *HADevice        `json:"device"`
	Availability  []HAAvailability `json:"availability"`
	ValueTemplate string           `json:"value_template"`
}

type HADevice struct {
	IDs          []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type HAAvailability struct {
	Topic               string `json:"topic"`
	PayloadAvailable    string `json:"payload_available"`
	PayloadNotAvailable string `json:"payload_not_available"`
}

// Announcement is a single retained discovery message
type Announcement struct {
	Topic   string
	Payload []byte
}

// JSONValueTemplate extracts key from consolidated JSON state.
// Missing key defaults to '0', decimal comma is replaced before float conversion.
func JSONValueTemplate(key string) string {
	return fmt.Sprintf("{{ (value_json.%s | default('0') | string | replace(',', '.') ) | float }}", key)
}

// FieldValueTemplate is JSONValueTemplate applied to a raw per-field state
func FieldValueTemplate() string {
	return "{{ (value | default('0') | string | replace(',', '.') ) | float }}"
}

func newDevice(device string) *HADevice {
	return &HADevice{
		IDs:          []string{NodeID(device)},
		Name:         "Smartnetz Gasreader " + device,
		Manufacturer: Manufacturer,
		Model:        Model,
	}
}

// NewHADiscovery builds discovery payload for one sensor of a device
func NewHADiscovery(topics Topics, device string, mode Mode, sensor SensorDefinition) HADiscovery {
	d := HADiscovery{
		Name:        sensor.Name,
		UniqID:      NodeID(device) + "_" + sensor.Key,
		Unit:        sensor.Unit,
		StateClass:  sensor.StateClass,
		DeviceClass: sensor.DeviceClass,
		Dev:         newDevice(device),
		Availability: []HAAvailability{{
			Topic:               topics.LWTTopic(device),
			PayloadAvailable:    PayloadAvailable,
			PayloadNotAvailable: PayloadNotAvailable,
		}},
	}
	if mode == ModeField {
		d.StateTopic = topics.FieldTopic(device, sensor.Key)
		d.ValueTemplate = FieldValueTemplate()
	} else {
		d.StateTopic = topics.JSONTopic(device)
		d.ValueTemplate = JSONValueTemplate(sensor.Key)
	}
	return d
}

// BuildAnnouncement returns discovery topic and encoded payload. Unset mode is treated as JSON.
func BuildAnnouncement(topics Topics, device string, mode Mode, sensor SensorDefinition) (Announcement, error) {
	b, err := json.Marshal(NewHADiscovery(topics, device, mode, sensor))
	if err != nil {
		return Announcement{}, fmt.Errorf("error encoding discovery for %s/%s: %w", device, sensor.Key, err)
	}
	return Announcement{
		Topic:   topics.DiscoveryTopic(device, sensor.Key),
		Payload: b,
	}, nil
}
