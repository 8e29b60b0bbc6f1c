package config

import (
	"fmt"
	"github.com/goccy/go-yaml"
	"net"
	"strconv"
	"strings"
)

type ConfigWithDefault interface {
	GetDefaultConfig() string
}

var _ ConfigWithDefault = &Config{}

type Config struct {
	MQTTHost           string `yaml:"mqtt_host"`
	MQTTPort           int    `yaml:"mqtt_port"`
	MQTTUsername       string `yaml:"mqtt_username"`
	MQTTPassword       string `yaml:"mqtt_password"`
	MQTTTLS            bool   `yaml:"mqtt_tls"`
	MQTTClientID       string `yaml:"mqtt_client_id"`
	DiscoveryPrefix    string `yaml:"discovery_prefix"`
	TelePrefix         string `yaml:"tele_prefix"`
	JSONSuffix         string `yaml:"json_suffix"`
	EnableFieldMode    bool   `yaml:"enable_field_mode"`
	RepublishOnConnect bool   `yaml:"republish_on_connect"`
	ListenAddress      string `yaml:"listen_address"`
	Debug              bool   `yaml:"debug"`
	PProfAddress       string `yaml:"pprof_address"`
}

func Default() Config {
	return Config{
		MQTTHost:           "core-mosquitto",
		MQTTPort:           1883,
		DiscoveryPrefix:    "homeassistant",
		TelePrefix:         "tele",
		JSONSuffix:         "json",
		EnableFieldMode:    true,
		RepublishOnConnect: true,
	}
}

func (c *Config) GetDefaultConfig() string {
	cfg := Default()
	cfg.MQTTUsername = "mqtt"
	cfg.MQTTPassword = "changeme"
	cfg.ListenAddress = "127.0.0.1:3001"
	b, _ := yaml.Marshal(&cfg)
	return string(b)
}

// BrokerURL returns paho broker address, ssl:// scheme is used when TLS is enabled
func (c *Config) BrokerURL() string {
	scheme := "tcp"
	if c.MQTTTLS {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(c.MQTTHost, strconv.Itoa(c.MQTTPort))
}

func (c *Config) Validate() error {
	if c.MQTTHost == "" {
		return fmt.Errorf("mqtt_host is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("mqtt_port out of range: %d", c.MQTTPort)
	}
	for name, v := range map[string]string{
		"discovery_prefix": c.DiscoveryPrefix,
		"tele_prefix":      c.TelePrefix,
		"json_suffix":      c.JSONSuffix,
	} {
		if v == "" {
			return fmt.Errorf("%s can't be empty", name)
		}
		if strings.ContainsAny(v, "+#") {
			return fmt.Errorf("%s can't contain MQTT wildcards: %s", name, v)
		}
		if strings.HasPrefix(v, "/") || strings.HasSuffix(v, "/") {
			return fmt.Errorf("%s can't start or end with /: %s", name, v)
		}
	}
	if strings.Contains(c.JSONSuffix, "/") {
		return fmt.Errorf("json_suffix must be a single topic segment: %s", c.JSONSuffix)
	}
	return nil
}
