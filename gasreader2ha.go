package main

import (
	"context"
	"github.com/XANi/gasreader2ha/config"
	"github.com/XANi/gasreader2ha/discovery"
	"github.com/XANi/gasreader2ha/queue"
	"github.com/XANi/gasreader2ha/web"
	"github.com/XANi/go-yamlcfg"
	"github.com/XANi/goneric"
	"github.com/efigence/go-mon"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

var version string
var log *zap.SugaredLogger
var debug = true
var exit = make(chan error, 1)

func init() {
	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	// naive systemd detection. Drop timestamp if running under it
	if os.Getenv("JOURNAL_STREAM") != "" {
		consoleEncoderConfig.TimeKey = ""
	}
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(consoleEncoderConfig)
	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return (lvl < zapcore.ErrorLevel) != (lvl == zapcore.DebugLevel && !debug)
	})
	core := zapcore.NewTee(
		zapcore.NewCore(consoleEncoder, os.Stderr, lowPriority),
		zapcore.NewCore(consoleEncoder, os.Stderr, highPriority),
	)
	logger := zap.New(core)
	if debug {
		logger = logger.WithOptions(
			zap.Development(),
			zap.AddCaller(),
			zap.AddStacktrace(highPriority),
		)
	} else {
		logger = logger.WithOptions(
			zap.AddCaller(),
		)
	}
	log = logger.Sugar()

}

func main() {
	defer log.Sync()
	// register internal stats
	mon.RegisterGcStats()
	def := config.Default()
	app := &cli.Command{
		Name:        "gasreader2ha",
		Description: "Announce Smartnetz gas readers publishing over MQTT to Home Assistant discovery",
		Version:     version,
		HideHelp:    true,
	}
	log.Infof("Starting %s version: %s", app.Name, version)
	app.Flags = []cli.Flag{
		&cli.BoolFlag{Name: "help, h", Usage: "show help"},
		&cli.BoolFlag{Name: "debug, d", Usage: "enable debug logs"},
		&cli.StringFlag{Name: "config, c",
			Usage: "config file. Will be created if it does not exist",
		},
		&cli.StringFlag{
			Name:    "mqtt-host",
			Value:   def.MQTTHost,
			Usage:   "mqtt broker host",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("MQTT_HOST"),
			),
		},
		&cli.IntFlag{
			Name:    "mqtt-port",
			Value:   int64(def.MQTTPort),
			Usage:   "mqtt broker port",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("MQTT_PORT"),
			),
		},
		&cli.StringFlag{
			Name:    "mqtt-username",
			Usage:   "mqtt username",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("MQTT_USERNAME"),
			),
		},
		&cli.StringFlag{
			Name:    "mqtt-password",
			Usage:   "mqtt password",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("MQTT_PASSWORD"),
			),
		},
		&cli.BoolFlag{
			Name:    "mqtt-tls",
			Usage:   "connect to broker over TLS",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("MQTT_TLS"),
			),
		},
		&cli.StringFlag{
			Name:    "mqtt-client-id",
			Usage:   "mqtt client id, generated from hostname if empty",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("MQTT_CLIENT_ID"),
			),
		},
		&cli.StringFlag{
			Name:    "discovery-prefix",
			Value:   def.DiscoveryPrefix,
			Usage:   "home assistant discovery topic prefix",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("DISCOVERY_PREFIX"),
			),
		},
		&cli.StringFlag{
			Name:    "tele-prefix",
			Value:   def.TelePrefix,
			Usage:   "gas reader telemetry topic prefix",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("TELE_PREFIX"),
			),
		},
		&cli.StringFlag{
			Name:    "json-suffix",
			Value:   def.JSONSuffix,
			Usage:   "topic segment of consolidated JSON telemetry",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("JSON_SUFFIX"),
			),
		},
		&cli.BoolFlag{
			Name:    "enable-field-mode",
			Value:   def.EnableFieldMode,
			Usage:   "also discover devices publishing per-field <prefix>/<dev>/main/<key> topics",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("ENABLE_FIELD_MODE"),
			),
		},
		&cli.BoolFlag{
			Name:    "republish-on-connect",
			Value:   def.RepublishOnConnect,
			Usage:   "republish discovery of known devices after every broker reconnect",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("REPUBLISH_ON_CONNECT"),
			),
		},
		&cli.StringFlag{
			Name:    "listen-addr",
			Usage:   "status HTTP listen addr, disabled by default",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LISTEN_ADDR"),
			),
		},
		&cli.StringFlag{
			Name:  "pprof-addr",
			Value: "",
			Usage: "address to run pprof on, disabled by default",
		},
	}
	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Bool("help") {
			cli.ShowAppHelp(c)
			os.Exit(1)
		}
		cfg := config.Config{
			MQTTHost:           c.String("mqtt-host"),
			MQTTPort:           int(c.Int("mqtt-port")),
			MQTTUsername:       c.String("mqtt-username"),
			MQTTPassword:       c.String("mqtt-password"),
			MQTTTLS:            c.Bool("mqtt-tls"),
			MQTTClientID:       c.String("mqtt-client-id"),
			DiscoveryPrefix:    c.String("discovery-prefix"),
			TelePrefix:         c.String("tele-prefix"),
			JSONSuffix:         c.String("json-suffix"),
			EnableFieldMode:    c.Bool("enable-field-mode"),
			RepublishOnConnect: c.Bool("republish-on-connect"),
			ListenAddress:      c.String("listen-addr"),
			Debug:              c.Bool("debug"),
			PProfAddress:       c.String("pprof-addr"),
		}
		if c.String("config") != "" {
			err := yamlcfg.LoadConfig([]string{c.String("config")}, &cfg)
			if err != nil {
				log.Fatal(err)
			}
		}
		debug = cfg.Debug
		log.Debug("debug enabled")
		if err := cfg.Validate(); err != nil {
			log.Fatalf("invalid config: %s", err)
		}
		if cfg.MQTTClientID == "" {
			cfg.MQTTClientID = "gasreader2ha-" + goneric.Must(os.Hostname())
		}

		if len(cfg.PProfAddress) > 0 {
			log.Infof("listening pprof on %s", cfg.PProfAddress)
			go func() {
				log.Errorf("failed to start debug listener: %s (ignoring)", http.ListenAndServe(cfg.PProfAddress, nil))
			}()
		}
		q, err := queue.New(&queue.Config{
			MQTTAddr: cfg.BrokerURL(),
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			TLS:      cfg.MQTTTLS,
			ClientID: cfg.MQTTClientID,
			Logger:   log.Named("mq"),
		})
		if err != nil {
			log.Panicf("error setting up queue: %s", err)
		}
		d, err := discovery.New(&discovery.Config{
			Topics: discovery.Topics{
				DiscoveryPrefix: cfg.DiscoveryPrefix,
				TelePrefix:      cfg.TelePrefix,
				JSONSuffix:      cfg.JSONSuffix,
			},
			EnableFieldMode:    cfg.EnableFieldMode,
			RepublishOnConnect: cfg.RepublishOnConnect,
			Publisher:          q,
			Logger:             log.Named("discovery"),
		})
		if err != nil {
			log.Panicf("error setting up discovery: %s", err)
		}
		if len(cfg.ListenAddress) > 0 {
			w, err := web.New(web.Config{
				Logger:     log.Named("web"),
				ListenAddr: cfg.ListenAddress,
				Devices:    d.Registry(),
			})
			if err != nil {
				log.Panicf("error starting web listener: %s", err)
			}
			go func() {
				exit <- w.Run()
			}()
		}
		log.Infof("connecting to %s, subscribing %s", cfg.BrokerURL(), strings.Join(d.Subscriptions(), " "))
		if err := q.Start(d); err != nil {
			log.Panicf("error starting queue listener: %s", err)
		}
		defer q.Stop()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case err := <-exit:
			return err
		case s := <-sig:
			log.Infof("got %s, exiting", s)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
