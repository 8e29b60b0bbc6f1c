package web

import (
	"fmt"
	"github.com/XANi/gasreader2ha/discovery"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// DeviceLister is implemented by *discovery.Registry
type DeviceLister interface {
	Devices() []discovery.DeviceState
	Len() int
}

type Config struct {
	Logger     *zap.SugaredLogger
	ListenAddr string
	Devices    DeviceLister
}

type WebBackend struct {
	l          *zap.SugaredLogger
	r          *gin.Engine
	listenAddr string
	devices    DeviceLister
	startedAt  time.Time
}

func New(cfg Config) (*WebBackend, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("missing logger")
	}
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("missing listen address")
	}
	if cfg.Devices == nil {
		return nil, fmt.Errorf("missing device source")
	}
	w := WebBackend{
		l:          cfg.Logger,
		listenAddr: cfg.ListenAddr,
		devices:    cfg.Devices,
		startedAt:  time.Now(),
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	w.r = r
	r.Use(ginzap.Ginzap(w.l.Desugar(), time.RFC3339, false))
	r.Use(ginzap.RecoveryWithZap(w.l.Desugar(), true))
	r.GET("/health", w.health)
	r.GET("/api/devices", w.listDevices)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return &w, nil
}

func (b *WebBackend) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(b.startedAt).Round(time.Second).String(),
	})
}

func (b *WebBackend) listDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"devices":    b.devices.Devices(),
		"discovered": b.devices.Len(),
	})
}

func (b *WebBackend) Run() error {
	b.l.Infof("listening on %s", b.listenAddr)
	return b.r.Run(b.listenAddr)
}
