package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/lkarthik76/ddnd/internal/config"
	"github.com/lkarthik76/ddnd/internal/delivery"
	"github.com/lkarthik76/ddnd/internal/driving"
	"github.com/lkarthik76/ddnd/internal/events"
	"github.com/lkarthik76/ddnd/internal/handlers"
	"github.com/lkarthik76/ddnd/internal/health"
	"github.com/lkarthik76/ddnd/internal/identity"
	"github.com/lkarthik76/ddnd/internal/models"
	"github.com/lkarthik76/ddnd/internal/platform"
	"github.com/lkarthik76/ddnd/internal/risk"
	"github.com/lkarthik76/ddnd/internal/server"
	"github.com/lkarthik76/ddnd/internal/telegram"
	"github.com/lkarthik76/ddnd/internal/transport"
	"github.com/lkarthik76/ddnd/internal/uplink"
	"github.com/lkarthik76/ddnd/internal/utils"
)

// Companion wires the biometric upload loop, the risk poller and the
// driving watcher around one driver identity.
type Companion struct {
	config   *models.Config
	version  string
	identity models.Identity
	clock    utils.Clock
	logger   *zap.Logger

	redisClient *redis.Client
	samples     *platform.SampleStore
	live        *platform.LiveSession
	runtime     *platform.RuntimeSession
	aggregator  *health.Aggregator
	sender      *delivery.Sender
	poller      *risk.Poller
	gate        *driving.Gate
	watcher     *driving.Watcher
	dispatcher  *events.Dispatcher
	notifier    *telegram.Notifier
	uplink      *uplink.Uplink
	commands    *handlers.CommandHandler
	server      *server.Server

	healthInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCompanion connects to the platform bridge and builds every component.
// Nothing runs until Start.
func NewCompanion(cfg *models.Config, configPath string, version string, logger *zap.Logger) (*Companion, error) {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Companion{
		config:         cfg,
		version:        version,
		logger:         logger,
		healthInterval: config.MustDuration(cfg.Health.Interval),
		ctx:            ctx,
		cancel:         cancel,
	}

	redisClient, err := platform.Connect(ctx, cfg.RedisURL)
	if err != nil {
		cancel()
		return nil, err
	}
	c.redisClient = redisClient
	logger.Info("Connected to platform bridge", zap.String("redis_url", cfg.RedisURL))

	if err := c.build(configPath); err != nil {
		c.closeStores()
		cancel()
		return nil, err
	}

	return c, nil
}

func (c *Companion) build(configPath string) error {
	cfg := c.config

	c.clock = utils.NewClock(&cfg.NTP, c.logger)
	c.identity = identity.New(cfg, configPath, c.logger)

	httpClient, err := transport.NewHTTPClient(cfg.Endpoint.CACert, config.MustDuration(cfg.Endpoint.Timeout))
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %v", err)
	}

	c.live = platform.NewLiveSession(c.redisClient, c.clock, c.logger)
	c.runtime = platform.NewRuntimeSession(c.redisClient)

	var history health.HistorySource
	if cfg.Health.HistoryPath != "" {
		c.samples, err = platform.OpenSampleStore(cfg.Health.HistoryPath, c.logger)
		if err != nil {
			return err
		}
		history = c.samples
	} else {
		c.logger.Warn("No history path configured, uploading live values only")
	}
	c.aggregator = health.NewAggregator(c.live, history, c.clock, config.MustDuration(cfg.Health.HistoryWindow), c.logger)
	c.sender = delivery.NewSender(httpClient, cfg.Endpoint.BaseURL, cfg.Delivery.MaxInFlight, c.clock, cfg.Debug, c.logger)

	buffer := events.NewBuffer(cfg.Events.BufferPath, cfg.Events.MaxRetries, c.logger)
	c.dispatcher = events.NewDispatcher(buffer, c.logger)

	riskClient, err := risk.NewClient(httpClient, cfg.Endpoint.BaseURL, c.logger)
	if err != nil {
		return err
	}
	c.poller = risk.NewPoller(riskClient, c.identity, platform.NewHaptics(c.redisClient, c.logger), c.dispatcher, c.clock, risk.PollerConfig{
		Interval:      config.MustDuration(cfg.Risk.Interval),
		CountdownTick: config.MustDuration(cfg.Risk.CountdownTick),
		Emphasis:      config.MustDuration(cfg.Risk.Emphasis),
	}, c.logger)

	c.gate = driving.NewGate(driving.GateConfig{
		Policy:         cfg.Driving.Policy,
		Primary:        driving.Source(cfg.Driving.Primary),
		StaleAfter:     config.MustDuration(cfg.Driving.StaleAfter),
		SpeedThreshold: cfg.Driving.SpeedThreshold,
	}, c.clock, c.dispatcher, c.logger)
	c.watcher = driving.NewWatcher(c.redisClient, c.gate, c.logger)

	if cfg.Telegram.Enabled {
		c.notifier, err = telegram.NewNotifier(&cfg.Telegram, c.identity, nil, c.logger)
		if err != nil {
			return fmt.Errorf("failed to create Telegram notifier: %v", err)
		}
		c.dispatcher.AddListener(c.notifier)
	}

	if cfg.MQTT.BrokerURL != "" {
		c.uplink, err = uplink.New(&cfg.MQTT, c.identity, c.onUplinkConnect, c.logger)
		if err != nil {
			return fmt.Errorf("failed to create MQTT uplink: %v", err)
		}
		c.dispatcher.SetPublisher(c.uplink)
		c.dispatcher.AddListener(c.uplink)
		c.commands = handlers.NewCommandHandler(c.uplink, handlers.Actions{
			RefreshRisk: c.poller.Refresh,
			State:       c.state,
		}, c.logger)
	}

	if cfg.Server.ListenAddr != "" {
		c.server = server.New(cfg.Server.ListenAddr, server.Sources{
			Identity: c.identity,
			Risk:     c.poller.State,
			Driving:  c.gate.State,
			Record:   c.sender.LastDelivered,
			Delivery: c.sender.Stats,
			Refresh:  c.poller.Refresh,
		}, c.logger)
	}

	return nil
}

// onUplinkConnect runs on every broker (re)connect
func (c *Companion) onUplinkConnect() {
	if err := c.uplink.Subscribe("commands", c.commands.HandleMessage); err != nil {
		c.logger.Warn("Failed to subscribe to commands", zap.Error(err))
	}
	c.dispatcher.FlushBuffered()
}

// state is the snapshot published for get_state
func (c *Companion) state() interface{} {
	return map[string]interface{}{
		"identity": c.identity,
		"risk":     c.poller.State(),
		"driving":  c.gate.State(),
		"delivery": c.sender.Stats(),
		"version":  c.version,
	}
}

// Start launches the loops
func (c *Companion) Start() error {
	if c.uplink != nil {
		if err := c.uplink.Connect(); err != nil {
			return err
		}
	}

	c.dispatcher.Start(c.ctx)
	if c.notifier != nil {
		c.notifier.Start(c.ctx)
	}

	ready := make(chan struct{})

	c.wg.Add(3)
	go c.runHealthLoop()
	go func() {
		defer c.wg.Done()
		c.poller.Run(c.ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.watcher.Run(c.ctx, ready)
	}()

	if c.server != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := c.server.Run(c.ctx); err != nil {
				c.logger.Error("Status API failed", zap.Error(err))
			}
		}()
	}

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		c.logger.Warn("Driving watcher not subscribed yet")
	}

	c.logger.Info("Companion started",
		zap.String("version", c.version),
		zap.String("short_user_id", c.identity.ShortUserID),
		zap.String("driver_id", c.identity.DriverID),
		zap.Duration("health_interval", c.healthInterval))
	return nil
}

// Stop cancels every loop, drains in-flight deliveries and closes connections
func (c *Companion) Stop() {
	if c.notifier != nil {
		c.logger.Info("Stopping Telegram notifier...")
		c.notifier.Stop()
	}

	c.logger.Info("Cancelling companion context...")
	c.cancel()

	c.logger.Info("Waiting for loops to finish...")
	c.wg.Wait()
	c.dispatcher.Stop()

	c.logger.Info("Waiting for in-flight deliveries...")
	c.sender.Wait()

	if c.uplink != nil {
		c.uplink.Close()
	}

	c.closeStores()

	stats := c.sender.Stats()
	c.logger.Info("Companion stopped",
		zap.Int64("delivered", stats.Delivered),
		zap.Int64("failed", stats.Failed),
		zap.Int64("dropped", stats.Dropped))
}

func (c *Companion) closeStores() {
	if c.samples != nil {
		if err := c.samples.Close(); err != nil {
			c.logger.Warn("Error closing sample store", zap.Error(err))
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.logger.Warn("Error closing Redis client", zap.Error(err))
		}
	}
}

func (c *Companion) runHealthLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.collectAndSend(c.ctx)
		}
	}
}

// collectAndSend runs one upload cycle. It reports whether a delivery was
// started. The cycle pauses only while the runtime session is invalidated;
// a stopped workout leaves the recorded history to upload.
func (c *Companion) collectAndSend(ctx context.Context) bool {
	active, err := c.runtime.Active(ctx)
	if err != nil {
		c.logger.Warn("Failed to read runtime session state", zap.Error(err))
		return false
	}
	if !active {
		c.logger.Debug("Runtime session invalidated, skipping upload")
		return false
	}

	record, err := c.aggregator.Collect(ctx)
	if errors.Is(err, health.ErrSourcesUnavailable) {
		return false
	}
	if err != nil {
		c.logger.Warn("Collect failed", zap.Error(err))
		return false
	}

	return c.sender.Send(ctx, record, c.identity)
}
