// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/swctl/internal/command"
	"firestige.xyz/swctl/internal/config"
	"firestige.xyz/swctl/internal/controller"
	"firestige.xyz/swctl/internal/core"
	"firestige.xyz/swctl/internal/eventbus"
	"firestige.xyz/swctl/internal/log"
	"firestige.xyz/swctl/internal/metrics"
	"firestige.xyz/swctl/internal/reporter"
	"firestige.xyz/swctl/internal/store"
)

// Version is reported by daemon_status.
var Version = "0.1.0"

// Daemon manages the swctl daemon process lifecycle.
type Daemon struct {
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	sw       *switchHandle
	host     *host
	ctl      *controller.Controller
	bus      *eventbus.InMemoryEventBus
	reporter *reporter.LinkReporter // nil if the reporter is disabled

	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	kafkaConsumer *command.KafkaCommandConsumer // nil if the command channel is disabled
	metricsServer *metrics.Server               // nil if metrics are disabled

	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	sigChan      chan os.Signal
}

// New loads the configuration. Empty socketPath and pidFile fall back to
// the control section of the config.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if socketPath == "" {
		socketPath = cfg.Control.Socket
	}
	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Start opens the switch and starts every component. The switch is
// initialized asynchronously by the controller loop, so the control socket
// answers while identification is still pending.
func (d *Daemon) Start() error {
	if err := log.Init(&d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := log.GetLogger()
	logger.WithFields(map[string]interface{}{
		"version":  Version,
		"hostname": d.config.Node.Hostname,
		"chip":     d.config.Switch.Chip,
		"config":   d.configPath,
		"socket":   d.socketPath,
	}).Info("starting swctl daemon")

	if err := d.writePIDFile(); err != nil {
		return err
	}
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	sw, err := openSwitch(d.config.Switch)
	if err != nil {
		return fmt.Errorf("failed to open switch: %w", err)
	}
	d.sw = sw

	links, err := d.startEventBus()
	if err != nil {
		return err
	}

	opts := []controller.Option{controller.WithLinkBus(links)}
	if d.config.Store.Enabled {
		st, err := store.NewFileStore(d.config.Store.Dir, d.config.Switch.Chip)
		if err != nil {
			logger.WithError(err).Warn("static fdb store unavailable, persistence disabled")
		} else {
			opts = append(opts, controller.WithStore(st))
		}
	}

	d.host = newHost()
	d.ctl, err = controller.New(sw.chip, d.host, d.controllerConfig(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create controller: %w", err)
	}

	d.wg.Add(1)
	go d.runController()

	d.cmdHandler = command.NewCommandHandler(d.ctl, Version)
	d.cmdHandler.SetShutdownFunc(func() {
		logger.Info("shutdown triggered via daemon_shutdown command")
		d.TriggerShutdown()
	})

	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("uds server failed")
		}
	}()

	if d.config.Control.Kafka.Enabled {
		if err := d.startKafkaConsumer(); err != nil {
			// UDS control keeps working.
			logger.WithError(err).Error("failed to start kafka consumer")
		}
	}

	logger.Info("daemon started successfully")
	return nil
}

func (d *Daemon) controllerConfig() controller.Config {
	sw := d.config.Switch
	cfg := controller.Config{
		Interface:      sw.Interface,
		PortSeparation: sw.PortSeparation,
		TailTag:        sw.TailTag,
		StaticEntries:  d.config.StaticEntries(),
		Poller:         poller(sw),
	}
	for _, b := range sw.Bindings {
		cfg.Bindings = append(cfg.Bindings, controller.VirtualPortBinding{Port: b.Port, Interface: b.Interface})
	}
	return cfg
}

// startEventBus creates the link bus and attaches the metrics, log and
// Kafka subscribers.
func (d *Daemon) startEventBus() (*eventbus.LinkBus, error) {
	d.bus = eventbus.NewInMemoryEventBus(d.config.EventBus.Partitions, d.config.EventBus.QueueSize)
	links := eventbus.NewLinkBus(d.bus)

	if err := links.SubscribeLink(metrics.ObserveLink); err != nil {
		return nil, err
	}
	linkLog := log.GetLogger().WithField("component", "link")
	if err := links.SubscribeLink(func(ev eventbus.LinkEvent) error {
		linkLog.WithFields(map[string]interface{}{
			"interface": ev.Interface,
			"port":      ev.Port,
			"link":      ev.State.String(),
			"speed":     ev.Speed.String(),
		}).Debug("link event")
		return nil
	}); err != nil {
		return nil, err
	}

	rk := d.config.Reporter.Kafka
	if !rk.Enabled {
		return links, nil
	}
	rep, err := reporter.New(reporter.Config{
		Brokers:      rk.Brokers,
		Topic:        rk.Topic,
		BatchSize:    rk.BatchSize,
		BatchTimeout: rk.BatchTimeout,
		Compression:  rk.Compression,
		MaxAttempts:  rk.MaxAttempts,
		WriteTimeout: rk.WriteTimeout,
	}, d.config.Node.Hostname, d.config.Switch.Chip)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka reporter: %w", err)
	}
	d.reporter = rep
	return links, links.SubscribeLink(rep.Report)
}

// runController initializes the switch, then serves periodic ticks and
// scheduled events until the daemon context ends.
func (d *Daemon) runController() {
	defer d.wg.Done()
	logger := log.GetLogger().WithField("chip", d.config.Switch.Chip)

	if err := d.ctl.Init(d.ctx); err != nil {
		if d.ctx.Err() == nil {
			logger.WithError(err).Error("switch initialization failed")
		}
		return
	}
	logger.Info("switch ready")

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.step("tick", d.ctl.Tick)
		case <-d.host.events:
			d.step("event", d.ctl.EventHandler)
		}
	}
}

func (d *Daemon) step(what string, fn func() error) {
	if err := fn(); err != nil && !errors.Is(err, core.ErrNotReady) {
		log.GetLogger().WithError(err).WithField("step", what).Warn("link poll failed")
	}
}

// Controller exposes the switch controller.
func (d *Daemon) Controller() *controller.Controller { return d.ctl }

// Stop performs graceful shutdown of all daemon components. It is safe to
// call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(d.stop)
}

func (d *Daemon) stop() {
	logger := log.GetLogger()
	logger.Info("initiating graceful shutdown")

	if d.kafkaConsumer != nil {
		if err := d.kafkaConsumer.Stop(); err != nil {
			logger.WithError(err).Error("error stopping kafka consumer")
		}
	}

	// Ends the controller loop and the uds server.
	d.cancel()
	d.wg.Wait()
	if d.udsServer != nil {
		d.udsServer.Stop()
	}

	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("error stopping metrics server")
		}
		cancel()
	}

	if d.bus != nil {
		if err := d.bus.Close(); err != nil {
			logger.WithError(err).Error("error closing event bus")
		}
	}
	if d.reporter != nil {
		if err := d.reporter.Close(); err != nil {
			logger.WithError(err).Error("error closing kafka reporter")
		}
	}
	if d.sw != nil {
		if err := d.sw.bus.Close(); err != nil {
			logger.WithError(err).Error("error closing switch bus")
		}
	}

	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	if err := d.removePIDFile(); err != nil {
		logger.WithError(err).Error("error removing PID file")
	}

	logger.Info("daemon stopped gracefully")
	log.Close()
}

// Run blocks until shutdown is triggered by SIGTERM/SIGINT or the
// daemon_shutdown command. SIGHUP reloads the configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	logger := log.GetLogger()
	logger.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				logger.WithField("signal", sig.String()).Info("received shutdown signal")
				d.Stop()
				return nil
			case syscall.SIGHUP:
				if err := d.Reload(); err != nil {
					logger.WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			logger.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// TriggerShutdown makes Run return after a graceful stop.
func (d *Daemon) TriggerShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownChan) })
}

// Reload re-reads the configuration file. Only the log section is applied
// in place; changes elsewhere are reported and take effect on restart.
func (d *Daemon) Reload() error {
	logger := log.GetLogger()
	logger.WithField("path", d.configPath).Info("reloading configuration")

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	var hotReloaded, requiresRestart []string
	if !reflect.DeepEqual(newConfig.Log, d.config.Log) {
		if err := log.Init(&newConfig.Log); err != nil {
			return fmt.Errorf("failed to reinitialize logging: %w", err)
		}
		d.config.Log = newConfig.Log
		hotReloaded = append(hotReloaded, "log")
	}

	for name, changed := range map[string]bool{
		"switch":        !reflect.DeepEqual(newConfig.Switch, d.config.Switch),
		"static_fdb":    !reflect.DeepEqual(newConfig.StaticFdb, d.config.StaticFdb),
		"tick_interval": newConfig.TickInterval != d.config.TickInterval,
		"metrics":       newConfig.Metrics != d.config.Metrics,
		"control":       !reflect.DeepEqual(newConfig.Control, d.config.Control),
		"reporter":      !reflect.DeepEqual(newConfig.Reporter, d.config.Reporter),
	} {
		if changed {
			requiresRestart = append(requiresRestart, name)
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"hot_reloaded":     hotReloaded,
		"requires_restart": requiresRestart,
	}).Info("configuration reloaded")
	return nil
}

func (d *Daemon) startKafkaConsumer() error {
	consumer, err := command.NewKafkaCommandConsumer(d.config.Control.Kafka, d.config.Node.Hostname, d.cmdHandler)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	d.kafkaConsumer = consumer

	go func() {
		if err := consumer.Start(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.GetLogger().WithError(err).Error("kafka consumer stopped with error")
		}
	}()
	return nil
}

func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start(d.ctx)
}

func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	data := []byte(strconv.Itoa(os.Getpid()) + "\n")
	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}
	return nil
}

func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
