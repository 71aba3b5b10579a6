// Command node is the battery-powered leaf device's entry point: it
// wires internal/boardprofile, internal/debuglog, internal/nvm,
// internal/config, internal/errlog, internal/radio, internal/comms,
// internal/rtc, internal/sensor and internal/nodeapp together behind
// internal/loop's fixed-order scheduler, then runs the wake/report/sleep
// cycle described in spec §4.J until signalled to stop.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sillycat/sensornet/internal/boardprofile"
	"github.com/sillycat/sensornet/internal/clock"
	"github.com/sillycat/sensornet/internal/comms"
	"github.com/sillycat/sensornet/internal/config"
	"github.com/sillycat/sensornet/internal/debuglog"
	"github.com/sillycat/sensornet/internal/errlog"
	"github.com/sillycat/sensornet/internal/event"
	"github.com/sillycat/sensornet/internal/failstop"
	"github.com/sillycat/sensornet/internal/loop"
	"github.com/sillycat/sensornet/internal/nodeapp"
	"github.com/sillycat/sensornet/internal/nvm"
	"github.com/sillycat/sensornet/internal/radio"
	"github.com/sillycat/sensornet/internal/rtc"
	"github.com/sillycat/sensornet/internal/sensor"
)

// broadcastAddress is the deployment's designated broadcast address
// (spec §6: "a designated broadcast address is reserved"), distinct
// from any node's own unicast address or the gateway's 0xAA.
const broadcastAddress uint8 = 0xFF

func main() {
	configPath := flag.String("config", "", "path to the board profile YAML (default: ./configs/board.yaml)")
	dataDir := flag.String("data", "./data", "directory for the persisted NVM region files")
	provisionPassphrase := flag.String("provision-passphrase", "", "if set, derive a fresh reserved AES key from this passphrase and persist it")
	flag.Parse()

	prof, err := boardprofile.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "node: load board profile: %v\n", err)
		os.Exit(1)
	}

	debugCfg := debuglog.DefaultConfig()
	debugCfg.Level = prof.Debug.Level
	debugCfg.LogDir = prof.Debug.LogDir
	debugCfg.UARTPort = prof.Debug.UARTPort
	debugCfg.UARTBaud = prof.Debug.UARTBaud
	if err := debuglog.Init(debugCfg); err != nil {
		fmt.Fprintf(os.Stderr, "node: init debug log: %v\n", err)
		os.Exit(1)
	}
	defer debuglog.Sync()
	logger := debuglog.Get()
	zapLogger := debuglog.ZapAdapter{L: logger}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatal("node: create data directory", zap.Error(err))
	}

	clk := clock.New()
	stopTicker := startClockTicker(clk)
	defer stopTicker()

	bus := event.New()
	rtcSys := rtc.New(func() { logger.Debug("rtc: wake alarm fired") })

	errlogRegion, err := nvm.OpenFileRegion(filepath.Join(*dataDir, "errlog.bin"), errlog.RegionSize)
	if err != nil {
		logger.Fatal("node: open error log region", zap.Error(err))
	}
	errs, err := errlog.Open(errlogRegion, rtc.ErrlogClock{RTC: rtcSys}, func(diagnostic string) {
		logger.Error("node: fail-stop", zap.String("diagnostic", diagnostic))
		debuglog.Sync()
		os.Exit(1)
	})
	if err != nil {
		logger.Fatal("node: open error log", zap.Error(err))
	}
	errs.SetDebug(true, os.Stderr)
	failstop.SetHandler(errs.AssertFail)
	errs.Log(errlog.CodePowerOn, 0)

	configRegion, err := nvm.OpenFileRegion(filepath.Join(*dataDir, "config.bin"), config.RegionSize)
	if err != nil {
		logger.Fatal("node: open config region", zap.Error(err))
	}
	cfgStore, valid, err := config.Open(configRegion)
	if err != nil {
		logger.Fatal("node: open config", zap.Error(err))
	}
	if !valid {
		logger.Warn("node: config record failed CRC check, recovered to factory default")
		errs.Log(errlog.CodeCorruptConfig, 0)
	}
	if *provisionPassphrase != "" {
		current := cfgStore.Record()
		cfgStore.SetAESKey(config.DeriveAESKey(*provisionPassphrase, current.NetworkID[:]))
		if err := cfgStore.Save(); err != nil {
			logger.Fatal("node: persist provisioned AES key", zap.Error(err))
		}
		logger.Info("node: provisioned a new AES key from passphrase")
	}

	rec := cfgStore.Record()
	if rec.Role != config.RoleNode {
		logger.Warn("node: config record role is not node", zap.Uint8("role", uint8(rec.Role)))
	}

	dev, closeDev, err := openRadioDevice(prof)
	if err != nil {
		logger.Fatal("node: open radio device", zap.Error(err))
	}
	defer closeDev()

	var aesKey [16]byte
	copy(aesKey[:], rec.AESKey[:16])
	link, err := radio.Init(dev, clk, radio.DeviceConfig{
		NetworkID:        rec.NetworkID,
		OwnAddress:       rec.NodeID,
		BroadcastAddress: broadcastAddress,
		AESKey:           aesKey,
		PAMode:           radio.PANormal,
	}, zapLogger)
	if err != nil {
		logger.Fatal("node: init radio link", zap.Error(err))
	}
	bus.AddListener(event.All, link.HandleEvent)

	commsMod := comms.New(link, rtcSys, zapLogger, errs)

	sens := sensor.NewSimulated(clk, sensor.Reading{TemperatureX10: 225, HumidityX10: 480})
	battery := sensor.NewSimulatedBattery(3000)

	app := nodeapp.New(sens, battery, commsMod, nil, bus, rtcSys, clk, zapLogger, rec.ReportInterval)

	lp := loop.New(bus, clk, hostSleeper{}, loopAdapter{L: logger})
	// The transceiver is serviced ahead of the application layer each
	// iteration rather than strictly between "sensor" and "comms" (spec
	// §4.J's literal order): nodeapp.App.Service bundles
	// sensor/comms/LED/power into one call with no seam to interleave
	// radio.Link.Service in between, so it runs as its own subsystem
	// immediately before the bundle instead. See DESIGN.md.
	lp.Register(loop.Subsystem{Name: "transceiver", Service: link.Service})
	lp.Register(loop.Subsystem{Name: "application", Service: app.Service})

	logger.Info("node: started",
		zap.Uint8("address", rec.NodeID),
		zap.Uint32("report_interval_s", rec.ReportInterval))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app.Wake()
	for {
		select {
		case <-shutdown:
			logger.Info("node: shutting down")
			return
		default:
		}

		lp.RunOnce()

		if app.IsTimeForSleep() {
			if err := app.PrepareSleep(); err != nil {
				logger.Warn("node: prepare sleep failed", zap.Error(err))
			}
			lp.Sleep(time.Duration(rec.ReportInterval) * time.Second)
			rtcSys.ClearAlarm()
			app.Wake()
		}
	}
}

// startClockTicker drives internal/clock's millisecond counter from a
// time.Ticker, standing in for the real hardware's 1ms compare-match
// timer interrupt (spec §4.B).
func startClockTicker(clk *clock.Clock) func() {
	ticker := time.NewTicker(time.Millisecond)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				clk.Tick()
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// hostSleeper parks the calling goroutine for the requested duration,
// the same host-build rendering of the MCU sleep instruction that
// internal/board.Board.SleepEnter uses on real hardware.
type hostSleeper struct{}

func (hostSleeper) SleepEnter(d time.Duration) { time.Sleep(d) }

// loopAdapter satisfies internal/loop's Logger interface, which carries
// structured fields directly rather than a caller-formatted string.
type loopAdapter struct {
	L *zap.Logger
}

func (a loopAdapter) Info(msg string, fields ...loop.Field) {
	zf := make([]zap.Field, len(fields))
	for i, f := range fields {
		zf[i] = zap.String(f.Key, f.Value)
	}
	a.L.Info(msg, zf...)
}
