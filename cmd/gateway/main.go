// Command gateway is the mains-powered aggregator's entry point: it
// wires the same core packages as cmd/node behind internal/mainapp
// instead of internal/nodeapp — a static node table, per-channel
// extrema persistence, and a periodic stack-watermark check scheduled
// with robfig/cron — and runs continuously with no sleep cycle, per
// spec §4.K.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
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
	"github.com/sillycat/sensornet/internal/mainapp"
	"github.com/sillycat/sensornet/internal/nvm"
	"github.com/sillycat/sensornet/internal/radio"
	"github.com/sillycat/sensornet/internal/rtc"
	"github.com/sillycat/sensornet/internal/sensor"
)

// broadcastAddress is the deployment's designated broadcast address,
// matching cmd/node's.
const broadcastAddress uint8 = 0xFF

// stackCheckCron runs the stack-watermark check and extrema persistence
// sweep once a minute (design value: the spec only requires "periodic",
// not a specific cadence).
const stackCheckCron = "@every 1m"

func main() {
	configPath := flag.String("config", "", "path to the board profile YAML (default: ./configs/board.yaml)")
	dataDir := flag.String("data", "./data", "directory for the persisted NVM region files")
	nodeAddrs := flag.String("nodes", "160", "comma-separated list of known node addresses this gateway aggregates")
	provisionPassphrase := flag.String("provision-passphrase", "", "if set, derive a fresh reserved AES key from this passphrase and persist it")
	flag.Parse()

	prof, err := boardprofile.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: load board profile: %v\n", err)
		os.Exit(1)
	}

	debugCfg := debuglog.DefaultConfig()
	debugCfg.Level = prof.Debug.Level
	debugCfg.LogDir = prof.Debug.LogDir
	debugCfg.UARTPort = prof.Debug.UARTPort
	debugCfg.UARTBaud = prof.Debug.UARTBaud
	if err := debuglog.Init(debugCfg); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: init debug log: %v\n", err)
		os.Exit(1)
	}
	defer debuglog.Sync()
	logger := debuglog.Get()
	zapLogger := debuglog.ZapAdapter{L: logger}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatal("gateway: create data directory", zap.Error(err))
	}

	clk := clock.New()
	stopTicker := startClockTicker(clk)
	defer stopTicker()

	bus := event.New()
	rtcSys := rtc.New(func() { logger.Debug("rtc: wake alarm fired") })

	errlogRegion, err := nvm.OpenFileRegion(filepath.Join(*dataDir, "errlog.bin"), errlog.RegionSize)
	if err != nil {
		logger.Fatal("gateway: open error log region", zap.Error(err))
	}
	errs, err := errlog.Open(errlogRegion, rtc.ErrlogClock{RTC: rtcSys}, func(diagnostic string) {
		logger.Error("gateway: fail-stop", zap.String("diagnostic", diagnostic))
		debuglog.Sync()
		os.Exit(1)
	})
	if err != nil {
		logger.Fatal("gateway: open error log", zap.Error(err))
	}
	errs.SetDebug(true, os.Stderr)
	failstop.SetHandler(errs.AssertFail)
	errs.Log(errlog.CodePowerOn, 0)

	configRegion, err := nvm.OpenFileRegion(filepath.Join(*dataDir, "config.bin"), config.RegionSize)
	if err != nil {
		logger.Fatal("gateway: open config region", zap.Error(err))
	}
	cfgStore, valid, err := config.Open(configRegion)
	if err != nil {
		logger.Fatal("gateway: open config", zap.Error(err))
	}
	if !valid {
		logger.Warn("gateway: config record failed CRC check, recovered to factory default")
		errs.Log(errlog.CodeCorruptConfig, 0)
	}
	if *provisionPassphrase != "" {
		current := cfgStore.Record()
		cfgStore.SetAESKey(config.DeriveAESKey(*provisionPassphrase, current.NetworkID[:]))
		if err := cfgStore.Save(); err != nil {
			logger.Fatal("gateway: persist provisioned AES key", zap.Error(err))
		}
		logger.Info("gateway: provisioned a new AES key from passphrase")
	}

	rec := cfgStore.Record()
	if rec.Role != config.RoleMain {
		logger.Warn("gateway: config record role is not main", zap.Uint8("role", uint8(rec.Role)))
	}

	dev, closeDev, err := openRadioDevice(prof)
	if err != nil {
		logger.Fatal("gateway: open radio device", zap.Error(err))
	}
	defer closeDev()

	var aesKey [16]byte
	copy(aesKey[:], rec.AESKey[:16])
	link, err := radio.Init(dev, clk, radio.DeviceConfig{
		NetworkID:        rec.NetworkID,
		OwnAddress:       rec.NodeID,
		BroadcastAddress: broadcastAddress,
		AESKey:           aesKey,
		PAMode:           radio.PAHighPower,
	}, zapLogger)
	if err != nil {
		logger.Fatal("gateway: init radio link", zap.Error(err))
	}
	bus.AddListener(event.All, link.HandleEvent)

	commsMod := comms.New(link, rtcSys, zapLogger, errs)

	// Encoder, Interface (OLED) and StackMonitor are the rotary-encoder
	// decoder, display driver and stack-canary read the spec names as
	// external collaborators (§1 Non-goals); none has a meaningful
	// host-build stand-in, so the application runs with all three nil.
	app := mainapp.New(commsMod, nil, nil, nil, rtcSys, clk, errs, zapLogger)

	extremaStores := make(map[uint8][2]*sensor.ExtremaStore)
	for _, addr := range parseNodeAddresses(*nodeAddrs, logger) {
		app.RegisterNode(addr)
		tempStore, humStore := openExtremaStores(*dataDir, addr, logger)
		if nodeRec, ok := app.Node(addr); ok {
			temperature, humidity := nodeRec.Temperature, nodeRec.Humidity
			if tempStore != nil {
				tempStore.Load(&temperature)
			}
			if humStore != nil {
				humStore.Load(&humidity)
			}
			app.SeedExtrema(addr, temperature, humidity)
		}
		extremaStores[addr] = [2]*sensor.ExtremaStore{tempStore, humStore}
	}

	persistExtrema := func() {
		for addr, stores := range extremaStores {
			rec, ok := app.Node(addr)
			if !ok {
				continue
			}
			if stores[0] != nil {
				if err := stores[0].Save(rec.Temperature); err != nil {
					logger.Warn("gateway: persist temperature extrema failed", zap.Uint8("address", addr), zap.Error(err))
				}
			}
			if stores[1] != nil {
				if err := stores[1].Save(rec.Humidity); err != nil {
					logger.Warn("gateway: persist humidity extrema failed", zap.Uint8("address", addr), zap.Error(err))
				}
			}
		}
	}
	if err := app.StartPeriodicChecks(stackCheckCron, persistExtrema); err != nil {
		logger.Fatal("gateway: schedule periodic checks", zap.Error(err))
	}
	defer app.StopPeriodicChecks()

	lp := loop.New(bus, clk, nil, loopAdapter{L: logger})
	// Mirrors cmd/node's compromise: the transceiver runs as its own
	// subsystem ahead of the application bundle rather than strictly
	// interleaved between "encoder" and "comms" per spec §4.K's literal
	// order, since mainapp.App.Service has no seam to split on. See
	// DESIGN.md.
	lp.Register(loop.Subsystem{Name: "transceiver", Service: link.Service})
	lp.Register(loop.Subsystem{Name: "application", Service: app.Service})

	logger.Info("gateway: started", zap.Uint8("address", rec.NodeID))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-shutdown:
			logger.Info("gateway: shutting down")
			return
		default:
		}
		lp.RunOnce()
		// Mains-powered devices never sleep (spec §4.K): this is only
		// to keep a host build from pegging a CPU core on a busy loop.
		time.Sleep(time.Millisecond)
	}
}

func parseNodeAddresses(csv string, logger *zap.Logger) []uint8 {
	var addrs []uint8
	for _, field := range strings.Split(csv, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.ParseUint(field, 10, 8)
		if err != nil {
			logger.Warn("gateway: skipping unparseable node address", zap.String("value", field), zap.Error(err))
			continue
		}
		addrs = append(addrs, uint8(n))
	}
	return addrs
}

func openExtremaStores(dataDir string, addr uint8, logger *zap.Logger) (*sensor.ExtremaStore, *sensor.ExtremaStore) {
	tempRegion, err := nvm.OpenFileRegion(filepath.Join(dataDir, fmt.Sprintf("extrema-%d-temp.bin", addr)), sensor.ExtremaRegionSize)
	if err != nil {
		logger.Warn("gateway: open temperature extrema region failed", zap.Uint8("address", addr), zap.Error(err))
		return nil, nil
	}
	tempStore, err := sensor.OpenExtremaStore(tempRegion)
	if err != nil {
		logger.Warn("gateway: open temperature extrema store failed", zap.Uint8("address", addr), zap.Error(err))
		tempStore = nil
	}

	humRegion, err := nvm.OpenFileRegion(filepath.Join(dataDir, fmt.Sprintf("extrema-%d-hum.bin", addr)), sensor.ExtremaRegionSize)
	if err != nil {
		logger.Warn("gateway: open humidity extrema region failed", zap.Uint8("address", addr), zap.Error(err))
		return tempStore, nil
	}
	humStore, err := sensor.OpenExtremaStore(humRegion)
	if err != nil {
		logger.Warn("gateway: open humidity extrema store failed", zap.Uint8("address", addr), zap.Error(err))
		humStore = nil
	}

	return tempStore, humStore
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
