// Command sensorbusd is the host daemon: it wires a transport (serial or
// USB-CDC), a simulated sensor registry, the core firmware-equivalent
// state machine, a Redis mirror/command bridge, and an HTTP API, using a
// flag-configure / connect / wire / serve-until-signal shape.
package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brahimab8/sensorbusd/pkg/bridge/redisbridge"
	"github.com/brahimab8/sensorbusd/pkg/clock"
	"github.com/brahimab8/sensorbusd/pkg/core"
	"github.com/brahimab8/sensorbusd/pkg/httpapi"
	"github.com/brahimab8/sensorbusd/pkg/iface"
	redisclient "github.com/brahimab8/sensorbusd/pkg/redis"
	"github.com/brahimab8/sensorbusd/pkg/sensor/registry"
	"github.com/brahimab8/sensorbusd/pkg/transport/serialport"
	"github.com/brahimab8/sensorbusd/pkg/transport/usbcdc"
)

// Configuration flags.
var (
	transportKind = flag.String("transport", "serial", "Transport kind: serial|usb")
	serialDevice  = flag.String("serial", "/dev/ttyACM0", "Serial device path")
	baudRate      = flag.Int("baud", 115200, "Serial baud rate")
	usbVID        = flag.Uint("usb-vid", 0x2e8a, "USB vendor id (hex value accepted via -usb-vid=0x...)")
	usbPID        = flag.Uint("usb-pid", 0x000a, "USB product id")

	numSensors = flag.Int("sensors", 2, "Number of simulated sensor slots to attach")

	txRingCap   = flag.Int("tx-ring-capacity", 8192, "TX ring capacity (power of two)")
	rxRingCap   = flag.Int("rx-ring-capacity", 2048, "RX ring capacity (power of two)")
	defPeriod   = flag.Uint("default-period-ms", 5, "Default stream period, ms")
	minPeriod   = flag.Uint("min-period-ms", 1, "Minimum SET_PERIOD value, ms")
	maxPeriod   = flag.Uint("max-period-ms", 60000, "Maximum SET_PERIOD value, ms")
	tickEveryMs = flag.Uint("tick-interval-ms", 1, "Main loop tick interval, ms")

	redisAddr = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass = flag.String("redis-pass", "", "Redis password")
	redisDB   = flag.Int("redis-db", 0, "Redis database number")

	httpAddr = flag.String("http-addr", ":8080", "HTTP API listen address")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting sensorbusd")
	log.Printf("Transport: %s", *transportKind)
	log.Printf("Redis address: %s", *redisAddr)

	var transport iface.Transport

	switch *transportKind {
	case "usb":
		dev, err := usbcdc.Open(uint16(*usbVID), uint16(*usbPID))
		if err != nil {
			log.Fatalf("Failed to open USB-CDC transport: %v", err)
		}
		defer dev.Close()
		transport = dev
	default:
		port, err := serialport.Open(*serialDevice, *baudRate)
		if err != nil {
			log.Fatalf("Failed to open serial transport: %v", err)
		}
		defer port.Close()
		transport = port
	}
	log.Printf("Transport ready")

	clk := clock.NewReal()

	cfg := core.Config{
		TxRingCapacity:  *txRingCap,
		RxRingCapacity:  *rxRingCap,
		DefaultPeriodMs: uint32(*defPeriod),
		MinPeriodMs:     uint32(*minPeriod),
		MaxPeriodMs:     uint32(*maxPeriod),
	}
	c, err := core.New(cfg, transport, clk)
	if err != nil {
		log.Fatalf("Failed to build core: %v", err)
	}

	for _, slot := range registry.BuildSimulated(*numSensors, clk) {
		c.AttachSensor(slot.RuntimeID, slot.TypeID, slot.Sensor, 46)
	}
	log.Printf("Attached %d simulated sensors", *numSensors)

	redisClient, err := redisclient.New(*redisAddr, *redisPass, *redisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("Connected to Redis")

	bridge := redisbridge.New(c, redisClient)
	go bridge.WatchCommands()
	log.Printf("Redis command watcher started")

	api := httpapi.New(c, bridge)
	httpServer := &http.Server{Addr: *httpAddr, Handler: api.Handler()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP API error: %v", err)
		}
	}()
	log.Printf("HTTP API listening on %s", *httpAddr)

	stopCh := make(chan struct{})
	go runLoop(c, bridge, stopCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stopCh)
	bridge.Stop()
	httpServer.Close()
	log.Printf("Shutting down...")
}

func runLoop(c *core.Core, bridge *redisbridge.Bridge, stopCh <-chan struct{}) {
	interval := time.Duration(*tickEveryMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	snapshotTicker := time.NewTicker(time.Second)
	defer snapshotTicker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				log.Printf("tick error: %v", err)
			}
		case <-snapshotTicker.C:
			bridge.PublishSnapshot()
		}
	}
}
