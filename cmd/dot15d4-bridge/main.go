// Command dot15d4-bridge captures IEEE 802.15.4 PSDUs from a serial-attached
// radio dongle, decodes them, and republishes them to an MQTT broker and a
// websocket live-viewer for passive network observation.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gowpan/dot15d4/frame"
	"github.com/gowpan/dot15d4/transport/mqtt"
	"github.com/gowpan/dot15d4/transport/serial"
)

func main() {
	var (
		port        = flag.String("port", "", "serial port the capture dongle is attached to (required)")
		baud        = flag.Int("baud", serial.DefaultBaudRate, "serial baud rate")
		mqttBroker  = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://broker.example.com:1883 (disabled if empty)")
		mqttPrefix  = flag.String("mqtt-topic-prefix", mqtt.DefaultTopicPrefix, "MQTT topic prefix")
		mqttRaw     = flag.Bool("mqtt-publish-raw", false, "include base64 raw PSDU in MQTT messages")
		listenAddr  = flag.String("listen", ":8787", "address the websocket live-viewer listens on")
		logLevel    = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(log)

	if *port == "" {
		log.Error("-port is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	h := newHub(log)
	httpSrv := &http.Server{Addr: *listenAddr, Handler: h}
	go func() {
		log.Info("live viewer listening", "addr", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("viewer server exited", "error", err)
		}
	}()

	var publisher *mqtt.Publisher
	if *mqttBroker != "" {
		publisher = mqtt.New(mqtt.Config{
			Broker:      *mqttBroker,
			TopicPrefix: *mqttPrefix,
			PublishRaw:  *mqttRaw,
			Logger:      log,
		})
		if err := publisher.Start(); err != nil {
			log.Error("mqtt publisher failed to start", "error", err)
			os.Exit(1)
		}
		defer publisher.Stop()
	}

	transport := serial.New(serial.Config{Port: *port, BaudRate: *baud, Logger: log})
	transport.SetFrameHandler(func(fr frame.Frame, raw []byte) {
		h.broadcastFrame(fr)
		if publisher != nil {
			if err := publisher.Publish(fr, raw); err != nil {
				log.Debug("mqtt publish failed", "error", err)
			}
		}
	})

	if err := transport.Start(ctx); err != nil {
		log.Error("serial transport failed to start", "error", err)
		os.Exit(1)
	}
	defer transport.Stop()

	log.Info("bridge running", "port", *port, "baud", *baud)
	<-ctx.Done()
	log.Info("shutting down")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
