package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-viewer/internal/cache"
	"image-viewer/internal/config"
	"image-viewer/internal/directory"
	"image-viewer/internal/loader"
	"image-viewer/internal/logging"
	"image-viewer/internal/media"
	"image-viewer/internal/memory"
	"image-viewer/internal/scaler"
	"image-viewer/internal/thumbnailer"
	"image-viewer/internal/viewer"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	configFile := flag.String("config", "", "path to config file (yaml)")
	flag.Parse()

	cfgm, err := config.New(*configFile)
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}
	cfgm.Subscribe(func(cfg *config.Config) {
		logging.SetLevel(logging.ParseLevel(cfg.Logging.Level))
	})
	cfgm.Watch()
	cfg := cfgm.Config()

	media.InitVips()
	defer media.ShutdownVips()

	mon := memory.NewMonitor(memory.Config{
		LimitBytes:        cfg.Memory.LimitBytes,
		HighWaterMark:     cfg.Memory.HighWaterMark,
		CriticalWaterMark: cfg.Memory.CriticalWaterMark,
		CheckInterval:     5 * time.Second,
	})
	mon.Start()
	defer mon.Stop()

	var store *thumbnailer.Store
	if cfg.Thumbnails.StorePath != "" {
		store, err = thumbnailer.OpenStore(cfg.Thumbnails.StorePath)
		if err != nil {
			logging.Fatal("Failed to open thumbnail store: %v", err)
		}
		defer store.Close()
	}

	dirs := directory.New()
	cch := cache.New()
	ldr := loader.New(mon)
	scl := scaler.New(cfg.Scaler.Filter)
	thm := thumbnailer.New(dirs, store, cfg.Thumbnails.Size, cfg.Thumbnails.Workers)

	core := viewer.New(cfgm, dirs, cch, ldr, scl, thm)
	core.Start()
	go logEvents(core)

	if cfg.Metrics.Enabled {
		go serveMetrics(cfg.Metrics.Addr, dirs)
	}

	if path := flag.Arg(0); path != "" {
		core.OpenPath(path, true)
	}

	logging.Info("started in %v", time.Since(startTime).Round(time.Millisecond))

	waitForShutdown()

	logging.Info("shutting down")
	core.Close()
	ldr.Close()
	scl.Close()
	thm.Close()
	dirs.Close()
	logging.Info("shutdown complete")
}

// logEvents drains the outbound event stream. Info and error lines go to the
// log at their natural level; everything else is debug noise.
func logEvents(core *viewer.Core) {
	for ev := range core.Events() {
		switch ev.Type {
		case viewer.EventInfo:
			logging.Info("%s", ev.Message)
		case viewer.EventError:
			logging.Error("%s", ev.Message)
		case viewer.EventLoadFinished:
			if ev.Image != nil {
				logging.Debug("loaded %s", ev.Image.Name())
			}
		default:
			logging.Debug("event %v index=%d", ev.Type, ev.Index)
		}
	}
}

func serveMetrics(addr string, dirs *directory.Manager) {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods("GET")
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !dirs.HasImages() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "no directory open")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods("GET")

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logging.Info("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Error("metrics server error: %v", err)
	}
}

func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logging.Info("received %s", sig)
}
