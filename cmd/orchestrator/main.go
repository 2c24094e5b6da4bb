package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kstaniek/qpipe-broker/internal/broker"
	"github.com/kstaniek/qpipe-broker/internal/stats"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := broker.New(cfg.queueCapacity,
		broker.WithListenAddr(cfg.controlAddr),
		broker.WithLogger(l),
		broker.WithHandshakeTimeout(cfg.handshakeTO),
	)

	go func() {
		if err := b.Serve(ctx); err != nil {
			l.Error("control_listen_error", "error", err)
			cancel()
		}
	}()

	if cfg.reportInterval > 0 {
		go stats.Report(ctx, cfg.reportInterval, l)
	}

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-b.Ready():
		case <-ctx.Done():
			return
		}
		port := portOf(b.Addr())
		cleanupMDNS, err := startMDNS(ctx, cfg, port)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", port)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	var metricsSrv interface{ Shutdown(context.Context) error }
	if cfg.metricsAddr != "" {
		ready := func() bool {
			select {
			case <-b.Ready():
			default:
				return false
			}
			return ctx.Err() == nil
		}
		metricsSrv = stats.StartHTTP(cfg.metricsAddr, ready)
		l.Info("metrics_listen", "addr", cfg.metricsAddr)
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	if err := b.Shutdown(shCtx); err != nil {
		l.Error("shutdown_error", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(context.Background())
	}
}

func portOf(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if pn, err := strconv.Atoi(p); err == nil {
			return pn
		}
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		if pn, err := strconv.Atoi(addr[i+1:]); err == nil {
			return pn
		}
	}
	return 0
}
