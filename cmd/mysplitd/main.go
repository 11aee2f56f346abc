package main

import (
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mabesi/mysplit/internal/config"
	"github.com/mabesi/mysplit/internal/server"
	"github.com/mabesi/mysplit/internal/storage/memory"
	"github.com/mabesi/mysplit/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	backend := memory.New()
	handler := server.New(backend).Handler()

	// h2c allows HTTP/2 without TLS so clients on the same LAN can
	// multiplex long polls over one connection.
	h2cHandler := h2c.NewHandler(handler, &http2.Server{})

	addr := cfg.HTTPAddress()
	slog.Info("Sync server starting", "address", addr)
	if err := http.ListenAndServe(addr, h2cHandler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
