package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/agentboard/boardfile/internal/board"
	"github.com/agentboard/boardfile/internal/httpapi"
)

func main() {
	addr := os.Getenv("BOARDFILE_ADDR")
	if addr == "" {
		addr = ":8383"
	}
	root := os.Getenv("BOARDFILE_ROOT")
	if root == "" {
		root = "."
	}

	mirror, err := board.BuildMirrorFromDSN(os.Getenv("BOARDFILE_MIRROR_DSN"))
	if err != nil {
		log.Fatalf("failed to initialize mirror backend: %v", err)
	}

	controller := board.NewController(board.ControllerOptions{
		Mirror: mirror,
		Logger: log.Default(),
	})
	if err := controller.BindRoot(root); err != nil {
		log.Fatalf("failed to bind workspace root %q: %v", root, err)
	}
	defer controller.Close()
	defer func() {
		if err := board.CloseMirror(mirror); err != nil {
			log.Printf("mirror close failed: %v", err)
		}
	}()

	// First read seeds the state file when the workspace is fresh.
	doc, err := controller.Snapshot(context.Background())
	if err != nil {
		log.Fatalf("failed to load board: %v", err)
	}
	log.Printf("board at revision %d with %d tasks", doc.Revision, len(doc.Tasks))

	server := httpapi.NewServerWithConfig(controller, httpapi.ServerConfig{
		AuthToken:    os.Getenv("BOARDFILE_AUTH_TOKEN"),
		MaxBodyBytes: int64Env("BOARDFILE_MAX_BODY_BYTES", 0),
	})

	httpServer := &http.Server{Addr: addr, Handler: server}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Printf("boardfile listening on %s (root %s)", addr, root)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}
