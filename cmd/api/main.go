package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "routecap/internal/api"
    "routecap/internal/buildinfo"
    "routecap/internal/config"
)

func main() {
    cfg, err := config.Load(os.Getenv("CONFIG_PATH"), ".env")
    if err != nil {
        log.Fatalf("config: %v", err)
    }

    srvDeps, err := api.NewServer(cfg)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    srvDeps.Start()

    addr := ":" + cfg.Port
    srv := &http.Server{
        Addr:              addr,
        Handler:           srvDeps.Router(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    bi := buildinfo.Info()
    log.Printf("API listening on %s version=%v auth=%s", addr, bi["version"], cfg.Auth.Mode)
    go func() {
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatalf("server error: %v", err)
        }
    }()

    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop

    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(ctx); err != nil {
        log.Printf("shutdown: %v", err)
    }
    if err := srvDeps.Close(); err != nil {
        log.Printf("close: %v", err)
    }
}
