package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/evt3gate/internal/common"
	"example.com/evt3gate/internal/server"
	"example.com/evt3gate/internal/store"
)

type logConfig struct {
	Directory  string `yaml:"directory" env:"EVT3D_LOG_DIR"`
	MaxSizeMB  int    `yaml:"maxSizeMB" env:"EVT3D_LOG_MAX_SIZE_MB"`
	MaxAgeDays int    `yaml:"maxAgeDays" env:"EVT3D_LOG_MAX_AGE_DAYS"`
	MaxBackups int    `yaml:"maxBackups" env:"EVT3D_LOG_MAX_BACKUPS"`
	Compress   bool   `yaml:"compress" env:"EVT3D_LOG_COMPRESS"`
}

type config struct {
	Port               int       `yaml:"port" env:"EVT3D_PORT"`
	StorageDir         string    `yaml:"storageDir" env:"EVT3D_STORAGE_DIR"`
	Database           string    `yaml:"database" env:"EVT3D_DATABASE"`
	ChunkWords         int       `yaml:"chunkWords" env:"EVT3D_CHUNK_WORDS"`
	MaxUploadMB        int64     `yaml:"maxUploadMB" env:"EVT3D_MAX_UPLOAD_MB"`
	EmitBeforeTimeBase bool      `yaml:"emitBeforeTimeBase" env:"EVT3D_EMIT_BEFORE_TIME_BASE"`
	DisableStore       bool      `yaml:"disableStore" env:"EVT3D_DISABLE_STORE"`
	Logs               logConfig `yaml:"logs"`
}

// loadConfig reads path (if it exists), applies EVT3D_* environment
// overrides and fills defaults. Relative paths resolve against the config
// file's directory.
func loadConfig(path string) (config, error) {
	var cfg config
	baseDir := "."
	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			defer f.Close()
			dec := yaml.NewDecoder(f)
			if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
			baseDir = filepath.Dir(path)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.StorageDir == "" {
		cfg.StorageDir = "data"
	}
	cfg.StorageDir = resolvePath(cfg.StorageDir)
	if cfg.Database == "" {
		cfg.Database = filepath.Join(cfg.StorageDir, "events.db")
	} else {
		cfg.Database = resolvePath(cfg.Database)
	}
	if cfg.ChunkWords < 0 {
		return cfg, fmt.Errorf("invalid chunkWords %d", cfg.ChunkWords)
	}
	if cfg.Logs.Directory == "" {
		cfg.Logs.Directory = filepath.Join(cfg.StorageDir, "logs")
	} else {
		cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	}
	if cfg.Logs.MaxSizeMB <= 0 {
		cfg.Logs.MaxSizeMB = 25
	}
	if cfg.Logs.MaxAgeDays <= 0 {
		cfg.Logs.MaxAgeDays = 7
	}
	if cfg.Logs.MaxBackups <= 0 {
		cfg.Logs.MaxBackups = 5
	}
	return cfg, nil
}

func setupLogging(cfg config) (io.Closer, error) {
	if err := os.MkdirAll(cfg.Logs.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Logs.Directory, "evt3d.log"),
		MaxSize:    cfg.Logs.MaxSizeMB,
		MaxAge:     cfg.Logs.MaxAgeDays,
		MaxBackups: cfg.Logs.MaxBackups,
		Compress:   cfg.Logs.Compress,
	}
	out := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	common.SetLogOutput(out)
	return rotator, nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	addr := flag.String("addr", "", "listen address (overrides config port)")
	readTimeout := flag.Duration("read-timeout", 5*time.Minute, "HTTP read timeout")
	writeTimeout := flag.Duration("write-timeout", 5*time.Minute, "HTTP write timeout")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		log.Fatalf("storage dir: %v", err)
	}
	rotator, err := setupLogging(cfg)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer rotator.Close()

	var st *store.Store
	if !cfg.DisableStore {
		st, err = store.Open(cfg.Database)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
		defer st.Close()
	}

	srv, err := server.NewServer(server.Options{
		StorageDir:         cfg.StorageDir,
		ChunkWords:         cfg.ChunkWords,
		EmitBeforeTimeBase: cfg.EmitBeforeTimeBase,
		MaxUploadMB:        cfg.MaxUploadMB,
		Store:              st,
	})
	if err != nil {
		log.Fatalf("server init: %v", err)
	}
	defer srv.Close()

	listenAddr := fmt.Sprintf(":%d", cfg.Port)
	if *addr != "" {
		listenAddr = *addr
	}
	httpServer := &http.Server{
		Addr:         listenAddr,
		Handler:      server.NewRouter(srv),
		ReadTimeout:  *readTimeout,
		WriteTimeout: *writeTimeout,
	}

	log.Printf("evt3d listening on %s (store %s)", listenAddr, storeLabel(cfg))
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("evt3d stopped")
}

func storeLabel(cfg config) string {
	if cfg.DisableStore {
		return "disabled"
	}
	return cfg.Database
}
