package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"auctionhouse.ai/internal/auth"
	"auctionhouse.ai/internal/chain"
	"auctionhouse.ai/internal/kv/sqlitekv"
	persistlog "auctionhouse.ai/internal/persistence/log"
	"auctionhouse.ai/internal/persistence/snapshot"
	"auctionhouse.ai/internal/transport/httpapi"
	"auctionhouse.ai/internal/transport/ws"
	"auctionhouse.ai/internal/tuning"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (block log + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load into a fresh store (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir into a fresh store (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	senv, err := loadServerEnv(logger)
	if err != nil {
		logger.Fatalf("env: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	genesis, err := tune.ChainGenesis()
	if err != nil {
		logger.Fatalf("tuning genesis: %v", err)
	}
	cfg := tune.ChainConfig()

	chainDir := filepath.Join(*dataDir, "chains", cfg.ChainID)
	_ = os.MkdirAll(chainDir, 0o755)
	snapDir := filepath.Join(chainDir, "snapshots")

	store, err := sqlitekv.Open(filepath.Join(chainDir, "state.sqlite"))
	if err != nil {
		logger.Fatalf("open state: %v", err)
	}
	defer store.Close()

	c, err := chain.New(cfg, store)
	if err != nil {
		logger.Fatalf("chain: %v", err)
	}

	initialized, err := c.Initialized()
	if err != nil {
		logger.Fatalf("chain state: %v", err)
	}
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad, _ = snapshot.Latest(snapDir)
	}
	switch {
	case initialized:
		if snapshotToLoad != "" && *snapPath != "" {
			logger.Printf("store already initialized; ignoring -snapshot=%s", snapshotToLoad)
		}
		logger.Printf("resumed chain=%s height=%d", cfg.ChainID, c.CurrentHeight())
	case snapshotToLoad != "":
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if err := c.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("restored from snapshot=%s height=%d", filepath.Base(snapshotToLoad), c.CurrentHeight())
	default:
		if _, err := c.InitGenesis(genesis); err != nil {
			logger.Fatalf("genesis: %v", err)
		}
		logger.Printf("genesis chain=%s balances=%d assets=%d", cfg.ChainID, len(genesis.Balances), len(genesis.Assets))
	}

	// Optional read-model index backend (does not affect chain determinism).
	idx, err := openRuntimeIndex(chainDir, cfg.ChainID, *disableDB, senv, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if tr, ok := idx.(tuningRecorder); ok {
			if err := tr.UpsertTuning(tune); err != nil {
				logger.Printf("index backend: upsert tuning: %v", err)
			}
		}
	}

	authn, err := auth.New(auth.Config{Issuer: senv.AuthIssuer, Secret: []byte(senv.AuthSecret)})
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	blockLog := persistlog.NewBlockLogger(chainDir)
	defer blockLog.Close()
	c.SetBlockLogger(multiBlockLogger{a: blockLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	c.SetSnapshotSink(snapCh)
	writeSnap := func(snap snapshot.SnapshotV1) (string, error) {
		path := filepath.Join(snapDir, snapshot.FileName(snap.Header.Height))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			return "", err
		}
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		return path, nil
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				if _, err := writeSnap(snap); err != nil {
					logger.Printf("snapshot write: %v", err)
				}
			}
		}
	}()

	go func() {
		if err := c.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("chain stopped: %v", err)
		}
	}()

	api := httpapi.NewServer(c, authn, logger)
	if idx != nil {
		api.Index = idx
	}
	router := api.Router()
	router.HandleFunc("/v1/ws", ws.NewServer(c, authn, logger).Handler())

	if senv.adminHTTPEnabled() {
		// Local-only admin endpoints.
		admin := router.PathPrefix("/admin/v1").Subrouter()
		admin.Use(loopbackOnly)
		admin.HandleFunc("/state", func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				ChainID string        `json:"chain_id"`
				Height  uint64        `json:"height"`
				Digest  string        `json:"digest"`
				Metrics chain.Metrics `json:"metrics"`
			}{
				ChainID: cfg.ChainID,
				Height:  c.CurrentHeight(),
				Digest:  c.StateDigest(),
				Metrics: c.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		}).Methods(http.MethodGet)
		admin.HandleFunc("/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			rw.Header().Set("Content-Type", "application/json")
			snap, err := c.ExportSnapshot()
			if err == nil {
				_, err = writeSnap(snap)
			}
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "height": snap.Header.Height, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "height": snap.Header.Height})
		}).Methods(http.MethodPost)
	} else {
		logger.Printf("admin endpoints disabled (AH_ENABLE_ADMIN_HTTP=false)")
	}
	if senv.EnablePprofHTTP {
		router.HandleFunc("/debug/pprof/", pprof.Index)
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (AH_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
