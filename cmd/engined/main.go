// Command engined runs the reserve-backed settlement engine.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/okarvik/reservex/audit"
	"github.com/okarvik/reservex/config"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/events"
	"github.com/okarvik/reservex/indexer"
	"github.com/okarvik/reservex/rpc"
	"github.com/okarvik/reservex/storage"
	"github.com/okarvik/reservex/wallet"

	// Import engine modules to trigger their init() self-registration.
	_ "github.com/okarvik/reservex/engine/modules/access"
	_ "github.com/okarvik/reservex/engine/modules/exchange"
	_ "github.com/okarvik/reservex/engine/modules/item"
	_ "github.com/okarvik/reservex/engine/modules/ledger"
	_ "github.com/okarvik/reservex/engine/modules/market"
	_ "github.com/okarvik/reservex/engine/modules/sale"
	_ "github.com/okarvik/reservex/engine/modules/staking"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	keyPath := flag.String("key", "owner.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new owner key and exit")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// The keystore password comes from the environment; flags are visible in ps.
	password := os.Getenv("RESERVEX_PASSWORD")
	if password == "" {
		logger.Warn().Msg("RESERVEX_PASSWORD not set, keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			logger.Fatal().Err(err).Msg("generate key")
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			logger.Fatal().Err(err).Msg("save key")
		}
		fmt.Printf("Generated key. Public key (owner address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(lvl)
	}

	// ---- load owner key ----
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		logger.Fatal().Err(err).Msg("load key")
	}
	ownerPub := privKey.Public().Hex()

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		logger.Fatal().Err(err).Msg("mkdir data dir")
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/state")
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer db.Close()

	state := storage.NewStateDB(db)
	emitter := events.NewEmitter()
	eng := engine.New(state, emitter, logger)

	// ---- one-time initialization (if fresh state) ----
	meta, err := state.GetMeta()
	if err != nil {
		logger.Fatal().Err(err).Msg("read meta")
	}
	if !meta.Initialized {
		gen := cfg.Genesis
		if gen.Owner == "" {
			gen.Owner = ownerPub
		}
		if err := eng.Initialize(&gen); err != nil {
			logger.Fatal().Err(err).Msg("initialize")
		}
		logger.Info().Str("engine_id", gen.EngineID).Str("owner", gen.Owner).
			Msg("state initialized")
	}

	// ---- indexer ----
	idx, err := indexer.Open(cfg.IndexPath(), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open indexer")
	}
	defer idx.Close()
	idx.Attach(emitter)

	// ---- auditor ----
	var auditor *audit.Auditor
	if cfg.Audit.Enabled {
		auditor = audit.New(eng, logger)
		if _, err := auditor.Run(); err != nil {
			logger.Fatal().Err(err).Msg("initial audit")
		}
		if err := auditor.Start(cfg.Audit.Schedule); err != nil {
			logger.Fatal().Err(err).Msg("start auditor")
		}
		defer auditor.Stop()
	}

	// ---- RPC ----
	engineID := cfg.Genesis.EngineID
	rpcHandler := rpc.NewHandler(eng, idx, auditor, engineID)
	rpcServer := rpc.NewServer(cfg.RPC.Addr, rpcHandler, cfg.RPC.AuthToken, logger)
	if err := rpcServer.Start(); err != nil {
		logger.Fatal().Err(err).Msg("rpc start")
	}
	defer rpcServer.Stop()
	if cfg.RPC.AuthToken != "" {
		logger.Info().Msg("rpc bearer token authentication enabled")
	}

	logger.Info().Str("engine_id", engineID).Str("state_root", eng.StateRoot()).
		Msg("engine running")

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")

	// Deferred calls run in LIFO: rpcServer.Stop → auditor.Stop → idx.Close → db.Close
}

func loadConfig(path string, logger zerolog.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info().Str("path", path).Msg("config file not found, using defaults")
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}
