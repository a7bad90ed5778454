package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/zk-escrow/api"
	"github.com/vocdoni/zk-escrow/config"
	"github.com/vocdoni/zk-escrow/log"
	"github.com/vocdoni/zk-escrow/prover"
	"github.com/vocdoni/zk-escrow/service"
	"github.com/vocdoni/zk-escrow/state"
	"github.com/vocdoni/zk-escrow/storage"
	"github.com/vocdoni/zk-escrow/timber"
	"github.com/vocdoni/zk-escrow/transition"
	"github.com/vocdoni/zk-escrow/web3"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

const artifactsTimeout = 20 * time.Minute

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	log.Init(cfg.LogLevel, cfg.LogOutput, nil)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// commitments and nullifiers share the database so every transition is
	// finalized in a single write
	database, err := metadb.New(db.TypePebble, cfg.DataDir)
	if err != nil {
		log.Fatal(err)
	}
	stg := storage.New(database)
	defer stg.Close()
	nullifiers, err := state.New(database)
	if err != nil {
		log.Fatal(err)
	}

	contracts, err := web3.NewContracts(ctx, &web3.Addresses{
		EscrowShield: cfg.ShieldAddress,
		ERC20:        cfg.ERC20Address,
	}, cfg.RPCURL)
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("contracts initialized", "chainId", contracts.ChainID, "shield", cfg.ShieldAddress.Hex())
	if cfg.ShieldABIPath != "" {
		shieldABI, err := web3.LoadArtifactABI(cfg.ShieldABIPath)
		if err != nil {
			log.Fatal(err)
		}
		contracts.Bind(web3.EscrowShieldContract, cfg.ShieldAddress, shieldABI)
	}
	if err := contracts.SetAccountPrivateKey(cfg.AccountKey); err != nil {
		log.Fatal(err)
	}
	if cfg.AdminKey != "" {
		if err := contracts.SetAdminPrivateKey(cfg.AdminKey); err != nil {
			log.Fatal(err)
		}
	}
	contracts.SetGasLimit(cfg.GasLimit)
	account := cfg.DefaultAccount
	if account == (common.Address{}) {
		account = contracts.AccountAddress()
	}

	keys, err := service.BootstrapKeys(ctx, stg, contracts, account)
	if err != nil {
		log.Fatal(err)
	}
	log.Infow("owner keys loaded", "account", account.Hex(), "publicKey", keys.PublicKey.Hex())
	if cursor, err := stg.EventCursor(); err == nil && cursor < cfg.ListenerFrom {
		if err := stg.SetEventCursor(cfg.ListenerFrom); err != nil {
			log.Fatal(err)
		}
	}

	tree, err := timber.New(cfg.TimberURL)
	if err != nil {
		log.Fatal(err)
	}
	tree.TreeHeight = cfg.TreeHeight

	var p prover.Prover
	switch cfg.ProverMode {
	case config.ProverLocal:
		artifacts, err := cfg.CircuitArtifacts()
		if err != nil {
			log.Fatal(err)
		}
		log.Infow("loading circuit artifacts", "circuits", len(artifacts))
		if err := service.DownloadArtifacts(artifactsTimeout, artifacts); err != nil {
			log.Fatal(err)
		}
		p = prover.NewRapidsnark(artifacts)
	default:
		if p, err = prover.NewHTTPClient(cfg.ZokratesURL); err != nil {
			log.Fatal(err)
		}
	}

	builder, err := transition.New(&transition.Config{
		Storage:  stg,
		State:    nullifiers,
		Prover:   p,
		Chain:    contracts,
		Tree:     tree,
		Keys:     keys,
		Account:  account,
		MaxJoins: cfg.MaxJoins,
	})
	if err != nil {
		log.Fatal(err)
	}

	listener, err := service.NewCommitmentListener(service.ListenerConfig{
		Events:   contracts,
		Tree:     tree,
		Storage:  stg,
		Keys:     keys,
		Account:  account,
		Contract: web3.EscrowShieldContract,
		Interval: cfg.ListenerPolling,
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := listener.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer listener.Stop()

	apiConf := &api.APIConfig{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Storage: stg,
		Engine:  builder,
		Shield:  cfg.ShieldAddress,
	}
	if cfg.ERC20Address != (common.Address{}) {
		apiConf.Token = contracts
	}
	apiService := service.NewAPI(apiConf)
	if err := apiService.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer apiService.Stop()

	<-ctx.Done()
	log.Infow("shutting down")
}
