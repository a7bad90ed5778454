// Package config holds the process configuration of the escrow daemon. It is
// populated from command line flags, each of them defaulting to an
// environment variable.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	flag "github.com/spf13/pflag"
	"github.com/vocdoni/zk-escrow/transition"
	"github.com/vocdoni/zk-escrow/web3"
)

// Prover modes.
const (
	ProverHTTP  = "http"
	ProverLocal = "local"
)

// Config is the configuration of the escrow daemon.
type Config struct {
	// Chain
	RPCURL          string
	AccountKey      string
	AdminKey        string
	DefaultAccount  common.Address
	ShieldAddress   common.Address
	ERC20Address    common.Address
	ShieldABIPath   string
	GasLimit        uint64
	ListenerFrom    uint64
	ListenerPolling time.Duration

	// External services
	ZokratesURL string
	TimberURL   string
	TreeHeight  int

	// Local proving
	ProverMode        string
	ArtifactsURL      string
	ArtifactsManifest string

	// Engine
	DataDir  string
	MaxJoins int

	// HTTP boundary
	Host string
	Port int

	LogLevel  string
	LogOutput string
}

// Load parses args (without the program name) into a Config. Flags not
// given take their value from the environment, then from the built-in
// default.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	var account, shield, erc20 string

	fs := flag.NewFlagSet("escrowd", flag.ContinueOnError)
	fs.StringVar(&cfg.RPCURL, "rpc", env("RPC_URL", "ws://localhost:8546"), "web3 endpoint of the chain")
	fs.StringVar(&cfg.AccountKey, "key", env("KEY", ""), "hex private key of the account that sends the transactions")
	fs.StringVar(&cfg.AdminKey, "adminKey", env("ADMIN_KEY", ""), "hex private key of the token owner, used to mint")
	fs.StringVar(&account, "account", env("DEFAULT_ACCOUNT", ""), "address whose balance is managed, defaults to the key address")
	fs.StringVar(&shield, "shield", env("ESCROW_SHIELD_ADDRESS", ""), "address of the EscrowShield contract")
	fs.StringVar(&erc20, "erc20", env("ERC20_ADDRESS", ""), "address of the ERC20 token")
	fs.StringVar(&cfg.ShieldABIPath, "shieldABI", env("ESCROW_SHIELD_ABI", ""), "path to a contract artifact with the EscrowShield ABI")
	fs.Uint64Var(&cfg.GasLimit, "gasLimit", envUint("GAS_LIMIT", web3.DefaultGasLimit), "gas limit of the transactions")
	fs.Uint64Var(&cfg.ListenerFrom, "fromBlock", envUint("FROM_BLOCK", 0), "first block scanned for encrypted commitments on a fresh database")
	fs.DurationVar(&cfg.ListenerPolling, "polling", envDuration("POLLING_INTERVAL", 10*time.Second), "polling interval of the encrypted data listener")
	fs.StringVar(&cfg.ZokratesURL, "zokrates", env("ZOKRATES_URL", "http://localhost:3002"), "URL of the proof generation worker")
	fs.StringVar(&cfg.TimberURL, "timber", env("TIMBER_URL", "http://localhost:3001"), "URL of the Timber merkle tree service")
	fs.IntVar(&cfg.TreeHeight, "treeHeight", int(envUint("TIMBER_HEIGHT", 32)), "height of the commitment tree")
	fs.StringVar(&cfg.ProverMode, "prover", env("PROVER_MODE", ProverHTTP), "proof generation mode: http or local")
	fs.StringVar(&cfg.ArtifactsURL, "artifactsURL", env("ARTIFACTS_URL", ""), "base URL of the circuit artifacts, for the local prover")
	fs.StringVar(&cfg.ArtifactsManifest, "artifactsManifest", env("ARTIFACTS_MANIFEST", ""), "path to the JSON file with the artifact hashes, for the local prover")
	fs.StringVar(&cfg.DataDir, "datadir", env("DATA_DIR", defaultDataDir()), "directory of the local database")
	fs.IntVar(&cfg.MaxJoins, "maxJoins", int(envUint("MAX_JOINS", transition.DefaultMaxJoins)), "maximum joins run to cover a single amount, 0 for no limit")
	fs.StringVar(&cfg.Host, "host", env("HOST", "0.0.0.0"), "listen address of the HTTP API")
	fs.IntVar(&cfg.Port, "port", int(envUint("PORT", 3000)), "listen port of the HTTP API")
	fs.StringVar(&cfg.LogLevel, "logLevel", env("LOG_LEVEL", "info"), "log level: debug, info, warn or error")
	fs.StringVar(&cfg.LogOutput, "logOutput", env("LOG_OUTPUT", "stdout"), "log output: stdout, stderr or a file path")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.ShieldAddress, err = address("shield", shield, true); err != nil {
		return nil, err
	}
	if cfg.ERC20Address, err = address("erc20", erc20, false); err != nil {
		return nil, err
	}
	if cfg.DefaultAccount, err = address("account", account, false); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (cfg *Config) Validate() error {
	var errs []error
	if cfg.RPCURL == "" {
		errs = append(errs, errors.New("missing web3 endpoint"))
	}
	if cfg.AccountKey == "" {
		errs = append(errs, errors.New("missing account private key"))
	}
	if cfg.TimberURL == "" {
		errs = append(errs, errors.New("missing Timber URL"))
	}
	if cfg.TreeHeight <= 0 {
		errs = append(errs, fmt.Errorf("invalid tree height %d", cfg.TreeHeight))
	}
	if cfg.MaxJoins < 0 {
		errs = append(errs, fmt.Errorf("invalid max joins %d", cfg.MaxJoins))
	}
	switch cfg.ProverMode {
	case ProverHTTP:
		if cfg.ZokratesURL == "" {
			errs = append(errs, errors.New("missing proof worker URL"))
		}
	case ProverLocal:
		if cfg.ArtifactsURL == "" || cfg.ArtifactsManifest == "" {
			errs = append(errs, errors.New("local prover needs the artifacts URL and manifest"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown prover mode %q", cfg.ProverMode))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", cfg.Port))
	}
	return errors.Join(errs...)
}

func address(name, value string, required bool) (common.Address, error) {
	if value == "" {
		if required {
			return common.Address{}, fmt.Errorf("missing %s address", name)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envUint(key string, def uint64) uint64 {
	v, err := strconv.ParseUint(env(key, ""), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(env(key, ""))
	if err != nil {
		return def
	}
	return v
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "zk-escrow")
	}
	return filepath.Join(home, ".zk-escrow")
}
