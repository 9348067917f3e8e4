// Package config loads engine tuning knobs from the environment (spec §C
// "Configuration"), in the teacher's style: envconfig struct tags plus an
// optional .env file loaded first via godotenv.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Environment selects the zap logger profile (spec §A "Logging").
type Environment string

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"
)

// Options is the full set of tunables named in spec §4.6 "Worker Memory
// Binding" and §4.1 "Epoch Clock", with the envconfig prefix OCCTXN_.
type Options struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"dev"`

	// WorkerCount sizes the fixed-capacity worker pool (spec §4.6): one
	// TxnContext, log buffer, and page-pool grab per worker, never shared.
	WorkerCount int `envconfig:"WORKER_COUNT" default:"4"`

	// MaxReadSetSize / MaxWriteSetSize bound a TxnContext's per-transaction
	// access sets (spec §4.2, §7 ErrReadSetOverflow/ErrWriteSetOverflow).
	MaxReadSetSize  int `envconfig:"MAX_READ_SET_SIZE" default:"256"`
	MaxWriteSetSize int `envconfig:"MAX_WRITE_SET_SIZE" default:"256"`

	// LogBufferBytes sizes each worker's fixed log buffer (spec §3 "Thread
	// Log Buffer").
	LogBufferBytes int `envconfig:"LOG_BUFFER_BYTES" default:"1048576"`

	// EpochAdvanceIntervalMs is the background advancer's wakeup period
	// (spec §4.1 "Epoch Clock").
	EpochAdvanceIntervalMs int `envconfig:"EPOCH_ADVANCE_INTERVAL_MS" default:"20"`

	// PrivatePagePoolInitialGrab is how many pages each worker reserves
	// from the shared pool at startup (spec §4.6, DOMAIN STACK page pool).
	PrivatePagePoolInitialGrab int `envconfig:"PRIVATE_PAGE_POOL_INITIAL_GRAB" default:"64"`

	// PagePoolTotalPages bounds the engine-wide page pool workers grab from.
	PagePoolTotalPages int `envconfig:"PAGE_POOL_TOTAL_PAGES" default:"4096"`

	// SavepointPath is where the durable-epoch savepoint JSON is persisted
	// (spec §6 "SavepointManager").
	SavepointPath string `envconfig:"SAVEPOINT_PATH" default:"./occtxn-savepoint.json"`

	// LogDir is where the durability layer mirrors committed log bytes
	// (spec §6 "LogManager"), via an afero filesystem so tests can swap in
	// an in-memory one.
	LogDir string `envconfig:"LOG_DIR" default:"./occtxn-logs"`
}

// Load reads Options from the process environment, optionally pre-loading
// dotenvPath with godotenv first (spec §C: "an optional .env file"). A
// missing dotenv file is not an error — only a malformed one is.
func Load(dotenvPath string) (Options, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !os.IsNotExist(err) {
			return Options{}, fmt.Errorf("loading dotenv file %q: %w", dotenvPath, err)
		}
	}

	var o Options
	if err := envconfig.Process("occtxn", &o); err != nil {
		return Options{}, fmt.Errorf("processing OCCTXN_* environment: %w", err)
	}
	return o, nil
}
