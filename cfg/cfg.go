// Package cfg
package cfg

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ModeDev        = "dev"
	ModeProduction = "prod"
)

const ServerVersion = "1.1.0"

type CoordinatorConfig struct {
	ServerMode        string
	Port              string
	HttpRequestSecret string

	LogLevel  string
	SentryDSN string

	DefaultAPITimeout time.Duration

	StorageDriver  string
	StorageURI     string
	StorageDB      string
	StorageMinConn int
	StorageMaxConn int
	StorageIsFlush bool

	CacheEngine      string
	CacheURL         string
	CacheDB          int
	CacheIsFlush     bool
	CacheExpiredTime time.Duration

	ChainURL        string
	AutocratProgram string
	AmmProgram      string

	// TrackedModerators is the monitor allow-list. Empty means track nothing.
	TrackedModerators []string

	ModeratorAddress   string
	ModeratorAuthority string
	BaseMint           string
	QuoteMint          string

	ProposalLength time.Duration
	FinalizeGrace  time.Duration

	CrankInterval       time.Duration
	PriceRecordInterval time.Duration
	SpotPriceInterval   time.Duration
	LogPollInterval     time.Duration

	SettlementAPIURL string
	ListingAPIURL    string
}

func New() (CoordinatorConfig, error) {
	apiDefaultTimeoutStr := os.Getenv("DEFAULT_API_TIMEOUT")
	apiDefaultTimeout, err := strconv.Atoi(apiDefaultTimeoutStr)
	if err != nil {
		apiDefaultTimeout = 5
	}

	cacheDBStr := os.Getenv("CACHE_DB")
	cacheDB, err := strconv.Atoi(cacheDBStr)
	if err != nil {
		cacheDB = 0
	}

	cacheIsFlushStr := os.Getenv("CACHE_IS_FLUSH")
	cacheIsFlush, err := strconv.ParseBool(cacheIsFlushStr)
	if err != nil {
		cacheIsFlush = false
	}

	cacheExpiredTimeStr := os.Getenv("CACHE_EXPIRED_TIME")
	cacheExpiredTime, err := strconv.Atoi(cacheExpiredTimeStr)
	if err != nil {
		cacheExpiredTime = 12
	}

	storageIsFlushStr := os.Getenv("STORAGE_IS_FLUSH")
	storageIsFlush, err := strconv.ParseBool(storageIsFlushStr)
	if err != nil {
		storageIsFlush = false
	}

	storageMinConn, err := strconv.Atoi(os.Getenv("STORAGE_MIN_CONN"))
	if err != nil {
		storageMinConn = 2
	}
	storageMaxConn, err := strconv.Atoi(os.Getenv("STORAGE_MAX_CONN"))
	if err != nil {
		storageMaxConn = 8
	}

	chainURL := os.Getenv("CHAIN_URL")
	if chainURL == "" {
		return CoordinatorConfig{}, errors.New("missing chain RPC URL in config")
	}

	var trackedModerators []string
	trackedModeratorsStr := os.Getenv("TRACKED_MODERATORS")
	if trackedModeratorsStr != "" {
		trackedModerators = strings.Split(trackedModeratorsStr, ",")
	}

	proposalLength, err := strconv.Atoi(os.Getenv("PROPOSAL_LENGTH"))
	if err != nil {
		proposalLength = 259200 // 3 days
	}

	finalizeGrace, err := strconv.Atoi(os.Getenv("FINALIZE_GRACE"))
	if err != nil {
		finalizeGrace = 30
	}

	crankInterval, err := strconv.Atoi(os.Getenv("CRANK_INTERVAL"))
	if err != nil {
		crankInterval = 60
	}

	priceRecordInterval, err := strconv.Atoi(os.Getenv("PRICE_RECORD_INTERVAL"))
	if err != nil {
		priceRecordInterval = 60
	}

	spotPriceInterval, err := strconv.Atoi(os.Getenv("SPOT_PRICE_INTERVAL"))
	if err != nil {
		spotPriceInterval = 300
	}

	logPollInterval, err := strconv.Atoi(os.Getenv("LOG_POLL_INTERVAL"))
	if err != nil {
		logPollInterval = 5
	}

	cfg := CoordinatorConfig{
		ServerMode:        os.Getenv("SERVER_MODE"),
		Port:              os.Getenv("PORT"),
		HttpRequestSecret: os.Getenv("HTTP_REQUEST_SECRET"),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		SentryDSN:         os.Getenv("SENTRY_DSN"),

		DefaultAPITimeout: time.Duration(apiDefaultTimeout) * time.Second,

		StorageDriver:  os.Getenv("STORAGE_DRIVER"),
		StorageURI:     os.Getenv("STORAGE_URI"),
		StorageDB:      os.Getenv("STORAGE_DB"),
		StorageMinConn: storageMinConn,
		StorageMaxConn: storageMaxConn,
		StorageIsFlush: storageIsFlush,

		CacheEngine:      os.Getenv("CACHE_ENGINE"),
		CacheURL:         os.Getenv("CACHE_URL"),
		CacheDB:          cacheDB,
		CacheIsFlush:     cacheIsFlush,
		CacheExpiredTime: time.Duration(cacheExpiredTime) * time.Hour,

		ChainURL:        chainURL,
		AutocratProgram: os.Getenv("AUTOCRAT_PROGRAM"),
		AmmProgram:      os.Getenv("AMM_PROGRAM"),

		TrackedModerators: trackedModerators,

		ModeratorAddress:   os.Getenv("MODERATOR_ADDRESS"),
		ModeratorAuthority: os.Getenv("MODERATOR_AUTHORITY"),
		BaseMint:           os.Getenv("BASE_MINT"),
		QuoteMint:          os.Getenv("QUOTE_MINT"),

		ProposalLength: time.Duration(proposalLength) * time.Second,
		FinalizeGrace:  time.Duration(finalizeGrace) * time.Second,

		CrankInterval:       time.Duration(crankInterval) * time.Second,
		PriceRecordInterval: time.Duration(priceRecordInterval) * time.Second,
		SpotPriceInterval:   time.Duration(spotPriceInterval) * time.Second,
		LogPollInterval:     time.Duration(logPollInterval) * time.Second,

		SettlementAPIURL: os.Getenv("SETTLEMENT_API_URL"),
		ListingAPIURL:    os.Getenv("LISTING_API_URL"),
	}
	return cfg, nil
}
