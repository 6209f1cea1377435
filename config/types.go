package config

// Log configures the structured logger.
type Log struct {
	Service    string `toml:"Service" yaml:"service"`
	Env        string `toml:"Env" yaml:"env"`
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// RPC configures the HTTP API.
type RPC struct {
	ListenAddress      string  `toml:"ListenAddress" yaml:"listen"`
	TxRatePerSecond    float64 `toml:"TxRatePerSecond" yaml:"tx_rate_per_second"`
	TxBurst            int     `toml:"TxBurst" yaml:"tx_burst"`
	ReadTimeoutSeconds int     `toml:"ReadTimeoutSeconds" yaml:"read_timeout_seconds"`
	Auth               RPCAuth `toml:"Auth" yaml:"auth"`
}

// RPCAuth configures bearer tokens for transaction submission. Tokens are
// HS256 JWTs whose subject is the bech32 signer address. Without a secret the
// API rejects every submission.
type RPCAuth struct {
	HMACSecret       string `toml:"HMACSecret" yaml:"hmac_secret"`
	Issuer           string `toml:"Issuer" yaml:"issuer"`
	Audience         string `toml:"Audience" yaml:"audience"`
	ClockSkewSeconds int    `toml:"ClockSkewSeconds" yaml:"clock_skew_seconds"`
}

// Chain holds block production and storage settings.
type Chain struct {
	StableAsset          string `toml:"StableAsset" yaml:"stable_asset"`
	DataDir              string `toml:"DataDir" yaml:"data_dir"`
	DBBackend            string `toml:"DBBackend" yaml:"db_backend"`
	BlockIntervalSeconds int    `toml:"BlockIntervalSeconds" yaml:"block_interval_seconds"`
	MaxTxsPerBlock       int    `toml:"MaxTxsPerBlock" yaml:"max_txs_per_block"`
	MempoolLimit         int    `toml:"MempoolLimit" yaml:"mempool_limit"`
	// PriorityReservedBPS is the share of each block held for keeper and
	// oracle transactions.
	PriorityReservedBPS uint32 `toml:"PriorityReservedBPS" yaml:"priority_reserved_bps"`
}

// CDP holds the risk engine defaults. Ratios and rates are decimal strings.
type CDP struct {
	DefaultDebitExchangeRate       string `toml:"DefaultDebitExchangeRate" yaml:"default_debit_exchange_rate"`
	DefaultLiquidationRatio        string `toml:"DefaultLiquidationRatio" yaml:"default_liquidation_ratio"`
	DefaultLiquidationPenalty      string `toml:"DefaultLiquidationPenalty" yaml:"default_liquidation_penalty"`
	MinimumDebitValue              string `toml:"MinimumDebitValue" yaml:"minimum_debit_value"`
	MaxSwapSlippageCompareToOracle string `toml:"MaxSwapSlippageCompareToOracle" yaml:"max_swap_slippage_compare_to_oracle"`
	GlobalInterestRatePerSec       string `toml:"GlobalInterestRatePerSec" yaml:"global_interest_rate_per_sec"`
	MaxLiquidationsPerBlock        int    `toml:"MaxLiquidationsPerBlock" yaml:"max_liquidations_per_block"`
}

// DEX configures the liquidity pools.
type DEX struct {
	FeeNumerator          uint64 `toml:"FeeNumerator" yaml:"fee_numerator"`
	FeeDenominator        uint64 `toml:"FeeDenominator" yaml:"fee_denominator"`
	TradingPathLimit      int    `toml:"TradingPathLimit" yaml:"trading_path_limit"`
	MinLiquidityIncrement string `toml:"MinLiquidityIncrement" yaml:"min_liquidity_increment"`
}

// Auction configures the Dutch collateral auctions.
type Auction struct {
	StartPremium        string `toml:"StartPremium" yaml:"start_premium"`
	DecayIntervalBlocks uint64 `toml:"DecayIntervalBlocks" yaml:"decay_interval_blocks"`
	DecayFactor         string `toml:"DecayFactor" yaml:"decay_factor"`
	FloorRatio          string `toml:"FloorRatio" yaml:"floor_ratio"`
}

// Oracle configures price freshness.
type Oracle struct {
	MaxAgeSeconds int64 `toml:"MaxAgeSeconds" yaml:"max_age_seconds"`
}

// Indexer configures the event index database.
type Indexer struct {
	Enabled bool   `toml:"Enabled" yaml:"enabled"`
	DSN     string `toml:"DSN" yaml:"dsn"`
}

// GenesisToken registers an asset.
type GenesisToken struct {
	Symbol   string `toml:"Symbol" yaml:"symbol"`
	Name     string `toml:"Name" yaml:"name"`
	Decimals uint8  `toml:"Decimals" yaml:"decimals"`
}

// GenesisBalance mints an initial balance.
type GenesisBalance struct {
	Address string `toml:"Address" yaml:"address"`
	Asset   string `toml:"Asset" yaml:"asset"`
	Amount  string `toml:"Amount" yaml:"amount"`
}

// GenesisPrice seeds the oracle.
type GenesisPrice struct {
	Asset string `toml:"Asset" yaml:"asset"`
	Price string `toml:"Price" yaml:"price"`
}

// GenesisCollateral sets the risk parameters of a collateral. Empty strings
// leave a parameter unset.
type GenesisCollateral struct {
	Asset                   string `toml:"Asset" yaml:"asset"`
	InterestRatePerSec      string `toml:"InterestRatePerSec" yaml:"interest_rate_per_sec"`
	LiquidationRatio        string `toml:"LiquidationRatio" yaml:"liquidation_ratio"`
	LiquidationPenalty      string `toml:"LiquidationPenalty" yaml:"liquidation_penalty"`
	RequiredCollateralRatio string `toml:"RequiredCollateralRatio" yaml:"required_collateral_ratio"`
	MaximumTotalDebitValue  string `toml:"MaximumTotalDebitValue" yaml:"maximum_total_debit_value"`
}

// GenesisPair enables a trading pair.
type GenesisPair struct {
	AssetA string `toml:"AssetA" yaml:"asset_a"`
	AssetB string `toml:"AssetB" yaml:"asset_b"`
}

// Genesis describes the initial chain state.
type Genesis struct {
	Timestamp    int64               `toml:"Timestamp" yaml:"timestamp"`
	Tokens       []GenesisToken      `toml:"Tokens" yaml:"tokens"`
	Balances     []GenesisBalance    `toml:"Balances" yaml:"balances"`
	Governance   []string            `toml:"Governance" yaml:"governance"`
	Feeders      []string            `toml:"Feeders" yaml:"feeders"`
	Prices       []GenesisPrice      `toml:"Prices" yaml:"prices"`
	Collaterals  []GenesisCollateral `toml:"Collaterals" yaml:"collaterals"`
	TradingPairs []GenesisPair       `toml:"TradingPairs" yaml:"trading_pairs"`
}
