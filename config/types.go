package config

// GMX configures the simulated GMX pool, reward emission and vesting. Amounts
// are decimal strings in base units so they survive TOML's int64 limit.
type GMX struct {
	MintFeeBps             uint64 `toml:"MintFeeBps"`
	BurnFeeBps             uint64 `toml:"BurnFeeBps"`
	WethPerGlpPerSecond    string `toml:"WethPerGlpPerSecond"`
	WethPerGmxPerSecond    string `toml:"WethPerGmxPerSecond"`
	EsGmxPerGlpPerSecond   string `toml:"EsGmxPerGlpPerSecond"`
	EsGmxPerGmxPerSecond   string `toml:"EsGmxPerGmxPerSecond"`
	MultiplierPointsAprBps uint64 `toml:"MultiplierPointsAprBps"`
	VestingDurationSeconds int64  `toml:"VestingDurationSeconds"`
	// SeedLiquidityUSDC is the USDC, in base units, deposited into the pool at
	// startup so GLP has a price.
	SeedLiquidityUSDC string `toml:"SeedLiquidityUSDC"`
}

// Plutus configures the plvGLP share vault.
type Plutus struct {
	ExitFeeBps uint64 `toml:"ExitFeeBps"`
}

// Market lists a plain ledger market. The isolated GLP and plvGLP markets are
// always listed and need no entry.
type Market struct {
	Symbol string `toml:"Symbol"`
	// Price is the USD value of one base unit with 36 minus token decimals of
	// precision.
	Price      string `toml:"Price"`
	Borrowable bool   `toml:"Borrowable"`
}

const (
	SymbolUSDC = "USDC"
	SymbolWETH = "WETH"
)

func DefaultGMX() GMX {
	return GMX{
		MintFeeBps:             25,
		BurnFeeBps:             30,
		WethPerGlpPerSecond:    "600000000",
		WethPerGmxPerSecond:    "900000000",
		EsGmxPerGlpPerSecond:   "1000000000",
		EsGmxPerGmxPerSecond:   "2000000000",
		MultiplierPointsAprBps: 10_000,
		VestingDurationSeconds: 365 * 24 * 60 * 60,
		SeedLiquidityUSDC:      "10000000000000",
	}
}

func DefaultPlutus() Plutus {
	return Plutus{ExitFeeBps: 200}
}

func DefaultMarkets() []Market {
	return []Market{
		{Symbol: SymbolUSDC, Price: "1000000000000000000000000000000", Borrowable: true},
		{Symbol: SymbolWETH, Price: "1500000000000000000000", Borrowable: true},
	}
}

func (g *GMX) applyDefaults() {
	def := DefaultGMX()
	if g.WethPerGlpPerSecond == "" {
		g.WethPerGlpPerSecond = def.WethPerGlpPerSecond
	}
	if g.WethPerGmxPerSecond == "" {
		g.WethPerGmxPerSecond = def.WethPerGmxPerSecond
	}
	if g.EsGmxPerGlpPerSecond == "" {
		g.EsGmxPerGlpPerSecond = def.EsGmxPerGlpPerSecond
	}
	if g.EsGmxPerGmxPerSecond == "" {
		g.EsGmxPerGmxPerSecond = def.EsGmxPerGmxPerSecond
	}
	if g.VestingDurationSeconds == 0 {
		g.VestingDurationSeconds = def.VestingDurationSeconds
	}
	if g.SeedLiquidityUSDC == "" {
		g.SeedLiquidityUSDC = def.SeedLiquidityUSDC
	}
}

// Telemetry configures optional OTLP export. An empty endpoint keeps the
// global providers at their no-op defaults.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	// Headers uses the key=value,key=value form of OTEL_EXPORTER_OTLP_HEADERS.
	Headers string `toml:"Headers"`
	Traces  bool   `toml:"Traces"`
	Metrics bool   `toml:"Metrics"`
}
