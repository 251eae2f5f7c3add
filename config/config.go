package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot. Se construye una vez en el
// arranque y se pasa explícitamente a cada componente; nadie la muta después.
type Config struct {
	Trading TradingConfig `yaml:"trading"`
	Risk    RiskConfig    `yaml:"risk"`
	Venue   VenueConfig   `yaml:"venue"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// TradingConfig controla qué y cuándo se opera.
type TradingConfig struct {
	Mode            string   `yaml:"mode"`             // paper | live
	Symbols         []string `yaml:"symbols"`          // símbolos a operar
	ReferenceSymbol string   `yaml:"reference_symbol"` // índice de referencia: se cachea, nunca se opera
	HoursStart      string   `yaml:"hours_start"`      // "09:15"
	HoursEnd        string   `yaml:"hours_end"`        // "15:30"
	StatusSeconds   int      `yaml:"status_seconds"`   // intervalo del loop de supervisión
	PaperBalance    float64  `yaml:"paper_balance"`    // balance virtual inicial en modo paper
}

// RiskConfig contiene todos los límites del risk gate.
type RiskConfig struct {
	MaxPositionSize   float64 `yaml:"max_position_size"`
	MaxTotalExposure  float64 `yaml:"max_total_exposure"`
	MaxDailyLoss      float64 `yaml:"max_daily_loss"`
	MaxOrdersPerMin   int     `yaml:"max_orders_per_minute"`
	StopLossPct       float64 `yaml:"stop_loss_pct"`   // 0.02 = 2%
	TakeProfitPct     float64 `yaml:"take_profit_pct"` // 0.05 = 5%
	SizingMethod      string  `yaml:"sizing_method"`   // fixed | risk_parity
	FixedPositionSize float64 `yaml:"fixed_position_size"`
	RiskPerTradePct   float64 `yaml:"risk_per_trade_pct"` // fracción del balance en risk_parity
	MinPrice          float64 `yaml:"min_price"`
	MaxPrice          float64 `yaml:"max_price"`
	MaxTickChange     float64 `yaml:"max_tick_change"` // cambio relativo máximo entre ticks
}

// VenueConfig contiene la conexión al venue. Las credenciales vienen del .env,
// nunca del YAML.
type VenueConfig struct {
	APIBase          string `yaml:"api_base"`
	FeedURL          string `yaml:"feed_url"`
	APIToken         string `yaml:"-"`
	APISecret        string `yaml:"-"`
	ReconnectSeconds int    `yaml:"reconnect_seconds"`
	MaxReconnects    int    `yaml:"max_reconnects"`
	HeartbeatSeconds int    `yaml:"heartbeat_seconds"`
	FreshnessSeconds int    `yaml:"freshness_seconds"` // ventana sin ticks antes de avisar
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN         string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
	RecordTicks bool   `yaml:"record_ticks"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// StatusInterval devuelve el intervalo del loop de supervisión como Duration.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Trading.StatusSeconds) * time.Second
}

// ReconnectDelay devuelve la espera fija entre intentos de reconexión.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Venue.ReconnectSeconds) * time.Second
}

// HeartbeatInterval devuelve el intervalo del health check del feed.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Venue.HeartbeatSeconds) * time.Second
}

// FreshnessWindow devuelve cuánto puede estar un símbolo sin ticks antes
// de emitir un warning.
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Venue.FreshnessSeconds) * time.Second
}

// TradingWindow parsea las horas de trading. Falla en Load si el formato
// no es HH:MM.
func (c *Config) TradingWindow() (start, end time.Time, err error) {
	start, err = time.Parse("15:04", c.Trading.HoursStart)
	if err != nil {
		return start, end, fmt.Errorf("parse hours_start %q: %w", c.Trading.HoursStart, err)
	}
	end, err = time.Parse("15:04", c.Trading.HoursEnd)
	if err != nil {
		return start, end, fmt.Errorf("parse hours_end %q: %w", c.Trading.HoursEnd, err)
	}
	return start, end, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VENUE_API_TOKEN"); v != "" {
		cfg.Venue.APIToken = v
	}
	if v := os.Getenv("VENUE_API_SECRET"); v != "" {
		cfg.Venue.APISecret = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "paper"
	}
	if cfg.Trading.HoursStart == "" {
		cfg.Trading.HoursStart = "09:15"
	}
	if cfg.Trading.HoursEnd == "" {
		cfg.Trading.HoursEnd = "15:30"
	}
	if cfg.Trading.StatusSeconds <= 0 {
		cfg.Trading.StatusSeconds = 30
	}
	if cfg.Trading.PaperBalance <= 0 {
		cfg.Trading.PaperBalance = 100000
	}
	if cfg.Risk.MaxPositionSize <= 0 {
		cfg.Risk.MaxPositionSize = 50000
	}
	if cfg.Risk.MaxTotalExposure <= 0 {
		cfg.Risk.MaxTotalExposure = 200000
	}
	if cfg.Risk.MaxDailyLoss <= 0 {
		cfg.Risk.MaxDailyLoss = 1000
	}
	if cfg.Risk.MaxOrdersPerMin <= 0 {
		cfg.Risk.MaxOrdersPerMin = 100
	}
	if cfg.Risk.StopLossPct <= 0 {
		cfg.Risk.StopLossPct = 0.02
	}
	if cfg.Risk.TakeProfitPct <= 0 {
		cfg.Risk.TakeProfitPct = 0.05
	}
	if cfg.Risk.SizingMethod == "" {
		cfg.Risk.SizingMethod = "fixed"
	}
	if cfg.Risk.FixedPositionSize <= 0 {
		cfg.Risk.FixedPositionSize = 10000
	}
	if cfg.Risk.RiskPerTradePct <= 0 {
		cfg.Risk.RiskPerTradePct = 0.02
	}
	if cfg.Risk.MinPrice <= 0 {
		cfg.Risk.MinPrice = 1
	}
	if cfg.Risk.MaxPrice <= 0 {
		cfg.Risk.MaxPrice = 100000
	}
	if cfg.Risk.MaxTickChange <= 0 {
		cfg.Risk.MaxTickChange = 0.10
	}
	if cfg.Venue.ReconnectSeconds <= 0 {
		cfg.Venue.ReconnectSeconds = 5
	}
	if cfg.Venue.MaxReconnects <= 0 {
		cfg.Venue.MaxReconnects = 10
	}
	if cfg.Venue.HeartbeatSeconds <= 0 {
		cfg.Venue.HeartbeatSeconds = 30
	}
	if cfg.Venue.FreshnessSeconds <= 0 {
		cfg.Venue.FreshnessSeconds = 60
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tradebot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// validate rechaza configuraciones inconsistentes antes de arrancar.
func validate(cfg *Config) error {
	if cfg.Trading.Mode != "paper" && cfg.Trading.Mode != "live" {
		return fmt.Errorf("invalid mode %q: use paper or live", cfg.Trading.Mode)
	}
	if len(cfg.Trading.Symbols) == 0 {
		return fmt.Errorf("no trading symbols configured")
	}
	if cfg.Risk.SizingMethod != "fixed" && cfg.Risk.SizingMethod != "risk_parity" {
		return fmt.Errorf("invalid sizing_method %q: use fixed or risk_parity", cfg.Risk.SizingMethod)
	}
	if cfg.Risk.MinPrice >= cfg.Risk.MaxPrice {
		return fmt.Errorf("min_price %.2f must be below max_price %.2f", cfg.Risk.MinPrice, cfg.Risk.MaxPrice)
	}
	if _, _, err := cfg.TradingWindow(); err != nil {
		return err
	}
	return nil
}
