package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"spreadwatch/internal/logging"
	"spreadwatch/internal/tier"
)

// DefaultPrecision is the number of fractional digits displayed when an
// instrument does not set precision.
const DefaultPrecision int32 = 5

// Venue kinds.
const (
	KindREST       = "rest"
	KindBybit      = "bybit"
	KindAggregator = "aggregator"
	KindCow        = "cow"
	KindRouter     = "router"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig          `mapstructure:"app"`
	Logging     logging.Config     `mapstructure:"logging"`
	HTTP        HTTPConfig         `mapstructure:"http"`
	Database    DatabaseConfig     `mapstructure:"database"`
	Scheduler   SchedulerConfig    `mapstructure:"scheduler"`
	Ethereum    EthereumConfig     `mapstructure:"ethereum"`
	Audio       AudioConfig        `mapstructure:"audio"`
	Sinks       SinksConfig        `mapstructure:"sinks"`
	Alerting    AlertingConfig     `mapstructure:"alerting"`
	Instruments []InstrumentConfig `mapstructure:"instruments"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig controls the status/dashboard server.
type HTTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. The database is only
// used for advisory locks between replicas.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockNamespace   string        `mapstructure:"lock_namespace"`
}

// SchedulerConfig governs behaviour shared by all instrument timers.
type SchedulerConfig struct {
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	Immediate    bool          `mapstructure:"immediate"`
}

// EthereumConfig covers on-chain data access.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AudioConfig configures tone requests.
type AudioConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SinksConfig selects presentation outputs.
type SinksConfig struct {
	Log       bool            `mapstructure:"log"`
	Websocket bool            `mapstructure:"websocket"`
	Redis     RedisSinkConfig `mapstructure:"redis"`
	Kafka     KafkaSinkConfig `mapstructure:"kafka"`
}

// RedisSinkConfig mirrors the latest displays into Redis.
type RedisSinkConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PoolSize   int           `mapstructure:"pool_size"`
	TLSEnabled bool          `mapstructure:"tls_enabled"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	Channel    string        `mapstructure:"channel"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// KafkaSinkConfig publishes displays to a topic.
type KafkaSinkConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// AlertingConfig defines operator notifications for actionable tiers.
type AlertingConfig struct {
	Cooldown time.Duration  `mapstructure:"cooldown"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TokenConfig describes one side of a pair. Decimals is nil when the key is
// absent.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals *int32 `mapstructure:"decimals"`
}

// Scale returns the configured decimals, or zero when unset.
func (t TokenConfig) Scale() int32 {
	if t.Decimals == nil {
		return 0
	}
	return *t.Decimals
}

// VenueConfig selects and parameterises a venue adapter.
type VenueConfig struct {
	Kind      string        `mapstructure:"kind"`
	URL       string        `mapstructure:"url"`
	BaseURL   string        `mapstructure:"base_url"`
	Symbol    string        `mapstructure:"symbol"`
	Path      []string      `mapstructure:"path"`
	BidsKey   string        `mapstructure:"bids_key"`
	AsksKey   string        `mapstructure:"asks_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`

	BuyNotional  decimal.Decimal `mapstructure:"buy_notional"`
	SellNotional decimal.Decimal `mapstructure:"sell_notional"`
	SlippageBps  int             `mapstructure:"slippage_bps"`
	PriceQuality string          `mapstructure:"price_quality"`
	AppCode      string          `mapstructure:"app_code"`
	Router       string          `mapstructure:"router"`
	Via          []string        `mapstructure:"via"`
}

// IsBook reports whether the venue is an order-book adapter.
func (v VenueConfig) IsBook() bool {
	return v.Kind == KindREST || v.Kind == KindBybit
}

// IsQuote reports whether the venue is a swap-quote adapter.
func (v VenueConfig) IsQuote() bool {
	switch v.Kind {
	case KindAggregator, KindCow, KindRouter:
		return true
	}
	return false
}

// ToneConfig is the tone attached to an actionable tier.
type ToneConfig struct {
	Volume      float64 `mapstructure:"volume"`
	FrequencyHz float64 `mapstructure:"frequency_hz"`
}

// ThresholdConfig is one row of an instrument's threshold table.
type ThresholdConfig struct {
	Bound decimal.Decimal `mapstructure:"bound"`
	Name  string          `mapstructure:"name"`
	Tone  *ToneConfig     `mapstructure:"tone"`
}

// InstrumentConfig describes one monitored instrument.
type InstrumentConfig struct {
	Name         string            `mapstructure:"name"`
	Disabled     bool              `mapstructure:"disabled"`
	Period       time.Duration     `mapstructure:"period"`
	AlignToStart bool              `mapstructure:"align_to_start"`
	Precision    *int32            `mapstructure:"precision"`
	Base         TokenConfig       `mapstructure:"base"`
	Quote        TokenConfig       `mapstructure:"quote"`
	BuyElement   string            `mapstructure:"buy_element"`
	SellElement  string            `mapstructure:"sell_element"`
	Primary      VenueConfig       `mapstructure:"primary"`
	Comparison   VenueConfig       `mapstructure:"comparison"`
	Neutral      string            `mapstructure:"neutral"`
	Thresholds   []ThresholdConfig `mapstructure:"thresholds"`
}

// DisplayPrecision returns the configured precision or DefaultPrecision.
func (i InstrumentConfig) DisplayPrecision() int32 {
	if i.Precision == nil {
		return DefaultPrecision
	}
	return *i.Precision
}

// Table builds the instrument's threshold table.
func (i InstrumentConfig) Table() (*tier.Table, error) {
	levels := make([]tier.Level, 0, len(i.Thresholds))
	for _, th := range i.Thresholds {
		lvl := tier.Level{Bound: th.Bound, Name: th.Name}
		if th.Tone != nil {
			lvl.Tone = &tier.Tone{Volume: th.Tone.Volume, FrequencyHz: th.Tone.FrequencyHz}
		}
		levels = append(levels, lvl)
	}
	return tier.NewTable(i.Neutral, levels)
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SPREADWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyInstrumentDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "spreadwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "5s")

	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.immediate", true)

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.timeout", "3s")

	v.SetDefault("sinks.log", true)
	v.SetDefault("sinks.websocket", true)
	v.SetDefault("sinks.redis.enabled", false)
	v.SetDefault("sinks.redis.addr", "localhost:6379")
	v.SetDefault("sinks.redis.pool_size", 10)
	v.SetDefault("sinks.redis.key_prefix", "display:")
	v.SetDefault("sinks.redis.channel", "spreadwatch:displays")
	v.SetDefault("sinks.kafka.enabled", false)
	v.SetDefault("sinks.kafka.topic", "spreadwatch.displays")

	v.SetDefault("alerting.cooldown", "10m")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_namespace", "spreadwatch")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			decimalHook(),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalHook decodes YAML strings and numbers into decimal.Decimal. Strings
// are preferred in config files because they keep the exact written value.
func decimalHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case float32:
			return decimal.NewFromFloat32(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case uint64:
			return decimal.NewFromUint64(v), nil
		}
		return data, nil
	}
}

func (c *Config) applyInstrumentDefaults() {
	for i := range c.Instruments {
		inst := &c.Instruments[i]
		inst.Name = strings.TrimSpace(inst.Name)
		if inst.Period == 0 {
			inst.Period = 5 * time.Second
		}
		if inst.Precision == nil {
			p := DefaultPrecision
			inst.Precision = &p
		}
		if inst.BuyElement == "" {
			inst.BuyElement = inst.Name + "-buy"
		}
		if inst.SellElement == "" {
			inst.SellElement = inst.Name + "-sell"
		}
		for _, venue := range []*VenueConfig{&inst.Primary, &inst.Comparison} {
			venue.Kind = strings.ToLower(strings.TrimSpace(venue.Kind))
			if venue.Timeout == 0 {
				venue.Timeout = 10 * time.Second
			}
			if venue.Symbol == "" && venue.IsBook() {
				venue.Symbol = inst.Primary.Symbol
			}
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("at least one instrument must be configured")
	}

	seen := make(map[string]struct{}, len(c.Instruments))
	elements := make(map[string]string, 2*len(c.Instruments))
	for _, inst := range c.Instruments {
		if inst.Name == "" {
			return fmt.Errorf("instruments[].name is required")
		}
		if _, dup := seen[inst.Name]; dup {
			return fmt.Errorf("instrument %q configured twice", inst.Name)
		}
		seen[inst.Name] = struct{}{}
		if inst.Disabled {
			continue
		}

		if err := inst.validate(c); err != nil {
			return fmt.Errorf("instrument %q: %w", inst.Name, err)
		}

		for _, el := range []string{inst.BuyElement, inst.SellElement} {
			if owner, taken := elements[el]; taken {
				return fmt.Errorf("element %q used by both %q and %q", el, owner, inst.Name)
			}
			elements[el] = inst.Name
		}
	}

	if c.Audio.Enabled && c.Audio.WebhookURL == "" && !c.Sinks.Websocket {
		return fmt.Errorf("audio.enabled needs audio.webhook_url or sinks.websocket")
	}
	if c.Sinks.Kafka.Enabled {
		if len(c.Sinks.Kafka.Brokers) == 0 {
			return fmt.Errorf("sinks.kafka.brokers 必须配置")
		}
		if c.Sinks.Kafka.Topic == "" {
			return fmt.Errorf("sinks.kafka.topic 必须配置")
		}
	}
	if c.Sinks.Redis.Enabled && c.Sinks.Redis.Addr == "" {
		return fmt.Errorf("sinks.redis.addr 必须配置")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	return nil
}

func (i InstrumentConfig) validate(c *Config) error {
	if i.Period <= 0 {
		return fmt.Errorf("period must be greater than zero")
	}
	if i.DisplayPrecision() < 0 {
		return fmt.Errorf("precision cannot be negative")
	}
	if !i.Primary.IsBook() {
		return fmt.Errorf("primary.kind must be %q or %q, got %q", KindREST, KindBybit, i.Primary.Kind)
	}
	if err := i.Primary.validateBook("primary"); err != nil {
		return err
	}

	switch {
	case i.Comparison.IsBook():
		if err := i.Comparison.validateBook("comparison"); err != nil {
			return err
		}
	case i.Comparison.IsQuote():
		if err := i.validateSwap(c); err != nil {
			return err
		}
	default:
		return fmt.Errorf("comparison.kind %q is not supported", i.Comparison.Kind)
	}

	if _, err := i.Table(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	return nil
}

func (v VenueConfig) validateBook(field string) error {
	if v.Symbol == "" {
		return fmt.Errorf("%s.symbol is required", field)
	}
	if v.Kind == KindREST && v.URL == "" {
		return fmt.Errorf("%s.url is required", field)
	}
	return nil
}

func (i InstrumentConfig) validateSwap(c *Config) error {
	for field, tok := range map[string]TokenConfig{"base": i.Base, "quote": i.Quote} {
		if tok.Address == "" {
			return fmt.Errorf("%s.address is required for swap quotes", field)
		}
		if tok.Decimals == nil {
			return fmt.Errorf("%s.decimals is required for swap quotes", field)
		}
		if *tok.Decimals < 0 || *tok.Decimals > 36 {
			return fmt.Errorf("%s.decimals must be within [0,36]", field)
		}
	}
	if !i.Comparison.BuyNotional.IsPositive() {
		return fmt.Errorf("comparison.buy_notional must be greater than zero")
	}
	if !i.Comparison.SellNotional.IsPositive() {
		return fmt.Errorf("comparison.sell_notional must be greater than zero")
	}
	if i.Comparison.Kind == KindRouter {
		if i.Comparison.Router == "" {
			return fmt.Errorf("comparison.router is required")
		}
		if c.Ethereum.RPCURL == "" {
			return fmt.Errorf("ethereum.rpc_url is required for router quotes")
		}
	}
	return nil
}

// Warnings reports suspicious but valid settings. An order-book symbol that
// does not mention the base token usually means a copied instrument block
// whose symbol was never updated.
func (c *Config) Warnings() []string {
	var out []string
	for _, inst := range c.Instruments {
		base := normalizeSymbol(inst.Base.Symbol)
		if base == "" {
			continue
		}
		for field, venue := range map[string]VenueConfig{"primary": inst.Primary, "comparison": inst.Comparison} {
			if !venue.IsBook() || venue.Symbol == "" {
				continue
			}
			if !strings.Contains(normalizeSymbol(venue.Symbol), base) {
				out = append(out, fmt.Sprintf("instrument %q: %s.symbol %q does not mention base token %q", inst.Name, field, venue.Symbol, inst.Base.Symbol))
			}
		}
	}
	return out
}

// Enabled returns the instruments that are not disabled.
func (c *Config) Enabled() []InstrumentConfig {
	out := make([]InstrumentConfig, 0, len(c.Instruments))
	for _, inst := range c.Instruments {
		if !inst.Disabled {
			out = append(out, inst)
		}
	}
	return out
}

// Instrument looks up an instrument by name.
func (c *Config) Instrument(name string) (InstrumentConfig, bool) {
	for _, inst := range c.Instruments {
		if strings.EqualFold(inst.Name, name) {
			return inst, true
		}
	}
	return InstrumentConfig{}, false
}

func normalizeSymbol(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
}
