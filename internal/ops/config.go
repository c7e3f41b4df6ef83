package ops

import (
	"os"
	"time"

	"main/internal/executor"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/pipeline"
	"main/internal/risk"
	"main/internal/strategy"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
)

// FileConfig mirrors the JSON config layout. Durations carry their
// unit in the field name; the resolve step turns them into the
// component configs.
type FileConfig struct {
	Universe UniverseConfig `json:"universe"`
	Strategy StrategyConfig `json:"strategy"`
	Risk     risk.Config    `json:"risk"`
	Executor ExecutorConfig `json:"executor"`
	Pipeline PipelineConfig `json:"pipeline"`
	Feed     FeedConfig     `json:"feed"`
	Broker   BrokerConfig   `json:"broker"`
	Journal  JournalConfig  `json:"journal"`
	Profile  ProfileConfig  `json:"profile"`
}

// UniverseConfig selects the monitored instruments. With AutoDiscover
// the instrument master fills the universe at startup and the explicit
// list narrows it.
type UniverseConfig struct {
	AutoDiscover bool               `json:"autoDiscover"`
	Instruments  []InstrumentConfig `json:"instruments"`
}

type InstrumentConfig struct {
	Code   string `json:"code"`
	Market string `json:"market"`
}

type StrategyConfig struct {
	CapitalKrw         int64 `json:"capitalKrw"`
	CapitalFractionBps int64 `json:"capitalFractionBps"`
	NearHighBps        int64 `json:"nearHighBps"`
	MinVolumeRateBps   int64 `json:"minVolumeRateBps"`
	QuoteTTLMs         int64 `json:"quoteTtlMs"`
	VolumeWindowSec    int64 `json:"volumeWindowSec"`
}

type ExecutorConfig struct {
	Workers         int     `json:"workers"`
	QueueCap        int     `json:"queueCap"`
	OrdersPerSec    float64 `json:"ordersPerSec"`
	Burst           int     `json:"burst"`
	MaxRetries      int     `json:"maxRetries"`
	RetryBaseMs     int64   `json:"retryBaseMs"`
	RetryCeilingMs  int64   `json:"retryCeilingMs"`
	SubmitTimeoutMs int64   `json:"submitTimeoutMs"`
	DrainTimeoutMs  int64   `json:"drainTimeoutMs"`
}

type PipelineConfig struct {
	Lanes              int   `json:"lanes"`
	LaneDepth          int   `json:"laneDepth"`
	ReleaseCooldownSec int64 `json:"releaseCooldownSec"`
}

type FeedConfig struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type BrokerConfig struct {
	URL                string `json:"url"`
	AckURL             string `json:"ackUrl"`
	Token              string `json:"token"`
	AccountNo          string `json:"accountNo"`
	AccountPwd         string `json:"accountPwd"`
	TimeoutMs          int64  `json:"timeoutMs"`
	BreakerFailures    uint32 `json:"breakerFailures"`
	BreakerCooldownSec int64  `json:"breakerCooldownSec"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

type ProfileConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// UniverseEntry is one resolved instrument with its market segment.
type UniverseEntry struct {
	Instrument model.Instrument
	Market     enum.Market
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	AutoDiscover bool
	Universe     []UniverseEntry
	Strategy     strategy.Config
	VolumeWindow time.Duration
	Risk         risk.Config
	Executor     executor.Config
	Pipeline     pipeline.Config
	Feed         FeedConfig
	Broker       BrokerConfig
	Journal      JournalConfig
	Profile      ProfileConfig
}

// Load reads and resolves a JSON config file.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	return Parse(data)
}

// Parse resolves raw JSON config bytes.
func Parse(data []byte) (Loaded, error) {
	var cfg FileConfig
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}

	universe, err := resolveUniverse(cfg.Universe)
	if err != nil {
		return Loaded{}, err
	}
	strategyCfg, window, err := resolveStrategy(cfg.Strategy)
	if err != nil {
		return Loaded{}, err
	}
	if err := validateRisk(cfg.Risk); err != nil {
		return Loaded{}, err
	}

	return Loaded{
		AutoDiscover: cfg.Universe.AutoDiscover,
		Universe:     universe,
		Strategy:     strategyCfg,
		VolumeWindow: window,
		Risk:         cfg.Risk,
		Executor:     resolveExecutor(cfg.Executor),
		Pipeline:     resolvePipeline(cfg.Pipeline),
		Feed:         cfg.Feed,
		Broker:       cfg.Broker,
		Journal:      cfg.Journal,
		Profile:      cfg.Profile,
	}, nil
}

func resolveUniverse(cfg UniverseConfig) ([]UniverseEntry, error) {
	if !cfg.AutoDiscover && len(cfg.Instruments) == 0 {
		return nil, errors.New("universe is empty and auto discovery is off")
	}

	out := make([]UniverseEntry, 0, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		if inst.Code == "" {
			return nil, errors.New("universe instrument without code")
		}
		market, ok := enum.ParseMarket(inst.Market)
		if !ok {
			return nil, errors.Errorf("unknown market %q for instrument %s", inst.Market, inst.Code)
		}
		out = append(out, UniverseEntry{
			Instrument: model.Instrument(inst.Code),
			Market:     market,
		})
	}
	return out, nil
}

func resolveStrategy(cfg StrategyConfig) (strategy.Config, time.Duration, error) {
	if cfg.CapitalKrw <= 0 {
		return strategy.Config{}, 0, errors.New("strategy capital must be > 0")
	}
	if cfg.CapitalFractionBps <= 0 || cfg.CapitalFractionBps > 10_000 {
		return strategy.Config{}, 0, errors.New("strategy capital fraction must be in (0, 10000] bps")
	}
	if cfg.NearHighBps < 0 || cfg.MinVolumeRateBps < 0 {
		return strategy.Config{}, 0, errors.New("strategy thresholds must be >= 0")
	}

	window := time.Duration(cfg.VolumeWindowSec) * time.Second
	if window <= 0 {
		window = time.Minute
	}
	return strategy.Config{
		Capital:            model.Notional(cfg.CapitalKrw),
		CapitalFractionBps: cfg.CapitalFractionBps,
		NearHighBps:        cfg.NearHighBps,
		MinVolumeRateBps:   cfg.MinVolumeRateBps,
		QuoteTTL:           time.Duration(cfg.QuoteTTLMs) * time.Millisecond,
	}, window, nil
}

func validateRisk(cfg risk.Config) error {
	if cfg.MaxInstrumentNotional < 0 || cfg.MaxPortfolioNotional < 0 {
		return errors.New("risk caps must be >= 0")
	}
	if cfg.StopLossBps < 0 || cfg.StopLossBps >= 10_000 {
		return errors.New("risk stop loss must be in [0, 10000) bps")
	}
	if cfg.TakeProfitBps < 0 {
		return errors.New("risk take profit must be >= 0")
	}
	return nil
}

func resolveExecutor(cfg ExecutorConfig) executor.Config {
	return executor.Config{
		Workers:       cfg.Workers,
		QueueCap:      cfg.QueueCap,
		OrdersPerSec:  cfg.OrdersPerSec,
		Burst:         cfg.Burst,
		MaxRetries:    cfg.MaxRetries,
		RetryBase:     time.Duration(cfg.RetryBaseMs) * time.Millisecond,
		RetryCeiling:  time.Duration(cfg.RetryCeilingMs) * time.Millisecond,
		SubmitTimeout: time.Duration(cfg.SubmitTimeoutMs) * time.Millisecond,
		DrainTimeout:  time.Duration(cfg.DrainTimeoutMs) * time.Millisecond,
	}
}

func resolvePipeline(cfg PipelineConfig) pipeline.Config {
	return pipeline.Config{
		Lanes:           cfg.Lanes,
		LaneDepth:       cfg.LaneDepth,
		ReleaseCooldown: time.Duration(cfg.ReleaseCooldownSec) * time.Second,
	}
}
