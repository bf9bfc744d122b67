package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"spreadwatch/internal/alerting"
	"spreadwatch/internal/config"
	"spreadwatch/internal/metrics"
	"spreadwatch/internal/monitor"
	"spreadwatch/internal/sink"
	"spreadwatch/internal/storage"
	"spreadwatch/internal/venue"
)

// runtime holds the components shared by every monitor in one process.
type runtime struct {
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	board    *sink.Board
	hub      *sink.Hub
	audio    *alerting.Switch
	toner    *alerting.Toner
	notifier alerting.Notifier
	sink     sink.Sink
	store    *storage.Store
	dialer   *venue.Dialer
	closers  []func()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

// newRuntime wires sinks, alerting, metrics and storage from config. External
// sinks and the advisory-lock store are only opened when service is true.
func (a *App) newRuntime(ctx context.Context, service bool) (*runtime, error) {
	cfg := a.Config
	rt := &runtime{
		registry: prometheus.NewRegistry(),
		board:    sink.NewBoard(),
		audio:    alerting.NewSwitch(cfg.Audio.Enabled),
		dialer:   venue.NewDialer(cfg.Ethereum.RPCURL),
	}
	rt.closers = append(rt.closers, rt.dialer.Close)
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.New(rt.registry)

	fanout := sink.Fanout{rt.board}
	if cfg.Sinks.Log {
		fanout = append(fanout, sink.NewLogSink(a.Logger))
	}

	var players []alerting.Player
	if cfg.Audio.WebhookURL != "" {
		players = append(players, alerting.NewWebhookPlayer(cfg.Audio.WebhookURL, cfg.Audio.Timeout))
	}

	if service {
		if cfg.Sinks.Websocket {
			rt.hub = sink.NewHub(rt.board.Snapshot, a.Logger)
			fanout = append(fanout, rt.hub)
			players = append(players, rt.hub)
		}

		if cfg.Sinks.Redis.Enabled {
			rc := cfg.Sinks.Redis
			redisSink, err := sink.NewRedisSink(ctx, sink.RedisOptions{
				Addr:       rc.Addr,
				Password:   rc.Password,
				DB:         rc.DB,
				PoolSize:   rc.PoolSize,
				TLSEnabled: rc.TLSEnabled,
				KeyPrefix:  rc.KeyPrefix,
				Channel:    rc.Channel,
				TTL:        rc.TTL,
			})
			if err != nil {
				rt.close()
				return nil, err
			}
			fanout = append(fanout, redisSink)
			rt.closers = append(rt.closers, func() { _ = redisSink.Close() })
		}

		if cfg.Sinks.Kafka.Enabled {
			kafkaSink := sink.NewKafkaSink(cfg.Sinks.Kafka.Brokers, cfg.Sinks.Kafka.Topic)
			fanout = append(fanout, kafkaSink)
			rt.closers = append(rt.closers, func() {
				if err := kafkaSink.Close(); err != nil {
					a.Logger.Warn().Err(err).Msg("failed to flush kafka sink")
				}
			})
		}

		store, err := a.openStore(ctx)
		if err != nil {
			rt.close()
			return nil, err
		}
		if store != nil {
			rt.store = store
			rt.closers = append(rt.closers, store.Close)
		}
	}

	rt.sink = fanout
	rt.toner = alerting.NewToner(rt.audio, players, cfg.Audio.Timeout, a.Logger)
	rt.notifier = a.newNotifier()
	return rt, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Telegram.Enabled {
		return nil
	}
	tg := a.Config.Alerting.Telegram
	telegram := alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, tg.Timeout, a.Logger)
	if a.Config.Alerting.Cooldown <= 0 {
		return telegram
	}
	return alerting.NewThrottle(telegram, a.Config.Alerting.Cooldown)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, error) {
	if a.Config.Database.DSN == "" {
		return nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}

	store := storage.NewStore(pool, a.Logger)
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return store, nil
}

func (a *App) newMonitors(rt *runtime) ([]*monitor.SpreadMonitor, error) {
	enabled := a.Config.Enabled()
	if len(enabled) == 0 {
		return nil, errors.New("no enabled instruments")
	}
	if rt.store == nil {
		a.Logger.Info().Msg("database.dsn not configured; advisory locks disabled")
	}

	monitors := make([]*monitor.SpreadMonitor, 0, len(enabled))
	for _, inst := range enabled {
		m, err := a.newMonitor(rt, inst)
		if err != nil {
			return nil, err
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

func (a *App) newMonitor(rt *runtime, inst config.InstrumentConfig) (*monitor.SpreadMonitor, error) {
	return a.newMonitorWith(rt, inst, nil, nil)
}

// newMonitorWith builds a monitor; non-nil primary/comparison replace the
// configured venues.
func (a *App) newMonitorWith(rt *runtime, inst config.InstrumentConfig, primary venue.BookFetcher, comparison venue.RateFetcher) (*monitor.SpreadMonitor, error) {
	table, err := inst.Table()
	if err != nil {
		return nil, fmt.Errorf("instrument %q thresholds: %w", inst.Name, err)
	}
	if primary == nil {
		if primary, err = a.newBook(inst.Name+"-primary", inst.Primary); err != nil {
			return nil, fmt.Errorf("instrument %q: %w", inst.Name, err)
		}
	}
	if comparison == nil {
		if comparison, err = a.newComparison(rt, inst); err != nil {
			return nil, fmt.Errorf("instrument %q: %w", inst.Name, err)
		}
	}

	deps := monitor.Deps{
		Primary:    primary,
		Comparison: comparison,
		Sink:       rt.sink,
		Toner:      rt.toner,
		Notifier:   rt.notifier,
		Metrics:    rt.metrics,
	}
	opts := monitor.Options{
		Name:        inst.Name,
		Table:       table,
		Precision:   inst.DisplayPrecision(),
		BuyElement:  inst.BuyElement,
		SellElement: inst.SellElement,
	}
	if rt.store != nil {
		deps.Locker = rt.store
		opts.LockKey = storage.LockKey(a.Config.Database.LockNamespace, inst.Name)
	}

	return monitor.New(opts, deps, a.Logger)
}

func (a *App) newBook(name string, v config.VenueConfig) (venue.BookFetcher, error) {
	switch v.Kind {
	case config.KindREST:
		return venue.NewRESTBook(venue.BookOptions{
			Name:      name,
			URL:       v.URL,
			Symbol:    v.Symbol,
			Path:      v.Path,
			BidsKey:   v.BidsKey,
			AsksKey:   v.AsksKey,
			Timeout:   v.Timeout,
			UserAgent: v.UserAgent,
		}, a.Logger), nil
	case config.KindBybit:
		return venue.NewBybitBook(venue.BybitOptions{
			BaseURL: v.BaseURL,
			Symbol:  v.Symbol,
		}, a.Logger), nil
	}
	return nil, fmt.Errorf("venue kind %q is not an order book", v.Kind)
}

func (a *App) newComparison(rt *runtime, inst config.InstrumentConfig) (venue.RateFetcher, error) {
	v := inst.Comparison
	if v.IsBook() {
		book, err := a.newBook(inst.Name+"-comparison", v)
		if err != nil {
			return nil, err
		}
		return venue.NewBookRate(book), nil
	}

	quoter, err := a.newQuoter(rt, v)
	if err != nil {
		return nil, err
	}
	return venue.NewSwapRate(venue.SwapOptions{
		Pair:         pairOf(inst),
		BuyNotional:  v.BuyNotional,
		SellNotional: v.SellNotional,
	}, quoter, a.Logger), nil
}

func (a *App) newQuoter(rt *runtime, v config.VenueConfig) (venue.Quoter, error) {
	switch v.Kind {
	case config.KindAggregator:
		return venue.NewAggregatorQuoter(venue.AggregatorOptions{
			BaseURL:     v.BaseURL,
			SlippageBps: v.SlippageBps,
			Timeout:     v.Timeout,
			UserAgent:   v.UserAgent,
		}, a.Logger), nil
	case config.KindCow:
		return venue.NewCowQuoter(venue.CowOptions{
			BaseURL:      v.BaseURL,
			PriceQuality: v.PriceQuality,
			Timeout:      v.Timeout,
			UserAgent:    v.UserAgent,
			AppCode:      v.AppCode,
		}, a.Logger), nil
	case config.KindRouter:
		return venue.NewRouterQuoter(venue.RouterOptions{
			Router:  v.Router,
			Via:     v.Via,
			Timeout: v.Timeout,
		}, rt.dialer, a.Logger), nil
	}
	return nil, fmt.Errorf("venue kind %q is not a quoter", v.Kind)
}

func pairOf(inst config.InstrumentConfig) venue.Pair {
	return venue.Pair{
		Base:  venue.Token{Symbol: inst.Base.Symbol, Address: inst.Base.Address, Decimals: inst.Base.Scale()},
		Quote: venue.Token{Symbol: inst.Quote.Symbol, Address: inst.Quote.Address, Decimals: inst.Quote.Scale()},
	}
}
