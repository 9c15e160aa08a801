// Command scraper is the CLI entry point (spec §6): a single binary with
// subcommands run, run-all, serve, and validate-config, exiting 0 on full
// success, 2 on configuration error, 3 on partial success, and 4 when every
// run fails.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/adapter/bankprovision"
	"github.com/turphai/boomwatch/internal/adapter/bdcdiscount"
	"github.com/turphai/boomwatch/internal/adapter/bondissuance"
	"github.com/turphai/boomwatch/internal/adapter/creditfund"
	"github.com/turphai/boomwatch/internal/alert"
	"github.com/turphai/boomwatch/internal/alertconfigstore"
	"github.com/turphai/boomwatch/internal/appctx"
	"github.com/turphai/boomwatch/internal/cache"
	"github.com/turphai/boomwatch/internal/config"
	"github.com/turphai/boomwatch/internal/domain"
	"github.com/turphai/boomwatch/internal/httpapi"
	"github.com/turphai/boomwatch/internal/lease"
	"github.com/turphai/boomwatch/internal/metricssink"
	"github.com/turphai/boomwatch/internal/runner"
	"github.com/turphai/boomwatch/internal/scheduler"
	"github.com/turphai/boomwatch/internal/secretstore"
	"github.com/turphai/boomwatch/internal/statestore"
	"github.com/turphai/boomwatch/internal/validation"
)

const exitConfigError = 2
const exitPartialSuccess = 3
const exitAllFailed = 4

// app bundles every constructed collaborator the subcommands share.
type app struct {
	cfg         config.Config
	log         *zap.SugaredLogger
	ctx         *appctx.Context
	store       statestore.Store
	scheduler   *scheduler.Scheduler
	schedules   []scheduler.Schedule
	sink        *metricssink.Sink
	db          *pgxpool.Pool
	configStore *alertconfigstore.Store
}

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string

	root := &cobra.Command{Use: "scraper"}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")

	exitCode := 0

	root.AddCommand(&cobra.Command{
		Use:   "run <source> <metric>",
		Short: "run a single adapter synchronously",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				exitCode = exitConfigError
				return err
			}
			defer a.ctx.Close()

			sched, ok := findSchedule(a.schedules, args[0], args[1])
			if !ok {
				exitCode = exitConfigError
				return fmt.Errorf("no adapter configured for %s/%s", args[0], args[1])
			}
			result := a.scheduler.RunOnce(cmd.Context(), sched.Adapter)
			a.sink.Report(cmd.Context(), sched.Adapter, result)
			if !result.Success && !result.Skipped {
				exitCode = exitAllFailed
				return result.Err
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "run-all",
		Short: "run every configured adapter synchronously, once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				exitCode = exitConfigError
				return err
			}
			defer a.ctx.Close()

			var succeeded, failed int
			for _, sched := range a.schedules {
				result := a.scheduler.RunOnce(cmd.Context(), sched.Adapter)
				a.sink.Report(cmd.Context(), sched.Adapter, result)
				if result.Success || result.Skipped {
					succeeded++
				} else {
					failed++
					ds, metric, _ := sched.Adapter.Identity()
					a.log.Errorw("run failed", "data_source", ds, "metric_name", metric, "error", result.Err)
				}
			}
			switch {
			case failed == 0:
				exitCode = 0
			case succeeded == 0:
				exitCode = exitAllFailed
			default:
				exitCode = exitPartialSuccess
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "run the scheduler and HTTP server (healthz, metrics, AlertConfig upsert)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configPath)
			if err != nil {
				exitCode = exitConfigError
				return err
			}
			defer a.ctx.Close()

			for _, sched := range a.schedules {
				if err := a.scheduler.Register(sched); err != nil {
					exitCode = exitConfigError
					return fmt.Errorf("registering schedule: %w", err)
				}
			}
			a.scheduler.OnResult(a.sink.Report)
			a.scheduler.Start()
			defer a.scheduler.Stop()

			handlers := httpapi.NewHandlers(a.configStore)
			srv := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           httpapi.Router(handlers),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       15 * time.Second,
				WriteTimeout:      15 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			a.log.Infow("serve ready", "phase", "startup", "addr", a.cfg.HTTPAddr)
			return srv.ListenAndServe()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "validate-config",
		Short: "validate the config file without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				exitCode = exitConfigError
				return err
			}
			v := validator.New()
			var violations []string
			for _, ac := range cfg.Adapters {
				if err := v.Var(ac.Name, "required"); err != nil {
					violations = append(violations, fmt.Sprintf("adapter missing name: %v", err))
				}
				if err := v.Var(ac.CronExpr, "required"); err != nil {
					violations = append(violations, fmt.Sprintf("adapter %s missing cron_expr: %v", ac.Name, err))
				}
			}
			if len(violations) > 0 {
				for _, v := range violations {
					fmt.Fprintln(os.Stderr, v)
				}
				exitCode = exitConfigError
				return fmt.Errorf("%d configuration violations", len(violations))
			}
			fmt.Println("OK: configuration valid")
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == 0 {
			exitCode = exitAllFailed
		}
	}
	return exitCode
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	sugar := log.Sugar()

	secrets := secretstore.New(secretstore.EnvBackend{})
	actx := appctx.New(secrets, sugar, 4)

	// MetricPoint persistence backend is selected by STATE_STORE_BACKEND
	// (spec §6): "dynamodb" for the production KV binding, anything else
	// (including unset) falls back to the local file-backed store. DBDSN
	// backs only the relational AlertConfig store constructed below.
	store, err := buildStateStore(cfg)
	if err != nil {
		return nil, err
	}

	var memCache cache.Store = cache.NewMemoryCache()
	if cfg.RedisAddr != "" {
		memCache = cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}

	leases := lease.NewManager()
	v := validation.New()
	r := runner.New(store, memCache, v, leases, sugar)

	var db *pgxpool.Pool
	if cfg.DBDSN != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("connect alert config db: %w", err)
		}
		if err := alertconfigstore.Migrate(context.Background(), pool); err != nil {
			return nil, fmt.Errorf("migrate alert config db: %w", err)
		}
		db = pool
	}

	channels := buildChannels(actx, cfg)
	var configs alert.ConfigSource = noAlertConfigs{}
	var configStore *alertconfigstore.Store
	if db != nil {
		configStore = alertconfigstore.New(db)
		configs = configStore
	}
	alertEngine := alert.New(configs, store, sugar, channels)
	sched := scheduler.New(r, alertEngine, sugar)

	schedules, err := buildSchedules(actx, cfg)
	if err != nil {
		return nil, err
	}

	sink := metricssink.New(actx.HTTP, cfg.MetricsSinkURL, sugar)

	return &app{cfg: cfg, log: sugar, ctx: actx, store: store, scheduler: sched, schedules: schedules, sink: sink, db: db, configStore: configStore}, nil
}

// buildStateStore selects the State Store binding per cfg.StateStoreBackend
// (spec §6 STATE_STORE_BACKEND / STATE_STORE_URL): "dynamodb" against a
// table named by StateStoreURL, otherwise the local JSON-lines FileStore
// rooted at StateStoreURL (or a temp dir when unset).
func buildStateStore(cfg config.Config) (statestore.Store, error) {
	switch strings.ToLower(cfg.StateStoreBackend) {
	case "dynamodb":
		if cfg.StateStoreURL == "" {
			return nil, fmt.Errorf("STATE_STORE_URL (dynamodb table name) is required when STATE_STORE_BACKEND=dynamodb")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("load aws config for dynamodb state store: %w", err)
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return statestore.NewDynamoStore(client, cfg.StateStoreURL), nil
	default:
		dir := cfg.StateStoreURL
		if dir == "" {
			dir = os.TempDir() + "/boomwatch-statestore"
		}
		return statestore.NewFileStore(dir)
	}
}

// noAlertConfigs is used when no AlertConfig database is configured: every
// run persists MetricPoints normally but no alert ever fires.
type noAlertConfigs struct{}

func (noAlertConfigs) ListEnabled(ctx context.Context, key domain.Key) ([]domain.AlertConfig, error) {
	return nil, nil
}

func buildChannels(actx *appctx.Context, cfg config.Config) map[domain.Channel]alert.ChannelSender {
	channels := make(map[domain.Channel]alert.ChannelSender)
	for name, ch := range cfg.Channels {
		switch domain.Channel(ch.Kind) {
		case domain.ChannelSlack:
			channels[domain.ChannelSlack] = alert.SlackSender{WebhookURL: ch.WebhookURL}
		case domain.ChannelTelegram:
			if ch.BotToken == "" {
				continue
			}
			bot, err := tgbotapi.NewBotAPI(ch.BotToken)
			if err != nil {
				continue
			}
			channels[domain.ChannelTelegram] = alert.TelegramSender{Bot: bot, ChatID: ch.ChatID}
		case domain.ChannelEmail:
			channels[domain.ChannelEmail] = alert.EmailSender{Addr: ch.SMTPAddr, From: ch.SMTPFrom, To: []string{ch.SMTPTo}}
		case domain.ChannelWebhook, domain.ChannelSMS, domain.ChannelDashboard:
			channels[domain.Channel(ch.Kind)] = alert.WebhookSender{Client: actx.HTTP, URL: ch.WebhookURL}
		default:
			_ = name
		}
	}
	return channels
}

func buildSchedules(actx *appctx.Context, cfg config.Config) ([]scheduler.Schedule, error) {
	var out []scheduler.Schedule
	for _, ac := range cfg.Adapters {
		a, err := buildAdapter(actx, ac)
		if err != nil {
			return nil, err
		}
		out = append(out, scheduler.Schedule{Adapter: a, CronExpr: ac.CronExpr, NominalInterval: ac.NominalInterval})
	}
	return out, nil
}

// buildAdapter maps one configured adapter instance to its concrete
// implementation by declared data source.
func buildAdapter(actx *appctx.Context, ac config.AdapterConfig) (adapter.Adapter, error) {
	switch domain.DataSource(ac.DataSource) {
	case domain.SourceBondIssuance:
		return bondissuance.New(actx, ac.PrimaryURL, ac.FallbackURL), nil
	case domain.SourceBDCDiscount:
		return bdcdiscount.New(actx, ac.PrimaryURL, ac.FallbackURL, ac.Tickers), nil
	case domain.SourceCreditFund:
		return creditfund.New(actx, ac.PrimaryURL, ac.FallbackURL, ac.Selectors["nav"]), nil
	case domain.SourceBankProvision:
		return bankprovision.New(actx, ac.PrimaryURL, ac.FallbackURL, ac.Selectors["provision"]), nil
	default:
		return nil, fmt.Errorf("unknown data source %q for adapter %q", ac.DataSource, ac.Name)
	}
}

func findSchedule(schedules []scheduler.Schedule, dataSource, metricName string) (scheduler.Schedule, bool) {
	for _, s := range schedules {
		ds, metric, _ := s.Adapter.Identity()
		if string(ds) == dataSource && metric == metricName {
			return s, true
		}
	}
	return scheduler.Schedule{}, false
}
