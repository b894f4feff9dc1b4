package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/tunecache/internal/cache"
	"github.com/any-hub/tunecache/internal/config"
	"github.com/any-hub/tunecache/internal/control"
	"github.com/any-hub/tunecache/internal/eviction"
	"github.com/any-hub/tunecache/internal/logging"
	"github.com/any-hub/tunecache/internal/metrics"
	"github.com/any-hub/tunecache/internal/notify"
	"github.com/any-hub/tunecache/internal/policy"
	"github.com/any-hub/tunecache/internal/proxy"
	"github.com/any-hub/tunecache/internal/server"
	"github.com/any-hub/tunecache/internal/server/routes"
	"github.com/any-hub/tunecache/internal/track"
	"github.com/any-hub/tunecache/internal/version"
)

const shutdownTimeout = 10 * time.Second

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["upstream"] = cfg.Media.Upstream
		fields["media_prefix"] = cfg.Media.MediaPrefix
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := buildService(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["upstream"] = cfg.Media.Upstream
	fields["media_prefix"] = cfg.Media.MediaPrefix
	fields["storage_path"] = cfg.Global.StoragePath
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := serve(ctx, svc.app, cfg.Global.ListenPort, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// service 持有启动完成后的运行时组件。
type service struct {
	app        *fiber.App
	store      cache.Store
	policy     *policy.State
	bus        *notify.Bus
	handler    *proxy.Handler
	dispatcher *control.Dispatcher
}

// buildService 按“磁盘缓存 → 版本检查/淘汰 → 策略加载 → 请求处理 → Fiber 路由”顺序装配，
// 策略状态加载完成前不会对外提供服务。
func buildService(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*service, error) {
	store, err := cache.NewStore(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存目录失败: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	engine := eviction.New(eviction.Options{
		Store:     store,
		Version:   cfg.Global.StoreVersion,
		Threshold: cfg.Media.FullFileThreshold,
		Logger:    logger,
		Metrics:   m,
	})
	report, err := engine.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("启动清理失败: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"action":        "startup_evict",
		"version_reset": report.VersionReset,
		"removed":       report.Removed,
		"freed_bytes":   report.FreedBytes,
	}).Info("启动清理完成")

	state := policy.NewState(store)
	if err := state.Init(ctx); err != nil {
		logger.WithError(err).WithField("action", "policy_init").Warn("自动缓存开关加载失败，使用默认值")
	}

	upstream, err := url.Parse(cfg.Media.Upstream)
	if err != nil {
		return nil, fmt.Errorf("解析上游地址失败: %w", err)
	}

	bus := notify.NewBus(cfg.Media.EventBuffer, m)
	correlator := track.Default()
	handler := proxy.NewHandler(proxy.Options{
		Client:       server.NewUpstreamClient(cfg),
		Logger:       logger,
		Store:        store,
		Policy:       state,
		Gate:         policy.NewGate(cfg.Media.PlaybackReferrers),
		Bus:          bus,
		Correlator:   correlator,
		Metrics:      m,
		FetchTimeout: cfg.Media.FetchTimeout.DurationValue(),
		RetryTimeout: cfg.Media.RetryTimeout.DurationValue(),
		Upstream:     upstream,
		MediaPrefix:  cfg.Media.MediaPrefix,
	})
	dispatcher := control.NewDispatcher(control.Options{
		Store:      store,
		Policy:     state,
		Preloader:  handler,
		Purger:     engine,
		Correlator: correlator,
		Threshold:  cfg.Media.FullFileThreshold,
		Logger:     logger,
	})

	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Media:       handler,
		MediaPrefix: cfg.Media.MediaPrefix,
		ListenPort:  cfg.Global.ListenPort,
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterControlRoutes(app, dispatcher, logger)
	routes.RegisterEventRoutes(app, bus, logger)
	routes.RegisterStatusRoutes(app, routes.StatusOptions{Store: store, Policy: state, Bus: bus})
	routes.RegisterMetricsRoutes(app, registry)

	return &service{
		app:        app,
		store:      store,
		policy:     state,
		bus:        bus,
		handler:    handler,
		dispatcher: dispatcher,
	}, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("tunecache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 TUNECACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("TUNECACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// serve 启动监听，ctx 结束时优雅关闭。
func serve(ctx context.Context, app *fiber.App, port int, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.WithField("action", "shutdown").Info("收到退出信号，停止服务")
		return app.ShutdownWithTimeout(shutdownTimeout)
	}
}
