package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"backtrack/internal/browser"
	"backtrack/internal/capture"
	"backtrack/internal/config"
	"backtrack/internal/httpapi"
	"backtrack/internal/logger"
	"backtrack/internal/manager"
	"backtrack/internal/persist"
	"backtrack/internal/service"
	"backtrack/internal/session"
	"backtrack/internal/storage"
	"backtrack/internal/storage/db"
	"backtrack/internal/storage/model"
	"backtrack/internal/storage/repo"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	devtoolsURL   string
	launch        bool
	headless      bool
	captureBodies bool
)

// runCmd 启动采集守护进程
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture requests from a browser and serve the log",
	Long: `Attach to every page of the browser at --devtools (or launch one with --launch),
record completed requests into the rolling log and serve it over HTTP.`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&devtoolsURL, "devtools", "", "DevTools HTTP endpoint (overrides config)")
	runCmd.Flags().BoolVar(&launch, "launch", false, "launch a Chromium instance with remote debugging")
	runCmd.Flags().BoolVar(&headless, "headless", false, "launch the browser headless (with --launch)")
	runCmd.Flags().BoolVar(&captureBodies, "bodies", false, "capture text response bodies (best effort)")
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if serverAddr != "" {
		cfg.HTTP.Addr = serverAddr
	}
	if f := cmd.Flags().Lookup("devtools"); f != nil && f.Changed {
		cfg.Capture.DevToolsURL = devtoolsURL
	}
	if f := cmd.Flags().Lookup("bodies"); f != nil && f.Changed {
		cfg.Capture.CaptureBodies = captureBodies
	}
	return cfg, nil
}

// app 守护进程的组件集合
type app struct {
	cfg     *config.Config
	log     logger.Logger
	dbs     []*gorm.DB
	session *storage.KVBackend
	local   *storage.KVBackend
	mgr     *manager.Manager
	bus     *service.Bus
}

// newApp 打开两级存储并组装管理器与服务。browserID 为空表示浏览器实例未知
func newApp(ctx context.Context, cfg *config.Config, browserID string, log logger.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		session: storage.NewKVBackend("session", nil),
		local:   storage.NewKVBackend("local", nil),
	}

	localOpts := db.Options{Name: cfg.Sqlite.Db, Prefix: cfg.Sqlite.Prefix, Logger: db.NewLogger(log)}
	if filepath.IsAbs(cfg.Sqlite.Db) {
		localOpts.FullPath = cfg.Sqlite.Db
	}
	localDB, err := openKV(localOpts)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a.dbs = append(a.dbs, localDB)
	a.local.Attach(repo.NewKVRepo(localDB))

	// 会话层失败时由本地层兜底
	if sessionDB, err := openKV(db.Options{FullPath: cfg.Sqlite.SessionDb, Prefix: cfg.Sqlite.Prefix, Logger: db.NewLogger(log)}); err != nil {
		log.Err(err, "会话存储不可用，将使用本地存储")
	} else {
		a.dbs = append(a.dbs, sessionDB)
		a.session.Attach(repo.NewKVRepo(sessionDB))
		// 会话层只保留当前浏览器实例的日志
		if wiped, err := persist.ScopeToBrowser(ctx, a.session, browserID); err != nil {
			log.Err(err, "绑定会话存储到浏览器实例失败")
		} else if wiped {
			log.Info("新的浏览器会话，已清除会话层日志", "browser", browserID)
		}
	}

	ctl := session.New(a.local, cfg.TrackingKey, log.With("component", "session"))
	ctl.OnChange(func(enabled bool) {
		log.Info("采集状态变化", "enabled", enabled)
	})

	a.mgr = manager.New(manager.Options{
		Bridge:         persist.NewBridge(log.With("component", "persist"), a.session, a.local),
		Session:        ctl,
		IgnorePrefixes: cfg.Capture.IgnorePrefixes,
		Logger:         log.With("component", "manager"),
	})
	if err := a.mgr.Init(ctx); err != nil {
		a.close()
		return nil, err
	}
	a.bus = service.NewBus(service.New(a.mgr, log.With("component", "service")), 64, log.With("component", "bus"))
	return a, nil
}

func openKV(opts db.Options) (*gorm.DB, error) {
	gdb, err := db.New(opts)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb, &model.KVEntry{}); err != nil {
		_ = db.Close(gdb)
		return nil, err
	}
	return gdb, nil
}

// close 保存最终快照并关闭数据库
func (a *app) close() {
	a.mgr.Shutdown(context.Background())
	for _, gdb := range a.dbs {
		if err := db.Close(gdb); err != nil {
			a.log.Err(err, "关闭数据库失败")
		}
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(logger.Options{Level: cfg.Log.Level, Writers: cfg.Log.Writer})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if launch {
		b, err := browser.Start(ctx, browser.Options{Headless: headless, Logger: log.With("component", "browser")})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = b.Close(closeCtx)
		}()
		cfg.Capture.DevToolsURL = b.DevToolsURL
	}

	idCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	browserID, err := capture.BrowserID(idCtx, cfg.Capture.DevToolsURL)
	cancel()
	if err != nil {
		log.Warn("无法识别浏览器实例，视为新会话", "devtools", cfg.Capture.DevToolsURL, "error", err.Error())
	}

	a, err := newApp(ctx, cfg, browserID, log)
	if err != nil {
		return err
	}
	defer a.close()

	src := capture.New(a.mgr, capture.Options{
		DevToolsURL:    cfg.Capture.DevToolsURL,
		CaptureBodies:  cfg.Capture.CaptureBodies,
		MaxBodyBytes:   cfg.Capture.MaxBodyBytes,
		Concurrency:    cfg.Capture.Concurrency,
		RescanInterval: cfg.Capture.RescanInterval,
		OrphanTimeout:  cfg.Capture.OrphanTimeout,
		Logger:         log.With("component", "capture"),
	})
	srv := httpapi.NewServer(a.bus, log.With("component", "http"))

	log.Info("backtrack 已启动",
		"version", cfg.Version,
		"devtools", cfg.Capture.DevToolsURL,
		"addr", cfg.HTTP.Addr,
		"bodyLimit", humanize.Bytes(uint64(cfg.Capture.MaxBodyBytes)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.bus.Serve(gctx) })
	g.Go(func() error { return srv.Run(gctx, cfg.HTTP.Addr) })
	g.Go(func() error { return src.Run(gctx) })
	err = g.Wait()

	log.Info("backtrack 正在退出", "records", a.mgr.Size())
	return err
}
