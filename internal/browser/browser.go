// Package browser 启动开启远程调试的 Chromium，供采集源附加
package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"backtrack/internal/logger"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"
	"github.com/samber/lo"
)

// DefaultPort 默认远程调试端口
const DefaultPort = 9222

var (
	ErrChromeNotFound = errors.New("chrome executable not found")
	ErrExited         = errors.New("browser exited before devtools was ready")
)

// Options 浏览器启动选项
type Options struct {
	ExecPath    string   // 为空时依次查找 CHROME_PATH、常见安装路径和 PATH
	UserDataDir string   // 为空时创建临时目录，关闭时删除
	Port        int      // 0 取 DefaultPort，被占用时随机选择
	Headless    bool
	Args        []string // 追加在内置参数之后
	Logger      logger.Logger
}

// Browser 由 Start 启动的浏览器进程
type Browser struct {
	DevToolsURL string

	cmd     *exec.Cmd
	exited  chan struct{}
	profile string // 临时用户目录
	log     logger.Logger
}

// Start 启动浏览器并等待 DevTools 可用
func Start(ctx context.Context, opts Options) (*Browser, error) {
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}

	exe := lo.Ternary(opts.ExecPath != "", opts.ExecPath, findChrome())
	if exe == "" {
		return nil, ErrChromeNotFound
	}
	port, err := pickPort(lo.Ternary(opts.Port > 0, opts.Port, DefaultPort))
	if err != nil {
		return nil, err
	}

	b := &Browser{
		DevToolsURL: "http://127.0.0.1:" + strconv.Itoa(port),
		exited:      make(chan struct{}),
		log:         l,
	}
	profile := opts.UserDataDir
	if profile == "" {
		if profile, err = os.MkdirTemp("", "backtrack-chrome-"); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		b.profile = profile
	}

	b.cmd = exec.Command(exe, launchArgs(port, profile, opts)...)
	if err := b.cmd.Start(); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	go func() {
		_ = b.cmd.Wait()
		close(b.exited)
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := waitDevToolsReady(waitCtx, b.DevToolsURL, b.exited); err != nil {
		closeCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = b.Close(closeCtx)
		return nil, err
	}
	l.Info("浏览器已启动", "exec", exe, "devtools", b.DevToolsURL, "pid", b.cmd.Process.Pid)
	return b, nil
}

// Close 通过 Browser.close 请求退出，失败或超时则结束进程
func (b *Browser) Close(ctx context.Context) error {
	if b == nil || b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	defer b.cleanup()

	select {
	case <-b.exited:
		return nil
	default:
	}

	if err := b.requestClose(ctx); err != nil {
		b.log.Debug("浏览器未响应关闭请求，强制结束", "error", err.Error())
		_ = b.cmd.Process.Kill()
	}
	select {
	case <-b.exited:
		b.log.Info("浏览器已关闭")
		return nil
	case <-ctx.Done():
		_ = b.cmd.Process.Kill()
		<-b.exited
		return ctx.Err()
	}
}

func (b *Browser) requestClose(ctx context.Context) error {
	v, err := devtool.New(b.DevToolsURL).Version(ctx)
	if err != nil {
		return err
	}
	conn, err := rpcc.DialContext(ctx, v.WebSocketDebuggerURL)
	if err != nil {
		return err
	}
	defer conn.Close()
	return cdp.NewClient(conn).Browser.Close(ctx)
}

func (b *Browser) cleanup() {
	if b.profile == "" {
		return
	}
	if err := os.RemoveAll(b.profile); err != nil {
		b.log.Warn("删除临时用户目录失败", "dir", b.profile, "error", err.Error())
	}
	b.profile = ""
}

// findChrome 查找本机的 Chrome/Chromium
func findChrome() string {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	if p, ok := lo.Find(installPaths(), func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}); ok {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func installPaths() []string {
	switch runtime.GOOS {
	case "windows":
		return lo.Map([]string{"ProgramFiles", "ProgramFiles(x86)", "LOCALAPPDATA"}, func(env string, _ int) string {
			return filepath.Join(os.Getenv(env), "Google", "Chrome", "Application", "chrome.exe")
		})
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	default:
		return []string{"/usr/bin/google-chrome", "/usr/bin/chromium", "/snap/bin/chromium"}
	}
}

// pickPort 优先使用指定端口，被占用时由系统分配
func pickPort(preferred int) (int, error) {
	if l, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(preferred)); err == nil {
		_ = l.Close()
		return preferred, nil
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// quietFlags 关闭与采集无关的后台流量，避免污染请求日志
var quietFlags = []string{
	"--no-first-run",
	"--no-default-browser-check",
	"--disable-background-networking",
	"--disable-component-update",
	"--disable-default-apps",
	"--disable-sync",
	"--metrics-recording-only",
}

func launchArgs(port int, profile string, opts Options) []string {
	args := append([]string{
		"--remote-debugging-port=" + strconv.Itoa(port),
		"--user-data-dir=" + profile,
	}, quietFlags...)
	if runtime.GOOS == "linux" {
		args = append(args, "--disable-dev-shm-usage")
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, opts.Args...)
	return append(args, "about:blank")
}

// waitDevToolsReady 轮询 /json/version，进程提前退出时立即失败
func waitDevToolsReady(ctx context.Context, base string, exited <-chan struct{}) error {
	dt := devtool.New(base)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("devtools not ready: %w", ctx.Err())
		case <-exited:
			return ErrExited
		case <-ticker.C:
			if _, err := dt.Version(ctx); err == nil {
				return nil
			}
		}
	}
}
