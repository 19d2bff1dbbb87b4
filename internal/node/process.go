package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/st3v3nmw/splitbrain/internal/netconfig"
)

// ProcessConfig holds the settings shared by every process-backed node.
type ProcessConfig struct {
	// Command is the script/command that runs one node.
	Command string
	// WorkingDir receives per-node log and config files.
	WorkingDir string
	// ShutdownTimeout bounds the wait between SIGTERM and SIGKILL.
	ShutdownTimeout time.Duration
	// ExecuteTimeout bounds each admin HTTP request.
	ExecuteTimeout time.Duration
}

// ProcessDriver runs a node as a child process in its own process group.
// The node reads its config from --config at startup and accepts live
// updates on POST /admin/config.
type ProcessDriver struct {
	config *ProcessConfig
	client *http.Client

	mu         sync.Mutex
	cmd        *exec.Cmd
	exited     chan struct{}
	logFile    *os.File
	name       string
	endpoint   string
	configPath string
	logPath    string
}

var _ Driver = (*ProcessDriver)(nil)

// NewProcessDriver creates a driver; no process is started until Start.
func NewProcessDriver(config *ProcessConfig) *ProcessDriver {
	return &ProcessDriver{
		config: config,
		client: &http.Client{Timeout: config.ExecuteTimeout},
	}
}

// ProcessFactory returns a DriverFactory building process drivers that
// share config but write into the cluster's working directory.
func ProcessFactory(config ProcessConfig) DriverFactory {
	return func(_ int, workingDir string) Driver {
		c := config
		c.WorkingDir = workingDir
		return NewProcessDriver(&c)
	}
}

func (d *ProcessDriver) Start(ctx context.Context, cfg netconfig.NodeConfig) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running() {
		return fmt.Errorf("%s is already running", cfg.Name)
	}

	_, port, err := net.SplitHostPort(cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}

	if err := os.MkdirAll(d.config.WorkingDir, 0755); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}

	d.name = cfg.Name
	d.endpoint = cfg.Endpoint
	d.configPath = filepath.Join(d.config.WorkingDir, fmt.Sprintf("%s.yaml", cfg.Name))
	d.logPath = filepath.Join(d.config.WorkingDir, fmt.Sprintf("%s.log", cfg.Name))

	if err := writeConfig(d.configPath, cfg); err != nil {
		return err
	}

	args := []string{
		fmt.Sprintf("--port=%s", port),
		fmt.Sprintf("--working-dir=%s", d.config.WorkingDir),
		fmt.Sprintf("--config=%s", d.configPath),
	}
	if cfg.Genesis {
		args = append(args, "--genesis")
	}

	// The process must outlive ctx, which only bounds startup.
	cmd := exec.Command(d.config.Command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Redirect stdout/stderr to log file
	logFile, err := os.OpenFile(d.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start %s: %w", d.config.Command, err)
	}

	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		close(exited)
	}()

	d.cmd = cmd
	d.exited = exited
	d.logFile = logFile

	return nil
}

// running reports whether a spawned process has not exited yet.
func (d *ProcessDriver) running() bool {
	if d.cmd == nil {
		return false
	}

	select {
	case <-d.exited:
		return false
	default:
		return true
	}
}

// Probe dials the node's port.
func (d *ProcessDriver) Probe(ctx context.Context) bool {
	d.mu.Lock()
	endpoint := d.endpoint
	exited := d.cmd != nil && !d.running()
	d.mu.Unlock()

	if endpoint == "" || exited {
		return false
	}

	dialer := net.Dialer{Timeout: 100 * time.Millisecond}
	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return false
	}

	conn.Close()
	return true
}

func (d *ProcessDriver) Apply(ctx context.Context, cfg netconfig.NodeConfig) error {
	d.mu.Lock()
	endpoint := d.endpoint
	configPath := d.configPath
	d.mu.Unlock()

	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/config", endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("POST %s: %s: %s", url, resp.Status, bytes.TrimSpace(msg))
	}

	// Keep the on-disk config in step so the archive shows what is live.
	if configPath != "" {
		return writeConfig(configPath, cfg)
	}

	return nil
}

// Stop sends SIGTERM to the process group, then SIGKILL after
// ShutdownTimeout, and finally archives the node's files.
func (d *ProcessDriver) Stop(ctx context.Context, archiveDir string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.running() {
		errs = append(errs, d.signal(ctx))
	}

	// Close log file after process exits
	if d.logFile != nil {
		d.logFile.Close()
		d.logFile = nil
	}

	if archiveDir != "" && d.name != "" {
		errs = append(errs, d.archive(archiveDir))
	}

	return errors.Join(errs...)
}

func (d *ProcessDriver) signal(ctx context.Context) error {
	pgid := d.cmd.Process.Pid
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to stop %s: %w", d.name, err)
	}

	// Wait for graceful exit, force kill if timeout
	select {
	case <-d.exited:
		return nil
	case <-time.After(d.config.ShutdownTimeout):
	case <-ctx.Done():
	}

	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to kill %s: %w", d.name, err)
	}
	<-d.exited

	return nil
}

func (d *ProcessDriver) archive(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	var errs []error
	for _, src := range []string{d.logPath, d.configPath} {
		if err := copyFile(src, filepath.Join(dir, filepath.Base(src))); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func writeConfig(path string, cfg netconfig.NodeConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize node config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write node config: %w", err)
	}

	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}

	return out.Close()
}
