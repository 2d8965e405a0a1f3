package p7zip

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string, onOutput func(string)) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps 7z CLI interactions.
type Client struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// New constructs a 7z client. A non-positive timeout disables the deadline.
func New(binary string, timeout time.Duration, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("7z binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: timeout,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Binary returns the configured executable name.
func (c *Client) Binary() string {
	return c.binary
}

// Create builds a 7z archive at archivePath from the named files inside
// workDir. Names are passed in order so the archive keeps page ordering.
func (c *Client) Create(ctx context.Context, archivePath, workDir string, names []string) error {
	if strings.TrimSpace(archivePath) == "" {
		return errors.New("archive path required")
	}
	if len(names) == 0 {
		return errors.New("no files to archive")
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	list, err := writeListFile(names)
	if err != nil {
		return err
	}
	defer os.Remove(list)

	// -spd keeps '*' and '?' in page names literal.
	args := []string{"a", "-t7z", "-bd", "-y", "-spd", "-scsUTF-8", archivePath, "@" + list}

	var (
		mu     sync.Mutex
		output []string
	)
	capture := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		if len(output) < 20 {
			output = append(output, line)
		}
	}

	if err := c.exec.Run(runCtx, workDir, c.binary, args, capture); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("7z timed out after %s: %w", c.timeout, err)
		}
		mu.Lock()
		tail := strings.Join(output, "; ")
		mu.Unlock()
		if tail != "" {
			return fmt.Errorf("7z create: %w (%s)", err, tail)
		}
		return fmt.Errorf("7z create: %w", err)
	}
	return nil
}

// writeListFile stores one name per line for 7z's @listfile syntax, which
// avoids argument length limits and the leading '@' and '-' ambiguities.
func writeListFile(names []string) (string, error) {
	var b strings.Builder
	for _, name := range names {
		if name == "" || strings.ContainsAny(name, "\r\n") {
			return "", fmt.Errorf("cannot archive entry name %q", name)
		}
		b.WriteString(name)
		b.WriteByte('\n')
	}
	f, err := os.CreateTemp("", "comicvault-7z-*.lst")
	if err != nil {
		return "", fmt.Errorf("create list file: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write list file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close list file: %w", err)
	}
	return f.Name(), nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
