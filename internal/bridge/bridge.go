// Package bridge manages an external classification runtime reached over a
// newline-delimited JSON protocol on stdin/stdout.
//
// The runtime is a scarce, stateful resource: one process per Bridge, spawned
// by Initialize and destroyed by Shutdown or process exit. Every blocking
// call carries an explicit timeout. Responses are correlated to callers via a
// request id and a pending-request map, so a response arriving after its
// caller timed out is dropped instead of being delivered to the next call.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRequest indicates empty text or labels, checked before any I/O.
	ErrInvalidRequest = errors.New("invalid classify request")

	// ErrNotReady indicates the bridge has no ready runtime process.
	ErrNotReady = errors.New("bridge not ready")

	// ErrInitFailed indicates the runtime failed to spawn or initialize.
	ErrInitFailed = errors.New("model runtime initialization failed")

	// ErrInference indicates a classify call failed or timed out.
	ErrInference = errors.New("classification request failed")
)

// Config holds bridge configuration.
type Config struct {
	// Command is the runtime executable (e.g. "python3").
	Command string
	// Args are the runtime arguments (e.g. the runtime script path).
	Args []string
	// Model is exported to the runtime via HUGGINGFACE_MODEL.
	Model string

	// InitTimeout bounds Initialize. Defaults to 60s.
	InitTimeout time.Duration
	// ClassifyTimeout bounds Classify. Defaults to 30s.
	ClassifyTimeout time.Duration
	// PingTimeout bounds Ping. Defaults to 5s.
	PingTimeout time.Duration
	// ShutdownTimeout bounds the graceful part of Shutdown. Defaults to 2s.
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.InitTimeout <= 0 {
		c.InitTimeout = 60 * time.Second
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 30 * time.Second
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 2 * time.Second
	}
	return c
}

// Classification is a successful classify response.
type Classification struct {
	// Labels are the candidate labels ranked by score, best first.
	Labels []string
	// Scores are the per-label scores, aligned with Labels.
	Scores []float64
	// Sequence is the (possibly truncated) input echoed by the runtime.
	Sequence string
}

// spawnFunc starts the runtime and returns its stdin, stdout, a kill
// function, and a channel closed when the process exits. Replaced in tests.
type spawnFunc func(cfg Config) (io.WriteCloser, io.ReadCloser, func() error, <-chan struct{}, error)

// Bridge manages one external classification process.
type Bridge struct {
	cfg    Config
	logger *zap.Logger
	spawn  spawnFunc

	mu      sync.Mutex
	state   State
	gen     int // bumped per spawn so a stale read loop cannot touch a new process
	stdin   io.WriteCloser
	kill    func() error
	exited  <-chan struct{}
	initCh  chan Message
	pending map[string]chan Message
	order   []string
}

// New creates a bridge. The runtime process is not spawned until Initialize.
func New(cfg Config, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		cfg:     cfg.withDefaults(),
		logger:  logger.Named("bridge"),
		spawn:   spawnProcess,
		state:   StateUninitialized,
		pending: make(map[string]chan Message),
	}
}

// spawnProcess is the production spawn implementation.
func spawnProcess(cfg Config) (io.WriteCloser, io.ReadCloser, func() error, <-chan struct{}, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), "HUGGINGFACE_MODEL="+cfg.Model)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("starting %s: %w", cfg.Command, err)
	}

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		_ = cmd.Wait()
	}()

	kill := func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
	return stdin, stdout, kill, exited, nil
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Ready reports whether the bridge accepts classify/ping commands.
func (b *Bridge) Ready() bool {
	return b.State() == StateReady
}

// Initialize spawns the runtime process and waits for its initialized
// message. An existing process is torn down first.
func (b *Bridge) Initialize(ctx context.Context) error {
	b.mu.Lock()
	if b.stdin != nil {
		b.teardownLocked()
	}

	stdin, stdout, kill, exited, err := b.spawn(b.cfg)
	if err != nil {
		b.state = StateUninitialized
		b.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	initCh := make(chan Message, 1)
	b.state = StateInitializing
	b.gen++
	gen := b.gen
	b.stdin = stdin
	b.kill = kill
	b.exited = exited
	b.initCh = initCh
	b.mu.Unlock()

	go b.readLoop(stdout, gen)

	timer := time.NewTimer(b.cfg.InitTimeout)
	defer timer.Stop()

	select {
	case msg := <-initCh:
		if msg.Type == msgError {
			b.teardown()
			return fmt.Errorf("%w: %s", ErrInitFailed, msg.Error)
		}
		b.mu.Lock()
		b.state = StateReady
		b.initCh = nil
		b.mu.Unlock()
		b.logger.Info("model runtime ready", zap.String("model", b.cfg.Model))
		return nil
	case <-exited:
		b.teardown()
		return fmt.Errorf("%w: runtime exited before initialization", ErrInitFailed)
	case <-timer.C:
		b.teardown()
		return fmt.Errorf("%w: no initialized message within %s", ErrInitFailed, b.cfg.InitTimeout)
	case <-ctx.Done():
		b.teardown()
		return fmt.Errorf("%w: %v", ErrInitFailed, ctx.Err())
	}
}

// Classify sends a classify command and waits for the matching response.
func (b *Bridge) Classify(ctx context.Context, text string, labels []string, multiLabel bool) (*Classification, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrInvalidRequest)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: labels cannot be empty", ErrInvalidRequest)
	}

	id := uuid.NewString()
	ch, err := b.sendRequest(Command{
		Type:       cmdClassify,
		ID:         id,
		Text:       text,
		Labels:     labels,
		MultiLabel: multiLabel,
	})
	if err != nil {
		return nil, err
	}
	defer b.unregister(id)

	timer := time.NewTimer(b.cfg.ClassifyTimeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		switch msg.Type {
		case "":
			// Channel closed by teardown.
			return nil, fmt.Errorf("%w: runtime closed", ErrInference)
		case msgClassification:
			if len(msg.Labels) != len(msg.Scores) {
				return nil, fmt.Errorf("%w: runtime returned %d labels but %d scores",
					ErrInference, len(msg.Labels), len(msg.Scores))
			}
			return &Classification{Labels: msg.Labels, Scores: msg.Scores, Sequence: msg.Sequence}, nil
		case msgError:
			return nil, fmt.Errorf("%w: %s", ErrInference, msg.Error)
		default:
			return nil, fmt.Errorf("%w: unexpected message type %q", ErrInference, msg.Type)
		}
	case <-b.exitedChan():
		return nil, fmt.Errorf("%w: runtime exited", ErrInference)
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response within %s", ErrInference, b.cfg.ClassifyTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrInference, ctx.Err())
	}
}

// Ping checks runtime liveness. Returns false rather than an error on
// timeout or send failure.
func (b *Bridge) Ping(ctx context.Context) bool {
	id := uuid.NewString()
	ch, err := b.sendRequest(Command{Type: cmdPing, ID: id})
	if err != nil {
		return false
	}
	defer b.unregister(id)

	timer := time.NewTimer(b.cfg.PingTimeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		return msg.Type == msgPong
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Shutdown asks the runtime to exit, force-killing it if it is still alive
// after the shutdown timeout.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.stdin == nil {
		b.state = StateTerminated
		b.mu.Unlock()
		return nil
	}
	stdin := b.stdin
	exited := b.exited
	kill := b.kill
	b.mu.Unlock()

	if err := writeCommand(stdin, Command{Type: cmdShutdown}); err != nil {
		b.logger.Debug("shutdown write failed, killing runtime", zap.Error(err))
	}

	timer := time.NewTimer(b.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-exited:
	case <-timer.C:
		b.logger.Warn("runtime did not exit, killing", zap.Duration("timeout", b.cfg.ShutdownTimeout))
		if err := kill(); err != nil {
			b.logger.Warn("kill failed", zap.Error(err))
		}
	case <-ctx.Done():
		_ = kill()
	}

	b.mu.Lock()
	b.clearLocked()
	b.state = StateTerminated
	b.mu.Unlock()
	return nil
}

// sendRequest registers a pending entry and writes the command.
func (b *Bridge) sendRequest(cmd Command) (chan Message, error) {
	b.mu.Lock()
	if b.state != StateReady || b.stdin == nil {
		b.mu.Unlock()
		return nil, ErrNotReady
	}
	ch := make(chan Message, 1)
	b.pending[cmd.ID] = ch
	b.order = append(b.order, cmd.ID)
	stdin := b.stdin
	b.mu.Unlock()

	if err := writeCommand(stdin, cmd); err != nil {
		b.unregister(cmd.ID)
		return nil, fmt.Errorf("%w: writing command: %v", ErrInference, err)
	}
	return ch, nil
}

func writeCommand(w io.Writer, cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// unregister removes a pending entry, typically after a response or timeout.
// A late response for an unregistered id is logged and dropped.
func (b *Bridge) unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
	for i, pid := range b.order {
		if pid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// readLoop consumes runtime stdout line by line until the stream closes.
// Unparsable lines are logged and dropped, never fatal.
func (b *Bridge) readLoop(stdout io.ReadCloser, gen int) {
	defer stdout.Close()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			b.logger.Warn("dropping unparsable runtime line",
				zap.ByteString("line", line), zap.Error(err))
			continue
		}
		b.dispatch(msg, gen)
	}

	if err := scanner.Err(); err != nil {
		b.logger.Debug("runtime stdout closed", zap.Error(err))
	}
	b.handleClose(gen)
}

// dispatch routes a message to its waiter.
func (b *Bridge) dispatch(msg Message, gen int) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}

	if b.state == StateInitializing && b.initCh != nil &&
		(msg.Type == msgInitialized || msg.Type == msgError) {
		ch := b.initCh
		b.initCh = nil
		b.mu.Unlock()
		ch <- msg
		return
	}

	id := msg.ID
	if id == "" && len(b.order) > 0 {
		// Runtimes that do not echo ids process commands sequentially, so
		// the oldest pending request owns the next response.
		id = b.order[0]
	}

	ch, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
		for i, pid := range b.order {
			if pid == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("dropping unmatched runtime message",
			zap.String("type", msg.Type), zap.String("id", msg.ID))
		return
	}
	ch <- msg
}

// handleClose marks the bridge not-ready after the process stream closes.
// A fresh Initialize is required afterwards.
func (b *Bridge) handleClose(gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen || b.state == StateTerminated {
		return
	}
	b.logger.Warn("runtime process closed", zap.String("state", b.state.String()))
	b.clearLocked()
	b.state = StateUninitialized
}

// teardown kills the current process and resets to uninitialized.
func (b *Bridge) teardown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
}

func (b *Bridge) teardownLocked() {
	if b.kill != nil {
		_ = b.kill()
	}
	b.clearLocked()
	b.state = StateUninitialized
}

// clearLocked drops the process handle and fails all pending requests.
func (b *Bridge) clearLocked() {
	if b.stdin != nil {
		_ = b.stdin.Close()
	}
	b.stdin = nil
	b.kill = nil
	for id, ch := range b.pending {
		close(ch)
		delete(b.pending, id)
	}
	b.order = nil
	b.initCh = nil
}

func (b *Bridge) exitedChan() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exited
}
