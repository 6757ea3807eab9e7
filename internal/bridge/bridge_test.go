package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRuntime emulates the external model runtime over in-memory pipes.
// handler receives each parsed command and returns the messages to write
// back; returning nil writes nothing.
type fakeRuntime struct {
	announceInit bool
	handler      func(cmd Command) []Message

	writeMu sync.Mutex
	stdout  *io.PipeWriter
}

func (f *fakeRuntime) writeMessage(m Message) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	data, _ := json.Marshal(m)
	f.stdout.Write(append(data, '\n'))
}

func (f *fakeRuntime) writeRaw(line string) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.stdout.Write([]byte(line + "\n"))
}

// install wires the fake runtime into the bridge's spawn hook.
func (f *fakeRuntime) install(b *Bridge) {
	b.spawn = func(cfg Config) (io.WriteCloser, io.ReadCloser, func() error, <-chan struct{}, error) {
		stdinR, stdinW := io.Pipe()
		stdoutR, stdoutW := io.Pipe()
		f.stdout = stdoutW
		exited := make(chan struct{})

		go func() {
			defer close(exited)
			defer stdoutW.Close()

			if f.announceInit {
				f.writeMessage(Message{Type: msgInitialized})
			}
			scanner := bufio.NewScanner(stdinR)
			for scanner.Scan() {
				var cmd Command
				if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
					continue
				}
				if cmd.Type == cmdShutdown {
					return
				}
				for _, m := range f.handler(cmd) {
					f.writeMessage(m)
				}
			}
		}()

		kill := func() error {
			stdinR.Close()
			return nil
		}
		return stdinW, stdoutR, kill, exited, nil
	}
}

func newTestBridge(t *testing.T, f *fakeRuntime, cfg Config) *Bridge {
	t.Helper()
	if cfg.Command == "" {
		cfg.Command = "fake"
	}
	b := New(cfg, zap.NewNop())
	f.install(b)
	return b
}

func echoHandler(cmd Command) []Message {
	switch cmd.Type {
	case cmdPing:
		return []Message{{Type: msgPong, ID: cmd.ID}}
	case cmdClassify:
		return []Message{{
			Type:     msgClassification,
			ID:       cmd.ID,
			Labels:   cmd.Labels,
			Scores:   []float64{0.9, 0.1}[:len(cmd.Labels)],
			Sequence: cmd.Text,
		}}
	}
	return nil
}

func TestInitializeAndReady(t *testing.T) {
	f := &fakeRuntime{announceInit: true, handler: echoHandler}
	b := newTestBridge(t, f, Config{})

	require.NoError(t, b.Initialize(context.Background()))
	assert.Equal(t, StateReady, b.State())
	assert.True(t, b.Ready())

	require.NoError(t, b.Shutdown(context.Background()))
	assert.Equal(t, StateTerminated, b.State())
}

func TestInitializeTimeout(t *testing.T) {
	f := &fakeRuntime{announceInit: false, handler: echoHandler}
	b := newTestBridge(t, f, Config{InitTimeout: 50 * time.Millisecond})

	err := b.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitFailed)
	assert.Equal(t, StateUninitialized, b.State())
}

func TestInitializeRuntimeError(t *testing.T) {
	b := New(Config{Command: "fake"}, zap.NewNop())
	// Announce a model load failure instead of initialized.
	b.spawn = func(cfg Config) (io.WriteCloser, io.ReadCloser, func() error, <-chan struct{}, error) {
		stdinR, stdinW := io.Pipe()
		stdoutR, stdoutW := io.Pipe()
		exited := make(chan struct{})
		go func() {
			defer close(exited)
			defer stdoutW.Close()
			data, _ := json.Marshal(Message{Type: msgError, Error: "failed to load model"})
			stdoutW.Write(append(data, '\n'))
			io.Copy(io.Discard, stdinR)
		}()
		return stdinW, stdoutR, func() error { stdinR.Close(); return nil }, exited, nil
	}

	err := b.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitFailed)
	assert.Contains(t, err.Error(), "failed to load model")
}

func TestClassify(t *testing.T) {
	f := &fakeRuntime{announceInit: true, handler: func(cmd Command) []Message {
		return []Message{{
			Type:     msgClassification,
			ID:       cmd.ID,
			Labels:   []string{"This text is about studying", "idle"},
			Scores:   []float64{0.92, 0.08},
			Sequence: cmd.Text,
		}}
	}}
	b := newTestBridge(t, f, Config{})
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Shutdown(context.Background())

	res, err := b.Classify(context.Background(), "reading chapter four", []string{"This text is about studying"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"This text is about studying", "idle"}, res.Labels)
	assert.Equal(t, []float64{0.92, 0.08}, res.Scores)
	assert.Equal(t, "reading chapter four", res.Sequence)
}

func TestClassifyValidatesInput(t *testing.T) {
	b := New(Config{Command: "fake"}, zap.NewNop())

	_, err := b.Classify(context.Background(), "", []string{"a"}, false)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = b.Classify(context.Background(), "text", nil, false)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestClassifyNotReady(t *testing.T) {
	b := New(Config{Command: "fake"}, zap.NewNop())
	_, err := b.Classify(context.Background(), "text", []string{"a"}, false)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestClassifyRuntimeError(t *testing.T) {
	f := &fakeRuntime{announceInit: true, handler: func(cmd Command) []Message {
		return []Message{{Type: msgError, ID: cmd.ID, Error: "tokenizer exploded"}}
	}}
	b := newTestBridge(t, f, Config{})
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Shutdown(context.Background())

	_, err := b.Classify(context.Background(), "text", []string{"a"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)
	assert.Contains(t, err.Error(), "tokenizer exploded")
}

func TestClassifyScoreLabelMismatch(t *testing.T) {
	f := &fakeRuntime{announceInit: true, handler: func(cmd Command) []Message {
		return []Message{{
			Type:   msgClassification,
			ID:     cmd.ID,
			Labels: []string{"a", "b"},
			Scores: []float64{0.5},
		}}
	}}
	b := newTestBridge(t, f, Config{})
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Shutdown(context.Background())

	_, err := b.Classify(context.Background(), "text", []string{"a"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)
}

func TestClassifyTimeoutThenPingSucceeds(t *testing.T) {
	var silenceClassify bool
	var mu sync.Mutex
	f := &fakeRuntime{announceInit: true}
	f.handler = func(cmd Command) []Message {
		mu.Lock()
		silent := silenceClassify
		mu.Unlock()
		if cmd.Type == cmdClassify && silent {
			return nil
		}
		return echoHandler(cmd)
	}
	b := newTestBridge(t, f, Config{ClassifyTimeout: 50 * time.Millisecond})
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Shutdown(context.Background())

	mu.Lock()
	silenceClassify = true
	mu.Unlock()

	_, err := b.Classify(context.Background(), "text", []string{"a"}, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInference)

	// The runtime is still alive, only the call timed out.
	assert.True(t, b.Ping(context.Background()))
}

func TestLateResponseNotMisdelivered(t *testing.T) {
	f := &fakeRuntime{announceInit: true}
	f.handler = func(cmd Command) []Message {
		if cmd.Type != cmdClassify {
			return echoHandler(cmd)
		}
		if cmd.Text == "slow" {
			go func() {
				time.Sleep(100 * time.Millisecond)
				f.writeMessage(Message{
					Type:   msgClassification,
					ID:     cmd.ID,
					Labels: []string{"stale"},
					Scores: []float64{0.1},
				})
			}()
			return nil
		}
		return []Message{{
			Type:   msgClassification,
			ID:     cmd.ID,
			Labels: []string{"fresh"},
			Scores: []float64{0.9},
		}}
	}
	b := newTestBridge(t, f, Config{ClassifyTimeout: 30 * time.Millisecond})
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Shutdown(context.Background())

	_, err := b.Classify(context.Background(), "slow", []string{"a"}, false)
	require.ErrorIs(t, err, ErrInference)

	// The stale response must not be delivered to this call.
	res, err := b.Classify(context.Background(), "fast", []string{"a"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, res.Labels)

	time.Sleep(150 * time.Millisecond) // let the stale write drain
}

func TestIDLessResponsesRouteToOldestPending(t *testing.T) {
	// Emulate a legacy runtime that does not echo request ids.
	f := &fakeRuntime{announceInit: true}
	f.handler = func(cmd Command) []Message {
		msgs := echoHandler(cmd)
		for i := range msgs {
			msgs[i].ID = ""
		}
		return msgs
	}
	b := newTestBridge(t, f, Config{})
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Shutdown(context.Background())

	res, err := b.Classify(context.Background(), "screen text", []string{"studying"}, false)
	require.NoError(t, err)
	assert.Equal(t, "screen text", res.Sequence)

	assert.True(t, b.Ping(context.Background()))
}

func TestUnparsableLinesDropped(t *testing.T) {
	f := &fakeRuntime{announceInit: true}
	f.handler = func(cmd Command) []Message {
		if cmd.Type == cmdClassify {
			f.writeRaw("Some weird progress output: 53%")
			f.writeRaw("{not json")
		}
		return echoHandler(cmd)
	}
	b := newTestBridge(t, f, Config{})
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Shutdown(context.Background())

	res, err := b.Classify(context.Background(), "text", []string{"a"}, false)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Labels)
}

func TestProcessCloseMarksNotReady(t *testing.T) {
	f := &fakeRuntime{announceInit: true}
	f.handler = func(cmd Command) []Message {
		return echoHandler(cmd)
	}
	b := newTestBridge(t, f, Config{})
	require.NoError(t, b.Initialize(context.Background()))

	// Simulate a crash from the runtime side.
	f.stdout.Close()

	assert.Eventually(t, func() bool {
		return !b.Ready()
	}, time.Second, 10*time.Millisecond)

	_, err := b.Classify(context.Background(), "text", []string{"a"}, false)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestReinitializeAfterClose(t *testing.T) {
	f := &fakeRuntime{announceInit: true, handler: echoHandler}
	b := newTestBridge(t, f, Config{})
	require.NoError(t, b.Initialize(context.Background()))

	f.stdout.Close()
	assert.Eventually(t, func() bool { return !b.Ready() }, time.Second, 10*time.Millisecond)

	require.NoError(t, b.Initialize(context.Background()))
	assert.True(t, b.Ready())
	defer b.Shutdown(context.Background())

	assert.True(t, b.Ping(context.Background()))
}

func TestShutdownIdempotent(t *testing.T) {
	b := New(Config{Command: "fake"}, zap.NewNop())
	require.NoError(t, b.Shutdown(context.Background()))
	assert.Equal(t, StateTerminated, b.State())
	require.NoError(t, b.Shutdown(context.Background()))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "terminated", StateTerminated.String())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 60*time.Second, cfg.InitTimeout)
	assert.Equal(t, 30*time.Second, cfg.ClassifyTimeout)
	assert.Equal(t, 5*time.Second, cfg.PingTimeout)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
}
