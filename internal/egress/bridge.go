package egress

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"conduit/internal/image"
	"conduit/internal/logbuffer"
)

// Sink receives consumed fragments. A sink that returns an error causes the
// bridge to abort the current fragment without advancing the subscriber
// position, so delivery to sinks is effectively at-least-once.
type Sink interface {
	Name() string
	Forward(ctx context.Context, rec *Record) error
	Close() error
}

// ErrNoSinks is returned by NewBridge when no sink is configured.
var ErrNoSinks = errors.New("egress bridge requires at least one sink")

type BridgeConfig struct {
	// FragmentLimit bounds fragments consumed per duty cycle.
	FragmentLimit int
	// CommitInterval is the number of fragments between explicit position
	// commits inside one poll; flow control observers see progress at
	// least this often. 0 defers publication to the end of each poll.
	CommitInterval int
	// Window bounds each poll to frames starting within Window bytes past
	// the current position; the last such frame is consumed whole.
	// 0 polls unbounded within the term.
	Window int64
	// IdleSleep is how long to sleep after an empty duty cycle.
	IdleSleep time.Duration
}

func (c BridgeConfig) withDefaults() BridgeConfig {
	if c.FragmentLimit <= 0 {
		c.FragmentLimit = 100
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = time.Millisecond
	}
	return c
}

// Bridge drives a controlled poll over one Image and fans consumed
// fragments out to its sinks. Single-threaded over the Image, per the
// Image's threading model.
type Bridge struct {
	img         *image.Image
	sinks       []Sink
	cfg         BridgeConfig
	log         *slog.Logger
	ctx         context.Context
	sinceCommit int
	sinkErr     error
}

func NewBridge(img *image.Image, sinks []Sink, cfg BridgeConfig, log *slog.Logger) (*Bridge, error) {
	if len(sinks) == 0 {
		return nil, ErrNoSinks
	}
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{img: img, sinks: sinks, cfg: cfg.withDefaults(), log: log}, nil
}

// onFragment copies the fragment into a Record and forwards it to every
// sink. Any sink failure aborts the fragment so it is redelivered on the
// next duty cycle.
func (b *Bridge) onFragment(buffer *logbuffer.Buffer, offset int32, length int32, header *logbuffer.Header) logbuffer.ControlledPollAction {
	rec := &Record{
		SessionId:     header.SessionID(),
		StreamId:      header.StreamID(),
		TermId:        header.TermID(),
		TermOffset:    header.Offset(),
		Position:      header.Position(),
		Flags:         uint32(header.Flags()),
		ReservedValue: header.ReservedValue(),
		Payload:       append([]byte(nil), buffer.GetBytes(offset, length)...),
	}

	for _, sink := range b.sinks {
		if err := sink.Forward(b.ctx, rec); err != nil {
			b.sinkErr = err
			b.log.Warn("sink rejected fragment, aborting poll",
				"sink", sink.Name(), "position", rec.Position, "error", err)
			return logbuffer.ActionAbort
		}
	}

	if b.cfg.CommitInterval > 0 {
		b.sinceCommit++
		if b.sinceCommit >= b.cfg.CommitInterval {
			b.sinceCommit = 0
			return logbuffer.ActionCommit
		}
	}
	return logbuffer.ActionContinue
}

// DoWork runs one duty cycle and returns the number of fragments consumed
// together with any sink error that aborted the cycle.
func (b *Bridge) DoWork(ctx context.Context) (int, error) {
	b.ctx = ctx
	b.sinkErr = nil

	var fragments int
	if b.cfg.Window > 0 {
		maxPosition := b.img.Position() + b.cfg.Window
		fragments = b.img.BoundedControlledPoll(b.onFragment, maxPosition, b.cfg.FragmentLimit)
	} else {
		fragments = b.img.ControlledPoll(b.onFragment, b.cfg.FragmentLimit)
	}
	return fragments, b.sinkErr
}

// Run polls until ctx is cancelled or the stream end is reached and fully
// consumed. Sink errors are retried after the idle sleep; the aborted
// fragment is redelivered because its position was never published.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fragments, sinkErr := b.DoWork(ctx)
		if fragments > 0 && sinkErr == nil {
			continue
		}

		if fragments == 0 && sinkErr == nil && b.img.IsEndOfStream() {
			b.log.Info("end of stream reached", "position", b.img.Position())
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.cfg.IdleSleep):
		}
	}
}

// Close closes every sink, returning the first error encountered.
func (b *Bridge) Close() error {
	var first error
	for _, sink := range b.sinks {
		if err := sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
