package groups

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sardaralii/music-assistant/core/metrics"
	"github.com/sardaralii/music-assistant/core/transcode"
	"github.com/sardaralii/music-assistant/log"
	"github.com/sardaralii/music-assistant/model"
)

// UGPFormat is the intermediate PCM format all universal group sources are
// normalized to before the stream encodes them once for all subscribers.
var UGPFormat = model.AudioFormat{
	ContentType: model.ContentTypePCMF32LE,
	SampleRate:  44100,
	BitDepth:    32,
}

// UGPOutputFormat is the encoded format served to the group members. AAC is
// chosen because it is widely supported and allows mid-stream joining.
var UGPOutputFormat = model.AudioFormat{ContentType: model.ContentTypeAAC}

const (
	defaultWarmupDelay = 250 * time.Millisecond
	defaultChunkSize   = 32 * 1024
)

// AudioSource is the input of a broadcast stream: either a direct URI the
// transcoder can read itself, or an already-open byte stream.
type AudioSource struct {
	URI    string
	Reader io.ReadCloser
	Format model.AudioFormat
}

type subscriber struct {
	ch   chan []byte
	gone chan struct{}
	once sync.Once
}

func (s *subscriber) leave() {
	s.once.Do(func() { close(s.gone) })
}

// Stream multiplexes one transcoded audio source to a dynamically changing set
// of subscribers. The transcode task is started lazily on the first Subscribe
// call; every subscriber observes a zero-length sentinel chunk (or channel
// close) when the stream ends, whether it was exhausted or cancelled.
type Stream struct {
	source     AudioSource
	transcoder transcode.Transcoder
	outFormat  model.AudioFormat
	warmup     time.Duration
	chunkSize  int
	metrics    *metrics.Metrics

	mu         sync.Mutex
	subs       []*subscriber
	started    bool
	stopped    bool // terminal flag, false->true only
	subsClosed bool
	cancel     context.CancelFunc
	finished   chan struct{}
}

// NewStream creates a broadcast stream over the given source. The transcode
// task does not run until the first subscriber arrives.
func NewStream(source AudioSource, tc transcode.Transcoder, m *metrics.Metrics) *Stream {
	return &Stream{
		source:     source,
		transcoder: tc,
		outFormat:  UGPOutputFormat,
		warmup:     defaultWarmupDelay,
		chunkSize:  defaultChunkSize,
		metrics:    m,
		finished:   make(chan struct{}),
	}
}

// SetWarmupDelay overrides the delay before the first chunk is produced
func (s *Stream) SetWarmupDelay(d time.Duration) {
	s.warmup = d
}

// SetChunkSize overrides the broadcast read size
func (s *Stream) SetChunkSize(size int) {
	if size > 0 {
		s.chunkSize = size
	}
}

// OutputFormat returns the encoded format delivered to subscribers
func (s *Stream) OutputFormat() model.AudioFormat {
	return s.outFormat
}

// Done reports whether the stream reached its terminal state: the transcode
// task has completed (normally or by cancellation) and the terminal flag is
// set. A stream that was stopped before any subscriber arrived never ran a
// task and reports false; callers replace it the same way.
func (s *Stream) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped || !s.started {
		return false
	}
	select {
	case <-s.finished:
		return true
	default:
		return false
	}
}

// Stop cancels the in-flight transcode task and marks the stream as ended.
// Repeated calls after the first have no additional effect.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Subscribe attaches a new subscriber and returns its chunk channel together
// with a detach function. The first subscription starts the transcode task;
// subsequent ones simply join the live broadcast. The channel is closed after
// a zero-length sentinel chunk when the stream ends.
func (s *Stream) Subscribe() (<-chan []byte, func()) {
	s.mu.Lock()
	if s.subsClosed {
		s.mu.Unlock()
		ch := make(chan []byte)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		ch:   make(chan []byte, 1),
		gone: make(chan struct{}),
	}
	s.subs = append(s.subs, sub)
	if !s.started {
		s.started = true
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.run(ctx)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SubscriberAdded()
	}
	detach := func() {
		sub.leave()
		s.removeSubscriber(sub)
	}
	return sub.ch, detach
}

func (s *Stream) removeSubscriber(sub *subscriber) {
	s.mu.Lock()
	for i, candidate := range s.subs {
		if candidate == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			if s.metrics != nil {
				s.metrics.SubscriberRemoved()
			}
			break
		}
	}
	s.mu.Unlock()
}

// run owns the single transcode task for this stream. It waits a short warm-up
// delay so near-simultaneous subscribers join before the first byte, then
// pushes every chunk to all current subscribers. Whatever the exit path, it
// delivers the terminal sentinel and closes all subscriber channels.
func (s *Stream) run(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.StreamStarted()
	}
	defer func() {
		s.finalize()
		if s.metrics != nil {
			s.metrics.StreamEnded()
		}
	}()
	defer func() {
		if s.source.Reader != nil {
			_ = s.source.Reader.Close()
		}
	}()

	select {
	case <-time.After(s.warmup):
	case <-ctx.Done():
		return
	}

	var out io.ReadCloser
	var err error
	if s.source.URI != "" {
		out, err = s.transcoder.TranscodeURI(ctx, s.source.URI, s.source.Format, s.outFormat)
	} else {
		out, err = s.transcoder.TranscodeStream(ctx, s.source.Reader, s.source.Format, s.outFormat)
	}
	if err != nil {
		// transcoder failures end the stream the same way as exhaustion
		log.Error(ctx, "Broadcast stream transcode failed to start", err)
		return
	}
	defer out.Close()

	for {
		chunk := make([]byte, s.chunkSize)
		n, err := out.Read(chunk)
		if n > 0 {
			s.broadcast(ctx, chunk[:n])
			if s.metrics != nil {
				s.metrics.AddStreamBytes(n)
			}
		}
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// broadcast delivers one chunk to a snapshot of the current subscribers,
// in parallel. A slow subscriber delays only its own delivery; a departed
// subscriber or cancelled stream abandons the send.
func (s *Stream) broadcast(ctx context.Context, chunk []byte) {
	s.mu.Lock()
	snapshot := make([]*subscriber, len(s.subs))
	copy(snapshot, s.subs)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range snapshot {
		wg.Add(1)
		go func(sub *subscriber) {
			defer wg.Done()
			select {
			case sub.ch <- chunk:
			case <-sub.gone:
			case <-ctx.Done():
			}
		}(sub)
	}
	wg.Wait()
}

// finalize pushes the empty end-of-stream marker to every remaining
// subscriber, closes their channels and sets the terminal flag.
func (s *Stream) finalize() {
	s.mu.Lock()
	s.subsClosed = true
	remaining := make([]*subscriber, len(s.subs))
	copy(remaining, s.subs)
	s.subs = nil
	s.stopped = true
	s.mu.Unlock()

	for _, sub := range remaining {
		select {
		case sub.ch <- []byte{}:
		default:
		}
		close(sub.ch)
		if s.metrics != nil {
			s.metrics.SubscriberRemoved()
		}
	}
	close(s.finished)
}
