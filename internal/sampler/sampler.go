package sampler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

var (
	// ErrModelUnavailable — inference-коллаборатор не готов; тик
	// пропускается, ретраев нет.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrNoFrame — источник не отдал кадр (камера не готова и т.п.).
	ErrNoFrame = errors.New("no frame available")
)

// Frame — один захваченный кадр видеопотока.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

type Classification struct {
	Label      string
	Confidence float64
}

// FrameSource отдает очередной кадр участника.
type FrameSource interface {
	Capture(ctx context.Context) (Frame, error)
}

// Classifier — внешний model-serving коллаборатор.
type Classifier interface {
	Classify(ctx context.Context, frame Frame) (Classification, error)
}

// Publisher получает готовый sample (обычно — targeted-доставка
// через event router).
type Publisher func(domain.EngagementSample)

const (
	DefaultWarmup   = 3000 * time.Millisecond
	DefaultInterval = 2000 * time.Millisecond
)

// Sampler гоняет цикл capture→classify→publish по фиксированному
// интервалу. Одновременно не бывает больше одного запроса к модели:
// если предыдущий еще не вернулся, тик пропускается, а не встает в
// очередь. Отмена кооперативная: после возврата Stop ни один sample
// уже не будет опубликован, in-flight результат выбрасывается.
type Sampler struct {
	channel       string
	participantID string

	source     FrameSource
	classifier Classifier
	publish    Publisher

	warmup   time.Duration
	interval time.Duration

	inflight atomic.Bool

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Sampler)

func WithWarmup(d time.Duration) Option {
	return func(s *Sampler) {
		if d >= 0 {
			s.warmup = d
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(s *Sampler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func New(channel, participantID string, source FrameSource, classifier Classifier, publish Publisher, opts ...Option) *Sampler {
	s := &Sampler{
		channel:       channel,
		participantID: participantID,
		source:        source,
		classifier:    classifier,
		publish:       publish,
		warmup:        DefaultWarmup,
		interval:      DefaultInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start запускает цикл. Вызывается после подтверждения, что у участника
// есть рабочий видеоисточник.
func (s *Sampler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.stopped || s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop останавливает цикл. После возврата publish гарантированно
// больше не зовется.
func (s *Sampler) Stop() {
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
		<-s.done
	}
}

func (s *Sampler) run(ctx context.Context) {
	defer close(s.done)

	select {
	case <-time.After(s.warmup):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.inflight.CompareAndSwap(false, true) {
				// модель еще думает над прошлым кадром
				slog.Debug("sample tick skipped, classification in flight",
					"channel", s.channel, "participant", s.participantID)
				continue
			}
			go s.sampleOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	defer s.inflight.Store(false)

	frame, err := s.source.Capture(ctx)
	if err != nil {
		// не эскалируем: кадра просто нет в этот тик
		slog.Debug("frame capture skipped", "participant", s.participantID, "err", err)
		return
	}

	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}

	cls, err := s.classifier.Classify(ctx, frame)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			slog.Debug("classification skipped", "participant", s.participantID, "err", err)
		}
		return
	}

	sample := domain.EngagementSample{
		Channel:       s.channel,
		ParticipantID: s.participantID,
		Label:         cls.Label,
		Confidence:    cls.Confidence,
		CapturedAt:    frame.CapturedAt,
	}

	// in-flight результат после отмены выбрасывается
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || ctx.Err() != nil {
		return
	}
	s.publish(sample)
}
