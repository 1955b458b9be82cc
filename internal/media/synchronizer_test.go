package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/classroom-service/internal/domain"
	"github.com/cwrk-planet/classroom-service/internal/presence"

	"github.com/stretchr/testify/require"
)

type call struct {
	op     string
	id     string
	target string
}

type fakeSDK struct {
	mu           sync.Mutex
	calls        []call
	subscribeErr error
	block        chan struct{} // если задан, Subscribe ждет закрытия
	playStarted  chan struct{} // закрывается на первом Play
	playBlock    chan struct{} // если задан, Play ждет закрытия
	startedOnce  sync.Once
}

func (f *fakeSDK) Subscribe(ctx context.Context, participantID string, kind Kind) error {
	f.mu.Lock()
	block, err := f.block, f.subscribeErr
	f.calls = append(f.calls, call{op: "subscribe", id: participantID})
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	return err
}

func (f *fakeSDK) Play(participantID, target string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{op: "play", id: participantID, target: target})
	block := f.playBlock
	f.mu.Unlock()

	if f.playStarted != nil {
		f.startedOnce.Do(func() { close(f.playStarted) })
	}
	if block != nil {
		<-block
	}
	return nil
}

func (f *fakeSDK) Detach(participantID, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op: "detach", id: participantID, target: target})
	return nil
}

func (f *fakeSDK) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

func TestPublished_SubscribesAndPlays(t *testing.T) {
	req := require.New(t)
	sdk := &fakeSDK{}
	s := NewSynchronizer(sdk)

	s.HandlePublished(context.Background(), "22", KindVideo)

	req.Equal([]string{"subscribe", "play"}, sdk.ops())
	req.Equal(StateSubscribed, s.State("22"))

	sdk.mu.Lock()
	req.Equal("player-22", sdk.calls[1].target)
	sdk.mu.Unlock()
}

func TestPublished_CoalescesDuplicates(t *testing.T) {
	req := require.New(t)
	sdk := &fakeSDK{}
	s := NewSynchronizer(sdk)

	s.HandlePublished(context.Background(), "22", KindVideo)
	s.HandlePublished(context.Background(), "22", KindVideo)
	s.HandlePublished(context.Background(), "22", KindAudio)

	subs := 0
	for _, op := range sdk.ops() {
		if op == "subscribe" {
			subs++
		}
	}
	req.Equal(1, subs, "no double-subscribe for the same participant")
}

func TestPublished_CoalescesWhileSubscribing(t *testing.T) {
	req := require.New(t)
	block := make(chan struct{})
	sdk := &fakeSDK{block: block}
	s := NewSynchronizer(sdk)

	done := make(chan struct{})
	go func() {
		s.HandlePublished(context.Background(), "22", KindVideo)
		close(done)
	}()

	req.Eventually(func() bool { return s.State("22") == StateSubscribing },
		time.Second, time.Millisecond)

	// второй published во время Subscribing — игнор
	s.HandlePublished(context.Background(), "22", KindVideo)

	close(block)
	<-done

	subs := 0
	for _, op := range sdk.ops() {
		if op == "subscribe" {
			subs++
		}
	}
	req.Equal(1, subs)
	req.Equal(StateSubscribed, s.State("22"))
}

func TestUnpublished_DetachesIdempotently(t *testing.T) {
	req := require.New(t)
	sdk := &fakeSDK{}
	s := NewSynchronizer(sdk)

	s.HandlePublished(context.Background(), "22", KindVideo)
	s.HandleUnpublished("22", KindVideo)
	s.HandleUnpublished("22", KindVideo)
	s.HandleUnpublished("never-seen", KindVideo)

	detaches := 0
	for _, op := range sdk.ops() {
		if op == "detach" {
			detaches++
		}
	}
	req.Equal(1, detaches)
	req.Equal(StateUnsubscribed, s.State("22"))
}

func TestLeft_WhileSubscribing_DiscardsCompletion(t *testing.T) {
	req := require.New(t)
	block := make(chan struct{})
	sdk := &fakeSDK{block: block}
	s := NewSynchronizer(sdk)

	done := make(chan struct{})
	go func() {
		s.HandlePublished(context.Background(), "22", KindVideo)
		close(done)
	}()
	req.Eventually(func() bool { return s.State("22") == StateSubscribing },
		time.Second, time.Millisecond)

	s.HandleLeft("22")
	close(block)
	<-done

	req.Equal(StateUnsubscribed, s.State("22"))
	for _, op := range sdk.ops() {
		req.NotEqual("play", op, "stale subscribe completion must not attach playback")
	}
}

func TestLeft_WaitsForPlaybackAttach(t *testing.T) {
	req := require.New(t)
	started := make(chan struct{})
	gate := make(chan struct{})
	sdk := &fakeSDK{playStarted: started, playBlock: gate}
	s := NewSynchronizer(sdk)

	pubDone := make(chan struct{})
	go func() {
		s.HandlePublished(context.Background(), "22", KindVideo)
		close(pubDone)
	}()
	<-started

	// left прилетает посреди attach-а: detach обязан дождаться play,
	// иначе останется висячий playback
	leftDone := make(chan struct{})
	go func() {
		s.HandleLeft("22")
		close(leftDone)
	}()

	select {
	case <-leftDone:
		t.Fatal("left completed before playback attach finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	<-pubDone
	<-leftDone

	req.Equal([]string{"subscribe", "play", "detach"}, sdk.ops())
	req.Equal(StateUnsubscribed, s.State("22"))
}

func TestSubscribeError_ReturnsToUnsubscribed(t *testing.T) {
	req := require.New(t)
	sdk := &fakeSDK{subscribeErr: errors.New("ice failed")}
	s := NewSynchronizer(sdk)

	s.HandlePublished(context.Background(), "22", KindVideo)

	req.Equal(StateUnsubscribed, s.State("22"))
	// повторный published после ошибки снова пробует подписаться
	sdk.mu.Lock()
	sdk.subscribeErr = nil
	sdk.mu.Unlock()
	s.HandlePublished(context.Background(), "22", KindVideo)
	req.Equal(StateSubscribed, s.State("22"))
}

func TestWatchDirectory_DepartureForcesUnsubscribe(t *testing.T) {
	req := require.New(t)
	sdk := &fakeSDK{}
	s := NewSynchronizer(sdk)
	dir := presence.NewDirectory()

	unsub := s.WatchDirectory(dir)
	defer unsub()

	dir.Announce("c1", "math101", "22", "Bob", domain.RoleStudent)
	s.HandlePublished(context.Background(), "22", KindVideo)
	req.Equal(StateSubscribed, s.State("22"))

	// соединение оборвалось без unpublished от SDK
	dir.Remove("c1")

	req.Equal(StateUnsubscribed, s.State("22"))
	req.Contains(sdk.ops(), "detach")
}

func TestWithTarget(t *testing.T) {
	sdk := &fakeSDK{}
	s := NewSynchronizer(sdk, WithTarget(func(id string) string { return "tile-" + id }))

	s.HandlePublished(context.Background(), "7", KindVideo)

	sdk.mu.Lock()
	defer sdk.mu.Unlock()
	if sdk.calls[1].target != "tile-7" {
		t.Fatalf("custom target not used: %s", sdk.calls[1].target)
	}
}
