package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu     sync.Mutex
	wrote  [][]byte
	pings  int
	closed bool
}

func (t *fakeTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wrote = append(t.wrote, data)
	return nil
}

func (t *fakeTransport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pings++
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) messages() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.wrote))
	copy(out, t.wrote)
	return out
}

func TestRegister_AssignsUniqueIDs(t *testing.T) {
	req := require.New(t)
	r := New(8)

	a := r.Register(&fakeTransport{})
	b := r.Register(&fakeTransport{})

	req.NotEmpty(a.ID())
	req.NotEqual(a.ID(), b.ID())
	req.Equal(StateOpen, a.State())
	req.Equal(2, r.Len())
}

func TestUnregister_Idempotent(t *testing.T) {
	req := require.New(t)
	r := New(8)

	var closes int
	r.OnClose(func(string) { closes++ })

	tr := &fakeTransport{}
	c := r.Register(tr)

	r.Unregister(c.ID())
	r.Unregister(c.ID())
	r.Unregister("no-such-conn")

	req.Equal(1, closes)
	req.Equal(StateClosed, c.State())
	req.True(tr.closed)
	req.Equal(0, r.Len())
}

func TestSend_DropNewestWhenBufferFull(t *testing.T) {
	req := require.New(t)
	r := New(2)
	c := r.Register(&fakeTransport{})

	// writeLoop не запущен, очередь никем не вычитывается
	req.NoError(c.Send([]byte("a")))
	req.NoError(c.Send([]byte("b")))
	err := c.Send([]byte("c"))
	req.ErrorIs(err, ErrBufferFull)
	req.EqualValues(1, c.Dropped())
}

func TestSend_AfterClose(t *testing.T) {
	r := New(2)
	c := r.Register(&fakeTransport{})
	r.Unregister(c.ID())

	if err := c.Send([]byte("x")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

func TestWriteLoop_DrainsInOrder(t *testing.T) {
	req := require.New(t)
	r := New(8)
	tr := &fakeTransport{}
	c := r.Register(tr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.WriteLoop(ctx, time.Minute)
		close(done)
	}()

	req.NoError(c.Send([]byte("1")))
	req.NoError(c.Send([]byte("2")))
	req.NoError(c.Send([]byte("3")))

	req.Eventually(func() bool { return len(tr.messages()) == 3 }, time.Second, 5*time.Millisecond)
	got := tr.messages()
	req.Equal("1", string(got[0]))
	req.Equal("2", string(got[1]))
	req.Equal("3", string(got[2]))

	r.Unregister(c.ID())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("write loop did not stop on close")
	}
}

func TestTouch_UpdatesLastActivity(t *testing.T) {
	r := New(8)
	c := r.Register(&fakeTransport{})
	before := c.LastActivity()

	time.Sleep(5 * time.Millisecond)
	r.Touch(c.ID())

	if !c.LastActivity().After(before) {
		t.Fatal("last activity not updated")
	}
}
