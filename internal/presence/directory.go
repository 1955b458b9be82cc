package presence

import (
	"slices"
	"sync"
	"time"

	"github.com/cwrk-planet/classroom-service/internal/domain"

	"github.com/samber/lo"
)

type EventKind string

const (
	EventJoined   EventKind = "joined"
	EventDeparted EventKind = "departed"
)

// Event описывает одно committed-изменение roster-а. Peers — conn id
// остальных участников канала сразу после мутации: слушатель может
// разослать уведомление, не обращаясь обратно в Directory.
type Event struct {
	Kind        EventKind
	Participant domain.Participant
	Peers       []string
}

// Listener вызывается синхронно внутри сериализованной мутации.
// Слушатель не должен вызывать методы Directory.
type Listener func(Event)

type binding struct {
	channel       string
	participantID string
}

type channelRoster struct {
	order []*domain.Participant // в порядке join-а
	byID  map[string]*domain.Participant
}

// Directory — авторитетный roster по каналам. Все мутации сериализованы
// одним мьютексом; join/departed события для каждой привязки выдаются
// ровно один раз и строго упорядочены.
type Directory struct {
	mu       sync.Mutex
	channels map[string]*channelRoster
	byConn   map[string]binding

	lisMu     sync.Mutex
	listeners map[int]Listener
	nextLisID int

	now func() time.Time
}

func NewDirectory() *Directory {
	return &Directory{
		channels:  make(map[string]*channelRoster),
		byConn:    make(map[string]binding),
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Subscribe регистрирует слушателя и возвращает handle для
// детерминированного снятия подписки.
func (d *Directory) Subscribe(l Listener) (unsubscribe func()) {
	d.lisMu.Lock()
	id := d.nextLisID
	d.nextLisID++
	d.listeners[id] = l
	d.lisMu.Unlock()

	return func() {
		d.lisMu.Lock()
		delete(d.listeners, id)
		d.lisMu.Unlock()
	}
}

func (d *Directory) emit(ev Event) {
	d.lisMu.Lock()
	ids := lo.Keys(d.listeners)
	slices.Sort(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, d.listeners[id])
	}
	d.lisMu.Unlock()

	for _, l := range ls {
		l(ev)
	}
}

// Announce привязывает личность к соединению. Повторный announce того же
// participant id в том же канале вытесняет старую привязку: сначала
// departed по старому соединению, затем joined по новому. Так ведет себя
// перезагруженная страница, переподключившаяся с прежним id.
func (d *Directory) Announce(connID, channel, participantID, name string, role domain.Role) domain.Participant {
	if name == "" {
		name = domain.PlaceholderName(participantID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.channels[channel]
	if !ok {
		ch = &channelRoster{byID: make(map[string]*domain.Participant)}
		d.channels[channel] = ch
	}

	if old, ok := ch.byID[participantID]; ok {
		d.detachLocked(channel, ch, old)
		// detach мог собрать опустевший канал — вернем его на место
		d.channels[channel] = ch
	}

	p := &domain.Participant{
		Channel:  channel,
		ID:       participantID,
		Name:     name,
		Role:     role,
		ConnID:   connID,
		JoinedAt: d.now(),
	}
	ch.order = append(ch.order, p)
	ch.byID[participantID] = p
	d.byConn[connID] = binding{channel: channel, participantID: participantID}

	d.emit(Event{Kind: EventJoined, Participant: *p, Peers: d.peersLocked(ch, connID)})
	return *p
}

// Remove убирает участника, привязанного к connID. No-op без привязки,
// поэтому повторные close-сигналы не порождают дублей departed.
func (d *Directory) Remove(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.byConn[connID]
	if !ok {
		return
	}
	ch, ok := d.channels[b.channel]
	if !ok {
		return
	}
	p, ok := ch.byID[b.participantID]
	if !ok || p.ConnID != connID {
		return
	}

	d.detachLocked(b.channel, ch, p)
}

// detachLocked снимает привязку и эмитит departed. Пустой канал
// собирается сразу же.
func (d *Directory) detachLocked(channel string, ch *channelRoster, p *domain.Participant) {
	delete(ch.byID, p.ID)
	delete(d.byConn, p.ConnID)
	ch.order = lo.Reject(ch.order, func(e *domain.Participant, _ int) bool { return e == p })
	if len(ch.order) == 0 {
		delete(d.channels, channel)
	}

	d.emit(Event{Kind: EventDeparted, Participant: *p, Peers: d.peersLocked(ch, p.ConnID)})
}

func (d *Directory) peersLocked(ch *channelRoster, exceptConnID string) []string {
	return lo.FilterMap(ch.order, func(p *domain.Participant, _ int) (string, bool) {
		return p.ConnID, p.ConnID != exceptConnID
	})
}

// Roster — снапшот участников канала в порядке join-а, без дублей по id.
func (d *Directory) Roster(channel string) []domain.Participant {
	d.mu.Lock()
	defer d.mu.Unlock()

	ch, ok := d.channels[channel]
	if !ok {
		return nil
	}
	return lo.Map(ch.order, func(p *domain.Participant, _ int) domain.Participant { return *p })
}

// Binding возвращает участника, привязанного к соединению.
func (d *Directory) Binding(connID string) (domain.Participant, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.byConn[connID]
	if !ok {
		return domain.Participant{}, false
	}
	ch, ok := d.channels[b.channel]
	if !ok {
		return domain.Participant{}, false
	}
	p, ok := ch.byID[b.participantID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// Channels — имена живых каналов (пустые каналы собраны).
func (d *Directory) Channels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := lo.Keys(d.channels)
	slices.Sort(names)
	return names
}
