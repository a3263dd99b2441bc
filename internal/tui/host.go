package tui

import (
	"fmt"
	"image"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/beetlebugorg/chartview/pkg/engine"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

type frameMsg []string

type mapMsg struct {
	id, title string
	kind      mapsource.Kind
	forced    bool
}

type conditionsMsg viewport.Conditions

type statusMsg string

// Host forwards engine callbacks into a running tea.Program. Frames are
// rasterized on the presenter goroutine so the program only receives
// finished lines.
//
// Callbacks may arrive on the program's own goroutine while it runs Update,
// so messages are queued and delivered by a separate goroutine. Only the
// newest undelivered frame is kept.
type Host struct {
	mu      sync.Mutex
	send    func(tea.Msg)
	pending []tea.Msg
	frame   tea.Msg
	wake    chan struct{}
	stop    chan struct{}
	once    sync.Once
}

var _ engine.Host = (*Host)(nil)

func NewHost() *Host {
	return &Host{wake: make(chan struct{}, 1), stop: make(chan struct{})}
}

// Attach starts delivering messages to p. Until then they are dropped.
func (h *Host) Attach(p *tea.Program) {
	h.attach(p.Send)
}

func (h *Host) attach(send func(tea.Msg)) {
	h.mu.Lock()
	started := h.send != nil
	h.send = send
	h.mu.Unlock()
	if !started {
		go h.deliver()
	}
}

// Close stops delivery. Pending messages are dropped.
func (h *Host) Close() {
	h.once.Do(func() { close(h.stop) })
}

func (h *Host) post(msg tea.Msg) {
	h.mu.Lock()
	if h.send == nil {
		h.mu.Unlock()
		return
	}
	if _, ok := msg.(frameMsg); ok {
		h.frame = msg
	} else {
		h.pending = append(h.pending, msg)
	}
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Host) deliver() {
	for {
		select {
		case <-h.stop:
			return
		case <-h.wake:
		}
		h.mu.Lock()
		send, msgs, frame := h.send, h.pending, h.frame
		h.pending, h.frame = nil, nil
		h.mu.Unlock()

		if frame != nil {
			msgs = append(msgs, frame)
		}
		for _, msg := range msgs {
			select {
			case <-h.stop:
				return
			default:
			}
			send(msg)
		}
	}
}

func (h *Host) MapChanged(src mapsource.Source, forced bool) {
	def := src.Definition()
	h.post(mapMsg{id: def.ID, title: def.Title, kind: src.Kind(), forced: forced})
}

func (h *Host) ConditionsChanged(c viewport.Conditions) {
	h.post(conditionsMsg(c))
}

func (h *Host) ActivationFailed(def *mapsource.Definition, err error) {
	h.post(statusMsg(fmt.Sprintf("cannot open %s: %v", def.Title, err)))
}

func (h *Host) OutOfMemory(err error) {
	h.post(statusMsg("out of memory, keeping last frame: " + err.Error()))
}

func (h *Host) Present(img *image.RGBA) {
	h.post(frameMsg(Rasterize(img)))
}
