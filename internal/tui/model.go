// Package tui shows a chartview engine in the terminal. Frames are drawn
// with braille cells, two by four pixels each.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulmach/orb"

	"github.com/beetlebugorg/chartview/pkg/engine"
	"github.com/beetlebugorg/chartview/pkg/mapsource"
	"github.com/beetlebugorg/chartview/pkg/viewport"
)

const (
	headerHeight = 1
	footerHeight = 1
	sidebarWidth = 32

	simInterval = time.Second
)

// Catalog lists the maps offered in the map list.
type Catalog interface {
	All() []mapsource.Source
}

// Options configures the terminal view.
type Options struct {
	// Online names the tile providers toggled together by the online key.
	Online []string
	Rotate bool
}

type mapItem struct {
	id, title string
	kind      mapsource.Kind
	scale     float64
}

func (i mapItem) Title() string       { return i.title }
func (i mapItem) Description() string { return fmt.Sprintf("%s, %.1f m/px", i.kind, i.scale) }
func (i mapItem) FilterValue() string { return i.title }

type simTickMsg time.Time

// Model is the bubbletea model of the viewer.
type Model struct {
	eng  *engine.Engine
	cat  Catalog
	opts Options

	keys keyMap
	help help.Model
	list list.Model

	width, height int
	lines         []string

	showList bool
	status   string
	current  mapItem
	conds    viewport.Conditions

	rotate   bool
	best     bool
	adjacent bool
	online   bool

	sim     *vessel
	dragged bool
	lastX   int
	lastY   int

	now func() time.Time
}

// New returns a model driving eng. The engine must be started by the caller.
func New(eng *engine.Engine, cat Catalog, opts Options) Model {
	d := list.NewDefaultDelegate()
	l := list.New(nil, d, 0, 0)
	l.Title = "Maps"
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)

	m := Model{
		eng:      eng,
		cat:      cat,
		opts:     opts,
		keys:     defaultKeys(),
		help:     help.New(),
		list:     l,
		status:   "chartview ready",
		rotate:   opts.Rotate,
		best:     true,
		adjacent: true,
		online:   len(eng.OnlineMaps()) > 0,
		now:      time.Now,
	}
	if cur := eng.CurrentMap(); cur != nil {
		m.current = itemOf(cur)
	}
	return m
}

func itemOf(src mapsource.Source) mapItem {
	def := src.Definition()
	return mapItem{id: def.ID, title: def.Title, kind: src.Kind(), scale: def.Scale}
}

func (m Model) Init() tea.Cmd { return nil }

// mapSize returns the map area in cells.
func (m Model) mapSize() (int, int) {
	w := m.width
	if m.showList {
		w -= sidebarWidth + 1
	}
	return max(w, 1), max(m.height-headerHeight-footerHeight, 1)
}

func (m *Model) resize() {
	cols, rows := m.mapSize()
	m.eng.SetScreen(cols*dotsX, rows*dotsY)
	m.list.SetSize(sidebarWidth, rows)
}

func (m *Model) refreshList() tea.Cmd {
	var items []list.Item
	for _, src := range m.cat.All() {
		if src.Definition().Broken() {
			continue
		}
		items = append(items, itemOf(src))
	}
	return m.list.SetItems(items)
}

func simTick() tea.Cmd {
	return tea.Tick(simInterval, func(t time.Time) tea.Msg { return simTickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case frameMsg:
		m.lines = msg
		return m, nil

	case mapMsg:
		m.current = mapItem{id: msg.id, title: msg.title, kind: msg.kind}
		if cur := m.eng.CurrentMap(); cur != nil && cur.ID() == msg.id {
			m.current.scale = cur.Definition().Scale
		}
		return m, nil

	case conditionsMsg:
		m.conds = viewport.Conditions(msg)
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case simTickMsg:
		if m.sim == nil {
			return m, nil
		}
		m.eng.SetLocation(m.sim.step(time.Time(msg)))
		return m, simTick()

	case tea.MouseMsg:
		return m.mouse(msg), nil

	case tea.KeyMsg:
		if m.showList && m.list.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.list, cmd = m.list.Update(msg)
			return m, cmd
		}
		return m.key(msg)
	}
	return m, nil
}

func (m Model) mouse(msg tea.MouseMsg) Model {
	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.eng.ZoomIn()
		return m
	case tea.MouseButtonWheelDown:
		m.eng.ZoomOut()
		return m
	case tea.MouseButtonLeft:
	default:
		return m
	}
	switch msg.Action {
	case tea.MouseActionPress:
		m.dragged = true
	case tea.MouseActionMotion:
		if m.dragged {
			m.eng.Scroll((m.lastX-msg.X)*dotsX, (m.lastY-msg.Y)*dotsY)
			m.eng.Drag()
		}
	case tea.MouseActionRelease:
		m.dragged = false
	}
	m.lastX, m.lastY = msg.X, msg.Y
	return m
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	cols, rows := m.mapSize()
	stepX, stepY := cols*dotsX/8, rows*dotsY/8

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Maps):
		m.showList = !m.showList
		m.resize()
		if m.showList {
			return m, m.refreshList()
		}
	case m.showList && msg.String() == "enter":
		if it, ok := m.list.SelectedItem().(mapItem); ok {
			m.eng.SelectMap(it.id)
			m.status = "map: " + it.title
		}
	case m.showList && (msg.String() == "up" || msg.String() == "down"):
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	case key.Matches(msg, m.keys.Up):
		m.eng.Scroll(0, -stepY)
	case key.Matches(msg, m.keys.Down):
		m.eng.Scroll(0, stepY)
	case key.Matches(msg, m.keys.Left):
		m.eng.Scroll(-stepX, 0)
	case key.Matches(msg, m.keys.Right):
		m.eng.Scroll(stepX, 0)
	case key.Matches(msg, m.keys.ZoomIn):
		if !m.eng.ZoomIn() {
			m.status = "no finer zoom"
		}
	case key.Matches(msg, m.keys.ZoomOut):
		if !m.eng.ZoomOut() {
			m.status = "no coarser zoom"
		}
	case key.Matches(msg, m.keys.Follow):
		on := !m.eng.Conditions().Following
		m.eng.SetFollowing(on)
		m.status = onOff("follow", on)
	case key.Matches(msg, m.keys.Rotate):
		m.rotate = !m.rotate
		m.eng.SetRotate(m.rotate)
		m.resize()
		m.status = onOff("course up", m.rotate)
	case key.Matches(msg, m.keys.BestMap):
		m.best = !m.best
		m.eng.SetBestMap(m.best)
		m.status = onOff("best map", m.best)
	case key.Matches(msg, m.keys.Adjacent):
		m.adjacent = !m.adjacent
		m.eng.SetAdjacentMaps(m.adjacent)
		m.status = onOff("adjacent maps", m.adjacent)
	case key.Matches(msg, m.keys.NextMap):
		m.eng.NextMap()
	case key.Matches(msg, m.keys.PrevMap):
		m.eng.PrevMap()
	case key.Matches(msg, m.keys.Online):
		m.online = !m.online
		var names []string
		if m.online {
			names = m.opts.Online
		}
		if err := m.eng.SetOnlineMaps(names); err != nil {
			m.status = err.Error()
		} else {
			m.status = onOff("online maps", m.online)
		}
	case key.Matches(msg, m.keys.Reset):
		m.eng.Reset()
		m.status = "reloading maps"
	case key.Matches(msg, m.keys.Sim):
		return m.toggleSim()
	case m.sim != nil && key.Matches(msg, m.keys.TurnLeft):
		m.sim.turn(-15)
	case m.sim != nil && key.Matches(msg, m.keys.TurnRight):
		m.sim.turn(15)
	case m.sim != nil && key.Matches(msg, m.keys.Faster):
		m.sim.accelerate(2)
	case m.sim != nil && key.Matches(msg, m.keys.Slower):
		m.sim.accelerate(-2)
	}
	return m, nil
}

func (m Model) toggleSim() (tea.Model, tea.Cmd) {
	if m.sim != nil {
		m.sim = nil
		m.eng.SetMoving(false)
		m.eng.SetFixed(false)
		m.eng.ClearLocation()
		m.status = "simulation stopped"
		return m, nil
	}
	c := m.eng.Viewport().Center
	m.sim = &vessel{pos: orb.Point{c.Lon(), c.Lat()}, speed: 5}
	m.eng.SetLocation(m.sim.step(m.now()))
	m.eng.SetFixed(true)
	m.eng.SetMoving(true)
	m.eng.SetFollowing(true)
	m.status = "simulation started"
	return m, simTick()
}

func onOff(what string, on bool) string {
	if on {
		return what + ": on"
	}
	return what + ": off"
}
