package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up, Down, Left, Right key.Binding
	ZoomIn, ZoomOut       key.Binding
	Follow, Rotate        key.Binding
	BestMap, Adjacent     key.Binding
	NextMap, PrevMap      key.Binding
	Maps, Online          key.Binding
	Sim, TurnLeft         key.Binding
	TurnRight, Faster     key.Binding
	Slower, Reset         key.Binding
	Help, Quit            key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "pan up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "pan down")),
		Left:      key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "pan left")),
		Right:     key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "pan right")),
		ZoomIn:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "zoom in")),
		ZoomOut:   key.NewBinding(key.WithKeys("-", "_"), key.WithHelp("-", "zoom out")),
		Follow:    key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "follow")),
		Rotate:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "course up")),
		BestMap:   key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "best map")),
		Adjacent:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "adjacent maps")),
		NextMap:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "finer map")),
		PrevMap:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "coarser map")),
		Maps:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "map list")),
		Online:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "online maps")),
		Sim:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "simulate")),
		TurnLeft:  key.NewBinding(key.WithKeys("["), key.WithHelp("[", "turn port")),
		TurnRight: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "turn starboard")),
		Faster:    key.NewBinding(key.WithKeys("."), key.WithHelp(".", "faster")),
		Slower:    key.NewBinding(key.WithKeys(","), key.WithHelp(",", "slower")),
		Reset:     key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reload")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.ZoomIn, k.ZoomOut, k.Follow, k.Maps, k.Sim, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.ZoomIn, k.ZoomOut},
		{k.Follow, k.Rotate, k.BestMap, k.Adjacent, k.Reset},
		{k.NextMap, k.PrevMap, k.Maps, k.Online},
		{k.Sim, k.TurnLeft, k.TurnRight, k.Faster, k.Slower},
		{k.Help, k.Quit},
	}
}
