package viz

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/conesim/internal/control"
	"github.com/san-kum/conesim/internal/metrics"
	"github.com/san-kum/conesim/internal/poles"
	"github.com/san-kum/conesim/internal/sim"
)

const (
	historyCapacity = 600
	gainStep        = 1.05
	// pokeOffset is the pointer travel, in pixels, a single poke stands
	// for.
	pokeOffset = 5
	// mouseSensitivity is the force per terminal column of drag, about
	// eight pixels of pointer travel per column.
	mouseSensitivity = 16_000
)

type TickMsg time.Time

// GainsMsg replaces the controller gains from outside the program, for
// instance after the config file was edited.
type GainsMsg struct {
	Gains control.Gains
	Err   error
}

// Model ticks a session once per frame and renders its state.
type Model struct {
	session  *sim.Session
	watchdog metrics.Watchdog
	frame    time.Duration

	initial  control.Gains
	gains    control.Gains
	selected int
	running  bool
	cut      bool

	// mouse pushes the cart while the left button is held.
	mouse  *control.MouseForce
	mouseX float64

	snap     sim.Snapshot
	tilt     []float64
	message  string
	showHelp bool
	reload   <-chan GainsMsg
}

// NewModel builds a live view over s. The session should already carry
// the watchdog as its guard so failures stop the run.
func NewModel(s *sim.Session, w metrics.Watchdog, fps int) Model {
	if fps <= 0 {
		fps = 60
	}
	k, _ := control.GainsFromSlice(s.Gains())
	return Model{
		session:  s,
		watchdog: w,
		frame:    time.Second / time.Duration(fps),
		initial:  k,
		gains:    k,
		running:  true,
		mouse:    control.NewMouseForce(mouseSensitivity),
		snap:     s.Snapshot(),
		tilt:     make([]float64, 0, historyCapacity),
	}
}

// WithReload makes the model listen for gain updates on ch.
func (m Model) WithReload(ch <-chan GainsMsg) Model {
	m.reload = ch
	return m
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.frame, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func waitForReload(ch <-chan GainsMsg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.tick(), waitForReload(m.reload))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "tab":
			m.selected = (m.selected + 1) % len(m.gains)
		case "up", "k":
			m.adjustGain(gainStep)
		case "down", "j":
			m.adjustGain(1 / gainStep)
		case "0":
			m.setGains(m.initial)
			m.message = "gains restored"
		case "left", "h":
			m.session.Disturb(control.PokeImpulse(-pokeOffset))
		case "right", "l":
			m.session.Disturb(control.PokeImpulse(pokeOffset))
		case "?":
			m.showHelp = !m.showHelp
		}
	case tea.MouseMsg:
		m.handleMouse(msg)
	case GainsMsg:
		if msg.Err != nil {
			m.message = "reload: " + msg.Err.Error()
		} else {
			m.setGains(msg.Gains)
			m.message = "gains reloaded"
		}
		return m, waitForReload(m.reload)
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return
		}
		m.mouseX = float64(msg.X)
		m.mouse.Move(m.mouseX)
		m.mouse.Engage(true)
	case tea.MouseActionMotion:
		m.mouseX = float64(msg.X)
	case tea.MouseActionRelease:
		m.mouse.Engage(false)
		m.session.Push(0)
	}
}

func (m *Model) step() {
	if m.mouse.Engaged() {
		m.mouse.Move(m.mouseX)
		m.session.Push(m.mouse.Manual().Value)
	}
	m.snap = m.session.Tick()
	if m.snap.Phase != sim.Stepping {
		return
	}

	m.tilt = append(m.tilt, m.snap.Tilt()*180/math.Pi)
	if len(m.tilt) > historyCapacity {
		m.tilt = m.tilt[1:]
	}

	if v := m.watchdog.Evaluate(m.snap.X); v.CutControl && !m.cut {
		m.cut = true
		m.session.SetGains(control.Gains{})
		m.message = "control cut"
	}
}

func (m *Model) adjustGain(factor float64) {
	k := m.gains
	k[m.selected] *= factor
	m.setGains(k)
}

// setGains records k as the operator's choice. While control is cut the
// session keeps zero gains until the next reset.
func (m *Model) setGains(k control.Gains) {
	m.gains = k
	if !m.cut {
		m.session.SetGains(k)
	}
}

func (m *Model) reset() {
	m.mouse.Engage(false)
	m.session.Reset()
	m.session.SetGains(m.gains)
	m.cut = false
	m.tilt = m.tilt[:0]
	m.snap = m.session.Snapshot()
	m.message = ""
}

// Gains returns the gains the operator selected.
func (m Model) Gains() control.Gains { return m.gains }

func (m Model) Running() bool { return m.running }

func (m Model) status() string {
	switch {
	case m.snap.Phase == sim.Failed:
		return statusFailed.Render("FAILED: " + m.snap.Reason)
	case m.snap.Phase == sim.Complete:
		return statusPaused.Render("COMPLETE")
	case m.cut:
		return statusFailed.Render("CONTROL CUT")
	case !m.running:
		return statusPaused.Render("PAUSED")
	default:
		return statusRunning.Render("RUNNING")
	}
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("CONE BALANCER") + "\n")
	s.WriteString(m.status() + "\n")
	if m.message != "" {
		s.WriteString(valueStyle.Render(m.message) + "\n")
	}

	if len(m.tilt) > 1 {
		chart := asciigraph.Plot(m.tilt, asciigraph.Height(6), asciigraph.Width(50), asciigraph.Precision(2), asciigraph.Caption("tilt (deg)"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	snap := m.snap
	row := func(label, value string) {
		s.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.2fs", snap.T))
	row("Position", fmt.Sprintf("%+.4f m", snap.Position()))
	row("Velocity", fmt.Sprintf("%+.4f m/s", snap.Velocity()))
	row("Tilt", fmt.Sprintf("%+.3f°", snap.Tilt()*180/math.Pi))
	row("Tilt rate", fmt.Sprintf("%+.4f rad/s", snap.TiltRate()))
	row("Force", fmt.Sprintf("%+.2f", snap.Force))
	if n := m.session.SimLength(); n > 0 {
		row("Progress", ProgressBar(float64(snap.Step)/float64(n), 20))
	}

	var side strings.Builder
	side.WriteString("GAINS\n")
	for i, k := range m.gains {
		line := fmt.Sprintf("k%d %12.1f", i+1, k)
		if i == m.selected {
			side.WriteString(activeParamStyle.Render("> "+line) + "\n")
		} else {
			side.WriteString("  " + labelStyle.Render(line) + "\n")
		}
	}
	side.WriteString("\nPOLES\n")
	side.WriteString(m.poleHUD())

	help := "SP:Pause R:Reset Q:Quit\nTab:Gain ↑↓:Tune 0:Restore\n←→:Poke Drag:Push ?:Help"
	s.WriteString(helpStyle.Render(help))

	view := lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(s.String()), panelStyle.Render(side.String()))
	if m.showHelp {
		return helpOverlay + "\n" + view
	}
	return view
}

func (m Model) poleHUD() string {
	ps, c, err := m.session.Poles()
	if err != nil {
		return poleUnstable.Render(err.Error()) + "\n"
	}
	var b strings.Builder
	for _, p := range ps {
		b.WriteString(poleStyle(c.Classify(p)).Render(p.String()) + "\n")
	}
	worst := c.Worst(ps)
	b.WriteString(poleStyle(worst).Render(strings.ToUpper(worst.String())))
	if worst == poles.Stable {
		b.WriteString(valueStyle.Render(fmt.Sprintf("  margin %.3f", c.AxisOffset-poles.SpectralAbscissa(ps))))
	}
	return b.String() + "\n"
}

const helpOverlay = `
╔══════════════════════════════════════╗
║           KEYBOARD SHORTCUTS         ║
╠══════════════════════════════════════╣
║  Space    - Pause/Resume             ║
║  R        - Reset to initial state   ║
║  Q        - Quit                     ║
║  Tab      - Select gain              ║
║  Up/K     - Increase gain (+5%)      ║
║  Down/J   - Decrease gain (-5%)      ║
║  0        - Restore starting gains   ║
║  Left/H   - Poke ball left           ║
║  Right/L  - Poke ball right          ║
║  Drag     - Push cart with the mouse ║
║  ?        - Toggle this help         ║
╚══════════════════════════════════════╝`
