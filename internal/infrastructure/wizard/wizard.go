package wizard

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/defectctl/internal/domain"
)

type (
	wizardState int

	initWizardModel struct {
		state     wizardState
		def       domain.PillarDefinition
		order     []string
		slaBucket string
		slaLimit  int
		cursor    int
		confirmed bool
		aborted   bool
	}
)

const (
	stateIntro wizardState = iota
	stateEdit
	stateConfirm
)

const maxSLALimit = 20

// Run lets the user reorder the buckets of def and tune its SLA. It
// returns the edited definition and whether the user confirmed it.
func Run(def domain.PillarDefinition, stdout io.Writer, stdin io.Reader) (domain.PillarDefinition, bool, error) {
	model := newInitWizardModel(def)
	program := tea.NewProgram(model, tea.WithInput(stdin), tea.WithOutput(stdout))
	res, err := program.Run()
	if err != nil {
		return def, false, err
	}
	finalModel, ok := res.(*initWizardModel)
	if !ok {
		return def, false, fmt.Errorf("unexpected wizard state")
	}
	if finalModel.aborted || !finalModel.confirmed {
		return def, false, nil
	}
	return finalModel.toDefinition(), true, nil
}

func newInitWizardModel(def domain.PillarDefinition) *initWizardModel {
	m := &initWizardModel{
		state:     stateIntro,
		def:       def,
		order:     append([]string(nil), def.Order...),
		slaBucket: domain.DefaultSLABucket,
		slaLimit:  domain.DefaultSLALimit,
	}
	if def.SLA != nil {
		m.slaBucket = string(def.SLA.Bucket)
		m.slaLimit = def.SLA.Limit
	}
	return m
}

func (m *initWizardModel) Init() tea.Cmd {
	return nil
}

func (m *initWizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q":
		m.aborted = true
		return m, tea.Quit
	case "enter":
		switch m.state {
		case stateIntro:
			m.state = stateEdit
		case stateEdit:
			m.state = stateConfirm
		case stateConfirm:
			m.confirmed = true
			return m, tea.Quit
		}
	case "esc":
		if m.state == stateConfirm {
			m.state = stateEdit
		}
	}
	if m.state != stateEdit {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "shift+up", "K":
		m.moveBucket(-1)
	case "shift+down", "J":
		m.moveBucket(1)
	case "left", "-":
		m.adjustLimit(-1)
	case "right", "+":
		m.adjustLimit(1)
	case "s", " ":
		m.selectSLABucket()
	}
	return m, nil
}

func (m *initWizardModel) View() string {
	switch m.state {
	case stateIntro:
		return m.viewIntro()
	case stateEdit:
		return m.viewEdit()
	case stateConfirm:
		return m.viewConfirm()
	default:
		return ""
	}
}

// Row 0 is the SLA limit; rows 1..n are the buckets.
func (m *initWizardModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor > len(m.order) {
		m.cursor = len(m.order)
	}
}

func (m *initWizardModel) moveBucket(delta int) {
	i := m.cursor - 1
	j := i + delta
	if i < 0 || j < 0 || j >= len(m.order) {
		return
	}
	m.order[i], m.order[j] = m.order[j], m.order[i]
	m.cursor = j + 1
}

func (m *initWizardModel) adjustLimit(delta int) {
	if m.cursor != 0 {
		return
	}
	m.slaLimit += delta
	if m.slaLimit < 0 {
		m.slaLimit = 0
	}
	if m.slaLimit > maxSLALimit {
		m.slaLimit = maxSLALimit
	}
}

func (m *initWizardModel) selectSLABucket() {
	if m.cursor == 0 {
		return
	}
	m.slaBucket = m.order[m.cursor-1]
}

func (m *initWizardModel) viewIntro() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\ndefectctl init wizard\n\n")
	fmt.Fprintf(&b, "Pillar %q has %d buckets. The wizard helps you order them from first to last\n", m.def.Name, len(m.order))
	fmt.Fprintf(&b, "stage of the workflow; a move back to an earlier bucket counts as a bounce.\n\n")
	fmt.Fprintf(&b, "Press Enter to continue, or Ctrl+C to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewEdit() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReview bucket order and SLA\n\n")
	fmt.Fprintf(&b, "Use ↑/↓ to move, shift+↑/↓ to reorder, ←/→ to change the limit, s to pick the SLA bucket.\n")
	indicator := "  "
	if m.cursor == 0 {
		indicator = "> "
	}
	fmt.Fprintf(&b, "%sSLA: at most %d entries into %q\n\n", indicator, m.slaLimit, m.slaBucket)
	fmt.Fprintf(&b, "Buckets:\n")
	for idx, name := range m.order {
		prefix := "  "
		if m.cursor == idx+1 {
			prefix = "> "
		}
		mark := ""
		if name == m.slaBucket {
			mark = " (sla)"
		}
		fmt.Fprintf(&b, "%s%d. %s%s  [%s]\n", prefix, idx+1, name, mark, strings.Join(m.def.States[name], ", "))
	}
	fmt.Fprintf(&b, "\nEnter to continue, q to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewConfirm() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReady to write configuration\n\n")
	fmt.Fprintf(&b, "Pillar: %s\n", m.def.Name)
	fmt.Fprintf(&b, "Order: %s\n", strings.Join(m.order, " > "))
	if m.slaLimit > 0 {
		fmt.Fprintf(&b, "SLA: at most %d entries into %q\n", m.slaLimit, m.slaBucket)
	} else {
		fmt.Fprintf(&b, "SLA: disabled\n")
	}
	fmt.Fprintf(&b, "\nPress Enter to save, Esc to go back, q to cancel.\n")
	return b.String()
}

func (m *initWizardModel) toDefinition() domain.PillarDefinition {
	def := m.def
	def.Order = append([]string(nil), m.order...)
	def.SLA = &domain.SLA{Bucket: domain.Bucket(m.slaBucket), Limit: m.slaLimit}
	return def
}
