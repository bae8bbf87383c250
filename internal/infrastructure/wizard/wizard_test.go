package wizard

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/defectctl/internal/domain"
)

func TestInitWizardModelReordersBuckets(t *testing.T) {
	model := newInitWizardModel(minimalDefinition())

	model.cursor = 3 // "review"
	model.moveBucket(-1)
	if got := strings.Join(model.order, ","); got != "new,review,open,closed" {
		t.Fatalf("unexpected order %s", got)
	}
	if model.cursor != 2 {
		t.Fatalf("expected cursor to follow bucket, got %d", model.cursor)
	}

	model.cursor = 1
	model.moveBucket(-1)
	if model.order[0] != "new" {
		t.Fatalf("first bucket must not move past the top")
	}
	model.cursor = 0
	model.moveBucket(1)
	if model.order[0] != "new" {
		t.Fatalf("SLA row must not move buckets")
	}
}

func TestInitWizardModelAdjustsSLA(t *testing.T) {
	model := newInitWizardModel(minimalDefinition())
	if model.slaLimit != domain.DefaultSLALimit || model.slaBucket != domain.DefaultSLABucket {
		t.Fatalf("expected default SLA, got %d %s", model.slaLimit, model.slaBucket)
	}

	model.adjustLimit(3)
	if model.slaLimit != 5 {
		t.Fatalf("expected limit 5, got %d", model.slaLimit)
	}
	model.adjustLimit(-10)
	if model.slaLimit != 0 {
		t.Fatalf("expected limit clamped to 0, got %d", model.slaLimit)
	}
	model.adjustLimit(maxSLALimit + 5)
	if model.slaLimit != maxSLALimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxSLALimit, model.slaLimit)
	}

	model.cursor = 3
	model.selectSLABucket()
	if model.slaBucket != "review" {
		t.Fatalf("expected SLA bucket review, got %s", model.slaBucket)
	}
	model.adjustLimit(1)
	if model.slaLimit != maxSLALimit {
		t.Fatalf("limit must only change on the SLA row")
	}
}

func TestInitWizardModelDefinitionOutput(t *testing.T) {
	model := newInitWizardModel(minimalDefinition())
	model.cursor = 4
	model.moveBucket(-1)

	def := model.toDefinition()
	if got := strings.Join(def.Order, ","); got != "new,open,closed,review" {
		t.Fatalf("unexpected order %s", got)
	}
	if def.SLA == nil || def.SLA.Limit != domain.DefaultSLALimit {
		t.Fatalf("expected SLA in definition, got %+v", def.SLA)
	}
	if len(def.States) != 4 || def.Name != "example" {
		t.Fatalf("expected the rest of the definition preserved")
	}
}

func TestRunInitWizardCompletes(t *testing.T) {
	var out bytes.Buffer
	stdin := strings.NewReader("\r\r\r")
	def, confirmed, err := Run(minimalDefinition(), &out, stdin)
	if err != nil {
		t.Fatalf("wizard error: %v", err)
	}
	if !confirmed {
		t.Fatalf("expected wizard to confirm")
	}
	if strings.Join(def.Order, ",") != "new,open,review,closed" {
		t.Fatalf("expected order preserved, got %v", def.Order)
	}
	if _, err := domain.NewPillar(def); err != nil {
		t.Fatalf("wizard output must validate: %v", err)
	}
}

func TestInitWizardMoveCursor(t *testing.T) {
	model := newInitWizardModel(minimalDefinition())
	model.moveCursor(1)
	if model.cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", model.cursor)
	}
	model.moveCursor(-5)
	if model.cursor != 0 {
		t.Fatalf("expected cursor 0, got %d", model.cursor)
	}
	model.moveCursor(len(model.order) + 5)
	if model.cursor != len(model.order) {
		t.Fatalf("expected cursor at max %d, got %d", len(model.order), model.cursor)
	}
}

func TestInitWizardUpdateTransitions(t *testing.T) {
	model := newInitWizardModel(minimalDefinition())
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if model.state != stateEdit {
		t.Fatalf("expected edit state, got %d", model.state)
	}
	model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model.Update(tea.KeyMsg{Type: tea.KeyDown})
	model.Update(tea.KeyMsg{Type: tea.KeyShiftDown})
	if model.order[2] != "open" {
		t.Fatalf("expected open moved down, got %v", model.order)
	}
	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if model.slaBucket != "open" {
		t.Fatalf("expected SLA bucket open, got %s", model.slaBucket)
	}
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if model.state != stateConfirm {
		t.Fatalf("expected confirm state, got %d", model.state)
	}
	model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if model.state != stateEdit {
		t.Fatalf("expected edit state on esc, got %d", model.state)
	}
	model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !model.aborted {
		t.Fatalf("expected q to abort")
	}
}

func TestInitWizardViews(t *testing.T) {
	model := newInitWizardModel(minimalDefinition())
	if !strings.Contains(model.View(), `Pillar "example" has 4 buckets`) {
		t.Fatalf("unexpected intro view:\n%s", model.View())
	}
	model.state = stateEdit
	if !strings.Contains(model.View(), "2. open (sla)  [Open, In Progress]") {
		t.Fatalf("unexpected edit view:\n%s", model.View())
	}
	model.state = stateConfirm
	model.slaLimit = 0
	if !strings.Contains(model.View(), "SLA: disabled") {
		t.Fatalf("unexpected confirm view:\n%s", model.View())
	}
}

func minimalDefinition() domain.PillarDefinition {
	return domain.PillarDefinition{
		Name:     "example",
		URL:      "https://jira.example.com",
		Projects: []string{"PROJ"},
		States: map[string][]string{
			"new":    {"New"},
			"open":   {"Open", "In Progress"},
			"review": {"Code Review"},
			"closed": {"Closed"},
		},
		Order: []string{"new", "open", "review", "closed"},
	}
}
