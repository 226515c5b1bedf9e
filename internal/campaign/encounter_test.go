package campaign

import "testing"

func rosterDocument() Document {
	doc := DefaultDocument()
	doc.Characters = []Character{
		{ID: 10, Type: TypePC, Name: "Aria", CurrentHP: 24, MaxHP: 30, AC: 16, Initiative: "+2"},
		{ID: 11, Type: TypePC, Name: "Borin", CurrentHP: 18, MaxHP: 18, AC: 14},
		{ID: 12, Type: TypePC, Name: "Cael", Deceased: true, CurrentHP: 0, MaxHP: 20},
		{ID: 20, Type: TypeNPC, Name: "Goblin Chief", CurrentHP: 15, MaxHP: 15, AC: 13},
	}
	doc.Encounter.ActivePCs = nil
	doc.Encounter.ActiveNPCs = []int64{20}
	return doc
}

func TestPopulateEncounterSkipsDeceasedAndOrdersPCsFirst(t *testing.T) {
	doc := rosterDocument()
	doc.PopulateEncounter()

	combatants := doc.Encounter.Combatants
	if len(combatants) != 3 {
		t.Fatalf("expected 3 combatants, got %d", len(combatants))
	}
	if combatants[0].Name != "Aria" || combatants[1].Name != "Borin" || combatants[2].Name != "Goblin Chief" {
		t.Fatalf("unexpected order: %s, %s, %s", combatants[0].Name, combatants[1].Name, combatants[2].Name)
	}
	for _, c := range combatants {
		if c.Init.Rolled {
			t.Fatalf("combatant %s should start unrolled", c.Name)
		}
		if c.ID == "" {
			t.Fatalf("combatant %s has no id", c.Name)
		}
	}
	if combatants[0].InitMod != 2 {
		t.Fatalf("expected init mod 2 for Aria, got %d", combatants[0].InitMod)
	}
	if doc.Encounter.Round != 1 || doc.Encounter.CurrentTurn != 0 {
		t.Fatalf("expected fresh round state, got round=%d turn=%d", doc.Encounter.Round, doc.Encounter.CurrentTurn)
	}
}

func TestPopulateEncounterDefaultsNPCStats(t *testing.T) {
	doc := DefaultDocument()
	doc.Characters = []Character{
		{ID: 30, Type: TypeNPC, Name: "Bandit"},
	}
	doc.Encounter.ActivePCs = []int64{}
	doc.Encounter.ActiveNPCs = []int64{30}
	doc.PopulateEncounter()

	if len(doc.Encounter.Combatants) != 1 {
		t.Fatalf("expected 1 combatant, got %d", len(doc.Encounter.Combatants))
	}
	c := doc.Encounter.Combatants[0]
	if c.CurrentHP != 10 || c.MaxHP != 10 || c.AC != 10 {
		t.Fatalf("expected default stats 10/10/10, got %d/%d/%d", c.CurrentHP, c.MaxHP, c.AC)
	}
}

func TestSortByInitiativeZeroBeatsUnrolled(t *testing.T) {
	doc := DefaultDocument()
	doc.Encounter.Combatants = []Combatant{
		{ID: "a", Name: "Waiting", Init: Unrolled},
		{ID: "b", Name: "Zero", Init: Rolled(0)},
		{ID: "c", Name: "High", Init: Rolled(18)},
		{ID: "d", Name: "AlsoWaiting", Init: Unrolled},
	}
	doc.Encounter.CurrentTurn = 2
	doc.SortByInitiative()

	got := []string{}
	for _, c := range doc.Encounter.Combatants {
		got = append(got, c.Name)
	}
	want := []string{"High", "Zero", "Waiting", "AlsoWaiting"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("position %d: expected %s, got %s (full order %v)", i, want[i], got[i], got)
		}
	}
	if doc.Encounter.CurrentTurn != 0 {
		t.Fatalf("expected turn pointer reset, got %d", doc.Encounter.CurrentTurn)
	}
}

func TestNextTurnWrapsAndIncrementsRound(t *testing.T) {
	doc := rosterDocument()
	doc.PopulateEncounter()
	for i, c := range doc.Encounter.Combatants {
		doc.SetInitiative(c.ID, Rolled(20-i))
	}
	doc.SortByInitiative()

	doc.NextTurn()
	doc.NextTurn()
	if doc.Encounter.Round != 1 {
		t.Fatalf("round advanced early: %d", doc.Encounter.Round)
	}
	doc.NextTurn()
	if doc.Encounter.CurrentTurn != 0 {
		t.Fatalf("expected wrap to turn 0, got %d", doc.Encounter.CurrentTurn)
	}
	if doc.Encounter.Round != 2 {
		t.Fatalf("expected round 2 after wrap, got %d", doc.Encounter.Round)
	}
}

func TestNextTurnWithoutCombatantsIsNoop(t *testing.T) {
	doc := DefaultDocument()
	doc.NextTurn()
	if doc.Encounter.Round != 1 || doc.Encounter.CurrentTurn != 0 {
		t.Fatalf("empty encounter advanced: round=%d turn=%d", doc.Encounter.Round, doc.Encounter.CurrentTurn)
	}
}

func TestAdjustHPClampsToRange(t *testing.T) {
	doc := DefaultDocument()
	doc.Encounter.Combatants = []Combatant{
		{ID: "a", Name: "Aria", CurrentHP: 5, MaxHP: 30},
	}
	if !doc.AdjustHP("a", -50) {
		t.Fatalf("adjust reported missing combatant")
	}
	if hp := doc.Encounter.Combatants[0].CurrentHP; hp != 0 {
		t.Fatalf("expected hp clamped to 0, got %d", hp)
	}
	doc.AdjustHP("a", 500)
	if hp := doc.Encounter.Combatants[0].CurrentHP; hp != 30 {
		t.Fatalf("expected hp clamped to max 30, got %d", hp)
	}
	if doc.AdjustHP("missing", 1) {
		t.Fatalf("adjust accepted unknown combatant")
	}
}

func TestRemoveCombatantKeepsTurnOnSameCombatant(t *testing.T) {
	doc := DefaultDocument()
	doc.Encounter.Combatants = []Combatant{
		{ID: "a", Name: "First"},
		{ID: "b", Name: "Second"},
		{ID: "c", Name: "Third"},
	}
	doc.Encounter.CurrentTurn = 2

	if !doc.RemoveCombatant("a") {
		t.Fatalf("remove reported missing combatant")
	}
	if doc.Encounter.CurrentTurn != 1 {
		t.Fatalf("expected turn pointer 1, got %d", doc.Encounter.CurrentTurn)
	}
	if doc.Encounter.Combatants[doc.Encounter.CurrentTurn].ID != "c" {
		t.Fatalf("turn moved off the active combatant")
	}

	// Removing the last slot while it holds the turn wraps to the top.
	if !doc.RemoveCombatant("c") {
		t.Fatalf("remove reported missing combatant")
	}
	if doc.Encounter.CurrentTurn != 0 {
		t.Fatalf("expected wrap to 0, got %d", doc.Encounter.CurrentTurn)
	}
}

func TestClearEncounterPreservesActivePCs(t *testing.T) {
	doc := rosterDocument()
	doc.Encounter.ActivePCs = []int64{10}
	doc.PopulateEncounter()
	doc.Encounter.Round = 4

	doc.ClearEncounter()
	if len(doc.Encounter.Combatants) != 0 {
		t.Fatalf("combatants survived clear")
	}
	if doc.Encounter.Round != 1 || doc.Encounter.CurrentTurn != 0 {
		t.Fatalf("round state survived clear: round=%d turn=%d", doc.Encounter.Round, doc.Encounter.CurrentTurn)
	}
	if len(doc.Encounter.ActivePCs) != 1 || doc.Encounter.ActivePCs[0] != 10 {
		t.Fatalf("active PC selection lost: %v", doc.Encounter.ActivePCs)
	}
	if doc.Encounter.ActiveNPCs != nil {
		t.Fatalf("active NPC selection survived clear: %v", doc.Encounter.ActiveNPCs)
	}
}

func TestTogglePCMaterializesAllThenRemoves(t *testing.T) {
	doc := rosterDocument()
	doc.Encounter.ActivePCs = nil

	doc.TogglePCInEncounter(10)
	// nil meant "all PCs"; toggling 10 off must leave the other living PCs.
	want := map[int64]bool{11: true, 12: true}
	if len(doc.Encounter.ActivePCs) != 2 {
		t.Fatalf("expected 2 remaining PCs, got %v", doc.Encounter.ActivePCs)
	}
	for _, id := range doc.Encounter.ActivePCs {
		if !want[id] {
			t.Fatalf("unexpected PC %d in %v", id, doc.Encounter.ActivePCs)
		}
	}

	doc.TogglePCInEncounter(10)
	if len(doc.Encounter.ActivePCs) != 3 {
		t.Fatalf("expected PC re-added, got %v", doc.Encounter.ActivePCs)
	}
}

func TestToggleRemovesSpawnedCombatant(t *testing.T) {
	doc := rosterDocument()
	doc.PopulateEncounter()
	before := len(doc.Encounter.Combatants)

	doc.ToggleNPCInEncounter(20)
	if len(doc.Encounter.ActiveNPCs) != 0 {
		t.Fatalf("NPC still eligible: %v", doc.Encounter.ActiveNPCs)
	}
	if len(doc.Encounter.Combatants) != before-1 {
		t.Fatalf("spawned combatant survived deactivation")
	}
	for _, c := range doc.Encounter.Combatants {
		if c.NPCID != nil && *c.NPCID == 20 {
			t.Fatalf("combatant for NPC 20 still present")
		}
	}
}

func TestEncounterPhase(t *testing.T) {
	doc := DefaultDocument()
	if got := doc.Encounter.Phase(); got != PhaseEmpty {
		t.Fatalf("expected empty phase, got %s", got)
	}
	doc.Encounter.Combatants = []Combatant{{ID: "a", Init: Unrolled}}
	if got := doc.Encounter.Phase(); got != PhaseAssembling {
		t.Fatalf("expected assembling phase, got %s", got)
	}
	doc.Encounter.Combatants[0].Init = Rolled(0)
	if got := doc.Encounter.Phase(); got != PhaseActive {
		t.Fatalf("expected active phase, got %s", got)
	}
}

func TestPopulateAndActScenario(t *testing.T) {
	doc := rosterDocument()
	doc.PopulateEncounter()

	byName := func(name string) string {
		for _, c := range doc.Encounter.Combatants {
			if c.Name == name {
				return c.ID
			}
		}
		t.Fatalf("no combatant named %s", name)
		return ""
	}
	doc.SetInitiative(byName("Aria"), Rolled(15))
	doc.SetInitiative(byName("Borin"), Rolled(9))
	doc.SetInitiative(byName("Goblin Chief"), Rolled(21))
	doc.SortByInitiative()

	order := []string{}
	for _, c := range doc.Encounter.Combatants {
		order = append(order, c.Name)
	}
	want := []string{"Goblin Chief", "Aria", "Borin"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}

	doc.AdjustHP(byName("Goblin Chief"), -7)
	if hp := doc.Encounter.Combatants[0].CurrentHP; hp != 8 {
		t.Fatalf("expected goblin at 8 hp, got %d", hp)
	}
	doc.NextTurn()
	if doc.Encounter.Combatants[doc.Encounter.CurrentTurn].Name != "Aria" {
		t.Fatalf("expected Aria's turn")
	}
}
