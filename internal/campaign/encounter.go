package campaign

import "sort"

// EncounterPhase is the coarse state of the combat tracker: no combatants,
// combatants present but not everyone has rolled, or a turn order underway.
// There is no finished phase; an encounter only ends by explicit clear.
type EncounterPhase string

const (
	PhaseEmpty      EncounterPhase = "empty"
	PhaseAssembling EncounterPhase = "assembling"
	PhaseActive     EncounterPhase = "active"
)

func (e Encounter) Phase() EncounterPhase {
	if len(e.Combatants) == 0 {
		return PhaseEmpty
	}
	for _, c := range e.Combatants {
		if !c.Init.Rolled {
			return PhaseAssembling
		}
	}
	return PhaseActive
}

// eligiblePCs resolves the ActivePCs set. A nil set means every PC fights
// (documents saved before eligibility toggles existed); an empty set means
// none do.
func (d *Document) eligiblePCs() map[int64]bool {
	if d.Encounter.ActivePCs == nil {
		all := map[int64]bool{}
		for _, c := range d.Characters {
			if c.Type == TypePC {
				all[c.ID] = true
			}
		}
		return all
	}
	set := make(map[int64]bool, len(d.Encounter.ActivePCs))
	for _, id := range d.Encounter.ActivePCs {
		set[id] = true
	}
	return set
}

func (d *Document) eligibleNPCs() map[int64]bool {
	set := make(map[int64]bool, len(d.Encounter.ActiveNPCs))
	for _, id := range d.Encounter.ActiveNPCs {
		set[id] = true
	}
	return set
}

// PopulateEncounter rebuilds the combatant list from the roster: one
// combatant per eligible, non-deceased entry, PCs first, all unrolled.
// Round and turn reset. The previous combatant list is discarded.
func (d *Document) PopulateEncounter() {
	pcSet := d.eligiblePCs()
	npcSet := d.eligibleNPCs()

	combatants := []Combatant{}
	for _, c := range d.Characters {
		if c.Type != TypePC || c.Deceased || !pcSet[c.ID] {
			continue
		}
		id := c.ID
		combatants = append(combatants, Combatant{
			ID:        NewCombatantID(),
			PCID:      &id,
			Name:      c.Name,
			Type:      TypePC,
			RaceClass: c.RaceClass,
			Init:      Unrolled,
			CurrentHP: c.CurrentHP,
			MaxHP:     c.MaxHP,
			AC:        c.AC,
			InitMod:   ParseInitMod(c.Initiative),
		})
	}
	for _, c := range d.Characters {
		if c.Type != TypeNPC || c.Deceased || !npcSet[c.ID] {
			continue
		}
		id := c.ID
		hp := c.CurrentHP
		maxHP := c.MaxHP
		if maxHP <= 0 {
			maxHP = 10
			hp = 10
		}
		ac := c.AC
		if ac <= 0 {
			ac = 10
		}
		combatants = append(combatants, Combatant{
			ID:        NewCombatantID(),
			NPCID:     &id,
			Name:      c.Name,
			Type:      TypeNPC,
			RaceClass: c.RaceClass,
			Init:      Unrolled,
			CurrentHP: hp,
			MaxHP:     maxHP,
			AC:        ac,
			InitMod:   ParseInitMod(c.Initiative),
		})
	}

	d.Encounter.Combatants = combatants
	d.Encounter.Round = 1
	d.Encounter.CurrentTurn = 0
}

// AddCombatant appends a manually created combatant (no roster
// back-reference). Round and turn are untouched. HP is clamped on the way in
// and a missing id is filled.
func (d *Document) AddCombatant(c Combatant) {
	if c.ID == "" {
		c.ID = NewCombatantID()
	}
	if c.Type == "" {
		c.Type = TypeNPC
	}
	if c.MaxHP < 0 {
		c.MaxHP = 0
	}
	c.CurrentHP = clamp(c.CurrentHP, 0, c.MaxHP)
	d.Encounter.Combatants = append(d.Encounter.Combatants, c)
}

func (d *Document) findCombatant(id string) *Combatant {
	for i := range d.Encounter.Combatants {
		if d.Encounter.Combatants[i].ID == id {
			return &d.Encounter.Combatants[i]
		}
	}
	return nil
}

// SetInitiative records a rolled value for one combatant. Unknown ids are a
// no-op and report false.
func (d *Document) SetInitiative(combatantID string, init Initiative) bool {
	c := d.findCombatant(combatantID)
	if c == nil {
		return false
	}
	c.Init = init
	return true
}

// SortByInitiative stable-sorts combatants descending by rolled value.
// Unrolled combatants sort to the end; a rolled 0 stays ahead of them. Ties
// keep their prior relative order. The turn pointer resets to the top.
func (d *Document) SortByInitiative() {
	sort.SliceStable(d.Encounter.Combatants, func(i, j int) bool {
		a := d.Encounter.Combatants[i].Init
		b := d.Encounter.Combatants[j].Init
		if a.Rolled != b.Rolled {
			return a.Rolled
		}
		if !a.Rolled {
			return false
		}
		return a.Value > b.Value
	})
	d.Encounter.CurrentTurn = 0
}

// NextTurn advances the turn pointer, wrapping to the top and bumping the
// round counter at the end of the order. No-op with no combatants.
func (d *Document) NextTurn() {
	n := len(d.Encounter.Combatants)
	if n == 0 {
		return
	}
	d.Encounter.CurrentTurn++
	if d.Encounter.CurrentTurn >= n {
		d.Encounter.CurrentTurn = 0
		d.Encounter.Round++
	}
}

// AdjustHP applies a delta to one combatant's current HP, clamped to
// [0, maxHp]. A combatant at 0 stays in the turn order; dropping is the DM's
// call, not the tracker's.
func (d *Document) AdjustHP(combatantID string, delta int) bool {
	c := d.findCombatant(combatantID)
	if c == nil {
		return false
	}
	c.CurrentHP = clamp(c.CurrentHP+delta, 0, c.MaxHP)
	return true
}

// RemoveCombatant deletes by id. The turn pointer is corrected
// deterministically: removing someone earlier in the order decrements it so
// the same combatant keeps the turn; removing the current combatant hands the
// turn to the next one in place, wrapping to the top without advancing the
// round when the last slot was removed.
func (d *Document) RemoveCombatant(combatantID string) bool {
	idx := -1
	for i := range d.Encounter.Combatants {
		if d.Encounter.Combatants[i].ID == combatantID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	d.Encounter.Combatants = append(d.Encounter.Combatants[:idx], d.Encounter.Combatants[idx+1:]...)
	if idx < d.Encounter.CurrentTurn {
		d.Encounter.CurrentTurn--
	}
	if d.Encounter.CurrentTurn >= len(d.Encounter.Combatants) {
		d.Encounter.CurrentTurn = 0
	}
	return true
}

// ClearEncounter resets combat to the empty phase. Only the PC eligibility
// set survives, so the next populate starts from the same party selection.
func (d *Document) ClearEncounter() {
	d.Encounter = Encounter{
		Combatants:  []Combatant{},
		Round:       1,
		CurrentTurn: 0,
		ActivePCs:   d.Encounter.ActivePCs,
	}
}

// TogglePCInEncounter flips a PC's eligibility. Deactivating also removes the
// combatant that roster entry spawned, if it is in the current fight. A nil
// eligibility set is first materialized as "all PCs".
func (d *Document) TogglePCInEncounter(pcID int64) {
	if d.Encounter.ActivePCs == nil {
		var all []int64
		for _, c := range d.Characters {
			if c.Type == TypePC {
				all = append(all, c.ID)
			}
		}
		if all == nil {
			all = []int64{}
		}
		d.Encounter.ActivePCs = all
	}
	if removeID(&d.Encounter.ActivePCs, pcID) {
		d.Encounter.Combatants = dropByRosterRef(d.Encounter.Combatants, func(c Combatant) bool {
			return c.PCID != nil && *c.PCID == pcID
		})
		return
	}
	d.Encounter.ActivePCs = append(d.Encounter.ActivePCs, pcID)
}

// ToggleNPCInEncounter flips an NPC's eligibility, mirroring the PC toggle.
func (d *Document) ToggleNPCInEncounter(npcID int64) {
	if d.Encounter.ActiveNPCs == nil {
		d.Encounter.ActiveNPCs = []int64{}
	}
	if removeID(&d.Encounter.ActiveNPCs, npcID) {
		d.Encounter.Combatants = dropByRosterRef(d.Encounter.Combatants, func(c Combatant) bool {
			return c.NPCID != nil && *c.NPCID == npcID
		})
		return
	}
	d.Encounter.ActiveNPCs = append(d.Encounter.ActiveNPCs, npcID)
}

func removeID(ids *[]int64, id int64) bool {
	for i, v := range *ids {
		if v == id {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return true
		}
	}
	return false
}

func dropByRosterRef(combatants []Combatant, match func(Combatant) bool) []Combatant {
	out := combatants[:0]
	for _, c := range combatants {
		if !match(c) {
			out = append(out, c)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
