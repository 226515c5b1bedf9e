// Package campaign holds the campaign document model and the operations that
// mutate it: the document store, the activity feed, the encounter state
// machine and the import/export bundle engine. The document is a single JSON
// aggregate persisted wholesale on every change; nothing in this package
// performs partial writes.
package campaign

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrSaveFailed   = errors.New("save failed")
	ErrBadBundle    = errors.New("invalid bundle")
)

// Document is the root aggregate. Sequence sections hold entities with unique
// ids; object sections are scalar settings merged key-by-key against the
// defaults template on load.
type Document struct {
	Campaign         Settings         `json:"campaign"`
	Characters       []Character      `json:"characters"`
	Stories          []Story          `json:"stories"`
	ICNotes          []Note           `json:"icNotes"`
	OOCNotes         []Note           `json:"oocNotes"`
	NPCs             []NPC            `json:"npcs"`
	Locations        []Location       `json:"locations"`
	Quests           []Quest          `json:"quests"`
	Gallery          []GalleryImage   `json:"gallery"`
	Files            []FileRef        `json:"files"`
	Rules            map[string]string `json:"rules"`
	Tales            []Tale           `json:"tales"`
	Resources        Resources        `json:"resources"`
	DMNotes          []Note           `json:"dmNotes"`
	SessionSummaries []SessionSummary `json:"sessionSummaries"`
	Encounter        Encounter        `json:"encounter"`
	Activity         []ActivityEntry  `json:"activity"`
}

// Settings is the scalar campaign configuration. DM-controlled: imports never
// overwrite it.
type Settings struct {
	Name            string `json:"name"`
	CurrentChapter  string `json:"currentChapter"`
	SessionNumber   int    `json:"sessionNumber"`
	CurrentLocation string `json:"currentLocation"`
	PartyLevel      int    `json:"partyLevel"`
	CurrentXP       int    `json:"currentXP"`
	TotalGold       int    `json:"totalGold"`
	SessionsPlayed  int    `json:"sessionsPlayed"`
	NextSessionDate string `json:"nextSessionDate"`
	SessionNotes    string `json:"sessionNotes"`
	Synopsis        string `json:"synopsis"`
	CampaignImage   string `json:"campaignImage"`
}

const (
	TypePC  = "pc"
	TypeNPC = "npc"
)

// Character is a roster entry (PC or NPC). Initiative holds the modifier as
// entered ("+1", "-2"); ParseInitMod extracts the numeric value.
type Character struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	Name       string `json:"name"`
	RaceClass  string `json:"raceClass"`
	Player     string `json:"player,omitempty"`
	Level      int    `json:"level"`
	CurrentHP  int    `json:"currentHp"`
	MaxHP      int    `json:"maxHp"`
	AC         int    `json:"ac"`
	Initiative string `json:"initiative,omitempty"`
	Portrait   string `json:"portrait,omitempty"`
	Background string `json:"background,omitempty"`
	Deceased   bool   `json:"deceased,omitempty"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

type Story struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Author    string `json:"author,omitempty"`
	Date      string `json:"date,omitempty"`
	Content   string `json:"content"`
	WordCount int    `json:"wordCount,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type Note struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Session string   `json:"session,omitempty"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
}

type NPC struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role,omitempty"`
	Location    string `json:"location,omitempty"`
	Status      string `json:"status,omitempty"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type Location struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Region      string `json:"region,omitempty"`
	Description string `json:"description,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

type Quest struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	Giver       string   `json:"giver,omitempty"`
	Description string   `json:"description,omitempty"`
	Rewards     []string `json:"rewards,omitempty"`
	Progress    int      `json:"progress"`
	Status      string   `json:"status"`
}

type GalleryImage struct {
	ID        int64  `json:"id"`
	Title     string `json:"title,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Data      string `json:"data,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// FileRef is the document-side record of an attachment. The payload itself
// lives in the blob store; Data is only populated transiently by legacy
// documents that still embed file contents (see Store.MigrateEmbeddedFiles).
type FileRef struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	RawSize    int64  `json:"rawSize,omitempty"`
	Type       string `json:"type,omitempty"`
	Data       string `json:"data,omitempty"`
	UploadedAt string `json:"uploadedAt,omitempty"`
}

type Tale struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Author    string `json:"author,omitempty"`
	Session   string `json:"session,omitempty"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type Resources struct {
	Gold      int    `json:"gold"`
	GoldNotes string `json:"goldNotes"`
	Inventory string `json:"inventory"`
	Property  string `json:"property"`
	Contacts  string `json:"contacts"`
}

type SessionSummary struct {
	ID        int64  `json:"id"`
	Session   string `json:"session,omitempty"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt,omitempty"`
}

type ActivityEntry struct {
	ID   int64  `json:"id"`
	Icon string `json:"icon"`
	Text string `json:"text"`
	Time string `json:"time"`
}

// Encounter is the combat state. Combatant order is the turn order.
// ActivePCs nil means "every PC is eligible" (the pre-toggle default);
// an empty, non-nil slice means none are. ActiveNPCs defaults to none.
type Encounter struct {
	Combatants  []Combatant `json:"combatants"`
	Round       int         `json:"round"`
	CurrentTurn int         `json:"currentTurn"`
	ActivePCs   []int64     `json:"activePCs"`
	ActiveNPCs  []int64     `json:"activeNPCs,omitempty"`
}

// Combatant ids are generated fresh per encounter and are unrelated to roster
// ids; PCID/NPCID carry the roster back-reference, mutually exclusive, both
// nil for manually added combatants.
type Combatant struct {
	ID        string     `json:"id"`
	PCID      *int64     `json:"pcId,omitempty"`
	NPCID     *int64     `json:"npcId,omitempty"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	RaceClass string     `json:"raceClass,omitempty"`
	Init      Initiative `json:"initiative"`
	CurrentHP int        `json:"currentHp"`
	MaxHP     int        `json:"maxHp"`
	AC        int        `json:"ac"`
	InitMod   int        `json:"initMod"`
	Saves     string     `json:"saves,omitempty"`
	Skills    string     `json:"skills,omitempty"`
	Spells    string     `json:"spells,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// ParseInitMod reads a roster initiative modifier such as "+1" or "-2".
// Unparseable values count as +0.
func ParseInitMod(s string) int {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "+"))
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

// ValidateCharacter enforces the required-field checks applied before a
// roster entry is created. This is the one path that surfaces a validation
// error to the caller before any save happens.
func ValidateCharacter(c Character) error {
	if strings.TrimSpace(c.Name) == "" {
		return errInvalid("character name is required")
	}
	if c.Type != TypePC && c.Type != TypeNPC {
		return errInvalid("character type must be pc or npc")
	}
	if c.MaxHP < 0 || c.CurrentHP < 0 {
		return errInvalid("hit points must not be negative")
	}
	if c.CurrentHP > c.MaxHP {
		return errInvalid("current hp exceeds max hp")
	}
	return nil
}

func errInvalid(msg string) error {
	return &ValidationError{Message: msg}
}

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Clone returns a deep copy. Sequence sections are copied element-wise;
// element-level slices and pointers are duplicated so mutating the copy never
// aliases the original.
func (d Document) Clone() Document {
	out := d
	out.Characters = append([]Character(nil), d.Characters...)
	out.Stories = append([]Story(nil), d.Stories...)
	out.ICNotes = cloneNotes(d.ICNotes)
	out.OOCNotes = cloneNotes(d.OOCNotes)
	out.NPCs = append([]NPC(nil), d.NPCs...)
	out.Locations = append([]Location(nil), d.Locations...)
	out.Quests = make([]Quest, len(d.Quests))
	for i, q := range d.Quests {
		q.Rewards = append([]string(nil), q.Rewards...)
		out.Quests[i] = q
	}
	out.Gallery = append([]GalleryImage(nil), d.Gallery...)
	out.Files = append([]FileRef(nil), d.Files...)
	out.Rules = copyStringMap(d.Rules)
	out.Tales = append([]Tale(nil), d.Tales...)
	out.DMNotes = cloneNotes(d.DMNotes)
	out.SessionSummaries = append([]SessionSummary(nil), d.SessionSummaries...)
	out.Encounter = d.Encounter.clone()
	out.Activity = append([]ActivityEntry(nil), d.Activity...)
	return out
}

func cloneNotes(notes []Note) []Note {
	if notes == nil {
		return nil
	}
	out := make([]Note, len(notes))
	for i, n := range notes {
		n.Tags = append([]string(nil), n.Tags...)
		out[i] = n
	}
	return out
}

func (e Encounter) clone() Encounter {
	out := e
	out.Combatants = make([]Combatant, len(e.Combatants))
	for i, c := range e.Combatants {
		if c.PCID != nil {
			v := *c.PCID
			c.PCID = &v
		}
		if c.NPCID != nil {
			v := *c.NPCID
			c.NPCID = &v
		}
		out.Combatants[i] = c
	}
	if e.ActivePCs != nil {
		out.ActivePCs = append([]int64(nil), e.ActivePCs...)
	}
	if e.ActiveNPCs != nil {
		out.ActiveNPCs = append([]int64(nil), e.ActiveNPCs...)
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Normalize repairs a document decoded from an external source: nil sequence
// sections become empty, the rules map is allocated, and encounter counters
// are forced back into range.
func (d *Document) Normalize() {
	if d.Characters == nil {
		d.Characters = []Character{}
	}
	if d.Stories == nil {
		d.Stories = []Story{}
	}
	if d.ICNotes == nil {
		d.ICNotes = []Note{}
	}
	if d.OOCNotes == nil {
		d.OOCNotes = []Note{}
	}
	if d.NPCs == nil {
		d.NPCs = []NPC{}
	}
	if d.Locations == nil {
		d.Locations = []Location{}
	}
	if d.Quests == nil {
		d.Quests = []Quest{}
	}
	if d.Gallery == nil {
		d.Gallery = []GalleryImage{}
	}
	if d.Files == nil {
		d.Files = []FileRef{}
	}
	if d.Rules == nil {
		d.Rules = map[string]string{}
	}
	if d.Tales == nil {
		d.Tales = []Tale{}
	}
	if d.DMNotes == nil {
		d.DMNotes = []Note{}
	}
	if d.SessionSummaries == nil {
		d.SessionSummaries = []SessionSummary{}
	}
	if d.Activity == nil {
		d.Activity = []ActivityEntry{}
	}
	if d.Encounter.Combatants == nil {
		d.Encounter.Combatants = []Combatant{}
	}
	if d.Encounter.Round < 1 {
		d.Encounter.Round = 1
	}
	if d.Encounter.CurrentTurn < 0 {
		d.Encounter.CurrentTurn = 0
	}
	if n := len(d.Encounter.Combatants); n > 0 && d.Encounter.CurrentTurn >= n {
		d.Encounter.CurrentTurn = 0
	}
}

// DecodeDocument parses a persisted document against the defaults template.
// Sequence sections present in the payload replace the template's content
// wholesale; absent sections keep it. Object sections merge key-by-key:
// decoding the raw section over the populated default only overwrites the
// keys the payload carries.
func DecodeDocument(data []byte) (Document, error) {
	var present map[string]json.RawMessage
	if err := json.Unmarshal(data, &present); err != nil {
		return Document{}, err
	}
	// Decode into a zero document. Decoding over the populated defaults would
	// reuse the template's slice elements, so a saved entity would inherit
	// every template field it omitted.
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}

	defaults := DefaultDocument()
	doc.Campaign = defaults.Campaign
	if raw, ok := present["campaign"]; ok {
		if err := json.Unmarshal(raw, &doc.Campaign); err != nil {
			return Document{}, err
		}
	}
	doc.Resources = defaults.Resources
	if raw, ok := present["resources"]; ok {
		if err := json.Unmarshal(raw, &doc.Resources); err != nil {
			return Document{}, err
		}
	}
	doc.Encounter = defaults.Encounter
	if raw, ok := present["encounter"]; ok {
		if err := json.Unmarshal(raw, &doc.Encounter); err != nil {
			return Document{}, err
		}
	}

	if _, ok := present["characters"]; !ok {
		doc.Characters = defaults.Characters
	}
	if _, ok := present["stories"]; !ok {
		doc.Stories = defaults.Stories
	}
	if _, ok := present["icNotes"]; !ok {
		doc.ICNotes = defaults.ICNotes
	}
	if _, ok := present["oocNotes"]; !ok {
		doc.OOCNotes = defaults.OOCNotes
	}
	if _, ok := present["npcs"]; !ok {
		doc.NPCs = defaults.NPCs
	}
	if _, ok := present["locations"]; !ok {
		doc.Locations = defaults.Locations
	}
	if _, ok := present["quests"]; !ok {
		doc.Quests = defaults.Quests
	}
	if _, ok := present["gallery"]; !ok {
		doc.Gallery = defaults.Gallery
	}
	if _, ok := present["files"]; !ok {
		doc.Files = defaults.Files
	}
	if _, ok := present["rules"]; !ok {
		doc.Rules = defaults.Rules
	}
	if _, ok := present["tales"]; !ok {
		doc.Tales = defaults.Tales
	}
	if _, ok := present["dmNotes"]; !ok {
		doc.DMNotes = defaults.DMNotes
	}
	if _, ok := present["sessionSummaries"]; !ok {
		doc.SessionSummaries = defaults.SessionSummaries
	}
	if _, ok := present["activity"]; !ok {
		doc.Activity = defaults.Activity
	}

	doc.Normalize()
	return doc, nil
}
