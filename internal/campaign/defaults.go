package campaign

import "time"

// d20Placeholder is the inline SVG used for roster entries without a portrait.
const d20Placeholder = "data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'%3E%3Crect fill='%231a1a2e' width='100' height='100'/%3E%3Cpolygon points='50,10 85,30 85,70 50,90 15,70 15,30' fill='none' stroke='%23d4af37' stroke-width='2'/%3E%3Ctext x='50' y='58' text-anchor='middle' font-size='20' font-weight='bold' fill='%23d4af37' font-family='serif'%3E20%3C/text%3E%3C/svg%3E"

// DefaultDocument builds the canonical defaults template: a fully populated
// document seeded with the starter campaign content. Every load path merges
// against this, so adding a field here is how schema upgrades reach existing
// saves.
func DefaultDocument() Document {
	now := time.Now().UTC().Format(time.RFC3339)
	return Document{
		Campaign: Settings{
			Name:            "Waterdeep: Dragon Heist",
			CurrentChapter:  "Chapter 1: Along the High Road",
			SessionNumber:   1,
			CurrentLocation: "The High Road",
			PartyLevel:      3,
			CurrentXP:       450,
			SessionsPlayed:  1,
		},
		Characters: []Character{
			{
				ID:         1,
				Type:       TypeNPC,
				Name:       "Krak",
				RaceClass:  "Human Barbarian",
				Level:      3,
				CurrentHP:  35,
				MaxHP:      35,
				AC:         14,
				Initiative: "+1",
				Portrait:   d20Placeholder,
				Background: "<p>Krak is a gruff but kindhearted <strong>caravan leader</strong> who has traversed the Sword Coast countless times. He was <em>devastated</em> by the loss of <strong>Petunia the Ox</strong> during a goblin ambush on the road to Waterdeep, and now frequents the Yawning Portal looking for adventurers who might help him track down the goblins responsible.</p>",
				CreatedAt:  now,
			},
		},
		Stories: []Story{
			{
				ID:        0,
				Title:     "The Gathering Storm",
				Type:      "session",
				Author:    "Dungeon Master",
				Date:      "Session 0",
				Content:   "Five strangers arrive in Waterdeep during the tail end of summer, each drawn by their own reasons to the City of Splendors. Fate - or perhaps something more deliberate - will soon bring them together...",
				WordCount: 1234,
				CreatedAt: now,
			},
		},
		ICNotes: []Note{
			{
				ID:      0,
				Title:   "The Yawning Portal Atmosphere",
				Session: "Session 1",
				Content: "\"The common room buzzes with the usual crowd - adventurers nursing ales and wounds alike. The great well in the center of the room - the entrance to Undermountain itself - seems to pulse with an almost hungry energy tonight...\"",
				Tags:    []string{"atmosphere", "yawning portal"},
			},
		},
		OOCNotes: []Note{
			{
				ID:      0,
				Title:   "Session Planning - Chapter 1",
				Session: "Pre-Session",
				Content: "**Key Beats:**\n- Introduce the party at the Yawning Portal\n- Troll attack from the well\n- Volo's proposition\n- Investigation of Floon's disappearance",
				Tags:    []string{"planning", "chapter 1"},
			},
		},
		NPCs:      []NPC{},
		Locations: []Location{},
		Quests: []Quest{
			{
				ID:          0,
				Name:        "Find Floon Blagmaar",
				Type:        "main",
				Giver:       "Volothamp Geddarm",
				Description: "Volo's friend Floon has gone missing after a night out in the Dock Ward. Find him and return him safely.",
				Rewards:     []string{"100 gp (promised)", "A \"property\" in Waterdeep"},
				Progress:    0,
				Status:      "active",
			},
		},
		Gallery: []GalleryImage{},
		Files:   []FileRef{},
		Rules:   map[string]string{},
		Tales:   []Tale{},
		Resources: Resources{
			Gold:      0,
			GoldNotes: "Track party treasury here",
			Inventory: "<p><em>No shared items yet</em></p>",
			Property:  "<p><em>No properties acquired</em></p>",
			Contacts:  "<p><em>No notable contacts yet</em></p>",
		},
		DMNotes:          []Note{},
		SessionSummaries: []SessionSummary{},
		Encounter: Encounter{
			Combatants:  []Combatant{},
			Round:       1,
			CurrentTurn: 0,
			ActivePCs:   []int64{},
		},
		Activity: []ActivityEntry{
			{
				ID:   0,
				Icon: "🎭",
				Text: "Campaign created - Waterdeep: Dragon Heist begins!",
				Time: now,
			},
		},
	}
}
