package campaign

import "reflect"

// TrackedSections are the sections the reconciliation engine compares when a
// remote snapshot arrives. Rules and files are deliberately absent, matching
// the sync contract: rules ride along with full-document replacement and file
// payloads never leave the blob store.
var TrackedSections = []string{
	"activity",
	"campaign",
	"characters",
	"tales",
	"sessionSummaries",
	"dmNotes",
	"icNotes",
	"oocNotes",
	"encounter",
	"stories",
	"npcs",
	"locations",
	"quests",
	"gallery",
	"resources",
}

// ChangedSections reports which tracked sections differ between the local and
// remote documents, using structural equality over the typed section values.
// String serialization is never compared, so key ordering across environments
// cannot produce false positives. The activity section short-circuits on the
// id of its newest entry before falling back to the structural comparison.
func ChangedSections(local, remote Document) []string {
	var changed []string
	for _, name := range TrackedSections {
		if name == "activity" {
			if latestActivityID(local) != latestActivityID(remote) {
				changed = append(changed, name)
				continue
			}
		}
		if !reflect.DeepEqual(sectionValue(&local, name), sectionValue(&remote, name)) {
			changed = append(changed, name)
		}
	}
	return changed
}

func latestActivityID(d Document) int64 {
	if len(d.Activity) == 0 {
		return 0
	}
	return d.Activity[0].ID
}

func sectionValue(d *Document, name string) any {
	switch name {
	case "activity":
		return d.Activity
	case "campaign":
		return d.Campaign
	case "characters":
		return d.Characters
	case "tales":
		return d.Tales
	case "sessionSummaries":
		return d.SessionSummaries
	case "dmNotes":
		return d.DMNotes
	case "icNotes":
		return d.ICNotes
	case "oocNotes":
		return d.OOCNotes
	case "encounter":
		return d.Encounter
	case "stories":
		return d.Stories
	case "npcs":
		return d.NPCs
	case "locations":
		return d.Locations
	case "quests":
		return d.Quests
	case "gallery":
		return d.Gallery
	case "resources":
		return d.Resources
	}
	return nil
}
