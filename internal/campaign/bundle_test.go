package campaign

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/campkeeper/campkeeper/internal/blobstore"
)

func TestParseBundleRejectsInvalidPayloads(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{broken`},
		{"missing version", `{"campaignData":{}}`},
		{"missing campaignData", `{"version":1}`},
		{"bad export type", `{"version":1,"exportType":"partial","campaignData":{}}`},
		{"campaignData wrong shape", `{"version":1,"campaignData":[]}`},
	}
	for _, tc := range cases {
		if _, err := ParseBundle([]byte(tc.data)); !errors.Is(err, ErrBadBundle) {
			t.Fatalf("%s: expected ErrBadBundle, got %v", tc.name, err)
		}
	}
}

func TestParseBundleAcceptsMinimalBundle(t *testing.T) {
	b, err := ParseBundle([]byte(`{"version":1,"exportType":"full","campaignData":{"tales":[]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b.Version != 1 || b.ExportType != ExportFull {
		t.Fatalf("unexpected bundle: %+v", b)
	}
}

func TestMergeBundleSkipsCollidingIDs(t *testing.T) {
	local := DefaultDocument()
	local.Tales = []Tale{{ID: 1, Title: "Local Tale", Content: "ours"}}
	local.Stories = []Story{{ID: 5, Title: "Local Story", Content: "ours"}}

	data, _ := json.Marshal(map[string]any{
		"tales": []Tale{
			{ID: 1, Title: "Imported Collision", Content: "theirs"},
			{ID: 2, Title: "Imported New", Content: "theirs"},
		},
		"stories": []Story{{ID: 6, Title: "Imported Story", Content: "theirs"}},
	})
	b := Bundle{Version: 1, ExportType: ExportPlayer, CampaignData: data}

	merged, err := MergeBundle(local, b)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Tales) != 2 {
		t.Fatalf("expected 2 tales, got %d", len(merged.Tales))
	}
	if merged.Tales[0].Title != "Local Tale" {
		t.Fatalf("local tale overwritten: %s", merged.Tales[0].Title)
	}
	if merged.Tales[1].Title != "Imported New" {
		t.Fatalf("new tale not appended: %s", merged.Tales[1].Title)
	}
	if len(merged.Stories) != 2 {
		t.Fatalf("expected 2 stories, got %d", len(merged.Stories))
	}

	seen := map[int64]bool{}
	for _, tale := range merged.Tales {
		if seen[tale.ID] {
			t.Fatalf("duplicate tale id %d after merge", tale.ID)
		}
		seen[tale.ID] = true
	}
}

func TestMergeBundleNeverTouchesCampaignSettings(t *testing.T) {
	local := DefaultDocument()
	local.Campaign.Name = "Ours"

	data, _ := json.Marshal(map[string]any{
		"campaign": map[string]any{"name": "Theirs", "sessionNumber": 99},
	})
	b := Bundle{Version: 1, ExportType: ExportFull, CampaignData: data}

	merged, err := MergeBundle(local, b)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Campaign.Name != "Ours" {
		t.Fatalf("campaign settings overwritten by import: %s", merged.Campaign.Name)
	}
}

func TestMergeBundleResourcesFullOnly(t *testing.T) {
	local := DefaultDocument()
	local.Resources.Gold = 100
	local.Resources.Inventory = "rope, rations"
	local.Rules = map[string]string{"rest": "standard"}

	data, _ := json.Marshal(map[string]any{
		"resources": map[string]any{"gold": 500},
		"rules":     map[string]string{"crit": "double dice"},
	})

	full := Bundle{Version: 1, ExportType: ExportFull, CampaignData: data}
	merged, err := MergeBundle(local, full)
	if err != nil {
		t.Fatalf("merge full: %v", err)
	}
	if merged.Resources.Gold != 500 {
		t.Fatalf("full import did not apply resources: %d", merged.Resources.Gold)
	}
	if merged.Resources.Inventory != "rope, rations" {
		t.Fatalf("absent resources key overwritten: %q", merged.Resources.Inventory)
	}
	if merged.Rules["crit"] != "double dice" || merged.Rules["rest"] != "standard" {
		t.Fatalf("rules not shallow-merged: %v", merged.Rules)
	}

	player := Bundle{Version: 1, ExportType: ExportPlayer, CampaignData: data}
	merged, err = MergeBundle(local, player)
	if err != nil {
		t.Fatalf("merge player: %v", err)
	}
	if merged.Resources.Gold != 100 {
		t.Fatalf("player import touched resources: %d", merged.Resources.Gold)
	}
	if _, ok := merged.Rules["crit"]; ok {
		t.Fatalf("player import touched rules: %v", merged.Rules)
	}
}

func TestMergeBundleLeavesLocalUntouchedOnError(t *testing.T) {
	local := DefaultDocument()
	local.Campaign.Name = "Ours"
	b := Bundle{Version: 1, ExportType: ExportFull, CampaignData: []byte(`{"tales":"not an array"}`)}

	merged, err := MergeBundle(local, b)
	if !errors.Is(err, ErrBadBundle) {
		t.Fatalf("expected ErrBadBundle, got %v", err)
	}
	if merged.Campaign.Name != "Ours" {
		t.Fatalf("error path returned a mutated document")
	}
}

func TestPlayerBundleExcludesDMSections(t *testing.T) {
	doc := DefaultDocument()
	doc.DMNotes = []Note{{ID: 1, Title: "Secret plot", Content: "the duke is a dragon"}}
	doc.Tales = []Tale{{ID: 2, Title: "The Tavern Brawl", Content: "public"}}
	doc.Rules = map[string]string{"rest": "gritty"}

	b, err := NewPlayerBundle(doc, nil, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if b.ExportType != ExportPlayer || b.Version != BundleVersion {
		t.Fatalf("unexpected header: %+v", b)
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(b.CampaignData, &sections); err != nil {
		t.Fatalf("decode campaignData: %v", err)
	}
	for _, forbidden := range []string{"dmNotes", "rules", "campaign", "npcs", "encounter"} {
		if _, ok := sections[forbidden]; ok {
			t.Fatalf("player export leaked %s", forbidden)
		}
	}
	for _, required := range []string{"tales", "files", "stories"} {
		if _, ok := sections[required]; !ok {
			t.Fatalf("player export missing %s", required)
		}
	}

	var tales []Tale
	if err := json.Unmarshal(sections["tales"], &tales); err != nil {
		t.Fatalf("decode tales: %v", err)
	}
	if len(tales) != 1 || tales[0] != doc.Tales[0] {
		t.Fatalf("player export altered tales: %+v", tales)
	}
}

func TestFullBundleRoundTripsThroughParse(t *testing.T) {
	doc := DefaultDocument()
	doc.Tales = []Tale{{ID: 2, Title: "The Tavern Brawl", Content: "public"}}
	blobs := []blobstore.Record{{ID: 9, Name: "map.png", Size: 42, Data: "data:image/png;base64,AAAA"}}

	b, err := NewFullBundle(doc, blobs, time.Now())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParseBundle(raw)
	if err != nil {
		t.Fatalf("reparse of own export failed: %v", err)
	}
	if len(parsed.FileBlobs) != 1 || parsed.FileBlobs[0].Name != "map.png" {
		t.Fatalf("file blobs lost in round trip: %+v", parsed.FileBlobs)
	}

	merged, err := MergeBundle(DefaultDocument(), parsed)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	found := false
	for _, tale := range merged.Tales {
		if tale.Title == "The Tavern Brawl" {
			found = true
		}
	}
	if !found {
		t.Fatalf("exported tale missing after import")
	}
}
