package campaign

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/campkeeper/campkeeper/internal/blobstore"
)

const (
	BundleVersion = 1

	ExportFull   = "full"
	ExportPlayer = "player"
)

// Bundle is the on-disk export format. CampaignData stays raw until merge
// time: a partial bundle's key presence matters (an absent section must not
// be confused with an empty one).
type Bundle struct {
	Version      int                `json:"version"`
	ExportType   string             `json:"exportType"`
	ExportedAt   string             `json:"exportedAt"`
	CampaignData json.RawMessage    `json:"campaignData"`
	FileBlobs    []blobstore.Record `json:"fileBlobs"`
}

//go:embed bundle_schema.json
var bundleSchemaJSON []byte

var (
	bundleSchemaOnce sync.Once
	bundleSchema     *jsonschema.Schema
	bundleSchemaErr  error
)

func compiledBundleSchema() (*jsonschema.Schema, error) {
	bundleSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(bundleSchemaJSON))
		if err != nil {
			bundleSchemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("bundle.schema.json", doc); err != nil {
			bundleSchemaErr = err
			return
		}
		bundleSchema, bundleSchemaErr = compiler.Compile("bundle.schema.json")
	})
	return bundleSchema, bundleSchemaErr
}

// ParseBundle decodes and validates an export bundle. Anything that fails the
// schema or lacks version/campaignData is rejected here, before any document
// mutation can happen.
func ParseBundle(data []byte) (Bundle, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrBadBundle, err)
	}
	schema, err := compiledBundleSchema()
	if err != nil {
		return Bundle{}, err
	}
	if err := schema.Validate(inst); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrBadBundle, err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("%w: %v", ErrBadBundle, err)
	}
	if b.Version == 0 || len(b.CampaignData) == 0 {
		return Bundle{}, fmt.Errorf("%w: missing version or campaignData", ErrBadBundle)
	}
	if b.ExportType == "" {
		b.ExportType = ExportPlayer
	}
	return b, nil
}

// sequenceSections is the canonical list of entity sections merged by id
// during import, and the iteration order entities are appended in.
var sequenceSections = []string{
	"tales",
	"stories",
	"files",
	"characters",
	"npcs",
	"locations",
	"quests",
	"icNotes",
	"oocNotes",
	"dmNotes",
	"sessionSummaries",
	"gallery",
	"activity",
}

// MergeBundle merges an import bundle into local and returns the merged
// document. Local entities are never modified or removed; incoming entities
// whose id already exists in the target section are silently skipped. The
// resources and rules object sections are shallow-merged key-by-key with
// incoming keys winning, and only for full bundles; a player-scoped bundle
// never touches DM-controlled scalars. Campaign settings are never imported.
// On error the local document is returned untouched.
func MergeBundle(local Document, b Bundle) (Document, error) {
	var frag Document
	if err := json.Unmarshal(b.CampaignData, &frag); err != nil {
		return local, fmt.Errorf("%w: %v", ErrBadBundle, err)
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(b.CampaignData, &present); err != nil {
		return local, fmt.Errorf("%w: %v", ErrBadBundle, err)
	}

	merged := local.Clone()
	merged.Normalize()
	for _, section := range sequenceSections {
		mergeSequence(&merged, &frag, section)
	}

	if b.ExportType == ExportFull {
		if raw, ok := present["resources"]; ok {
			// Unmarshalling over the existing value only overwrites the keys
			// the bundle carries.
			if err := json.Unmarshal(raw, &merged.Resources); err != nil {
				return local, fmt.Errorf("%w: resources: %v", ErrBadBundle, err)
			}
		}
		if raw, ok := present["rules"]; ok {
			if err := json.Unmarshal(raw, &merged.Rules); err != nil {
				return local, fmt.Errorf("%w: rules: %v", ErrBadBundle, err)
			}
		}
	}

	merged.Normalize()
	return merged, nil
}

func mergeSequence(dst, src *Document, section string) {
	switch section {
	case "tales":
		dst.Tales = appendMissing(dst.Tales, src.Tales, func(t Tale) int64 { return t.ID })
	case "stories":
		dst.Stories = appendMissing(dst.Stories, src.Stories, func(s Story) int64 { return s.ID })
	case "files":
		dst.Files = appendMissing(dst.Files, src.Files, func(f FileRef) int64 { return f.ID })
	case "characters":
		dst.Characters = appendMissing(dst.Characters, src.Characters, func(c Character) int64 { return c.ID })
	case "npcs":
		dst.NPCs = appendMissing(dst.NPCs, src.NPCs, func(n NPC) int64 { return n.ID })
	case "locations":
		dst.Locations = appendMissing(dst.Locations, src.Locations, func(l Location) int64 { return l.ID })
	case "quests":
		dst.Quests = appendMissing(dst.Quests, src.Quests, func(q Quest) int64 { return q.ID })
	case "icNotes":
		dst.ICNotes = appendMissing(dst.ICNotes, src.ICNotes, func(n Note) int64 { return n.ID })
	case "oocNotes":
		dst.OOCNotes = appendMissing(dst.OOCNotes, src.OOCNotes, func(n Note) int64 { return n.ID })
	case "dmNotes":
		dst.DMNotes = appendMissing(dst.DMNotes, src.DMNotes, func(n Note) int64 { return n.ID })
	case "sessionSummaries":
		dst.SessionSummaries = appendMissing(dst.SessionSummaries, src.SessionSummaries, func(s SessionSummary) int64 { return s.ID })
	case "gallery":
		dst.Gallery = appendMissing(dst.Gallery, src.Gallery, func(g GalleryImage) int64 { return g.ID })
	case "activity":
		dst.Activity = appendMissing(dst.Activity, src.Activity, func(a ActivityEntry) int64 { return a.ID })
	}
}

func appendMissing[T any](existing, incoming []T, id func(T) int64) []T {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[int64]bool, len(existing))
	for _, item := range existing {
		seen[id(item)] = true
	}
	for _, item := range incoming {
		if seen[id(item)] {
			continue
		}
		seen[id(item)] = true
		existing = append(existing, item)
	}
	return existing
}

// NewFullBundle packages the entire document plus the blob sidecar.
func NewFullBundle(doc Document, blobs []blobstore.Record, now time.Time) (Bundle, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Version:      BundleVersion,
		ExportType:   ExportFull,
		ExportedAt:   now.UTC().Format(time.RFC3339),
		CampaignData: data,
		FileBlobs:    blobs,
	}, nil
}

// playerData is the player-scoped export surface. DM-only sections (dmNotes,
// rules, npc internals, campaign settings) are deliberately absent.
type playerData struct {
	Tales   []Tale    `json:"tales"`
	Files   []FileRef `json:"files"`
	Stories []Story   `json:"stories"`
}

// NewPlayerBundle packages only the player-visible sections.
func NewPlayerBundle(doc Document, blobs []blobstore.Record, now time.Time) (Bundle, error) {
	doc.Normalize()
	data, err := json.Marshal(playerData{
		Tales:   doc.Tales,
		Files:   doc.Files,
		Stories: doc.Stories,
	})
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{
		Version:      BundleVersion,
		ExportType:   ExportPlayer,
		ExportedAt:   now.UTC().Format(time.RFC3339),
		CampaignData: data,
		FileBlobs:    blobs,
	}, nil
}
