// Command campkeeper-bundle works with export bundles offline:
//
//	campkeeper-bundle export -document campaign.json -blobs campaign-files.db -type player -out bundle.json
//	campkeeper-bundle import -document campaign.json -blobs campaign-files.db -in bundle.json
//
// Import follows the additive merge rules: existing entities are never
// overwritten, colliding ids are skipped, and campaign settings stay local.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/campkeeper/campkeeper/internal/blobstore"
	"github.com/campkeeper/campkeeper/internal/campaign"
)

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		log.Fatalf("usage: campkeeper-bundle <export|import> [flags]")
	}
	var err error
	switch os.Args[1] {
	case "export":
		err = runExport(os.Args[2:])
	case "import":
		err = runImport(os.Args[2:])
	default:
		err = fmt.Errorf("unknown subcommand %q", os.Args[1])
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	documentFile := fs.String("document", "campaign.json", "campaign document file")
	blobFile := fs.String("blobs", "", "attachment database (optional)")
	exportType := fs.String("type", campaign.ExportFull, "full or player")
	outFile := fs.String("out", "", "output file (default stdout)")
	_ = fs.Parse(args)

	if *exportType != campaign.ExportFull && *exportType != campaign.ExportPlayer {
		return fmt.Errorf("type must be full or player")
	}

	store := campaign.NewStore(campaign.StoreOptions{Path: *documentFile})
	doc := store.Get()

	var blobs []blobstore.Record
	if *blobFile != "" {
		bs, err := blobstore.Open(*blobFile)
		if err != nil {
			return err
		}
		defer bs.Close()
		blobs, err = bs.All(context.Background())
		if err != nil {
			return err
		}
	}

	var (
		bundle campaign.Bundle
		err    error
	)
	if *exportType == campaign.ExportFull {
		bundle, err = campaign.NewFullBundle(doc, blobs, time.Now())
	} else {
		bundle, err = campaign.NewPlayerBundle(doc, blobs, time.Now())
	}
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	if *outFile == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(*outFile, data, 0o644)
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	documentFile := fs.String("document", "campaign.json", "campaign document file")
	blobFile := fs.String("blobs", "", "attachment database (optional)")
	inFile := fs.String("in", "", "bundle file to import")
	_ = fs.Parse(args)

	if *inFile == "" {
		return fmt.Errorf("-in is required")
	}
	data, err := os.ReadFile(*inFile)
	if err != nil {
		return err
	}
	bundle, err := campaign.ParseBundle(data)
	if err != nil {
		return err
	}

	store := campaign.NewStore(campaign.StoreOptions{Path: *documentFile})
	merged, err := campaign.MergeBundle(store.Get(), bundle)
	if err != nil {
		return err
	}
	if !store.Save(merged) {
		return campaign.ErrSaveFailed
	}

	if *blobFile != "" && len(bundle.FileBlobs) > 0 {
		bs, err := blobstore.Open(*blobFile)
		if err != nil {
			return err
		}
		defer bs.Close()
		ctx := context.Background()
		for _, rec := range bundle.FileBlobs {
			if _, err := bs.Get(ctx, rec.ID); err == nil {
				continue
			}
			if err := bs.Put(ctx, rec); err != nil {
				return fmt.Errorf("importing blob %d: %w", rec.ID, err)
			}
		}
	}

	log.Printf("imported %s bundle into %s", bundle.ExportType, *documentFile)
	return nil
}
