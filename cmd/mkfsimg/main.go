// Command mkfsimg packs the regular files of one or more directories into a
// read-only file system image that codeos can boot from.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"

	"codeos/kernel/fs"
	"codeos/userland/bin"
)

var (
	outFlag     = flag.String("o", "fs.img", "output image path")
	bundledFlag = flag.Bool("bundled", true, "include the rtc device, the bundled programs and the bundled files")
	verboseFlag = flag.Bool("v", false, "list every file added to the image")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: mkfsimg [flags] [dir ...]\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	b := fs.NewBuilder()
	if *bundledFlag {
		if err := bin.Populate(b); err != nil {
			log.Fatalf("adding bundled files: %v", err)
		}
	} else if err := b.AddDevice("rtc", fs.TypeRTC); err != nil {
		log.Fatal(err)
	}

	for _, dir := range flag.Args() {
		if err := addDir(b, dir); err != nil {
			log.Fatal(err)
		}
	}

	img := b.Bytes()
	if err := os.WriteFile(*outFlag, img, 0o644); err != nil {
		log.Fatal(err)
	}
	log.WithFields(log.Fields{"image": *outFlag, "size": len(img)}).Info("image written")
}

// addDir adds every regular file in dir. Subdirectories are skipped since
// the image has a single flat directory.
func addDir(b *fs.Builder, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}

		if kerr := b.AddFile(entry.Name(), data); kerr != nil {
			return fmt.Errorf("%s: %s", entry.Name(), kerr.Message)
		}

		if *verboseFlag {
			log.WithFields(log.Fields{"file": entry.Name(), "size": len(data)}).Info("added")
		}
	}
	return nil
}
