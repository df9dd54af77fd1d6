// cmd/schemecheck validates scheme documents before they are deployed.
//
// Phase 1 checks every file against the document schema. Phase 2 resolves
// each screen headlessly against empty in-memory stores, which catches
// dependency cycles and unknown screens.
//
// Usage: schemecheck [-stores db,memory] file.json|dir ...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bdlm/log"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/scheme"
	"github.com/matthewbaird/bindery/internal/screen"
	"github.com/matthewbaird/bindery/internal/store"
)

func main() {
	stores := flag.String("stores", "db,memory", "comma-separated identifiers bound to empty stores")
	flag.Parse()
	log.SetFormatter(&log.TextFormatter{ForceTTY: true})
	level, _ := log.ParseLevel("warn")
	log.SetLevel(level)

	files, err := collect(flag.Args())
	if err != nil {
		log.Fatalf("schemecheck: %v", err)
	}
	if len(files) == 0 {
		log.Fatal("schemecheck: no scheme documents given")
	}

	failed := 0
	fmt.Printf("Phase 1: Validating %d documents...\n", len(files))
	docs := map[string]*scheme.Document{}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err == nil {
			docs[f], err = scheme.Parse(data)
		}
		if err != nil {
			fmt.Printf("  %s: %v\n", f, err)
			failed++
		}
	}

	fmt.Println("Phase 2: Resolving screens...")
	for _, f := range files {
		doc, ok := docs[f]
		if !ok {
			continue
		}
		for _, id := range doc.ScreenIDs() {
			if err := resolve(doc, id, strings.Split(*stores, ",")); err != nil {
				fmt.Printf("  %s/%s: %v\n", f, id, err)
				failed++
			}
		}
	}

	if failed > 0 {
		fmt.Printf("\nschemecheck: %d problems\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nschemecheck: OK")
}

// collect expands directories to the *.json files they contain.
func collect(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "*.json"))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

func resolve(doc *scheme.Document, id string, stores []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v", r)
		}
	}()
	s := screen.New(id, doc, screen.Options{})
	for _, name := range stores {
		if name = strings.TrimSpace(name); name != "" {
			s.Provide(name, store.NewMemory())
		}
	}
	defer s.Close()
	return s.Load(context.Background())
}
