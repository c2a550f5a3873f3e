package main

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/sudorandom/flow-map/pkg/utils"
)

// CacheCmd lists, and optionally evicts, the cached asset copies the viewer
// falls back on when the asset host is down.
type CacheCmd struct {
	Dir  string   `arg:"" help:"Cache directory given to flow-viewer --cache-dir." type:"existingdir"`
	Drop []string `help:"Evict these asset paths before listing." placeholder:"PATH"`
}

func (c *CacheCmd) Run(g *Globals) error {
	cache, err := utils.OpenDiskCache(c.Dir, 0)
	if err != nil {
		return fmt.Errorf("open cache %s: %w", c.Dir, err)
	}
	defer cache.Close()
	return listCache(os.Stdout, cache, c.Drop)
}

func listCache(w io.Writer, cache *utils.DiskCache, drop []string) error {
	for _, key := range drop {
		if err := cache.Delete(key); err != nil {
			return fmt.Errorf("evict %s: %w", key, err)
		}
		fmt.Fprintf(w, "evicted %s\n", key)
	}

	var keys []string
	sizes := map[string]int{}
	err := cache.ForEach(func(key string, v []byte) error {
		keys = append(keys, key)
		sizes[key] = len(v)
		return nil
	})
	if err != nil {
		return err
	}
	slices.Sort(keys)
	total := 0
	for _, k := range keys {
		fmt.Fprintf(w, "  %-48s %8d bytes\n", k, sizes[k])
		total += sizes[k]
	}
	fmt.Fprint(w, rule)
	fmt.Fprintf(w, "%d cached assets, %d bytes\n", len(keys), total)
	return nil
}
