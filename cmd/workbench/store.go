package main

import (
	"fmt"

	"workbench/pkg/store"
)

// openStore resolves paths and opens the job store. Callers own Close.
func openStore() (*store.Store, *Paths, error) {
	paths, err := ResolvePaths()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve paths: %w", err)
	}
	st, err := store.Open(paths.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return st, paths, nil
}
