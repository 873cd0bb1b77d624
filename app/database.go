package main

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// database is the physical accessor over one SQLite-compatible file: it
// knows the page size and how to fetch any page by its 1-based on-disk
// number. It never mutates the file and holds it open read-only for the
// lifetime of a query, per the resource discipline in the concurrency
// design.
type database struct {
	file      *os.File
	resources *ResourceManager
	config    *DatabaseConfig
	pageSize  int
	sem       chan struct{}

	cacheMu    sync.Mutex
	pageCache  map[int]*page
	cacheOrder []int // insertion order, for FIFO eviction once PageCacheSize is hit
}

// openDatabase opens path read-only, parses the 100-byte file header to
// recover the page size, and prepares the database for page reads.
// ValidationNone skips the page-size sanity check entirely; ValidationStrict
// additionally requires the file length to be an exact multiple of the
// page size. EnableProfiling turns on per-page-read timing and a
// pages-cached summary logged at Close, via log.Printf.
func openDatabase(path string, opts ...DatabaseOption) (*database, error) {
	cfg := DefaultDatabaseConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, NewDatabaseError("open_database", err, map[string]interface{}{"path": path})
	}

	resources := NewResourceManager()
	resources.Add(f)

	header := make([]byte, 100)
	if _, err := f.ReadAt(header, 0); err != nil {
		resources.Close()
		return nil, NewDatabaseError("read_file_header", ErrTruncatedInput, map[string]interface{}{"path": path})
	}

	pageSize := int(header[16])<<8 | int(header[17])
	if pageSize == 1 {
		// A stored value of 1 means 65536, the one page size that
		// doesn't fit in the header's 16-bit field.
		pageSize = 65536
	}

	if cfg.ValidationMode != ValidationNone {
		if pageSize < 512 || pageSize > 65536 || pageSize&(pageSize-1) != 0 {
			resources.Close()
			return nil, NewDatabaseError("validate_page_size", ErrMalformedPage, map[string]interface{}{"page_size": pageSize})
		}
	}
	if cfg.ValidationMode == ValidationStrict {
		if info, statErr := f.Stat(); statErr == nil && info.Size()%int64(pageSize) != 0 {
			resources.Close()
			return nil, NewDatabaseError("validate_file_size", ErrMalformedPage, map[string]interface{}{
				"file_size": info.Size(),
				"page_size": pageSize,
			})
		}
	}

	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	db := &database{
		file:      f,
		resources: resources,
		config:    cfg,
		pageSize:  pageSize,
		sem:       make(chan struct{}, maxConcurrency),
		pageCache: make(map[int]*page),
	}

	if cfg.EnableProfiling {
		resources.AddCleaner(func() error {
			log.Printf("sqlite-go-reader: closing database, %d pages cached", len(db.pageCache))
			return nil
		})
	}

	return db, nil
}

// Close releases the underlying file handle.
func (db *database) Close() error {
	return db.resources.Close()
}

// readPage fetches page number (1-based) and returns its decoded
// header plus cell-pointer access, serving it from the page cache when
// PageCacheSize allows. Reading past end-of-file is an ErrTruncatedInput
// error for every caller; a right-most pointer that points past the last
// page is not treated as an empty page. A ReadTimeout > 0 bounds how long the
// underlying disk read may take before the page is reported unreadable.
func (db *database) readPage(number int) (*page, error) {
	if number < 1 {
		return nil, NewDatabaseError("read_page", ErrMalformedPage, map[string]interface{}{"page": number})
	}

	if p, ok := db.cachedPage(number); ok {
		return p, nil
	}

	start := time.Now()
	offset := int64(number-1) * int64(db.pageSize)
	buf := make([]byte, db.pageSize)

	type readResult struct {
		n   int
		err error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		n, err := db.file.ReadAt(buf, offset)
		resultCh <- readResult{n, err}
	}()

	var res readResult
	if db.config.ReadTimeout > 0 {
		select {
		case res = <-resultCh:
		case <-time.After(time.Duration(db.config.ReadTimeout) * time.Millisecond):
			return nil, NewDatabaseError("read_page", ErrTruncatedInput, map[string]interface{}{
				"page":       number,
				"timeout_ms": db.config.ReadTimeout,
			})
		}
	} else {
		res = <-resultCh
	}
	if res.err != nil && res.n != db.pageSize {
		return nil, NewDatabaseError("read_page", ErrTruncatedInput, map[string]interface{}{
			"page":   number,
			"offset": offset,
			"err":    res.err,
		})
	}

	p, err := parsePage(buf, number)
	if err != nil {
		return nil, err
	}
	if db.config.ValidationMode == ValidationStrict {
		if _, err := p.cellPointers(); err != nil {
			return nil, err
		}
	}

	db.cachePage(number, p)
	if db.config.EnableProfiling {
		log.Printf("sqlite-go-reader: read page %d (%d bytes) in %s", number, db.pageSize, time.Since(start))
	}
	return p, nil
}

// cachedPage returns a previously-parsed page if PageCacheSize allows
// caching and the page is resident.
func (db *database) cachedPage(number int) (*page, bool) {
	if db.config.PageCacheSize <= 0 {
		return nil, false
	}
	db.cacheMu.Lock()
	defer db.cacheMu.Unlock()
	p, ok := db.pageCache[number]
	return p, ok
}

// cachePage stores a parsed page, evicting the oldest entry (FIFO) once
// PageCacheSize is reached.
func (db *database) cachePage(number int, p *page) {
	if db.config.PageCacheSize <= 0 {
		return
	}
	db.cacheMu.Lock()
	defer db.cacheMu.Unlock()
	if _, exists := db.pageCache[number]; exists {
		db.pageCache[number] = p
		return
	}
	if len(db.cacheOrder) >= db.config.PageCacheSize {
		oldest := db.cacheOrder[0]
		db.cacheOrder = db.cacheOrder[1:]
		delete(db.pageCache, oldest)
	}
	db.cacheOrder = append(db.cacheOrder, number)
	db.pageCache[number] = p
}

// readPageCells reads every cell pointer from a page and runs decode
// for each concurrently, bounded by the database's configured
// MaxConcurrency — independent cells on an already-resident page have
// no ordering dependency between their decodes, only the position in
// the returned slice matters.
func readPageCells[T any](db *database, p *page, decode func(cellOffset int) (T, error)) ([]T, error) {
	pointers, err := p.cellPointers()
	if err != nil {
		return nil, err
	}

	results := make([]T, len(pointers))
	errs := make([]error, len(pointers))
	done := make(chan int, len(pointers))

	for i, offset := range pointers {
		db.sem <- struct{}{}
		go func(i, offset int) {
			defer func() { <-db.sem }()
			results[i], errs[i] = decode(offset)
			done <- i
		}(i, offset)
	}
	for range pointers {
		<-done
	}

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("decode cell %d on page %d: %w", i, p.number, err)
		}
	}
	return results, nil
}
