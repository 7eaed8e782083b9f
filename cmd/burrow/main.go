// Package main provides the burrow command line tool: a workload driver and
// a consistency checker for burrow data files.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"

	"github.com/burrowdb/burrow/storage/buffer"
	"github.com/burrowdb/burrow/storage/disk"
	"github.com/burrowdb/burrow/storage/page"
)

const version = "0.1.0"

// CLI defines the command line interface using kong
var CLI struct {
	LogLevel  string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level."`
	LogFormat string `name:"log-format" default:"text" enum:"text,json" help:"Log format."`

	Bench   BenchCmd   `cmd:"" help:"Run a page access workload against the buffer pool."`
	Check   CheckCmd   `cmd:"" help:"Check the pages of a data file."`
	Version VersionCmd `cmd:"" help:"Print version information."`
}

func setupLogger(level, format string) {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lv}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// BenchCmd runs a randomized read/write workload through the buffer pool and
// reports the pool counters afterwards
type BenchCmd struct {
	Dir        string  `help:"Directory for the data file. Empty means in-memory storage." type:"path"`
	Buffers    int     `default:"128" help:"Number of buffers in the pool."`
	Pages      int     `default:"1024" help:"Number of pages in the workload file."`
	Ops        int     `default:"100000" help:"Number of page accesses."`
	DirtyRatio float64 `name:"dirty-ratio" default:"0.2" help:"Fraction of accesses which modify the page."`
	Seed       int64   `default:"1" help:"Seed of the access pattern."`
	Writer     bool    `help:"Run the background writer during the workload."`
}

func (c *BenchCmd) Run() error {
	if c.Pages < 1 {
		return errors.Errorf("number of pages must be at least 1, got %d", c.Pages)
	}
	if c.DirtyRatio < 0 || c.DirtyRatio > 1 {
		return errors.Errorf("dirty ratio must be within [0, 1], got %f", c.DirtyRatio)
	}

	var dm *disk.Manager
	if c.Dir == "" {
		dm = disk.NewMemManager()
	} else {
		var err error
		dm, err = disk.NewManager(c.Dir)
		if err != nil {
			return errors.Wrap(err, "disk.NewManager failed")
		}
	}

	m, err := buffer.NewManager(dm, buffer.Config{NumBuffers: c.Buffers})
	if err != nil {
		return errors.Wrap(err, "buffer.NewManager failed")
	}
	// the name is unique per run so an earlier run's file never collides
	name := fmt.Sprintf("bench-%d", time.Now().UnixNano())
	fileID, err := dm.Create(name)
	if err != nil {
		return errors.Wrap(err, "dm.Create failed")
	}

	slog.Debug("populating the workload file", "pages", c.Pages)
	pageIDs := make([]page.PageID, c.Pages)
	for i := range pageIDs {
		pageID, _, err := m.AllocatePage(fileID)
		if err != nil {
			return errors.Wrap(err, "m.AllocatePage failed")
		}
		if err := m.ReleaseBuffer(fileID, pageID, false); err != nil {
			return errors.Wrap(err, "m.ReleaseBuffer failed")
		}
		pageIDs[i] = pageID
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	if c.Writer {
		bw := buffer.NewBackgroundWriter(m, buffer.DefaultBackgroundWriterConfig())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bw.Run(ctx); err != nil {
				slog.Error("background writer failed", "error", err)
			}
		}()
	}

	rng := rand.New(rand.NewSource(c.Seed))
	begin := time.Now()
	for i := 0; i < c.Ops; i++ {
		pageID := pageIDs[rng.Intn(len(pageIDs))]
		bufID, err := m.ReadBuffer(fileID, pageID)
		if err != nil {
			return errors.Wrapf(err, "m.ReadBuffer failed for page %d", pageID)
		}
		dirty := rng.Float64() < c.DirtyRatio
		if dirty {
			m.GetPage(bufID)[page.HeaderSize] = byte(i)
		}
		if err := m.ReleaseBuffer(fileID, pageID, dirty); err != nil {
			return errors.Wrapf(err, "m.ReleaseBuffer failed for page %d", pageID)
		}
	}
	elapsed := time.Since(begin)

	cancel()
	wg.Wait()
	stats := m.Stats()
	if err := m.Close(); err != nil {
		return errors.Wrap(err, "m.Close failed")
	}
	if err := dm.Close(); err != nil {
		return errors.Wrap(err, "dm.Close failed")
	}

	fmt.Printf("%d accesses over %d pages with %d buffers in %s (%.0f ops/s)\n",
		c.Ops, c.Pages, c.Buffers, elapsed.Round(time.Millisecond), float64(c.Ops)/elapsed.Seconds())
	fmt.Printf("hits        %d\n", stats.Hits)
	fmt.Printf("misses      %d\n", stats.Misses)
	fmt.Printf("hit ratio   %.2f%%\n", stats.HitRatio()*100)
	fmt.Printf("evictions   %d\n", stats.Evictions)
	fmt.Printf("writebacks  %d\n", stats.Writebacks)
	if c.Dir != "" {
		fmt.Printf("data file   %s\n", filepath.Join(c.Dir, name))
	}
	return nil
}

// CheckCmd reads every page of a data file and reports what it finds
type CheckCmd struct {
	Path string `arg:"" type:"path" help:"Data file to check."`
}

func (c *CheckCmd) Run() error {
	dm, err := disk.NewManager(filepath.Dir(c.Path))
	if err != nil {
		return errors.Wrap(err, "disk.NewManager failed")
	}
	defer dm.Close()

	fileID, err := dm.Open(filepath.Base(c.Path))
	if err != nil {
		return errors.Wrap(err, "dm.Open failed")
	}
	stat, err := dm.Stat(fileID)
	if err != nil {
		return errors.Wrap(err, "dm.Stat failed")
	}

	var ok, free, corrupt, misplaced int
	p := page.NewPagePtr()
	for pageID := page.FirstPageID; pageID < page.PageID(stat.NPages); pageID++ {
		err := dm.ReadPage(fileID, pageID, p)
		switch {
		case err == nil:
			ok++
		case errors.Is(err, disk.ErrPageNotAllocated):
			free++
		case errors.Is(err, disk.ErrChecksumMismatch):
			corrupt++
			fmt.Printf("page %d: checksum mismatch\n", pageID)
		case errors.Is(err, disk.ErrWrongPage):
			misplaced++
			fmt.Printf("page %d: wrong page number\n", pageID)
		default:
			return errors.Wrapf(err, "dm.ReadPage failed for page %d", pageID)
		}
	}

	fmt.Printf("%d pages: %d ok, %d free, %d corrupt, %d misplaced\n",
		stat.NPages, ok, free, corrupt, misplaced)
	if corrupt+misplaced > 0 {
		return errors.Errorf("%d damaged pages", corrupt+misplaced)
	}
	return nil
}

// VersionCmd prints version information
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Printf("burrow %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("burrow"),
		kong.Description("page cache and data file toolkit"),
		kong.UsageOnError(),
	)
	setupLogger(CLI.LogLevel, CLI.LogFormat)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
