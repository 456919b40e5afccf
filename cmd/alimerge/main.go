// Command alimerge reports Aliquot sequences that merge into already known
// open sequences.
//
// Each candidate listing is downloaded from factordb, its last 80 digit
// composite is looked up in the reference table of open sequences, and on a
// hit the merge point between the two listings is printed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/alimerge/core/cache"
	"github.com/FocuswithJustin/alimerge/core/errors"
	"github.com/FocuswithJustin/alimerge/core/merge"
	"github.com/FocuswithJustin/alimerge/core/seqid"
	"github.com/FocuswithJustin/alimerge/internal/config"
	"github.com/FocuswithJustin/alimerge/internal/factordb"
	"github.com/FocuswithJustin/alimerge/internal/listcache"
	"github.com/FocuswithJustin/alimerge/internal/logging"
	"github.com/FocuswithJustin/alimerge/internal/reference"
	"github.com/FocuswithJustin/alimerge/internal/report"
)

const version = "1.0.0"

// CLI defines the command-line interface for alimerge.
type CLI struct {
	Globals

	Scan     ScanCmd        `cmd:"" default:"withargs" help:"Check base^first through base^last (default command)"`
	Check    CheckCmd       `cmd:"" help:"Check explicit sequences, e.g. 2^10 3^5-9 276"`
	RefTable ReferenceGroup `cmd:"" name:"reference" help:"Reference table of open sequences"`
	CacheDB  CacheGroup     `cmd:"" name:"cache" help:"Local listing cache"`
	Version  VersionCmd     `cmd:"" help:"Print version information"`
}

// Globals holds flags shared by every command.
type Globals struct {
	Config          kong.ConfigFlag `help:"YAML configuration file"`
	Reference       string          `default:"${reference_path}" help:"Reference table path (.xz is decompressed)"`
	ReferenceURL    string          `name:"reference-url" default:"${reference_url}" help:"Where to download the reference table"`
	ReferenceBlake3 string          `name:"reference-blake3" help:"Expected BLAKE3 digest of the reference file"`
	ListingURL      string          `name:"listing-url" default:"${listing_url}" help:"Sequence listing endpoint"`
	Cache           string          `default:"${cache_path}" help:"SQLite cache of matched listings; empty disables caching"`
	CacheTTL        time.Duration   `name:"cache-ttl" default:"168h" help:"Re-download matched listings older than this; 0 keeps them forever"`
	MemoryCache     int             `name:"memory-cache" default:"64" help:"Listings kept in memory during a run; 0 keeps all"`
	Rate            float64         `default:"1" help:"Listing downloads per second; 0 disables pacing"`
	Timeout         time.Duration   `default:"60s" help:"Timeout for a single download"`
	UserAgent       string          `name:"user-agent" default:"${user_agent}" help:"User-Agent sent with downloads"`
	Yes             bool            `short:"y" help:"Download a missing reference table without asking"`
	Debug           bool            `help:"Log skipped sequences, downloads and cache activity (same as --log-level=debug)"`
	LogLevel        string          `name:"log-level" enum:"debug,info,warn,error" default:"warn" help:"Log level (debug, info, warn, error)"`
	LogFormat       string          `name:"log-format" enum:"text,json" default:"text" help:"Log format (text, json)"`
	JSON            bool            `name:"json" help:"Print results as JSON lines"`

	stdin  io.Reader `kong:"-"`
	stdout io.Writer `kong:"-"`
	stderr io.Writer `kong:"-"`
}

// ReferenceGroup contains reference table operations.
type ReferenceGroup struct {
	Fetch ReferenceFetchCmd `cmd:"" help:"Download the reference table now"`
	Info  ReferenceInfoCmd  `cmd:"" help:"Describe the local reference table"`
}

// CacheGroup contains listing cache operations.
type CacheGroup struct {
	Stats CacheStatsCmd `cmd:"" help:"Show cache statistics"`
	Clear CacheClearCmd `cmd:"" help:"Remove every cached listing"`
	Prune CachePruneCmd `cmd:"" help:"Remove listings older than a given age"`
}

// ScanCmd checks a run of powers of one base.
type ScanCmd struct {
	Base  string `arg:"" help:"Base of the starting values"`
	First int    `arg:"" help:"First exponent"`
	Last  int    `arg:"" help:"Last exponent"`
}

// Validate rejects bad ranges before anything is downloaded.
func (c *ScanCmd) Validate() error {
	_, err := seqid.Range(c.Base, c.First, c.Last)
	return err
}

func (c *ScanCmd) Run(g *Globals) error {
	ids, err := seqid.Range(c.Base, c.First, c.Last)
	if err != nil {
		return err
	}
	return g.detect(ids, func(w *report.Writer) error {
		return w.Banner(c.Base, c.First, c.Last)
	})
}

// CheckCmd checks explicitly named sequences.
type CheckCmd struct {
	Sequences []string `arg:"" name:"seq" help:"Sequence ids or ranges (276, 2^10, 3^5-9)"`
}

// Validate rejects malformed identifiers.
func (c *CheckCmd) Validate() error {
	_, err := seqid.ParseAll(c.Sequences)
	return err
}

func (c *CheckCmd) Run(g *Globals) error {
	ids, err := seqid.ParseAll(c.Sequences)
	if err != nil {
		return err
	}
	return g.detect(ids, nil)
}

// ReferenceFetchCmd downloads the reference table.
type ReferenceFetchCmd struct{}

func (c *ReferenceFetchCmd) Run(g *Globals) error {
	ctx, cancel := g.setup()
	defer cancel()

	info, err := g.loader(g.client()).Fetch(ctx)
	if err != nil {
		return err
	}
	return g.printReferenceInfo(info)
}

// ReferenceInfoCmd describes the local reference table.
type ReferenceInfoCmd struct{}

func (c *ReferenceInfoCmd) Run(g *Globals) error {
	_, cancel := g.setup()
	defer cancel()

	_, info, err := reference.Read(g.Reference)
	if err != nil {
		return err
	}
	return g.printReferenceInfo(info)
}

// CacheStatsCmd prints cache statistics.
type CacheStatsCmd struct{}

func (c *CacheStatsCmd) Run(g *Globals) error {
	ctx, cancel := g.setup()
	defer cancel()

	store, err := g.requireCache()
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	if g.JSON {
		return json.NewEncoder(g.stdout).Encode(st)
	}

	fmt.Fprintf(g.stdout, "Path:    %s\n", st.Path)
	fmt.Fprintf(g.stdout, "Driver:  %s\n", st.Driver)
	fmt.Fprintf(g.stdout, "Entries: %d\n", st.Entries)
	fmt.Fprintf(g.stdout, "Size:    %s\n", humanize.Bytes(uint64(st.Bytes)))
	if st.Entries > 0 {
		fmt.Fprintf(g.stdout, "Oldest:  %s\n", humanize.Time(st.Oldest))
		fmt.Fprintf(g.stdout, "Newest:  %s\n", humanize.Time(st.Newest))
	}
	return nil
}

// CacheClearCmd empties the cache.
type CacheClearCmd struct{}

func (c *CacheClearCmd) Run(g *Globals) error {
	ctx, cancel := g.setup()
	defer cancel()

	store, err := g.requireCache()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "Removed %d cached listings\n", n)
	return nil
}

// CachePruneCmd drops old listings.
type CachePruneCmd struct {
	OlderThan time.Duration `name:"older-than" required:"" help:"Remove listings downloaded longer ago than this"`
}

func (c *CachePruneCmd) Run(g *Globals) error {
	ctx, cancel := g.setup()
	defer cancel()

	store, err := g.requireCache()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(ctx, c.OlderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.stdout, "Removed %d cached listings older than %s\n", n, c.OlderThan)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.stdout, "alimerge version %s\n", version)
	return nil
}

// setup configures logging and returns a context carrying a fresh run id
// that is cancelled on interrupt.
func (g *Globals) setup() (context.Context, context.CancelFunc) {
	level := logging.ParseLevel(g.LogLevel)
	if g.Debug {
		level = logging.LevelDebug
	}
	logging.InitLogger(level, logging.ParseFormat(g.LogFormat), g.stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	return logging.WithRunID(ctx, logging.NewRunID()), cancel
}

func (g *Globals) client() *factordb.Client {
	return factordb.NewClient(
		factordb.WithBaseURL(g.ListingURL),
		factordb.WithUserAgent(g.UserAgent),
		factordb.WithTimeout(g.Timeout),
		factordb.WithRateLimit(g.Rate, 1),
	)
}

func (g *Globals) loader(client *factordb.Client) *reference.Loader {
	return &reference.Loader{
		Path:           g.Reference,
		URL:            g.ReferenceURL,
		Client:         client,
		Prompt:         reference.StdinPrompt(g.stdin, g.stderr),
		AssumeYes:      g.Yes,
		ExpectedDigest: g.ReferenceBlake3,
	}
}

// openCache returns nil when caching is disabled.
func (g *Globals) openCache() (*listcache.Store, error) {
	if g.Cache == "" {
		return nil, nil
	}
	return listcache.Open(g.Cache, listcache.WithTTL(g.CacheTTL))
}

func (g *Globals) requireCache() (*listcache.Store, error) {
	if g.Cache == "" {
		return nil, errors.NewValidation("cache", "", "caching is disabled")
	}
	return g.openCache()
}

// detect runs merge detection over ids and reports every merge. banner, when
// set, is written once the reference table is available.
func (g *Globals) detect(ids []string, banner func(*report.Writer) error) error {
	ctx, cancel := g.setup()
	defer cancel()

	start := time.Now()
	client := g.client()

	index, _, err := g.loader(client).Load(ctx)
	if err != nil {
		return err
	}

	store, err := g.openCache()
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	out := report.New(g.stdout, g.JSON)
	if banner != nil {
		if err := banner(out); err != nil {
			return err
		}
	}

	// Candidate listings are always downloaded so a grown sequence is never
	// judged by an old terminal. Only matched listings go through the caches.
	downloads := &timedFetcher{next: client}
	listings := cache.NewListings(listcache.NewSource(store, downloads), g.MemoryCache)
	detector := merge.NewDetector(index, listcache.NewSource(nil, downloads),
		merge.WithMatchedSource(listings),
		merge.WithLogger(logging.LoggerFromContext(ctx)))

	logging.InfoContext(ctx, "scan_started", "sequences", len(ids))
	summary, err := detector.Run(ctx, ids, out.Merge)
	if err != nil {
		logStopped(ctx, summary, err)
		return err
	}

	memo := listings.Stats()
	logging.DebugContext(ctx, "scan_finished",
		"merges", summary.Merged,
		"memory_hits", memo.Hits,
		"memory_misses", memo.Misses,
	)

	return out.Summary(report.Stats{
		Summary:         summary,
		Elapsed:         time.Since(start),
		DownloadTime:    downloads.elapsed,
		DownloadedBytes: downloads.bytes,
	})
}

// logStopped records where a scan gave up. An interrupt is only a warning.
func logStopped(ctx context.Context, summary merge.Summary, err error) {
	args := []any{
		"checked", summary.Candidates,
		"merges", summary.Merged,
		"error", err.Error(),
	}
	var rec *errors.RecordError
	if errors.As(err, &rec) {
		args = append(args, "record", rec.Kind, "line", rec.Line)
	}
	if errors.Is(err, context.Canceled) {
		logging.WarnContext(ctx, "scan_interrupted", args...)
		return
	}
	logging.ErrorContext(ctx, "scan_failed", args...)
}

func (g *Globals) printReferenceInfo(info reference.Info) error {
	if g.JSON {
		return json.NewEncoder(g.stdout).Encode(info)
	}
	fmt.Fprintf(g.stdout, "Path:       %s\n", info.Path)
	fmt.Fprintf(g.stdout, "Entries:    %d\n", info.Entries)
	fmt.Fprintf(g.stdout, "Size:       %s\n", humanize.Bytes(uint64(info.Bytes)))
	fmt.Fprintf(g.stdout, "Compressed: %t\n", info.Compressed)
	fmt.Fprintf(g.stdout, "BLAKE3:     %s\n", info.Digest)
	return nil
}

// timedFetcher accumulates the time and bytes spent downloading listings.
type timedFetcher struct {
	next    listcache.Fetcher
	elapsed time.Duration
	bytes   int64
}

func (f *timedFetcher) Fetch(ctx context.Context, id string) ([]byte, error) {
	start := time.Now()
	body, err := f.next.Fetch(ctx, id)
	f.elapsed += time.Since(start)
	f.bytes += int64(len(body))
	return body, err
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "alimerge", "listings.db")
}

func options() []kong.Option {
	return []kong.Option{
		kong.Name("alimerge"),
		kong.Description("Find Aliquot sequences that merge into known open sequences"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.DefaultEnvars("ALIMERGE"),
		config.Option(),
		kong.Vars{
			"reference_path": reference.DefaultPath,
			"reference_url":  reference.DefaultURL,
			"listing_url":    factordb.DefaultBaseURL,
			"user_agent":     factordb.DefaultUserAgent,
			"cache_path":     defaultCachePath(),
		},
	}
}

func main() {
	cli := CLI{Globals: Globals{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}}
	ctx := kong.Parse(&cli, options()...)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
