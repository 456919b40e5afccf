// Package reference loads the table of open Aliquot sequences keyed by their
// 80 digit terminal composites.
//
// The table is read from a local file, plain or xz compressed. When the file
// is missing it can be downloaded once, after asking the user.
package reference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/alimerge/core/errors"
	"github.com/FocuswithJustin/alimerge/core/refindex"
	"github.com/FocuswithJustin/alimerge/internal/fileutil"
	"github.com/FocuswithJustin/alimerge/internal/logging"
)

const (
	// DefaultURL is where the reference table is published.
	DefaultURL = "http://www.aliquotes.com/OE_3000000_C80.txt"

	// DefaultPath is the local file name used when none is configured.
	DefaultPath = "OE_3000000_C80.txt"

	// DownloadQuestion is asked before downloading a missing table.
	DownloadQuestion = "The 80 digit file was not found - download it? (y/n): "
)

// xzMagic is the XZ stream header (fd 37 7a 58 5a 00).
var xzMagic = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}

// Downloader fetches a URL. *factordb.Client satisfies it.
type Downloader interface {
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// Prompt asks a yes/no question.
type Prompt func(ctx context.Context, question string) (bool, error)

// Info describes a loaded table.
type Info struct {
	Path       string `json:"path"`
	Entries    int    `json:"entries"`
	Bytes      int64  `json:"bytes"`
	Digest     string `json:"blake3"`
	Compressed bool   `json:"compressed"`
	Downloaded bool   `json:"downloaded"`
}

// Loader reads the reference table, downloading it when permitted.
type Loader struct {
	Path           string
	URL            string
	Client         Downloader
	Prompt         Prompt
	AssumeYes      bool
	ExpectedDigest string

	mu    sync.Mutex
	index *refindex.Index
	info  Info
}

// Load returns the index, reading the table on the first call only.
func (l *Loader) Load(ctx context.Context) (*refindex.Index, Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index != nil {
		return l.index, l.info, nil
	}

	path := l.path()
	downloaded := false
	if !fileutil.Exists(path) {
		if err := l.download(ctx, path); err != nil {
			return nil, Info{}, err
		}
		downloaded = true
	}

	idx, info, err := Read(path)
	if err != nil {
		return nil, Info{}, err
	}
	info.Downloaded = downloaded

	if l.ExpectedDigest != "" && !strings.EqualFold(l.ExpectedDigest, info.Digest) {
		return nil, Info{}, errors.NewValidation("reference digest", info.Digest,
			fmt.Sprintf("expected %s", l.ExpectedDigest))
	}

	logging.ReferenceLoaded(ctx, info.Path, info.Entries, info.Digest, info.Downloaded,
		"compressed", info.Compressed)

	l.index, l.info = idx, info
	return idx, info, nil
}

// Fetch downloads the table to the configured path even when it exists.
func (l *Loader) Fetch(ctx context.Context) (Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.path()
	if err := l.save(ctx, path); err != nil {
		return Info{}, err
	}
	idx, info, err := Read(path)
	if err != nil {
		return Info{}, err
	}
	info.Downloaded = true
	l.index, l.info = idx, info
	return info, nil
}

func (l *Loader) path() string {
	if l.Path == "" {
		return DefaultPath
	}
	return l.Path
}

func (l *Loader) url() string {
	if l.URL == "" {
		return DefaultURL
	}
	return l.URL
}

func (l *Loader) download(ctx context.Context, path string) error {
	if !l.AssumeYes {
		if l.Prompt == nil {
			return errors.NewNotFound("reference table", path)
		}
		ok, err := l.Prompt(ctx, DownloadQuestion)
		if err != nil {
			return errors.Wrap(err, "asking to download reference table")
		}
		if !ok {
			return errors.NewNotFound("reference table", path)
		}
	}
	return l.save(ctx, path)
}

func (l *Loader) save(ctx context.Context, path string) error {
	if l.Client == nil {
		return errors.NewValidation("reference client", "", "no downloader configured")
	}

	data, err := l.Client.Download(ctx, l.url())
	if err != nil {
		return fmt.Errorf("downloading reference table: %w: %w", errors.ErrUnavailable, err)
	}

	if strings.HasSuffix(path, ".xz") && !bytes.HasPrefix(data, xzMagic) {
		return fileutil.WriteAtomic(path, 0644, func(w io.Writer) error {
			zw, err := xz.NewWriter(w)
			if err != nil {
				return errors.Wrap(err, "failed to create xz writer")
			}
			if _, err := zw.Write(data); err != nil {
				zw.Close()
				return errors.Wrap(err, "failed to compress reference table")
			}
			return zw.Close()
		})
	}
	return fileutil.WriteFileAtomic(path, data, 0644)
}

// Read loads a table from path, decompressing xz input.
func Read(path string) (*refindex.Index, Info, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Info{}, errors.NewNotFound("reference table", path)
		}
		return nil, Info{}, errors.NewIO("open", path, err)
	}
	defer file.Close()

	hasher := blake3.New()
	counter := &countingReader{r: io.TeeReader(file, hasher)}
	br := bufio.NewReader(counter)

	// Read magic bytes
	magic, err := br.Peek(len(xzMagic))
	compressed := err == nil && bytes.Equal(magic, xzMagic)

	var src io.Reader = br
	if compressed {
		zr, err := xz.NewReader(br)
		if err != nil {
			return nil, Info{}, errors.NewIO("decompress", path, err)
		}
		src = zr
	}

	idx, err := refindex.Read(src)
	if err != nil {
		return nil, Info{}, errors.Wrapf(err, "reading %s", path)
	}

	// Drain anything the parser left so the digest covers the whole file.
	if _, err := io.Copy(io.Discard, br); err != nil {
		return nil, Info{}, errors.NewIO("read", path, err)
	}

	return idx, Info{
		Path:       path,
		Entries:    idx.Len(),
		Bytes:      counter.n,
		Digest:     hex.EncodeToString(hasher.Sum(nil)),
		Compressed: compressed,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// StdinPrompt returns a Prompt that writes the question to w and reads the
// answer from r. "y" and "yes" accept.
func StdinPrompt(r io.Reader, w io.Writer) Prompt {
	br := bufio.NewReader(r)
	return func(ctx context.Context, question string) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprint(w, question)
		line, err := br.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
