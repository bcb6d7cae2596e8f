package roster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

var sheetsEditLink = regexp.MustCompile(`^https://docs\.google\.com/spreadsheets/d/([A-Za-z0-9_-]+)`)

// ExportURL turns a Google Sheets share link into its xlsx export link.
// Other links are returned trimmed but otherwise unchanged.
func ExportURL(link string) string {
	link = strings.TrimSpace(link)
	m := sheetsEditLink.FindStringSubmatch(link)
	if m == nil || strings.Contains(link, "/export?") {
		return link
	}
	out := "https://docs.google.com/spreadsheets/d/" + m[1] + "/export?format=xlsx"
	if gid := sheetGID(link); gid != "" {
		out += "&gid=" + url.QueryEscape(gid)
	}
	return out
}

func sheetGID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if gid := u.Query().Get("gid"); gid != "" {
		return gid
	}
	if strings.HasPrefix(u.Fragment, "gid=") {
		return strings.TrimPrefix(u.Fragment, "gid=")
	}
	return ""
}

// Options bounds roster downloads.
type Options struct {
	Timeout        time.Duration
	MaxBytes       int64
	HeaderScanRows int
}

// Fetcher downloads and decodes rosters.
type Fetcher struct {
	client *http.Client
	opts   Options
	logger *zap.Logger
}

// NewFetcher constructs a fetcher; a nil client gets one with opts.Timeout.
func NewFetcher(client *http.Client, opts Options, logger *zap.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.HeaderScanRows <= 0 {
		opts.HeaderScanRows = DefaultHeaderScanRows
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, opts: opts, logger: logger}
}

// Parse fetches the roster behind link and decodes it.
func (f *Fetcher) Parse(ctx context.Context, link string) (*Roster, error) {
	data, err := f.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	r, err := Decode(data, f.opts.HeaderScanRows)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("roster decoded",
		zap.String("format", r.Format),
		zap.Int("records", len(r.Records)),
		zap.Int("skipped", r.Skipped),
	)
	return r, nil
}

// Fetch downloads the document, refusing bodies larger than MaxBytes.
func (f *Fetcher) Fetch(ctx context.Context, link string) ([]byte, error) {
	target := ExportURL(link)
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an http(s) link", ErrUnreadable, link)
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnreadable, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", ErrUnreadable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: fetch returned status %d", ErrUnreadable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnreadable, err)
	}
	if int64(len(data)) > f.opts.MaxBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrUnreadable, f.opts.MaxBytes)
	}
	return data, nil
}
