package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mitanshubhoot/PP-TIO/internal/resilience"
	"github.com/mitanshubhoot/PP-TIO/ioc"
)

// LoadFile reads indicators from a plaintext file, one per line. A line
// may be "type,value" or a bare value taking defaultType. Blank lines
// and '#' comments are skipped. Duplicates are removed.
func LoadFile(path string, defaultType ioc.Type) ([]ioc.Indicator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()
	set, err := parseLines(f, defaultType)
	if err != nil {
		return nil, fmt.Errorf("dataset: parse %s: %w", path, err)
	}
	return set, nil
}

// FetchFeed downloads a line-oriented indicator feed over HTTP, retrying
// transient failures with backoff.
func FetchFeed(ctx context.Context, client *http.Client, url string, defaultType ioc.Type) ([]ioc.Indicator, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	body, err := resilience.Retry(ctx, 3, 500*time.Millisecond, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dataset: build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("dataset: fetch feed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("dataset: feed %s returned %d", url, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return parseLines(strings.NewReader(string(body)), defaultType)
}

func parseLines(r io.Reader, defaultType ioc.Type) ([]ioc.Indicator, error) {
	var set []ioc.Indicator
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		t, value := defaultType, text
		if i := strings.IndexByte(text, ','); i >= 0 {
			parsed, ok := ioc.ParseType(text[:i])
			if !ok {
				return nil, fmt.Errorf("line %d: unknown indicator type %q", line, text[:i])
			}
			t, value = parsed, strings.TrimSpace(text[i+1:])
		}
		if value == "" {
			return nil, fmt.Errorf("line %d: empty indicator value", line)
		}
		set = append(set, ioc.New(t, value))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ioc.Dedupe(set), nil
}
