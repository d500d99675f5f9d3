// Package importer reads feed subscriptions from OPML files and local
// Atom/RSS documents, including Jenkins-style topology inference:
// deriving the canonical feed URL from a saved file plus the server's
// base URL, and mining per-job sub-feed URLs out of entry links.
package importer

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/abelbrown/jinkies/internal/model"
)

// FormatError reports an unparsable import file.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot parse %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// opmlDocument mirrors the OPML structure. Outlines nest arbitrarily;
// encoding/xml fills the recursion for us.
type opmlDocument struct {
	XMLName xml.Name      `xml:"opml"`
	Body    opmlContainer `xml:"body"`
}

type opmlContainer struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Title    string        `xml:"title,attr"`
	Text     string        `xml:"text,attr"`
	XMLURL   string        `xml:"xmlUrl,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

// ImportOPML reads feed subscriptions from an OPML file. Every outline
// bearing an xmlUrl attribute yields a feed, in document order
// (depth-first); names fall back title, then text, then the URL.
func ImportOPML(path string) ([]model.Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc opmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	var feeds []model.Feed
	collectOutlines(doc.Body.Outlines, &feeds)
	return feeds, nil
}

func collectOutlines(outlines []opmlOutline, feeds *[]model.Feed) {
	for _, o := range outlines {
		if o.XMLURL != "" {
			name := o.Title
			if name == "" {
				name = o.Text
			}
			if name == "" {
				name = o.XMLURL
			}
			*feeds = append(*feeds, model.Feed{URL: o.XMLURL, Name: name, Enabled: true})
		}
		collectOutlines(o.Outlines, feeds)
	}
}

// ImportLocalFeed reads a saved Atom/RSS document. The first returned
// feed is the main feed with its canonical URL reconstructed; any
// Jenkins-style job feeds mined from entry links follow, sorted by job
// path.
func ImportLocalFeed(path string) ([]model.Feed, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	parsed, err := gofeed.NewParser().Parse(file)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}

	stem := fileStem(path)
	title := parsed.Title
	if title == "" {
		title = stem
	}

	baseURL := strings.TrimRight(parsed.Link, "/")
	feeds := []model.Feed{{
		URL:     canonicalFeedURL(parsed, baseURL, path),
		Name:    title,
		Enabled: true,
	}}
	feeds = append(feeds, jobFeeds(parsed, baseURL)...)
	return feeds, nil
}

// fileStem is the file name without extension, e.g. "rssAll(3)".
func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// canonicalFeedURL picks the feed's real URL: an explicit self link
// wins; otherwise the server base URL plus the file stem with any
// parenthesized download-disambiguator stripped ("rssAll(3)" →
// "rssAll"); as a last resort the local path itself.
func canonicalFeedURL(parsed *gofeed.Feed, baseURL, path string) string {
	if parsed.FeedLink != "" {
		return parsed.FeedLink
	}
	if baseURL != "" {
		stem := fileStem(path)
		stem = strings.TrimSpace(strings.SplitN(stem, "(", 2)[0])
		return baseURL + "/" + stem
	}
	return path
}

// jobFeeds mines per-job feed URLs from entry links following the
// Jenkins convention /job/<name>/job/<name>/.../<buildNumber>/.
func jobFeeds(parsed *gofeed.Feed, baseURL string) []model.Feed {
	if baseURL == "" {
		return nil
	}

	names := map[string]string{} // job path -> first-seen title
	for _, item := range parsed.Items {
		link := item.Link
		if link == "" || !strings.Contains(link, "/job/") {
			continue
		}

		afterBase := strings.Trim(strings.TrimPrefix(link, baseURL), "/")
		parts := strings.Split(afterBase, "/")

		// Walk alternating job/<name> pairs from the front; the
		// first segment that breaks the pattern (typically the
		// build number) ends the job path.
		var segments []string
		for i := 0; i < len(parts)-1; i += 2 {
			if parts[i] != "job" {
				break
			}
			segments = append(segments, "job", parts[i+1])
		}
		if len(segments) == 0 {
			continue
		}

		jobPath := strings.Join(segments, "/")
		if _, ok := names[jobPath]; !ok {
			name := jobTitle(item.Title)
			if name == "" {
				name = segments[len(segments)-1]
			}
			names[jobPath] = name
		}
	}

	paths := make([]string, 0, len(names))
	for p := range names {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	feeds := make([]model.Feed, 0, len(paths))
	for _, p := range paths {
		feeds = append(feeds, model.Feed{
			URL:     baseURL + "/" + p + "/rssAll",
			Name:    names[p],
			Enabled: true,
		})
	}
	return feeds
}

// jobTitle derives a readable job name from an entry title by cutting
// the build-number suffix ("app » api #42 (stable)" → "app » api")
// and trimming decoration.
func jobTitle(title string) string {
	if i := strings.LastIndex(title, "#"); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	title = strings.TrimRight(title, "»")
	return strings.TrimSpace(title)
}
