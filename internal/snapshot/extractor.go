// Package snapshot lifts the server-rendered component state out of a city page.
//
// The page embeds the state as JSON inside an element attribute (wire:snapshot
// by default). The payload is not a stable contract, so its shape is checked
// with gjson instead of being decoded into fixed structs.
package snapshot

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

// DefaultAttr is the attribute that carries the component snapshot.
const DefaultAttr = "wire:snapshot"

const (
	pathPrayerTimes = "data.prayerTimes"
	pathComponent   = "memo.name"
)

// Extractor finds and validates the prayer-time snapshot in page markup.
type Extractor struct {
	attr string
}

// New returns an Extractor that reads the given attribute.
func New(attr string) *Extractor {
	attr = strings.ToLower(strings.TrimSpace(attr))
	if attr == "" {
		attr = DefaultAttr
	}
	return &Extractor{attr: attr}
}

// Extract returns the first snapshot on the page that decodes and carries a
// non-empty prayer-time table. Errors wrap crawler.ErrNoSnapshot,
// crawler.ErrDecode, or crawler.ErrSchemaMismatch.
func (e *Extractor) Extract(body []byte) (crawler.Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Snapshot{}, fmt.Errorf("%w: parse page: %v", crawler.ErrNoSnapshot, err)
	}

	var candidates []string
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		// Attr already decodes entities such as &quot;.
		if v, ok := s.Attr(e.attr); ok {
			candidates = append(candidates, v)
		}
	})
	if len(candidates) == 0 {
		return crawler.Snapshot{}, fmt.Errorf("%w: attribute %s not found", crawler.ErrNoSnapshot, e.attr)
	}

	var firstErr error
	decoded := 0
	for _, raw := range candidates {
		payload, ok := decode(raw)
		if !ok {
			continue
		}
		decoded++
		snap, err := parse(payload)
		if err == nil {
			return snap, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}

	if decoded == 0 {
		return crawler.Snapshot{}, fmt.Errorf("%w: %d %s attribute(s), none valid JSON", crawler.ErrDecode, len(candidates), e.attr)
	}
	return crawler.Snapshot{}, firstErr
}

// decode validates raw as JSON, retrying once with entities unescaped for
// pages that double-encode the attribute.
func decode(raw string) (gjson.Result, bool) {
	raw = strings.TrimSpace(raw)
	if gjson.Valid(raw) {
		return gjson.Parse(raw), true
	}
	if strings.Contains(raw, "&") {
		unescaped := html.UnescapeString(raw)
		if gjson.Valid(unescaped) {
			return gjson.Parse(unescaped), true
		}
	}
	return gjson.Result{}, false
}

func parse(payload gjson.Result) (crawler.Snapshot, error) {
	if !payload.IsObject() {
		return crawler.Snapshot{}, fmt.Errorf("%w: snapshot is not an object", crawler.ErrSchemaMismatch)
	}

	pt := payload.Get(pathPrayerTimes)
	if !pt.Exists() {
		return crawler.Snapshot{}, fmt.Errorf("%w: missing %s", crawler.ErrSchemaMismatch, pathPrayerTimes)
	}
	table := tupleValue(pt)
	if !table.IsObject() {
		return crawler.Snapshot{}, fmt.Errorf("%w: %s is %s, want object", crawler.ErrSchemaMismatch, pathPrayerTimes, kind(table))
	}

	var days []crawler.SnapshotDay
	table.ForEach(func(key, value gjson.Result) bool {
		days = append(days, crawler.SnapshotDay{Key: key.String(), Times: times(value)})
		return true
	})
	if len(days) == 0 {
		return crawler.Snapshot{}, fmt.Errorf("%w: %s is empty", crawler.ErrSchemaMismatch, pathPrayerTimes)
	}

	return crawler.Snapshot{
		Component: payload.Get(pathComponent).String(),
		Days:      days,
	}, nil
}

// tupleValue unwraps the [value, meta] pairs used to serialize arrays.
func tupleValue(r gjson.Result) gjson.Result {
	if r.IsArray() {
		return r.Get("0")
	}
	return r
}

func times(value gjson.Result) map[string]string {
	row := tupleValue(value)
	if !row.IsObject() {
		return nil
	}
	out := make(map[string]string)
	row.ForEach(func(k, v gjson.Result) bool {
		if v.Type == gjson.String {
			out[k.String()] = v.String()
		}
		return true
	})
	return out
}

func kind(r gjson.Result) string {
	switch {
	case !r.Exists():
		return "missing"
	case r.IsArray():
		return "array"
	case r.IsObject():
		return "object"
	default:
		return r.Type.String()
	}
}
