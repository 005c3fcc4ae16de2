package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupportedKind is returned when a bulletin kind has no parser.
var ErrUnsupportedKind = fmt.Errorf("unsupported bulletin kind")

// The bulletin page carries its data in the second table; the first two
// rows of that table are headers.
const (
	dataTableIndex = 1
	headerRows     = 2
)

// bulletinZone is the source timezone of event timestamps (UTC+8).
var bulletinZone = time.FixedZone("PST", 8*60*60)

// eventLayout matches the raw cell text, e.g. "10 February 2019 - 03:21 AM".
const eventLayout = "02 January 2006 - 03:04 PM"

// Parser converts raw bulletin HTML into normalized event records.
type Parser struct {
	kind Kind
	base *url.URL
}

// NewParser builds a Parser for the given kind. base is the site root
// for the active kind, e.g. "https://earthquake.example.gov.ph/".
func NewParser(kind Kind, base string) (*Parser, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", base)
	}
	return &Parser{kind: kind, base: u}, nil
}

// column maps one table cell position to a record field. Keeping the
// schema explicit makes a malformed page fail loudly instead of
// silently mis-assigning fields.
type column struct {
	name string
	set  func(p *Parser, cell *goquery.Selection, rec *Record) error
}

var columns = []column{
	{name: "event", set: (*Parser).setEvent},
	{name: "latitude", set: (*Parser).setLatitude},
	{name: "longitude", set: (*Parser).setLongitude},
	{name: "depth", set: (*Parser).setDepth},
	{name: "magnitude", set: (*Parser).setMagnitude},
	{name: "location", set: (*Parser).setLocation},
}

// Parse extracts event records from a bulletin page body, preserving
// document row order (most recent first per upstream convention).
func (p *Parser) Parse(body []byte) ([]*Record, error) {
	if p.kind != KindEarthquake {
		return nil, fmt.Errorf("parse %q bulletin: %w", p.kind, ErrUnsupportedKind)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	tables := doc.Find("table")
	if tables.Length() <= dataTableIndex {
		return nil, fmt.Errorf("expected at least %d tables, found %d", dataTableIndex+1, tables.Length())
	}

	var records []*Record
	rows := tables.Eq(dataTableIndex).Find("tr")
	for i := headerRows; i < rows.Length(); i++ {
		rec, err := p.parseRow(rows.Eq(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (p *Parser) parseRow(row *goquery.Selection) (*Record, error) {
	cells := row.Find("td")
	if cells.Length() < len(columns) {
		return nil, fmt.Errorf("found %d cells, want %d", cells.Length(), len(columns))
	}
	rec := &Record{}
	for i, col := range columns {
		if err := col.set(p, cells.Eq(i), rec); err != nil {
			return nil, fmt.Errorf("column %s: %w", col.name, err)
		}
	}
	return rec, nil
}

func (p *Parser) setEvent(cell *goquery.Selection, rec *Record) error {
	raw := cleanText(cell.Text())
	ts, err := time.ParseInLocation(eventLayout, raw, bulletinZone)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	rec.Event = ts

	href, ok := cell.Find("a").Attr("href")
	if !ok {
		return fmt.Errorf("missing detail link")
	}
	link, err := p.resolveLink(href)
	if err != nil {
		return err
	}
	rec.Link = link
	rec.Img = strings.TrimSuffix(link, ".html") + ".jpg"
	return nil
}

func (p *Parser) setLatitude(cell *goquery.Selection, rec *Record) error {
	v, err := parseFloat(cell)
	rec.Latitude = v
	return err
}

func (p *Parser) setLongitude(cell *goquery.Selection, rec *Record) error {
	v, err := parseFloat(cell)
	rec.Longitude = v
	return err
}

func (p *Parser) setDepth(cell *goquery.Selection, rec *Record) error {
	raw := cleanText(cell.Text())
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("parse depth %q: %w", raw, err)
	}
	rec.Depth = v
	return nil
}

func (p *Parser) setMagnitude(cell *goquery.Selection, rec *Record) error {
	v, err := parseFloat(cell)
	rec.Magnitude = v
	return err
}

// setLocation splits the raw location on the first parenthesis: the
// prefix is the free-text location, the parenthesized suffix is the
// upper-cased province.
func (p *Parser) setLocation(cell *goquery.Selection, rec *Record) error {
	raw := cleanText(cell.Text())
	loc, province, found := strings.Cut(raw, "(")
	rec.Location = strings.TrimSpace(loc)
	if found {
		province = strings.TrimSuffix(strings.TrimSpace(province), ")")
		rec.Province = strings.ToUpper(strings.TrimSpace(province))
	}
	return nil
}

// resolveLink normalizes path separators in a bulletin href and resolves
// it against the site base URL for the active kind.
func (p *Parser) resolveLink(href string) (string, error) {
	href = strings.ReplaceAll(strings.TrimSpace(href), `\`, "/")
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return p.base.ResolveReference(ref).String(), nil
}

func parseFloat(cell *goquery.Selection) (float64, error) {
	raw := cleanText(cell.Text())
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", raw, err)
	}
	return v, nil
}

var whitespaceReplacer = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ", " ", " ")

// cleanText trims a cell value and collapses internal tabs, newlines,
// and doubled spaces.
func cleanText(s string) string {
	s = whitespaceReplacer.Replace(s)
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}
