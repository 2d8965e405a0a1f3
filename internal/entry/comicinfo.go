package entry

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"comicvault/internal/comic"
)

// ComicInfoName is the sidecar basename matched by the dispatcher.
const ComicInfoName = "ComicInfo.xml"

type comicInfoDoc struct {
	XMLName       xml.Name        `xml:"ComicInfo"`
	Title         string          `xml:"Title"`
	Series        string          `xml:"Series"`
	Number        string          `xml:"Number"`
	Volume        string          `xml:"Volume"`
	Summary       string          `xml:"Summary"`
	Notes         string          `xml:"Notes"`
	Year          string          `xml:"Year"`
	Month         string          `xml:"Month"`
	Day           string          `xml:"Day"`
	Writer        string          `xml:"Writer"`
	Penciller     string          `xml:"Penciller"`
	Inker         string          `xml:"Inker"`
	Colorist      string          `xml:"Colorist"`
	Letterer      string          `xml:"Letterer"`
	CoverArtist   string          `xml:"CoverArtist"`
	Editor        string          `xml:"Editor"`
	Publisher     string          `xml:"Publisher"`
	Imprint       string          `xml:"Imprint"`
	Web           string          `xml:"Web"`
	PageCount     string          `xml:"PageCount"`
	LanguageISO   string          `xml:"LanguageISO"`
	Format        string          `xml:"Format"`
	BlackAndWhite string          `xml:"BlackAndWhite"`
	Manga         string          `xml:"Manga"`
	Characters    string          `xml:"Characters"`
	Teams         string          `xml:"Teams"`
	Locations     string          `xml:"Locations"`
	StoryArc      string          `xml:"StoryArc"`
	AgeRating     string          `xml:"AgeRating"`
	Pages         []comicInfoPage `xml:"Pages>Page"`
}

type comicInfoPage struct {
	Image string `xml:"Image,attr"`
	Type  string `xml:"Type,attr"`
}

// ComicInfoLoader parses the ComicInfo.xml sidecar into record metadata.
type ComicInfoLoader struct{}

// NewComicInfoLoader returns the sidecar loader.
func NewComicInfoLoader() *ComicInfoLoader {
	return &ComicInfoLoader{}
}

// Load replaces the record's metadata. On a parse error the record is left
// untouched and a *LoaderError of kind parse is returned.
func (l *ComicInfoLoader) Load(ctx context.Context, rec *comic.Record, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	md, err := ParseComicInfo(data)
	if err != nil {
		return &LoaderError{Kind: KindParse, Entry: name, Err: err}
	}
	rec.Metadata = md
	return nil
}

// ParseComicInfo decodes a ComicInfo document. Text is trimmed and NFC
// normalized; numeric fields that do not parse are left zero.
func ParseComicInfo(data []byte) (comic.Metadata, error) {
	var doc comicInfoDoc
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader
	if err := dec.Decode(&doc); err != nil {
		return comic.Metadata{}, err
	}

	md := comic.Metadata{
		Series:     clean(doc.Series),
		Volume:     clean(doc.Volume),
		Number:     clean(doc.Number),
		Title:      clean(doc.Title),
		Summary:    clean(doc.Summary),
		Publisher:  clean(doc.Publisher),
		Imprint:    clean(doc.Imprint),
		Year:       atoi(doc.Year),
		Month:      atoi(doc.Month),
		Day:        atoi(doc.Day),
		Web:        clean(doc.Web),
		Notes:      clean(doc.Notes),
		PageCount:  atoi(doc.PageCount),
		Language:   clean(doc.LanguageISO),
		Format:     clean(doc.Format),
		AgeRating:  clean(doc.AgeRating),
		BlackWhite: strings.EqualFold(clean(doc.BlackAndWhite), "yes"),
		MangaRTL:   strings.EqualFold(clean(doc.Manga), "YesAndRightToLeft"),
		Characters: splitList(doc.Characters),
		Teams:      splitList(doc.Teams),
		Locations:  splitList(doc.Locations),
		StoryArcs:  splitList(doc.StoryArc),
	}
	for _, role := range []struct {
		name  string
		value string
	}{
		{"writer", doc.Writer},
		{"penciller", doc.Penciller},
		{"inker", doc.Inker},
		{"colorist", doc.Colorist},
		{"letterer", doc.Letterer},
		{"cover", doc.CoverArtist},
		{"editor", doc.Editor},
	} {
		for _, person := range splitList(role.value) {
			md.Credits = append(md.Credits, comic.Credit{Role: role.name, Name: person})
		}
	}
	for _, p := range doc.Pages {
		image, err := strconv.Atoi(strings.TrimSpace(p.Image))
		if err != nil || image < 0 {
			continue
		}
		if t := clean(p.Type); t != "" {
			md.PageHints = append(md.PageHints, comic.PageHint{Image: image, Type: t})
		}
	}
	return md, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

func clean(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}

func atoi(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = clean(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
