// CLAUDE:SUMMARY encoding/xml adapter for RSS 2.0, RSS 1.0 (RDF) and Atom 1.0 with self-link extraction.
// CLAUDE:EXPORTS XML, Document, Entry, ParseXML
package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
)

const atomNS = "http://www.w3.org/2005/Atom"

// Entry is one item of a parsed document.
type Entry struct {
	GUID      string `json:"guid"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published"`
}

// Document is a feed parsed by the XML adapter.
type Document struct {
	Format   string  `json:"format"` // rss, rdf, atom
	Title    string  `json:"title"`
	Link     string  `json:"link"`
	SelfLink string  `json:"self_link"`
	Entries  []Entry `json:"entries"`
}

// XML is the dependency-light adapter. It auto-detects the format from the
// root element:
//   - <rss> → RSS 2.0
//   - <rdf:RDF> → RSS 1.0
//   - <feed> → Atom 1.0
type XML struct{}

func (XML) Parse(body []byte) (*Document, error) { return ParseXML(body) }

func (XML) SelfURL(d *Document) string {
	if d == nil {
		return ""
	}
	return d.SelfLink
}

func (XML) Signature(d *Document) string {
	if d == nil {
		return ""
	}
	ids := make([]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		ids = append(ids, e.GUID)
	}
	return BuildSignature(d.Title, ids)
}

// ParseXML auto-detects and parses RSS 2.0, RDF or Atom XML.
func ParseXML(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmpty
	}
	switch detectFormat(trimmed) {
	case "rss":
		return parseRSS(trimmed)
	case "rdf":
		return parseRDF(trimmed)
	case "atom":
		return parseAtom(trimmed)
	default:
		return nil, fmt.Errorf("%w (expected <rss>, <rdf:RDF> or <feed>)", ErrFormat)
	}
}

// newDecoder is lenient: declared charsets are honoured and HTML entities
// such as &nbsp; do not abort the parse. No HTML auto-closing: <link> is a
// void element in HTML but carries text in RSS.
func newDecoder(data []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	d.Strict = false
	d.Entity = xml.HTMLEntity
	return d
}

func detectFormat(data []byte) string {
	d := newDecoder(data)
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss":
				return "rss"
			case "rdf":
				return "rdf"
			case "feed":
				return "atom"
			}
			return ""
		}
	}
}

// --- RSS 2.0 / RDF ---

type rssRoot struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rdfRoot struct {
	XMLName xml.Name   `xml:"RDF"`
	Channel rssChannel `xml:"channel"`
	Items   []rssItem  `xml:"item"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Links []rssLink `xml:"link"`
	Items []rssItem `xml:"item"`
}

// rssLink matches both <link>text</link> and <atom:link href rel/>.
type rssLink struct {
	XMLName xml.Name
	Href    string `xml:"href,attr"`
	Rel     string `xml:"rel,attr"`
	Text    string `xml:",chardata"`
}

type rssItem struct {
	About   string `xml:"about,attr"` // rdf:about
	GUID    string `xml:"guid"`
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Date    string `xml:"date"` // dc:date
}

func parseRSS(data []byte) (*Document, error) {
	var root rssRoot
	if err := newDecoder(data).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: parse rss: %v", ErrFormat, err)
	}
	return channelDocument("rss", root.Channel, root.Channel.Items), nil
}

func parseRDF(data []byte) (*Document, error) {
	var root rdfRoot
	if err := newDecoder(data).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: parse rdf: %v", ErrFormat, err)
	}
	items := root.Items
	if len(items) == 0 {
		items = root.Channel.Items
	}
	return channelDocument("rdf", root.Channel, items), nil
}

func channelDocument(format string, ch rssChannel, items []rssItem) *Document {
	doc := &Document{
		Format:  format,
		Title:   strings.TrimSpace(ch.Title),
		Entries: make([]Entry, 0, len(items)),
	}
	for _, l := range ch.Links {
		switch {
		case l.XMLName.Space == atomNS && strings.EqualFold(l.Rel, "self"):
			if doc.SelfLink == "" {
				doc.SelfLink = strings.TrimSpace(l.Href)
			}
		case l.XMLName.Space != atomNS && doc.Link == "":
			doc.Link = strings.TrimSpace(l.Text)
		}
	}
	for _, it := range items {
		link := strings.TrimSpace(it.Link)
		guid := strings.TrimSpace(it.GUID)
		if guid == "" {
			guid = strings.TrimSpace(it.About)
		}
		if guid == "" {
			guid = link
		}
		published := strings.TrimSpace(it.PubDate)
		if published == "" {
			published = strings.TrimSpace(it.Date)
		}
		doc.Entries = append(doc.Entries, Entry{
			GUID:      guid,
			Title:     strings.TrimSpace(it.Title),
			Link:      link,
			Published: published,
		})
	}
	return doc
}

// --- Atom 1.0 ---

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Links   []atomLink  `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type atomEntry struct {
	ID        string     `xml:"id"`
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

func parseAtom(data []byte) (*Document, error) {
	var root atomFeed
	if err := newDecoder(data).Decode(&root); err != nil {
		return nil, fmt.Errorf("%w: parse atom: %v", ErrFormat, err)
	}

	doc := &Document{
		Format:   "atom",
		Title:    strings.TrimSpace(root.Title),
		Link:     atomLinkRel(root.Links, "alternate"),
		SelfLink: atomLinkRel(root.Links, "self"),
		Entries:  make([]Entry, 0, len(root.Entries)),
	}
	for _, e := range root.Entries {
		link := atomLinkRel(e.Links, "alternate")
		guid := strings.TrimSpace(e.ID)
		if guid == "" {
			guid = link
		}
		published := strings.TrimSpace(e.Published)
		if published == "" {
			published = strings.TrimSpace(e.Updated)
		}
		doc.Entries = append(doc.Entries, Entry{
			GUID:      guid,
			Title:     strings.TrimSpace(e.Title),
			Link:      link,
			Published: published,
		})
	}
	return doc, nil
}

// atomLinkRel returns the first link with the given rel. A missing rel
// attribute means "alternate".
func atomLinkRel(links []atomLink, rel string) string {
	for _, l := range links {
		r := strings.ToLower(strings.TrimSpace(l.Rel))
		if r == "" {
			r = "alternate"
		}
		if r == rel {
			return strings.TrimSpace(l.Href)
		}
	}
	return ""
}
