package feed

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/lysyi3m/rss-ledger/app/ledger"
)

var requiredItemFields = map[string]bool{
	ledger.FieldTitle:   true,
	ledger.FieldLink:    true,
	ledger.FieldPubDate: true,
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Run serializes records, already in display order, as an RSS 2.0 document.
// Item elements follow the order of fields.
func (g *Generator) Run(channel Channel, records []ledger.Record, fields []string) (string, error) {
	if len(fields) == 0 {
		fields = ledger.DefaultFields
	}

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", channel.Title, 4, true)
	g.writeElement(&buf, "description", channel.Description, 4, true)
	g.writeElement(&buf, "link", channel.Link, 4, false)

	for _, record := range records {
		g.writeItem(&buf, record, fields)
	}

	buf.WriteString("  </channel>\n</rss>\n")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, record ledger.Record, fields []string) {
	buf.WriteString("    <item>\n")

	for _, field := range fields {
		g.writeElement(buf, field, record[field], 6, requiredItemFields[field])
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int, always bool) {
	content = StripControlChars(content)
	if content == "" && !always {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

// StripControlChars removes characters that are not allowed in XML 1.0
// text: 0x00-0x08, 0x0B, 0x0C, 0x0E-0x1F and 0x7F.
func StripControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			return r
		case r < 0x20 || r == 0x7F:
			return -1
		}
		return r
	}, s)
}
