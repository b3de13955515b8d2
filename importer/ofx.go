package importer

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/warp/cashflow-engine/engine"
)

// OFXParser parses OFX bank statements, both 1.x (SGML, leaf tags left
// unclosed) and 2.x (XML).
type OFXParser struct{}

const ofxDateLayout = "20060102"

// Format returns the parser name.
func (p *OFXParser) Format() string { return "ofx" }

// Parse reads every STMTTRN of the statement.
func (p *OFXParser) Parse(r io.Reader) ([]Candidate, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading OFX: %w", err)
	}
	start := bytes.IndexByte(raw, '<')
	if start < 0 {
		return nil, fmt.Errorf("reading OFX: no markup found")
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(sgmlToXML(string(raw[start:]))); err != nil {
		return nil, fmt.Errorf("parsing OFX: %w", err)
	}

	var out []Candidate
	refs := make(refCounter)
	for i, trn := range doc.FindElements("//STMTTRN") {
		c, err := parseOFXTransaction(trn, refs)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i+1, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseOFXTransaction(trn *etree.Element, refs refCounter) (Candidate, error) {
	posted := childText(trn, "DTPOSTED")
	if len(posted) < len(ofxDateLayout) {
		return Candidate{}, fmt.Errorf("parsing date %q: too short", posted)
	}
	t, err := time.Parse(ofxDateLayout, posted[:len(ofxDateLayout)])
	if err != nil {
		return Candidate{}, fmt.Errorf("parsing date %q: %w", posted, err)
	}

	amount, err := parseAmount(childText(trn, "TRNAMT"))
	if err != nil {
		return Candidate{}, fmt.Errorf("parsing amount %q: %w", childText(trn, "TRNAMT"), err)
	}

	desc := childText(trn, "NAME")
	if memo := childText(trn, "MEMO"); desc == "" {
		desc = memo
	} else if memo != "" && memo != desc {
		desc += " " + memo
	}

	id := childText(trn, "FITID")
	if id == "" {
		id = refs.next(makeRef("ofx", t, desc, amount))
	}

	return Candidate{
		Date:        engine.DateOf(t),
		Amount:      amount,
		Description: desc,
		ExternalID:  id,
	}, nil
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

// sgmlToXML closes OFX 1.x leaf elements (<TRNAMT>-12.50 becomes
// <TRNAMT>-12.50</TRNAMT>). Elements that are already closed, such as in
// OFX 2.x, pass through unchanged.
func sgmlToXML(body string) string {
	var b strings.Builder
	rest := body
	for {
		open := strings.IndexByte(rest, '<')
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open])
		end := strings.IndexByte(rest[open:], '>')
		if end < 0 {
			b.WriteString(rest[open:])
			return b.String()
		}
		tag := rest[open+1 : open+end]
		b.WriteString(rest[open : open+end+1])
		rest = rest[open+end+1:]

		if tag == "" || strings.HasPrefix(tag, "/") || strings.HasPrefix(tag, "?") || strings.HasPrefix(tag, "!") || strings.HasSuffix(tag, "/") {
			continue
		}
		next := strings.IndexByte(rest, '<')
		if next < 0 {
			next = len(rest)
		}
		text := strings.TrimSpace(rest[:next])
		if text == "" {
			continue
		}
		xml.EscapeText(&b, []byte(html.UnescapeString(text)))
		rest = rest[next:]
		name := strings.Fields(tag)[0]
		if !strings.HasPrefix(rest, "</"+name+">") {
			b.WriteString("</" + name + ">")
		}
	}
}
