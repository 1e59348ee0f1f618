package feed

import (
	"bytes"
	"encoding/xml"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Message is a decoded incident frame waiting in the listener queue
type Message struct {
	Sequence    string
	MessageType string
	ReceivedAt  time.Time
	Incident    *PtIncident
}

// PtIncident mirrors the Knowledgebase PtIncidentStructure. Element names are
// matched without their namespace prefix, so ns2:/ns3: variants decode alike.
type PtIncident struct {
	CreationTime   string         `xml:"CreationTime" json:"CreationTime,omitempty"`
	IncidentNumber string         `xml:"IncidentNumber" json:"IncidentNumber,omitempty"`
	ValidityPeriod ValidityPeriod `xml:"ValidityPeriod" json:"ValidityPeriod"`
	Planned        string         `xml:"Planned" json:"Planned,omitempty"`
	Summary        string         `xml:"Summary" json:"Summary"`
	Description    string         `xml:"Description" json:"Description,omitempty"`
	InfoLinks      InfoLinks      `xml:"InfoLinks" json:"InfoLinks"`
	Affects        Affects        `xml:"Affects" json:"Affects"`
}

type ValidityPeriod struct {
	StartTime string `xml:"StartTime" json:"StartTime"`
	EndTime   string `xml:"EndTime" json:"EndTime,omitempty"`
}

type InfoLinks struct {
	InfoLink InfoLinkList `xml:"InfoLink" json:"InfoLink"`
}

type InfoLink struct {
	Uri   string `xml:"Uri" json:"Uri"`
	Label string `xml:"Label" json:"Label,omitempty"`
}

type Affects struct {
	Operators      Operators `xml:"Operators" json:"Operators"`
	RoutesAffected Markup    `xml:"RoutesAffected" json:"RoutesAffected"`
}

type Operators struct {
	AffectedOperator AffectedOperatorList `xml:"AffectedOperator" json:"AffectedOperator"`
}

type AffectedOperator struct {
	OperatorRef  string `xml:"OperatorRef" json:"OperatorRef,omitempty"`
	OperatorName string `xml:"OperatorName" json:"OperatorName"`
}

// AffectedOperatorList decodes from either a single operator object or a list
type AffectedOperatorList []AffectedOperator

func (l *AffectedOperatorList) UnmarshalJSON(b []byte) error {
	var items []AffectedOperator
	if err := unmarshalOneOrMany(b, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// InfoLinkList decodes from either a single link object or a list
type InfoLinkList []InfoLink

func (l *InfoLinkList) UnmarshalJSON(b []byte) error {
	var items []InfoLink
	if err := unmarshalOneOrMany(b, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

func unmarshalOneOrMany[T any](b []byte, out *[]T) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0, bytes.Equal(b, []byte("null")):
		*out = nil
		return nil
	case b[0] == '[':
		return json.Unmarshal(b, out)
	default:
		var one T
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*out = []T{one}
		return nil
	}
}

// Markup holds element content that may arrive either entity-escaped
// (&lt;p&gt;) or as literal child elements (<p>). Both decode to the same text.
type Markup string

func (m *Markup) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var b strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			depth++
			b.WriteString("<" + t.Name.Local + ">")
		case xml.EndElement:
			if depth == 0 {
				*m = Markup(b.String())
				return nil
			}
			depth--
			b.WriteString("</" + t.Name.Local + ">")
		}
	}
}

// FirstURI returns the first info link, or "" when there is none
func (p *PtIncident) FirstURI() string {
	for _, link := range p.InfoLinks.InfoLink {
		if uri := strings.TrimSpace(link.Uri); uri != "" {
			return uri
		}
	}
	return ""
}
