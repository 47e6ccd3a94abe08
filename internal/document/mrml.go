package document

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// The markup form keeps one element per node under an <MRML> root. The
// element name is the type tag; id, name and references are reserved
// attributes and every other attribute goes into the attribute bag:
//
//	<MRML version="1">
//	  <Model id="Model1" name="liver" references="display:ModelDisplay1 ModelDisplay2;parent:Folder1" color="red"/>
//	</MRML>
const (
	mrmlRoot       = "MRML"
	attrID         = "id"
	attrName       = "name"
	attrReferences = "references"
	attrVersion    = "version"
)

type mrmlCodec struct{}

func (mrmlCodec) Format() string      { return FormatMRML }
func (mrmlCodec) ContentType() string { return "application/xml" }

func (mrmlCodec) Decode(r io.Reader) (*Document, error) {
	d := xml.NewDecoder(r)
	doc := &Document{}
	sawRoot := false
	depth := 0
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			if !sawRoot {
				return nil, fmt.Errorf("decode mrml document: missing <%s> root", mrmlRoot)
			}
			return doc, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode mrml document: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if sawRoot {
					return nil, fmt.Errorf("decode mrml document: more than one root element")
				}
				if t.Name.Local != mrmlRoot {
					return nil, fmt.Errorf("decode mrml document: root element is <%s>, want <%s>", t.Name.Local, mrmlRoot)
				}
				doc.Version = attrValue(t.Attr, attrVersion)
				sawRoot = true
				depth++
				continue
			}
			doc.Nodes = append(doc.Nodes, protoFromElement(t))
			// Nested content (e.g. free text) carries nothing we keep.
			if err := d.Skip(); err != nil {
				return nil, fmt.Errorf("decode mrml document: %w", err)
			}
		case xml.EndElement:
			depth--
		}
	}
}

func attrValue(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func protoFromElement(el xml.StartElement) ProtoNode {
	p := ProtoNode{TypeTag: el.Name.Local}
	for _, a := range el.Attr {
		switch a.Name.Local {
		case attrID:
			p.ID = a.Value
		case attrName:
			p.Name = a.Value
		case attrReferences:
			p.References = parseReferences(a.Value)
		default:
			if p.Attributes == nil {
				p.Attributes = make(map[string]string)
			}
			p.Attributes[a.Name.Local] = a.Value
		}
	}
	return p
}

// parseReferences reads "role:id id;role2:id". A segment without a role is
// kept under the empty role so validation rejects the node rather than the
// codec silently dropping data.
func parseReferences(raw string) map[string][]string {
	refs := make(map[string][]string)
	for _, seg := range strings.Split(raw, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		role, targets, ok := strings.Cut(seg, ":")
		if !ok {
			refs[""] = append(refs[""], strings.Fields(seg)...)
			continue
		}
		role = strings.TrimSpace(role)
		refs[role] = append(refs[role], strings.Fields(targets)...)
	}
	if len(refs) == 0 {
		return nil
	}
	return refs
}

func formatReferences(p ProtoNode) string {
	var segs []string
	for _, role := range p.Roles() {
		targets := p.References[role]
		if len(targets) == 0 {
			continue
		}
		segs = append(segs, role+":"+strings.Join(targets, " "))
	}
	return strings.Join(segs, ";")
}

func (mrmlCodec) Encode(w io.Writer, doc *Document) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	version := doc.Version
	if version == "" {
		version = CurrentVersion
	}
	root := xml.StartElement{
		Name: xml.Name{Local: mrmlRoot},
		Attr: []xml.Attr{{Name: xml.Name{Local: attrVersion}, Value: version}},
	}
	if err := enc.EncodeToken(root); err != nil {
		return fmt.Errorf("encode mrml document: %w", err)
	}
	for _, p := range doc.Nodes {
		el := xml.StartElement{Name: xml.Name{Local: p.TypeTag}}
		el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: attrID}, Value: p.ID})
		if p.Name != "" {
			el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: attrName}, Value: p.Name})
		}
		if refs := formatReferences(p); refs != "" {
			el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: attrReferences}, Value: refs})
		}
		keys := make([]string, 0, len(p.Attributes))
		for k := range p.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: k}, Value: p.Attributes[k]})
		}
		if err := enc.EncodeToken(el); err != nil {
			return fmt.Errorf("encode mrml node %s: %w", p.ID, err)
		}
		if err := enc.EncodeToken(el.End()); err != nil {
			return fmt.Errorf("encode mrml node %s: %w", p.ID, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return fmt.Errorf("encode mrml document: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return fmt.Errorf("encode mrml document: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
