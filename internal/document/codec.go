package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatMRML = "mrml"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrUnsupportedVersion = errors.New("unsupported document version")
)

// Codec converts between bytes and a Document. Decoding checks syntax only;
// node-level validation is left to the merge engine so one bad node does not
// sink the whole document.
type Codec interface {
	Format() string
	ContentType() string
	Decode(r io.Reader) (*Document, error)
	Encode(w io.Writer, doc *Document) error
}

// CodecFor returns the codec for a format name. The empty name selects MRML.
func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case FormatMRML, "", "xml":
		return mrmlCodec{}, nil
	case FormatYAML, "yml":
		return yamlCodec{}, nil
	case FormatJSON:
		return jsonCodec{}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
}

// CheckVersion accepts documents written by this version and documents that
// carry no version at all.
func CheckVersion(doc *Document) error {
	if doc.Version != "" && doc.Version != CurrentVersion {
		return fmt.Errorf("%w %q (want %q)", ErrUnsupportedVersion, doc.Version, CurrentVersion)
	}
	return nil
}

type yamlCodec struct{}

func (yamlCodec) Format() string      { return FormatYAML }
func (yamlCodec) ContentType() string { return "application/yaml" }

func (yamlCodec) Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return &Document{}, nil
		}
		return nil, fmt.Errorf("decode yaml document: %w", err)
	}
	return &doc, nil
}

func (yamlCodec) Encode(w io.Writer, doc *Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml document: %w", err)
	}
	return enc.Close()
}

type jsonCodec struct{}

func (jsonCodec) Format() string      { return FormatJSON }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json document: %w", err)
	}
	return &doc, nil
}

func (jsonCodec) Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json document: %w", err)
	}
	return nil
}
