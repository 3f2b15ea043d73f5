package keyfile

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/ianaindex"
)

// xmlVersion2 is the only version whose key data is hex encoded and
// checksummed. Every other version, including none, is base64.
const xmlVersion2 = "2.0"

// xmlKeyFile is the subset of a KeePass XML key file needed to extract the
// key. Repeated elements are collected so the first one can be chosen.
type xmlKeyFile struct {
	XMLName xml.Name  `xml:"KeyFile"`
	Meta    []xmlMeta `xml:"Meta"`
	Key     []xmlKey  `xml:"Key"`
}

type xmlMeta struct {
	Version []string `xml:"Version"`
}

type xmlKey struct {
	Data []xmlKeyData `xml:"Data"`
}

type xmlKeyData struct {
	Hash  string `xml:"Hash,attr"`
	Value string `xml:",chardata"`
}

// version returns the first Meta/Version text, or "" if absent.
func (kf *xmlKeyFile) version() string {
	for _, m := range kf.Meta {
		if len(m.Version) > 0 {
			return m.Version[0]
		}
	}
	return ""
}

// data returns the first Key/Data node.
func (kf *xmlKeyFile) data() (xmlKeyData, bool) {
	for _, k := range kf.Key {
		if len(k.Data) > 0 {
			return k.Data[0], true
		}
	}
	return xmlKeyData{}, false
}

// parseXMLKeyFile decodes rc as a KeePass XML key file. rc is always closed;
// callers that need the stream afterwards must hand in a reader whose Close
// does nothing.
//
// Documents that are not well-formed XML, or contain no KeyFile element,
// yield verdictNoMatch. A KeyFile element without key data, or whose version
// 2.0 checksum does not match, yields verdictFatal.
func parseXMLKeyFile(rc io.ReadCloser) (*Result, verdict, error) {
	defer rc.Close()

	dec := xml.NewDecoder(&prologReader{r: rc})
	dec.CharsetReader = charsetReader

	found, err := decodeKeyFiles(dec)
	if err != nil {
		return nil, verdictNoMatch, fmt.Errorf("parsing XML key file: %w", err)
	}
	if len(found) == 0 {
		return nil, verdictNoMatch, errors.New("parsing XML key file: no KeyFile element")
	}
	kf := mergeKeyFiles(found)

	node, ok := kf.data()
	if !ok {
		return nil, verdictFatal, ErrMissingKeyData
	}
	data := stripSpace(node.Value)
	if data == "" {
		return nil, verdictFatal, ErrMissingKeyData
	}

	version := kf.version()
	if version != xmlVersion2 {
		key, err := decodeBase64(data)
		if err != nil {
			return nil, verdictNoMatch, fmt.Errorf("decoding base64 key data: %w", err)
		}
		return &Result{Key: key, Format: FormatXMLV1, Version: version}, verdictMatch, nil
	}

	key, err := hex.DecodeString(data)
	if err != nil {
		return nil, verdictNoMatch, fmt.Errorf("decoding hex key data: %w", err)
	}
	want, err := hex.DecodeString(stripSpace(node.Hash))
	if err != nil {
		return nil, verdictNoMatch, fmt.Errorf("decoding key data hash: %w", err)
	}
	if !truncatedHashMatches(key, want) {
		return nil, verdictFatal, ErrHashMismatch
	}
	return &Result{Key: key, Format: FormatXMLV2, Version: version}, verdictMatch, nil
}

// decodeKeyFiles reads dec to the end of the document and decodes every
// KeyFile element, at any depth, in document order. The document must have
// exactly one root element with only whitespace, comments, processing
// instructions and directives around it.
func decodeKeyFiles(dec *xml.Decoder) ([]xmlKeyFile, error) {
	var (
		found    []xmlKeyFile
		depth    int
		rootSeen bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			if !rootSeen {
				return nil, errors.New("no root element")
			}
			return found, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if rootSeen {
					return nil, fmt.Errorf("second root element <%s>", t.Name.Local)
				}
				rootSeen = true
			}
			if t.Name.Local == "KeyFile" {
				var kf xmlKeyFile
				if err := dec.DecodeElement(&kf, &t); err != nil {
					return nil, err
				}
				found = append(found, kf)
				continue
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && !isBlank(t) {
				return nil, errors.New("text outside the root element")
			}
		}
	}
}

// mergeKeyFiles folds several KeyFile elements into one so that version and
// data each resolve to their first occurrence in the document.
func mergeKeyFiles(found []xmlKeyFile) *xmlKeyFile {
	if len(found) == 1 {
		return &found[0]
	}
	var kf xmlKeyFile
	for _, f := range found {
		kf.Meta = append(kf.Meta, f.Meta...)
		kf.Key = append(kf.Key, f.Key...)
	}
	return &kf
}

// isBlank reports whether text outside the root element is only XML
// whitespace or a UTF-8 byte order mark.
func isBlank(text []byte) bool {
	for _, c := range bytes.TrimPrefix(text, utf8BOM) {
		if !isXMLSpace(c) {
			return false
		}
	}
	return true
}

func isXMLSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}

	errNotMarkup = errors.New("content before the first element is not markup")
)

// maxPrologSpace caps the whitespace accepted ahead of the first '<'.
const maxPrologSpace = 64 << 10

// prologReader fails as soon as the bytes ahead of the first '<' are anything
// other than a byte order mark or whitespace, so a large plain file is
// rejected without the decoder buffering it as character data.
type prologReader struct {
	r      io.Reader
	offset int
	done   bool
}

func (p *prologReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if p.done {
		return n, err
	}
	for i, c := range b[:n] {
		off := p.offset + i
		switch {
		case c == '<':
			p.done = true
			return n, err
		case isXMLSpace(c):
		case off < len(utf8BOM) && c == utf8BOM[off]:
		default:
			return i, errNotMarkup
		}
	}
	p.offset += n
	if p.offset > maxPrologSpace {
		return n, errNotMarkup
	}
	return n, err
}

// truncatedHashMatches reports whether want equals the leading len(want)
// bytes of SHA-256(data).
func truncatedHashMatches(data, want []byte) bool {
	sum := sha256.Sum256(data)
	if len(want) > len(sum) {
		return false
	}
	return bytes.Equal(sum[:len(want)], want)
}

// decodeBase64 accepts padded and unpadded standard base64.
func decodeBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return key, nil
	}
	if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
		return raw, nil
	}
	return nil, err
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// charsetReader decodes XML documents that declare a non-UTF-8 encoding.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("looking up charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
