package keyfile

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// KeySize is the size of generated keys, and the only key size the binary
// and hex formats can represent.
const KeySize = 32

const (
	// xmlHashLen is how many leading bytes of SHA-256 a version 2.0 key
	// file stores as its checksum.
	xmlHashLen = 4

	hexGroupLen     = 8
	hexGroupsPerRow = 4
)

// Encode writes key to w as a key file in format f. Binary and hex files can
// only hold KeySize-byte keys; any other length would be read back as a
// digest key file. FormatDigest cannot be encoded.
func Encode(w io.Writer, key []byte, f Format) error {
	if len(key) == 0 {
		return errors.New("encoding key file: empty key")
	}

	var out string
	switch f {
	case FormatBinary, FormatHex:
		if len(key) != KeySize {
			return fmt.Errorf("encoding %s key file: key must be %d bytes, got %d", f, KeySize, len(key))
		}
		if f == FormatBinary {
			if _, err := w.Write(key); err != nil {
				return fmt.Errorf("writing key file: %w", err)
			}
			return nil
		}
		out = hex.EncodeToString(key)
	case FormatXMLV1:
		out = xmlKeyFileV1(key)
	case FormatXMLV2:
		out = xmlKeyFileV2(key)
	default:
		return fmt.Errorf("encoding key file: format %s is not encodable", f)
	}

	if _, err := io.WriteString(w, out); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

// Generate creates a random KeySize-byte key, writes it to w in format f
// and returns it.
func Generate(w io.Writer, f Format) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if err := Encode(w, key, f); err != nil {
		return nil, err
	}
	return key, nil
}

func xmlKeyFileV1(key []byte) string {
	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	sb.WriteString("<KeyFile>\n")
	sb.WriteString("\t<Meta>\n\t\t<Version>1.00</Version>\n\t</Meta>\n")
	sb.WriteString("\t<Key>\n")
	fmt.Fprintf(&sb, "\t\t<Data>%s</Data>\n", base64.StdEncoding.EncodeToString(key))
	sb.WriteString("\t</Key>\n")
	sb.WriteString("</KeyFile>\n")
	return sb.String()
}

// xmlKeyFileV2 lays out key data the way KeePass 2.x does: uppercase hex in
// groups of eight, four groups per line.
func xmlKeyFileV2(key []byte) string {
	sum := sha256.Sum256(key)
	data := strings.ToUpper(hex.EncodeToString(key))

	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	sb.WriteString("<KeyFile>\n")
	fmt.Fprintf(&sb, "\t<Meta>\n\t\t<Version>%s</Version>\n\t</Meta>\n", xmlVersion2)
	sb.WriteString("\t<Key>\n")
	fmt.Fprintf(&sb, "\t\t<Data Hash=\"%s\">\n", strings.ToUpper(hex.EncodeToString(sum[:xmlHashLen])))
	for row := 0; row < len(data); row += hexGroupLen * hexGroupsPerRow {
		end := min(row+hexGroupLen*hexGroupsPerRow, len(data))
		var groups []string
		for i := row; i < end; i += hexGroupLen {
			groups = append(groups, data[i:min(i+hexGroupLen, end)])
		}
		fmt.Fprintf(&sb, "\t\t\t%s\n", strings.Join(groups, " "))
	}
	sb.WriteString("\t\t</Data>\n")
	sb.WriteString("\t</Key>\n")
	sb.WriteString("</KeyFile>\n")
	return sb.String()
}
