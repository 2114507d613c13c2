package ingest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// MOBIIngester reads PalmDB-based MOBI books stored uncompressed or with
// PalmDOC compression. HUFF/CDIC compressed and DRM-protected books are
// rejected with ErrUnsupportedFormat.
type MOBIIngester struct{}

const (
	palmHeaderLen   = 78
	compressionNone = 1
	compressionPalm = 2
	compressionHuff = 17480

	encodingCP1252 = 1252
	encodingUTF8   = 65001
)

var errMalformedMOBI = errors.New("malformed MOBI file")

type mobiHeader struct {
	compression  uint16
	textRecords  int
	encryption   uint16
	encoding     uint32
	title        string
	trailerFlags uint16
}

func (m *MOBIIngester) Ingest(ctx context.Context, source string) (*Content, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("could not read MOBI %s: %w", source, err)
	}

	raw, title, err := extractMOBI(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("MOBI %s: %w", source, err)
	}

	text, err := htmlToText(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("MOBI %s: parse markup: %w", source, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("no readable text in MOBI %s", source)
	}
	return newContent(text, title, filepath.Base(source)), nil
}

// extractMOBI returns the book markup as UTF-8 plus the stored title.
func extractMOBI(ctx context.Context, data []byte) ([]byte, string, error) {
	records, err := palmRecords(data)
	if err != nil {
		return nil, "", err
	}
	hdr, err := parseMOBIHeader(records[0])
	if err != nil {
		return nil, "", err
	}
	if hdr.encryption != 0 {
		return nil, "", fmt.Errorf("%w: encrypted book", ErrUnsupportedFormat)
	}
	switch hdr.compression {
	case compressionNone, compressionPalm:
	case compressionHuff:
		return nil, "", fmt.Errorf("%w: HUFF/CDIC compression", ErrUnsupportedFormat)
	default:
		return nil, "", fmt.Errorf("%w: compression type %d", ErrUnsupportedFormat, hdr.compression)
	}
	if hdr.textRecords >= len(records) {
		return nil, "", errMalformedMOBI
	}

	var out bytes.Buffer
	for i := 1; i <= hdr.textRecords; i++ {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		rec := records[i]
		if n := trailingSize(rec, hdr.trailerFlags); n <= len(rec) {
			rec = rec[:len(rec)-n]
		}
		if hdr.compression == compressionPalm {
			rec = palmDocDecompress(rec)
		}
		out.Write(rec)
	}

	raw := out.Bytes()
	title := hdr.title
	if hdr.encoding == encodingCP1252 {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
		if err != nil {
			return nil, "", fmt.Errorf("decode cp1252: %w", err)
		}
		raw = decoded
		if t, err := charmap.Windows1252.NewDecoder().String(title); err == nil {
			title = t
		}
	}
	return raw, title, nil
}

// palmRecords slices a PalmDB file into its records.
func palmRecords(data []byte) ([][]byte, error) {
	if len(data) < palmHeaderLen {
		return nil, errMalformedMOBI
	}
	n := int(binary.BigEndian.Uint16(data[76:78]))
	if n == 0 || len(data) < palmHeaderLen+8*n {
		return nil, errMalformedMOBI
	}

	offsets := make([]int, n+1)
	for i := 0; i < n; i++ {
		offsets[i] = int(binary.BigEndian.Uint32(data[palmHeaderLen+8*i:]))
	}
	offsets[n] = len(data)

	records := make([][]byte, n)
	for i := 0; i < n; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > end || end > len(data) {
			return nil, errMalformedMOBI
		}
		records[i] = data[start:end]
	}
	return records, nil
}

func parseMOBIHeader(rec0 []byte) (mobiHeader, error) {
	if len(rec0) < 16 {
		return mobiHeader{}, errMalformedMOBI
	}
	hdr := mobiHeader{
		compression: binary.BigEndian.Uint16(rec0[0:2]),
		textRecords: int(binary.BigEndian.Uint16(rec0[8:10])),
		encryption:  binary.BigEndian.Uint16(rec0[12:14]),
		encoding:    encodingCP1252,
	}

	// Plain PalmDOC books stop here; MOBI books carry a second header.
	if len(rec0) < 32 || string(rec0[16:20]) != "MOBI" {
		return hdr, nil
	}
	mobiLen := int(binary.BigEndian.Uint32(rec0[20:24]))
	hdr.encoding = binary.BigEndian.Uint32(rec0[28:32])

	if len(rec0) >= 92 {
		off := int(binary.BigEndian.Uint32(rec0[84:88]))
		n := int(binary.BigEndian.Uint32(rec0[88:92]))
		if off > 0 && off+n <= len(rec0) {
			hdr.title = string(rec0[off : off+n])
		}
	}
	if mobiLen >= 0xE4 && len(rec0) >= 16+0xE4 {
		hdr.trailerFlags = binary.BigEndian.Uint16(rec0[16+0xE2 : 16+0xE4])
	}
	return hdr, nil
}

// trailingSize is the number of bytes of extra data appended to a text
// record, as described by the MOBI extra-data flags.
func trailingSize(rec []byte, flags uint16) int {
	size := 0
	for bit := 15; bit > 0; bit-- {
		if flags&(1<<bit) == 0 {
			continue
		}
		if size >= len(rec) {
			return size
		}
		size += backwardVarint(rec[:len(rec)-size])
	}
	if flags&1 != 0 && size < len(rec) {
		size += int(rec[len(rec)-size-1]&0x3) + 1
	}
	return size
}

// backwardVarint reads a variable-width integer stored at the end of b,
// where the high bit marks the first byte of the value.
func backwardVarint(b []byte) int {
	value, shift := 0, 0
	for i := len(b) - 1; i >= 0 && i >= len(b)-4; i-- {
		c := b[i]
		value |= int(c&0x7F) << shift
		shift += 7
		if c&0x80 != 0 {
			break
		}
	}
	return value
}

// palmDocDecompress expands PalmDOC LZ77 compressed data.
func palmDocDecompress(in []byte) []byte {
	out := make([]byte, 0, len(in)*2)
	for i := 0; i < len(in); {
		c := in[i]
		i++
		switch {
		case c >= 1 && c <= 8:
			end := i + int(c)
			if end > len(in) {
				end = len(in)
			}
			out = append(out, in[i:end]...)
			i = end
		case c < 0x80:
			out = append(out, c)
		case c >= 0xC0:
			out = append(out, ' ', c^0x80)
		default:
			if i >= len(in) {
				return out
			}
			pair := int(c)<<8 | int(in[i])
			i++
			dist := (pair >> 3) & 0x7FF
			n := pair&0x7 + 3
			if dist == 0 || dist > len(out) {
				continue
			}
			start := len(out) - dist
			for k := 0; k < n; k++ {
				out = append(out, out[start+k])
			}
		}
	}
	return out
}
