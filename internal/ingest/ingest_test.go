package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectSource(t *testing.T) {
	cases := map[string]SourceType{
		"https://example.com/story": SourceURL,
		"book.PDF":                  SourcePDF,
		"notes.txt":                 SourceText,
		"notes.md":                  SourceText,
		"tale.epub":                 SourceEPUB,
		"tale.mobi":                 SourceMOBI,
		"tale.docx":                 SourceUnknown,
		"README":                    SourceUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, DetectSource(in), in)
	}
}

func TestNewIngester_Unsupported(t *testing.T) {
	_, err := NewIngester("story.docx")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), ".docx")

	_, err = Ingest(context.Background(), "story")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestTextIngester(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fox.txt")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffThe Clever Fox\nOnce there was a fox.\n"), 0644))

	c, err := Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "The Clever Fox", c.Title)
	assert.Equal(t, "fox.txt", c.Source)
	assert.Equal(t, 8, c.WordCount)
}

func TestTextIngester_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0644))

	_, err := Ingest(context.Background(), path)
	assert.Error(t, err)
}

func TestFromText(t *testing.T) {
	c, err := FromText("  A tiny tale.\nThe end. ", "")
	require.NoError(t, err)
	assert.Equal(t, "A tiny tale.", c.Title)
	assert.Equal(t, "inline", c.Source)

	_, err = FromText("   ", "x")
	assert.Error(t, err)
}

func TestHTMLToText(t *testing.T) {
	got, err := htmlToText(strings.NewReader(`<html><head><title>T</title><style>p{}</style></head>
<body><h1>Chapter One</h1><p>The   mouse
was brave.</p><div>She <b>ran</b> home.</div><script>x()</script></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Chapter One\n\nThe mouse was brave.\n\nShe ran home.", got)
}

func writeEPUB(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct{ name, body string }{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`},
		{"OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>The Brave Mouse</dc:title></metadata>
  <manifest>
    <item id="c1" href="text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="text/ch2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine><itemref idref="c2"/><itemref idref="c1"/></spine>
</package>`},
		{"OEBPS/text/ch1.xhtml", `<html><body><p>Chapter one text.</p></body></html>`},
		{"OEBPS/text/ch2.xhtml", `<html><body><p>Chapter two text.</p></body></html>`},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestEPUBIngester_SpineOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mouse.epub")
	writeEPUB(t, path)

	c, err := Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "The Brave Mouse", c.Title)
	assert.Equal(t, "Chapter two text.\n\nChapter one text.", c.Text)
}

func TestEPUBIngester_NotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.epub")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0644))

	_, err := Ingest(context.Background(), path)
	assert.Error(t, err)
}

// buildMOBI assembles a two-record PalmDB file: a MOBI header record and
// one text record followed by a single multibyte trailer byte.
func buildMOBI(t *testing.T, text []byte, compression uint16, title string) []byte {
	t.Helper()

	const mobiLen = 0xE8
	rec0 := make([]byte, 16+mobiLen)
	binary.BigEndian.PutUint16(rec0[0:], compression)
	binary.BigEndian.PutUint32(rec0[4:], uint32(len(text)))
	binary.BigEndian.PutUint16(rec0[8:], 1)
	binary.BigEndian.PutUint16(rec0[10:], 4096)
	copy(rec0[16:], "MOBI")
	binary.BigEndian.PutUint32(rec0[20:], mobiLen)
	binary.BigEndian.PutUint32(rec0[28:], encodingUTF8)
	binary.BigEndian.PutUint32(rec0[84:], uint32(len(rec0)))
	binary.BigEndian.PutUint32(rec0[88:], uint32(len(title)))
	binary.BigEndian.PutUint16(rec0[16+0xE2:], 0x0001)
	rec0 = append(rec0, title...)

	rec1 := append(append([]byte{}, text...), 0x00)

	hdr := make([]byte, palmHeaderLen+2*8+2)
	copy(hdr, "test-book")
	binary.BigEndian.PutUint16(hdr[76:], 2)
	off0 := len(hdr)
	off1 := off0 + len(rec0)
	binary.BigEndian.PutUint32(hdr[palmHeaderLen:], uint32(off0))
	binary.BigEndian.PutUint32(hdr[palmHeaderLen+8:], uint32(off1))

	out := append(hdr, rec0...)
	return append(out, rec1...)
}

func TestMOBIIngester(t *testing.T) {
	body := []byte(`<html><body><p>Once upon a time.</p><mbp:pagebreak/><p>The end.</p></body></html>`)

	for name, comp := range map[string]uint16{"none": compressionNone, "palmdoc": compressionPalm} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tale.mobi")
			require.NoError(t, os.WriteFile(path, buildMOBI(t, body, comp, "Little Tale"), 0644))

			c, err := Ingest(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, "Little Tale", c.Title)
			assert.Equal(t, "Once upon a time.\n\nThe end.", c.Text)
		})
	}
}

func TestMOBIIngester_HuffRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huff.mobi")
	require.NoError(t, os.WriteFile(path, buildMOBI(t, []byte("x"), compressionHuff, "H"), 0644))

	_, err := Ingest(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestMOBIIngester_Truncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.mobi")
	require.NoError(t, os.WriteFile(path, []byte("tiny"), 0644))

	_, err := Ingest(context.Background(), path)
	assert.ErrorIs(t, err, errMalformedMOBI)
}

func TestPalmDocDecompress(t *testing.T) {
	in := []byte{'a', 'b', 'c', 0x80, 0x18, 0xC1, 0x02, 0x01, 0x05}
	assert.Equal(t, []byte{'a', 'b', 'c', 'a', 'b', 'c', ' ', 'A', 0x01, 0x05}, palmDocDecompress(in))
}

func TestTrailingSize(t *testing.T) {
	assert.Equal(t, 0, trailingSize([]byte("abc"), 0))
	assert.Equal(t, 3, trailingSize([]byte{'x', 0x02}, 0x0001))
	// One extra entry whose size byte (0x83) covers three bytes.
	assert.Equal(t, 3, trailingSize([]byte{'x', 'y', 'z', 0x00, 0x00, 0x83}, 0x0002))
}

func TestURLIngester_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := (&URLIngester{}).Ingest(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}
