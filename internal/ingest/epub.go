package ingest

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

type EPUBIngester struct{}

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Title    []string `xml:"metadata>title"`
	Manifest []struct {
		ID        string `xml:"id,attr"`
		Href      string `xml:"href,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef string `xml:"idref,attr"`
	} `xml:"spine>itemref"`
}

func (e *EPUBIngester) Ingest(ctx context.Context, source string) (*Content, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(source)
	if err != nil {
		return nil, fmt.Errorf("could not open EPUB %s: %w", source, err)
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var container epubContainer
	if err := decodeZipXML(files, "META-INF/container.xml", &container); err != nil {
		return nil, fmt.Errorf("EPUB %s: %w", source, err)
	}
	if len(container.Rootfiles) == 0 {
		return nil, fmt.Errorf("EPUB %s: container lists no package document", source)
	}
	opfPath := container.Rootfiles[0].FullPath

	var pkg epubPackage
	if err := decodeZipXML(files, opfPath, &pkg); err != nil {
		return nil, fmt.Errorf("EPUB %s: %w", source, err)
	}

	hrefs := make(map[string]string, len(pkg.Manifest))
	for _, item := range pkg.Manifest {
		hrefs[item.ID] = item.Href
	}
	base := path.Dir(opfPath)

	var chapters []string
	for _, ref := range pkg.Spine {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		href, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		f, ok := files[path.Join(base, href)]
		if !ok {
			continue
		}
		text, err := zipHTMLText(f)
		if err != nil {
			return nil, fmt.Errorf("EPUB %s: chapter %s: %w", source, href, err)
		}
		if text != "" {
			chapters = append(chapters, text)
		}
	}

	text := strings.TrimSpace(strings.Join(chapters, "\n\n"))
	if text == "" {
		return nil, fmt.Errorf("no readable text in EPUB %s", source)
	}

	title := ""
	if len(pkg.Title) > 0 {
		title = strings.TrimSpace(pkg.Title[0])
	}
	return newContent(text, title, filepath.Base(source)), nil
}

func decodeZipXML(files map[string]*zip.File, name string, v any) error {
	f, ok := files[name]
	if !ok {
		return fmt.Errorf("missing %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	if err := xml.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func zipHTMLText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return htmlToText(io.LimitReader(rc, maxInputSize))
}
