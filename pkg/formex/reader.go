package formex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

// AnnexDocument is one annex sub-document: its own XML file with its own root.
type AnnexDocument struct {
	Path string
	Root *xmlquery.Node
}

// DocumentSet holds the element trees for one Formex publication: the main
// ACT document plus one sub-document per annex. The trees are read once and
// shared, read-only, by the structural parser and the exhaustive extractor.
type DocumentSet struct {
	ActPath string
	Act     *xmlquery.Node
	Annexes []AnnexDocument
}

// LoadTree reads a single XML document into an element tree. No
// interpretation happens here; the tree is handed to the parsers as-is.
func LoadTree(r io.Reader) (*xmlquery.Node, error) {
	root, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	return root, nil
}

// LoadDocumentSet scans a directory of extracted Formex files and loads the
// main ACT document and every annex sub-document.
//
// File classification follows the Publications Office naming convention:
// the ACT carries the ".000101." sequence marker; ".toc." and ".doc."
// files are tables of contents and cover sheets and are skipped.
func LoadDocumentSet(dir string) (*DocumentSet, error) {
	entries, err := filepath.Glob(filepath.Join(dir, "*.fmx.xml"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(entries)

	set := &DocumentSet{}
	for _, path := range entries {
		name := filepath.Base(path)
		switch {
		case strings.Contains(name, ".toc."), strings.Contains(name, ".doc."):
			continue
		case strings.Contains(name, ".000101."):
			if set.Act == nil {
				root, err := loadFile(path)
				if err != nil {
					return nil, err
				}
				set.ActPath = path
				set.Act = root
			}
		default:
			root, err := loadFile(path)
			if err != nil {
				return nil, err
			}
			set.Annexes = append(set.Annexes, AnnexDocument{Path: path, Root: root})
		}
	}

	if set.Act == nil {
		return nil, fmt.Errorf("no main ACT file (*.000101.fmx.xml) found in %s", dir)
	}
	return set, nil
}

func loadFile(path string) (*xmlquery.Node, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	root, err := xmlquery.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return root, nil
}
