// File: internal/grounding/labels.go
package grounding

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// labelEntry is one <label> element lifted out of the captured DOM, with the
// linkage hints tier-1 grounding needs.
type labelEntry struct {
	text            string
	forID           string   // label[for] target
	labelID         string   // the label's own id, for aria-labelledby back-references
	descendantIDs   []string // ids of wrapped interactable descendants
	descendantNames []string // names of wrapped interactable descendants
	xpath           string
}

// labelIndex holds every label on the page in document order. Document
// order keeps grounding deterministic: the first structurally valid match
// wins.
type labelIndex struct {
	entries []labelEntry
}

// buildLabelIndex parses the serialized DOM and extracts all label elements.
// A page without labels yields an empty (usable) index.
func buildLabelIndex(dom string) (*labelIndex, error) {
	if strings.TrimSpace(dom) == "" {
		return &labelIndex{}, nil
	}
	doc, err := htmlquery.Parse(strings.NewReader(dom))
	if err != nil {
		return nil, fmt.Errorf("parsing captured DOM: %w", err)
	}

	nodes := htmlquery.Find(doc, "//label")
	idx := &labelIndex{entries: make([]labelEntry, 0, len(nodes))}
	for _, node := range nodes {
		entry := labelEntry{
			text:    strings.TrimSpace(htmlquery.InnerText(node)),
			forID:   htmlquery.SelectAttr(node, "for"),
			labelID: htmlquery.SelectAttr(node, "id"),
			xpath:   nodeXPath(node),
		}
		for _, desc := range htmlquery.Find(node, ".//input | .//select | .//textarea | .//button") {
			if id := htmlquery.SelectAttr(desc, "id"); id != "" {
				entry.descendantIDs = append(entry.descendantIDs, id)
			}
			if name := htmlquery.SelectAttr(desc, "name"); name != "" {
				entry.descendantNames = append(entry.descendantNames, name)
			}
		}
		if entry.text == "" && entry.forID == "" {
			continue
		}
		idx.entries = append(idx.entries, entry)
	}
	return idx, nil
}

// matching returns the entries whose text fuzzily equals the visual label,
// in document order.
func (idx *labelIndex) matching(visualLabel string) []labelEntry {
	if idx == nil || visualLabel == "" {
		return nil
	}
	var out []labelEntry
	for _, entry := range idx.entries {
		if entry.text != "" && fuzzyLabelEquals(entry.text, visualLabel) {
			out = append(out, entry)
		}
	}
	return out
}

// nodeXPath builds a positional XPath for a node by walking its ancestry.
func nodeXPath(node *html.Node) string {
	if node == nil || node.Type != html.ElementNode {
		return ""
	}
	var segments []string
	for cur := node; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		pos := 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data {
				pos++
			}
		}
		segments = append([]string{fmt.Sprintf("%s[%d]", cur.Data, pos)}, segments...)
	}
	return "/" + strings.Join(segments, "/")
}
