package minimize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Fingerprint digests a response into a comparable equivalence token:
// status code plus a content-type-directed shape summary. Bodies are never
// compared byte-exact because timestamps, request echoes, and other
// high-churn fields differ between otherwise equivalent replays.
func Fingerprint(statusCode int, contentType, body string) string {
	ct := strings.ToLower(contentType)

	var shape string
	switch {
	case strings.Contains(ct, "json"):
		shape = jsonShape(body)
	case strings.Contains(ct, "html"):
		shape = htmlShape(body)
	default:
		shape = sizeBucket(len(body))
	}

	return fmt.Sprintf("%d|%s", statusCode, shape)
}

// jsonShape summarizes a JSON document's key structure, ignoring values.
// Arrays collapse to their first element's structure.
func jsonShape(body string) string {
	var value interface{}
	if err := json.Unmarshal([]byte(body), &value); err != nil {
		return "json-invalid|" + sizeBucket(len(body))
	}
	var sb strings.Builder
	writeJSONShape(&sb, value)
	return "json:" + digest(sb.String())
}

func writeJSONShape(sb *strings.Builder, value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for _, k := range keys {
			sb.WriteString(k)
			sb.WriteByte(':')
			writeJSONShape(sb, v[k])
			sb.WriteByte(',')
		}
		sb.WriteByte('}')
	case []interface{}:
		sb.WriteByte('[')
		if len(v) > 0 {
			writeJSONShape(sb, v[0])
		}
		sb.WriteByte(']')
	case string:
		sb.WriteByte('s')
	case float64:
		sb.WriteByte('n')
	case bool:
		sb.WriteByte('b')
	default:
		sb.WriteByte('0')
	}
}

// htmlShape summarizes an HTML document as its element tag sequence.
func htmlShape(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "html-invalid|" + sizeBucket(len(body))
	}

	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			sb.WriteString(n.Data)
			sb.WriteByte('>')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return "html:" + digest(sb.String())
}

// sizeBucket maps a body length onto a coarse bucket so that small
// variations in opaque payloads still compare equal.
func sizeBucket(n int) string {
	bucket := 0
	for n >= 64 {
		n >>= 1
		bucket++
	}
	return fmt.Sprintf("size-b%d", bucket)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
