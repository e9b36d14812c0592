package knowledge

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// markdown renders every newline as a line break. Answers list items as
// "• item" lines, which are not markdown list markers, so soft breaks
// would run a list together into one line.
var markdown = goldmark.New(goldmark.WithRendererOptions(html.WithHardWraps()))

// RenderHTML converts chat markdown (bold, bullets) to an HTML fragment
// for clients that cannot render markdown.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
