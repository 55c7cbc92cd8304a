package utils

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdParser = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	ugcPolicy    = bluemonday.UGCPolicy()
	strictPolicy = bluemonday.StrictPolicy()
)

func init() {
	ugcPolicy.RequireNoReferrerOnLinks(true)
	ugcPolicy.AddTargetBlankToFullyQualifiedLinks(true)
}

// SanitizeTitle 标题只保留纯文本
func SanitizeTitle(s string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(s))
}

// SanitizeBody strips unsafe HTML from a markdown post body before it is stored.
func SanitizeBody(s string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(s))
}

// RenderMarkdown 渲染帖子正文为安全的 HTML
func RenderMarkdown(source string) string {
	var buf bytes.Buffer
	if err := mdParser.Convert([]byte(source), &buf); err != nil {
		return ugcPolicy.Sanitize(source)
	}
	return string(ugcPolicy.SanitizeBytes(buf.Bytes()))
}
