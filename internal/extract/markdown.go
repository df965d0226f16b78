package extract

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// newMarkdownConverter builds a reusable, goroutine-safe converter: the base
// plugin strips script/style/iframe/noscript/head/meta/comments, commonmark
// renders headings/paragraphs/lists/links/code/blockquotes, and the table
// plugin preserves tabular structure with minimal cell padding. Kept from
// purify's cleaner/markdown.go verbatim — this is the same two-stage
// conversion this system's Markdown conversion requirement describes.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// toMarkdown converts clean HTML to Markdown. domain resolves relative
// <a>/<img> URLs into absolute ones so the output is self-contained.
func toMarkdown(conv *converter.Converter, htmlContent, domain string) (string, error) {
	return conv.ConvertString(htmlContent, converter.WithDomain(domain))
}
