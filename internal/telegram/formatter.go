package telegram

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/samzong/searchbeam/internal/domain"
)

const maxTitleLen = 120

func FormatSearchResponse(query string, page int, resp *domain.SearchResponse) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>Результаты:</b> %s", html.EscapeString(query)))
	if page > 1 {
		sb.WriteString(fmt.Sprintf(" (стр. %d)", page))
	}
	sb.WriteString(itemSeparator)

	for i, item := range resp.Items {
		sb.WriteString(fmt.Sprintf("%d. <a href=\"%s\">%s</a>\n",
			i+1,
			html.EscapeString(item.VideoURL),
			html.EscapeString(truncate(normalizeSpaces(item.Title), maxTitleLen)),
		))

		if meta := itemMeta(item); meta != "" {
			sb.WriteString("   " + html.EscapeString(normalizeSpaces(meta)) + "\n")
		}
		sb.WriteString("\n")
	}

	if resp.NextPageToken != "" {
		sb.WriteString("Еще результаты: /more")
	} else {
		sb.WriteString("Это все результаты.")
	}

	return sb.String()
}

func itemMeta(item domain.SearchResultItem) string {
	var parts []string
	if item.ChannelTitle != "" {
		parts = append(parts, item.ChannelTitle)
	}
	if item.PublishedAt != nil {
		parts = append(parts, item.PublishedAt.UTC().Format("02.01.2006"))
	}
	if item.ViewCount != "" {
		parts = append(parts, item.ViewCount+" просм.")
	}
	if d, ok := item.Extra["duration"].(string); ok && d != "" {
		parts = append(parts, d)
	}
	return strings.Join(parts, " · ")
}

// itemSeparator разделяет заголовок и элементы выдачи; внутри блока теги не разрываются
const itemSeparator = "\n\n"

// SplitMessage режет текст по границам блоков, разделитель остается в конце части.
// Блок длиннее maxLen режется по переводу строки, в крайнем случае по границе руны.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var (
		messages []string
		current  strings.Builder
	)

	for _, block := range strings.SplitAfter(text, itemSeparator) {
		if current.Len() > 0 && current.Len()+len(block) > maxLen {
			messages = append(messages, current.String())
			current.Reset()
		}

		for len(block) > maxLen {
			cut := cutPoint(block, maxLen)
			messages = append(messages, block[:cut])
			block = block[cut:]
		}

		current.WriteString(block)
	}

	if current.Len() > 0 {
		messages = append(messages, current.String())
	}

	return messages
}

func cutPoint(block string, maxLen int) int {
	if i := strings.LastIndexByte(block[:maxLen], '\n'); i > 0 {
		return i + 1
	}
	cut := maxLen
	for cut > 1 && !utf8.RuneStart(block[cut]) {
		cut--
	}
	return cut
}

// truncate режет по рунам, чтобы не ломать кириллицу
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}
