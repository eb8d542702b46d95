package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
)

const DefaultSummaryLength = 200

// Summarizer produces a short plain-text excerpt of an article page.
type Summarizer struct {
	fetcher   *Fetcher
	maxLength int
}

func NewSummarizer(fetcher *Fetcher, maxLength int) *Summarizer {
	if maxLength <= 0 {
		maxLength = DefaultSummaryLength
	}
	return &Summarizer{fetcher: fetcher, maxLength: maxLength}
}

func (s *Summarizer) Summarize(ctx context.Context, link string, timeout time.Duration) (string, error) {
	data, err := s.fetcher.Fetch(ctx, link, timeout)
	if err != nil {
		return "", err
	}
	return s.FromHTML(data)
}

func (s *Summarizer) FromHTML(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("HTML data is empty")
	}

	article, err := readability.FromReader(bytes.NewReader(data), nil)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.Content == "" {
		return "", errors.New("no content extracted from HTML data")
	}

	text := CollapseSpace(article.TextContent)
	if text == "" {
		return "", errors.New("extracted content has no text")
	}

	slog.Debug("Summary extracted", "title", article.Title, "content_length", len(article.Content))

	return truncateRunes(text, s.maxLength), nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
