// Package news は教習所からのお知らせフィードの取得とパースを提供する。
// フィードURLはSSRF検証を通し、本文はサニタイズしてから返す。
package news

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"

	"github.com/hitoshi/drivebook/internal/model"
)

// maxAnnouncements は1回のフェッチで取り込むお知らせの上限。
const maxAnnouncements = 50

// userAgent はフィード取得時のUser-Agentヘッダ。
const userAgent = "Drivebook/1.0 Announcements"

// feedContentTypes はフィードとして直接認識するContent-Type。
var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// xmlContentTypes は汎用XMLのContent-Type（ボディ解析で判定する）。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// URLValidator はフィードURLのSSRF検証のインターフェース。
// security.FeedGuardServiceを抽象化してテスタビリティを向上させる。
type URLValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Sanitizer はお知らせ本文のサニタイズのインターフェース。
type Sanitizer interface {
	Sanitize(rawHTML string) string
	PlainText(rawHTML string) string
}

// Fetcher はお知らせフィードの取得とパースを行う。
// フィードURLには通常のページURLも指定でき、その場合はHTMLのheadタグから
// RSS/Atomリンクを自動検出する。
type Fetcher struct {
	feedURL     string
	guard       URLValidator
	sanitizer   Sanitizer
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64

	// client が設定されている場合はguardのSafeClientの代わりに使用する。
	// テスト用のフック。
	client *http.Client
}

// Config はFetcherの生成パラメータ。
type Config struct {
	FeedURL     string
	Guard       URLValidator
	Sanitizer   Sanitizer
	Logger      *slog.Logger
	Timeout     time.Duration
	MaxBodySize int64

	// HTTPClient を設定するとSSRF防止クライアントの代わりに使用される。
	HTTPClient *http.Client
}

// NewFetcher はFetcherを生成する。
func NewFetcher(cfg Config) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = 5 * 1024 * 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		feedURL:     cfg.FeedURL,
		guard:       cfg.Guard,
		sanitizer:   cfg.Sanitizer,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		client:      cfg.HTTPClient,
	}
}

// Fetch は設定されたフィードURLからお知らせ一覧を取得する。
// URLがHTMLページの場合はheadタグからフィードリンクを検出して再取得する。
// 本文と概要はサニタイズ済みの状態で返す。
func (f *Fetcher) Fetch(ctx context.Context) ([]model.Announcement, error) {
	if f.feedURL == "" {
		return nil, fmt.Errorf("announcement feed URL is not configured")
	}

	body, contentType, err := f.get(ctx, f.feedURL)
	if err != nil {
		return nil, err
	}

	// HTMLページが指定された場合はフィードリンクを自動検出する
	if !isDirectFeed(contentType, body) {
		mediaType, _, _ := mime.ParseMediaType(contentType)
		if !strings.Contains(strings.ToLower(mediaType), "html") {
			return nil, fmt.Errorf("not a feed or HTML page: %s (%s)", f.feedURL, contentType)
		}

		feedURL := findFeedLink(body, f.feedURL)
		if feedURL == "" {
			return nil, fmt.Errorf("no feed link found in page: %s", f.feedURL)
		}
		f.logger.Info("お知らせフィードリンクを検出しました",
			slog.String("page_url", f.feedURL),
			slog.String("feed_url", feedURL),
		)

		body, _, err = f.get(ctx, feedURL)
		if err != nil {
			return nil, err
		}
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse announcement feed: %w", err)
	}

	now := time.Now()
	announcements := make([]model.Announcement, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if len(announcements) >= maxAnnouncements {
			break
		}
		announcements = append(announcements, f.convertItem(item, now))
	}

	f.logger.Info("お知らせフィードを取得しました",
		slog.String("feed_title", parsed.Title),
		slog.Int("count", len(announcements)),
	)
	return announcements, nil
}

// get はURLを検証したうえでGETし、ボディとContent-Typeを返す。
func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	if f.guard != nil {
		if err := f.guard.ValidateURL(rawURL); err != nil {
			return nil, "", fmt.Errorf("blocked feed URL %s: %w", rawURL, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("invalid feed URL %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch feed %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("feed fetch returned HTTP %d: %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read feed body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (f *Fetcher) httpClient() *http.Client {
	if f.client != nil {
		return f.client
	}
	if f.guard != nil {
		return f.guard.NewSafeClient(f.timeout)
	}
	return &http.Client{Timeout: f.timeout}
}

// convertItem はgofeedの記事をサニタイズ済みのAnnouncementに変換する。
func (f *Fetcher) convertItem(item *gofeed.Item, fetchedAt time.Time) model.Announcement {
	content := item.Content
	if content == "" {
		content = item.Description
	}

	a := model.Announcement{
		GuidOrID:    item.GUID,
		Title:       item.Title,
		Link:        item.Link,
		Content:     content,
		Summary:     item.Description,
		PublishedAt: item.PublishedParsed,
		FetchedAt:   fetchedAt,
	}
	if a.GuidOrID == "" {
		a.GuidOrID = item.Link
	}
	if f.sanitizer != nil {
		a.Title = f.sanitizer.PlainText(a.Title)
		a.Content = f.sanitizer.Sanitize(a.Content)
		a.Summary = f.sanitizer.PlainText(a.Summary)
	}
	return a
}

// isDirectFeed はContent-Typeとボディから直接フィードかどうかを判定する。
func isDirectFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	for _, feedCT := range feedContentTypes {
		if mediaType == feedCT {
			return true
		}
	}

	isXML := false
	for _, xmlCT := range xmlContentTypes {
		if mediaType == xmlCT {
			isXML = true
			break
		}
	}
	if !isXML || len(body) == 0 {
		return false
	}
	return looksLikeFeedXML(body)
}

// looksLikeFeedXML はXMLボディの先頭部分からRSS/Atomフィードかを判定する。
func looksLikeFeedXML(body []byte) bool {
	checkSize := 4096
	if len(body) < checkSize {
		checkSize = len(body)
	}
	prefix := strings.ToLower(string(body[:checkSize]))

	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	return strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom")
}

// findFeedLink はHTMLのheadタグから最初のRSS/Atomフィードリンクを検出する。
// 相対URLはbaseURLを基準に絶対URLへ解決する。見つからない場合は空文字列。
func findFeedLink(htmlBody []byte, baseURL string) string {
	baseU, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				return ""
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}
			if linkType != "application/rss+xml" && linkType != "application/atom+xml" {
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			return baseU.ResolveReference(ref).String()

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return ""
			}
		}
	}
}
