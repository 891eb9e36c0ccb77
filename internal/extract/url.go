package extract

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
)

const (
	// DefaultTimeout bounds a whole fetch, redirects included.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes    = 2 << 20 // 2 MiB of HTML is plenty for readable text
	maxContentRunes = 3000
	userAgent       = "Mozilla/5.0 (compatible; NeuralInbox/1.0)"
)

// Source types recognised by URL shape. Everything else is an article.
const (
	SourceArticle  = "article"
	SourceYouTube  = "youtube"
	SourceTwitter  = "twitter"
	SourceTelegram = "telegram"
)

var (
	urlPattern      = regexp.MustCompile(`https?://[^\s<>"{}|\\^` + "`" + `\[\]]+`)
	youtubePattern  = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/shorts/)([a-zA-Z0-9_-]+)`)
	twitterPattern  = regexp.MustCompile(`(?:twitter\.com|x\.com)/\w+/status/(\d+)`)
	telegramPattern = regexp.MustCompile(`t\.me/([^/]+)/(\d+)`)
)

// ExtractURLs returns every http(s) URL found in the text, in order.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// Classify reports the source type of a URL and any IDs embedded in it.
func Classify(rawURL string) (sourceType string, metadata map[string]string) {
	if m := youtubePattern.FindStringSubmatch(rawURL); m != nil {
		return SourceYouTube, map[string]string{"video_id": m[1]}
	}
	if m := twitterPattern.FindStringSubmatch(rawURL); m != nil {
		return SourceTwitter, map[string]string{"tweet_id": m[1]}
	}
	if m := telegramPattern.FindStringSubmatch(rawURL); m != nil {
		return SourceTelegram, map[string]string{"channel": m[1], "message_id": m[2]}
	}
	return SourceArticle, nil
}

// URLParser fetches web pages and extracts their readable text. Outbound
// connections are refused when the target resolves to a non-public address,
// so a crafted link cannot be used to probe the internal network. The check
// runs at dial time, after DNS resolution, which also covers redirects.
type URLParser struct {
	client *http.Client

	// allowPrivate disables the address guard. Tests only.
	allowPrivate bool
}

// NewURLParser creates a parser with the default timeout.
func NewURLParser() *URLParser {
	p := &URLParser{}
	dialer := &net.Dialer{
		Timeout: DefaultTimeout,
		Control: func(_, address string, _ syscall.RawConn) error {
			return p.checkAddress(address)
		},
	}
	p.client = &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
		},
	}
	return p
}

func (p *URLParser) checkAddress(address string) error {
	if p.allowPrivate {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("failed to parse dial address %q: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("refusing to dial unresolved host %q", host)
	}
	if !isPublicIP(ip) {
		return fmt.Errorf("refusing to dial non-public address %s", ip)
	}
	return nil
}

// isPublicIP rejects every address class that should never be reached on
// behalf of a user-supplied link.
func isPublicIP(ip net.IP) bool {
	switch {
	case ip.IsUnspecified(),
		ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsMulticast(),
		ip.IsInterfaceLocalMulticast():
		return false
	}
	// Reserved ranges net.IP has no predicate for.
	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 0 { // 192.0.0.0/24
			return false
		}
		if ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127 { // 100.64.0.0/10
			return false
		}
		if ip4[0] >= 240 { // 240.0.0.0/4
			return false
		}
	}
	return true
}

// FetchURL downloads the page and extracts its title and readable text.
// Non-article URLs (YouTube, Twitter, Telegram) are classified but still
// fetched; their pages usually carry usable OpenGraph metadata.
func (p *URLParser) FetchURL(ctx context.Context, rawURL string) (*Content, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("%w: unsupported URL %q", ErrExtractionFailed, rawURL)
	}

	sourceType, metadata := Classify(rawURL)
	if metadata == nil {
		metadata = make(map[string]string)
	}
	metadata["url"] = rawURL

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "ru,en;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: server returned %s", ErrExtractionFailed, resp.Status)
	}

	page, err := parsePage(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	text := page.body
	if page.description != "" {
		if text == "" {
			text = page.description
		} else if !strings.HasPrefix(text, page.description) {
			text = page.description + "\n\n" + text
		}
	}
	if text == "" {
		text = "Не удалось извлечь содержимое страницы."
	}

	return &Content{
		Text:       truncateRunes(text, maxContentRunes),
		Title:      page.title,
		SourceType: sourceType,
		Metadata:   metadata,
	}, nil
}

type parsedPage struct {
	title       string
	description string
	body        string
}

// parsePage walks the HTML tree once, collecting og:title / <title>,
// og:description / meta description, and paragraph text. Script, style and
// navigation subtrees are skipped. The body is capped; a page cut off
// mid-tag still parses, the tail is simply lost.
func parsePage(r io.Reader) (*parsedPage, error) {
	doc, err := html.Parse(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	page := &parsedPage{}
	var titleTag, ogTitle, ogDescription, metaDescription string
	var paragraphs []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "header", "footer", "aside", "noscript":
				return
			case "title":
				if titleTag == "" {
					titleTag = strings.TrimSpace(nodeText(n))
				}
			case "meta":
				prop := attr(n, "property")
				name := attr(n, "name")
				content := strings.TrimSpace(attr(n, "content"))
				switch {
				case prop == "og:title" && ogTitle == "":
					ogTitle = content
				case prop == "og:description" && ogDescription == "":
					ogDescription = content
				case name == "description" && metaDescription == "":
					metaDescription = content
				}
			case "p", "blockquote", "li":
				if t := strings.TrimSpace(nodeText(n)); len([]rune(t)) > 20 {
					paragraphs = append(paragraphs, t)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	page.title = ogTitle
	if page.title == "" {
		page.title = titleTag
	}
	page.description = ogDescription
	if page.description == "" {
		page.description = metaDescription
	}
	page.body = strings.Join(paragraphs, "\n\n")
	return page, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
