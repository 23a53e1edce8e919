// Package scraper fetches fallback study material from the NCERT site and
// public education portals when the textbook index has nothing relevant.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ncert-tutor-go/internal/config"
	"ncert-tutor-go/pkg/log"

	"golang.org/x/net/html"
)

const (
	maxBodyBytes     = 2 << 20
	ncertTextLimit   = 2000
	portalTextLimit  = 1500
	maxNCERTLinks    = 5
	youtubeSearchURL = "https://www.youtube.com/results?search_query="
)

// Passage is one piece of scraped text and where it came from.
type Passage struct {
	Text   string
	Source string
	URL    string
}

// Link is an external study resource.
type Link struct {
	Title       string
	URL         string
	Description string
}

// Portal is a site searched with the query appended to SearchURL.
type Portal struct {
	Name      string
	SearchURL string
}

// DefaultPortals are tried in order after the NCERT site.
func DefaultPortals() []Portal {
	return []Portal{
		{Name: "Khan Academy", SearchURL: "https://www.khanacademy.org/search?page_search_query="},
		{Name: "BYJU'S", SearchURL: "https://byjus.com/?s="},
	}
}

// Scraper is safe for concurrent use.
type Scraper struct {
	client    *http.Client
	userAgent string
	ncertBase string
	portals   []Portal
}

// New builds a scraper from configuration.
func New(cfg config.ScraperConfig, portals ...Portal) *Scraper {
	if len(portals) == 0 {
		portals = DefaultPortals()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scraper{
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		ncertBase: strings.TrimRight(cfg.NCERTBaseURL, "/"),
		portals:   portals,
	}
}

// Search returns the first useful passage: the NCERT textbook page for the
// grade, else the first portal that yields content. An empty result with a
// nil error means nothing was found.
func (s *Scraper) Search(ctx context.Context, query string, grade int) ([]Passage, error) {
	if p, err := s.searchNCERT(ctx, grade); err != nil {
		log.Warnf("[Scraper] NCERT 网站抓取失败: %v", err)
	} else if p != nil {
		return []Passage{*p}, nil
	}

	for _, portal := range s.portals {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := s.searchPortal(ctx, portal, query)
		if err != nil {
			log.Warnf("[Scraper] 抓取 %s 失败: %v", portal.Name, err)
			continue
		}
		if p != nil {
			return []Passage{*p}, nil
		}
	}
	return nil, ctx.Err()
}

func (s *Scraper) searchNCERT(ctx context.Context, grade int) (*Passage, error) {
	if s.ncertBase == "" {
		return nil, nil
	}
	doc, err := s.fetch(ctx, s.ncertBase+"/textbook.php")
	if err != nil {
		return nil, err
	}
	links := s.gradeLinks(doc, grade)
	if len(links) == 0 {
		return nil, nil
	}

	page, err := s.fetch(ctx, links[0])
	if err != nil {
		return nil, err
	}
	text := truncate(extractText(page), ncertTextLimit)
	if text == "" {
		return nil, nil
	}
	return &Passage{Text: text, Source: "NCERT", URL: links[0]}, nil
}

func (s *Scraper) searchPortal(ctx context.Context, portal Portal, query string) (*Passage, error) {
	u := portal.SearchURL + url.QueryEscape(query)
	doc, err := s.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	node := findContent(doc)
	if node == nil {
		return nil, nil
	}
	text := truncate(extractText(node), portalTextLimit)
	if text == "" {
		return nil, nil
	}
	return &Passage{Text: text, Source: portal.Name, URL: u}, nil
}

func (s *Scraper) fetch(ctx context.Context, rawURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
}

// gradeLinks returns up to five links whose text names the class.
func (s *Scraper) gradeLinks(doc *html.Node, grade int) []string {
	keywords := []string{
		fmt.Sprintf("class %d", grade),
		fmt.Sprintf("class-%d", grade),
		fmt.Sprintf("%dth", grade),
	}
	var links []string
	walk(doc, func(n *html.Node) bool {
		if len(links) >= maxNCERTLinks {
			return false
		}
		if n.Type != html.ElementNode || n.Data != "a" {
			return true
		}
		href := attr(n, "href")
		if href == "" {
			return false
		}
		text := strings.ToLower(extractText(n))
		for _, k := range keywords {
			if strings.Contains(text, k) {
				links = append(links, s.resolve(href))
				break
			}
		}
		return false
	})
	return links
}

func (s *Scraper) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return s.ncertBase + "/" + strings.TrimLeft(href, "/")
}

// Recommendations builds video search links for a topic.
func Recommendations(topic string, grade int) []Link {
	topic = strings.TrimSpace(topic)
	if r := []rune(topic); len(r) > 50 {
		topic = strings.TrimSpace(string(r[:50]))
	}
	return []Link{
		{
			Title:       fmt.Sprintf("%s - Class %d Explanation", topic, grade),
			URL:         youtubeSearchURL + url.QueryEscape(fmt.Sprintf("%s class %d NCERT", topic, grade)),
			Description: "Video explanation for " + topic,
		},
		{
			Title:       topic + " - Khan Academy",
			URL:         youtubeSearchURL + url.QueryEscape(topic+" Khan Academy"),
			Description: "Khan Academy video on " + topic,
		},
	}
}
