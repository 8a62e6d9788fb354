package acquire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/joseph-ayodele/property-importer/internal/common"
)

const maxBodyBytes = 10 << 20

// boilerplateTags never carry listing content.
const boilerplateTags = "script, style, nav, footer, header, noscript, iframe, svg, form"

var reBoilerplate = regexp.MustCompile(`(?i)(^|[\s_-])(cookie|cookies|banner|menu|sidebar|footer|nav|navbar|advert|ads|popup|modal)([\s_-]|$)`)

func (a *Acquirer) acquireURL(ctx context.Context, pageURL string) (*Content, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, common.AcquisitionError("build request", err)
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, common.AcquisitionError(fmt.Sprintf("fetch %s", pageURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, common.AcquisitionError(
			fmt.Sprintf("fetch %s: status %d", pageURL, resp.StatusCode), common.ErrUpstream)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, common.AcquisitionError("decode charset", err)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, common.AcquisitionError("read body", err)
	}
	a.logger.Debug("acquire.fetch.ok", "url", pageURL, "status", resp.StatusCode, "bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds())

	base := resp.Request.URL
	if base == nil {
		base, _ = url.Parse(pageURL)
	}
	c, err := a.parseHTML(raw, base)
	if err != nil {
		return nil, err
	}
	c.SourceURL = pageURL
	return c, nil
}

// parseHTML harvests images and map links from the full document, then
// strips boilerplate and renders the remaining body.
func (a *Acquirer) parseHTML(raw []byte, base *url.URL) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, common.AcquisitionError("parse document", err)
	}

	c := &Content{Title: pageTitle(doc)}
	images := harvestImages(doc, base)
	images = append(images, ScanCDNURLs(string(raw), a.cfg.CDNHost)...)
	images = append(images, ScanImageURLs(string(raw))...)
	c.Images = DedupeGallery(images, a.cfg.CDNHost)
	c.MapHint = FindMapHint(mapLinks(doc))

	stripBoilerplate(doc)
	cleaned, _ := doc.Find("body").Html()
	if strings.TrimSpace(cleaned) == "" {
		cleaned, _ = doc.Html()
	}
	cleaned = collapseBlankLines(cleaned)

	markdown, err := md.NewConverter("", true, nil).ConvertString(cleaned)
	if err != nil {
		a.logger.Warn("acquire.markdown.failed", "error", err)
		markdown = strings.TrimSpace(doc.Text())
	}

	c.Cleaned = truncate(cleaned, a.cfg.ContentBudget)
	c.Markdown = truncate(markdown, a.cfg.ContentBudget)
	return c, nil
}

func stripBoilerplate(doc *goquery.Document) {
	doc.Find(boilerplateTags).Remove()
	doc.Find("body [class], body [id]").Each(func(_ int, s *goquery.Selection) {
		class, _ := s.Attr("class")
		id, _ := s.Attr("id")
		if reBoilerplate.MatchString(class) || reBoilerplate.MatchString(id) {
			s.Remove()
		}
	})
}

func pageTitle(doc *goquery.Document) string {
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func harvestImages(doc *goquery.Document, base *url.URL) []string {
	var out []string
	add := func(ref string) {
		if abs := resolve(base, ref); abs != "" {
			out = append(out, abs)
		}
	}

	doc.Find(`meta[property="og:image"], meta[name="twitter:image"]`).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("content"); ok {
			add(v)
		}
	})
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
			if v, ok := s.Attr(attr); ok {
				add(v)
			}
		}
		if v, ok := s.Attr("srcset"); ok {
			for _, ref := range parseSrcset(v) {
				add(ref)
			}
		}
	})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if reImageExt.MatchString(href) {
			add(href)
		}
	})
	return out
}

func mapLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find("a[href], iframe[src]").Each(func(_ int, s *goquery.Selection) {
		v, ok := s.Attr("href")
		if !ok {
			v, _ = s.Attr("src")
		}
		if IsMapURL(v) {
			out = append(out, v)
		}
	})
	return out
}

// parseSrcset returns the URL candidates of a srcset attribute.
func parseSrcset(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		fields := strings.Fields(part)
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

var reBlankLines = regexp.MustCompile(`\n\s*\n+`)

func collapseBlankLines(s string) string {
	return strings.TrimSpace(reBlankLines.ReplaceAllString(s, "\n"))
}
