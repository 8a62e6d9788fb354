package acquire

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

// MaxGallery caps the number of images kept from one page.
const MaxGallery = 100

var galleryNoise = []string{"favicon", "logo", "icon", "svg"}

// cdnPayload is the base64 JSON path segment used by image-resizing CDNs
// (serverless-image-handler style).
type cdnPayload struct {
	Key   string `json:"key"`
	Edits struct {
		Resize struct {
			Width float64 `json:"width"`
		} `json:"resize"`
	} `json:"edits"`
}

// DedupeGallery filters and dedupes harvested image URLs.
//
// Icons, logos and very short URLs are dropped. URLs on cdnHost whose path is
// a base64 JSON resize request are grouped by their underlying key and only
// the widest variant survives, in the slot where the key was first seen.
// Everything else is deduped by URL without its query string. Order is
// first-seen and the result is capped at MaxGallery.
func DedupeGallery(urls []string, cdnHost string) []string {
	type slot struct {
		url   string
		width float64
	}
	var order []string
	slots := map[string]*slot{}
	cdnHost = strings.ToLower(cdnHost)

	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if isGalleryNoise(u) {
			continue
		}
		if cdnHost != "" && strings.Contains(strings.ToLower(u), cdnHost) {
			clean := stripQuery(u)
			if p, ok := decodeCDN(clean); ok {
				key := "cdn:" + p.Key
				if s, seen := slots[key]; seen {
					if p.Edits.Resize.Width > s.width {
						s.url, s.width = clean, p.Edits.Resize.Width
					}
					continue
				}
				slots[key] = &slot{url: clean, width: p.Edits.Resize.Width}
				order = append(order, key)
				continue
			}
		}
		key := stripQuery(u)
		if _, seen := slots[key]; seen {
			continue
		}
		slots[key] = &slot{url: key}
		order = append(order, key)
	}

	out := make([]string, 0, len(order))
	for _, k := range order {
		out = append(out, slots[k].url)
		if len(out) == MaxGallery {
			break
		}
	}
	return out
}

func isGalleryNoise(u string) bool {
	if len(u) <= 20 {
		return true
	}
	lower := strings.ToLower(u)
	for _, n := range galleryNoise {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

func decodeCDN(u string) (cdnPayload, bool) {
	var p cdnPayload
	parsed, err := url.Parse(u)
	if err != nil {
		return p, false
	}
	payload := strings.Trim(parsed.Path, "/")
	if payload == "" {
		return p, false
	}
	var b []byte
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err = enc.DecodeString(payload); err == nil {
			break
		}
	}
	if err != nil {
		return p, false
	}
	if err := json.Unmarshal(b, &p); err != nil || p.Key == "" {
		return p, false
	}
	return p, true
}

// ScanCDNURLs finds CDN image URLs that carry no file extension, such as
// base64 resize requests inside CSS background-image declarations.
func ScanCDNURLs(text, cdnHost string) []string {
	if cdnHost == "" {
		return nil
	}
	re := regexp.MustCompile(`https?://` + regexp.QuoteMeta(cdnHost) + `/[^"&'\s)<>]+`)
	return re.FindAllString(text, -1)
}
