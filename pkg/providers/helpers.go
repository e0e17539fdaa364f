package providers

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/LiamFearon/LocalAINews/internal/domain"
)

// hashURL derives the article id from its canonical URL.
func hashURL(u string) string {
	sum := sha1.Sum([]byte(canonicalURL(u)))
	return hex.EncodeToString(sum[:])
}

// canonicalURL drops the fragment and common tracking parameters so the same story
// reached through different links hashes to one id.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	if q := u.Query(); len(q) > 0 {
		for key := range q {
			lk := strings.ToLower(key)
			if strings.HasPrefix(lk, "utm_") || lk == "fbclid" || lk == "gclid" {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// matchesTopic reports whether every word of topic occurs in the text.
func matchesTopic(topic string, texts ...string) bool {
	words := strings.Fields(strings.ToLower(topic))
	if len(words) == 0 {
		return true
	}
	hay := strings.ToLower(strings.Join(texts, " "))
	for _, w := range words {
		if !strings.Contains(hay, w) {
			return false
		}
	}
	return true
}

// finalize drops articles without a URL or older than since, removes duplicates by id,
// sorts newest first and applies limit.
func finalize(articles []domain.Article, since time.Time, limit int) []domain.Article {
	seen := make(map[string]struct{}, len(articles))
	out := make([]domain.Article, 0, len(articles))
	for _, a := range articles {
		if a.URL == "" || a.ID == "" {
			continue
		}
		if !since.IsZero() && !a.PublishedAt.IsZero() && a.PublishedAt.Before(since) {
			continue
		}
		if _, dup := seen[a.ID]; dup {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
