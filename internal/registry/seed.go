package registry

import (
	"time"

	"github.com/fetchkit/browsecore/models"
)

// seedPatterns ships known-good URL-pattern -> content-mapping pairs so a
// fresh installation's registry is useful before it has observed any
// traffic of its own.
func seedPatterns(now time.Time) []models.ApiPattern {
	mk := func(id, urlPattern, method string, mapping map[string]string) models.ApiPattern {
		return models.ApiPattern{
			ID:             id,
			URLPattern:     urlPattern,
			Method:         method,
			ContentMapping: mapping,
			Category:       "seed",
			Confidence:     0.6,
			LearnedAt:      now,
		}
	}

	return []models.ApiPattern{
		mk("seed-reddit", "www.reddit.com/r/{id}/comments/{id}/{id}.json", "GET",
			map[string]string{"title": "data.children[0].data.title", "text": "data.children[0].data.selftext"}),
		mk("seed-npm", "registry.npmjs.org/{id}", "GET",
			map[string]string{"title": "name", "text": "description"}),
		mk("seed-pypi", "pypi.org/pypi/{id}/json", "GET",
			map[string]string{"title": "info.name", "text": "info.summary"}),
		mk("seed-github", "api.github.com/repos/{id}/{id}", "GET",
			map[string]string{"title": "full_name", "text": "description"}),
		mk("seed-wikipedia", "en.wikipedia.org/api/rest_v1/page/summary/{id}", "GET",
			map[string]string{"title": "title", "text": "extract"}),
		mk("seed-hacker-news", "hacker-news.firebaseio.com/v0/item/{id}.json", "GET",
			map[string]string{"title": "title", "text": "text"}),
		mk("seed-stackoverflow", "api.stackexchange.com/2.3/questions/{id}", "GET",
			map[string]string{"title": "items[0].title", "text": "items[0].body"}),
		mk("seed-devto", "dev.to/api/articles/{id}", "GET",
			map[string]string{"title": "title", "text": "body_markdown"}),
	}
}
