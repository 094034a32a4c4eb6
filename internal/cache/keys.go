package cache

import "strings"

// Keys builds namespaced cache keys of the form domain:entity:identifier.
type Keys struct {
	Namespace string
}

func (k Keys) join(parts ...string) string {
	key := strings.Join(parts, ":")
	if ns := strings.TrimSpace(k.Namespace); ns != "" {
		return ns + ":" + key
	}
	return key
}

// Daily is the by-date briefing slot.
func (k Keys) Daily(date string) string { return k.join("briefing", "daily", date) }

// Latest is the most-recent briefing slot.
func (k Keys) Latest() string { return k.join("briefing", "latest") }

// ArticleList is the per-date, per-source URL listing slot.
func (k Keys) ArticleList(date, source string) string {
	return k.join("briefing", "articles", date, strings.ToLower(source))
}

// Article is the per-identity article slot.
func (k Keys) Article(id string) string { return k.join("briefing", "article", id) }

// Lock is the per-task, per-date lock key.
func (k Keys) Lock(task, date string) string { return k.join("lock", "task", task, date) }
