package db

const DefaultStatsPrefix = "api:stats"

// KeyAPIStats is the hash holding per-outcome call counts of one API.
func KeyAPIStats(prefix, api string) string {
	if prefix == "" {
		prefix = DefaultStatsPrefix
	}
	return prefix + ":" + api
}
