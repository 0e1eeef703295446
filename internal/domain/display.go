package domain

import (
	"net/url"
	"strings"
)

// CitationDomain devuelve el host de la URL sin "www."; si no parsea, la URL tal cual.
func CitationDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func ToolIcon(toolName string) string {
	switch {
	case toolName == "":
		return "🔧"
	case strings.Contains(toolName, "search_farming_info"), strings.Contains(toolName, "google_search"):
		return "🔍"
	case strings.Contains(toolName, "farming_info"):
		return "🌱"
	case strings.Contains(toolName, "seasonal_advice"):
		return "🗓️"
	default:
		return "🔧"
	}
}
