package utils

import (
	"fmt"
	"net/url"
	"strings"
)

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			result[key] = value
		}
	}
	return result
}

// SplitProxyAuth moves credentials embedded in a proxy URL into separate
// values unless a username was already given.
func SplitProxyAuth(proxyURL, username, password string) (string, string, string) {
	parsed, err := url.Parse(proxyURL)
	if err != nil || parsed.User == nil || username != "" {
		return proxyURL, username, password
	}
	username = parsed.User.Username()
	if p, set := parsed.User.Password(); set {
		password = p
	}
	parsed.User = nil
	return parsed.String(), username, password
}

func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
