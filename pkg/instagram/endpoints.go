package instagram

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// MediaEndpoint is the per-account media feed path, relative to the account
	MediaEndpoint = "/media/"

	// CursorParam carries the id of the last post of the previous page
	CursorParam = "max_id"
)

// MediaURL builds the feed URL for account, continuing after cursor when set
func MediaURL(baseURL, account, cursor string) string {
	u := fmt.Sprintf("%s/%s%s", strings.TrimRight(baseURL, "/"), url.PathEscape(account), MediaEndpoint)
	if cursor == "" {
		return u
	}

	params := url.Values{}
	params.Set(CursorParam, cursor)
	return u + "?" + params.Encode()
}

// PostURL constructs the share URL for a post
func PostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// ProfileURL constructs the public profile URL for an account
func ProfileURL(account string) string {
	if account == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", BaseURL, account)
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	// Letters, numbers, periods, and underscores only
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername accepts "@name", "name/" and profile URLs and returns the bare name
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, BaseURL+"/")
	username = strings.TrimPrefix(username, "instagram.com/")
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}
