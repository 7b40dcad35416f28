package core

import (
	"sort"
	"strings"
)

// IdentityReadScope is the minimal grant every authenticated operation
// needs; unrecognized tools fall back to it.
const IdentityReadScope = "users.read"

// toolScopes is the static operation -> required scope table. Tool names
// follow the dispatcher's dotted naming.
var toolScopes = map[string][]string{
	"tweets.post":      {"tweet.read", "tweet.write", "users.read"},
	"tweets.delete":    {"tweet.read", "tweet.write", "users.read"},
	"tweets.get":       {"tweet.read", "users.read"},
	"tweets.search":    {"tweet.read", "users.read"},
	"bookmarks.add":    {"bookmark.read", "bookmark.write", "tweet.read", "users.read"},
	"bookmarks.remove": {"bookmark.read", "bookmark.write", "users.read"},
	"bookmarks.list":   {"bookmark.read", "tweet.read", "users.read"},
	"users.me":         {"users.read"},
	"users.lookup":     {"users.read"},
}

// scopeAliases maps provider scope-name variants onto one canonical form.
// The provider has drifted between singular and plural spellings across API
// versions; grants using either spelling are equivalent.
var scopeAliases = map[string]string{
	"user.read":       "users.read",
	"tweets.read":     "tweet.read",
	"tweets.write":    "tweet.write",
	"bookmarks.read":  "bookmark.read",
	"bookmarks.write": "bookmark.write",
	"offline_access":  "offline.access",
}

// RequiredScopesForTool returns the scope set a tool needs. Unknown tools
// get the minimal identity-read scope.
func RequiredScopesForTool(tool string) []string {
	tool = strings.TrimSpace(strings.ToLower(tool))
	if scopes, ok := toolScopes[tool]; ok {
		return append([]string(nil), scopes...)
	}
	return []string{IdentityReadScope}
}

// CanonicalScope resolves provider scope-name aliases to one spelling.
func CanonicalScope(scope string) string {
	scope = strings.TrimSpace(strings.ToLower(scope))
	if canonical, ok := scopeAliases[scope]; ok {
		return canonical
	}
	return scope
}

// MissingScopes returns the required scopes absent from granted, after
// alias resolution on both sides. The result is sorted and deduplicated.
func MissingScopes(granted []string, required []string) []string {
	have := make(map[string]struct{}, len(granted))
	for _, scope := range granted {
		canonical := CanonicalScope(scope)
		if canonical == "" {
			continue
		}
		have[canonical] = struct{}{}
	}

	missing := make([]string, 0)
	seen := map[string]struct{}{}
	for _, scope := range required {
		canonical := CanonicalScope(scope)
		if canonical == "" {
			continue
		}
		if _, ok := have[canonical]; ok {
			continue
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		missing = append(missing, canonical)
	}
	sort.Strings(missing)
	return missing
}
