package core

import (
	"reflect"
	"testing"
)

func TestRequiredScopesForTool(t *testing.T) {
	got := RequiredScopesForTool("bookmarks.add")
	want := []string{"bookmark.read", "bookmark.write", "tweet.read", "users.read"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("bookmarks.add scopes = %v, want %v", got, want)
	}

	if got := RequiredScopesForTool(" Tweets.Post "); len(got) != 3 {
		t.Fatalf("tool lookup should normalize case and spacing, got %v", got)
	}

	got = RequiredScopesForTool("something.unknown")
	if !reflect.DeepEqual(got, []string{IdentityReadScope}) {
		t.Fatalf("unknown tool should fall back to identity read, got %v", got)
	}
}

func TestCanonicalScopeResolvesAliases(t *testing.T) {
	cases := map[string]string{
		"user.read":      "users.read",
		"tweets.read":    "tweet.read",
		"offline_access": "offline.access",
		" Tweet.Write ":  "tweet.write",
		"users.read":     "users.read",
	}
	for in, want := range cases {
		if got := CanonicalScope(in); got != want {
			t.Fatalf("CanonicalScope(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMissingScopes(t *testing.T) {
	missing := MissingScopes(
		[]string{"users.read", "tweet.read"},
		RequiredScopesForTool("bookmarks.add"),
	)
	want := []string{"bookmark.read", "bookmark.write"}
	if !reflect.DeepEqual(missing, want) {
		t.Fatalf("missing = %v, want %v", missing, want)
	}
}

func TestMissingScopesAliasEquivalence(t *testing.T) {
	missing := MissingScopes(
		[]string{"tweets.read", "offline_access", "user.read"},
		[]string{"tweet.read", "offline.access", "users.read"},
	)
	if len(missing) != 0 {
		t.Fatalf("aliased grants should satisfy canonical requirements, missing %v", missing)
	}
}

func TestMissingScopesDeduplicatesAndSorts(t *testing.T) {
	missing := MissingScopes(nil, []string{"tweet.write", "tweet.write", "bookmark.read", ""})
	want := []string{"bookmark.read", "tweet.write"}
	if !reflect.DeepEqual(missing, want) {
		t.Fatalf("missing = %v, want %v", missing, want)
	}
}
