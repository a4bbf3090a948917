package registry

import "testing"

func TestCanonicalizeRouteAddsLeadingSlash(t *testing.T) {
	cases := map[string]string{
		"echo":   "/echo",
		"/echo":  "/echo",
		"":       "/",
		"a/b":    "/a/b",
		"/a/b":   "/a/b",
	}
	for in, want := range cases {
		if got := canonicalizeRoute(in); got != want {
			t.Errorf("canonicalizeRoute(%q) = %q, want %q", in, got, want)
		}
	}
}
