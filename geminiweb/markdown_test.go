package geminiweb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorrectMarkdown_SearchLink(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "wrapped-with-parens",
			in:   "([`foo.py:42`](https://www.google.com/search?q=foo.py:42))",
			want: "([`foo.py:42`](foo.py:42))",
		},
		{
			name: "bare-link",
			in:   "see [`foo.py:42`](https://www.google.com/search?q=foo.py:42) here",
			want: "see [`foo.py:42`](foo.py:42) here",
		},
		{
			name: "display-without-line-number",
			in:   "[`main.go`](https://www.google.com/search?q=main.go)",
			want: "[`main.go`](main.go)",
		},
		{
			name: "stray-trailing-parens",
			in:   "([`a.go:1`](https://www.google.com/search?q=a.go:1)))",
			want: "([`a.go:1`](a.go:1))",
		},
		{
			name: "escaped-paren-in-query",
			in:   "[`f.py:3`](https://www.google.com/search?q=f\\(x\\).py:3)",
			want: "[`f.py:3`](f.py:3)",
		},
		{
			name: "non-search-link-untouched",
			in:   "[`x`](https://example.com/x)",
			want: "[`x`](https://example.com/x)",
		},
		{
			name: "plain-text-untouched",
			in:   "hello `code` world",
			want: "hello `code` world",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CorrectMarkdown(tc.in))
		})
	}
}

func TestCorrectMarkdown_UnwrapBacktickedLink(t *testing.T) {
	in := "docs: `[link](https://example.com)` end"
	want := "docs: [link](https://example.com) end"
	require.Equal(t, want, CorrectMarkdown(in))
}

func TestCorrectMarkdown_Idempotent(t *testing.T) {
	inputs := []string{
		"([`foo.py:42`](https://www.google.com/search?q=foo.py:42))",
		"`[link](https://example.com)`",
		"mixed ([`a.go:1`](https://www.google.com/search?q=a.go:1))) and `[l](u)`",
		"no links at all",
		"",
	}
	for _, in := range inputs {
		once := CorrectMarkdown(in)
		require.Equal(t, once, CorrectMarkdown(once), "input: %q", in)
	}
}
