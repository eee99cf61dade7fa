package tunnel

import "testing"

func TestClassifyLine(t *testing.T) {
	cases := []struct {
		line  string
		event lineEvent
		url   string
	}{
		{"2026-01-01T00:00:00Z INF |  https://quiet-lake-fox.trycloudflare.com  |", eventURL, "https://quiet-lake-fox.trycloudflare.com"},
		{"your url is: https://brave-cat-12.loca.lt", eventURL, "https://brave-cat-12.loca.lt"},
		{"Forwarding https://abcd-1234.ngrok-free.app -> http://localhost:3003", eventURL, "https://abcd-1234.ngrok-free.app"},
		{"url=https://ab12.ngrok.io/", eventURL, "https://ab12.ngrok.io"},
		{"INF Registered tunnel connection connIndex=0 location=ams01", eventEstablished, ""},
		{"INF Connection 7f1c2e3a-aaaa registered with edge", eventEstablished, ""},
		{`ERR failed to request quick Tunnel: Post "https://api.trycloudflare.com/tunnel"`, eventNone, ""},
		{"INF Requesting new quick Tunnel on trycloudflare.com...", eventNone, ""},
		{"", eventNone, ""},
	}
	for _, tc := range cases {
		event, url := classifyLine(tc.line)
		if event != tc.event || url != tc.url {
			t.Fatalf("classifyLine(%q) = (%v, %q), want (%v, %q)", tc.line, event, url, tc.event, tc.url)
		}
	}
}

func TestFallbackURL(t *testing.T) {
	if got := FallbackURL("sitehost-abc"); got != "https://sitehost-abc.trycloudflare.com" {
		t.Fatalf("unexpected fallback %q", got)
	}
}
