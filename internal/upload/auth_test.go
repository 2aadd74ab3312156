package upload

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"golang.org/x/oauth2"
)

type sequenceSource struct {
	tokens []*oauth2.Token
	calls  int
}

func (s *sequenceSource) Token() (*oauth2.Token, error) {
	tok := s.tokens[min(s.calls, len(s.tokens)-1)]
	s.calls++
	return tok, nil
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "token.json")
	want := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}
	got, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.AccessToken != "a" || got.RefreshToken != "r" || !got.Expiry.Equal(want.Expiry) {
		t.Fatalf("unexpected token %+v", got)
	}
}

func TestLoadTokenRejectsEmptyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadToken(path); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestPersistingTokenSourceWritesRefreshedTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	initial := &oauth2.Token{AccessToken: "old", RefreshToken: "r"}
	if err := SaveToken(path, initial); err != nil {
		t.Fatal(err)
	}
	base := &sequenceSource{tokens: []*oauth2.Token{
		{AccessToken: "old", RefreshToken: "r"},
		{AccessToken: "new", RefreshToken: "r"},
	}}
	ts := newPersistingTokenSource(base, path, initial)

	if _, err := ts.Token(); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok, _ := LoadToken(path); tok.AccessToken != "old" {
		t.Fatalf("unchanged token should not be rewritten, got %q", tok.AccessToken)
	}
	if _, err := ts.Token(); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok, _ := LoadToken(path); tok.AccessToken != "new" || tok.RefreshToken != "r" {
		t.Fatalf("refreshed token not persisted: %+v", tok)
	}
}

func TestYouTubeDescription(t *testing.T) {
	c := &YouTubeClient{}
	got := c.description(Request{Description: " a ", Dynamic: "", SourceURL: "u", Copyright: CopyrightOriginal})
	if got != "a" {
		t.Fatalf("unexpected description %q", got)
	}
	long := make([]byte, 0, maxDescriptionBytes+10)
	for len(long) < maxDescriptionBytes+5 {
		long = append(long, "é"...)
	}
	got = c.description(Request{Description: string(long)})
	if len(got) > maxDescriptionBytes {
		t.Fatalf("description not truncated: %d bytes", len(got))
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation split a rune")
	}
}
