package igdm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.mau.fi/util/ptr"
)

func testLoginConfig(t *testing.T) (*Config, string) {
	t.Helper()
	dir := t.TempDir()
	return &Config{
		SessionPath: filepath.Join(dir, "session.json"),
		CookiesPath: filepath.Join(dir, "cookies.json"),
	}, dir
}

func TestLoginPrefersSessionArtifact(t *testing.T) {
	cfg, _ := testLoginConfig(t)
	if err := os.WriteFile(cfg.SessionPath, []byte(`{"device_id":"d"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.CookiesPath, []byte(`[{"name":"sessionid","value":"v","domain":".example.com"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	api := newFakeAPI()
	api.currentUser = &UserPayload{ID: "1", Username: ptr.Ptr("me")}
	c := newTestClient(api, &fakeStream{}, &fakePush{}, cfg)

	if err := c.attemptLogin(context.Background()); err != nil {
		t.Fatalf("attemptLogin: %v", err)
	}
	if api.setCookieCount() != 0 {
		t.Fatal("cookie path must not run when the session artifact validates")
	}
	if len(api.restored) != 1 {
		t.Fatalf("restore calls = %d, want 1", len(api.restored))
	}
	if c.Self() == nil || c.Self().ID != "1" {
		t.Fatal("validated identity should be cached as self")
	}
}

func TestLoginFallsBackToCookiesAndPromotesSession(t *testing.T) {
	cfg, _ := testLoginConfig(t)
	// No session artifact on disk; cookie set has one corrupt record
	// (missing domain) that must be skipped without aborting.
	cookies := `[
		{"name":"sessionid","value":"s","domain":".example.com","path":"/","secure":true,"httpOnly":true},
		{"name":"broken","value":"x"},
		{"name":"csrftoken","value":"c","domain":".example.com","expires":4102444800}
	]`
	if err := os.WriteFile(cfg.CookiesPath, []byte(cookies), 0o600); err != nil {
		t.Fatal(err)
	}
	api := newFakeAPI()
	api.currentUser = &UserPayload{ID: "1", Username: ptr.Ptr("me")}
	c := newTestClient(api, &fakeStream{}, &fakePush{}, cfg)

	if err := c.attemptLogin(context.Background()); err != nil {
		t.Fatalf("attemptLogin: %v", err)
	}
	if got := api.setCookieCount(); got != 2 {
		t.Fatalf("installed cookies = %d, want 2 (corrupt record skipped)", got)
	}
	// Cookie-derived sessions are promoted to session artifacts.
	data, err := os.ReadFile(cfg.SessionPath)
	if err != nil {
		t.Fatalf("session artifact should have been written: %v", err)
	}
	if string(data) != string(api.exportData) {
		t.Fatalf("session artifact = %s, want exported state", data)
	}
}

func TestLoginFailsWhenBothPathsExhausted(t *testing.T) {
	cfg, _ := testLoginConfig(t)
	api := newFakeAPI()
	c := newTestClient(api, &fakeStream{}, &fakePush{}, cfg)

	err := c.attemptLogin(context.Background())
	if err == nil {
		t.Fatal("attemptLogin should fail with no credentials on disk")
	}
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("error = %v, want ErrNoCredentials", err)
	}
}

func TestLoginRejectedSessionFallsThrough(t *testing.T) {
	cfg, _ := testLoginConfig(t)
	if err := os.WriteFile(cfg.SessionPath, []byte(`{"device_id":"stale"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.CookiesPath, []byte(`[{"name":"sessionid","value":"v","domain":".example.com"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	api := newFakeAPI()
	api.restoreErr = errors.New("credential rejected")
	api.currentUser = &UserPayload{ID: "1"}
	c := newTestClient(api, &fakeStream{}, &fakePush{}, cfg)

	if err := c.attemptLogin(context.Background()); err != nil {
		t.Fatalf("cookie fallback should have succeeded: %v", err)
	}
	if api.setCookieCount() != 1 {
		t.Fatal("cookie path should have run after session restore failed")
	}
}

func TestWriteFileAtomicOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")
	if err := writeFileAtomic(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := writeFileAtomic(path, []byte("two")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Fatalf("content = %q, want clean overwrite", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestFormatCookie(t *testing.T) {
	rec := CookieRecord{
		Name:     "sessionid",
		Value:    "abc",
		Domain:   ".example.com",
		Path:     "/",
		Secure:   true,
		HTTPOnly: true,
	}
	got := formatCookie(rec)
	want := "sessionid=abc; Domain=.example.com; Path=/; Secure; HttpOnly"
	if got != want {
		t.Fatalf("formatCookie = %q, want %q", got, want)
	}
	if cookieURL(rec) != "https://example.com/" {
		t.Fatalf("cookieURL = %q", cookieURL(rec))
	}
}
