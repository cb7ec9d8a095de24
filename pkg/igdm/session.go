package igdm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoCredentials is returned by Login when neither the session artifact nor
// the cookie set yields a valid session. There is deliberately no further
// fallback: password login is unimplemented, and failing loudly beats
// silently degrading.
var ErrNoCredentials = errors.New("no session artifact or cookie set produced a valid session")

// CookieRecord is one entry of the persisted cookie set, matching the shape
// of browser cookie exports.
type CookieRecord struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Secure   bool     `json:"secure"`
	HTTPOnly bool     `json:"httpOnly"`
	Expires  *float64 `json:"expires,omitempty"`
}

// attemptLogin runs the credential fallback chain: session artifact first,
// then cookie set (promoted to a session artifact on success). Each step
// catches its own failures; only total exhaustion propagates.
func (c *Client) attemptLogin(ctx context.Context) error {
	log := c.log.With().Str("component", "login").Logger()

	if err := c.restoreFromSessionFile(ctx, log); err != nil {
		log.Warn().Err(err).Str("path", c.config.SessionPath).
			Msg("Session artifact restore failed, falling back to cookies")
	} else {
		log.Info().Msg("Session restored from persisted artifact")
		return nil
	}

	if err := c.restoreFromCookies(ctx, log); err != nil {
		log.Warn().Err(err).Str("path", c.config.CookiesPath).
			Msg("Cookie restore failed")
		return fmt.Errorf("%w: %s", ErrNoCredentials, err)
	}
	log.Info().Msg("Session restored from cookie set")

	// Promote the cookie-derived session to a session artifact so future
	// restarts take the faster path.
	if err := c.persistSession(log); err != nil {
		log.Warn().Err(err).Msg("Failed to persist promoted session artifact")
	}
	return nil
}

func (c *Client) restoreFromSessionFile(ctx context.Context, log zerolog.Logger) error {
	if c.config.SessionPath == "" {
		return errors.New("no session path configured")
	}
	data, err := os.ReadFile(c.config.SessionPath)
	if err != nil {
		return fmt.Errorf("read session artifact: %w", err)
	}
	if err = c.api.RestoreSession(data); err != nil {
		return fmt.Errorf("deserialize session artifact: %w", err)
	}
	return c.validateIdentity(ctx, log)
}

func (c *Client) restoreFromCookies(ctx context.Context, log zerolog.Logger) error {
	if c.config.CookiesPath == "" {
		return errors.New("no cookies path configured")
	}
	data, err := os.ReadFile(c.config.CookiesPath)
	if err != nil {
		return fmt.Errorf("read cookie set: %w", err)
	}
	var records []CookieRecord
	if err = json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("parse cookie set: %w", err)
	}

	installed := 0
	for _, rec := range records {
		// A record with no domain is corrupt. Skip it; one bad cookie must
		// not abort the whole load.
		if rec.Domain == "" {
			log.Warn().Str("cookie", rec.Name).Msg("Skipping cookie record without domain")
			continue
		}
		if err = c.api.SetCookie(formatCookie(rec), cookieURL(rec)); err != nil {
			log.Warn().Err(err).Str("cookie", rec.Name).Msg("Failed to install cookie")
			continue
		}
		installed++
	}
	if installed == 0 {
		return errors.New("no valid cookie records installed")
	}
	log.Info().Int("installed", installed).Int("total", len(records)).Msg("Installed cookie set")

	return c.validateIdentity(ctx, log)
}

// validateIdentity performs the authoritative "who am I" round-trip and
// caches the resulting profile as the client's own user.
func (c *Client) validateIdentity(ctx context.Context, log zerolog.Logger) error {
	profile, err := c.api.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("identity validation: %w", err)
	}
	if profile == nil || profile.ID == "" {
		return errors.New("identity validation returned no profile")
	}
	c.self = c.cache.upsertUser(profile)
	log.Info().Str("user_id", c.self.ID).Str("username", c.self.Username).Msg("Identity validated")
	return nil
}

// persistSession re-serializes the authoritative session and writes it to
// disk. The write goes through a temp file and rename so the artifact is
// never partially written.
func (c *Client) persistSession(log zerolog.Logger) error {
	if c.config.SessionPath == "" {
		return nil
	}
	data, err := c.api.ExportSession()
	if err != nil {
		return fmt.Errorf("serialize session: %w", err)
	}
	if err = writeFileAtomic(c.config.SessionPath, data); err != nil {
		return fmt.Errorf("write session artifact: %w", err)
	}
	log.Debug().Str("path", c.config.SessionPath).Int("bytes", len(data)).Msg("Persisted session artifact")
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err = os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// formatCookie renders a cookie record as a Set-Cookie style string for the
// transport's cookie store.
func formatCookie(rec CookieRecord) string {
	var b strings.Builder
	b.WriteString(rec.Name)
	b.WriteByte('=')
	b.WriteString(rec.Value)
	b.WriteString("; Domain=")
	b.WriteString(rec.Domain)
	if rec.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(rec.Path)
	}
	if rec.Expires != nil {
		expires := time.Unix(int64(*rec.Expires), 0).UTC()
		b.WriteString("; Expires=")
		b.WriteString(expires.Format(http1123))
	}
	if rec.Secure {
		b.WriteString("; Secure")
	}
	if rec.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	return b.String()
}

// http1123 is the cookie expiry time layout (RFC 1123 with GMT).
const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"

func cookieURL(rec CookieRecord) string {
	return "https://" + strings.TrimPrefix(rec.Domain, ".") + "/"
}
