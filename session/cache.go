package session

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"time"
)

// cacheFile persists the install UUID and session cookies between runs so
// a restart can resume the existing server-side session.
//
// The original vendor apps store an opaque session blob; here it is a plain
// JSON file so it stays inspectable and survives library upgrades.
type cacheFile struct {
	path string
}

// cacheData is the on-disk shape of the session cache.
type cacheData struct {
	UUID    string         `json:"uuid"`
	Cookies []storedCookie `json:"cookies,omitempty"`
}

// storedCookie is the subset of http.Cookie worth persisting.
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

func (c *cacheFile) load() (*cacheData, error) {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}

	var data cacheData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (c *cacheFile) save(data *cacheData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	// 0600: the cookie values grant account access.
	return os.WriteFile(c.path, raw, 0600)
}

// restoreCache loads the UUID and cookies from disk into the session.
// Missing files are fine; a new cache is written on first persist.
func (s *Session) restoreCache() error {
	if s.cache == nil {
		return nil
	}

	data, err := s.cache.load()
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	s.uuid = data.UUID

	if len(data.Cookies) > 0 && s.jar != nil {
		u, _ := url.Parse(s.baseURL)
		cookies := make([]*http.Cookie, 0, len(data.Cookies))
		for _, sc := range data.Cookies {
			cookies = append(cookies, &http.Cookie{
				Name:    sc.Name,
				Value:   sc.Value,
				Path:    sc.Path,
				Domain:  sc.Domain,
				Expires: sc.Expires,
			})
		}
		s.jar.SetCookies(u, cookies)
		s.logger.Debug("restored session cookies", "count", len(cookies))
	}

	return nil
}

// persistCache writes the current UUID and cookie snapshot to disk.
// Failures are logged, never fatal; the cache is best-effort.
func (s *Session) persistCache() {
	if s.cache == nil {
		return
	}

	data := &cacheData{UUID: s.uuid}

	if s.jar != nil {
		u, _ := url.Parse(s.baseURL)
		for _, c := range s.jar.Cookies(u) {
			data.Cookies = append(data.Cookies, storedCookie{
				Name:    c.Name,
				Value:   c.Value,
				Path:    c.Path,
				Domain:  c.Domain,
				Expires: c.Expires,
			})
		}
	}

	if err := s.cache.save(data); err != nil {
		s.logger.Warn("failed to persist session cache", "path", s.cache.path, "error", err)
	}
}
