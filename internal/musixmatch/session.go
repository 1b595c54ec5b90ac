package musixmatch

import (
	"strings"
	"sync"
)

type cookie struct {
	name  string
	value string
}

// Session is the token and cookie jar shared by all requests of one client.
// All access goes through the mutex.
type Session struct {
	mu      sync.Mutex
	token   string
	cookies []cookie
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// CookieHeader renders the jar in insertion order, or "" when empty.
func (s *Session) CookieHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cookies) == 0 {
		return ""
	}
	parts := make([]string, 0, len(s.cookies))
	for _, c := range s.cookies {
		parts = append(parts, c.name+"="+c.value)
	}
	return strings.Join(parts, ";")
}

// StoreSetCookies records Set-Cookie header values. The name is the text
// before the first "=", the value runs up to the first ";". A repeated name
// overwrites the earlier value in place.
func (s *Session) StoreSetCookies(values []string) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, raw := range values {
		idx := strings.Index(raw, "=")
		if idx <= 0 {
			continue
		}
		name := strings.TrimSpace(raw[:idx])
		value, _, _ := strings.Cut(raw[idx+1:], ";")

		replaced := false
		for i := range s.cookies {
			if s.cookies[i].name == name {
				s.cookies[i].value = value
				replaced = true
				break
			}
		}
		if !replaced {
			s.cookies = append(s.cookies, cookie{name: name, value: value})
		}
	}
}

// resetIf clears token and cookies when the held token still equals stale.
// It reports whether a reset happened.
func (s *Session) resetIf(stale string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != stale {
		return false
	}
	s.token = ""
	s.cookies = nil
	return true
}
