package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type cookieFileData struct {
	Backend string         `json:"backend"`
	Cookies []storedCookie `json:"cookies"`
}

// cookieFile persists the backend's cookies between runs. Cookies saved for a
// different backend are ignored.
type cookieFile struct {
	path string
}

func (f *cookieFile) Load(jar http.CookieJar, backend *url.URL) error {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cookie file: %w", err)
	}

	var data cookieFileData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse cookie file %s: %w", f.path, err)
	}
	if data.Backend != backend.String() {
		return nil
	}

	cookies := make([]*http.Cookie, 0, len(data.Cookies))
	for _, c := range data.Cookies {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	jar.SetCookies(backend, cookies)
	return nil
}

func (f *cookieFile) Save(jar http.CookieJar, backend *url.URL) error {
	data := cookieFileData{Backend: backend.String()}
	for _, c := range jar.Cookies(backend) {
		data.Cookies = append(data.Cookies, storedCookie{Name: c.Name, Value: c.Value})
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create cookie dir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write cookie file: %w", err)
	}
	return os.Rename(tmp, f.path)
}
