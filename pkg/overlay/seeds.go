package overlay

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/SRI-CSL/prism-sub001/pkg/config"
)

// Seeds holds the candidate neighbor pool loaded from a seeds URL,
// file, or inline list, used to pick a node's initial neighbors.
type Seeds struct {
	All   map[string]struct{}
	seeds map[string]struct{}
}

// NewSeeds returns an empty Seeds set.
func NewSeeds() *Seeds {
	return &Seeds{All: map[string]struct{}{}, seeds: map[string]struct{}{}}
}

// LoadSeeds loads a Seeds set from text, which may be an http(s) URL, a
// "list:a,b,c" literal, or a bare filename holding JSON. exclude, if
// non-empty, is removed from the chosen pool (normally our own host).
func LoadSeeds(text, exclude string) (*Seeds, error) {
	s := NewSeeds()
	if text == "" {
		return s, nil
	}
	u, err := url.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("overlay: bad seeds URL %q: %w", text, err)
	}
	var raw []byte
	switch u.Scheme {
	case "http", "https":
		resp, err := http.Get(text)
		if err != nil {
			return nil, fmt.Errorf("overlay: could not load seeds URL: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("overlay: could not load seeds URL: status %d", resp.StatusCode)
		}
		raw, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
	case "list":
		parts := strings.Split(u.Opaque, ",")
		if u.Opaque == "" {
			parts = strings.Split(strings.TrimPrefix(text, "list:"), ",")
		}
		names := make([]string, 0, len(parts))
		for _, p := range parts {
			if p != "" {
				names = append(names, p)
			}
		}
		all, err := seedsFromNames(names)
		if err != nil {
			return nil, err
		}
		s.All = all
		s.seeds = copySet(all)
		if exclude != "" {
			delete(s.seeds, exclude)
		}
		return s, nil
	case "file", "":
		path := u.Path
		if path == "" {
			path = text
		}
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("overlay: could not load seeds file: %w", err)
		}
	default:
		return nil, fmt.Errorf("overlay: unsupported seeds scheme %q", u.Scheme)
	}
	all, err := seedsFromJSON(raw)
	if err != nil {
		return nil, err
	}
	s.All = all
	s.seeds = copySet(all)
	if exclude != "" {
		delete(s.seeds, exclude)
	}
	return s, nil
}

func copySet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

type seedsDocument struct {
	Seeds []string `json:"seeds"`
}

func seedsFromJSON(raw []byte) (map[string]struct{}, error) {
	var doc seedsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("overlay: seeds document is not valid JSON: %w", err)
	}
	if doc.Seeds == nil {
		return nil, fmt.Errorf("overlay: no seeds key in configuration")
	}
	return seedsFromNames(doc.Seeds)
}

func seedsFromNames(names []string) (map[string]struct{}, error) {
	hostname, _ := os.Hostname()
	hostname = strings.ToLower(hostname)
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		if strings.ToLower(name) == hostname {
			continue
		}
		host, err := config.Hostify(name, true, true)
		if err != nil {
			return nil, err
		}
		out[host] = struct{}{}
	}
	return out, nil
}

// Choose returns up to n addresses picked at random from the seed
// pool, without replacement.
func (s *Seeds) Choose(n int) []string {
	pool := make([]string, 0, len(s.seeds))
	for addr := range s.seeds {
		pool = append(pool, addr)
	}
	if n > len(pool) {
		n = len(pool)
	}
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:n]
}
