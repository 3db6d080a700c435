package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// BannedList holds banned-IP specs and a compiled form for fast
// per-connection checks. Specs look like "75.120.4.11",
// "75.120.4" (one byte of mask per non-zero quad) or "10.0.0.0/8".
// Safe for concurrent use: admission checks run on accept goroutines
// while the admin service edits the list.
type BannedList struct {
	path string

	mu       sync.RWMutex
	specs    []string
	compiled []netMask
}

type netMask struct {
	net  uint32
	mask uint32
}

type bannedFile struct {
	Banned []string `yaml:"Banned"`
}

// LoadBannedList reads the banned list from a YAML file. A missing
// file yields an empty list that can still be saved to the same path.
func LoadBannedList(path string) (*BannedList, error) {
	b := &BannedList{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("banned-list file absent", "path", path)
			b.compile()
			return b, nil
		}
		return nil, fmt.Errorf("reading banned list %s: %w", path, err)
	}
	var f bannedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing banned list %s: %w", path, err)
	}
	b.specs = f.Banned
	b.compile()
	return b, nil
}

// Save writes the current specs back to the list's file.
func (b *BannedList) Save() error {
	b.mu.RLock()
	data, err := yaml.Marshal(bannedFile{Banned: b.specs})
	b.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling banned list: %w", err)
	}
	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		return fmt.Errorf("writing banned list %s: %w", b.path, err)
	}
	return nil
}

// Specs returns a copy of the raw spec strings.
func (b *BannedList) Specs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.specs)
}

// Add registers a spec and recompiles. Duplicates are ignored.
func (b *BannedList) Add(spec string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if slices.Contains(b.specs, spec) {
		return
	}
	b.specs = append(b.specs, spec)
	b.compile()
}

// Remove drops a spec and recompiles.
func (b *BannedList) Remove(spec string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.Index(b.specs, spec)
	if i < 0 {
		return
	}
	b.specs = slices.Delete(b.specs, i, i+1)
	b.compile()
}

func (b *BannedList) compile() {
	b.compiled = b.compiled[:0]
	for _, spec := range b.specs {
		nm, ok := parseSpec(spec)
		if !ok {
			slog.Warn("illegal spec in banned list, skipping it", "spec", spec)
			continue
		}
		b.compiled = append(b.compiled, nm)
	}
	for _, nm := range b.compiled {
		slog.Debug("banned network",
			"net", fmt.Sprintf("0x%08x", nm.net),
			"mask", fmt.Sprintf("0x%08x", nm.mask))
	}
}

func parseSpec(spec string) (netMask, bool) {
	var netPart string
	bits := 0
	switch parts := strings.Split(spec, "/"); len(parts) {
	case 1:
		netPart = parts[0]
	case 2:
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 || n > 32 {
			return netMask{}, false
		}
		netPart, bits = parts[0], n
	default:
		return netMask{}, false
	}

	var quads [4]int
	quadStrs := strings.Split(netPart, ".")
	if len(quadStrs) > 4 {
		return netMask{}, false
	}
	for i, s := range quadStrs {
		if s == "" {
			continue
		}
		q, err := strconv.Atoi(s)
		if err != nil || q < 0 || q > 255 {
			return netMask{}, false
		}
		quads[i] = q
	}

	var network uint32
	for _, q := range quads {
		network = network<<8 | uint32(q)
	}
	if bits == 0 {
		// no explicit prefix: one mask byte per non-zero quad
		for _, q := range quads {
			if q != 0 {
				bits += 8
			}
		}
	}
	mask := uint32((uint64(1)<<bits - 1) << (32 - bits))
	return netMask{net: network, mask: mask}, true
}

// IsBanned reports whether an IPv4 address matches any banned
// network. Non-IPv4 input is never banned. A nil list bans nobody.
func (b *BannedList) IsBanned(ipAddress string) bool {
	if b == nil {
		return false
	}
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	addr := uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, nm := range b.compiled {
		if nm.net&nm.mask == addr&nm.mask {
			return true
		}
	}
	return false
}
