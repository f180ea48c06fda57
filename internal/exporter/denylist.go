package exporter

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Denylist persists channel ids the source platform refused access to, so
// unreachable channels are not retried across runs. One id per line.
type Denylist struct {
	mu   sync.Mutex
	path string
	ids  map[string]struct{}
}

// LoadDenylist reads the denylist file; a missing file is an empty list.
func LoadDenylist(path string) (*Denylist, error) {
	d := &Denylist{path: path, ids: make(map[string]struct{})}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, fmt.Errorf("open denylist: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			d.ids[id] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read denylist: %w", err)
	}
	return d, nil
}

func (d *Denylist) Contains(channelID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.ids[channelID]
	return ok
}

func (d *Denylist) Add(channelID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids[channelID] = struct{}{}
}

func (d *Denylist) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ids)
}

// Save rewrites the denylist file with the current set.
func (d *Denylist) Save() error {
	d.mu.Lock()
	ids := make([]string, 0, len(d.ids))
	for id := range d.ids {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(d.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write denylist: %w", err)
	}
	return nil
}
