package adapter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// OUIDatabase maps hardware address prefixes to vendor names. It reads either
// the IEEE oui.csv export (Registry,Assignment,Organization Name,...) or a
// plain "prefix,vendor" file. Prefixes may be 24, 28 or 36 bits long.
type OUIDatabase struct {
	mu      sync.RWMutex
	vendors map[string]string // upper-case hex prefix -> vendor
	log     logrus.FieldLogger
}

// NewOUIDatabase creates an empty database
func NewOUIDatabase(log logrus.FieldLogger) *OUIDatabase {
	return &OUIDatabase{
		vendors: make(map[string]string),
		log:     fieldLogger(log),
	}
}

// LoadFile replaces the database contents with the entries in path
func (db *OUIDatabase) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open OUI database: %w", err)
	}
	defer f.Close()

	if err := db.Load(f); err != nil {
		return fmt.Errorf("load OUI database %s: %w", path, err)
	}
	db.log.WithField("path", path).Infof("Loaded %d MAC vendor entries", db.Count())
	return nil
}

// Load replaces the database contents with the entries read from r
func (db *OUIDatabase) Load(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	vendors := make(map[string]string)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			db.log.Debugf("OUI: skipping malformed line: %v", err)
			continue
		}

		var prefix, vendor string
		switch {
		case len(record) >= 3 && strings.HasPrefix(strings.ToUpper(record[0]), "MA-"):
			// IEEE: MA-L,Assignment,Organization Name,Organization Address
			prefix, vendor = record[1], record[2]
		case len(record) >= 2:
			prefix, vendor = record[0], record[1]
		default:
			continue
		}

		prefix = normalizeOUI(prefix)
		vendor = strings.TrimSpace(vendor)
		if len(prefix) < 6 || vendor == "" {
			continue // header rows land here
		}
		vendors[prefix] = vendor
	}

	if len(vendors) == 0 {
		return errors.New("no vendor entries found")
	}

	db.mu.Lock()
	db.vendors = vendors
	db.mu.Unlock()
	return nil
}

// Add registers a single prefix
func (db *OUIDatabase) Add(prefix, vendor string) {
	prefix = normalizeOUI(prefix)
	if len(prefix) < 6 || vendor == "" {
		return
	}
	db.mu.Lock()
	db.vendors[prefix] = vendor
	db.mu.Unlock()
}

// Lookup returns the vendor of the longest registered prefix of mac
func (db *OUIDatabase) Lookup(mac string) (string, bool) {
	hex := normalizeOUI(mac)
	if len(hex) < 6 {
		return "", false
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	// MA-S (36 bit) and MA-M (28 bit) before MA-L (24 bit)
	for _, n := range []int{9, 7, 6} {
		if len(hex) < n {
			continue
		}
		if vendor, ok := db.vendors[hex[:n]]; ok {
			return vendor, true
		}
	}
	return "", false
}

// Count returns the number of entries in the database
func (db *OUIDatabase) Count() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors)
}

// normalizeOUI strips separators and upper-cases a MAC or prefix. Anything
// that is not hex yields an empty string.
func normalizeOUI(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == ':' || r == '-' || r == '.':
			continue
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
			b.WriteRune(r)
		case r >= 'a' && r <= 'f':
			b.WriteRune(r - 'a' + 'A')
		default:
			return ""
		}
	}
	return b.String()
}
