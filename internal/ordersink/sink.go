package ordersink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Record is the structured order handed over by the delegated agent's save_order
// call. All fields are required by the instruction prompt; nothing here enforces it.
type Record struct {
	DrinkType string   `json:"drinkType"`
	Size      string   `json:"size"`
	Milk      string   `json:"milk"`
	Extras    []string `json:"extras"`
	Name      string   `json:"name"`
}

// Archiver uploads a completed order document to remote storage. Archival is
// best-effort; failures are logged and do not fail the save.
type Archiver interface {
	Upload(key, contentType string, data []byte) error
}

// FileSink persists completed orders as JSON documents under Dir, one file per order
// keyed by the current Unix timestamp. Two saves within the same second collide and
// the later one wins; the caller is instructed to save once per order.
type FileSink struct {
	Dir     string
	Archive Archiver

	// now is overridable in tests
	now func() time.Time
}

func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "orders"
	}
	return &FileSink{Dir: dir, now: time.Now}
}

// Save writes rec to a timestamped file and returns the spoken confirmation summary.
// The file is pretty-printed with two-space indentation and HTML escaping disabled so
// names and extras survive round-tripping byte-for-byte readable.
func (s *FileSink) Save(rec Record) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("ordersink: create dir: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("ordersink: encode order: %w", err)
	}

	name := fmt.Sprintf("order_%d.json", s.now().Unix())
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("ordersink: write %s: %w", path, err)
	}
	log.Printf("ordersink: saved order to %s", path)

	if s.Archive != nil {
		if err := s.Archive.Upload(name, "application/json", buf.Bytes()); err != nil {
			log.Printf("ordersink: archive upload failed: %v", err)
		}
	}

	return Summary(rec), nil
}

// Summary composes the human-readable confirmation read back to the customer.
func Summary(rec Record) string {
	extras := "no extras"
	if len(rec.Extras) > 0 {
		extras = strings.Join(rec.Extras, ", ")
	}
	return fmt.Sprintf("Thanks %s! One %s %s with %s milk and %s. Your order is saved and will be ready shortly.",
		rec.Name, rec.Size, rec.DrinkType, rec.Milk, extras)
}
