package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/goccy/go-json"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Archive writes decoded incidents to disk as JSON so they can be replayed
type Archive struct {
	dir string
}

func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Write stores msg as <sequence>.json, falling back to the receive time in
// nanoseconds when the frame carried no sequence header.
func (a *Archive) Write(msg *Message) (string, error) {
	name := unsafeName.ReplaceAllString(msg.Sequence, "_")
	if name == "" {
		name = strconv.FormatInt(msg.ReceivedAt.UnixNano(), 10)
	}
	path := filepath.Join(a.dir, name+".json")

	data, err := json.MarshalIndent(msg.Incident, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling incident: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// ReadArchived loads one archived incident
func ReadArchived(path string) (*PtIncident, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return DecodeJSON(data)
}
