package snapshot

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/shelf-cli/internal/model"
)

// Batch is the set of snapshots one store showed on one day.
type Batch struct {
	Store     string           `yaml:"store"`
	Date      string           `yaml:"date"`
	Snapshots []model.Snapshot `yaml:"snapshots"`

	date time.Time
}

// Day returns the parsed collection date.
func (b Batch) Day() time.Time { return b.date }

// YAMLSource serves snapshots from a backfill file, in any date order:
//
//	batches:
//	  - store: Kocie Figle
//	    date: "2024-03-01"
//	    snapshots:
//	      - ean: "5901234567890"
//	        manufacturer: Animonda
//	        ...
type YAMLSource struct {
	batches []Batch
}

// LoadYAML reads a backfill file from disk.
func LoadYAML(path string) (*YAMLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	src, err := ParseYAML(f)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: load %s", path)
	}
	return src, nil
}

// ParseYAML decodes a backfill document.
func ParseYAML(r io.Reader) (*YAMLSource, error) {
	var doc struct {
		Batches []Batch `yaml:"batches"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "snapshot: decode yaml")
	}

	for i := range doc.Batches {
		b := &doc.Batches[i]
		if b.Store == "" {
			return nil, eris.Errorf("snapshot: batch %d has no store", i)
		}
		d, err := time.Parse(DateLayout, b.Date)
		if err != nil {
			return nil, eris.Wrapf(err, "snapshot: batch %d date", i)
		}
		b.date = d
	}
	return &YAMLSource{batches: doc.Batches}, nil
}

// Batches returns the batches in file order.
func (s *YAMLSource) Batches() []Batch {
	return s.batches
}

// ListSnapshots returns the snapshots recorded for storeName on date.
func (s *YAMLSource) ListSnapshots(ctx context.Context, storeName string, date time.Time) ([]model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "snapshot: list yaml snapshots")
	}
	day := date.Format(DateLayout)
	var out []model.Snapshot
	for _, b := range s.batches {
		if b.Store == storeName && b.Date == day {
			out = append(out, b.Snapshots...)
		}
	}
	return out, nil
}
