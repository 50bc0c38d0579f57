package digits

import (
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
	"github.com/GriffinCanCode/hudreader/internal/vision"
)

// Template is one rendering of a symbol.
type Template struct {
	Symbol byte
	Name   string
	Img    *image.Gray
}

// symbolFor maps a template file stem to its symbol. Digits are named
// "<digit>-<variant>", slashes "slash" or "slash-<variant>".
func symbolFor(stem string) (byte, bool) {
	if stem == "slash" || strings.HasPrefix(stem, "slash-") {
		return SlashSymbol, true
	}
	d, _, found := strings.Cut(stem, "-")
	if !found || len(d) != 1 || d[0] < '0' || d[0] > '9' {
		return 0, false
	}
	return d[0], true
}

// LoadDir loads every PNG template in dir. Unrecognized files are skipped
// with a warning; a directory without any template is an error.
func LoadDir(dir string) ([]Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeTemplateLoad, "read template dir").WithMetadata("dir", dir)
	}

	var out []Template
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".png") {
			continue
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		sym, ok := symbolFor(stem)
		if !ok {
			slog.Warn("ignoring template file", "file", name)
			continue
		}
		img, err := vision.LoadGray(filepath.Join(dir, name))
		if err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeTemplateLoad, "decode template %s", name)
		}
		if img.Bounds().Empty() {
			slog.Warn("ignoring empty template", "file", name)
			continue
		}
		out = append(out, Template{Symbol: sym, Name: stem, Img: img})
	}

	if len(out) == 0 {
		return nil, apperrors.New(apperrors.CodeTemplateLoad, "no digit templates found").WithMetadata("dir", dir)
	}
	SortTemplates(out)
	slog.Info("loaded digit templates", "dir", dir, "count", len(out))
	return out, nil
}

// SortTemplates orders templates by symbol then name so matching is
// deterministic regardless of directory order.
func SortTemplates(ts []Template) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Symbol != ts[j].Symbol {
			return ts[i].Symbol < ts[j].Symbol
		}
		return ts[i].Name < ts[j].Name
	})
}
