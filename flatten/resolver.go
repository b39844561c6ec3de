package flatten

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/georgepadayatti/pdfflatten/pdf/fonts"
)

// FontResource is the font typed signatures are drawn with: an embedded
// TrueType program or a standard fallback font.
type FontResource struct {
	// Embedded is nil when the fallback is in use.
	Embedded *fonts.TrueTypeFont
	Fallback *fonts.StandardType1Font
	// Path is the font file that was tried.
	Path string
}

// IsFallback reports whether the standard fallback font is in use.
func (r FontResource) IsFallback() bool {
	return r.Embedded == nil
}

// Name returns the PostScript name of the font in use.
func (r FontResource) Name() string {
	if r.Embedded != nil {
		return r.Embedded.Name()
	}
	if r.Fallback != nil {
		return r.Fallback.Name()
	}
	return ""
}

// FontResolver loads the signature font once per export.
type FontResolver struct {
	// Path is the TrueType font file. A relative path that does not exist
	// is also looked up next to the executable.
	Path string
	// Fallback is used when the font file cannot be used.
	Fallback fonts.StandardFont
	Logger   *slog.Logger

	// ReadFile reads the font file; nil means os.ReadFile.
	ReadFile func(name string) ([]byte, error)
}

// Resolve loads the font. It never fails: an unusable font file yields the
// fallback and one warn-level log record.
func (r *FontResolver) Resolve() FontResource {
	fallback := r.Fallback
	if !fonts.IsStandardFont(string(fallback)) {
		fallback = fonts.HelveticaOblique
	}
	res := FontResource{Path: r.Path}

	font, path, err := r.load()
	if err == nil {
		res.Embedded = font
		res.Path = path
		return res
	}
	res.Fallback = fonts.NewStandardFont(fallback)
	if r.Logger != nil {
		r.Logger.LogAttrs(context.Background(), slog.LevelWarn, "custom font unusable, using fallback",
			slog.String("fallback", string(fallback)),
			slog.Any("error", &FontResolutionError{Path: r.Path, Err: err}))
	}
	return res
}

func (r *FontResolver) load() (*fonts.TrueTypeFont, string, error) {
	if r.Path == "" {
		return nil, "", fonts.ErrFontNotFound
	}
	read := r.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	var lastErr error
	for _, path := range r.candidates() {
		data, err := read(path)
		if err != nil {
			lastErr = err
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, "", err
		}
		font, err := fonts.LoadTrueTypeFont(data)
		return font, path, err
	}
	if errors.Is(lastErr, fs.ErrNotExist) {
		return nil, "", errors.Join(fonts.ErrFontNotFound, lastErr)
	}
	return nil, "", lastErr
}

func (r *FontResolver) candidates() []string {
	paths := []string{r.Path}
	if filepath.IsAbs(r.Path) {
		return paths
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), r.Path))
	}
	return paths
}
