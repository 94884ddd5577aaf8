package images

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Source is a single image in one of the supported input representations.
// Loading normalizes every source into an RGB HWC raster.
type Source interface {
	raster() (*Raster, error)
}

// File is an image addressed by filesystem path.
type File string

// URL is an image addressed by HTTP(S) location.
type URL string

// Bytes is an encoded image held in memory.
type Bytes []byte

// Decoded wraps an already-decoded image.Image.
type Decoded struct{ Image image.Image }

// Raw wraps a raster that needs no decoding.
type Raw struct{ Raster *Raster }

func (f File) raster() (*Raster, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, errors.Wrapf(err, "reading image %s", string(f))
	}
	return Bytes(data).raster()
}

func (u URL) raster() (*Raster, error) {
	resp, err := http.Get(string(u))
	if err != nil {
		return nil, errors.Wrapf(err, "fetching image %s", string(u))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching image %s: status %s", string(u), resp.Status)
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding image %s", string(u))
	}
	return FromImage(img), nil
}

func (b Bytes) raster() (*Raster, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "decoding image bytes")
	}
	return FromImage(img), nil
}

func (d Decoded) raster() (*Raster, error) {
	if d.Image == nil {
		return nil, errors.New("decoded source holds no image")
	}
	return FromImage(d.Image), nil
}

func (r Raw) raster() (*Raster, error) {
	if err := r.Raster.Validate(); err != nil {
		return nil, err
	}
	return r.Raster, nil
}

// Load normalizes heterogeneous image sources into rasters, preserving order.
//
// Arguments:
//   - sources: One or more image sources (File, URL, Bytes, Decoded, Raw).
//
// Returns:
//   - []*Raster: One raster per source, in input order.
//   - error: The first load failure, annotated with the source position.
func Load(sources ...Source) ([]*Raster, error) {
	if len(sources) == 0 {
		return nil, errors.New("no image sources given")
	}
	rasters := make([]*Raster, 0, len(sources))
	for i, src := range sources {
		r, err := src.raster()
		if err != nil {
			return nil, errors.Wrapf(err, "source %d", i)
		}
		rasters = append(rasters, r)
	}
	return rasters, nil
}

// LoadDirectory reads every frame-numbered image file in a directory, ordered
// by frame number. File names follow the frame-<n>.<ext> convention.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []*Raster: Decoded rasters in frame order.
//   - error: Error if reading or decoding fails.
func LoadDirectory(dir string) ([]*Raster, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", dir)
	}

	type frameFile struct {
		path  string
		frame int
	}
	var frames []frameFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		ext := filepath.Ext(file.Name())
		switch ext {
		case ".jpg", ".jpeg", ".png", ".gif":
			frame, convErr := strconv.Atoi(strings.TrimSuffix(strings.ReplaceAll(file.Name(), "frame-", ""), ext))
			if convErr != nil {
				return nil, errors.Wrapf(convErr, "parsing frame number from %s", file.Name())
			}
			frames = append(frames, frameFile{path: filepath.Join(dir, file.Name()), frame: frame})
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no image files found in %s", dir)
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].frame < frames[j].frame
	})

	sources := make([]Source, len(frames))
	for i, f := range frames {
		sources[i] = File(f.path)
	}
	return Load(sources...)
}
