package mapfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beetlebugorg/chartview/pkg/mapsource"
)

// worldFile returns the world file of an image, or "" when there is none.
// For harbour.png it tries harbour.pgw, harbour.pngw and harbour.wld, in
// either case.
func worldFile(image string) string {
	ext := filepath.Ext(image)
	base := strings.TrimSuffix(image, ext)
	e := strings.ToLower(strings.TrimPrefix(ext, "."))
	if e == "" {
		return ""
	}
	candidates := []string{
		string([]byte{e[0], e[len(e)-1]}) + "w",
		e + "w",
		"wld",
	}
	for _, c := range candidates {
		for _, name := range []string{base + "." + c, base + "." + strings.ToUpper(c)} {
			if st, err := os.Stat(name); err == nil && st.Mode().IsRegular() {
				return name
			}
		}
	}
	return ""
}

// ReadWorldFile parses an ESRI world file for an image of the given size.
//
// The six lines are A, D, B, E, C, F where C and F locate the centre of
// the top-left pixel. The returned calibration refers to pixel corners.
func ReadWorldFile(path string, width, height int) (*mapsource.Calibration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var v []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() && len(v) < 6 {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		x, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: line %d: %w", path, len(v)+1, err)
		}
		v = append(v, x)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(v) < 6 {
		return nil, fmt.Errorf("%s: want 6 values, got %d", path, len(v))
	}
	a, d, b, e, c, ff := v[0], v[1], v[2], v[3], v[4], v[5]
	return &mapsource.Calibration{
		Width:  width,
		Height: height,
		A:      a,
		B:      b,
		C:      c - (a+b)/2,
		D:      d,
		E:      e,
		F:      ff - (d+e)/2,
	}, nil
}
