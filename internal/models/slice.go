package models

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"volreg3d/pkg/volume"
)

// Slice represents a single 2D slice of a volume with metadata
type Slice struct {
	// Image is the slice converted to 16-bit grayscale
	Image *image.Gray16

	// Index is the position of this slice in the stack
	Index int

	// Filename is the original filename of the slice
	Filename string
}

// Stack is an ordered sequence of equally sized slices
type Stack struct {
	// Dir is the directory the slices were read from
	Dir string

	Slices []Slice
}

// Len returns the number of slices
func (s *Stack) Len() int { return len(s.Slices) }

// Dimensions returns the voxel extent of the stacked slices
func (s *Stack) Dimensions() volume.Dimensions {
	if len(s.Slices) == 0 {
		return volume.Dimensions{}
	}
	b := s.Slices[0].Image.Bounds()
	return volume.NewDimensions(b.Dx(), b.Dy(), len(s.Slices))
}

// Volume stacks the slices into a 16-bit volume, slice i at z = i
func (s *Stack) Volume() (*volume.Uint16, error) {
	images := make([]image.Image, len(s.Slices))
	for i, sl := range s.Slices {
		images[i] = sl.Image
	}
	return volume.NewUint16FromImages(images)
}

// isSliceFile reports whether name has an image extension the loader decodes
func isSliceFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// LoadStack reads every PNG or JPEG image in dir, orders them by the number
// embedded in their filenames and converts each to 16-bit grayscale.
func LoadStack(dir string) (*Stack, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isSliceFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no PNG or JPEG images found in %s", dir)
	}

	// Sort by slice number so the stack keeps its anatomical order
	sort.SliceStable(names, func(i, j int) bool {
		return extractNumber(names[i]) < extractNumber(names[j])
	})

	stack := &Stack{Dir: dir, Slices: make([]Slice, 0, len(names))}
	for i, name := range names {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		stack.Slices = append(stack.Slices, Slice{Image: toGray16(img), Index: i, Filename: name})
	}
	return stack, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr != "" {
		num, err := strconv.Atoi(numStr)
		if err == nil {
			return num
		}
	}
	return 0
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

// toGray16 converts any image to a 16-bit grayscale image anchored at the origin
func toGray16(img image.Image) *image.Gray16 {
	if g, ok := img.(*image.Gray16); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray16(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}
