package pdf

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

type PageDimensions struct {
	Width  float64
	Height float64
}

type Info struct {
	Path  string
	Pages []PageDimensions
}

func (i Info) PageCount() int {
	return len(i.Pages)
}

// Inspect reads page geometry with pdfcpu, independent of the MuPDF text path.
func Inspect(path string) (Info, error) {
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return Info{}, &ReadError{Path: path, Err: fmt.Errorf("failed to get page dimensions: %w", err)}
	}

	info := Info{Path: path, Pages: make([]PageDimensions, 0, len(dims))}
	for _, dim := range dims {
		info.Pages = append(info.Pages, PageDimensions{Width: dim.Width, Height: dim.Height})
	}
	return info, nil
}
