package media

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/samber/mo"
)

// FrameRange is an inclusive range of frame numbers.
type FrameRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

func (r FrameRange) Count() int64 {
	return r.End - r.Start + 1
}

type PathOptions struct {
	// Sequence enables frame number detection on the base name.
	Sequence bool
	// MaxNumberDigits bounds the trailing digits treated as a frame number.
	MaxNumberDigits int
}

var DefaultPathOptions = PathOptions{Sequence: true, MaxNumberDigits: 9}

// Path is a media location split into the parts needed to address the
// frames of an image sequence. Number is empty when the path is not a sequence.
type Path struct {
	Directory string
	BaseName  string
	Number    string
	Padding   int
	Extension string
	Sequence  mo.Option[FrameRange]
}

// ParsePath splits a file path or file URL.
func ParsePath(s string, opts PathOptions) Path {
	s = strings.TrimPrefix(s, "file://")
	if strings.Contains(s, "%") {
		if unescaped, err := url.PathUnescape(s); err == nil {
			s = unescaped
		}
	}

	var p Path
	cut := strings.LastIndexAny(s, `/\`)
	p.Directory = s[:cut+1]
	file := s[cut+1:]

	if dot := strings.LastIndex(file, "."); dot > 0 {
		p.Extension = file[dot:]
		file = file[:dot]
	}

	if opts.Sequence {
		maxDigits := opts.MaxNumberDigits
		if maxDigits <= 0 {
			maxDigits = DefaultPathOptions.MaxNumberDigits
		}
		i := len(file)
		for i > 0 && len(file)-i < maxDigits && file[i-1] >= '0' && file[i-1] <= '9' {
			i--
		}
		p.Number = file[i:]
		file = file[:i]
		if len(p.Number) > 1 && p.Number[0] == '0' {
			p.Padding = len(p.Number)
		}
	}

	p.BaseName = file
	return p
}

func (p Path) String() string {
	return p.Directory + p.BaseName + p.Number + p.Extension
}

func (p Path) IsSequence() bool {
	return p.Number != ""
}

func (p Path) IsEmpty() bool {
	return p.String() == ""
}

// Ext returns the lower-case extension including the dot.
func (p Path) Ext() string {
	return strings.ToLower(p.Extension)
}

// FrameNumber parses the frame number embedded in the path.
func (p Path) FrameNumber() (int64, bool) {
	if p.Number == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(p.Number, 10, 64)
	return n, err == nil
}

// Frame returns the file name of frame n of a sequence.
func (p Path) Frame(n int64) string {
	if !p.IsSequence() {
		return p.String()
	}
	return p.Directory + p.BaseName + fmt.Sprintf("%0*d", p.Padding, n) + p.Extension
}

// Pattern collapses a sequence path into its base + padding + extension form.
func (p Path) Pattern() string {
	if !p.IsSequence() {
		return p.String()
	}
	if p.Padding == 0 {
		return p.Directory + p.BaseName + "%d" + p.Extension
	}
	return p.Directory + p.BaseName + fmt.Sprintf("%%0%dd", p.Padding) + p.Extension
}

// Join resolves a relative path against dir.
func (p Path) Join(dir string) Path {
	if dir == "" || filepath.IsAbs(p.Directory) || strings.Contains(p.Directory, "://") {
		return p
	}
	joined := filepath.ToSlash(filepath.Join(dir, p.Directory))
	if !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	p.Directory = joined
	return p
}
