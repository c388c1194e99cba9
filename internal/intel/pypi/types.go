package pypi

import "strings"

// File is one distribution file of a release.
type File struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	PackageType string `json:"packagetype"`
	Size        int64  `json:"size"`
	Yanked      bool   `json:"yanked"`
}

const (
	PackageWheel = "bdist_wheel"
	PackageSdist = "sdist"
)

type Info struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Summary     string            `json:"summary"`
	Description string            `json:"description"`
	ProjectURLs map[string]string `json:"project_urls"`

	// RequiresDist holds PEP 508 requirement strings; null on the wire for
	// projects that publish no metadata.
	RequiresDist []string `json:"requires_dist"`
}

// Project is the subset of the JSON API project document we read.
type Project struct {
	Info     Info              `json:"info"`
	Releases map[string][]File `json:"releases"`
	URLs     []File            `json:"urls"`
}

// Release is the per-version JSON API document.
type Release struct {
	Info Info   `json:"info"`
	URLs []File `json:"urls"`
}

// PreferredFile picks a pure-Python wheel, then any wheel, then an sdist.
func PreferredFile(files []File) (File, bool) {
	var wheel, sdist *File
	for i := range files {
		f := &files[i]
		if f.Yanked {
			continue
		}
		switch f.PackageType {
		case PackageWheel:
			if strings.HasSuffix(f.Filename, "-none-any.whl") {
				return *f, true
			}
			if wheel == nil {
				wheel = f
			}
		case PackageSdist:
			if sdist == nil {
				sdist = f
			}
		}
	}
	switch {
	case wheel != nil:
		return *wheel, true
	case sdist != nil:
		return *sdist, true
	}
	return File{}, false
}

