package source

import (
	"fmt"
	"strings"
)

// Location is a parsed input or output address.
type Location struct {
	// Stdio is set for "-".
	Stdio bool
	// Path is the local file path.
	Path string
	// Bucket and Key are set for s3://bucket/key.
	Bucket string
	Key    string
}

// IsS3 reports whether the location names an S3 object.
func (l Location) IsS3() bool { return l.Bucket != "" }

// Name is the last path element, used for suffix based detection.
func (l Location) Name() string {
	switch {
	case l.Stdio:
		return ""
	case l.IsS3():
		return l.Key
	default:
		return l.Path
	}
}

func (l Location) String() string {
	switch {
	case l.Stdio:
		return "-"
	case l.IsS3():
		return "s3://" + l.Bucket + "/" + l.Key
	default:
		return l.Path
	}
}

// ParseLocation accepts "-", a local path or s3://bucket/key.
func ParseLocation(s string) (Location, error) {
	switch {
	case s == "":
		return Location{}, fmt.Errorf("source: empty location")
	case s == "-":
		return Location{Stdio: true}, nil
	case strings.HasPrefix(s, "s3://"):
		// Keys keep their S3 semantics; no path cleaning.
		bucket, key, ok := strings.Cut(strings.TrimPrefix(s, "s3://"), "/")
		if !ok || strings.TrimSpace(bucket) == "" || key == "" {
			return Location{}, fmt.Errorf("source: invalid S3 location %q, want s3://bucket/key", s)
		}
		return Location{Bucket: bucket, Key: key}, nil
	default:
		return Location{Path: s}, nil
	}
}
