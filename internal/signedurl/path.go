package signedurl

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidPath is returned for paths that cannot name an object in the bucket.
var ErrInvalidPath = errors.New("invalid object path")

// NormalizePath turns whatever a caller stored as a photo reference into a
// bucket-relative object key. It strips query strings and fragments, leading
// slashes and a redundant bucket prefix. Full storage URLs are reduced to the
// part after "/<bucket>/". A result without a separator and without a file
// extension is rejected as almost certainly not an object key.
func NormalizePath(bucket, raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if strings.Contains(p, "://") {
		u, err := url.Parse(p)
		if err != nil {
			return "", ErrInvalidPath
		}
		p = u.Path
		if bucket != "" {
			if i := strings.Index(p, "/"+bucket+"/"); i >= 0 {
				p = p[i+len(bucket)+2:]
			}
		}
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = strings.TrimLeft(p, "/")
	if bucket != "" && strings.HasPrefix(p, bucket+"/") {
		p = strings.TrimLeft(p[len(bucket)+1:], "/")
	}
	if p == "" {
		return "", ErrInvalidPath
	}
	if !strings.Contains(p, "/") && path.Ext(p) == "" {
		return "", ErrInvalidPath
	}
	return p, nil
}

// baseKey identifies an object regardless of version.
func baseKey(bucket, p string) string {
	return bucket + ":" + p
}

// cacheKey is the bucket:path key with an optional :version suffix.
func cacheKey(bucket, p, version string) string {
	if version == "" {
		return baseKey(bucket, p)
	}
	return baseKey(bucket, p) + ":" + version
}

// matchesBase reports whether key is base itself or one of its versions.
func matchesBase(key, base string) bool {
	return key == base || strings.HasPrefix(key, base+":")
}
