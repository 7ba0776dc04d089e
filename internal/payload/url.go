package payload

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// KeyFromURL derives an object key from a payload URL. It understands
//
//	s3://<bucket>/<key>
//	https://<bucket>.s3[.<region>].amazonaws.com/<key>   (virtual-hosted)
//	https://s3[.<region>].amazonaws.com/<bucket>/<key>   (path-style)
//	http://localhost:4566/<bucket>/<key>                 (path-style custom endpoint)
//
// A leading "<bucket>/" path segment is stripped whenever it matches bucket.
func KeyFromURL(raw, bucket string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty payload url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse payload url: %w", err)
	}

	path := strings.TrimPrefix(u.EscapedPath(), "/")
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case u.Scheme == "s3":
		// host is the bucket
	case bucket != "" && strings.HasPrefix(host, strings.ToLower(bucket)+"."):
		// virtual-hosted: the whole path is the key
	default:
		if bucket != "" {
			path = strings.TrimPrefix(path, bucket+"/")
		}
	}

	if path == "" {
		return "", fmt.Errorf("payload url %q has no object key", raw)
	}
	return path, nil
}
