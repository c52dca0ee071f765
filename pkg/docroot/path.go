package docroot

import (
	"net/url"
	"strings"
)

// CleanPath normalizes a request target into a store name.
//
// The query string and fragment are dropped, percent-escapes are decoded and
// the result is normalized segment by segment: empty and "." segments are
// removed and ".." removes the previous segment. A ".." with nothing left to
// remove would climb above the root and yields ErrOutsideRoot.
//
// The returned name always starts with "/" and never ends with "/" unless it
// is the root itself. Use HasTrailingSlash on the raw target to recover the
// directory hint.
//
// Examples:
//
//	CleanPath("/")                 -> "/"
//	CleanPath("/a/./b/../c.html?x") -> "/a/c.html"
//	CleanPath("/../etc/passwd")    -> ErrOutsideRoot
func CleanPath(target string) (string, error) {
	p := StripQuery(target)

	decoded, err := url.PathUnescape(p)
	if err != nil {
		return "", ErrInvalidPath
	}

	return CleanName(decoded)
}

// CleanName normalizes a store name that is already decoded.
//
// Unlike CleanPath it never strips "?" or "#" and never decodes "%", so a
// name is looked up exactly as written. Stores call it on the names they
// receive; request targets go through CleanPath once, in the builder.
//
// Examples:
//
//	CleanName("/100%.txt")  -> "/100%.txt"
//	CleanName("/what?.txt") -> "/what?.txt"
//	CleanName("/../x")      -> ErrOutsideRoot
func CleanName(name string) (string, error) {
	if strings.ContainsRune(name, 0) || strings.ContainsRune(name, '\\') {
		return "", ErrInvalidPath
	}

	segments := strings.Split(name, "/")
	stack := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return "", ErrOutsideRoot
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}

	return "/" + strings.Join(stack, "/"), nil
}

// StripQuery removes any query string or fragment from a request target.
func StripQuery(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		return target[:i]
	}
	return target
}

// HasTrailingSlash reports whether the path part of target ends with "/".
func HasTrailingSlash(target string) bool {
	return strings.HasSuffix(StripQuery(target), "/")
}

// Join appends a child name to a cleaned directory name.
func Join(dir, child string) string {
	if dir == "/" {
		return "/" + child
	}
	return dir + "/" + child
}
