package images

import (
	"bytes"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"

	"git.home.luguber.info/inful/sitemirage/internal/span"
)

// refAttrs lists, per tag, the attributes that carry asset paths. References
// are matched by structural scan of these attributes only; image bytes are
// never touched.
var refAttrs = map[string][]string{
	"img":    {"src", "srcset"},
	"source": {"src", "srcset"},
	"a":      {"href"},
	"link":   {"href"},
	"input":  {"src"},
	"video":  {"poster"},
}

// Rewriter applies a substitution plan to markup spans.
type Rewriter struct {
	plan *Plan
}

func NewRewriter(plan *Plan) *Rewriter {
	return &Rewriter{plan: plan}
}

// RewriteTag rewrites references to replaceable images inside one structural
// start tag. fileDir is the site-root-relative directory of the file being
// processed, used to resolve relative references. The substitution is a
// byte-level value replacement: every other byte of the tag stays identical.
// Returns the number of references rewritten.
func (r *Rewriter) RewriteTag(s *span.Span, fileDir string) int {
	if s.Kind != span.Structural || len(s.Attrs) == 0 {
		return 0
	}
	attrs, ok := refAttrs[s.Tag]
	if !ok {
		return 0
	}

	rewritten := 0
	for i := range s.Attrs {
		if !contains(attrs, s.Attrs[i].Key) {
			continue
		}
		val := s.Attrs[i].Val
		var newVal string
		var changed bool
		if s.Attrs[i].Key == "srcset" {
			newVal, changed = r.rewriteSrcset(val, fileDir)
		} else {
			newVal, changed = r.rewriteRef(val, fileDir)
		}
		if !changed {
			continue
		}
		if text, ok := replaceValue(s.Text, val, newVal); ok {
			s.Text = text
			s.Attrs[i].Val = newVal
			rewritten++
		}
	}
	return rewritten
}

// rewriteRef maps a single reference through the plan. Absolute URLs
// (scheme or host present), data URIs and pure fragments are never touched.
func (r *Rewriter) rewriteRef(ref, fileDir string) (string, bool) {
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "data:") {
		return "", false
	}
	if u, err := url.Parse(ref); err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}

	pathPart, suffix := splitRef(ref)
	rootRel := strings.HasPrefix(pathPart, "/")

	var site string
	if rootRel {
		site = Normalize(pathPart)
	} else {
		site = Normalize(path.Join(fileDir, pathPart))
	}

	sub, ok := r.plan.Substitute(site)
	if !ok {
		return "", false
	}

	if rootRel {
		return "/" + sub + suffix, true
	}
	return relSlash(fileDir, sub) + suffix, true
}

// rewriteSrcset rewrites each URL of a srcset value, preserving descriptors
// and separators.
func (r *Rewriter) rewriteSrcset(val, fileDir string) (string, bool) {
	entries := strings.Split(val, ",")
	changed := false
	for i, entry := range entries {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		if newRef, ok := r.rewriteRef(fields[0], fileDir); ok {
			entries[i] = strings.Replace(entry, fields[0], newRef, 1)
			changed = true
		}
	}
	if !changed {
		return "", false
	}
	return strings.Join(entries, ","), true
}

// splitRef separates the path part of a reference from its query/fragment
// suffix.
func splitRef(ref string) (string, string) {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i], ref[i:]
	}
	return ref, ""
}

// relSlash builds a relative slash path from a site directory to a target.
// Both arguments are site-root-relative.
func relSlash(baseDir, target string) string {
	baseDir = Normalize(baseDir)
	if baseDir == "" || baseDir == "." {
		return target
	}
	baseParts := strings.Split(baseDir, "/")
	targetParts := strings.Split(target, "/")

	i := 0
	for i < len(baseParts) && i < len(targetParts)-1 && baseParts[i] == targetParts[i] {
		i++
	}
	out := make([]string, 0, len(baseParts)-i+len(targetParts)-i)
	for range baseParts[i:] {
		out = append(out, "..")
	}
	out = append(out, targetParts[i:]...)
	return strings.Join(out, "/")
}

// replaceValue substitutes an attribute value inside raw tag bytes. Quoted
// forms are preferred so a value that happens to appear elsewhere in the tag
// is not clobbered; entity-escaped values are handled before falling back to
// a bare replacement.
func replaceValue(text []byte, oldVal, newVal string) ([]byte, bool) {
	candidates := [][2]string{
		{`"` + oldVal + `"`, `"` + newVal + `"`},
		{`'` + oldVal + `'`, `'` + newVal + `'`},
	}
	if esc := html.EscapeString(oldVal); esc != oldVal {
		candidates = append(candidates,
			[2]string{`"` + esc + `"`, `"` + html.EscapeString(newVal) + `"`},
			[2]string{`'` + esc + `'`, `'` + html.EscapeString(newVal) + `'`})
	}
	candidates = append(candidates, [2]string{oldVal, newVal})

	for _, c := range candidates {
		if bytes.Contains(text, []byte(c[0])) {
			return bytes.Replace(text, []byte(c[0]), []byte(c[1]), 1), true
		}
	}
	return text, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
