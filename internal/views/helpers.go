package views

//go:generate templ generate

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/haatos/runkeeper/internal/build"
)

const timeLayout = "2006-01-02 15:04:05"

// BuildPath is the URL of a build page; sub-paths are appended verbatim.
func BuildPath(job string, number int64, sub ...string) string {
	p := fmt.Sprintf("/jobs/%s/builds/%d", url.PathEscape(job), number)
	if len(sub) > 0 {
		p += "/" + strings.Join(sub, "/")
	}
	return p
}

func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}

func JobPath(job string) string {
	return "/jobs/" + url.PathEscape(job)
}

func artifactPath(r RunView, e build.Entry) string {
	return BuildPath(r.Job, r.Number, "artifacts", escapePath(e.Name))
}

func runTitle(r RunView) string {
	return fmt.Sprintf("%s #%d", r.DisplayName, r.Number)
}

func lastBuild(j JobView) string {
	if len(j.Builds) == 0 {
		return "-"
	}
	return "#" + strconv.FormatInt(j.Builds[0].Number, 10)
}

func lastResult(j JobView) string {
	if len(j.Builds) == 0 || j.Builds[0].Result == "" {
		return "-"
	}
	return j.Builds[0].Result
}

// renamed reports whether a record's name changed since it was linked.
func renamed(ref RecordRef, nameAtLink string) bool {
	return nameAtLink != "" && nameAtLink != ref.DisplayName
}
