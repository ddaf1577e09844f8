package handler

import (
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/haatos/runkeeper/internal/artifact"
	"github.com/haatos/runkeeper/internal/build"
	"github.com/haatos/runkeeper/internal/service"
	"github.com/haatos/runkeeper/internal/views"
)

func SetupBuildRoutes(g *echo.Group, buildService service.BuildServicer) {
	h := NewBuildHandler(buildService)
	g.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusSeeOther, "/jobs")
	})
	jobs := g.Group("/jobs")
	jobs.GET("", h.GetJobsPage)
	jobs.GET("/:job", h.GetJobPage)
	jobs.PATCH("/:job", h.PatchJobDisplayName)
	jobs.POST("/:job/builds", h.PostBuild)
	jobs.GET("/:job/builds/:number", h.GetBuildPage)
	jobs.DELETE("/:job/builds/:number", h.DeleteBuild)
	jobs.POST("/:job/builds/:number/keep", h.PostKeep)
	jobs.DELETE("/:job/builds/:number/keep", h.DeleteKeep)
	jobs.POST("/:job/builds/:number/interrupt", h.PostInterrupt)
	jobs.GET("/:job/builds/:number/console", h.GetConsole)
	jobs.GET("/:job/builds/:number/console/sse", h.GetConsoleSSE)
	jobs.GET("/:job/builds/:number/artifacts", h.GetArtifacts)
	jobs.GET("/:job/builds/:number/artifacts.zip", h.GetArtifactsZip)
	jobs.GET("/:job/builds/:number/artifacts/*", h.GetArtifact)
}

type BuildHandler struct {
	buildService service.BuildServicer
}

func NewBuildHandler(buildService service.BuildServicer) *BuildHandler {
	return &BuildHandler{buildService: buildService}
}

func (h *BuildHandler) buildView(r *build.Record) views.BuildView {
	bv := views.BuildView{
		Job:           r.Job().Name(),
		Number:        r.Number(),
		DisplayName:   r.Job().DisplayName(),
		Status:        r.Status().String(),
		Result:        string(r.Result()),
		Keep:          r.Keep(),
		CanToggleKeep: h.buildService.CanToggleKeep(r),
		Badges:        h.buildService.Badges(r),
		CreatedOn:     r.CreatedOn(),
		StartedOn:     r.StartedOn(),
		EndedOn:       r.EndedOn(),
	}
	if e := r.Executor(); e != nil {
		bv.Executor = e.ID()
	}
	if r.Status() != build.StatusNotStarted {
		d := h.buildService.CanDelete(r)
		bv.CanDelete = d.Allowed
		bv.DeleteReason = d.Reason
	}
	return bv
}

func (h *BuildHandler) jobView(j *build.Job) views.JobView {
	records := j.Records()
	jv := views.JobView{
		Name:             j.Name(),
		DisplayName:      j.DisplayName(),
		KeepDependencies: j.KeepDependencies(),
		Artifacts:        j.Artifacts(),
		Builds:           make([]views.BuildView, 0, len(records)),
	}
	for _, r := range records {
		jv.Builds = append(jv.Builds, h.buildView(r))
	}
	return jv
}

func (h *BuildHandler) runView(c echo.Context, r *build.Record) views.RunView {
	rv := views.RunView{
		BuildView:  h.buildView(r),
		Upstream:   views.RecordRefs(h.buildService.Upstream(r)),
		Downstream: views.RecordRefs(h.buildService.Downstream(r)),
		Links:      views.LinkViews(h.buildService.Links(r)),
		Artifacts:  []build.Entry{},
	}
	entries, err := h.buildService.ListArtifacts(c.Request().Context(), r, "")
	switch {
	case err == nil:
		rv.Artifacts = entries
	case errors.Is(err, artifact.ErrNoArtifacts):
	default:
		log.WithError(err).WithField("record", r.String()).Warn("err listing artifacts")
		rv.ArtifactsError = "artifacts are currently unavailable"
	}
	return rv
}

func (h *BuildHandler) GetJobsPage(c echo.Context) error {
	jobs := h.buildService.ListJobs()
	jvs := make([]views.JobView, 0, len(jobs))
	for _, j := range jobs {
		jvs = append(jvs, h.jobView(j))
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusOK, jvs)
	}
	if isHXRequest(c) {
		return render(c, views.JobsMain(jvs))
	}
	return render(c, views.JobsPage(jvs))
}

func (h *BuildHandler) GetJobPage(c echo.Context) error {
	jp := new(JobParams)
	if err := c.Bind(jp); err != nil {
		return newError(c, err, http.StatusBadRequest, "invalid job data")
	}

	j, err := h.buildService.GetJob(jp.Job)
	if err != nil {
		return serviceError(c, err)
	}

	jv := h.jobView(j)
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, jv)
	}
	if isHXRequest(c) {
		return render(c, views.JobMain(jv))
	}
	return render(c, views.JobPage(jv))
}

func (h *BuildHandler) PatchJobDisplayName(c echo.Context) error {
	jp := new(JobParams)
	if err := c.Bind(jp); err != nil {
		return newError(c, err, http.StatusBadRequest, "invalid job data")
	}

	if err := h.buildService.SetDisplayName(jp.Job, strings.TrimSpace(jp.DisplayName)); err != nil {
		return serviceError(c, err)
	}

	if wantsJSON(c) {
		j, err := h.buildService.GetJob(jp.Job)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(http.StatusOK, h.jobView(j))
	}
	return renderToast(c, views.SuccessToast("job renamed", 3000))
}

func (h *BuildHandler) PostBuild(c echo.Context) error {
	jp := new(JobParams)
	if err := c.Bind(jp); err != nil {
		return newError(c, err, http.StatusBadRequest, "invalid job data")
	}

	r, err := h.buildService.Trigger(jp.Job)
	if err != nil {
		return serviceError(c, err)
	}

	if wantsJSON(c) {
		return c.JSON(http.StatusCreated, h.buildView(r))
	}
	target := views.BuildPath(r.Job().Name(), r.Number())
	if isHXRequest(c) {
		return hxRedirect(c, target)
	}
	return c.Redirect(http.StatusSeeOther, target)
}

func (h *BuildHandler) record(c echo.Context) (*build.Record, error) {
	bp := new(BuildParams)
	if err := c.Bind(bp); err != nil {
		return nil, newError(c, err, http.StatusBadRequest, "invalid build data")
	}
	r, err := h.buildService.GetRecord(bp.Job, bp.Number)
	if err != nil {
		return nil, serviceError(c, err)
	}
	return r, nil
}

func (h *BuildHandler) GetBuildPage(c echo.Context) error {
	r, err := h.record(c)
	if err != nil {
		return err
	}

	rv := h.runView(c, r)
	if wantsJSON(c) {
		return c.JSON(http.StatusOK, rv)
	}
	if isHXRequest(c) {
		return render(c, views.RunMain(rv))
	}
	return render(c, views.RunPage(rv))
}

// buildChanged answers a state changing request with the refreshed build.
func (h *BuildHandler) buildChanged(c echo.Context, r *build.Record, status int) error {
	if wantsJSON(c) {
		return c.JSON(status, h.buildView(r))
	}
	if isHXRequest(c) {
		_ = hxRetarget(c, "#main")
		_ = hxReswap(c, "outerHTML")
		return render(c, views.RunMain(h.runView(c, r)))
	}
	return c.Redirect(http.StatusSeeOther, views.BuildPath(r.Job().Name(), r.Number()))
}

func (h *BuildHandler) DeleteBuild(c echo.Context) error {
	r, err := h.record(c)
	if err != nil {
		return err
	}

	if err := h.buildService.Delete(c.Request().Context(), r.Job().Name(), r.Number()); err != nil {
		return serviceError(c, err)
	}

	if wantsJSON(c) {
		return c.NoContent(http.StatusNoContent)
	}
	target := views.JobPath(r.Job().Name())
	if isHXRequest(c) {
		return hxRedirect(c, target)
	}
	return c.Redirect(http.StatusSeeOther, target)
}

func (h *BuildHandler) PostKeep(c echo.Context) error {
	r, err := h.record(c)
	if err != nil {
		return err
	}

	if _, err := h.buildService.Keep(r.Job().Name(), r.Number()); err != nil {
		return serviceError(c, err)
	}
	return h.buildChanged(c, r, http.StatusOK)
}

func (h *BuildHandler) DeleteKeep(c echo.Context) error {
	r, err := h.record(c)
	if err != nil {
		return err
	}

	if _, err := h.buildService.Unkeep(r.Job().Name(), r.Number()); err != nil {
		return serviceError(c, err)
	}
	return h.buildChanged(c, r, http.StatusOK)
}

func (h *BuildHandler) PostInterrupt(c echo.Context) error {
	r, err := h.record(c)
	if err != nil {
		return err
	}

	if err := h.buildService.Interrupt(r.Job().Name(), r.Number()); err != nil {
		return serviceError(c, err)
	}
	return h.buildChanged(c, r, http.StatusAccepted)
}

func (h *BuildHandler) GetConsole(c echo.Context) error {
	r, err := h.record(c)
	if err != nil {
		return err
	}

	f, err := h.buildService.OpenConsole(r)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newError(c, err, http.StatusNotFound, "console output not found")
		}
		return newError(c, err, http.StatusInternalServerError, "unable to read console output")
	}
	defer f.Close()
	return c.Stream(http.StatusOK, echo.MIMETextPlainCharsetUTF8, f)
}

func (h *BuildHandler) GetArtifacts(c echo.Context) error {
	ap := new(ArtifactParams)
	if err := c.Bind(ap); err != nil {
		return newError(c, err, http.StatusBadRequest, "invalid artifact data")
	}
	r, err := h.buildService.GetRecord(ap.Job, ap.Number)
	if err != nil {
		return serviceError(c, err)
	}

	entries, err := h.buildService.ListArtifacts(c.Request().Context(), r, ap.Dir)
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *BuildHandler) GetArtifact(c echo.Context) error {
	r, err := h.record(c)
	if err != nil {
		return err
	}
	name, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return newError(c, err, http.StatusBadRequest, "invalid artifact name")
	}

	ctx := c.Request().Context()
	entry, err := h.buildService.StatArtifact(ctx, r, name)
	if err != nil {
		return serviceError(c, err)
	}
	if entry.Dir {
		entries, err := h.buildService.ListArtifacts(ctx, r, name)
		if err != nil {
			return serviceError(c, err)
		}
		return c.JSON(http.StatusOK, entries)
	}

	f, err := h.buildService.OpenArtifact(ctx, r, name)
	if err != nil {
		return serviceError(c, err)
	}
	defer f.Close()

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(
		echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(name)}),
	)
	return c.Stream(http.StatusOK, contentType, f)
}

func (h *BuildHandler) GetArtifactsZip(c echo.Context) error {
	r, err := h.record(c)
	if err != nil {
		return err
	}

	// surface store errors before the response is committed
	ctx := c.Request().Context()
	if _, err := h.buildService.ListArtifacts(ctx, r, ""); err != nil {
		return serviceError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/zip")
	c.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s-%d.zip"`, r.Job().Name(), r.Number()),
	)
	c.Response().WriteHeader(http.StatusOK)
	if err := artifact.WriteZip(ctx, c.Response(), h.buildService.ArtifactRoot(r)); err != nil {
		log.WithError(err).WithField("record", r.String()).Error("err streaming artifacts archive")
	}
	return nil
}
