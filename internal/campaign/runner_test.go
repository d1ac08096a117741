package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/applypilot/internal/browser/browsertest"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/filter"
	"github.com/xkilldash9x/applypilot/internal/form"
	"github.com/xkilldash9x/applypilot/internal/history"
	"github.com/xkilldash9x/applypilot/internal/navigator"
	"github.com/xkilldash9x/applypilot/internal/resolver"
)

const (
	loggedInHome  = `<html><body><a href="/id/profile">Profil</a></body></html>`
	loggedOutHome = `<html><body><a href="/id/login">Masuk</a></body></html>`
	searchPage1   = `<html><body>
	  <article data-automation="normalJob"><a data-automation="jobTitle" href="/id/job/1?ref=search">Guru Matematika</a></article>
	  <article data-automation="normalJob"><a data-automation="jobTitle" href="/id/job/2">Sales Guru Les</a></article>
	  <article data-automation="normalJob"><a data-automation="jobTitle" href="/id/job/3">Guru Bahasa</a></article>
	  <article data-automation="normalJob"><a data-automation="jobTitle" href="/id/job/4">Guru Fisika</a></article>
	  <article data-automation="normalJob"><a data-automation="jobTitle" href="/id/job/5">Guru Kimia</a></article>
	  <a data-automation="pagination-next" href="/id/job-search/guru-jobs/in-jakarta/?page=2">Berikutnya</a>
	</body></html>`
	searchPage2 = `<html><body>
	  <article data-automation="normalJob"><a data-automation="jobTitle" href="/id/job/1">Guru Matematika</a></article>
	  <article data-automation="normalJob"><a data-automation="jobTitle" href="/id/job/6">Guru Biologi</a></article>
	</body></html>`
)

func jobPage(location, control string) string {
	return fmt.Sprintf(`<html><body>
	  <span data-automation="job-detail-location">%s</span>
	  <div data-automation="jobAdDetails">Mengajar siswa SMA.</div>
	  %s
	</body></html>`, location, control)
}

var site = map[string]string{
	base: loggedInHome,
	"https://id.jobstreet.com/id/job-search/guru-jobs/in-jakarta/?where=Jakarta":  searchPage1,
	"https://id.jobstreet.com/id/job-search/guru-jobs/in-jakarta/?page=2":         searchPage2,
	"https://id.jobstreet.com/id/job/1?ref=search":                                 jobPage("Jakarta Pusat", `<a data-automation="job-detail-apply" href="/id/job/1/apply">Lamaran Cepat</a>`),
	"https://id.jobstreet.com/id/job/1/apply":                                      `<html><body>step</body></html>`,
	"https://id.jobstreet.com/id/job/3":                                            jobPage("Depok", `<a data-automation="job-detail-apply-external" href="https://careers.example.com">Lamar</a>`),
	"https://id.jobstreet.com/id/job/5":                                            jobPage("Bekasi", `<button type="button">Lamaran Cepat</button>`),
	"https://id.jobstreet.com/id/job/6":                                            jobPage("Bogor", `<a data-automation="job-detail-apply" href="/id/job/6/apply">Lamaran Cepat</a>`),
	"https://id.jobstreet.com/id/job/6/apply":                                      `<html><body>step</body></html>`,
}

func serve(pages map[string]string) func(p *browsertest.Page, url string) error {
	return func(p *browsertest.Page, url string) error {
		markup, ok := pages[url]
		if !ok {
			return fmt.Errorf("no page at %s", url)
		}
		p.Load(url, markup)
		return nil
	}
}

type memHistory struct {
	mu      sync.Mutex
	records []history.Record
}

func (m *memHistory) Load(context.Context) ([]history.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Record(nil), m.records...), nil
}

func (m *memHistory) Append(_ context.Context, r history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

// fakeNavigator completes every job unless its URL is listed in abort.
type fakeNavigator struct {
	outcome navigator.Outcome
	abort   map[string]bool
	jobs    []navigator.Job
}

func (f *fakeNavigator) Run(_ context.Context, job navigator.Job) (*navigator.Session, error) {
	f.jobs = append(f.jobs, job)
	s := &navigator.Session{ID: "s", Job: job, StepIndex: 2, Outcome: f.outcome}
	if f.abort[job.URL] {
		s.Outcome = navigator.Aborted
		s.AbortReason = navigator.LoopDetected
		return s, &navigator.AbortError{Reason: navigator.LoopDetected, Step: 3}
	}
	s.Answered = []navigator.AnsweredQuestion{
		{Step: 1, Question: "Kota domisili", Type: form.Text, Answer: "Jakarta", Source: resolver.SourceExact, Filled: true},
	}
	return s, nil
}

func (f *fakeNavigator) titles() []string {
	var out []string
	for _, j := range f.jobs {
		out = append(out, j.Title)
	}
	return out
}

type fixture struct {
	page    *browsertest.Page
	nav     *fakeNavigator
	backend *memHistory
	report  *history.Report
	runner  *Runner
}

func testCampaign() config.CampaignConfig {
	cfg := config.NewDefaultConfig().Campaign
	cfg.BaseURL = base
	cfg.Keyword = "Guru"
	cfg.Location = "Jakarta"
	cfg.MaxApplications = 5
	cfg.DryRun = true
	cfg.RatePerMinute = 60000
	return cfg
}

func newFixture(t *testing.T, cfg config.CampaignConfig, pages map[string]string, logger *zap.Logger) *fixture {
	t.Helper()
	ctx := context.Background()

	page := browsertest.New("about:blank", "<html></html>")
	page.OnNavigate = serve(pages)

	backend := &memHistory{records: []history.Record{{Title: "Guru Fisika", URL: "https://id.jobstreet.com/id/job/4"}}}
	hist, err := history.OpenLog(ctx, backend, logger)
	require.NoError(t, err)

	excl, err := filter.New([]string{"sales"})
	require.NoError(t, err)

	opts, err := navigator.OptionsFromConfig(config.NewDefaultConfig().Navigator, cfg.DryRun)
	require.NoError(t, err)
	opts.AuthPollInterval = 5 * time.Millisecond

	nav := &fakeNavigator{
		outcome: navigator.DryRunCompleted,
		abort:   map[string]bool{"https://id.jobstreet.com/id/job/6": true},
	}
	report := history.NewReport("run-1", history.Settings{Keyword: cfg.Keyword}, time.Now())

	r, err := NewRunner(page, nav, hist, report, excl, cfg, opts, logger)
	require.NoError(t, err)
	return &fixture{page: page, nav: nav, backend: backend, report: report, runner: r}
}

func TestRunner_Run(t *testing.T) {
	f := newFixture(t, testCampaign(), site, zaptest.NewLogger(t))

	sum, err := f.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Summary{Completed: 2, Attempted: 4, Skipped: 3, Pages: 2}, sum)
	assert.Equal(t, []string{"Guru Matematika", "Guru Kimia", "Guru Biologi"}, f.nav.titles())
	assert.Equal(t, navigator.Job{
		Title: "Guru Matematika", URL: "https://id.jobstreet.com/id/job/1?ref=search",
		Location: "Jakarta Pusat", Salary: "Hidden",
	}, f.nav.jobs[0])

	// Quick apply is a click on the job page, not a navigation.
	assert.Len(t, f.page.Clicks(), 1)
	assert.Contains(t, f.page.Navigations(), "https://id.jobstreet.com/id/job/1/apply")
	assert.NotContains(t, f.page.Navigations(), "https://id.jobstreet.com/id/job/4")

	records, err := f.backend.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records[1:] {
		assert.True(t, r.DryRun, "dry-run completions are tagged")
		assert.False(t, r.AppliedAt.IsZero())
	}
	assert.Equal(t, "https://id.jobstreet.com/id/job/1", records[1].URL)
	assert.Equal(t, "https://id.jobstreet.com/id/job/5", records[2].URL)

	require.Len(t, f.report.Jobs, 3)
	assert.Equal(t, 2, f.report.Completed())
	aborted := f.report.Jobs[2]
	assert.Equal(t, "Aborted", aborted.Outcome)
	assert.Equal(t, "LoopDetected", aborted.AbortReason)
	assert.Empty(t, aborted.Answers)
	assert.Equal(t, []history.Answer{
		{Step: 1, Question: "Kota domisili", Answer: "Jakarta", Source: "Exact", Filled: true},
	}, f.report.Jobs[0].Answers)
}

func TestRunner_MaxApplications(t *testing.T) {
	cfg := testCampaign()
	cfg.MaxApplications = 1
	f := newFixture(t, cfg, site, zaptest.NewLogger(t))

	sum, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Completed)
	assert.Equal(t, 1, sum.Pages)
	assert.Equal(t, []string{"Guru Matematika"}, f.nav.titles())
}

func TestRunner_LiveSubmissionIsNotTaggedDryRun(t *testing.T) {
	cfg := testCampaign()
	cfg.DryRun = false
	cfg.MaxApplications = 1
	f := newFixture(t, cfg, site, zaptest.NewLogger(t))
	f.nav.outcome = navigator.Submitted

	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	records, _ := f.backend.Load(context.Background())
	require.Len(t, records, 2)
	assert.False(t, records[1].DryRun)
}

func TestRunner_StopsWithoutProgress(t *testing.T) {
	pages := map[string]string{
		base: loggedInHome,
		"https://id.jobstreet.com/id/job-search/guru-jobs/in-jakarta/?where=Jakarta": `<html><body>
		  <article data-automation="normalJob"><a data-automation="jobTitle" href="/id/job/4">Guru Fisika</a></article>
		  <a data-automation="pagination-next" href="/id/job-search/guru-jobs/in-jakarta/?page=2">Berikutnya</a>
		</body></html>`,
	}
	f := newFixture(t, testCampaign(), pages, zaptest.NewLogger(t))

	sum, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 1, Pages: 1}, sum)
	assert.Empty(t, f.nav.jobs)
}

func TestRunner_WaitsForLogin(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pages := map[string]string{
		base: loggedOutHome,
		"https://id.jobstreet.com/id/job-search/guru-jobs/in-jakarta/?where=Jakarta": `<html><body></body></html>`,
	}
	f := newFixture(t, testCampaign(), pages, zap.New(core))

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(30 * time.Millisecond)
		f.page.Load(base, loggedInHome)
	}()

	sum, err := f.runner.Run(context.Background())
	<-done
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Pages)
	assert.Equal(t, 1, logs.FilterMessageSnippet("Login required").Len(), "the operator is told once")
}

func TestRunner_LoginWaitHonoursCancellation(t *testing.T) {
	pages := map[string]string{base: loggedOutHome}
	f := newFixture(t, testCampaign(), pages, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := f.runner.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunner_SearchFailure(t *testing.T) {
	f := newFixture(t, testCampaign(), map[string]string{base: loggedInHome}, zaptest.NewLogger(t))
	_, err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load search results")
}

func TestNewRunner_Validation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testCampaign()
	cfg.BaseURL = "not a url"
	_, err := NewRunner(browsertest.New("", ""), &fakeNavigator{}, nil, nil, nil, cfg, navigator.Options{}, logger)
	assert.Error(t, err)

	cfg = testCampaign()
	cfg.RatePerMinute = 0
	_, err = NewRunner(browsertest.New("", ""), &fakeNavigator{}, nil, nil, nil, cfg, navigator.Options{}, logger)
	assert.Error(t, err)
}
