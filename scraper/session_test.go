package scraper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/use-agent/jobsnap/models"
)

// fakeDriver scripts the outcome of every browser step.
type fakeDriver struct {
	navErr   error
	clickErr error
	waitErr  error
	snapErr  error
	html     string
	pageURL  string

	clicked []string
	waited  time.Duration
	closed  int
}

func (f *fakeDriver) Navigate(_ context.Context, _ string) error { return f.navErr }

func (f *fakeDriver) Click(_ context.Context, selector string) error {
	f.clicked = append(f.clicked, selector)
	return f.clickErr
}

func (f *fakeDriver) WaitList(_ context.Context, _ string, timeout time.Duration) error {
	f.waited = timeout
	return f.waitErr
}

func (f *fakeDriver) Snapshot(_ context.Context) (string, string, error) {
	return f.html, f.pageURL, f.snapErr
}

func (f *fakeDriver) Close() { f.closed++ }

func openFake(d *fakeDriver) opener {
	return func(context.Context) (driver, error) { return d, nil }
}

const jobsPage = `<ul id="jobs">
  <li><h2>Go Engineer</h2><a href="/job/1">apply</a></li>
  <li><h2>SRE</h2><a href="/job/2">apply</a></li>
</ul>`

func testSchema() models.SiteSchema {
	return models.SiteSchema{
		Website:      "Indeed",
		URL:          "https://www.indeed.com/jobs",
		ListSelector: "#jobs",
		Fields: []models.FieldSpec{
			{Name: "title", Selector: "h2", Attribute: "innerText"},
			{Name: "url", Selector: "a", Attribute: "href"},
		},
		Timeout: 5 * time.Second,
	}
}

func TestSession_Success(t *testing.T) {
	d := &fakeDriver{html: jobsPage, pageURL: "https://www.indeed.com/jobs?start=0"}
	sess := newSession(testSchema(), time.Second)
	fixed := time.UnixMilli(1_700_000_000_000)
	sess.now = func() time.Time { return fixed }

	records, err := sess.run(context.Background(), openFake(d))
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if got := records[1].Get("url"); got != "https://www.indeed.com/job/2" {
		t.Errorf("url = %q", got)
	}
	if records[0].DatePosted != fixed.UnixMilli() || records[0].Website != "Indeed" {
		t.Errorf("unexpected engine fields: %+v", records[0])
	}
	if d.waited != 5*time.Second {
		t.Errorf("wait timeout = %v, want 5s", d.waited)
	}
	if d.closed != 1 {
		t.Errorf("driver closed %d times, want 1", d.closed)
	}
	if want := "init>navigate_pending>content_loaded>list_present>extracting>closed"; sess.machine.path() != want {
		t.Errorf("path = %s, want %s", sess.machine.path(), want)
	}
}

func TestSession_WithAction(t *testing.T) {
	schema := testSchema()
	schema.Action = &models.Action{ClickBefore: "button.accept"}
	d := &fakeDriver{html: jobsPage}
	sess := newSession(schema, time.Second)

	if _, err := sess.run(context.Background(), openFake(d)); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if len(d.clicked) != 1 || d.clicked[0] != "button.accept" {
		t.Errorf("clicked = %v", d.clicked)
	}
	if want := "init>navigate_pending>content_loaded>action_pending>list_present>extracting>closed"; sess.machine.path() != want {
		t.Errorf("path = %s", sess.machine.path())
	}
}

func TestSession_Failures(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		driver   *fakeDriver
		action   bool
		wantCode string
		wantPath string
	}{
		{
			name:     "navigation",
			driver:   &fakeDriver{navErr: boom},
			wantCode: models.ErrCodeNavigation,
			wantPath: "init>navigate_pending>failed>closed",
		},
		{
			name:     "action",
			driver:   &fakeDriver{clickErr: boom},
			action:   true,
			wantCode: models.ErrCodeAction,
			wantPath: "init>navigate_pending>content_loaded>action_pending>failed>closed",
		},
		{
			name:     "selector timeout",
			driver:   &fakeDriver{waitErr: context.DeadlineExceeded},
			wantCode: models.ErrCodeSelectorWait,
			wantPath: "init>navigate_pending>content_loaded>failed>closed",
		},
		{
			name:     "snapshot",
			driver:   &fakeDriver{snapErr: boom},
			wantCode: models.ErrCodeExtraction,
			wantPath: "init>navigate_pending>content_loaded>list_present>extracting>failed>closed",
		},
		{
			name:     "container vanished",
			driver:   &fakeDriver{html: `<div></div>`},
			wantCode: models.ErrCodeExtraction,
			wantPath: "init>navigate_pending>content_loaded>list_present>extracting>failed>closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := testSchema()
			if tt.action {
				schema.Action = &models.Action{ClickBefore: "#go"}
			}
			sess := newSession(schema, time.Second)

			records, err := sess.run(context.Background(), openFake(tt.driver))
			if records != nil {
				t.Errorf("expected no records, got %d", len(records))
			}
			if code := models.CodeOf(err); code != tt.wantCode {
				t.Errorf("code = %q, want %q (err: %v)", code, tt.wantCode, err)
			}
			if got := sess.machine.path(); got != tt.wantPath {
				t.Errorf("path = %s, want %s", got, tt.wantPath)
			}
			if tt.driver.closed != 1 {
				t.Errorf("driver closed %d times, want 1", tt.driver.closed)
			}
		})
	}
}

func TestSession_LaunchFailure(t *testing.T) {
	sess := newSession(testSchema(), time.Second)
	_, err := sess.run(context.Background(), func(context.Context) (driver, error) {
		return nil, errors.New("no chromium")
	})
	if code := models.CodeOf(err); code != models.ErrCodeBrowserCrash {
		t.Errorf("code = %q, want %q", code, models.ErrCodeBrowserCrash)
	}
	if want := "init>failed>closed"; sess.machine.path() != want {
		t.Errorf("path = %s, want %s", sess.machine.path(), want)
	}
}

func TestSession_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := &fakeDriver{waitErr: context.Canceled}
	sess := newSession(testSchema(), time.Second)

	_, err := sess.run(ctx, openFake(d))
	if code := models.CodeOf(err); code != models.ErrCodeCanceled {
		t.Errorf("code = %q, want %q", code, models.ErrCodeCanceled)
	}
	if d.closed != 1 {
		t.Errorf("driver closed %d times, want 1", d.closed)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateInit, StateNavigatePending, true},
		{StateInit, StateContentLoaded, false},
		{StateContentLoaded, StateListPresent, true},
		{StateContentLoaded, StateActionPending, true},
		{StateActionPending, StateExtracting, false},
		{StateExtracting, StateClosed, true},
		{StateListPresent, StateFailed, true},
		{StateFailed, StateClosed, true},
		{StateFailed, StateFailed, false},
		{StateClosed, StateFailed, false},
		{StateClosed, StateInit, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestMachine_IllegalTransition(t *testing.T) {
	m := newMachine()
	err := m.to(StateExtracting)
	if code := models.CodeOf(err); code != models.ErrCodeInternal {
		t.Errorf("code = %q, want %q", code, models.ErrCodeInternal)
	}
	if m.current != StateInit {
		t.Errorf("state changed to %s on illegal transition", m.current)
	}
}

func TestBlockedSet(t *testing.T) {
	set := blockedSet([]string{"Image", "Font", "Bogus"})
	if len(set) != 2 {
		t.Errorf("expected 2 blocked types, got %d", len(set))
	}
	if blockedSet(nil) == nil || len(blockedSet(nil)) != 0 {
		t.Error("expected an empty set for no names")
	}
}

func TestNavigationHeaders(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		wantReferer string
		wantErr     bool
	}{
		{"host", "https://www.indeed.com/jobs?q=java", "https://www.google.com/search?q=www.indeed.com", false},
		{"port is not part of the host", "http://localhost:8080/jobs", "https://www.google.com/search?q=localhost", false},
		{"unparsable", "://bad", "", true},
		{"no host", "/jobs", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers, err := navigationHeaders(tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if headers["Referer"] != tt.wantReferer {
				t.Errorf("Referer = %q, want %q", headers["Referer"], tt.wantReferer)
			}
			if headers["Accept-Language"] == "" {
				t.Error("Accept-Language missing")
			}
		})
	}
}
