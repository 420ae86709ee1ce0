package mashov

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

const isoDate = "2006-01-02"

// studentKinds is the number of per-student requests in one cycle.
const studentKinds = 5

// cycleRequests bounds the data requests of one cycle: every student kind
// plus holidays, each possibly retried once after a 401.
func cycleRequests(students int) int {
	return 2 * (studentKinds*students + 1)
}

// FetchAll fetches every data kind for every linked student, plus the shared
// holiday list. Per-kind failures yield empty lists. A failed
// re-authentication or a request refused by the open circuit aborts the
// cycle, so callers keep their previous result.
func (c *Client) FetchAll(ctx context.Context) (*models.FetchResult, error) {
	if !c.session.IsOpen() {
		return nil, newError(KindNetwork, 0, "fetch on closed session", ErrSessionClosed)
	}
	students := c.Students()
	if len(students) == 0 {
		return nil, newError(KindNoData, 0, "fetch before login", ErrNotLoggedIn)
	}

	now := c.cfg.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	from := today.AddDate(0, 0, -c.cfg.HomeworkDaysBack).Format(isoDate)
	to := today.AddDate(0, 0, c.cfg.HomeworkDaysForward).Format(isoDate)
	year := c.Year()
	schoolID := c.SchoolID()

	data := make([]models.StudentData, len(students))
	var holidays []models.Holiday

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		raw, err := c.fetchKind(gctx, models.KindHolidays, "", c.endpoints.holidays())
		if err != nil {
			return err
		}
		holidays = NormalizeHolidays(raw)
		return nil
	})

	for i, student := range students {
		slot := &data[i]
		id := student.ID
		g.Go(func() error {
			raw, err := c.fetchKind(gctx, models.KindHomework, id, c.endpoints.homework(id, from, to, year))
			slot.Homework = NormalizeHomework(raw)
			return err
		})
		g.Go(func() error {
			raw, err := c.fetchKind(gctx, models.KindBehavior, id, c.endpoints.behavior(id, from, to, year))
			slot.Behavior = NormalizeBehavior(raw)
			return err
		})
		g.Go(func() error {
			raw, err := c.fetchKind(gctx, models.KindWeeklyPlan, id, c.endpoints.weeklyPlan(id))
			slot.WeeklyPlan = NormalizeWeeklyPlan(raw)
			return err
		})
		g.Go(func() error {
			raw, err := c.fetchKind(gctx, models.KindTimetable, id, c.endpoints.timetable(id))
			slot.Timetable = NormalizeTimetable(raw)
			return err
		})
		g.Go(func() error {
			raw, err := c.fetchKind(gctx, models.KindLessonsHistory, id, c.endpoints.lessonsHistory(id))
			slot.LessonsHistory = NormalizeLessonsHistory(raw)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &models.FetchResult{
		Students:  make([]models.StudentSummary, 0, len(students)),
		BySlug:    make(map[string]models.StudentData, len(students)),
		Holidays:  holidays,
		FetchedAt: now,
	}
	if result.Holidays == nil {
		result.Holidays = []models.Holiday{}
	}
	for i, student := range students {
		result.Students = append(result.Students, student.Summary(schoolID, year))
		result.BySlug[student.Slug] = data[i]
	}
	return result, nil
}

// fetchKind requests one data kind. A 401 triggers one re-authentication and
// one retry; a second 401, a failed re-authentication or a request the
// circuit refused is returned as an error. Every other failure is logged
// and yields a nil payload.
func (c *Client) fetchKind(ctx context.Context, kind models.DataKind, studentID, url string) (any, error) {
	logger := c.logger.With(zap.String("kind", string(kind)), zap.String("student", studentID))

	resp, err := c.request(ctx, kind, url)
	if err == nil && resp.status == http.StatusUnauthorized {
		logger.Warn("upstream returned 401, re-authenticating")
		if authErr := c.reauthenticate(ctx); authErr != nil {
			return nil, fmt.Errorf("re-authenticate after 401 on %s: %w", kind, authErr)
		}
		resp, err = c.request(ctx, kind, url)
		if err == nil && resp.status == http.StatusUnauthorized {
			return nil, newAuthError(resp.status, fmt.Sprintf("still unauthorized on %s after re-authentication", kind), nil)
		}
	}

	if err != nil {
		if isUnavailable(err) {
			return nil, err
		}
		logger.Debug("upstream request failed, using empty result", zap.Error(err))
		return nil, nil
	}
	switch {
	case resp.status == http.StatusNotFound || resp.status == http.StatusBadRequest:
		logger.Debug("endpoint not available on this deployment", zap.Int("status", resp.status))
		return nil, nil
	case resp.status >= http.StatusBadRequest:
		logger.Warn("upstream request degraded, using empty result", zap.Int("status", resp.status))
		return nil, nil
	}

	var raw any
	if err := json.Unmarshal(resp.body, &raw); err != nil {
		logger.Warn("upstream returned invalid json, using empty result", zap.Error(err))
		return nil, nil
	}
	return raw, nil
}

// request sends one GET through the rate limiter and circuit breaker.
func (c *Client) request(ctx context.Context, kind models.DataKind, url string) (upstreamResponse, error) {
	start := time.Now()
	resp, err := c.breaker.execute(func() (upstreamResponse, error) {
		status, body, err := c.get(ctx, url)
		if err != nil {
			return upstreamResponse{}, err
		}
		resp := upstreamResponse{status: status, body: body}
		if status >= http.StatusInternalServerError {
			return resp, errUpstreamServer
		}
		return resp, nil
	})

	outcome := "ok"
	switch {
	case err == nil && resp.status >= http.StatusBadRequest:
		outcome = fmt.Sprintf("http_%d", resp.status)
	case errors.Is(err, errUpstreamServer):
		outcome = fmt.Sprintf("http_%d", resp.status)
		err = newError(KindHTTP, resp.status, "upstream server error", nil)
	case isBreakerRejection(err):
		outcome = "breaker_open"
		err = newError(KindUnavailable, 0, "circuit open", err)
	case err != nil:
		outcome = "error"
	}
	c.cfg.Recorder.ObserveUpstreamRequest(string(kind), outcome, time.Since(start))
	return resp, err
}

// BreakerState reports the circuit breaker state for diagnostics.
func (c *Client) BreakerState() string {
	return c.breaker.state().String()
}
