package mashov

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/noah-isme/mashov-bridge/internal/models"
)

// Device fingerprint sent with every login. The API rejects logins without it.
const (
	appName            = "info.mashov.students"
	apiVersion         = "3.20210425"
	appVersion         = "3.20210425"
	appBuild           = "3.20210425"
	deviceUUID         = "chrome"
	devicePlatform     = "chrome"
	deviceManufacturer = "windows"
	deviceModel        = "desktop"
	deviceVersion      = "120.0.0.0"
	browserUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// School is a catalog entry.
type School struct {
	ID   int    `json:"semel"`
	Name string `json:"name"`
	City string `json:"city,omitempty"`
}

// SchoolResolution is the outcome of ResolveSchool. Ambiguous is set when
// several schools match and none matches exactly; Candidates then lists them.
type SchoolResolution struct {
	School     School
	Ambiguous  bool
	Candidates []School
}

// ResolveSchool turns a numeric code or a school name into a semel.
func (c *Client) ResolveSchool(ctx context.Context, identifier string) (SchoolResolution, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return SchoolResolution{}, newError(KindNoData, 0, "empty school identifier", ErrSchoolNotFound)
	}
	if code, err := strconv.Atoi(identifier); err == nil {
		return SchoolResolution{School: School{ID: code}}, nil
	}

	var lastErr error
	for _, endpoint := range c.endpoints.schoolCatalog(identifier, c.Year()) {
		status, body, err := c.get(ctx, endpoint)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return SchoolResolution{}, err
			}
			continue
		}
		if status >= http.StatusBadRequest {
			c.logger.Debug("school catalog endpoint unavailable", zap.String("url", endpoint), zap.Int("status", status))
			continue
		}
		var raw any
		if err := json.Unmarshal(body, &raw); err != nil {
			c.logger.Debug("school catalog returned invalid json", zap.String("url", endpoint), zap.Error(err))
			continue
		}
		schools := parseSchools(raw)
		if len(schools) == 0 {
			continue
		}
		return matchSchool(identifier, schools)
	}
	if lastErr != nil {
		return SchoolResolution{}, newError(KindNoData, 0, "school catalog unavailable", errors.Join(ErrSchoolNotFound, lastErr))
	}
	return SchoolResolution{}, newError(KindNoData, 0, "no school named "+strconv.Quote(identifier), ErrSchoolNotFound)
}

func parseSchools(raw any) []School {
	return normalizeEach(extractList(raw, "schools", "institutions"), func(m map[string]any) (School, bool) {
		id := integer(m, "semel", "id", "schoolId", "code")
		name := str(m, "name", "schoolName", "title")
		if id == nil || name == nil {
			return School{}, false
		}
		school := School{ID: *id, Name: *name}
		if city := str(m, "city", "town"); city != nil {
			school.City = *city
		}
		return school, true
	})
}

func matchSchool(query string, schools []School) (SchoolResolution, error) {
	needle := strings.ToLower(query)
	var partial []School
	for _, school := range schools {
		name := strings.ToLower(strings.TrimSpace(school.Name))
		if name == needle {
			return SchoolResolution{School: school}, nil
		}
		if strings.Contains(name, needle) {
			partial = append(partial, school)
		}
	}
	switch len(partial) {
	case 0:
		return SchoolResolution{}, newError(KindNoData, 0, "no school named "+strconv.Quote(query), ErrSchoolNotFound)
	case 1:
		return SchoolResolution{School: partial[0]}, nil
	default:
		return SchoolResolution{Ambiguous: true, Candidates: partial}, nil
	}
}

type loginPayload struct {
	Semel              int    `json:"semel"`
	Year               int    `json:"year"`
	Username           string `json:"username"`
	Password           string `json:"password"`
	IsBiometric        bool   `json:"IsBiometric"`
	AppName            string `json:"appName"`
	APIVersion         string `json:"apiVersion"`
	AppVersion         string `json:"appVersion"`
	AppBuild           string `json:"appBuild"`
	DeviceUUID         string `json:"deviceUuid"`
	DevicePlatform     string `json:"devicePlatform"`
	DeviceManufacturer string `json:"deviceManufacturer"`
	DeviceModel        string `json:"deviceModel"`
	DeviceVersion      string `json:"deviceVersion"`
}

type loginResult struct {
	authorization string
	csrf          string
	students      []models.Student
}

// Login authenticates with the configured credentials, retrying transient
// failures, and replaces the session headers and student list.
func (c *Client) Login(ctx context.Context) ([]models.Student, error) {
	if !c.session.IsOpen() {
		return nil, newError(KindNetwork, 0, "login on closed session", ErrSessionClosed)
	}
	schoolID := c.SchoolID()
	if schoolID == 0 {
		return nil, newError(KindNoData, 0, "school not resolved", ErrSchoolNotFound)
	}

	c.setState(StateAuthenticating)
	var lastErr error
	for attempt := 1; attempt <= c.cfg.LoginRetries; attempt++ {
		result, retry, err := c.loginOnce(ctx, schoolID)
		if err == nil {
			c.cfg.Recorder.IncLoginAttempt("success")
			c.session.setAuth(result.authorization, result.csrf)
			c.mu.Lock()
			c.students = result.students
			c.state = StateAuthenticated
			c.mu.Unlock()
			c.breaker.fitCycle(cycleRequests(len(result.students)))
			c.logger.Info("mashov login succeeded",
				zap.Int("school", schoolID),
				zap.Int("year", c.Year()),
				zap.Int("students", len(result.students)),
				zap.Int("attempt", attempt))
			return append([]models.Student(nil), result.students...), nil
		}

		lastErr = err
		c.cfg.Recorder.IncLoginAttempt("failure")
		if !retry || attempt == c.cfg.LoginRetries {
			break
		}
		c.logger.Warn("mashov login failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", c.cfg.LoginRetryDelay),
			zap.Error(err))
		if sleepErr := c.cfg.Sleep(ctx, c.cfg.LoginRetryDelay); sleepErr != nil {
			lastErr = classifyTransportError(sleepErr)
			break
		}
	}

	c.setState(StateUnauthenticated)
	c.logger.Error("mashov login failed", zap.Int("school", schoolID), zap.Error(lastErr))
	return nil, lastErr
}

// loginOnce performs a single login request. retry reports whether the
// failure is transient.
func (c *Client) loginOnce(ctx context.Context, schoolID int) (loginResult, bool, error) {
	payload, err := json.Marshal(loginPayload{
		Semel:              schoolID,
		Year:               c.Year(),
		Username:           c.creds.Username,
		Password:           c.creds.Password,
		IsBiometric:        false,
		AppName:            appName,
		APIVersion:         apiVersion,
		AppVersion:         appVersion,
		AppBuild:           appBuild,
		DeviceUUID:         deviceUUID,
		DevicePlatform:     devicePlatform,
		DeviceManufacturer: deviceManufacturer,
		DeviceModel:        deviceModel,
		DeviceVersion:      deviceVersion,
	})
	if err != nil {
		return loginResult{}, false, newError(KindMalformed, 0, "encode login payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.login(), bytes.NewReader(payload))
	if err != nil {
		return loginResult{}, false, newError(KindMalformed, 0, "build login request", err)
	}
	origin := c.endpoints.origin()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/students/login")
	req.Header.Set("User-Agent", browserUserAgent)

	resp, release, err := c.session.do(req)
	if err != nil {
		return loginResult{}, ctx.Err() == nil, err
	}
	defer release()
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return loginResult{}, ctx.Err() == nil, classifyTransportError(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return loginResult{}, false, newAuthError(resp.StatusCode, "authentication rejected", nil)
	case resp.StatusCode >= http.StatusBadRequest:
		return loginResult{}, true, newError(KindHTTP, resp.StatusCode, "login failed: "+truncate(body), nil)
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return loginResult{}, true, newError(KindMalformed, resp.StatusCode, "invalid login response", errors.Join(ErrNoAuthData, err))
	}

	accessToken := data["accessToken"]
	credential := data["credential"]
	if isEmpty(accessToken) && isEmpty(credential) {
		return loginResult{}, true, newError(KindNoData, resp.StatusCode, "login response carries no token", ErrNoAuthData)
	}

	csrf := resp.Header.Get("X-Csrf-Token")
	if csrf == "" {
		c.logger.Debug("login response has no csrf token")
	}

	students := parseChildren(accessToken)
	if len(students) == 0 {
		students = parseChildren(data)
	}
	if len(students) == 0 {
		return loginResult{}, false, newError(KindNoData, resp.StatusCode, "empty student list", ErrNoChildren)
	}

	return loginResult{
		authorization: bearer(accessToken, credential, resp.Header.Get("Authorization")),
		csrf:          csrf,
		students:      students,
	}, false, nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// bearer derives the Authorization header from the login response. The empty
// string means the session relies on cookies alone.
func bearer(accessToken, credential any, header string) string {
	for _, candidate := range []any{accessToken, credential} {
		switch t := candidate.(type) {
		case string:
			if t != "" {
				return "Bearer " + t
			}
		case map[string]any:
			if token, ok := t["token"].(string); ok && token != "" {
				return "Bearer " + token
			}
		}
	}
	return header
}

func parseChildren(holder any) []models.Student {
	m, ok := holder.(map[string]any)
	if !ok {
		return nil
	}
	taken := make(map[string]struct{})
	return normalizeEach(extractList(m["children"]), func(child map[string]any) (models.Student, bool) {
		id := str(child, "childGuid", "studentGuid", "guid", "id")
		if id == nil || *id == "" {
			return models.Student{}, false
		}
		name := displayName(child)
		if name == "" {
			name = *id
		}
		student := models.Student{
			ID:          *id,
			DisplayName: name,
			Slug:        studentSlug(name, *id, taken),
			ClassCode:   str(child, "classCode", "class_code"),
			ClassNumber: integer(child, "classNum", "class_num"),
			GroupIDs:    groupIDs(child["groups"]),
		}
		return student, true
	})
}

func displayName(child map[string]any) string {
	var parts []string
	if p := str(child, "privateName", "firstName"); p != nil && *p != "" {
		parts = append(parts, strings.TrimSpace(*p))
	}
	if f := str(child, "familyName", "lastName"); f != nil && *f != "" {
		parts = append(parts, strings.TrimSpace(*f))
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if full := str(child, "fullName", "displayName", "name"); full != nil {
		return strings.TrimSpace(*full)
	}
	return ""
}

func groupIDs(raw any) []string {
	list, _ := raw.([]any)
	ids := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := toString(item); ok {
			ids = append(ids, s)
			continue
		}
		if m, ok := item.(map[string]any); ok {
			if id := str(m, "groupId", "group_id", "id"); id != nil {
				ids = append(ids, *id)
			}
		}
	}
	return ids
}

// reauthenticate runs Login after a 401. Concurrent callers may each log in.
func (c *Client) reauthenticate(ctx context.Context) error {
	c.cfg.Recorder.IncReauthentication()
	start := time.Now()
	_, err := c.Login(ctx)
	c.logger.Info("mashov re-authentication finished", zap.Duration("took", time.Since(start)), zap.Error(err))
	return err
}
