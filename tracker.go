package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	orgIDHeader         = "X-Org-ID"
	routeAffinityHeader = "X-Route-Affinity"
)

// errScopeDenied marks a list call rejected by the tracker for one scope.
// Scans skip the scope and continue; it is never fatal to a request.
var errScopeDenied = errors.New("scope access denied")

// GatewayError is a hard tracker failure: a timeout or a non-auth HTTP error.
// It aborts the whole report batch. Status and Body are for operator logs
// only and must never be rendered to the caller.
type GatewayError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tracker request %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("tracker request %s returned %d: %s", e.Endpoint, e.Status, e.Body)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// TrackerGateway performs authenticated calls against the tracker API.
// The affinity slot carries the most recent routing hint the tracker issued;
// it is echoed on every request and overwritten by every response that
// carries one. Purely an optimization, never required for correctness.
type TrackerGateway struct {
	baseURL string
	token   string
	orgID   string
	client  *http.Client

	mu       sync.Mutex
	affinity string
}

func NewTrackerGateway(cfg Config) *TrackerGateway {
	return &TrackerGateway{
		baseURL: strings.TrimRight(cfg.TrackerURL, "/"),
		token:   cfg.TrackerToken,
		orgID:   cfg.TrackerOrgID,
		client:  externalHTTPClient,
	}
}

func (g *TrackerGateway) Affinity() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.affinity
}

func (g *TrackerGateway) SetAffinity(v string) {
	g.mu.Lock()
	g.affinity = v
	g.mu.Unlock()
}

type listEnvelope struct {
	Content   []json.RawMessage `json:"content"`
	PageCount int               `json:"pageCount"`
}

// ListPage fetches one page of a paginated resource listing. A 401/403
// response maps to errScopeDenied; other failures are *GatewayError.
func (g *TrackerGateway) ListPage(resource string, query url.Values, page int) ([]json.RawMessage, int, error) {
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	q.Set("page", strconv.Itoa(page))
	endpoint := fmt.Sprintf("%s/api/v1/%s?%s", g.baseURL, resource, q.Encode())

	status, body, err := g.do(endpoint)
	if err != nil {
		return nil, 0, &GatewayError{Endpoint: endpoint, Err: err}
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, 0, errScopeDenied
	case status != http.StatusOK:
		return nil, 0, &GatewayError{Endpoint: endpoint, Status: status, Body: string(body)}
	}

	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, 0, &GatewayError{Endpoint: endpoint, Status: status, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return envelope.Content, envelope.PageCount, nil
}

// GetByID fetches a single entity directly. Missing and access-denied both
// report found=false: direct lookup denial is an expected outcome for
// out-of-scope items, not an error.
func (g *TrackerGateway) GetByID(resource, id string) (json.RawMessage, bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/%s/%s", g.baseURL, resource, url.PathEscape(id))

	status, body, err := g.do(endpoint)
	if err != nil {
		return nil, false, &GatewayError{Endpoint: endpoint, Err: err}
	}
	switch status {
	case http.StatusOK:
		return json.RawMessage(body), true, nil
	case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
		return nil, false, nil
	default:
		return nil, false, &GatewayError{Endpoint: endpoint, Status: status, Body: string(body)}
	}
}

func (g *TrackerGateway) do(endpoint string) (int, []byte, error) {
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set(orgIDHeader, g.orgID)
	if affinity := g.Affinity(); affinity != "" {
		req.Header.Set(routeAffinityHeader, affinity)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}

	if affinity := resp.Header.Get(routeAffinityHeader); affinity != "" {
		g.SetAffinity(affinity)
	}
	return resp.StatusCode, body, nil
}

// Wire payloads for the cards resource. Listing payloads may omit key and
// fields; the detail endpoint always includes them.
type cardPayload struct {
	ID     string                  `json:"id"`
	Title  string                  `json:"title"`
	Number int64                   `json:"number"`
	Key    string                  `json:"key"`
	Fields map[string]fieldPayload `json:"fields"`
}

type fieldPayload struct {
	Records []timerRecordPayload `json:"records"`
}

type timerRecordPayload struct {
	UserID     string `json:"userId"`
	DurationMS int64  `json:"durationMs"`
	Comment    string `json:"comment"`
	CreatedAt  int64  `json:"createdAt"` // epoch milliseconds
}

func (p cardPayload) toCard() Card {
	card := Card{
		ID:       p.ID,
		Title:    p.Title,
		Sequence: p.Number,
	}
	if ref, ok := parseKey(p.Key); ok {
		card.Prefix = ref.Prefix
		card.Sequence = ref.Sequence
	}
	if len(p.Fields) > 0 {
		card.Fields = make(map[string][]TimeEntry, len(p.Fields))
		for fieldID, field := range p.Fields {
			entries := make([]TimeEntry, 0, len(field.Records))
			for _, rec := range field.Records {
				entries = append(entries, TimeEntry{
					UserID:     rec.UserID,
					DurationMS: rec.DurationMS,
					Comment:    rec.Comment,
					CreatedAt:  time.UnixMilli(rec.CreatedAt).UTC(),
				})
			}
			card.Fields[fieldID] = entries
		}
	}
	return card
}

// FetchCard retrieves one card with full detail.
func FetchCard(g *TrackerGateway, id string) (Card, bool, error) {
	raw, found, err := g.GetByID("cards", id)
	if err != nil || !found {
		return Card{}, false, err
	}
	var payload cardPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Card{}, false, fmt.Errorf("parsing card %s: %w", id, err)
	}
	return payload.toCard(), true, nil
}

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// FindUserByEmail scans the paginated accounts listing for an exact
// (case-insensitive) email match.
func FindUserByEmail(g *TrackerGateway, email string) (TrackerUser, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	query := url.Values{"email": {email}}

	for page := 1; ; page++ {
		entities, pageCount, err := g.ListPage("users", query, page)
		if err != nil {
			return TrackerUser{}, false, err
		}
		for _, raw := range entities {
			var payload userPayload
			if err := json.Unmarshal(raw, &payload); err != nil {
				return TrackerUser{}, false, fmt.Errorf("parsing user: %w", err)
			}
			if strings.ToLower(payload.Email) == email {
				return TrackerUser{ID: payload.ID, Email: payload.Email, Name: payload.Name}, true, nil
			}
		}
		if page >= pageCount {
			return TrackerUser{}, false, nil
		}
	}
}
