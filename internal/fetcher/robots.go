package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// Robots answers robots.txt permission questions, fetching each host's file
// once.
type Robots struct {
	client *http.Client
	agent  string

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

// NewRobots creates a checker that identifies as agent.
func NewRobots(client *http.Client, agent string) *Robots {
	if client == nil {
		client = http.DefaultClient
	}
	return &Robots{client: client, agent: agent, hosts: make(map[string]*robotstxt.RobotsData)}
}

// Allowed reports whether agent may fetch rawURL.
func (r *Robots) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, eris.Wrapf(err, "robots: parse %s", rawURL)
	}

	data, err := r.load(ctx, u)
	if err != nil {
		return false, err
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, r.agent), nil
}

func (r *Robots) load(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Scheme + "://" + u.Host

	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok := r.hosts[host]; ok {
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil, eris.Wrap(err, "robots: create request")
	}
	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "robots: fetch %s", host)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "robots: read %s", host)
	}

	// 4xx allows everything, 5xx disallows everything.
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, eris.Wrapf(err, "robots: parse %s", host)
	}
	zap.L().Debug("loaded robots.txt", zap.String("host", host), zap.Int("status", resp.StatusCode))

	r.hosts[host] = data
	return data, nil
}
