// client.go - Authoritative product content lookups against the item registry API

package reference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
)

// DefaultBaseURL is the registry host
const DefaultBaseURL = "https://n2.steamship.co.jp"

// DefaultTimeout bounds one lookup
const DefaultTimeout = 10 * time.Second

// ContentField is the item field holding the content description
const ContentField = "内容量・規格等"

// Config holds the registry connection settings
type Config struct {
	BaseURL  string
	User     string
	Password string
	Timeout  time.Duration
}

// Client fetches reference content. It never returns errors; failures are
// encoded in the returned Text.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger
}

// NewClient creates a registry client
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     logger.With().Str("component", "reference").Logger(),
	}
}

// FetchAll looks up every distinct code concurrently, one request per code
func (c *Client) FetchAll(ctx context.Context, codes []string, contextCode string) common.ReferenceContent {
	out := make(common.ReferenceContent, len(codes))
	var mu sync.Mutex

	seen := make(map[string]struct{}, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}

		g.Go(func() error {
			content := c.Fetch(gctx, code, contextCode)
			mu.Lock()
			out[code] = content
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Fetch looks up the content description of one product code
func (c *Client) Fetch(ctx context.Context, code, contextCode string) common.Text {
	if code == "" || contextCode == "" {
		return common.Success("")
	}
	if c.cfg.User == "" || c.cfg.Password == "" {
		return common.PermanentError(common.FailureCredentials, "")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/%s/wp-admin/admin-ajax.php?%s", c.cfg.BaseURL, url.PathEscape(contextCode), url.Values{
		"action": {"n2_items_api"},
		"mode":   {"json"},
		"code":   {strings.ToUpper(code)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.Error().Err(err).Str("code", code).Msg("failed to build request")
		return common.PermanentError(common.FailureUnexpected, "")
	}
	req.SetBasicAuth(c.cfg.User, c.cfg.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportFailure(code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug().Int("status", resp.StatusCode).Str("code", code).Msg("reference lookup returned no content")
		return common.Success("")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportFailure(code, err)
	}

	return common.Success(parseContent(body))
}

func (c *Client) transportFailure(code string, err error) common.Text {
	c.logger.Warn().Err(err).Str("code", code).Msg("reference lookup failed")

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return common.TransientError(common.FailureTimeout, "")
	case errors.Is(err, context.Canceled):
		return common.TransientError(common.FailureConnection, "canceled")
	case errors.As(err, &netErr):
		return common.TransientError(common.FailureConnection, "")
	default:
		return common.PermanentError(common.FailureUnexpected, "")
	}
}

// parseContent extracts the content field; items may be a list or a single object
func parseContent(body []byte) string {
	var payload struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Items) == 0 {
		return ""
	}

	var item map[string]any
	var list []json.RawMessage
	if err := json.Unmarshal(payload.Items, &list); err == nil {
		if len(list) == 0 {
			return ""
		}
		if err := json.Unmarshal(list[0], &item); err != nil {
			return ""
		}
	} else if err := json.Unmarshal(payload.Items, &item); err != nil {
		return ""
	}

	switch v := item[ContentField].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
