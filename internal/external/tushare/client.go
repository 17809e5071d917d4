package tushare

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wonny/veritas/backend/internal/contracts"
	"github.com/wonny/veritas/backend/pkg/config"
	"github.com/wonny/veritas/backend/pkg/httputil"
	"github.com/wonny/veritas/backend/pkg/logger"
)

// Client handles communication with the Tushare Pro API
// ⭐ SSOT: Tushare API 호출은 이 클라이언트에서만
//
// Tushare exposes a single POST endpoint taking
// {api_name, token, params, fields} and answering {code, msg, data:{fields, items}}.
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	token      string
}

// NewClient creates a new Tushare Pro client.
func NewClient(cfg *config.Config, httpClient *httputil.Client, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "tushare"),
		baseURL:    cfg.Tushare.BaseURL,
		token:      cfg.Tushare.Token,
	}
}

// request is the Tushare RPC envelope.
type request struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

// call executes one Tushare RPC and returns the raw response body.
func (c *Client) call(ctx context.Context, apiName string, params map[string]string, fields string) ([]byte, error) {
	resp, err := c.httpClient.PostJSON(ctx, c.baseURL, request{
		APIName: apiName,
		Token:   c.token,
		Params:  params,
		Fields:  fields,
	})
	if err != nil {
		return nil, fmt.Errorf("tushare %s: %w", apiName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: tushare %s returned HTTP 429", contracts.ErrRateLimited, apiName)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tushare %s: unexpected status code %d", apiName, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tushare %s: read body: %w", apiName, err)
	}

	if code := gjson.GetBytes(body, "code").Int(); code != 0 {
		msg := gjson.GetBytes(body, "msg").String()
		if isThrottleMessage(msg) {
			return nil, fmt.Errorf("%w: tushare %s: %s", contracts.ErrRateLimited, apiName, msg)
		}
		return nil, fmt.Errorf("tushare %s: code %d: %s", apiName, code, msg)
	}

	return body, nil
}

// isThrottleMessage detects Tushare's per-minute quota errors, which come
// back as code -1 with a message rather than an HTTP status.
func isThrottleMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "每分钟") ||
		strings.Contains(lower, "抱歉") && strings.Contains(lower, "访问") ||
		strings.Contains(lower, "rate") ||
		strings.Contains(lower, "limit")
}

// TsCode converts a bare ticker into Tushare's suffixed form:
// Shenzhen listings (0/3 prefix) get .SZ, everything else .SH.
func TsCode(ticker string) string {
	if strings.Contains(ticker, ".") {
		return ticker
	}
	if strings.HasPrefix(ticker, "0") || strings.HasPrefix(ticker, "3") {
		return ticker + ".SZ"
	}
	return ticker + ".SH"
}
