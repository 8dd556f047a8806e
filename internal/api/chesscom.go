package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"chesswatch/internal/config"
	"chesswatch/internal/constants"
	"chesswatch/internal/ratelimit"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

// ChessComClient talks to the Chess.com published-data API. The API has no
// hard request quota but documents that serial access should stay around one
// request per second, so every call goes through the interval limiter.
type ChessComClient struct {
	baseURL string
	client  *fasthttp.Client
	limiter *ratelimit.IntervalLimiter
	logger  zerolog.Logger
}

func NewChessComClient(cfg *config.Config, logger zerolog.Logger) *ChessComClient {
	return &ChessComClient{
		baseURL: cfg.ChessComBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiter: ratelimit.NewIntervalLimiter(constants.ChessComRequestInterval),
		logger:  logger,
	}
}

type ArchivesResponse struct {
	// Archive URLs in chronological order, oldest first.
	Archives []string `json:"archives"`
}

type ArchiveGamesResponse struct {
	Games []json.RawMessage `json:"games"`
}

// ArchiveGame is one record inside a monthly archive page.
type ArchiveGame struct {
	URL         string      `json:"url"`
	UUID        string      `json:"uuid"`
	PGN         string      `json:"pgn"`
	TimeControl string      `json:"time_control"`
	TimeClass   string      `json:"time_class"`
	EndTime     int64       `json:"end_time"` // unix seconds
	Rated       bool        `json:"rated"`
	White       ArchiveSide `json:"white"`
	Black       ArchiveSide `json:"black"`
}

type ArchiveSide struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Result   string `json:"result"`
}

func (c *ChessComClient) GetArchives(ctx context.Context, username string) (*ArchivesResponse, error) {
	url := fmt.Sprintf("%s/player/%s/games/archives", c.baseURL, username)
	return doChessComRequest[ArchivesResponse](ctx, c, url)
}

// GetArchiveGames fetches one monthly archive page. Game records are kept
// raw so a single malformed record cannot poison its siblings.
func (c *ChessComClient) GetArchiveGames(ctx context.Context, archiveURL string) (*ArchiveGamesResponse, error) {
	return doChessComRequest[ArchiveGamesResponse](ctx, c, archiveURL)
}

func doChessComRequest[T any](ctx context.Context, c *ChessComClient, url string) (*T, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	backoff := retry.WithMaxRetries(constants.FetchRetryAttempts, retry.NewExponential(constants.FetchRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, b, err := doGet(ctx, c.client, url, nil)
		if err != nil {
			return retry.RetryableError(err)
		}
		if status == fasthttp.StatusTooManyRequests || status >= 500 {
			c.logger.Warn().Int("status", status).Str("url", url).Msg("chess.com request throttled, retrying")
			return retry.RetryableError(fmt.Errorf("chess.com API error: %d", status))
		}
		if status != fasthttp.StatusOK {
			return fmt.Errorf("chess.com API error: %d", status)
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func doGet(ctx context.Context, client *fasthttp.Client, url string, headers map[string]string) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.DoDeadline(req, resp, deadline); err != nil {
			return 0, nil, err
		}
	} else {
		if err := client.Do(req, resp); err != nil {
			return 0, nil, err
		}
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return resp.StatusCode(), body, nil
}
