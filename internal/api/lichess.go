package api

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"chesswatch/internal/config"
	"chesswatch/internal/constants"
	"chesswatch/internal/ratelimit"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

// LichessClient talks to the Lichess game-export API. The export endpoint
// streams newline-delimited JSON, filtered server-side by `since` and capped
// by `max`. Lichess also documents a per-minute data-volume ceiling which is
// not enforced here; see DESIGN.md.
type LichessClient struct {
	baseURL string
	token   string
	client  *fasthttp.Client
	limiter *ratelimit.IntervalLimiter
	logger  zerolog.Logger
}

func NewLichessClient(cfg *config.Config, logger zerolog.Logger) *LichessClient {
	return &LichessClient{
		baseURL: cfg.LichessBaseURL,
		token:   cfg.LichessToken,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		limiter: ratelimit.NewIntervalLimiter(constants.LichessRequestInterval),
		logger:  logger,
	}
}

// LichessGame is one ND-JSON line of the export stream.
type LichessGame struct {
	ID         string `json:"id"`
	Rated      bool   `json:"rated"`
	Variant    string `json:"variant"`
	Speed      string `json:"speed"`
	Perf       string `json:"perf"`
	CreatedAt  int64  `json:"createdAt"`  // unix millis
	LastMoveAt int64  `json:"lastMoveAt"` // unix millis
	Status     string `json:"status"`
	Winner     string `json:"winner"` // "white", "black" or empty on draw
	Players    struct {
		White LichessSide `json:"white"`
		Black LichessSide `json:"black"`
	} `json:"players"`
	Opening struct {
		ECO  string `json:"eco"`
		Name string `json:"name"`
		Ply  int    `json:"ply"`
	} `json:"opening"`
	Clock struct {
		Initial   int `json:"initial"`
		Increment int `json:"increment"`
	} `json:"clock"`
	Moves string `json:"moves"`
	PGN   string `json:"pgn"`
}

type LichessSide struct {
	User struct {
		Name string `json:"name"`
		ID   string `json:"id"`
	} `json:"user"`
	Rating int `json:"rating"`
}

// ExportGames returns the raw ND-JSON lines for a user's most recent games,
// newest first. Lines are returned unparsed so the caller can isolate a
// malformed line without losing the rest of the batch.
func (c *LichessClient) ExportGames(ctx context.Context, username string, since *time.Time, max int) ([][]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("max", strconv.Itoa(max))
	q.Set("sort", "dateDesc")
	q.Set("opening", "true")
	q.Set("pgnInJson", "true")
	if since != nil {
		q.Set("since", strconv.FormatInt(since.UnixMilli(), 10))
	}
	reqURL := fmt.Sprintf("%s/api/games/user/%s?%s", c.baseURL, username, q.Encode())

	headers := map[string]string{"Accept": "application/x-ndjson"}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	var body []byte
	backoff := retry.WithMaxRetries(constants.FetchRetryAttempts, retry.NewExponential(constants.FetchRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, b, err := doGet(ctx, c.client, reqURL, headers)
		if err != nil {
			return retry.RetryableError(err)
		}
		if status == fasthttp.StatusTooManyRequests || status >= 500 {
			c.logger.Warn().Int("status", status).Str("username", username).Msg("lichess request throttled, retrying")
			return retry.RetryableError(fmt.Errorf("lichess API error: %d", status))
		}
		if status != fasthttp.StatusOK {
			return fmt.Errorf("lichess API error: %d", status)
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	var lines [][]byte
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
