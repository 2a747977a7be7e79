// Package token fetches short-lived avatar session tokens from the backend.
package token

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

const maxBody = 64 << 10

// Fetcher issues one POST per call and never retries.
type Fetcher struct {
	URL    string
	Client *http.Client
}

var _ core.TokenFetcher = (*Fetcher)(nil)

func NewFetcher(url string) *Fetcher {
	return &Fetcher{
		URL:    url,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchToken expects {"data":{"token":"..."}}. Any other outcome is a
// domain.KindAuth error.
func (f *Fetcher) FetchToken(ctx context.Context) (domain.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, http.NoBody)
	if err != nil {
		return "", authError("", fmt.Errorf("build token request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", authError("", fmt.Errorf("token request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", authError("", fmt.Errorf("read token response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().Str("module", "adapters.token").Int("status", resp.StatusCode).Msg("token endpoint rejected request")
		return "", authError("", fmt.Errorf("token endpoint: status %d", resp.StatusCode))
	}
	if !gjson.ValidBytes(body) {
		return "", authError("", fmt.Errorf("token endpoint: invalid json"))
	}

	tok := gjson.GetBytes(body, "data.token")
	if tok.Type != gjson.String || tok.Str == "" {
		log.Warn().Str("module", "adapters.token").Bool("present", tok.Exists()).Msg("token missing from response")
		return "", authError(domain.MsgTokenMissing, nil)
	}
	log.Debug().Str("module", "adapters.token").Msg("got token")
	return domain.Token(tok.Str), nil
}

func authError(msg string, err error) *domain.SessionError {
	return domain.NewSessionError(domain.KindAuth, msg, err)
}
