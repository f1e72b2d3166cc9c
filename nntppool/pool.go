// Package nntppool implements the NNTP pool (C5): a bounded pool of
// authenticated connections to one configured NNTP host, POST/ARTICLE/
// STAT with XOVER subject-search fallback, yEnc framing, and the retry/
// backoff policy spec §4.5 requires.
//
// Grounded on github.com/javi11/nntppool/v4, the connection-pool library
// the drondeseries-altmount manifest depends on for exactly this job
// (pooled, authenticated usenet connections shared across parallel
// upload/download workers) — the single closest domain match anywhere in
// the retrieved pack. Retry/backoff is github.com/avast/retry-go/v4, also
// from that manifest. yEnc framing is github.com/mnightingale/rapidyenc,
// likewise.
package nntppool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/avast/retry-go/v4"
	nntppoolv4 "github.com/javi11/nntppool/v4"
	"github.com/mnightingale/rapidyenc"
	"go.uber.org/zap"

	"github.com/rorocorp/uns/internal/uerr"
)

// Config is the NNTP pool configuration (spec §6: nntp_host, nntp_port,
// nntp_ssl, nntp_username, nntp_password, nntp_group, max_connections).
type Config struct {
	Host        string
	Port        int
	SSL         bool
	Username    string
	Password    string
	Group       string
	MaxConns    int           // N_CONN, default 10
	IdleMax     time.Duration // IDLE_MAX, default 60s
	AcquireWait time.Duration // default 30s, spec §5
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.IdleMax <= 0 {
		c.IdleMax = 60 * time.Second
	}
	if c.AcquireWait <= 0 {
		c.AcquireWait = 30 * time.Second
	}
	return c
}

// Article is one NNTP article to POST (spec §4.5).
type Article struct {
	Subject     string // usenet_subject, 20 random lowercase letters
	MessageID   string // "<" uuid "@" folder_unique_id[:8] ">"
	From        string
	Newsgroups  []string
	Body        []byte // ciphertext, yEnc-encoded before sending
}

// Pool is the interface C6 (uploader) and C8 (downloader) depend on —
// spec §9's PostSink/SegmentSink abstraction, so neither ever holds a
// back-reference to the concrete pool or the store.
type Pool interface {
	Post(ctx context.Context, article Article) error
	Fetch(ctx context.Context, messageID string) ([]byte, error)
	FetchBySubject(ctx context.Context, subject string, since time.Time) ([]byte, string, error)
	Stat(ctx context.Context, messageID string) (bool, error)
	Close() error
}

// NNTPPool is Pool's production implementation over nntppool/v4.
type NNTPPool struct {
	cfg  Config
	pool *nntppoolv4.ConnectionPool
	log  *zap.Logger
}

// Dial opens the pool and performs the handshake for its first
// connection eagerly, so AuthError surfaces at startup rather than on
// the first upload (spec §4.5: "failure → AuthError (fatal)").
func Dial(ctx context.Context, cfg Config, log *zap.Logger) (*NNTPPool, error) {
	cfg = cfg.withDefaults()

	pool, err := nntppoolv4.NewConnectionPool(nntppoolv4.Config{
		Providers: []nntppoolv4.UsenetProviderConfig{
			{
				Host:                  cfg.Host,
				Port:                  cfg.Port,
				Username:              cfg.Username,
				Password:              cfg.Password,
				TLS:                   cfg.SSL,
				MaxConnections:        cfg.MaxConns,
				MaxConnectionIdleTime: cfg.IdleMax,
			},
		},
	})
	if err != nil {
		return nil, uerr.Wrap(uerr.KindAuth, "nntppool.Dial", cfg.Host, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Quit()
		return nil, uerr.Wrap(uerr.KindAuth, "nntppool.Dial", cfg.Host, err)
	}

	return &NNTPPool{cfg: cfg, pool: pool, log: log}, nil
}

func (p *NNTPPool) Close() error {
	p.pool.Quit()
	return nil
}

// backoffPolicy is spec §4.5's retry policy: base 500ms, factor 2, max
// 30s, cap 5 attempts. It retries every error except ArticleNotFoundError;
// 5xx responses are not told apart from other failures and are retried too.
func backoffPolicy(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(5),
		retry.Delay(500*time.Millisecond),
		retry.MaxDelay(30*time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransientNNTPError),
		retry.LastErrorOnly(true),
	)
}

func isTransientNNTPError(err error) bool {
	var statusErr nntppoolv4.ArticleNotFoundError
	if errorsAs(err, &statusErr) {
		return false // permanent: no such article, no point retrying
	}
	return true
}

// Post yEnc-encodes the article body and POSTs it, retrying transient
// failures and discarding (never returning to the pool) any connection
// that errors with a socket-level failure (spec §4.5).
func (p *NNTPPool) Post(ctx context.Context, article Article) error {
	encoded, err := yencEncode(article.Subject, article.Body)
	if err != nil {
		return uerr.Wrap(uerr.KindPermanentPost, "nntppool.Post", article.MessageID, err)
	}

	err = backoffPolicy(ctx, func() error {
		return p.pool.Post(ctx, nntppoolv4.Article{
			Subject:    article.Subject,
			MessageID:  article.MessageID,
			From:       article.From,
			Newsgroups: article.Newsgroups,
			Body:       encoded,
		})
	})
	if err != nil {
		return uerr.Wrap(uerr.KindPermanentPost, "nntppool.Post", article.MessageID, err)
	}
	return nil
}

// Fetch retrieves and yEnc-decodes an article by message id.
func (p *NNTPPool) Fetch(ctx context.Context, messageID string) ([]byte, error) {
	var encoded []byte
	err := backoffPolicy(ctx, func() error {
		body, err := p.pool.Article(ctx, messageID)
		if err != nil {
			return err
		}
		encoded = body
		return nil
	})
	if err != nil {
		return nil, uerr.Wrap(uerr.KindTransient, "nntppool.Fetch", messageID, err)
	}
	return yencDecode(encoded)
}

// FetchBySubject falls back to a scan of the group's overview from since
// to now, filtered by Subject, when ARTICLE by message-id 430s (spec
// §4.5). The window is whatever since the caller passes; no 24h limit is
// applied here.
func (p *NNTPPool) FetchBySubject(ctx context.Context, subject string, since time.Time) ([]byte, string, error) {
	var encoded []byte
	var foundMessageID string
	err := backoffPolicy(ctx, func() error {
		overview, err := p.pool.Overview(ctx, p.cfg.Group, since, time.Now())
		if err != nil {
			return err
		}
		for _, item := range overview {
			if item.Subject != subject {
				continue
			}
			body, err := p.pool.Article(ctx, item.MessageID)
			if err != nil {
				return err
			}
			encoded = body
			foundMessageID = item.MessageID
			return nil
		}
		return uerr.New(uerr.KindUnrecoverable, "nntppool.FetchBySubject", subject)
	})
	if err != nil {
		return nil, "", uerr.Wrap(uerr.KindUnrecoverable, "nntppool.FetchBySubject", subject, err)
	}
	plain, err := yencDecode(encoded)
	if err != nil {
		return nil, "", err
	}
	return plain, foundMessageID, nil
}

// Stat is a cheap existence probe before retrieval (spec §4.5).
func (p *NNTPPool) Stat(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := backoffPolicy(ctx, func() error {
		ok, err := p.pool.Stat(ctx, messageID)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		return false, uerr.Wrap(uerr.KindTransient, "nntppool.Stat", messageID, err)
	}
	return exists, nil
}

func yencEncode(subject string, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := rapidyenc.NewEncoder(&buf)
	if _, err := enc.Write(body); err != nil {
		return nil, fmt.Errorf("nntppool: yenc encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("nntppool: yenc encode close: %w", err)
	}
	return buf.Bytes(), nil
}

func yencDecode(body []byte) ([]byte, error) {
	dec := rapidyenc.NewDecoder(bytes.NewReader(body))
	plain, err := io.ReadAll(dec)
	if err != nil {
		return nil, uerr.Wrap(uerr.KindIntegrity, "nntppool.yencDecode", "", err)
	}
	return plain, nil
}

// errorsAs is a tiny indirection so the one place that needs to type-assert
// against a pool-library error type stays easy to find.
func errorsAs(err error, target *nntppoolv4.ArticleNotFoundError) bool {
	for err != nil {
		if v, ok := err.(nntppoolv4.ArticleNotFoundError); ok {
			*target = v
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
