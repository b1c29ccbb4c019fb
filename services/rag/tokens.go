package rag

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// bpeFetchTimeout bounds the one-time download of the BPE rank file
const bpeFetchTimeout = 10 * time.Second

// TokenCounter estimates how many model tokens a text occupies.
type TokenCounter interface {
	Count(text string) int
}

// EstimateCounter approximates one token per four characters.
type EstimateCounter struct{}

// Count returns a rough token count
func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// TiktokenCounter counts tokens with the model's BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// Count returns the exact number of tokens text encodes to. Special token
// markers in text are encoded as ordinary text.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

var setLoader sync.Once

// NewTokenCounter returns a tiktoken encoder for model, falling back to
// cl100k_base for unknown models. The BPE ranks are read from
// TIKTOKEN_CACHE_DIR when cached there, otherwise downloaded once with a
// 10 second timeout. When neither works the estimator is used instead.
func NewTokenCounter(model string, logger *zap.Logger) TokenCounter {
	setLoader.Do(func() {
		tiktoken.SetBpeLoader(newBPELoader(&http.Client{Timeout: bpeFetchTimeout}, cacheDir()))
	})

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	}
	if err != nil {
		logger.Warn("tiktoken unavailable, falling back to estimated token counts",
			zap.String("model", model),
			zap.Error(err))
		return EstimateCounter{}
	}
	return &TiktokenCounter{enc: enc}
}

func cacheDir() string {
	if dir := strings.TrimSpace(os.Getenv("TIKTOKEN_CACHE_DIR")); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "data-gym-cache")
}

// bpeLoader loads BPE rank files for tiktoken. Downloads go through client
// and are cached under dir with the same keys tiktoken uses.
type bpeLoader struct {
	client *http.Client
	dir    string
}

func newBPELoader(client *http.Client, dir string) *bpeLoader {
	return &bpeLoader{client: client, dir: dir}
}

// LoadTiktokenBpe implements tiktoken.BpeLoader
func (l *bpeLoader) LoadTiktokenBpe(location string) (map[string]int, error) {
	data, err := l.read(location)
	if err != nil {
		return nil, err
	}
	return parseBPE(data)
}

func (l *bpeLoader) read(location string) ([]byte, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return os.ReadFile(location)
	}

	cachePath := filepath.Join(l.dir, fmt.Sprintf("%x", sha1.Sum([]byte(location))))
	if data, err := os.ReadFile(cachePath); err == nil {
		return data, nil
	}

	resp, err := l.client.Get(location)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch BPE ranks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch BPE ranks: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read BPE ranks: %w", err)
	}

	// a failed cache write only costs a download on the next start
	if err := os.MkdirAll(l.dir, 0o755); err == nil {
		tmp := cachePath + ".tmp"
		if os.WriteFile(tmp, data, 0o644) == nil {
			_ = os.Rename(tmp, cachePath)
		}
	}
	return data, nil
}

// parseBPE reads "<base64 token> <rank>" lines
func parseBPE(data []byte) (map[string]int, error) {
	ranks := make(map[string]int)
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		token, rank, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("malformed BPE line %q", line)
		}
		decoded, err := base64.StdEncoding.DecodeString(token)
		if err != nil {
			return nil, fmt.Errorf("malformed BPE token %q: %w", token, err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(rank))
		if err != nil {
			return nil, fmt.Errorf("malformed BPE rank %q: %w", rank, err)
		}
		ranks[string(decoded)] = n
	}
	return ranks, nil
}
