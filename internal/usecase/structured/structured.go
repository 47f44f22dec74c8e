// Package structured turns free-text model output into validated Go values.
// Every model response is decoded into an explicit schema and checked before
// use; shape mismatches are retried and finally reported as ErrMalformedResponse.
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/netscout/internal/domain"
	"github.com/kailas-cloud/netscout/internal/logger"
)

// DefaultAttempts bounds retries on malformed output.
const DefaultAttempts = 3

// Complete asks the model for JSON, decodes it into T and runs validate.
// Provider errors are returned immediately; malformed output is retried up to
// attempts times with the same request.
func Complete[T any](
	ctx context.Context, c domain.Completer, req domain.CompletionRequest,
	attempts int, validate func(*T) error,
) (T, error) {
	var zero T
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	req.JSON = true
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := c.Complete(ctx, req)
		if err != nil {
			return zero, err //nolint:wrapcheck // provider errors already carry the operation
		}

		var out T
		if err := Decode(res.Text, &out); err != nil {
			lastErr = err
		} else if validate != nil {
			lastErr = validate(&out)
		} else {
			lastErr = nil
		}
		if lastErr == nil {
			return out, nil
		}

		log.Warn("model response rejected",
			zap.String("operation", req.Operation),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", req.Operation, ctx.Err())
		}
	}
	return zero, fmt.Errorf("%s after %d attempts: %w: %w", req.Operation, attempts, domain.ErrMalformedResponse, lastErr)
}

// Decode extracts the JSON object from text (tolerating code fences, leading
// prose and unquoted keys) and unmarshals it into v.
func Decode(text string, v any) error {
	body := Extract(text)
	if body == "" {
		return errors.New("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		repaired := RepairJSON(body)
		if repaired == body {
			return fmt.Errorf("decode response: %w", err)
		}
		if err2 := json.Unmarshal([]byte(repaired), v); err2 != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Extract strips markdown fences and returns the outermost {...} span.
func Extract(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// RepairJSON fixes keys that lost their opening quote, e.g. `, type":` -> `, "type":`,
// and drops trailing commas before a closing bracket.
func RepairJSON(s string) string {
	src := []rune(s)
	out := make([]rune, 0, len(src)+16)
	inString := false

	for i := 0; i < len(src); i++ {
		ch := src[i]
		if inString {
			out = append(out, ch)
			if ch == '\\' && i+1 < len(src) {
				i++
				out = append(out, src[i])
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
			out = append(out, ch)
		case ',':
			j := skipSpace(src, i+1)
			if j < len(src) && (src[j] == '}' || src[j] == ']') {
				continue
			}
			out = append(out, ch)
			out, i = quoteKey(src, out, i+1)
		case '{':
			out = append(out, ch)
			out, i = quoteKey(src, out, i+1)
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}

// quoteKey copies whitespace after { or , and, when a bare word is followed
// by `":`, inserts the missing opening quote and copies the key with its
// closing quote. It returns the index of the last consumed rune.
func quoteKey(src, out []rune, i int) ([]rune, int) {
	for i < len(src) && isSpace(src[i]) {
		out = append(out, src[i])
		i++
	}
	j := i
	for j < len(src) && (isLetter(src[j]) || src[j] == '_') {
		j++
	}
	if j > i && j+1 < len(src) && src[j] == '"' && src[j+1] == ':' {
		out = append(out, '"')
		out = append(out, src[i:j]...)
		out = append(out, '"')
		return out, j
	}
	return out, i - 1
}

func skipSpace(src []rune, i int) int {
	for i < len(src) && isSpace(src[i]) {
		i++
	}
	return i
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
