package redis

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/netscout/internal/db"
)

const scoreField = "__vector_score"

// SearchKNN runs an FT.SEARCH KNN query, optionally pre-filtered by TAG
// equality. Entry scores are cosine similarity in [0,1].
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	switch {
	case q.IndexName == "":
		return nil, errors.New("knn: index name is required")
	case len(q.Vector) == 0:
		return nil, errors.New("knn: vector is required")
	case q.K <= 0:
		return nil, fmt.Errorf("knn: k must be positive, got %d", q.K)
	}

	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(knnArgs(q)...).Build()).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: q.IndexName, Err: err}
	}
	return parseKNNReply(raw)
}

func knnArgs(q *db.KNNQuery) []string {
	field := q.VectorField
	if field == "" {
		field = "vector"
	}
	query := fmt.Sprintf("*=>[KNN %d @%s $BLOB]", q.K, field)
	if filter := tagFilter(q.Tags); filter != "" {
		query = "(" + filter + ")" + query[1:]
	}

	args := []string{q.IndexName, query}
	if n := len(q.ReturnFields); n > 0 {
		args = append(args, "RETURN", strconv.Itoa(n+1))
		args = append(args, q.ReturnFields...)
		args = append(args, scoreField)
	}
	return append(args,
		"SORTBY", scoreField,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", encodeVector(q.Vector),
		"DIALECT", "2",
	)
}

// parseKNNReply reads [total, key1, [f, v, ...], key2, [...], ...].
// Malformed entries are skipped rather than failing the whole query.
func parseKNNReply(raw []rueidis.RedisMessage) (*db.SearchResult, error) {
	if len(raw) == 0 {
		return &db.SearchResult{}, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("knn reply total: %w", err)
	}

	res := &db.SearchResult{Total: int(total), Entries: make([]db.SearchEntry, 0, (len(raw)-1)/2)}
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		pairs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		fields := fieldMap(pairs)
		entry := db.SearchEntry{Key: key, Fields: fields}
		if d, err := strconv.ParseFloat(fields[scoreField], 64); err == nil {
			entry.Score = min(1, max(0, 1-d/2))
		}
		delete(fields, scoreField)
		res.Entries = append(res.Entries, entry)
	}
	return res, nil
}

func fieldMap(pairs []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for j := 0; j+1 < len(pairs); j += 2 {
		name, err1 := pairs[j].ToString()
		value, err2 := pairs[j+1].ToString()
		if err1 == nil && err2 == nil {
			m[name] = value
		}
	}
	return m
}

// tagFilter renders exact TAG matches; adjacent terms are an implicit AND.
func tagFilter(tags []db.TagFilter) string {
	var b strings.Builder
	for _, t := range tags {
		if t.Field == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("@" + t.Field + ":{" + escapeTag(t.Value) + "}")
	}
	return b.String()
}

// escapeTag backslash-escapes every rune the query parser treats as syntax.
func escapeTag(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func encodeVector(v []float32) string {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return string(buf)
}
