package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"floorplan/api/internal/annotation"
	"floorplan/api/internal/calibration"
	"floorplan/api/internal/layer"
	"floorplan/api/internal/syncer"
	"floorplan/api/internal/util"
)

var _ syncer.Backend = (*RedisStore)(nil)

// RedisStore keeps each document in a handful of keys: one hash of marker
// JSON per page, an id to page index, a layer hash and one calibration list
// per page.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client), nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "floorplan:", now: time.Now}
}

func (s *RedisStore) documentKey(documentID string) string {
	return s.prefix + documentID + ":document"
}

func (s *RedisStore) pageKey(documentID string, page int) string {
	return s.prefix + documentID + ":markers:" + strconv.Itoa(page)
}

func (s *RedisStore) indexKey(documentID string) string {
	return s.prefix + documentID + ":marker-pages"
}

func (s *RedisStore) layersKey(documentID string) string {
	return s.prefix + documentID + ":layers"
}

func (s *RedisStore) calibrationKey(documentID string, page int) string {
	return s.prefix + documentID + ":calibration:" + strconv.Itoa(page)
}

func (s *RedisStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	raw, err := s.client.Get(ctx, s.documentKey(documentID)).Result()
	if errors.Is(err, redis.Nil) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func (s *RedisStore) SaveDocument(ctx context.Context, doc Document) (Document, error) {
	if doc.ID == "" {
		doc.ID = util.NewID("doc")
	}
	now := s.now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	raw, err := json.Marshal(doc)
	if err != nil {
		return Document{}, fmt.Errorf("encode document: %w", err)
	}
	if err := s.client.Set(ctx, s.documentKey(doc.ID), raw, 0).Err(); err != nil {
		return Document{}, fmt.Errorf("save document: %w", err)
	}
	return doc, nil
}

func (s *RedisStore) ListMarkers(ctx context.Context, documentID string, page int) ([]annotation.Marker, error) {
	values, err := s.client.HGetAll(ctx, s.pageKey(documentID, page)).Result()
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	markers := make([]annotation.Marker, 0, len(values))
	for _, raw := range values {
		var m annotation.Marker
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode marker: %w", err)
		}
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool {
		if !markers[i].CreatedAt.Equal(markers[j].CreatedAt) {
			return markers[i].CreatedAt.Before(markers[j].CreatedAt)
		}
		return markers[i].ID < markers[j].ID
	})
	return markers, nil
}

func (s *RedisStore) CreateMarker(ctx context.Context, documentID string, m annotation.Marker) (annotation.Marker, error) {
	if err := annotation.Validate(m); err != nil {
		return annotation.Marker{}, err
	}
	now := s.now().UTC()
	m.ID = util.NewID("mk")
	m.Version = 1
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if err := s.writeMarker(ctx, documentID, m, 0); err != nil {
		return annotation.Marker{}, fmt.Errorf("insert marker: %w", err)
	}
	return m, nil
}

func (s *RedisStore) loadMarker(ctx context.Context, documentID, id string) (annotation.Marker, error) {
	page, err := s.client.HGet(ctx, s.indexKey(documentID), id).Int()
	if errors.Is(err, redis.Nil) {
		return annotation.Marker{}, &annotation.NotFoundError{ID: id}
	}
	if err != nil {
		return annotation.Marker{}, fmt.Errorf("lookup marker page: %w", err)
	}
	raw, err := s.client.HGet(ctx, s.pageKey(documentID, page), id).Result()
	if errors.Is(err, redis.Nil) {
		return annotation.Marker{}, &annotation.NotFoundError{ID: id}
	}
	if err != nil {
		return annotation.Marker{}, fmt.Errorf("load marker: %w", err)
	}
	var m annotation.Marker
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return annotation.Marker{}, fmt.Errorf("decode marker: %w", err)
	}
	return m, nil
}

// writeMarker stores m, moving it off previousPage when its page changed.
func (s *RedisStore) writeMarker(ctx context.Context, documentID string, m annotation.Marker, previousPage int) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if previousPage != 0 && previousPage != m.PageNumber {
			pipe.HDel(ctx, s.pageKey(documentID, previousPage), m.ID)
		}
		pipe.HSet(ctx, s.pageKey(documentID, m.PageNumber), m.ID, raw)
		pipe.HSet(ctx, s.indexKey(documentID), m.ID, m.PageNumber)
		return nil
	})
	return err
}

func (s *RedisStore) UpdateMarker(ctx context.Context, documentID, id string, patch annotation.Patch) (annotation.Marker, error) {
	current, err := s.loadMarker(ctx, documentID, id)
	if err != nil {
		return annotation.Marker{}, err
	}
	next := patch.Apply(current)
	if err := annotation.Validate(next); err != nil {
		return annotation.Marker{}, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = s.now().UTC()
	if err := s.writeMarker(ctx, documentID, next, current.PageNumber); err != nil {
		return annotation.Marker{}, fmt.Errorf("update marker: %w", err)
	}
	return next, nil
}

func (s *RedisStore) DeleteMarker(ctx context.Context, documentID, id string) error {
	current, err := s.loadMarker(ctx, documentID, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, s.pageKey(documentID, current.PageNumber), id)
		pipe.HDel(ctx, s.indexKey(documentID), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

func (s *RedisStore) ListLayers(ctx context.Context, documentID string) ([]layer.Layer, error) {
	values, err := s.client.HGetAll(ctx, s.layersKey(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	layers := make([]layer.Layer, 0, len(values))
	for _, raw := range values {
		var l layer.Layer
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("decode layer: %w", err)
		}
		layers = append(layers, l)
	}
	sort.Slice(layers, func(i, j int) bool {
		if layers[i].OrderIndex != layers[j].OrderIndex {
			return layers[i].OrderIndex < layers[j].OrderIndex
		}
		return layers[i].ID < layers[j].ID
	})
	return layers, nil
}

func (s *RedisStore) CreateLayer(ctx context.Context, documentID string, l layer.Layer) (layer.Layer, error) {
	l.ID = util.NewID("ly")
	if err := s.putLayer(ctx, documentID, l); err != nil {
		return layer.Layer{}, fmt.Errorf("insert layer: %w", err)
	}
	return l, nil
}

func (s *RedisStore) UpdateLayer(ctx context.Context, documentID string, l layer.Layer) (layer.Layer, error) {
	exists, err := s.client.HExists(ctx, s.layersKey(documentID), l.ID).Result()
	if err != nil {
		return layer.Layer{}, fmt.Errorf("lookup layer: %w", err)
	}
	if !exists {
		return layer.Layer{}, layer.ErrNotFound
	}
	if err := s.putLayer(ctx, documentID, l); err != nil {
		return layer.Layer{}, fmt.Errorf("update layer: %w", err)
	}
	return l, nil
}

func (s *RedisStore) putLayer(ctx context.Context, documentID string, l layer.Layer) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, s.layersKey(documentID), l.ID, raw).Err()
}

func (s *RedisStore) DeleteLayer(ctx context.Context, documentID, id string) error {
	n, err := s.client.HDel(ctx, s.layersKey(documentID), id).Result()
	if err != nil {
		return fmt.Errorf("delete layer: %w", err)
	}
	if n == 0 {
		return layer.ErrNotFound
	}
	return nil
}

func (s *RedisStore) SaveCalibration(ctx context.Context, documentID string, r calibration.Record) (calibration.Record, error) {
	r.ID = util.NewID("cal")
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return calibration.Record{}, fmt.Errorf("encode calibration: %w", err)
	}
	if err := s.client.RPush(ctx, s.calibrationKey(documentID, r.PageNumber), raw).Err(); err != nil {
		return calibration.Record{}, fmt.Errorf("save calibration: %w", err)
	}
	return r, nil
}

func (s *RedisStore) ListCalibration(ctx context.Context, documentID string, page int) ([]calibration.Record, error) {
	values, err := s.client.LRange(ctx, s.calibrationKey(documentID, page), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list calibrations: %w", err)
	}
	records := make([]calibration.Record, 0, len(values))
	for _, raw := range values {
		var r calibration.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode calibration: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
