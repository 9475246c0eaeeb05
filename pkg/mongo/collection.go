// Package mongo is a Delegate that stores each table as a MongoDB
// collection. The primary key is kept in _id; generated keys come from a
// counters collection so they stay integers.
package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/internal/metrics"
	"github.com/turbolytics/activerecord/pkg/query"
)

const (
	backend            = "mongodb"
	defaultPrimaryKey  = "id"
	countersCollection = "activerecord_counters"
)

type Store struct {
	client   *mongo.Client
	database string
	logger   *zap.Logger

	mu          sync.RWMutex
	primaryKeys map[string]string
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithPrimaryKey names the field mapped to _id for table. Tables default
// to "id".
func WithPrimaryKey(table, field string) Option {
	return func(s *Store) {
		s.primaryKeys[table] = field
	}
}

// Connect opens a client for uri and uses database for every table.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return New(client, database, opts...), nil
}

// New wraps an open client. Tables learn their primary key from
// WithPrimaryKey, from record.NewModel through BindPrimaryKey, or from the
// first Insert; until then the key is "id".
func New(client *mongo.Client, database string, opts ...Option) *Store {
	s := &Store{
		client:      client,
		database:    database,
		logger:      zap.NewNop(),
		primaryKeys: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Name() string {
	return backend
}

func (s *Store) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// BindPrimaryKey maps field of table to _id.
func (s *Store) BindPrimaryKey(table, field string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primaryKeys[table] = field
}

func (s *Store) collection(table string) *mongo.Collection {
	return s.client.Database(s.database).Collection(table)
}

func (s *Store) primaryKey(table string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pk, ok := s.primaryKeys[table]; ok {
		return pk
	}
	return defaultPrimaryKey
}

// nextID increments the table's counter and returns the new value.
func (s *Store) nextID(ctx context.Context, table string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.client.Database(s.database).Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": table},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("mongo: next id for %s: %w", table, err)
	}
	return counter.Seq, nil
}

func (s *Store) Insert(ctx context.Context, table string, values map[string]any, primaryKey string) (id int64, err error) {
	defer metrics.Observe(backend, "insert", time.Now(), &err)

	s.mu.Lock()
	s.primaryKeys[table] = primaryKey
	s.mu.Unlock()

	id, err = s.nextID(ctx, table)
	if err != nil {
		return 0, err
	}
	doc := bson.M{"_id": id}
	for k, v := range values {
		if k != primaryKey {
			doc[k] = v
		}
	}
	if _, err := s.collection(table).InsertOne(ctx, doc); err != nil {
		return 0, err
	}
	s.logger.Debug("insert", zap.String("collection", table), zap.Int64("id", id))
	return id, nil
}

func (s *Store) Update(ctx context.Context, table string, values map[string]any, where []query.Filter) (n int64, err error) {
	defer metrics.Observe(backend, "update", time.Now(), &err)

	if len(where) == 0 {
		return 0, fmt.Errorf("mongo: refusing unfiltered update of %s", table)
	}
	pk := s.primaryKey(table)
	filter, err := Filter(where, pk)
	if err != nil {
		return 0, err
	}
	set := bson.M{}
	for k, v := range values {
		if k != pk {
			set[k] = v
		}
	}
	if len(set) == 0 {
		return 0, fmt.Errorf("mongo: nothing to update in %s", table)
	}
	res, err := s.collection(table).UpdateMany(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, err
	}
	metrics.Rows(backend, "update", res.MatchedCount)
	return res.MatchedCount, nil
}

func (s *Store) Delete(ctx context.Context, table string, where []query.Filter) (n int64, err error) {
	defer metrics.Observe(backend, "delete", time.Now(), &err)

	if len(where) == 0 {
		return 0, fmt.Errorf("mongo: refusing unfiltered delete from %s", table)
	}
	filter, err := Filter(where, s.primaryKey(table))
	if err != nil {
		return 0, err
	}
	res, err := s.collection(table).DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	metrics.Rows(backend, "delete", res.DeletedCount)
	return res.DeletedCount, nil
}

func (s *Store) Query(ctx context.Context, sel *query.Select) (out []map[string]any, err error) {
	defer metrics.Observe(backend, "select", time.Now(), &err)

	if err := sel.Validate(); err != nil {
		return nil, err
	}
	pk := s.primaryKey(sel.Table)
	filter, err := Filter(sel.Where, pk)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if len(sel.Columns) > 0 {
		projection := bson.M{}
		for _, c := range sel.Columns {
			projection[field(c, pk)] = 1
		}
		opts.SetProjection(projection)
	}
	sort := bson.D{}
	for _, o := range sel.Order {
		dir := 1
		if o.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: field(o.Field, pk), Value: dir})
	}
	if len(sort) == 0 {
		sort = bson.D{{Key: "_id", Value: 1}}
	}
	opts.SetSort(sort)
	if sel.Limit > 0 {
		opts.SetLimit(int64(sel.Limit))
	}
	if sel.Offset > 0 {
		opts.SetSkip(int64(sel.Offset))
	}

	cur, err := s.collection(sel.Table).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out = make([]map[string]any, len(docs))
	for i, doc := range docs {
		out[i] = row(doc, pk)
	}
	metrics.Rows(backend, "select", int64(len(out)))
	return out, nil
}

func (s *Store) Count(ctx context.Context, sel *query.Select) (n int64, err error) {
	defer metrics.Observe(backend, "count", time.Now(), &err)

	if err := sel.Validate(); err != nil {
		return 0, err
	}
	filter, err := Filter(sel.Where, s.primaryKey(sel.Table))
	if err != nil {
		return 0, err
	}
	opts := options.Count()
	if sel.Limit > 0 {
		opts.SetLimit(int64(sel.Limit))
	}
	if sel.Offset > 0 {
		opts.SetSkip(int64(sel.Offset))
	}
	return s.collection(sel.Table).CountDocuments(ctx, filter, opts)
}

func field(name, pk string) string {
	if name == pk {
		return "_id"
	}
	return name
}

// row maps a document back to column names.
func row(doc bson.M, pk string) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			k = pk
		}
		switch x := v.(type) {
		case primitive.DateTime:
			v = x.Time().UTC()
		case primitive.ObjectID:
			v = x.Hex()
		case int32:
			v = int64(x)
		}
		out[k] = v
	}
	return out
}

// Filter translates structured filters into a query document. pk is the
// field stored as _id.
func Filter(where []query.Filter, pk string) (bson.M, error) {
	if err := query.ValidateFilters(where); err != nil {
		return nil, err
	}
	if len(where) == 0 {
		return bson.M{}, nil
	}
	conds := make(bson.A, 0, len(where))
	for _, f := range where {
		key := field(f.Field, pk)
		var cond any
		switch f.Op {
		case query.OpEq:
			cond = bson.M{"$eq": f.Value}
		case query.OpNotEq:
			// SQL semantics: NULL is never unequal
			cond = bson.M{"$nin": bson.A{f.Value, nil}}
		case query.OpLt:
			cond = bson.M{"$lt": f.Value}
		case query.OpLte:
			cond = bson.M{"$lte": f.Value}
		case query.OpGt:
			cond = bson.M{"$gt": f.Value}
		case query.OpGte:
			cond = bson.M{"$gte": f.Value}
		case query.OpLike:
			cond = bson.M{"$regex": query.LikeRegexp(f.Value.(string)), "$options": "is"}
		case query.OpIn:
			cond = bson.M{"$in": f.Value}
		case query.OpIsNull:
			cond = nil
		case query.OpIsNotNull:
			cond = bson.M{"$ne": nil}
		default:
			return nil, fmt.Errorf("mongo: unsupported operator %q", f.Op)
		}
		conds = append(conds, bson.M{key: cond})
	}
	if len(conds) == 1 {
		return conds[0].(bson.M), nil
	}
	return bson.M{"$and": conds}, nil
}
