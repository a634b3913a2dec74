package mongostore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"bakelite_bot/internal/models"
)

const (
	defaultDatabase   = "bakelite"
	defaultCollection = "applicants"
	defaultMaxRetry   = 3
)

// Config represents the MongoDB configuration.
type Config struct {
	URI        string
	Database   string
	Collection string
	MaxRetry   int
}

func (c *Config) setDefaults() error {
	if c.URI == "" {
		return errors.New("mongo uri is required")
	}
	if c.Database == "" {
		c.Database = defaultDatabase
	}
	if c.Collection == "" {
		c.Collection = defaultCollection
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	return nil
}

// Store keeps applicant records in a single collection keyed by user id.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *zap.Logger
	now    func() time.Time
}

// Connect dials MongoDB, pings it and makes sure the status index exists.
func Connect(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}
	opts := options.Client().ApplyURI(cfg.URI)

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < cfg.MaxRetry; i++ {
		cli, err = connect(ctx, opts)
		if err == nil || !shouldRetry(ctx, err) {
			break
		}
		log.Warn("mongo connect failed, retrying", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second / 2)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}

	s := &Store{
		client: cli,
		coll:   cli.Database(cfg.Database).Collection(cfg.Collection),
		log:    log,
		now:    time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func connect(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return cli, nil
}

// shouldRetry reports whether a connect error is worth another attempt.
// Authentication failures (codes 13 and 18) are not.
func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code != 13 && cmdErr.Code != 18
	}
	return true
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "status", Value: 1}, {Key: "registered_at", Value: 1}},
		Options: options.Index().SetName("status_registered_at"),
	})
	return errors.Wrap(err, "create status index")
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Upsert(ctx context.Context, userID int64, fields models.ApplicantFields) error {
	fields = fields.Normalized()
	update := bson.M{
		"$set": bson.M{
			"username": fields.Username,
			"region":   fields.Region,
			"nick":     fields.Nick,
			"skills":   fields.Skills,
			"details":  fields.Details,
			"status":   fields.Status,
		},
		"$setOnInsert": bson.M{
			"registered_at": s.now().UTC(),
		},
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	return errors.Wrapf(err, "upsert applicant %d", userID)
}

func (s *Store) FindByKey(ctx context.Context, userID int64) (*models.ApplicantRecord, error) {
	var rec models.ApplicantRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find applicant %d", userID)
	}
	return &rec, nil
}

func (s *Store) FindByStatus(ctx context.Context, status models.Status) ([]*models.ApplicantRecord, error) {
	return s.find(ctx, bson.M{"status": status})
}

func (s *Store) ListAll(ctx context.Context) ([]*models.ApplicantRecord, error) {
	return s.find(ctx, bson.M{})
}

func (s *Store) SetStatus(ctx context.Context, userID int64, status models.Status) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"status": status}})
	return errors.Wrapf(err, "set status of applicant %d", userID)
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]*models.ApplicantRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "registered_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "query applicants")
	}
	var out []*models.ApplicantRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Wrap(err, "decode applicants")
	}
	return out, nil
}
