package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rtl-ml/models"
	"rtl-ml/radio"
	"rtl-ml/utils"
)

const (
	detectionsCollection  = "detections"
	validationsCollection = "validations"
)

// MongoClient stores detections and validation reports as documents.
type MongoClient struct {
	client   *mongo.Client
	database *mongo.Database
}

func NewMongoClient(ctx context.Context, uri, database string) (*MongoClient, error) {
	if database == "" {
		database = "rtl_ml"
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}
	return &MongoClient{client: client, database: client.Database(database)}, nil
}

func (c *MongoClient) Name() string {
	return "mongo"
}

func (c *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.client.Disconnect(ctx)
}

// Save inserts a detection document. The validation record is stored in its
// flattened form.
func (c *MongoClient) Save(ctx context.Context, detection models.Detection) error {
	if detection.ID == "" {
		detection.ID = utils.NewRecordID()
	}
	if detection.Timestamp.IsZero() {
		detection.Timestamp = time.Now()
	}

	doc, err := detectionDocument(detection)
	if err != nil {
		return err
	}
	if _, err := c.database.Collection(detectionsCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("error storing detection: %s", err)
	}
	return nil
}

// List returns all detections, newest first.
func (c *MongoClient) List(ctx context.Context) ([]models.Detection, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	cursor, err := c.database.Collection(detectionsCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying detections: %s", err)
	}
	defer cursor.Close(ctx)

	detections := []models.Detection{}
	if err := cursor.All(ctx, &detections); err != nil {
		return nil, fmt.Errorf("error decoding detections: %s", err)
	}
	return detections, nil
}

// SaveReport upserts one document per label.
func (c *MongoClient) SaveReport(ctx context.Context, report radio.ValidationReport) error {
	collection := c.database.Collection(validationsCollection)
	now := time.Now()
	for _, label := range report.Labels() {
		record := report[label]
		doc := bson.M{"label": label, "updated": now, "passed": record.Passed()}
		for key, value := range record.Fields() {
			doc[key] = value
		}
		_, err := collection.ReplaceOne(ctx,
			bson.M{"_id": label},
			doc,
			options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("error storing validation for %s: %s", label, err)
		}
	}
	return nil
}

func detectionDocument(detection models.Detection) (bson.M, error) {
	data, err := bson.Marshal(detection)
	if err != nil {
		return nil, fmt.Errorf("error marshaling detection: %s", err)
	}
	var doc bson.M
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error unmarshaling detection: %s", err)
	}
	if detection.Validation != nil {
		doc["validation"] = bson.M(detection.Validation.Fields())
	}
	return doc, nil
}
