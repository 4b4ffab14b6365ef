package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/homewatt/homewatt/pkg/log"
	"github.com/homewatt/homewatt/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreProvider implements the Database interface using Google Cloud Firestore.
// Readings and devices are stored as JSON blobs under a single home document.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
	home      string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")
	home := lflag.String("firestore-home", "default", "Home document that readings and devices are stored under")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database
		f.home = *home

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	if f.home == "" {
		return fmt.Errorf("home cannot be empty")
	}
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) collection(name string) *firestore.CollectionRef {
	return f.client.Collection("homes").Doc(f.home).Collection(name)
}

// readingDocID sorts lexicographically by time. The device suffix keeps
// same-second readings of different devices apart.
func readingDocID(r types.Reading) string {
	return r.Timestamp.UTC().Format(time.RFC3339) + "_" + r.DeviceID
}

func decodeJSONDoc(ctx context.Context, doc *firestore.DocumentSnapshot, v any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("docID", doc.Ref.ID))
		return fmt.Errorf("document %s 'json' field is not string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return fmt.Errorf("failed to unmarshal document (id=%s): %w", doc.Ref.ID, err)
	}
	return nil
}

// MaxTransactionWrites is the most readings Firestore accepts in one
// InsertReadings call.
const MaxTransactionWrites = 500

// InsertReadings writes every reading of a tick in a single transaction, so a
// failed tick leaves nothing behind.
func (f *FirestoreProvider) InsertReadings(ctx context.Context, readings []types.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	if len(readings) > MaxTransactionWrites {
		return fmt.Errorf("cannot insert %d readings at once, firestore allows %d writes per transaction", len(readings), MaxTransactionWrites)
	}
	docs := make([]map[string]interface{}, len(readings))
	for i, r := range readings {
		if r.DeviceID == "" {
			return fmt.Errorf("reading missing device id")
		}
		jsonBytes, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal reading: %w", err)
		}
		docs[i] = map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": r.Timestamp,
			"device_id": r.DeviceID,
		}
	}

	coll := f.collection("readings")
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for i, r := range readings {
			if err := tx.Set(coll.Doc(readingDocID(r)), docs[i]); err != nil {
				return fmt.Errorf("failed to set reading (device=%s): %w", r.DeviceID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert readings: %w", err)
	}
	return nil
}

func (f *FirestoreProvider) readingsFromIter(ctx context.Context, iter *firestore.DocumentIterator, deviceID string) ([]types.Reading, error) {
	defer iter.Stop()
	var readings []types.Reading
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating readings: %w", err)
		}
		var r types.Reading
		if err := decodeJSONDoc(ctx, doc, &r); err != nil {
			return nil, err
		}
		if deviceID != "" && r.DeviceID != deviceID {
			continue
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// GetReadings retrieves readings within [start, end).
// Uses document ID range queries so no composite index is needed; the
// device filter is applied while iterating.
func (f *FirestoreProvider) GetReadings(ctx context.Context, deviceID string, start, end time.Time) ([]types.Reading, error) {
	startDocID := start.UTC().Format(time.RFC3339)
	endDocID := end.UTC().Format(time.RFC3339)

	coll := f.collection("readings")
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(startDocID)).
		Where(firestore.DocumentID, "<", coll.Doc(endDocID)).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	return f.readingsFromIter(ctx, iter, deviceID)
}

// GetLatestReadings retrieves the newest reading of each registered device.
// This requires a composite index on device_id and timestamp.
func (f *FirestoreProvider) GetLatestReadings(ctx context.Context) ([]types.Reading, error) {
	devices, err := f.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	coll := f.collection("readings")
	var latest []types.Reading
	for _, d := range devices {
		iter := coll.
			Where("device_id", "==", d.ID).
			OrderBy("timestamp", firestore.Desc).
			Limit(1).
			Documents(ctx)
		rs, err := f.readingsFromIter(ctx, iter, "")
		if err != nil {
			return nil, fmt.Errorf("failed to get latest reading for %s: %w", d.ID, err)
		}
		latest = append(latest, rs...)
	}
	sort.Slice(latest, func(i, j int) bool { return latest[i].DeviceID < latest[j].DeviceID })
	return latest, nil
}

// GetLatestReadingTime retrieves the timestamp of the last stored reading.
func (f *FirestoreProvider) GetLatestReadingTime(ctx context.Context) (time.Time, error) {
	// firestore automatically creates indexes for top-level fields
	iter := f.collection("readings").
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest reading doc: %w", err)
	}
	ts, err := doc.DataAt("timestamp")
	if err != nil {
		return time.Time{}, fmt.Errorf("reading doc %s missing timestamp: %w", doc.Ref.ID, err)
	}
	t, ok := ts.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("reading doc %s timestamp is not a time", doc.Ref.ID)
	}
	return t.UTC(), nil
}

// DeleteReadingsBefore removes readings older than cutoff.
func (f *FirestoreProvider) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	coll := f.collection("readings")
	iter := coll.
		Where(firestore.DocumentID, "<", coll.Doc(cutoff.UTC().Format(time.RFC3339))).
		Documents(ctx)
	defer iter.Stop()

	bw := f.client.BulkWriter(ctx)
	var jobs []*firestore.BulkWriterJob
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("error iterating old readings: %w", err)
		}
		job, err := bw.Delete(doc.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("failed to queue delete of %s: %w", doc.Ref.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var deleted int
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return deleted, fmt.Errorf("failed to delete reading: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

// UpsertDevice adds or updates a device in the "devices" collection.
func (f *FirestoreProvider) UpsertDevice(ctx context.Context, d types.Device) error {
	if d.ID == "" {
		return fmt.Errorf("device id cannot be empty")
	}
	jsonBytes, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal device %s: %w", d.ID, err)
	}
	_, err = f.collection("devices").Doc(d.ID).Set(ctx, map[string]interface{}{
		"json": string(jsonBytes),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", d.ID, err)
	}
	return nil
}

// GetDevice retrieves a device from the "devices" collection.
func (f *FirestoreProvider) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	doc, err := f.collection("devices").Doc(deviceID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return types.Device{}, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	var d types.Device
	if err := decodeJSONDoc(ctx, doc, &d); err != nil {
		return types.Device{}, err
	}
	return d, nil
}

// ListDevices retrieves all devices from the "devices" collection.
func (f *FirestoreProvider) ListDevices(ctx context.Context) ([]types.Device, error) {
	iter := f.collection("devices").OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var devices []types.Device
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating devices: %w", err)
		}
		var d types.Device
		if err := decodeJSONDoc(ctx, doc, &d); err != nil {
			// Skip malformed documents
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}
