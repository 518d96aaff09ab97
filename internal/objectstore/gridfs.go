// Package objectstore keeps uploaded listing images in MongoDB GridFS. Each
// public bucket maps to a GridFS bucket of the same name and every object is
// a GridFS file whose filename is the object key.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrExists is returned when uploading to a key that is already taken.
	ErrExists = errors.New("object already exists")
	// ErrNotFound is returned when no object has the key.
	ErrNotFound = errors.New("object not found")
)

// GridFS stores objects in one MongoDB database.
type GridFS struct {
	DB *mongo.Database

	mu      sync.Mutex
	indexed map[string]bool
}

func NewGridFS(client *mongo.Client, dbName string) *GridFS {
	return &GridFS{DB: client.Database(dbName), indexed: map[string]bool{}}
}

func (g *GridFS) bucket(name string) (*gridfs.Bucket, error) {
	return gridfs.NewBucket(g.DB, options.GridFSBucket().SetName(name))
}

// ensureUniqueNames creates a unique index on the bucket's filenames, so two
// concurrent uploads of one key cannot both succeed.
func (g *GridFS) ensureUniqueNames(ctx context.Context, name string) error {
	g.mu.Lock()
	done := g.indexed[name]
	g.mu.Unlock()
	if done {
		return nil
	}
	_, err := g.DB.Collection(name+".files").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "filename", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("filename_unique"),
	})
	if err != nil {
		return fmt.Errorf("create filename index: %w", err)
	}
	g.mu.Lock()
	g.indexed[name] = true
	g.mu.Unlock()
	return nil
}

// Put writes r under key. Objects are immutable: an existing key yields
// ErrExists and the stored object is left untouched.
func (g *GridFS) Put(ctx context.Context, bucketName, key, contentType string, r io.Reader) error {
	if err := g.ensureUniqueNames(ctx, bucketName); err != nil {
		return err
	}
	n, err := g.DB.Collection(bucketName+".files").CountDocuments(ctx, bson.D{{Key: "filename", Value: key}})
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrExists
	}

	bucket, err := g.bucket(bucketName)
	if err != nil {
		return err
	}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	if _, err := bucket.UploadFromStream(key, r, opts); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return err
	}
	return nil
}

// Object is an open stored object.
type Object struct {
	io.ReadCloser
	ContentType string
	Size        int64
}

// Open streams the object stored under key.
func (g *GridFS) Open(_ context.Context, bucketName, key string) (*Object, error) {
	bucket, err := g.bucket(bucketName)
	if err != nil {
		return nil, err
	}
	stream, err := bucket.OpenDownloadStreamByName(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	file := stream.GetFile()
	return &Object{ReadCloser: stream, ContentType: contentTypeOf(file.Metadata), Size: file.Length}, nil
}

// contentTypeOf reads the content type recorded at upload time.
func contentTypeOf(meta bson.Raw) string {
	if len(meta) == 0 {
		return "application/octet-stream"
	}
	v, err := meta.LookupErr("contentType")
	if err != nil {
		return "application/octet-stream"
	}
	if s, ok := v.StringValueOK(); ok && s != "" {
		return s
	}
	return "application/octet-stream"
}
