package mongodb

import (
	"bytes"
	"context"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mailkeeper/agent/pkg/apperr"
)

// BlobStore implements out.BlobStore over MongoDB GridFS (§4.C). The
// teacher has no object-storage client in its dependency surface, so this
// reuses the already-wired mongo-driver rather than inventing a new one
// (recorded as an Open Question resolution in DESIGN.md).
type BlobStore struct {
	bucket *gridfs.Bucket
}

func NewBlobStore(db *mongo.Database) (*BlobStore, error) {
	bucket, err := gridfs.NewBucket(db, options.GridFSBucket().SetName("classifier_artifacts"))
	if err != nil {
		return nil, apperr.DatabaseError("open gridfs bucket", err)
	}
	return &BlobStore{bucket: bucket}, nil
}

// GetBytes reads the named blob. A prior revision at the same path is
// deleted and replaced wholesale by PutBytes, so at most one file exists
// per path at any time.
func (b *BlobStore) GetBytes(ctx context.Context, path string) ([]byte, error) {
	var buf bytes.Buffer
	_, err := b.bucket.DownloadToStreamByNameContext(ctx, path, &buf)
	if err != nil {
		if err == gridfs.ErrFileNotFound {
			return nil, apperr.NotFound("blob " + path)
		}
		return nil, apperr.DatabaseError("GetBytes", err)
	}
	return buf.Bytes(), nil
}

// PutBytes replaces the blob at path: any existing revisions are deleted
// first so reads never race between an old and new copy of the same
// artifact.
func (b *BlobStore) PutBytes(ctx context.Context, path string, data []byte) error {
	if err := b.deleteExisting(ctx, path); err != nil {
		return err
	}
	uploadStream, err := b.bucket.OpenUploadStreamContext(ctx, path)
	if err != nil {
		return apperr.DatabaseError("open upload stream", err)
	}
	defer uploadStream.Close()

	if _, err := io.Copy(uploadStream, bytes.NewReader(data)); err != nil {
		return apperr.DatabaseError("PutBytes", err)
	}
	return nil
}

func (b *BlobStore) deleteExisting(ctx context.Context, path string) error {
	cur, err := b.bucket.FindContext(ctx, bson.M{"filename": path})
	if err != nil {
		return apperr.DatabaseError("find existing blob", err)
	}
	defer cur.Close(ctx)

	var ids []interface{}
	for cur.Next(ctx) {
		var file struct {
			ID interface{} `bson:"_id"`
		}
		if err := cur.Decode(&file); err != nil {
			return apperr.InternalWithError(err)
		}
		ids = append(ids, file.ID)
	}
	for _, id := range ids {
		if err := b.bucket.DeleteContext(ctx, id); err != nil {
			return apperr.DatabaseError("delete stale blob revision", err)
		}
	}
	return nil
}
