package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/natefinch/atomic"
)

// ErrFileNotFound is an error returned by Import or Delete
type ErrFileNotFound struct {
	File string
}

func (e ErrFileNotFound) Error() string {
	return fmt.Sprintf("File not found: %s", e.File)
}

func isErrNotFound(err error) bool {
	var epath *os.PathError
	var nsk *s3types.NoSuchKey
	return errors.Is(err, gstorage.ErrObjectNotExist) ||
		errors.As(err, &nsk) ||
		(errors.As(err, &epath) && os.IsNotExist(epath))
}

// Storage is a service to store and retrieve the files of the records
type Storage interface {
	// Save persists the local file under the key and returns its uri
	Save(ctx context.Context, key, localPath string) (string, error)
	// Import copies the file stored under the key to localPath
	// Raise ErrFileNotFound
	Import(ctx context.Context, key, localPath string) error
	// Delete deletes the file stored under the key
	// Raise ErrFileNotFound
	Delete(ctx context.Context, key string) error
}

// StorageOption configures the remote strategies
type StorageOption func(*storageOptions)

type storageOptions struct {
	s3Region    string
	s3Endpoint  string
	s3KeyID     string
	s3SecretKey string
}

// WithS3Credentials uses static credentials instead of the default AWS chain
func WithS3Credentials(accessKeyID, secretAccessKey string) StorageOption {
	return func(o *storageOptions) {
		o.s3KeyID = accessKeyID
		o.s3SecretKey = secretAccessKey
	}
}

// WithS3Endpoint targets an S3-compatible endpoint (path-style addressing)
func WithS3Endpoint(endpoint string) StorageOption {
	return func(o *storageOptions) {
		o.s3Endpoint = endpoint
	}
}

// WithS3Region sets the region of the bucket
func WithS3Region(region string) StorageOption {
	return func(o *storageOptions) {
		o.s3Region = region
	}
}

// NewStorageStrategy creates the Storage given the uri of its root:
// gs://bucket/prefix, s3://bucket/prefix or a local directory
func NewStorageStrategy(ctx context.Context, storageURI string, opts ...StorageOption) (Storage, error) {
	var options storageOptions
	for _, o := range opts {
		o(&options)
	}
	u, err := url.Parse(storageURI)
	if err != nil {
		return nil, fmt.Errorf("NewStorageStrategy.ParseURI: %w", err)
	}
	prefix := strings.Trim(u.Path, "/")
	switch u.Scheme {
	case "gs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("NewStorageStrategy.NewClient: %w", err)
		}
		return &GCSStorage{client: client, bucket: u.Host, prefix: prefix}, nil
	case "s3":
		st, err := newS3Storage(ctx, u.Host, prefix, options)
		if err != nil {
			return nil, fmt.Errorf("NewStorageStrategy.%w", err)
		}
		return st, nil
	case "", "file":
		dir := storageURI
		if u.Scheme == "file" {
			dir = u.Path
		}
		if err := os.MkdirAll(dir, 0766); err != nil {
			return nil, fmt.Errorf("NewStorageStrategy.MkdirAll: %w", err)
		}
		return &LocalStorage{root: dir}, nil
	}
	return nil, fmt.Errorf("NewStorageStrategy: unsupported scheme %s", u.Scheme)
}

// LocalStorage implements Storage on the local filesystem
type LocalStorage struct {
	root string
}

func (ls *LocalStorage) getPath(key string) string {
	return filepath.Join(ls.root, filepath.FromSlash(key))
}

// copyFile copies src to dst, atomically
func copyFile(src, dst string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0766); err != nil {
		return err
	}
	return atomic.WriteFile(dst, f)
}

// Save implements Storage
func (ls *LocalStorage) Save(ctx context.Context, key, localPath string) (string, error) {
	dst := ls.getPath(key)
	if err := copyFile(localPath, dst); err != nil {
		return "", fmt.Errorf("Save to %s: %w", dst, err)
	}
	return dst, nil
}

// Import implements Storage
func (ls *LocalStorage) Import(ctx context.Context, key, localPath string) error {
	src := ls.getPath(key)
	if err := copyFile(src, localPath); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{src}
		}
		return fmt.Errorf("Import from %s: %w", src, err)
	}
	return nil
}

// Delete implements Storage
func (ls *LocalStorage) Delete(ctx context.Context, key string) error {
	file := ls.getPath(key)
	if err := os.Remove(file); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{file}
		}
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

// GCSStorage implements Storage on Google Cloud Storage
type GCSStorage struct {
	client *gstorage.Client
	bucket string
	prefix string
}

func (gs *GCSStorage) object(key string) *gstorage.ObjectHandle {
	return gs.client.Bucket(gs.bucket).Object(path.Join(gs.prefix, key))
}

// Save implements Storage
func (gs *GCSStorage) Save(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("Save.Open: %w", err)
	}
	defer f.Close()

	obj := gs.object(key)
	w := obj.NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return "", MakeTemporary(fmt.Errorf("Save.Copy to %s: %w", obj.ObjectName(), err))
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Save.Close %s: %w", obj.ObjectName(), err)
	}
	return fmt.Sprintf("gs://%s/%s", gs.bucket, obj.ObjectName()), nil
}

// Import implements Storage
func (gs *GCSStorage) Import(ctx context.Context, key, localPath string) error {
	obj := gs.object(key)
	r, err := obj.NewReader(ctx)
	if err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{obj.ObjectName()}
		}
		return fmt.Errorf("Import.NewReader %s: %w", obj.ObjectName(), err)
	}
	defer r.Close()
	if err := atomic.WriteFile(localPath, r); err != nil {
		return fmt.Errorf("Import.WriteFile from %s: %w", obj.ObjectName(), err)
	}
	return nil
}

// Delete implements Storage
func (gs *GCSStorage) Delete(ctx context.Context, key string) error {
	obj := gs.object(key)
	if err := obj.Delete(ctx); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{obj.ObjectName()}
		}
		return fmt.Errorf("Delete %s: %w", obj.ObjectName(), err)
	}
	return nil
}

// S3Storage implements Storage on Amazon S3 (or any S3-compatible storage)
type S3Storage struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	prefix     string
}

func newS3Storage(ctx context.Context, bucket, prefix string, opts storageOptions) (*S3Storage, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.s3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.s3Region))
	}
	if opts.s3KeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.s3KeyID, opts.s3SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("newS3Storage.LoadDefaultConfig: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.s3Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.s3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Storage{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		prefix:     prefix,
	}, nil
}

func (ss *S3Storage) key(key string) string {
	return path.Join(ss.prefix, key)
}

// Save implements Storage
func (ss *S3Storage) Save(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("Save.Open: %w", err)
	}
	defer f.Close()
	if _, err := ss.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(ss.key(key)),
		Body:   f,
	}); err != nil {
		return "", fmt.Errorf("Save.Upload to %s: %w", ss.key(key), err)
	}
	return fmt.Sprintf("s3://%s/%s", ss.bucket, ss.key(key)), nil
}

// Import implements Storage
func (ss *S3Storage) Import(ctx context.Context, key, localPath string) error {
	tmp := localPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("Import.Create: %w", err)
	}
	defer os.Remove(tmp)
	_, err = ss.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(ss.key(key)),
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{ss.key(key)}
		}
		return fmt.Errorf("Import.Download from %s: %w", ss.key(key), err)
	}
	if err := atomic.ReplaceFile(tmp, localPath); err != nil {
		return fmt.Errorf("Import.ReplaceFile: %w", err)
	}
	return nil
}

// Delete implements Storage. S3 does not report missing keys.
func (ss *S3Storage) Delete(ctx context.Context, key string) error {
	if _, err := ss.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ss.bucket),
		Key:    aws.String(ss.key(key)),
	}); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{ss.key(key)}
		}
		return fmt.Errorf("Delete %s: %w", ss.key(key), err)
	}
	return nil
}

// WithExt replaces the extension of the file
func WithExt(filePath string, ext string) string {
	filePath = strings.TrimSuffix(filePath, filepath.Ext(filePath))
	if ext != "" {
		return fmt.Sprintf("%s.%s", filePath, strings.TrimPrefix(ext, "."))
	}
	return filePath
}

// GetExt returns the extension of the file, without dot, lowercase
func GetExt(filePath string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filePath), "."))
}
