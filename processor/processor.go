package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/eudr-packhouse/parcel-ingester/common"
	"github.com/eudr-packhouse/parcel-ingester/pipeline"
	"github.com/eudr-packhouse/parcel-ingester/service"
	"github.com/eudr-packhouse/parcel-ingester/service/log"
	"github.com/google/uuid"
	"github.com/natefinch/atomic"
)

// Upload is the source of the vector file of a record. Exactly one of Reader or URL must be set.
type Upload struct {
	// Reader streams a file received by the service; Filename gives its extension
	Reader   io.Reader
	Filename string
	// URL to download the file from
	URL string
}

// Output of the processing of an upload
type Output struct {
	pipeline.Result
	// File is the storage key of the normalized file
	File string
	// URI of the normalized file
	URI string
}

// retry policy of the calls to the storage
const (
	storageRetries = 3
	storageDelay   = 2 * time.Second
)

// fetch copies the upload into dir and returns its local path
func fetch(ctx context.Context, upload Upload, dir, recordUUID string) (string, error) {
	switch {
	case upload.Reader != nil:
		ext := service.GetExt(upload.Filename)
		if !common.IsSupportedExt(ext) {
			return "", service.MakeFormatError(service.MsgUnsupportedExtension, fmt.Errorf("file %q", upload.Filename))
		}
		local := filepath.Join(dir, common.FileName(recordUUID, ext))
		if err := atomic.WriteFile(local, upload.Reader); err != nil {
			return "", service.MakeTemporary(fmt.Errorf("fetch.WriteFile: %w", err))
		}
		return local, nil

	case upload.URL != "":
		downloaded, err := service.DownloadURL(ctx, upload.URL, dir, "")
		if err != nil {
			return "", fmt.Errorf("fetch.%w", err)
		}
		ext := service.GetExt(downloaded)
		if !common.IsSupportedExt(ext) {
			os.Remove(downloaded)
			return "", service.MakeFormatError(service.MsgUnsupportedExtension, fmt.Errorf("file %q", filepath.Base(downloaded)))
		}
		local := filepath.Join(dir, common.FileName(recordUUID, ext))
		if err := os.Rename(downloaded, local); err != nil {
			return "", service.MakeTemporary(fmt.Errorf("fetch.Rename: %w", err))
		}
		return local, nil
	}
	return "", fmt.Errorf("fetch: empty upload")
}

func save(ctx context.Context, storageService service.Storage, key, localPath string) (string, error) {
	var uri string
	err := service.Retriable(ctx, func() error {
		var err error
		uri, err = storageService.Save(ctx, key, localPath)
		return err
	}, storageDelay, storageRetries)
	return uri, err
}

func deleteKey(ctx context.Context, storageService service.Storage, key string) {
	if err := storageService.Delete(ctx, key); err != nil && !errors.As(err, &service.ErrFileNotFound{}) {
		log.Logger(ctx).Sugar().Warnf("delete %s: %v", key, err)
	}
}

// ProcessFile imports the upload of the record in its own working directory, stores the raw upload,
// normalizes it and saves the normalized file under a new version of the file of the record.
// On error, nothing remains in the storage nor in the working directory.
func ProcessFile(ctx context.Context, storageService service.Storage, recordType common.RecordType, recordUUID string, upload Upload, workdir string, opts pipeline.Options) (Output, error) {
	ctx = log.With(ctx, "record", recordUUID)

	// Working dir, named after the version of the file
	version := uuid.New().String()
	workdir = filepath.Join(workdir, version)
	if err := os.MkdirAll(workdir, 0766); err != nil {
		return Output{}, service.MakeTemporary(fmt.Errorf("make directory %s: %w", workdir, err))
	}
	defer os.RemoveAll(workdir)

	log.Logger(ctx).Info("import upload")
	local, err := fetch(ctx, upload, workdir, recordUUID)
	if err != nil {
		return Output{}, fmt.Errorf("ProcessFile.%w", err)
	}

	// Keys written by this run, deleted unless they hold the normalized file
	written := service.StringSet{}
	cleanup := func() {
		for _, k := range written.Slice() {
			deleteKey(ctx, storageService, k)
		}
	}

	// Store the raw upload
	rawKey := common.FileKey(recordType, recordUUID, version, service.GetExt(local))
	written.Push(rawKey)
	if _, err := save(ctx, storageService, rawKey, local); err != nil {
		cleanup()
		return Output{}, fmt.Errorf("ProcessFile.%w", err)
	}

	log.Logger(ctx).Info("normalize upload")
	res, err := pipeline.Run(ctx, local, opts)
	if err != nil {
		cleanup()
		return Output{}, fmt.Errorf("ProcessFile.%w", err)
	}

	// Save the normalized file (a zip has been replaced by a GeoPackage)
	key := common.FileKey(recordType, recordUUID, version, service.GetExt(res.Path))
	log.Logger(ctx).Sugar().Infof("save normalized file '%s'", key)
	written.Push(key)
	uri, err := save(ctx, storageService, key, res.Path)
	if err != nil {
		cleanup()
		return Output{}, fmt.Errorf("ProcessFile.%w", err)
	}
	written.Pop(key)
	cleanup()
	return Output{Result: res, File: key, URI: uri}, nil
}
