package service

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/cavaliercoder/grab"
	"github.com/eudr-packhouse/parcel-ingester/service/log"
)

// StringSet is a set of strings (all elements are unique)
type StringSet map[string]struct{}

// Push adds the string to the set if not already exists
func (ss StringSet) Push(s string) {
	ss[s] = struct{}{}
}

// Pop removes the string from the set
func (ss StringSet) Pop(s string) {
	delete(ss, s)
}

// Slice returns a slice from the set
func (ss StringSet) Slice() []string {
	sl := make([]string, 0, len(ss))
	for k := range ss {
		sl = append(sl, k)
	}
	return sl
}

// DownloadURL downloads the file at url into dir, retrying on temporary errors.
// The name of the file is given by the server (or the url), unless filename is not empty.
// It returns the path of the downloaded file.
func DownloadURL(ctx context.Context, url, dir, filename string) (string, error) {
	dst := dir
	if filename != "" {
		dst = filepath.Join(dir, filename)
	}
	var path string
	err := Retriable(ctx, func() error {
		req, err := grab.NewRequest(dst, url)
		if err != nil {
			return MakeFatal(fmt.Errorf("NewRequest: %w", err))
		}
		req = req.WithContext(ctx)
		resp := grab.NewClient().Do(req)
		if err := resp.Err(); err != nil {
			err = fmt.Errorf("download[%s]: %w", url, err)
			if resp.HTTPResponse == nil {
				return MakeTemporary(err)
			}
			switch resp.HTTPResponse.StatusCode {
			case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
				http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return MakeTemporary(err)
			default:
				return MakeFatal(err)
			}
		}
		path = resp.Filename
		return nil
	}, 2*time.Second, 3)
	if err != nil {
		return "", fmt.Errorf("DownloadURL.%w", err)
	}
	log.Logger(ctx).Sugar().Debugf("%s downloaded to %s", url, path)
	return path, nil
}
