/*
Copyright © 2025 the GridPost authors.
This file is part of GridPost.

GridPost is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GridPost is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GridPost.  If not, see <http://www.gnu.org/licenses/>.
*/

package gridpostutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-cloud/blob"
)

// uploader redirects blob-storage output paths to a temporary
// directory so results can be written locally and uploaded afterwards.
type uploader struct {
	// files is a set of file path pairs. The first of each pair
	// is a local file path and the second is a blob storage
	// path where it should be uploaded to.
	files [][2]string
	err   error
	dir   string
}

// maybeUpload checks whether the given output file path refers to
// a blob storage location. If it does, then a temporary file location
// is returned. The file will then be uploaded to blob storage when
// the flush method is run.
func (u *uploader) maybeUpload(path string) string {
	if u.err != nil {
		return ""
	}
	if !IsBlob(path) {
		return path
	}
	if u.dir == "" {
		u.dir, u.err = ioutil.TempDir("", "gridpost")
		if u.err != nil {
			return ""
		}
	}
	files := expandShp(path)
	for _, f := range files {
		u.files = append(u.files, [2]string{
			filepath.Join(u.dir, filepath.Base(f)),
			f,
		})
	}
	return filepath.Join(u.dir, filepath.Base(files[0]))
}

// flush uploads any files registered by maybeUpload to their blob
// storage destinations.
func (u *uploader) flush() error {
	if u.err != nil {
		return u.err
	}
	ctx := context.TODO()
	for _, files := range u.files {
		r, err := os.Open(files[0])
		if err != nil {
			if os.IsNotExist(err) { // optional shapefile companion
				continue
			}
			return fmt.Errorf("gridpostutil: opening file '%s' for upload: %s", files[0], err)
		}
		url, err := url.Parse(files[1])
		if err != nil {
			r.Close()
			return fmt.Errorf("gridpostutil: parsing url '%s' for upload: %s", files[1], err)
		}
		bucket, err := OpenBucket(ctx, url.Scheme+"://"+url.Host)
		if err != nil {
			r.Close()
			return fmt.Errorf("gridpostutil: opening bucket to upload file '%s': %s", files[1], err)
		}
		w, err := bucket.NewWriter(ctx, strings.TrimPrefix(url.Path, "/"), &blob.WriterOptions{})
		if err != nil {
			r.Close()
			return fmt.Errorf("gridpostutil: opening writer to upload file '%s': %s", files[1], err)
		}
		if _, err := io.Copy(w, r); err != nil {
			r.Close()
			w.Close()
			return fmt.Errorf("gridpostutil: uploading file '%s' to '%s': %s", files[0], files[1], err)
		}
		r.Close()
		if err := w.Close(); err != nil {
			return fmt.Errorf("gridpostutil: uploading file '%s' to '%s': %s", files[0], files[1], err)
		}
	}
	return nil
}
