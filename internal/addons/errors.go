package addons

import (
	"errors"
	"fmt"
)

var (
	ErrConfig        = errors.New("invalid configuration")
	ErrDownload      = errors.New("download failed")
	ErrNoDownloadURL = fmt.Errorf("%w: addon has no download url", ErrDownload)
	ErrArchiveFormat = errors.New("not a valid zip archive")
	ErrUnsafePath    = errors.New("unsafe archive entry")
	ErrMerge         = errors.New("merge failed")
	ErrRemoteSync    = errors.New("remote sync failed")
	ErrManifestIO    = errors.New("manifest i/o failed")
	ErrNotFound      = errors.New("addon not found")
)
