package common

import (
	"fmt"
	"path"
	"strings"
)

// Extensions of the vector files accepted on upload
const (
	ExtZIP     = "zip"
	ExtGPKG    = "gpkg"
	ExtGeoJSON = "geojson"
)

// IsSupportedExt returns true if ext (with or without the leading dot) is accepted on upload
func IsSupportedExt(ext string) bool {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case ExtZIP, ExtGPKG, ExtGeoJSON:
		return true
	}
	return false
}

// FileName returns the name of a file, given its id and its extension
func FileName(id, ext string) string {
	return fmt.Sprintf("%s.%s", id, strings.ToLower(strings.TrimPrefix(ext, ".")))
}

// FileKey returns the storage key of a version of the file of the record.
// Each upload is stored under a new version, so that the previous file survives a failed update.
func FileKey(recordType RecordType, recordUUID, version, ext string) string {
	return path.Join(recordType.Prefix(), recordUUID, FileName(version, ext))
}
