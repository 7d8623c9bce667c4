// Package paths is the single source of truth for object names in the
// blob store and for local scratch locations. Both sides of the system
// (upload service and worker) derive names here so they always agree.
package paths

import (
	"path"
	"path/filepath"
)

const (
	backupDir       = "backup"
	zipsDir         = "zips"
	tempDir         = "temp"
	wipUploadsDir   = "wip_uploads"
	wipDownloadsDir = "wip_downloads"
	merkleTreesDir  = "merkle_trees"
)

// BackupObjectName is the blob-store name of an unpacked member:
// backup/<id>/<fileName>.
func BackupObjectName(id, fileName string) string {
	return path.Join(backupDir, id, fileName)
}

// ZipObjectName is the blob-store name of the raw uploaded archive:
// zips/<id>.zip.
func ZipObjectName(id string) string {
	return path.Join(zipsDir, id+".zip")
}

// MerkleTreeFileName is the file name of the serialized tree for a
// batch: <id>_mtree.txt. The same name is used locally and in the
// backup/<id>/ namespace.
func MerkleTreeFileName(id string) string {
	return id + "_mtree.txt"
}

// LocalZipDir is the server-side landing directory for uploads.
func LocalZipDir() string {
	return filepath.Join(tempDir, zipsDir)
}

// LocalZipPath is the landing path of the archive for one client id.
func LocalZipPath(id string) string {
	return filepath.Join(LocalZipDir(), id+".zip")
}

// LocalMerkleTreeDir holds serialized trees between build and upload.
func LocalMerkleTreeDir() string {
	return filepath.Join(tempDir, merkleTreesDir)
}

// LocalMerkleTreePath is the scratch path of the serialized tree.
func LocalMerkleTreePath(id string) string {
	return filepath.Join(LocalMerkleTreeDir(), MerkleTreeFileName(id))
}

// WipUploadsDir is the per-job unpack scratch directory. Distinct ids
// never share a path.
func WipUploadsDir(id string) string {
	return filepath.Join(tempDir, wipUploadsDir, id)
}

// WipDownloadsDir is the per-request download scratch directory.
func WipDownloadsDir(id string) string {
	return filepath.Join(tempDir, wipDownloadsDir, id)
}
