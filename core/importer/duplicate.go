package importer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hashPrefixBytes is how much of the file participates in the
// duplicate-detection hash. Hashing the full file would make large
// imports crawl; the prefix plus the exact size is selective enough.
const hashPrefixBytes = 1 << 20

// SourceHash fingerprints a file as sha256(first 1 MiB || size-LE).
func SourceHash(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s: %w", path, ErrFileNotFound)
		}
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.CopyN(hasher, f, hashPrefixBytes); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	var size [8]byte
	binary.LittleEndian.PutUint64(size[:], uint64(info.Size()))
	hasher.Write(size[:])

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
