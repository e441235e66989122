// internal/parity/codec.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// codec.go implements carb's in-process Reed-Solomon forward error
// correction: shard the file into equal-size data shards, compute
// parity shards with klauspost/reedsolomon, and record per-chunk hashes
// so damage can be localized to specific shards at repair time, rather
// than shelling out to a par2 binary. On-disk files stay within the
// documented "<BlobId>.par2" / "<BlobId>.volNN+MM.par2" naming family.
package parity

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/reedsolomon"
	"golang.org/x/crypto/sha3"
)

// chunkHashSize is the width of the integrity hash recorded per shard
// chunk. It is deliberately distinct from blob.HashSize (SHA-256): this
// hash never identifies a blob, only a shard chunk's integrity, and
// SHA-256 is reserved for the blob identity itself.
const chunkHashSize = 32

type chunkHash [chunkHashSize]byte

func hashChunk(b []byte) chunkHash {
	var h chunkHash
	sha3.ShakeSum256(h[:], b)
	return h
}

// DefaultHashRate is the chunk size used to sub-divide each shard for
// integrity checking, letting repair localize damage instead of treating
// a whole shard as lost on any single-byte corruption.
const DefaultHashRate = 256 * 1024

// sidecar is the gob-encoded contents of a "<BlobId>.par2" metadata file.
type sidecar struct {
	FileSize      int64
	BlockSize     int64
	NDataShards   int
	NParityShards int
	HashRate      int64
	// Hashes[i] holds the per-chunk hashes of shard i; data shards come
	// first, then parity shards.
	Hashes [][]chunkHash
}

func metaPath(outputBase string) string { return outputBase + ".par2" }
func volPath(outputBase string, nParity int) string {
	return fmt.Sprintf("%s.vol%02d+%02d.par2", outputBase, 0, nParity)
}

// Create encodes inputPath's contents into a parity set rooted at
// outputBase ("<ParityDir>/<BlobId>"), per the planned block size and
// redundancy percentage.
func Create(inputPath, outputBase string, blockSize int64, redundancyPercent int) error {
	fi, err := os.Stat(inputPath)
	if err != nil {
		return err
	}
	size := fi.Size()

	nData := int(ceilDiv(size, blockSize))
	if nData < 1 {
		nData = 1
	}
	nParity := int(ceilDiv(int64(nData*redundancyPercent), 100))
	if nParity < 1 {
		nParity = 1
	}

	dataShards, err := readAndShard(inputPath, nData, blockSize)
	if err != nil {
		return err
	}

	parityShards := make([][]byte, nParity)
	for i := range parityShards {
		parityShards[i] = make([]byte, blockSize)
	}

	enc, err := reedsolomon.New(nData, nParity)
	if err != nil {
		return err
	}
	all := append(append([][]byte{}, dataShards...), parityShards...)
	if err := enc.Encode(all); err != nil {
		return err
	}

	sc := sidecar{
		FileSize:      size,
		BlockSize:     blockSize,
		NDataShards:   nData,
		NParityShards: nParity,
		HashRate:      DefaultHashRate,
	}
	for _, s := range all {
		sc.Hashes = append(sc.Hashes, hashShard(s, DefaultHashRate))
	}

	if err := writeSidecar(metaPath(outputBase), sc); err != nil {
		return err
	}
	return writeVolume(volPath(outputBase, nParity), parityShards)
}

// Verify checks inputPath's data shards against the recorded chunk
// hashes in the parity set rooted at outputBase, reporting whether every
// chunk is intact. It does not require or inspect the parity volume.
func Verify(inputPath, outputBase string) (bool, error) {
	sc, err := readSidecar(metaPath(outputBase))
	if err != nil {
		return false, err
	}

	dataShards, err := readAndShard(inputPath, sc.NDataShards, sc.BlockSize)
	if err != nil {
		return false, err
	}

	for i, shard := range dataShards {
		if !shardMatches(shard, sc.HashRate, sc.Hashes[i]) {
			return false, nil
		}
	}
	return true, nil
}

// Repair reconstructs inputPath's original bytes using its parity set
// rooted at outputBase, writing FileSize bytes to w. inputPath itself is
// never modified: repair output only ever lands on a restore
// destination, never back onto the stored blob.
func Repair(inputPath, outputBase string, w io.Writer) error {
	sc, err := readSidecar(metaPath(outputBase))
	if err != nil {
		return err
	}
	parityShards, err := readVolume(volPath(outputBase, sc.NParityShards), sc.NParityShards, sc.BlockSize)
	if err != nil {
		return err
	}
	dataShards, err := readAndShard(inputPath, sc.NDataShards, sc.BlockSize)
	if err != nil {
		return err
	}

	all := append(append([][]byte{}, dataShards...), parityShards...)

	enc, err := reedsolomon.New(sc.NDataShards, sc.NParityShards)
	if err != nil {
		return err
	}

	nChunks := chunksPerShard(sc.BlockSize, sc.HashRate)
	for c := 0; c < nChunks; c++ {
		lo, hi := chunkBounds(c, sc.BlockSize, sc.HashRate)

		recon := make([][]byte, len(all))
		missing := false
		for i, shard := range all {
			chunk := shard[lo:hi]
			if hashChunk(chunk) != sc.Hashes[i][c] {
				recon[i] = nil
				missing = true
			} else {
				recon[i] = chunk
			}
		}
		if missing {
			if err := enc.Reconstruct(recon); err != nil {
				return err
			}
			for i := range dataShards {
				copy(all[i][lo:hi], recon[i])
			}
		}
	}

	written := int64(0)
	for _, shard := range dataShards {
		n := int64(len(shard))
		if written+n > sc.FileSize {
			n = sc.FileSize - written
		}
		if n <= 0 {
			break
		}
		if _, err := w.Write(shard[:n]); err != nil {
			return err
		}
		written += n
	}
	return nil
}

func readAndShard(path string, nShards int, shardSize int64) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, int64(nShards)*shardSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	_ = n // remaining bytes beyond the file's true size stay zero-padded

	shards := make([][]byte, nShards)
	for i := range shards {
		shards[i] = buf[int64(i)*shardSize : int64(i+1)*shardSize]
	}
	return shards, nil
}

func hashShard(shard []byte, hashRate int64) []chunkHash {
	var hashes []chunkHash
	for off := int64(0); off < int64(len(shard)); off += hashRate {
		end := off + hashRate
		if end > int64(len(shard)) {
			end = int64(len(shard))
		}
		hashes = append(hashes, hashChunk(shard[off:end]))
	}
	return hashes
}

func shardMatches(shard []byte, hashRate int64, hashes []chunkHash) bool {
	got := hashShard(shard, hashRate)
	if len(got) != len(hashes) {
		return false
	}
	for i := range got {
		if got[i] != hashes[i] {
			return false
		}
	}
	return true
}

func chunksPerShard(shardSize, hashRate int64) int {
	return int(ceilDiv(shardSize, hashRate))
}

func chunkBounds(chunk int, shardSize, hashRate int64) (lo, hi int64) {
	lo = int64(chunk) * hashRate
	hi = lo + hashRate
	if hi > shardSize {
		hi = shardSize
	}
	return
}

func writeSidecar(path string, sc sidecar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(sc)
}

func readSidecar(path string) (sidecar, error) {
	var sc sidecar
	f, err := os.Open(path)
	if err != nil {
		return sc, err
	}
	defer f.Close()
	return sc, gob.NewDecoder(f).Decode(&sc)
}

func writeVolume(path string, shards [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, s := range shards {
		if _, err := f.Write(s); err != nil {
			return err
		}
	}
	return nil
}

func readVolume(path string, nShards int, shardSize int64) ([][]byte, error) {
	return readAndShard(path, nShards, shardSize)
}
