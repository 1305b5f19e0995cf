// Package archive compresses job log artifacts with zstd and provides
// transparent decompression for readers, so the rest of the system can
// treat "<name>.log" and "<name>.log.zstd" interchangeably (spec.md §4.5
// step 7, §6).
package archive

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressedSuffix is appended to archived log filenames.
const CompressedSuffix = ".zstd"

// CompressFile reads srcPath, writes a zstd-compressed copy to
// srcPath+CompressedSuffix, and removes srcPath on success. It is used once
// a job run's log files are no longer needed in their raw form (spec.md
// §4.5 step 7).
func CompressFile(srcPath string) (string, error) {
	dstPath := srcPath + CompressedSuffix

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", dstPath, err)
	}

	encoder, err := zstd.NewWriter(dst)
	if err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)

		return "", fmt.Errorf("archive: new encoder: %w", err)
	}

	_, err = io.Copy(encoder, bufio.NewReader(src))
	if err != nil {
		_ = encoder.Close()
		_ = dst.Close()
		_ = os.Remove(dstPath)

		return "", fmt.Errorf("archive: compress %s: %w", srcPath, err)
	}

	err = encoder.Close()
	if err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)

		return "", fmt.Errorf("archive: finalize %s: %w", dstPath, err)
	}

	err = dst.Close()
	if err != nil {
		_ = os.Remove(dstPath)

		return "", fmt.Errorf("archive: close %s: %w", dstPath, err)
	}

	err = os.Remove(srcPath)
	if err != nil {
		return "", fmt.Errorf("archive: remove original %s: %w", srcPath, err)
	}

	return dstPath, nil
}

// OpenTransparent opens path, or path+CompressedSuffix if path does not
// exist, returning a reader that yields decompressed bytes either way. The
// returned closer must always be called.
func OpenTransparent(path string) (io.ReadCloser, error) {
	if strings.HasSuffix(path, CompressedSuffix) {
		return openCompressed(path)
	}

	f, err := os.Open(path)
	if err == nil {
		return f, nil
	}

	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}

	return openCompressed(path + CompressedSuffix)
}

func openCompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}

	decoder, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("archive: new decoder for %s: %w", path, err)
	}

	return &decompressingReadCloser{decoder: decoder, file: f}, nil
}

type decompressingReadCloser struct {
	decoder *zstd.Decoder
	file    *os.File
}

func (d *decompressingReadCloser) Read(p []byte) (int, error) {
	n, err := d.decoder.Read(p)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("archive: decompress: %w", err)
	}

	return n, err
}

func (d *decompressingReadCloser) Close() error {
	d.decoder.Close()

	err := d.file.Close()
	if err != nil {
		return fmt.Errorf("archive: close underlying file: %w", err)
	}

	return nil
}
