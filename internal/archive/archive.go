// Package archive bundles the live database file into a single-entry tar
// stream and extracts it again on restore.
package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrArchive indicates the bundle could not be produced.
	ErrArchive = errors.New("archive failed")
	// ErrExtract indicates the bundle could not be unpacked.
	ErrExtract = errors.New("extract failed")
)

// Bundle writes a tar stream holding exactly srcPath to dstPath. On any
// failure dstPath is removed.
func Bundle(srcPath, dstPath string) (err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("%w: open source %q: %w", ErrArchive, srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat source %q: %w", ErrArchive, srcPath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: source %q is not a regular file", ErrArchive, srcPath)
	}

	out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create bundle %q: %w", ErrArchive, dstPath, err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dstPath)
		}
	}()

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("%w: build header: %w", ErrArchive, err)
	}
	hdr.Name = filepath.Base(srcPath)

	tw := tar.NewWriter(out)
	if err = tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("%w: write header: %w", ErrArchive, err)
	}
	// The size in the header is fixed; a file growing underneath us is
	// reported by the tar writer as ErrWriteTooLong.
	if _, err = io.Copy(tw, src); err != nil {
		return fmt.Errorf("%w: copy %q: %w", ErrArchive, srcPath, err)
	}
	if err = tw.Close(); err != nil {
		return fmt.Errorf("%w: finalize tar: %w", ErrArchive, err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("%w: sync bundle: %w", ErrArchive, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("%w: close bundle: %w", ErrArchive, err)
	}
	return nil
}

// Extract unpacks the single regular entry named wantName from the bundle
// at bundlePath into dstDir and returns the extracted path. Bundles with
// extra entries, links or unexpected names are rejected.
func Extract(bundlePath, wantName, dstDir string) (string, error) {
	in, err := os.Open(bundlePath)
	if err != nil {
		return "", fmt.Errorf("%w: open bundle %q: %w", ErrExtract, bundlePath, err)
	}
	defer in.Close()

	tr := tar.NewReader(in)
	var extracted string
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			removeQuiet(extracted)
			return "", fmt.Errorf("%w: read tar: %w", ErrExtract, err)
		}
		if extracted != "" {
			removeQuiet(extracted)
			return "", fmt.Errorf("%w: bundle holds more than one entry", ErrExtract)
		}
		if hdr.Typeflag != tar.TypeReg {
			return "", fmt.Errorf("%w: entry %q is not a regular file", ErrExtract, hdr.Name)
		}
		if hdr.Name != wantName || filepath.Base(hdr.Name) != hdr.Name {
			return "", fmt.Errorf("%w: unexpected entry %q, want %q", ErrExtract, hdr.Name, wantName)
		}

		dst := filepath.Join(dstDir, wantName)
		if err := writeEntry(tr, dst); err != nil {
			return "", err
		}
		extracted = dst
	}
	if extracted == "" {
		return "", fmt.Errorf("%w: bundle is empty", ErrExtract)
	}
	return extracted, nil
}

func writeEntry(r io.Reader, dst string) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("%w: create %q: %w", ErrExtract, dst, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		removeQuiet(dst)
		return fmt.Errorf("%w: write %q: %w", ErrExtract, dst, err)
	}
	if err := out.Close(); err != nil {
		removeQuiet(dst)
		return fmt.Errorf("%w: close %q: %w", ErrExtract, dst, err)
	}
	return nil
}

func removeQuiet(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
