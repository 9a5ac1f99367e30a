// Package jar rewrites class entries inside jar archives for the offline
// transformer. Non-class entries are copied through untouched.
package jar

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/RELAY-CN/ASM-Framework/classfile"
)

// peekClassName reads the class's own internal name out of its bytes,
// used for directory trees where the path may not mirror the package.
func peekClassName(data []byte) (string, error) {
	node, err := classfile.Parse(data)
	if err != nil {
		return "", err
	}
	return node.Name, nil
}

// TransformFunc rewrites one class. className is the internal name,
// derived from the entry path in jars and read from the class bytes in
// directory trees; returning the input bytes unchanged keeps the entry
// as-is.
type TransformFunc func(className string, data []byte) ([]byte, error)

// ClassNameOf derives the internal class name from a jar entry path, or
// "" when the entry is not a classfile.
func ClassNameOf(entry string) string {
	if !strings.HasSuffix(entry, ".class") {
		return ""
	}
	return strings.TrimSuffix(entry, ".class")
}

// Rewrite reads a jar, runs every class entry through transform, and
// writes the result. extra entries (path → bytes) are appended at the
// end, for bundled support classes.
func Rewrite(inPath, outPath string, transform TransformFunc, extra map[string][]byte) error {
	in, err := zip.OpenReader(inPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inPath, err)
	}
	defer in.Close()

	outFile, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer outFile.Close()
	out := zip.NewWriter(outFile)

	for _, entry := range in.File {
		if err := rewriteEntry(out, entry, transform); err != nil {
			return fmt.Errorf("entry %s: %w", entry.Name, err)
		}
	}
	for path, data := range extra {
		w, err := out.Create(path)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
	}
	return out.Close()
}

func rewriteEntry(out *zip.Writer, entry *zip.File, transform TransformFunc) error {
	r, err := entry.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	var data bytes.Buffer
	if _, err := io.Copy(&data, r); err != nil {
		return err
	}
	payload := data.Bytes()

	if name := ClassNameOf(entry.Name); name != "" {
		payload, err = transform(name, payload)
		if err != nil {
			return err
		}
	}

	hdr := entry.FileHeader
	hdr.CompressedSize64 = 0
	hdr.UncompressedSize64 = uint64(len(payload))
	w, err := out.CreateHeader(&hdr)
	if err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// RewriteDir walks a directory tree into the output directory, preserving
// relative layout. Each .class file that parses is transformed; other
// files, and .class files that do not parse, are copied unchanged.
func RewriteDir(inDir, outDir string, transform TransformFunc, extra map[string][]byte) error {
	if err := copyTree(inDir, outDir, transform); err != nil {
		return err
	}
	for path, data := range extra {
		dst := outDir + string(os.PathSeparator) + strings.ReplaceAll(path, "/", string(os.PathSeparator))
		if err := os.MkdirAll(parentDir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func parentDir(p string) string {
	if i := strings.LastIndexByte(p, os.PathSeparator); i > 0 {
		return p[:i]
	}
	return "."
}

func copyTree(inDir, outDir string, transform TransformFunc) error {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		src := inDir + string(os.PathSeparator) + e.Name()
		dst := outDir + string(os.PathSeparator) + e.Name()
		if e.IsDir() {
			if err := copyTree(src, dst, transform); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return err
		}
		if strings.HasSuffix(e.Name(), ".class") {
			name, err := peekClassName(data)
			if err == nil {
				if data, err = transform(name, data); err != nil {
					return fmt.Errorf("%s: %w", src, err)
				}
			}
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}
