// Package segment reads and writes immutable on-disk index segments.
//
// Layout: a 64-byte header, positional postings per (field, term), stored
// documents, a JSON term dictionary sorted by (field, term), a JSON document
// table (stored spans and field lengths) and a 32-byte footer carrying
// checksums of the dictionary and table.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dchest/safefile"
	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// Header is the fixed-size header at the start of every segment.
type Header struct {
	Magic       uint32
	Version     uint32
	TermCount   uint32
	DocCount    uint32
	DictOffset  int64
	DictSize    int64
	PostOffset  int64
	PostSize    int64
	TableOffset int64
	TableSize   int64
}

func (h Header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.TableOffset))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.TableSize))
	return b
}

func decodeHeader(b []byte) Header {
	return Header{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     binary.LittleEndian.Uint32(b[4:8]),
		TermCount:   binary.LittleEndian.Uint32(b[8:12]),
		DocCount:    binary.LittleEndian.Uint32(b[12:16]),
		DictOffset:  int64(binary.LittleEndian.Uint64(b[16:24])),
		DictSize:    int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset:  int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:    int64(binary.LittleEndian.Uint64(b[40:48])),
		TableOffset: int64(binary.LittleEndian.Uint64(b[48:56])),
		TableSize:   int64(binary.LittleEndian.Uint64(b[56:64])),
	}
}

// DictEntry locates the postings of one (field, term).
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

type span struct {
	Offset int64 `json:"o"`
	Len    int   `json:"l"`
}

type docTable struct {
	Stored  []span              `json:"stored"`
	Lengths map[string][]uint32 `json:"lengths"`
	Sums    map[string]uint64   `json:"sums"`
}

// Info describes a written segment.
type Info struct {
	Name      string
	DocCount  uint32
	TermCount uint32
	Size      int64
}

// Writer writes segments into one directory.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into dataDir.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Dir returns the target directory.
func (w *Writer) Dir() string { return w.dataDir }

// offsetWriter tracks the write position.
type offsetWriter struct {
	w   io.Writer
	off int64
}

func (o *offsetWriter) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	o.off += int64(n)
	return n, err
}

// Write merges the live documents of readers, in order, into one new
// segment. Documents are renumbered densely. The file appears atomically.
func (w *Writer) Write(readers ...index.Reader) (Info, error) {
	remaps := make([][]int64, len(readers))
	var docCount uint32
	for i, r := range readers {
		remap := make([]int64, r.MaxDoc())
		for j := range remap {
			remap[j] = -1
		}
		it := r.Live().Iterator()
		for it.HasNext() {
			remap[it.Next()] = int64(docCount)
			docCount++
		}
		remaps[i] = remap
	}
	if docCount == 0 {
		return Info{}, fmt.Errorf("cannot write empty segment")
	}

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return Info{}, fmt.Errorf("creating segment directory: %w", err)
	}
	name := fmt.Sprintf("seg_%d_%s%s", time.Now().UnixNano(), uuid.NewString()[:8], Extension)
	f, err := safefile.Create(filepath.Join(w.dataDir, name), 0644)
	if err != nil {
		return Info{}, fmt.Errorf("creating segment file: %w", err)
	}
	defer f.Close()

	out := &offsetWriter{w: f}
	if _, err := out.Write(make([]byte, HeaderSize)); err != nil {
		return Info{}, fmt.Errorf("writing header: %w", err)
	}

	header := Header{Magic: MagicBytes, Version: FormatVersion, DocCount: docCount, PostOffset: out.off}
	dict, err := writePostings(out, readers, remaps)
	if err != nil {
		return Info{}, err
	}
	header.PostSize = out.off - header.PostOffset
	header.TermCount = uint32(len(dict))

	table := docTable{
		Stored:  make([]span, 0, docCount),
		Lengths: make(map[string][]uint32),
		Sums:    make(map[string]uint64),
	}
	fields := unionFields(readers)
	for _, field := range fields {
		table.Lengths[field] = make([]uint32, docCount)
	}
	for i, r := range readers {
		for old, nd := range remaps[i] {
			if nd < 0 {
				continue
			}
			stored, err := r.Document(uint32(old))
			if err != nil {
				return Info{}, fmt.Errorf("reading stored document %d: %w", old, err)
			}
			data, err := json.Marshal(stored)
			if err != nil {
				return Info{}, fmt.Errorf("marshaling stored document: %w", err)
			}
			table.Stored = append(table.Stored, span{Offset: out.off, Len: len(data)})
			if _, err := out.Write(data); err != nil {
				return Info{}, fmt.Errorf("writing stored document: %w", err)
			}
			for _, field := range fields {
				l := r.FieldLength(field, uint32(old))
				table.Lengths[field][nd] = l
				table.Sums[field] += uint64(l)
			}
		}
	}

	dictData, err := json.Marshal(dict)
	if err != nil {
		return Info{}, fmt.Errorf("marshaling dictionary: %w", err)
	}
	header.DictOffset = out.off
	header.DictSize = int64(len(dictData))
	if _, err := out.Write(dictData); err != nil {
		return Info{}, fmt.Errorf("writing dictionary: %w", err)
	}
	tableData, err := json.Marshal(table)
	if err != nil {
		return Info{}, fmt.Errorf("marshaling document table: %w", err)
	}
	header.TableOffset = out.off
	header.TableSize = int64(len(tableData))
	if _, err := out.Write(tableData); err != nil {
		return Info{}, fmt.Errorf("writing document table: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(tableData))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(time.Now().Unix()))
	if _, err := out.Write(footer); err != nil {
		return Info{}, fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return Info{}, fmt.Errorf("updating header: %w", err)
	}
	if err := f.Commit(); err != nil {
		return Info{}, fmt.Errorf("committing segment file: %w", err)
	}
	return Info{Name: name, DocCount: docCount, TermCount: header.TermCount, Size: out.off}, nil
}

func unionFields(readers []index.Reader) []string {
	set := make(map[string]struct{})
	for _, r := range readers {
		for _, f := range r.Fields() {
			set[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func writePostings(out *offsetWriter, readers []index.Reader, remaps [][]int64) ([]DictEntry, error) {
	var dict []DictEntry
	base := out.off
	for _, field := range unionFields(readers) {
		terms, err := unionTerms(readers, field)
		if err != nil {
			return nil, err
		}
		for _, term := range terms {
			var merged []index.Posting
			for i, r := range readers {
				postings, err := r.Postings(field, term)
				if err != nil {
					return nil, fmt.Errorf("reading postings %s:%q: %w", field, term, err)
				}
				for _, p := range postings {
					if nd := remaps[i][p.Doc]; nd >= 0 {
						p.Doc = uint32(nd)
						merged = append(merged, p)
					}
				}
			}
			if len(merged) == 0 {
				continue
			}
			data, err := json.Marshal(merged)
			if err != nil {
				return nil, fmt.Errorf("marshaling postings for %s:%q: %w", field, term, err)
			}
			offset := out.off - base
			if _, err := out.Write(data); err != nil {
				return nil, fmt.Errorf("writing postings for %s:%q: %w", field, term, err)
			}
			dict = append(dict, DictEntry{
				Field:      field,
				Term:       term,
				PostOffset: offset,
				PostLen:    len(data),
				DocFreq:    len(merged),
			})
		}
	}
	return dict, nil
}

func unionTerms(readers []index.Reader, field string) ([]string, error) {
	set := make(map[string]struct{})
	for _, r := range readers {
		it, err := r.Terms(field, "")
		if err != nil {
			return nil, fmt.Errorf("listing terms of %s: %w", field, err)
		}
		for it.Next() {
			set[it.Term()] = struct{}{}
		}
		err = it.Err()
		it.Close()
		if err != nil {
			return nil, fmt.Errorf("listing terms of %s: %w", field, err)
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}
