package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
)

// Reader serves one segment file. The file stays open until the reader and
// every term iterator it handed out are closed.
type Reader struct {
	file   *os.File
	path   string
	header Header
	dict   []DictEntry
	table  docTable
	fields []string
	live   *roaring.Bitmap
	refs   atomic.Int32
	closed atomic.Bool
}

var _ index.Reader = (*Reader)(nil)

// OpenReader opens and validates a segment.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	if stat.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("truncated file of %d bytes", stat.Size())
	}
	hb := make([]byte, HeaderSize)
	if _, err := f.ReadAt(hb, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(hb)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, stat.Size()-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}

	dictData := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictData, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	if crc32.ChecksumIEEE(dictData) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("dictionary checksum mismatch")
	}
	tableData := make([]byte, header.TableSize)
	if _, err := f.ReadAt(tableData, header.TableOffset); err != nil {
		return nil, fmt.Errorf("reading document table: %w", err)
	}
	if crc32.ChecksumIEEE(tableData) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, fmt.Errorf("document table checksum mismatch")
	}

	r := &Reader{file: f, path: path, header: header}
	if err := json.Unmarshal(dictData, &r.dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	if err := json.Unmarshal(tableData, &r.table); err != nil {
		return nil, fmt.Errorf("parsing document table: %w", err)
	}
	if uint32(len(r.table.Stored)) != header.DocCount {
		return nil, fmt.Errorf("document table has %d entries, header %d", len(r.table.Stored), header.DocCount)
	}
	for i, e := range r.dict {
		if i == 0 || e.Field != r.dict[i-1].Field {
			r.fields = append(r.fields, e.Field)
		}
	}
	r.live = roaring.New()
	r.live.AddRange(0, uint64(header.DocCount))
	r.refs.Store(1)
	return r, nil
}

// Path returns the segment file path.
func (r *Reader) Path() string { return r.path }

// TermCount returns the number of (field, term) entries.
func (r *Reader) TermCount() int { return len(r.dict) }

func (r *Reader) MaxDoc() uint32 { return r.header.DocCount }

func (r *Reader) Live() *roaring.Bitmap { return r.live }

func (r *Reader) Fields() []string { return r.fields }

func (r *Reader) search(field, term string) int {
	return sort.Search(len(r.dict), func(i int) bool {
		e := r.dict[i]
		if e.Field != field {
			return e.Field > field
		}
		return e.Term >= term
	})
}

func (r *Reader) lookup(field, term string) (DictEntry, bool) {
	i := r.search(field, term)
	if i >= len(r.dict) || r.dict[i].Field != field || r.dict[i].Term != term {
		return DictEntry{}, false
	}
	return r.dict[i], true
}

// Terms pins the segment until the iterator is closed.
func (r *Reader) Terms(field, from string) (index.TermIterator, error) {
	if r.closed.Load() {
		return nil, fmt.Errorf("segment %s is closed", r.path)
	}
	r.refs.Add(1)
	var terms []string
	for i := r.search(field, from); i < len(r.dict) && r.dict[i].Field == field; i++ {
		terms = append(terms, r.dict[i].Term)
	}
	return index.NewSliceTerms(terms, r.release), nil
}

func (r *Reader) Postings(field, term string) ([]index.Posting, error) {
	e, ok := r.lookup(field, term)
	if !ok {
		return nil, nil
	}
	data := make([]byte, e.PostLen)
	if _, err := r.file.ReadAt(data, r.header.PostOffset+e.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings []index.Posting
	if err := json.Unmarshal(data, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

func (r *Reader) DocFreq(field, term string) (int, error) {
	e, ok := r.lookup(field, term)
	if !ok {
		return 0, nil
	}
	return e.DocFreq, nil
}

func (r *Reader) Document(doc uint32) (document.StoredFields, error) {
	if doc >= r.header.DocCount {
		return nil, fmt.Errorf("document %d out of range", doc)
	}
	s := r.table.Stored[doc]
	data := make([]byte, s.Len)
	if _, err := r.file.ReadAt(data, s.Offset); err != nil {
		return nil, fmt.Errorf("reading stored document %d: %w", doc, err)
	}
	var stored document.StoredFields
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("parsing stored document %d: %w", doc, err)
	}
	return stored, nil
}

func (r *Reader) FieldLength(field string, doc uint32) uint32 {
	lens := r.table.Lengths[field]
	if doc >= uint32(len(lens)) {
		return 0
	}
	return lens[doc]
}

func (r *Reader) SumFieldLength(field string) uint64 {
	return r.table.Sums[field]
}

// OpenIterators reports term iterators not yet closed.
func (r *Reader) OpenIterators() int {
	n := int(r.refs.Load())
	if !r.closed.Load() {
		n--
	}
	return n
}

func (r *Reader) release() error {
	if r.refs.Add(-1) == 0 {
		return r.file.Close()
	}
	return nil
}

// Close releases the reader's own reference. The file is closed once the
// last open term iterator is closed too.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return r.release()
}
