package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
)

var ErrCorrupt = errors.New("corrupt segment file")

// Reader serves lookups from one segment file. The dictionary and stats are
// held in memory; postings are read on demand with ReadAt, so a Reader is
// safe for concurrent use.
type Reader struct {
	file         *os.File
	filePath     string
	header       Header
	dict         []DictEntry
	stats        index.CorpusStats
	postingCount int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("%w: file too short", ErrCorrupt)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", ErrCorrupt, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header.Version)
	}
	if err := checkLayout(header, info.Size()); err != nil {
		return nil, err
	}
	end := header.StatsOffset + header.StatsSize

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, end); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}

	dictBytes, err := readSection(f, header.DictOffset, header.DictSize, "dictionary")
	if err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("%w: dictionary checksum mismatch", ErrCorrupt)
	}
	statsBytes, err := readSection(f, header.StatsOffset, header.StatsSize, "stats")
	if err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(statsBytes) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, fmt.Errorf("%w: stats checksum mismatch", ErrCorrupt)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("%w: parsing dictionary: %v", ErrCorrupt, err)
	}
	var stats index.CorpusStats
	if err := json.Unmarshal(statsBytes, &stats); err != nil {
		return nil, fmt.Errorf("%w: parsing stats: %v", ErrCorrupt, err)
	}
	if err := checkDictionary(dict, header.PostSize); err != nil {
		return nil, err
	}
	return &Reader{
		file:         f,
		filePath:     path,
		header:       header,
		dict:         dict,
		stats:        stats,
		postingCount: int64(binary.LittleEndian.Uint64(footer[8:16])),
	}, nil
}

// checkLayout requires the four sections to be non-negative, contiguous and
// in write order, ending exactly where the footer begins.
func checkLayout(h Header, fileSize int64) error {
	sections := []struct {
		name         string
		offset, size int64
	}{
		{"postings", h.PostOffset, h.PostSize},
		{"dictionary", h.DictOffset, h.DictSize},
		{"documents", h.DocsOffset, h.DocsSize},
		{"stats", h.StatsOffset, h.StatsSize},
	}
	limit := fileSize - int64(FooterSize)
	next := int64(HeaderSize)
	for _, sec := range sections {
		if sec.offset != next {
			return fmt.Errorf("%w: %s section starts at %d, want %d", ErrCorrupt, sec.name, sec.offset, next)
		}
		if sec.size < 0 || sec.size > limit-sec.offset {
			return fmt.Errorf("%w: %s section size %d out of range", ErrCorrupt, sec.name, sec.size)
		}
		next = sec.offset + sec.size
	}
	if next != limit {
		return fmt.Errorf("%w: section table does not match file size", ErrCorrupt)
	}
	return nil
}

// checkDictionary requires every entry to point inside the postings section.
func checkDictionary(dict []DictEntry, postSize int64) error {
	for _, e := range dict {
		if e.PostOffset < 0 || e.PostLen < 0 || e.PostOffset > postSize-int64(e.PostLen) {
			return fmt.Errorf("%w: postings of %q fall outside the postings section", ErrCorrupt, e.Term)
		}
	}
	return nil
}

func readSection(f *os.File, offset, size int64, name string) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return buf, nil
}

func (r *Reader) lookup(term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Search returns the postings of term, or nil when the term is absent.
func (r *Reader) Search(term string) (index.PostingList, error) {
	entry, ok := r.lookup(term)
	if !ok {
		return nil, nil
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// DocumentFrequency is answered from the dictionary without touching postings.
func (r *Reader) DocumentFrequency(term string) int {
	entry, ok := r.lookup(term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

func (r *Reader) Stats() index.CorpusStats {
	return r.stats
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) PostingCount() int64 {
	return r.postingCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}
