// Package segment stores a complete index snapshot in one binary file:
// a fixed header, the JSON postings of every term, then the dictionary,
// document refs and corpus stats sections, and a checksum footer.
package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Fulltext-Retrieval-Engine/internal/indexer/index"
)

const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 96
	FooterSize    int    = 16
)

// Header is the fixed-size block at the start of every segment file.
type Header struct {
	Magic       uint32
	Version     uint32
	TermCount   uint32
	DocCount    uint32
	CreatedAt   int64
	PostOffset  int64
	PostSize    int64
	DictOffset  int64
	DictSize    int64
	DocsOffset  int64
	DocsSize    int64
	StatsOffset int64
	StatsSize   int64
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(h.DocsOffset))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(h.DocsSize))
	binary.LittleEndian.PutUint64(buf[72:80], uint64(h.StatsOffset))
	binary.LittleEndian.PutUint64(buf[80:88], uint64(h.StatsSize))
	return buf
}

func decodeHeader(buf []byte) Header {
	return Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		TermCount:   binary.LittleEndian.Uint32(buf[8:12]),
		DocCount:    binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt:   int64(binary.LittleEndian.Uint64(buf[16:24])),
		PostOffset:  int64(binary.LittleEndian.Uint64(buf[24:32])),
		PostSize:    int64(binary.LittleEndian.Uint64(buf[32:40])),
		DictOffset:  int64(binary.LittleEndian.Uint64(buf[40:48])),
		DictSize:    int64(binary.LittleEndian.Uint64(buf[48:56])),
		DocsOffset:  int64(binary.LittleEndian.Uint64(buf[56:64])),
		DocsSize:    int64(binary.LittleEndian.Uint64(buf[64:72])),
		StatsOffset: int64(binary.LittleEndian.Uint64(buf[72:80])),
		StatsSize:   int64(binary.LittleEndian.Uint64(buf[80:88])),
	}
}

// DictEntry locates a term's postings relative to the postings section.
type DictEntry struct {
	Term                string `json:"t"`
	PostOffset          int64  `json:"o"`
	PostLen             int    `json:"l"`
	DocFreq             int    `json:"d"`
	CollectionFrequency int    `json:"cf"`
}

// Writer serialises snapshots into segment files.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Write creates path atomically: the snapshot goes to path.tmp, is synced,
// and is renamed over path only when complete. Readers of the old file are
// unaffected.
func (w *Writer) Write(path string, snap *index.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot write nil snapshot")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	if err := writeSegment(f, snap); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

func writeSegment(f *os.File, snap *index.Snapshot) error {
	header := Header{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		TermCount: uint32(len(snap.Lexicon)),
		DocCount:  uint32(len(snap.Documents)),
		CreatedAt: snap.Stats.BuiltAt.Unix(),
	}
	if _, err := f.Write(header.encode()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	offset := int64(HeaderSize)
	header.PostOffset = offset
	dict := make([]DictEntry, 0, len(snap.Lexicon))
	for _, entry := range snap.Lexicon {
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:                entry.Term,
			PostOffset:          offset - header.PostOffset,
			PostLen:             len(data),
			DocFreq:             len(entry.Postings),
			CollectionFrequency: entry.CollectionFrequency,
		})
		offset += int64(len(data))
	}
	header.PostSize = offset - header.PostOffset

	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	header.DictOffset, header.DictSize = offset, int64(len(dictData))
	if err := writeSection(f, dictData, "dictionary"); err != nil {
		return err
	}
	offset += header.DictSize

	docsData, err := json.Marshal(snap.Documents)
	if err != nil {
		return fmt.Errorf("marshaling documents: %w", err)
	}
	header.DocsOffset, header.DocsSize = offset, int64(len(docsData))
	if err := writeSection(f, docsData, "documents"); err != nil {
		return err
	}
	offset += header.DocsSize

	statsData, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	header.StatsOffset, header.StatsSize = offset, int64(len(statsData))
	if err := writeSection(f, statsData, "stats"); err != nil {
		return err
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(statsData))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(snap.PostingCount()))
	if err := writeSection(f, footer, "footer"); err != nil {
		return err
	}

	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	return nil
}

func writeSection(w io.Writer, data []byte, name string) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
