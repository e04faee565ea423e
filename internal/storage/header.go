package storage

import (
	"encoding/binary"
	"time"

	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// FileHeader is the fixed-layout database header carried on page 0
// Remaining header bytes up to the page size are
// reserved-zero.
type FileHeader struct {
	PageSize     uint32
	CatalogRoot  PageID
	FreeListHead PageID
	NextPage     uint64
	CreatedAt    int64 // unix micros
	ModifiedAt   int64 // unix micros
	FormatVer    uint32
}

const (
	fileMagic        = "TINYDBv1"
	headerFormatVer  = 1
	headerFieldBytes = 56 // magic(8) + version(4) + pagesize(4) + catalog(8) + freelist(8) + nextpage(8) + created(8) + modified(8)
)

// NewFileHeader returns the header written when a database is created.
func NewFileHeader(pageSize uint32, now time.Time) FileHeader {
	micros := now.UnixMicro()
	return FileHeader{
		PageSize:     pageSize,
		CatalogRoot:  0,
		FreeListHead: 0,
		NextPage:     1,
		CreatedAt:    micros,
		ModifiedAt:   micros,
		FormatVer:    headerFormatVer,
	}
}

// Encode writes the header into a page-sized buffer (caller-provided so
// it can be written straight into page 0's backing array). Fields are
// little-endian throughout.
func (h FileHeader) Encode(buf []byte) {
	copy(buf[0:8], []byte(fileMagic))
	binary.LittleEndian.PutUint32(buf[8:12], h.FormatVer)
	binary.LittleEndian.PutUint32(buf[12:16], h.PageSize)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CatalogRoot))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.FreeListHead))
	binary.LittleEndian.PutUint64(buf[32:40], h.NextPage)
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.ModifiedAt))
	for i := headerFieldBytes; i < len(buf); i++ {
		buf[i] = 0
	}
}

// DecodeFileHeader parses and validates the header, failing with
// CorruptDatabase on magic/version mismatch.
func DecodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < headerFieldBytes {
		return FileHeader{}, errCorrupt("header truncated")
	}
	if string(buf[0:8]) != fileMagic {
		return FileHeader{}, tinyerr.New(tinyerr.CorruptDatabase, "bad magic bytes")
	}
	ver := binary.LittleEndian.Uint32(buf[8:12])
	if ver != headerFormatVer {
		return FileHeader{}, tinyerr.New(tinyerr.CorruptDatabase, "unsupported format version")
	}
	return FileHeader{
		FormatVer:    ver,
		PageSize:     binary.LittleEndian.Uint32(buf[12:16]),
		CatalogRoot:  PageID(binary.LittleEndian.Uint64(buf[16:24])),
		FreeListHead: PageID(binary.LittleEndian.Uint64(buf[24:32])),
		NextPage:     binary.LittleEndian.Uint64(buf[32:40]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(buf[40:48])),
		ModifiedAt:   int64(binary.LittleEndian.Uint64(buf[48:56])),
	}, nil
}
