package storage

import (
	"encoding/binary"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/joeandaverde/tinydb/internal/tinyerr"
)

// commitMarker terminates a consistent journal. A journal is consistent
// iff it ends with this marker or is entirely empty; anything else is a
// transaction that never finished committing.
const commitMarker uint32 = 0xC011171F

// journalSuffix names the sibling file that holds a transaction's
// before-images while it is in flight.
const journalSuffix = ".journal"

// frameHeaderSize is page_id(8) + length(4).
const frameHeaderSize = 12

// Journal is a rollback journal of page before-images: the durability
// device a transaction uses to survive a crash between the first dirty
// write and the final commit. Every page about to be overwritten in
// place has its original bytes appended here first; a crash before the
// commit marker is written leaves enough to restore every touched page
// to what it was before the transaction began.
type Journal struct {
	path   string
	file   *os.File
	frames map[PageID]bool // pages already captured this transaction
}

// OpenJournal creates (or truncates) the journal file beside the
// database file at dbPath.
func OpenJournal(dbPath string) (*Journal, error) {
	path := JournalPath(dbPath)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, tinyerr.Wrap(tinyerr.IoFailure, "create journal file", err)
	}
	return &Journal{path: path, file: file, frames: make(map[PageID]bool)}, nil
}

// CaptureBeforeImage appends a page's pre-modification bytes to the
// journal, fsyncing the journal file before the caller is allowed to
// let the corresponding dirty write reach the database file. It is a
// no-op for a page already captured within the current transaction.
func (j *Journal) CaptureBeforeImage(page *Page) error {
	if j.frames[page.ID] {
		return nil
	}

	frame := make([]byte, frameHeaderSize+len(page.Data))
	binary.LittleEndian.PutUint64(frame[0:8], uint64(page.ID))
	binary.LittleEndian.PutUint32(frame[8:12], uint32(len(page.Data)))
	copy(frame[frameHeaderSize:], page.Data)

	if _, err := j.file.Write(frame); err != nil {
		return tinyerr.Wrap(tinyerr.IoFailure, "append journal frame", err)
	}
	if err := j.file.Sync(); err != nil {
		return tinyerr.Wrap(tinyerr.IoFailure, "fsync journal", err)
	}
	j.frames[page.ID] = true
	return nil
}

// Commit writes the trailing commit marker and fsyncs it. Once this
// returns, the journal is a complete, replayable record; the caller
// must still fsync the database file before deleting the journal.
func (j *Journal) Commit() error {
	marker := make([]byte, 4)
	binary.LittleEndian.PutUint32(marker, commitMarker)
	if _, err := j.file.Write(marker); err != nil {
		return tinyerr.Wrap(tinyerr.IoFailure, "write journal commit marker", err)
	}
	return j.file.Sync()
}

// Finalize removes the journal file after a transaction has been
// durably committed to the database file.
func (j *Journal) Finalize() error {
	if err := j.file.Close(); err != nil {
		return tinyerr.Wrap(tinyerr.IoFailure, "close journal", err)
	}
	if err := os.Remove(j.path); err != nil && !os.IsNotExist(err) {
		return tinyerr.Wrap(tinyerr.IoFailure, "remove journal", err)
	}
	return nil
}

// Abandon discards the journal without replaying it, used after an
// explicit Rollback where the cache's dirty pages are simply dropped
// and the database file was never touched.
func (j *Journal) Abandon() error {
	return j.Finalize()
}

// JournalPath returns the sibling journal path for a database file,
// without requiring the journal to be open.
func JournalPath(dbPath string) string {
	return dbPath + journalSuffix
}

// Recover scans an existing on-disk journal at dbPath's sibling file,
// if any, and restores every captured before-image to the database
// file, but only when the journal ends in a complete commit marker. A
// journal left truncated by a crash belongs to a transaction that never
// finished committing and is discarded unreplayed, since the database
// file it would roll back to may itself never have been touched.
func Recover(dbPath string, pager *Pager) (recovered bool, err error) {
	path := JournalPath(dbPath)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, tinyerr.Wrap(tinyerr.IoFailure, "read journal for recovery", err)
	}

	frames, complete := parseJournal(raw)
	if !complete {
		log.WithField("path", path).Warn("discarding journal without trailing commit marker")
		return false, finalizeStaleJournal(path)
	}
	if len(frames) == 0 {
		return false, finalizeStaleJournal(path)
	}

	for _, f := range frames {
		if err := pager.Write(&Page{ID: f.id, Type: PageType(f.data[0]), Data: f.data}); err != nil {
			return false, err
		}
	}
	if err := pager.Sync(); err != nil {
		return false, err
	}

	log.WithFields(log.Fields{"path": path, "frames": len(frames)}).Info("replayed journal before-images on open")
	return true, finalizeStaleJournal(path)
}

type journalFrame struct {
	id   PageID
	data []byte
}

// parseJournal decodes the frame sequence and reports whether it ends
// in a well-formed commit marker. A short read, a length that runs past
// the buffer, or a missing/garbled trailing marker all mean "incomplete".
func parseJournal(raw []byte) (frames []journalFrame, complete bool) {
	if len(raw) == 0 {
		return nil, true
	}
	off := 0
	for {
		remaining := len(raw) - off
		if remaining == 4 {
			return frames, binary.LittleEndian.Uint32(raw[off:off+4]) == commitMarker
		}
		if remaining < frameHeaderSize {
			return frames, false
		}

		id := PageID(binary.LittleEndian.Uint64(raw[off : off+8]))
		length := binary.LittleEndian.Uint32(raw[off+8 : off+12])
		off += frameHeaderSize

		if int64(off)+int64(length) > int64(len(raw)) {
			return frames, false
		}

		data := make([]byte, length)
		copy(data, raw[off:off+int(length)])
		off += int(length)

		frames = append(frames, journalFrame{id: id, data: data})
	}
}

func finalizeStaleJournal(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return tinyerr.Wrap(tinyerr.IoFailure, "remove stale journal", err)
	}
	return nil
}
